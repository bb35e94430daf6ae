package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"googlemaps.github.io/maps"
)

// LookupClient wraps the two Google Maps calls the emergency flow needs:
// a nearby place search and a traffic-adjusted distance matrix lookup.
type LookupClient struct {
	client *maps.Client
}

// LatLng is a pair of coordinates in floating point degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Place is the single nearest result of a nearby search.
type Place struct {
	Name     string
	Location LatLng
}

// Travel is the distance matrix result for one origin/destination pair.
type Travel struct {
	OriginAddress      string
	DestinationAddress string
	DurationInTraffic  string
}

// TravelParams selects routing behavior for ComputeTravel.
type TravelParams struct {
	Mode         maps.Mode
	Avoid        maps.Avoid
	TrafficModel maps.TrafficModel
}

// DrivingParams returns the emergency defaults: driving, avoiding tolls and
// ferries, best-guess traffic.
func DrivingParams() TravelParams {
	return TravelParams{
		Mode:         maps.TravelModeDriving,
		Avoid:        maps.Avoid("tolls|ferries"),
		TrafficModel: maps.TrafficModelBestGuess,
	}
}

// LookupError is the single failure kind for both maps calls. Reason keeps
// "fetch failed" (transport error) apart from a non-OK upstream status for
// diagnostics; callers only branch on the type.
type LookupError struct {
	Op     string
	Reason string
	Err    error
}

func (e *LookupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s", e.Op, e.Reason)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

func newLookupError(op string, err error) *LookupError {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &LookupError{Op: op, Reason: "fetch failed", Err: err}
	}
	return &LookupError{Op: op, Reason: "non-OK status", Err: err}
}

func NewLookupClient(apiKey string, opts ...maps.ClientOption) (*LookupClient, error) {
	opts = append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	return &LookupClient{client: client}, nil
}

// FindNearestPlace runs a nearby search ranked by distance and returns the
// first result. No retries: a single upstream failure aborts the caller's
// whole flow.
func (lc *LookupClient) FindNearestPlace(ctx context.Context, origin LatLng, placeType string, openNow bool) (*Place, error) {
	req := &maps.NearbySearchRequest{
		Location: &maps.LatLng{Lat: origin.Lat, Lng: origin.Lng},
		RankBy:   maps.RankByDistance,
		Type:     maps.PlaceType(placeType),
		Name:     placeType,
		OpenNow:  openNow,
	}

	resp, err := lc.client.NearbySearch(ctx, req)
	if err != nil {
		return nil, newLookupError("placesNearby", err)
	}

	if len(resp.Results) == 0 {
		return nil, &LookupError{Op: "placesNearby", Reason: "non-OK status", Err: fmt.Errorf("no %s found near %f,%f", placeType, origin.Lat, origin.Lng)}
	}

	result := resp.Results[0]
	return &Place{
		Name: result.Name,
		Location: LatLng{
			Lat: result.Geometry.Location.Lat,
			Lng: result.Geometry.Location.Lng,
		},
	}, nil
}

// ComputeTravel asks the distance matrix for a single origin/destination
// pair with the given departure time and traffic estimation.
func (lc *LookupClient) ComputeTravel(ctx context.Context, origin, dest LatLng, departure time.Time, params TravelParams) (*Travel, error) {
	req := &maps.DistanceMatrixRequest{
		Origins:       []string{formatLatLng(origin)},
		Destinations:  []string{formatLatLng(dest)},
		DepartureTime: strconv.FormatInt(departure.Unix(), 10),
		Mode:          params.Mode,
		Avoid:         params.Avoid,
		TrafficModel:  params.TrafficModel,
	}

	resp, err := lc.client.DistanceMatrix(ctx, req)
	if err != nil {
		return nil, newLookupError("distanceMatrix", err)
	}

	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return nil, &LookupError{Op: "distanceMatrix", Reason: "non-OK status", Err: fmt.Errorf("empty matrix for %s", formatLatLng(origin))}
	}

	element := resp.Rows[0].Elements[0]
	if element.Status != "OK" {
		return nil, &LookupError{Op: "distanceMatrix", Reason: "non-OK status", Err: fmt.Errorf("element status %s", element.Status)}
	}

	duration := element.DurationInTraffic
	if duration == 0 {
		duration = element.Duration
	}

	travel := &Travel{DurationInTraffic: FormatDuration(duration)}
	if len(resp.OriginAddresses) > 0 {
		travel.OriginAddress = resp.OriginAddresses[0]
	}
	if len(resp.DestinationAddresses) > 0 {
		travel.DestinationAddress = resp.DestinationAddresses[0]
	}
	return travel, nil
}

func formatLatLng(p LatLng) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}

// FormatDuration renders a duration the way the maps API labels travel
// times: "1 min", "12 mins", "1 hour 5 mins".
func FormatDuration(d time.Duration) string {
	mins := int(math.Round(d.Minutes()))
	if mins < 1 {
		mins = 1
	}

	hours := mins / 60
	mins = mins % 60

	switch {
	case hours == 0:
		return pluralize(mins, "min")
	case mins == 0:
		return pluralize(hours, "hour")
	default:
		return pluralize(hours, "hour") + " " + pluralize(mins, "min")
	}
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
