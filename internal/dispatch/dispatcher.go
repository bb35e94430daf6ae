package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"urgent-helper/internal/assistant"
	"urgent-helper/internal/geo"
	"urgent-helper/internal/notify"
	"urgent-helper/internal/response"
	"urgent-helper/internal/session"
	"urgent-helper/internal/store"
)

// ErrPermissionDenied is returned when the user declines the NAME or
// DEVICE_PRECISE_LOCATION permission.
var ErrPermissionDenied = errors.New("permission not granted")

// GeoService finds the nearest place and the travel time to it.
type GeoService interface {
	FindNearestPlace(ctx context.Context, origin geo.LatLng, placeType string, openNow bool) (*geo.Place, error)
	ComputeTravel(ctx context.Context, origin, dest geo.LatLng, departure time.Time, params geo.TravelParams) (*geo.Travel, error)
}

// RoomNotifier pushes messages into a LINE room.
type RoomNotifier interface {
	NotifyRoom(ctx context.Context, roomID, text string, loc notify.Location) error
	PushText(ctx context.Context, roomID, text string) error
}

// LinkStore is the durable side of the room link and the dispatch log.
type LinkStore interface {
	GetRoomLink(ctx context.Context, userID string) (string, error)
	SaveRoomLink(ctx context.Context, userID, roomID string) error
	LogDispatch(ctx context.Context, dispatch *store.Dispatch) error
	DeleteUserData(ctx context.Context, userID string) error
}

// Dispatcher routes one fulfillment request to its intent handler and turns
// handler errors into a spoken reply. Each invocation is stateless; the
// conversation state lives in the session data round-tripped through
// userStorage.
type Dispatcher struct {
	geo        GeoService
	notifier   RoomNotifier
	links      LinkStore
	alarmSound string
}

func NewDispatcher(geoService GeoService, notifier RoomNotifier, links LinkStore, alarmSound string) *Dispatcher {
	if alarmSound == "" {
		alarmSound = response.DefaultAlarmSound
	}
	return &Dispatcher{
		geo:        geoService,
		notifier:   notifier,
		links:      links,
		alarmSound: alarmSound,
	}
}

// HandleWebhook is the fulfillment HTTP endpoint.
func (d *Dispatcher) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	req, err := assistant.ParseRequest(r.Body)
	if err != nil {
		log.Printf("Cannot parse fulfillment request: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	resp := d.Handle(r.Context(), req)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("Error encoding fulfillment response: %v", err)
	}
}

// Handle runs one conversation turn. It never returns an error: every
// failure is logged and converted into a spoken reply so the process keeps
// serving.
func (d *Dispatcher) Handle(ctx context.Context, req *assistant.WebhookRequest) *assistant.WebhookResponse {
	sess := session.Decode(req.UserStorage())
	intent := ClassifyIntent(req.IntentName())

	resp, err := d.route(ctx, intent, req, sess)
	if err != nil {
		log.Printf("Intent %s failed for user %s: %v", intent, req.UserID(), err)
		resp = errorResponse(err)
	}

	// An omitted userStorage would leave the platform's copy as it was, so
	// an emptied session must be cleared with an explicit reset.
	encoded := session.Encode(sess)
	if encoded == "" {
		return resp.WithStorageReset()
	}
	return resp.WithUserStorage(encoded)
}

func (d *Dispatcher) route(ctx context.Context, intent IntentKind, req *assistant.WebhookRequest, sess *session.Data) (*assistant.WebhookResponse, error) {
	switch intent {
	case IntentWelcome:
		return d.handleWelcome(ctx, req, sess)
	case IntentCallHelp:
		return d.handleCallHelp(ctx, req, sess)
	case IntentPermission:
		return d.handlePermission(ctx, req, sess)
	case IntentStoreLine:
		return d.handleStoreLine(ctx, req, sess)
	case IntentConfirmation:
		return d.handleConfirmation(ctx, req, sess)
	case IntentDeleteData:
		return d.handleDeleteData(ctx, req, sess)
	case IntentUnknown:
		return assistant.Ask(response.FallbackReply), nil
	}
	return assistant.Ask(response.FallbackReply), nil
}

// errorResponse converts the handler error kinds into replies: a targeted
// correction for link-setup problems, the spoken apology for everything
// else.
func errorResponse(err error) *assistant.WebhookResponse {
	var deliveryErr *notify.DeliveryError
	switch {
	case errors.Is(err, session.ErrInvalidRoomID):
		return assistant.Ask(response.InvalidRoomReply)
	case errors.As(err, &deliveryErr) && deliveryErr.Op == "verify":
		return assistant.Ask(response.RoomUnreachableReply)
	default:
		return assistant.Close(response.ErrorNotify)
	}
}

func (d *Dispatcher) handleWelcome(ctx context.Context, req *assistant.WebhookRequest, sess *session.Data) (*assistant.WebhookResponse, error) {
	if d.linkedRoom(ctx, req, sess) == "" {
		return setupResponse(), nil
	}
	return assistant.Ask(response.Greeting()).WithSuggestions("call help"), nil
}

func (d *Dispatcher) handleCallHelp(ctx context.Context, req *assistant.WebhookRequest, sess *session.Data) (*assistant.WebhookResponse, error) {
	if d.linkedRoom(ctx, req, sess) == "" {
		return setupResponse(), nil
	}
	return assistant.AskPermission(response.PermissionContext,
		assistant.PermissionName, assistant.PermissionPreciseLocation), nil
}

func (d *Dispatcher) handlePermission(ctx context.Context, req *assistant.WebhookRequest, sess *session.Data) (*assistant.WebhookResponse, error) {
	if !req.PermissionGranted() {
		return nil, ErrPermissionDenied
	}

	roomID := d.linkedRoom(ctx, req, sess)
	if roomID == "" {
		return setupResponse(), nil
	}

	coords, ok := req.Coordinates()
	if !ok {
		return nil, fmt.Errorf("permission granted but device location missing")
	}
	origin := geo.LatLng{Lat: coords.Latitude, Lng: coords.Longitude}

	place, err := d.geo.FindNearestPlace(ctx, origin, "hospital", true)
	if err != nil {
		return nil, err
	}

	travel, err := d.geo.ComputeTravel(ctx, origin, place.Location, time.Now().Add(time.Hour), geo.DrivingParams())
	if err != nil {
		return nil, err
	}

	coordsJSON, _ := json.Marshal(coords)
	info := response.EmergencyInfo{
		AlarmSound:      d.alarmSound,
		HospitalName:    place.Name,
		HospitalAddress: travel.DestinationAddress,
		UserName:        req.DisplayName(),
		UserAddress:     travel.OriginAddress,
		Coordinates:     string(coordsJSON),
		DurationTraffic: travel.DurationInTraffic,
	}

	loc := notify.Location{
		Title:     "Emergency location",
		Address:   travel.OriginAddress,
		Latitude:  coords.Latitude,
		Longitude: coords.Longitude,
	}
	if err := d.notifier.NotifyRoom(ctx, roomID, response.RenderContactText(info), loc); err != nil {
		return nil, err
	}

	dispatch := &store.Dispatch{
		UserID:          req.UserID(),
		RoomID:          roomID,
		HospitalName:    info.HospitalName,
		HospitalAddress: info.HospitalAddress,
		UserAddress:     info.UserAddress,
		DurationTraffic: info.DurationTraffic,
		Latitude:        coords.Latitude,
		Longitude:       coords.Longitude,
	}
	if err := d.links.LogDispatch(ctx, dispatch); err != nil {
		// The contacts are already notified; losing the audit record is not
		// worth failing the turn over.
		log.Printf("Error logging dispatch for user %s: %v", req.UserID(), err)
	}

	return assistant.Ask(response.RenderEmergencySpeech(info)), nil
}

func (d *Dispatcher) handleStoreLine(ctx context.Context, req *assistant.WebhookRequest, sess *session.Data) (*assistant.WebhookResponse, error) {
	candidate := strings.TrimSpace(req.StringParameter("room"))
	if !session.IsValidRoomID(candidate) {
		return nil, session.ErrInvalidRoomID
	}

	if err := d.notifier.PushText(ctx, candidate, response.RoomVerificationText); err != nil {
		return nil, err
	}

	sess.PendingRoomID = candidate
	return assistant.AskConfirmation(response.ConfirmLinkPrompt(candidate)), nil
}

func (d *Dispatcher) handleConfirmation(ctx context.Context, req *assistant.WebhookRequest, sess *session.Data) (*assistant.WebhookResponse, error) {
	switch {
	case sess.PendingDelete:
		if !req.ConfirmationGranted() {
			sess.PendingDelete = false
			return assistant.Ask(response.DeleteCancelledReply), nil
		}
		if err := d.links.DeleteUserData(ctx, req.UserID()); err != nil {
			return nil, err
		}
		sess.ClearAll()
		return assistant.Close(response.DeletedReply), nil

	case sess.PendingRoomID != "":
		if !req.ConfirmationGranted() {
			return assistant.AskConfirmation(response.LinkReprompt), nil
		}
		roomID := sess.PendingRoomID
		if err := sess.SetRoomID(roomID); err != nil {
			return nil, err
		}
		sess.PendingRoomID = ""
		if err := d.links.SaveRoomLink(ctx, req.UserID(), roomID); err != nil {
			// The session copy is authoritative; the durable link only
			// hydrates fresh sessions.
			log.Printf("Error saving room link for user %s: %v", req.UserID(), err)
		}
		return assistant.Ask(response.LinkedReply).WithSuggestions("call help"), nil

	default:
		return assistant.Ask(response.FallbackReply), nil
	}
}

func (d *Dispatcher) handleDeleteData(ctx context.Context, req *assistant.WebhookRequest, sess *session.Data) (*assistant.WebhookResponse, error) {
	sess.PendingDelete = true
	return assistant.AskConfirmation(response.DeleteConfirmPrompt), nil
}

// linkedRoom returns the linked room id, hydrating an empty session from the
// durable store. Returns "" when no valid link exists.
func (d *Dispatcher) linkedRoom(ctx context.Context, req *assistant.WebhookRequest, sess *session.Data) string {
	if sess.HasRoomID() {
		return sess.RoomID
	}

	roomID, err := d.links.GetRoomLink(ctx, req.UserID())
	if err != nil {
		log.Printf("Error reading room link for user %s: %v", req.UserID(), err)
		return ""
	}
	if roomID == "" || sess.SetRoomID(roomID) != nil {
		return ""
	}
	return sess.RoomID
}

func setupResponse() *assistant.WebhookResponse {
	card := response.SetupCard()
	return assistant.Ask(response.SetupSteps()).
		WithCard(assistant.BasicCard{
			Title:         card.Title,
			FormattedText: card.Text,
			Buttons: []assistant.Button{{
				Title:         card.ButtonTitle,
				OpenURLAction: assistant.OpenURLAction{URL: card.ButtonURL},
			}},
		}).
		WithSuggestions("store line")
}
