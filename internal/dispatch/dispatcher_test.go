package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"urgent-helper/internal/assistant"
	"urgent-helper/internal/geo"
	"urgent-helper/internal/notify"
	"urgent-helper/internal/response"
	"urgent-helper/internal/session"
	"urgent-helper/internal/store"
)

var testRoomID = "C" + strings.Repeat("0123456789abcdef", 2)

type fakeGeo struct {
	place       *geo.Place
	travel      *geo.Travel
	placeErr    error
	travelErr   error
	placeCalls  int
	travelCalls int
}

func (f *fakeGeo) FindNearestPlace(ctx context.Context, origin geo.LatLng, placeType string, openNow bool) (*geo.Place, error) {
	f.placeCalls++
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	return f.place, nil
}

func (f *fakeGeo) ComputeTravel(ctx context.Context, origin, dest geo.LatLng, departure time.Time, params geo.TravelParams) (*geo.Travel, error) {
	f.travelCalls++
	if f.travelErr != nil {
		return nil, f.travelErr
	}
	return f.travel, nil
}

type notifiedRoom struct {
	roomID string
	text   string
	loc    notify.Location
}

type fakeNotifier struct {
	notifyErr error
	pushErr   error
	notified  []notifiedRoom
	pushed    []notifiedRoom
}

func (f *fakeNotifier) NotifyRoom(ctx context.Context, roomID, text string, loc notify.Location) error {
	if f.notifyErr != nil {
		return f.notifyErr
	}
	f.notified = append(f.notified, notifiedRoom{roomID, text, loc})
	return nil
}

func (f *fakeNotifier) PushText(ctx context.Context, roomID, text string) error {
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushed = append(f.pushed, notifiedRoom{roomID: roomID, text: text})
	return nil
}

type fakeLinks struct {
	roomID     string
	saved      map[string]string
	dispatches []*store.Dispatch
	deleted    []string
}

func (f *fakeLinks) GetRoomLink(ctx context.Context, userID string) (string, error) {
	return f.roomID, nil
}

func (f *fakeLinks) SaveRoomLink(ctx context.Context, userID, roomID string) error {
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	f.saved[userID] = roomID
	return nil
}

func (f *fakeLinks) LogDispatch(ctx context.Context, dispatch *store.Dispatch) error {
	f.dispatches = append(f.dispatches, dispatch)
	return nil
}

func (f *fakeLinks) DeleteUserData(ctx context.Context, userID string) error {
	f.deleted = append(f.deleted, userID)
	return nil
}

func newTestDispatcher() (*Dispatcher, *fakeGeo, *fakeNotifier, *fakeLinks) {
	g := &fakeGeo{
		place: &geo.Place{Name: "City Hospital", Location: geo.LatLng{Lat: 13.751, Lng: 100.501}},
		travel: &geo.Travel{
			OriginAddress:      "123 Main St",
			DestinationAddress: "456 Hospital Rd",
			DurationInTraffic:  "12 mins",
		},
	}
	n := &fakeNotifier{}
	l := &fakeLinks{}
	return NewDispatcher(g, n, l, ""), g, n, l
}

type requestOption func(*assistant.WebhookRequest)

func withStorage(d *session.Data) requestOption {
	return func(r *assistant.WebhookRequest) {
		r.OriginalDetectIntentRequest.Payload.User.UserStorage = session.Encode(d)
	}
}

func withArgument(name string, value bool) requestOption {
	return func(r *assistant.WebhookRequest) {
		payload := r.OriginalDetectIntentRequest.Payload
		payload.Inputs = append(payload.Inputs, assistant.Input{
			Arguments: []assistant.Argument{{Name: name, BoolValue: value}},
		})
	}
}

func withLocation(lat, lng float64) requestOption {
	return func(r *assistant.WebhookRequest) {
		r.OriginalDetectIntentRequest.Payload.Device.Location = &assistant.DeviceLocation{
			Coordinates: assistant.Coordinates{Latitude: lat, Longitude: lng},
		}
	}
}

func withParameter(name, value string) requestOption {
	return func(r *assistant.WebhookRequest) {
		r.QueryResult.Parameters[name] = value
	}
}

func makeRequest(intentName string, opts ...requestOption) *assistant.WebhookRequest {
	req := &assistant.WebhookRequest{
		QueryResult: assistant.QueryResult{
			Parameters: map[string]any{},
			Intent:     assistant.Intent{DisplayName: intentName},
		},
		OriginalDetectIntentRequest: assistant.OriginalDetectIntentRequest{
			Source: "google",
			Payload: &assistant.GooglePayload{
				User: assistant.User{
					UserID:  "user-1",
					Profile: assistant.Profile{DisplayName: "Eder"},
				},
			},
		},
	}
	for _, opt := range opts {
		opt(req)
	}
	return req
}

func storageOf(resp *assistant.WebhookResponse) *session.Data {
	return session.Decode(resp.Payload.Google.UserStorage)
}

func TestEmergencyFlow(t *testing.T) {
	d, g, n, l := newTestDispatcher()

	req := makeRequest("actions_intent_PERMISSION",
		withStorage(&session.Data{RoomID: testRoomID}),
		withArgument("PERMISSION", true),
		withLocation(13.75, 100.50),
	)

	resp := d.Handle(context.Background(), req)
	speech := resp.Speech()

	for _, want := range []string{"City Hospital", "456 Hospital Rd", "12 mins", "Eder"} {
		if !strings.Contains(speech, want) {
			t.Errorf("spoken reply missing %q:\n%s", want, speech)
		}
	}

	if g.placeCalls != 1 || g.travelCalls != 1 {
		t.Errorf("geo calls = %d place, %d travel; want 1 each", g.placeCalls, g.travelCalls)
	}

	if len(n.notified) != 1 {
		t.Fatalf("got %d room notifications, want 1", len(n.notified))
	}
	sent := n.notified[0]
	if sent.roomID != testRoomID {
		t.Errorf("notified room %q, want %q", sent.roomID, testRoomID)
	}
	for _, want := range []string{"Eder", "City Hospital", "456 Hospital Rd", "12 mins"} {
		if !strings.Contains(sent.text, want) {
			t.Errorf("contact text missing %q:\n%s", want, sent.text)
		}
	}
	if sent.loc.Latitude != 13.75 || sent.loc.Longitude != 100.50 {
		t.Errorf("location message coordinates = %+v, want the user's", sent.loc)
	}

	if len(l.dispatches) != 1 {
		t.Fatalf("got %d dispatch records, want 1", len(l.dispatches))
	}
	if l.dispatches[0].HospitalName != "City Hospital" {
		t.Errorf("dispatch hospital = %q", l.dispatches[0].HospitalName)
	}

	if storageOf(resp).RoomID != testRoomID {
		t.Error("room link must survive the emergency turn")
	}
}

func TestCallHelpWithoutRoomLink(t *testing.T) {
	d, g, n, _ := newTestDispatcher()

	resp := d.Handle(context.Background(), makeRequest("call_help"))

	if !strings.Contains(resp.Speech(), "No emergency contact room") {
		t.Errorf("expected the setup prompt, got: %s", resp.Speech())
	}
	if g.placeCalls != 0 || g.travelCalls != 0 {
		t.Error("maps provider must not be called without a room link")
	}
	if len(n.notified) != 0 || len(n.pushed) != 0 {
		t.Error("messaging provider must not be called without a room link")
	}
}

func TestCallHelpWithRoomLinkAsksPermission(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	req := makeRequest("call_help", withStorage(&session.Data{RoomID: testRoomID}))
	resp := d.Handle(context.Background(), req)

	si := resp.Payload.Google.SystemIntent
	if si == nil || si.Intent != "actions.intent.PERMISSION" {
		t.Fatalf("expected a permission helper request, got %+v", si)
	}
}

func TestCallHelpHydratesFromDurableStore(t *testing.T) {
	d, _, _, l := newTestDispatcher()
	l.roomID = testRoomID

	resp := d.Handle(context.Background(), makeRequest("call_help"))

	si := resp.Payload.Google.SystemIntent
	if si == nil || si.Intent != "actions.intent.PERMISSION" {
		t.Fatal("a durably linked room should enable the help flow")
	}
	if storageOf(resp).RoomID != testRoomID {
		t.Error("hydrated room id should be written back to the session")
	}
}

func TestPermissionDenied(t *testing.T) {
	d, g, n, _ := newTestDispatcher()

	req := makeRequest("actions_intent_PERMISSION",
		withStorage(&session.Data{RoomID: testRoomID}),
		withArgument("PERMISSION", false),
	)
	resp := d.Handle(context.Background(), req)

	if resp.Speech() != response.ErrorNotify {
		t.Errorf("denied permission should get the spoken apology, got: %s", resp.Speech())
	}
	if resp.Payload.Google.ExpectUserResponse {
		t.Error("the apology should end the conversation")
	}
	if g.placeCalls != 0 || g.travelCalls != 0 || len(n.notified) != 0 {
		t.Error("no upstream calls may happen after a denied permission")
	}
}

func TestLookupFailureAbortsFlow(t *testing.T) {
	d, g, n, _ := newTestDispatcher()
	g.placeErr = &geo.LookupError{Op: "placesNearby", Reason: "non-OK status", Err: errors.New("REQUEST_DENIED")}

	req := makeRequest("actions_intent_PERMISSION",
		withStorage(&session.Data{RoomID: testRoomID}),
		withArgument("PERMISSION", true),
		withLocation(13.75, 100.50),
	)
	resp := d.Handle(context.Background(), req)

	if resp.Speech() != response.ErrorNotify {
		t.Errorf("lookup failure should get the spoken apology, got: %s", resp.Speech())
	}
	if len(n.notified) != 0 {
		t.Error("no notification may be sent after a failed lookup")
	}
}

func TestStoreLineInvalidID(t *testing.T) {
	d, _, n, _ := newTestDispatcher()

	req := makeRequest("store_line", withParameter("room", "not-a-room"))
	resp := d.Handle(context.Background(), req)

	if resp.Speech() != response.InvalidRoomReply {
		t.Errorf("expected the room id correction, got: %s", resp.Speech())
	}
	if len(n.pushed) != 0 {
		t.Error("no verification push for an invalid id")
	}
	if storageOf(resp).PendingRoomID != "" {
		t.Error("invalid candidate must not be stored")
	}
}

func TestStoreLineValidID(t *testing.T) {
	d, _, n, _ := newTestDispatcher()

	req := makeRequest("store_line", withParameter("room", testRoomID))
	resp := d.Handle(context.Background(), req)

	if len(n.pushed) != 1 || n.pushed[0].roomID != testRoomID {
		t.Fatalf("expected one verification push to the candidate room, got %+v", n.pushed)
	}
	si := resp.Payload.Google.SystemIntent
	if si == nil || si.Intent != "actions.intent.CONFIRMATION" {
		t.Fatal("expected a confirmation helper request")
	}
	if storageOf(resp).PendingRoomID != testRoomID {
		t.Error("candidate room must be pending confirmation")
	}
}

func TestStoreLineUnreachableRoom(t *testing.T) {
	d, _, n, _ := newTestDispatcher()
	n.pushErr = &notify.DeliveryError{Op: "verify", Err: errors.New("forbidden")}

	req := makeRequest("store_line", withParameter("room", testRoomID))
	resp := d.Handle(context.Background(), req)

	if resp.Speech() != response.RoomUnreachableReply {
		t.Errorf("expected the unreachable-room correction, got: %s", resp.Speech())
	}
	if storageOf(resp).PendingRoomID != "" {
		t.Error("unverified candidate must not be stored")
	}
}

func TestConfirmLinkPersistsRoom(t *testing.T) {
	d, _, _, l := newTestDispatcher()

	req := makeRequest("actions_intent_CONFIRMATION",
		withStorage(&session.Data{PendingRoomID: testRoomID}),
		withArgument("CONFIRMATION", true),
	)
	resp := d.Handle(context.Background(), req)

	if resp.Speech() != response.LinkedReply {
		t.Errorf("expected the linked reply, got: %s", resp.Speech())
	}
	got := storageOf(resp)
	if got.RoomID != testRoomID || got.PendingRoomID != "" {
		t.Errorf("storage after confirm = %+v", got)
	}
	if l.saved["user-1"] != testRoomID {
		t.Error("room link must be saved durably")
	}
}

func TestDeclineLinkReprompts(t *testing.T) {
	d, _, _, l := newTestDispatcher()

	req := makeRequest("actions_intent_CONFIRMATION",
		withStorage(&session.Data{PendingRoomID: testRoomID}),
		withArgument("CONFIRMATION", false),
	)
	resp := d.Handle(context.Background(), req)

	si := resp.Payload.Google.SystemIntent
	if si == nil || si.Intent != "actions.intent.CONFIRMATION" {
		t.Fatal("a declined link should reprompt for confirmation")
	}
	got := storageOf(resp)
	if got.RoomID != "" || got.PendingRoomID != testRoomID {
		t.Errorf("storage after declined confirm = %+v", got)
	}
	if len(l.saved) != 0 {
		t.Error("nothing may be persisted before confirmation")
	}
}

func TestDeleteAllDataFlow(t *testing.T) {
	d, _, _, l := newTestDispatcher()

	// Step 1: the delete intent asks for confirmation.
	req := makeRequest("delete_all_data", withStorage(&session.Data{RoomID: testRoomID}))
	resp := d.Handle(context.Background(), req)

	si := resp.Payload.Google.SystemIntent
	if si == nil || si.Intent != "actions.intent.CONFIRMATION" {
		t.Fatal("delete must ask for confirmation first")
	}
	if !storageOf(resp).PendingDelete {
		t.Fatal("delete confirmation must be pending")
	}

	// Step 2: confirming wipes the session and the durable records.
	req = makeRequest("actions_intent_CONFIRMATION",
		withStorage(&session.Data{RoomID: testRoomID, PendingDelete: true}),
		withArgument("CONFIRMATION", true),
	)
	resp = d.Handle(context.Background(), req)

	if resp.Speech() != response.DeletedReply {
		t.Errorf("expected the deleted reply, got: %s", resp.Speech())
	}
	if resp.Payload.Google.UserStorage != "" {
		t.Errorf("userStorage should be cleared, got %q", resp.Payload.Google.UserStorage)
	}
	if len(l.deleted) != 1 || l.deleted[0] != "user-1" {
		t.Errorf("durable data not deleted: %+v", l.deleted)
	}

	// An omitted userStorage field would leave the platform's persisted
	// copy in place, so the wire response must carry an explicit reset.
	wire, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(wire), `"resetUserStorage":true`) {
		t.Errorf("response must ask the platform to wipe userStorage: %s", wire)
	}
	if strings.Contains(string(wire), `"userStorage"`) {
		t.Errorf("cleared response must not re-send a storage value: %s", wire)
	}
}

func TestDeclineDeleteKeepsData(t *testing.T) {
	d, _, _, l := newTestDispatcher()

	req := makeRequest("actions_intent_CONFIRMATION",
		withStorage(&session.Data{RoomID: testRoomID, PendingDelete: true}),
		withArgument("CONFIRMATION", false),
	)
	resp := d.Handle(context.Background(), req)

	if resp.Speech() != response.DeleteCancelledReply {
		t.Errorf("expected the cancel reply, got: %s", resp.Speech())
	}
	got := storageOf(resp)
	if got.RoomID != testRoomID || got.PendingDelete {
		t.Errorf("storage after declined delete = %+v", got)
	}
	if len(l.deleted) != 0 {
		t.Error("nothing may be deleted without confirmation")
	}
}

func TestConfirmationWithoutPendingState(t *testing.T) {
	d, _, _, l := newTestDispatcher()

	req := makeRequest("actions_intent_CONFIRMATION",
		withStorage(&session.Data{RoomID: testRoomID}),
		withArgument("CONFIRMATION", true),
	)
	resp := d.Handle(context.Background(), req)

	if resp.Speech() != response.FallbackReply {
		t.Errorf("a stray confirmation should get the fallback reply, got: %s", resp.Speech())
	}
	if storageOf(resp).RoomID != testRoomID {
		t.Error("a stray confirmation must not touch the room link")
	}
	if len(l.saved) != 0 || len(l.deleted) != 0 {
		t.Error("a stray confirmation must not persist or delete anything")
	}
}

func TestWelcome(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	// Linked user gets a greeting.
	resp := d.Handle(context.Background(),
		makeRequest("Default Welcome Intent", withStorage(&session.Data{RoomID: testRoomID})))
	if !strings.Contains(resp.Speech(), "Welcome back") {
		t.Errorf("expected a greeting, got: %s", resp.Speech())
	}

	// Unlinked user gets the setup card.
	resp = d.Handle(context.Background(), makeRequest("Default Welcome Intent"))
	items := resp.Payload.Google.RichResponse.Items
	var hasCard bool
	for _, item := range items {
		if item.BasicCard != nil {
			hasCard = true
		}
	}
	if !hasCard {
		t.Error("unlinked welcome should include the setup card")
	}
}

func TestUnknownIntentFallsBack(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	resp := d.Handle(context.Background(), makeRequest("some_future_intent"))
	if resp.Speech() != response.FallbackReply {
		t.Errorf("expected the fallback reply, got: %s", resp.Speech())
	}
}

func TestClassifyIntent(t *testing.T) {
	tests := map[string]IntentKind{
		"Default Welcome Intent":      IntentWelcome,
		"call_help":                   IntentCallHelp,
		"actions_intent_PERMISSION":   IntentPermission,
		"store_line":                  IntentStoreLine,
		"actions_intent_CONFIRMATION": IntentConfirmation,
		"delete_all_data":             IntentDeleteData,
		"":                            IntentUnknown,
		"something_else":              IntentUnknown,
	}
	for name, want := range tests {
		if got := ClassifyIntent(name); got != want {
			t.Errorf("ClassifyIntent(%q) = %v, want %v", name, got, want)
		}
	}
}
