// Package assistant holds the Dialogflow v2 fulfillment wire types and the
// Actions-on-Google payload builders this webhook speaks. There is no
// official Go fulfillment SDK, so the subset of the schema we use is
// declared here.
package assistant

import (
	"encoding/json"
	"io"
)

// WebhookRequest is a Dialogflow v2 fulfillment request.
type WebhookRequest struct {
	ResponseID                  string                      `json:"responseId"`
	Session                     string                      `json:"session"`
	QueryResult                 QueryResult                 `json:"queryResult"`
	OriginalDetectIntentRequest OriginalDetectIntentRequest `json:"originalDetectIntentRequest"`
}

type QueryResult struct {
	QueryText  string         `json:"queryText"`
	Parameters map[string]any `json:"parameters"`
	Intent     Intent         `json:"intent"`
}

type Intent struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// OriginalDetectIntentRequest carries the platform-specific payload. Source
// is "google" for Assistant traffic.
type OriginalDetectIntentRequest struct {
	Source  string         `json:"source"`
	Payload *GooglePayload `json:"payload,omitempty"`
}

type GooglePayload struct {
	User         User         `json:"user"`
	Device       Device       `json:"device"`
	Inputs       []Input      `json:"inputs"`
	Conversation Conversation `json:"conversation"`
}

type User struct {
	UserID      string  `json:"userId"`
	UserStorage string  `json:"userStorage"`
	Profile     Profile `json:"profile"`
}

type Profile struct {
	DisplayName string `json:"displayName"`
	GivenName   string `json:"givenName"`
	FamilyName  string `json:"familyName"`
}

type Device struct {
	Location *DeviceLocation `json:"location,omitempty"`
}

type DeviceLocation struct {
	Coordinates      Coordinates `json:"coordinates"`
	FormattedAddress string      `json:"formattedAddress,omitempty"`
}

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Input struct {
	Intent    string     `json:"intent"`
	Arguments []Argument `json:"arguments"`
}

type Argument struct {
	Name      string `json:"name"`
	TextValue string `json:"textValue,omitempty"`
	BoolValue bool   `json:"boolValue,omitempty"`
}

type Conversation struct {
	ConversationID string `json:"conversationId"`
	Type           string `json:"type"`
}

// ParseRequest decodes a fulfillment request body.
func ParseRequest(r io.Reader) (*WebhookRequest, error) {
	var req WebhookRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// IntentName returns the matched intent's display name, which is what the
// Dialogflow console shows and what handlers dispatch on.
func (r *WebhookRequest) IntentName() string {
	return r.QueryResult.Intent.DisplayName
}

// StringParameter returns a string-typed intent parameter, or "".
func (r *WebhookRequest) StringParameter(name string) string {
	v, ok := r.QueryResult.Parameters[name]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func (r *WebhookRequest) google() *GooglePayload {
	return r.OriginalDetectIntentRequest.Payload
}

// UserStorage returns the raw per-user storage string, "" when absent.
func (r *WebhookRequest) UserStorage() string {
	if g := r.google(); g != nil {
		return g.User.UserStorage
	}
	return ""
}

// UserID returns the platform user identifier, "" when absent.
func (r *WebhookRequest) UserID() string {
	if g := r.google(); g != nil {
		return g.User.UserID
	}
	return ""
}

// DisplayName returns the user's name when the NAME permission was granted.
func (r *WebhookRequest) DisplayName() string {
	if g := r.google(); g != nil {
		return g.User.Profile.DisplayName
	}
	return ""
}

// Coordinates returns the device location when the DEVICE_PRECISE_LOCATION
// permission was granted.
func (r *WebhookRequest) Coordinates() (Coordinates, bool) {
	g := r.google()
	if g == nil || g.Device.Location == nil {
		return Coordinates{}, false
	}
	return g.Device.Location.Coordinates, true
}

func (r *WebhookRequest) boolArgument(name string) bool {
	g := r.google()
	if g == nil {
		return false
	}
	for _, input := range g.Inputs {
		for _, arg := range input.Arguments {
			if arg.Name == name {
				return arg.BoolValue
			}
		}
	}
	return false
}

// PermissionGranted reports the outcome of the PERMISSION helper.
func (r *WebhookRequest) PermissionGranted() bool {
	return r.boolArgument("PERMISSION")
}

// ConfirmationGranted reports the outcome of the CONFIRMATION helper.
func (r *WebhookRequest) ConfirmationGranted() bool {
	return r.boolArgument("CONFIRMATION")
}
