package assistant

import "strings"

// WebhookResponse is the Dialogflow fulfillment reply. Everything Assistant
// cares about rides in payload.google.
type WebhookResponse struct {
	Payload *Payload `json:"payload,omitempty"`
}

type Payload struct {
	Google GoogleResponse `json:"google"`
}

type GoogleResponse struct {
	ExpectUserResponse bool          `json:"expectUserResponse"`
	RichResponse       *RichResponse `json:"richResponse,omitempty"`
	SystemIntent       *SystemIntent `json:"systemIntent,omitempty"`
	UserStorage        string        `json:"userStorage,omitempty"`
	// An omitted or empty userStorage leaves the platform's persisted copy
	// unchanged; wiping it requires this flag.
	ResetUserStorage bool `json:"resetUserStorage,omitempty"`
}

type RichResponse struct {
	Items       []Item       `json:"items"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

type Item struct {
	SimpleResponse *SimpleResponse `json:"simpleResponse,omitempty"`
	BasicCard      *BasicCard      `json:"basicCard,omitempty"`
}

type SimpleResponse struct {
	SSML         string `json:"ssml,omitempty"`
	TextToSpeech string `json:"textToSpeech,omitempty"`
	DisplayText  string `json:"displayText,omitempty"`
}

type BasicCard struct {
	Title         string   `json:"title,omitempty"`
	FormattedText string   `json:"formattedText,omitempty"`
	Buttons       []Button `json:"buttons,omitempty"`
}

type Button struct {
	Title         string        `json:"title"`
	OpenURLAction OpenURLAction `json:"openUrlAction"`
}

type OpenURLAction struct {
	URL string `json:"url"`
}

type Suggestion struct {
	Title string `json:"title"`
}

// SystemIntent requests an Assistant helper such as PERMISSION or
// CONFIRMATION.
type SystemIntent struct {
	Intent string `json:"intent"`
	Data   any    `json:"data"`
}

type permissionValueSpec struct {
	Type        string   `json:"@type"`
	OptContext  string   `json:"optContext,omitempty"`
	Permissions []string `json:"permissions"`
}

type confirmationValueSpec struct {
	Type       string                 `json:"@type"`
	DialogSpec confirmationDialogSpec `json:"dialogSpec"`
}

type confirmationDialogSpec struct {
	RequestConfirmationText string `json:"requestConfirmationText"`
}

// Assistant permission names used by this webhook.
const (
	PermissionName            = "NAME"
	PermissionPreciseLocation = "DEVICE_PRECISE_LOCATION"
)

// Ask speaks a prompt and keeps the microphone open. SSML documents are
// detected by their <speak> root.
func Ask(text string) *WebhookResponse {
	return respond(true, simpleResponse(text))
}

// Close speaks a final message and ends the conversation.
func Close(text string) *WebhookResponse {
	return respond(false, simpleResponse(text))
}

// AskPermission runs the PERMISSION helper for the given permissions with an
// opt-in context sentence.
func AskPermission(optContext string, permissions ...string) *WebhookResponse {
	resp := respond(true, simpleResponse("PLACEHOLDER_FOR_PERMISSION"))
	resp.Payload.Google.SystemIntent = &SystemIntent{
		Intent: "actions.intent.PERMISSION",
		Data: permissionValueSpec{
			Type:        "type.googleapis.com/google.actions.v2.PermissionValueSpec",
			OptContext:  optContext,
			Permissions: permissions,
		},
	}
	return resp
}

// AskConfirmation runs the CONFIRMATION helper with the given question.
func AskConfirmation(question string) *WebhookResponse {
	resp := respond(true, simpleResponse("PLACEHOLDER_FOR_CONFIRMATION"))
	resp.Payload.Google.SystemIntent = &SystemIntent{
		Intent: "actions.intent.CONFIRMATION",
		Data: confirmationValueSpec{
			Type: "type.googleapis.com/google.actions.v2.ConfirmationValueSpec",
			DialogSpec: confirmationDialogSpec{
				RequestConfirmationText: question,
			},
		},
	}
	return resp
}

// WithCard appends a basic card to the response.
func (r *WebhookResponse) WithCard(card BasicCard) *WebhookResponse {
	rich := r.Payload.Google.RichResponse
	rich.Items = append(rich.Items, Item{BasicCard: &card})
	return r
}

// WithSuggestions appends suggestion chips.
func (r *WebhookResponse) WithSuggestions(titles ...string) *WebhookResponse {
	rich := r.Payload.Google.RichResponse
	for _, title := range titles {
		rich.Suggestions = append(rich.Suggestions, Suggestion{Title: title})
	}
	return r
}

// WithUserStorage sets the per-user storage slot written back to the
// platform.
func (r *WebhookResponse) WithUserStorage(storage string) *WebhookResponse {
	r.Payload.Google.UserStorage = storage
	return r
}

// WithStorageReset asks the platform to wipe its persisted userStorage.
func (r *WebhookResponse) WithStorageReset() *WebhookResponse {
	r.Payload.Google.UserStorage = ""
	r.Payload.Google.ResetUserStorage = true
	return r
}

// Speech returns the first spoken item, for logging and tests.
func (r *WebhookResponse) Speech() string {
	if r.Payload == nil || r.Payload.Google.RichResponse == nil {
		return ""
	}
	for _, item := range r.Payload.Google.RichResponse.Items {
		if item.SimpleResponse != nil {
			if item.SimpleResponse.SSML != "" {
				return item.SimpleResponse.SSML
			}
			return item.SimpleResponse.TextToSpeech
		}
	}
	return ""
}

func respond(expectUserResponse bool, simple *SimpleResponse) *WebhookResponse {
	return &WebhookResponse{
		Payload: &Payload{
			Google: GoogleResponse{
				ExpectUserResponse: expectUserResponse,
				RichResponse: &RichResponse{
					Items: []Item{{SimpleResponse: simple}},
				},
			},
		},
	}
}

func simpleResponse(text string) *SimpleResponse {
	if strings.HasPrefix(text, "<speak>") {
		return &SimpleResponse{SSML: text}
	}
	return &SimpleResponse{TextToSpeech: text}
}
