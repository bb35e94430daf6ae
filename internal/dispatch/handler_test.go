package dispatch

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const welcomeRequestJSON = `{
	"responseId": "resp-1",
	"session": "projects/urgent-helper/agent/sessions/abc",
	"queryResult": {
		"queryText": "hi",
		"parameters": {},
		"intent": {"displayName": "Default Welcome Intent"}
	},
	"originalDetectIntentRequest": {
		"source": "google",
		"payload": {
			"user": {"userId": "user-1", "profile": {"displayName": "Eder"}},
			"inputs": [],
			"conversation": {"conversationId": "conv-1", "type": "NEW"}
		}
	}
}`

func TestHandleWebhook(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(welcomeRequestJSON))
	w := httptest.NewRecorder()
	d.HandleWebhook(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"expectUserResponse":true`) {
		t.Errorf("response should keep the conversation open: %s", body)
	}
	if !strings.Contains(body, "Link an emergency contact room") {
		t.Errorf("unlinked welcome should carry the setup card: %s", body)
	}
}

func TestHandleWebhookBadBody(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	d.HandleWebhook(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
