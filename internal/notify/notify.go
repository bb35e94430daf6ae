package notify

import (
	"context"
	"fmt"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// Notifier pushes emergency details into a linked LINE room.
type Notifier struct {
	api *messaging_api.MessagingApiAPI
}

// Location is the structured location message sent after the emergency text.
type Location struct {
	Title     string
	Address   string
	Latitude  float64
	Longitude float64
}

// DeliveryError is the failure kind for any messaging push. Op names the
// step that failed ("text", "location", "verify").
type DeliveryError struct {
	Op  string
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("push %s message: %v", e.Op, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func NewNotifier(channelToken string, opts ...messaging_api.MessagingApiAPIOption) (*Notifier, error) {
	api, err := messaging_api.NewMessagingApiAPI(channelToken, opts...)
	if err != nil {
		return nil, err
	}
	return &Notifier{api: api}, nil
}

// NotifyRoom sends the emergency text, then the location message. The
// location is only sent once the text has been delivered; a text failure
// aborts the whole operation. Retrying after a partial failure may
// re-deliver the text message.
func (n *Notifier) NotifyRoom(ctx context.Context, roomID, text string, loc Location) error {
	if err := n.push(roomID, &messaging_api.TextMessage{Text: text}); err != nil {
		return &DeliveryError{Op: "text", Err: err}
	}

	locMsg := &messaging_api.LocationMessage{
		Title:     loc.Title,
		Address:   loc.Address,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
	}
	if err := n.push(roomID, locMsg); err != nil {
		return &DeliveryError{Op: "location", Err: err}
	}
	return nil
}

// PushText sends a single text message, used to verify a candidate room
// before it is linked.
func (n *Notifier) PushText(ctx context.Context, roomID, text string) error {
	if err := n.push(roomID, &messaging_api.TextMessage{Text: text}); err != nil {
		return &DeliveryError{Op: "verify", Err: err}
	}
	return nil
}

func (n *Notifier) push(roomID string, message messaging_api.MessageInterface) error {
	req := &messaging_api.PushMessageRequest{
		To:       roomID,
		Messages: []messaging_api.MessageInterface{message},
	}
	_, err := n.api.PushMessage(req, "")
	return err
}
