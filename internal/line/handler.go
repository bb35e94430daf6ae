package line

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// Handler serves the LINE messaging webhook. Its only job is onboarding:
// when the bot joins a room or is asked for it, it replies with the room id
// the user needs to link the room as their emergency contact on the voice
// side.
type Handler struct {
	messagingAPI  *messaging_api.MessagingApiAPI
	channelSecret string
}

func NewHandler(channelToken, channelSecret string, opts ...messaging_api.MessagingApiAPIOption) (*Handler, error) {
	messagingAPI, err := messaging_api.NewMessagingApiAPI(channelToken, opts...)
	if err != nil {
		return nil, err
	}

	return &Handler{
		messagingAPI:  messagingAPI,
		channelSecret: channelSecret,
	}, nil
}

func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	cb, err := webhook.ParseRequest(h.channelSecret, r)
	if err != nil {
		log.Printf("Cannot parse LINE request: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	for _, event := range cb.Events {
		switch e := event.(type) {
		case webhook.JoinEvent:
			h.handleJoin(r.Context(), e)
		case webhook.MessageEvent:
			h.handleMessage(r.Context(), e)
		}
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleJoin(ctx context.Context, event webhook.JoinEvent) {
	roomID := sourceID(event.Source)
	if roomID == "" {
		return
	}
	h.reply(ctx, event.ReplyToken, joinGreeting(roomID))
}

func (h *Handler) handleMessage(ctx context.Context, event webhook.MessageEvent) {
	message, ok := event.Message.(webhook.TextMessageContent)
	if !ok {
		return
	}

	roomID := sourceID(event.Source)

	switch strings.ToLower(strings.TrimSpace(message.Text)) {
	case "room id", "roomid", "id":
		if roomID == "" {
			h.reply(ctx, event.ReplyToken, "Add me to a LINE group first, then ask for the room id there.")
			return
		}
		h.reply(ctx, event.ReplyToken, roomIDReply(roomID))
	case "help":
		h.reply(ctx, event.ReplyToken, helpText)
	}
	// Anything else is regular room chatter and is left alone.
}

func (h *Handler) reply(ctx context.Context, replyToken, text string) {
	req := &messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages: []messaging_api.MessageInterface{
			&messaging_api.TextMessage{Text: text},
		},
	}
	if _, err := h.messagingAPI.ReplyMessage(req); err != nil {
		log.Printf("Error replying on LINE: %v", err)
	}
}

// sourceID extracts the id usable as an emergency contact destination. Only
// group and room sources qualify; one-on-one user chats cannot be linked.
func sourceID(source webhook.SourceInterface) string {
	switch s := source.(type) {
	case webhook.GroupSource:
		return s.GroupId
	case webhook.RoomSource:
		return s.RoomId
	default:
		return ""
	}
}

func joinGreeting(roomID string) string {
	return fmt.Sprintf("Hi! I'm Urgent Helper. This room can receive emergency notifications.\n"+
		"Room id: %s\n"+
		"Tell your Assistant to \"store line\" with that id to link this room.", roomID)
}

func roomIDReply(roomID string) string {
	return fmt.Sprintf("Room id: %s\nUse it with \"store line\" on your Assistant to link this room.", roomID)
}

const helpText = "I forward emergency notifications from the Urgent Helper voice app.\n" +
	"Type \"room id\" to get the id for linking this room."
