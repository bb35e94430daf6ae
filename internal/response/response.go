package response

import "fmt"

// DefaultAlarmSound is the audio cue embedded in the emergency notification.
const DefaultAlarmSound = "https://actions.google.com/sounds/v1/alarms/alarm_clock.ogg"

// EmergencyInfo carries everything the formatters need for one emergency
// turn. Built once per request and never mutated afterwards.
type EmergencyInfo struct {
	AlarmSound      string
	HospitalName    string
	HospitalAddress string
	UserName        string
	UserAddress     string
	Coordinates     string
	DurationTraffic string
}

// ErrorNotify is the spoken apology used whenever a handler fails.
const ErrorNotify = `<speak>
  Oh my god!
  <break time="1s"/>
  This has never happened before.
  Please ask me again later.
</speak>`

// PermissionContext explains why name and location are being requested.
const PermissionContext = "In order to help you find the closest hospital in the best way"

// RenderEmergencySpeech produces the SSML spoken back to the user after the
// emergency contacts have been notified.
func RenderEmergencySpeech(info EmergencyInfo) string {
	return fmt.Sprintf(`<speak>Emergency Notification
  <audio src="%s">emergency alarm</audio>
  <emphasis level="strong">
    Hi %s, you are being helped.
    I've sent your information to your contacts.
    They will be helping you soon. Your location is at "%s",
    the closest hospital "%s" is at %s
    where is %s away to your location.
    What happened?
  </emphasis>
</speak>`,
		info.AlarmSound, info.UserName, info.UserAddress,
		info.HospitalName, info.HospitalAddress, info.DurationTraffic)
}

// RenderContactText produces the plain-text message pushed to the linked
// LINE room.
func RenderContactText(info EmergencyInfo) string {
	return fmt.Sprintf(`Emergency Notification From %s.
%s needs your help immediately!
%s is at "%s", the closest hospital is
"%s" at %s.
The hospital is %s away from %s's location.`,
		info.UserName, info.UserName, info.UserName, info.UserAddress,
		info.HospitalName, info.HospitalAddress,
		info.DurationTraffic, info.UserName)
}

// RoomVerificationText is pushed into a candidate room before the link is
// confirmed, so the user can see the bot reached the right place.
const RoomVerificationText = "Urgent Helper here. This room was chosen as an emergency contact. " +
	"If that sounds right, confirm on your Assistant to finish linking."

// SetupCardContent describes the link-setup card shown on surfaces with a
// screen.
type SetupCardContent struct {
	Title       string
	Text        string
	ButtonTitle string
	ButtonURL   string
}

// SetupCard returns the onboarding card for linking a LINE room.
func SetupCard() SetupCardContent {
	return SetupCardContent{
		Title: "Link an emergency contact room",
		Text: "1. Invite the Urgent Helper bot to your LINE group.\n" +
			"2. Type \"room id\" in the group and copy the id it replies with.\n" +
			"3. Come back and say \"store line\" followed by that id.",
		ButtonTitle: "Add the LINE bot",
		ButtonURL:   "https://line.me/R/ti/p/@urgenthelper",
	}
}

// SetupSteps is the spoken form of the onboarding guidance.
func SetupSteps() string {
	return "No emergency contact room is linked yet. " +
		"Invite the Urgent Helper bot to your LINE group, type \"room id\" there, " +
		"then tell me to store line with the id it gives you."
}

// Greeting welcomes a user whose room is already linked.
func Greeting() string {
	return "Welcome back. Your emergency contact room is linked. " +
		"Say \"call help\" whenever you need me."
}

// ConfirmLinkPrompt asks the user to confirm a candidate room id.
func ConfirmLinkPrompt(roomID string) string {
	return fmt.Sprintf("I sent a test message to room %s. Should I use it as your emergency contact room?", roomID)
}

// LinkedReply confirms a persisted room link.
const LinkedReply = "Done. Your emergency contact room is linked. Say \"call help\" whenever you need me."

// LinkReprompt is used while a candidate room is still awaiting confirmation.
const LinkReprompt = "Your room link is not confirmed yet. Should I use the room I just messaged as your emergency contact?"

// InvalidRoomReply is the targeted correction for a malformed room id.
const InvalidRoomReply = "That doesn't look like a LINE room id. " +
	"Check the id the bot replied with in your group. It starts with R or C followed by 32 characters."

// RoomUnreachableReply is the targeted correction when the verification push
// cannot be delivered.
const RoomUnreachableReply = "I couldn't reach that room. " +
	"Make sure the Urgent Helper bot is still a member of the group, then try again."

// DeleteConfirmPrompt double-checks the destructive reset.
const DeleteConfirmPrompt = "This removes your linked room and everything I remember about you. Are you sure?"

// DeletedReply closes the conversation after a confirmed reset.
const DeletedReply = "All of your data is gone. Add a room link again whenever you want my help."

// DeleteCancelledReply keeps the state untouched after a declined reset.
const DeleteCancelledReply = "Okay, nothing was deleted."

// FallbackReply is used for intents this webhook does not handle.
const FallbackReply = "Sorry, I can only link a LINE contact room and call for help. Try \"call help\"."
