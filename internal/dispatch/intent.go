package dispatch

// IntentKind enumerates every intent this webhook handles. Dispatch is an
// exhaustive switch over these variants; anything unmapped is
// IntentUnknown and gets the fallback reply.
type IntentKind int

const (
	IntentUnknown IntentKind = iota
	IntentWelcome
	IntentCallHelp
	IntentPermission
	IntentStoreLine
	IntentConfirmation
	IntentDeleteData
)

func (k IntentKind) String() string {
	switch k {
	case IntentWelcome:
		return "welcome"
	case IntentCallHelp:
		return "call_help"
	case IntentPermission:
		return "permission"
	case IntentStoreLine:
		return "store_line"
	case IntentConfirmation:
		return "confirmation"
	case IntentDeleteData:
		return "delete_all_data"
	default:
		return "unknown"
	}
}

// ClassifyIntent maps a Dialogflow intent display name to its variant.
func ClassifyIntent(displayName string) IntentKind {
	switch displayName {
	case "Default Welcome Intent":
		return IntentWelcome
	case "call_help":
		return IntentCallHelp
	case "actions_intent_PERMISSION":
		return IntentPermission
	case "store_line":
		return IntentStoreLine
	case "actions_intent_CONFIRMATION":
		return IntentConfirmation
	case "delete_all_data":
		return IntentDeleteData
	default:
		return IntentUnknown
	}
}
