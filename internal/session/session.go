package session

import (
	"encoding/json"
	"errors"
	"regexp"
)

// ErrInvalidRoomID is returned when a candidate room id does not match the
// LINE room/group id shape.
var ErrInvalidRoomID = errors.New("invalid room id")

// LINE group ids start with "C", one-on-one room ids with "R", followed by a
// 32 character lowercase hex body.
var roomIDPattern = regexp.MustCompile(`^[RC][0-9a-f]{32}$`)

// IsValidRoomID reports whether id looks like a LINE room or group id.
func IsValidRoomID(id string) bool {
	return roomIDPattern.MatchString(id)
}

// Data is the per-user storage slot owned by the Assistant platform. It is
// decoded from the webhook request's userStorage string and written back into
// every response, so handlers always receive an explicit copy instead of
// reaching into ambient state.
type Data struct {
	RoomID        string `json:"roomId,omitempty"`
	PendingRoomID string `json:"pendingRoomId,omitempty"`
	PendingDelete bool   `json:"pendingDelete,omitempty"`
}

// Decode parses a userStorage payload. Empty or malformed storage yields a
// fresh Data so a corrupted slot never breaks the conversation.
func Decode(userStorage string) *Data {
	d := &Data{}
	if userStorage == "" {
		return d
	}
	if err := json.Unmarshal([]byte(userStorage), d); err != nil {
		return &Data{}
	}
	return d
}

// Encode serializes the data for the response's userStorage field. An empty
// Data encodes to ""; note an empty userStorage field leaves the platform's
// persisted copy unchanged, so callers must request a storage reset to
// actually wipe it.
func Encode(d *Data) string {
	if d == nil || (*d == Data{}) {
		return ""
	}
	b, err := json.Marshal(d)
	if err != nil {
		return ""
	}
	return string(b)
}

// HasRoomID reports whether a valid room is linked.
func (d *Data) HasRoomID() bool {
	return IsValidRoomID(d.RoomID)
}

// SetRoomID links a room after validating its shape.
func (d *Data) SetRoomID(id string) error {
	if !IsValidRoomID(id) {
		return ErrInvalidRoomID
	}
	d.RoomID = id
	return nil
}

// ClearAll resets the entire per-user storage object, not just the room id.
func (d *Data) ClearAll() {
	*d = Data{}
}
