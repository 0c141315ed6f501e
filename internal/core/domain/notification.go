package domain

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// NotificationKind discriminates every envelope that crosses the wire.
type NotificationKind string

const (
	KindUserState       NotificationKind = "USER_STATE"
	KindOnlineUsers     NotificationKind = "ONLINE_USERS"
	KindIncomingMessage NotificationKind = "INCOMING_MESSAGE"
	KindIncomingCall    NotificationKind = "INCOMING_CALL"
	KindRejectedCall    NotificationKind = "REJECTED_CALL"
	KindCancelledCall   NotificationKind = "CANCELLED_CALL"
	KindAcceptedCall    NotificationKind = "ACCEPTED_CALL"
)

// Metadata keys. Values are strings interpreted per kind.
const (
	MetaRoom    = "ROOM"
	MetaUser    = "USER"
	MetaState   = "STATE"
	MetaMessage = "MESSAGE"
	MetaUsers   = "USERS"
	MetaName    = "NAME"
)

// Notification is the envelope carried on every channel. The server encodes
// metadata as a JSON object while clients historically send it as a JSON
// string; Metadata is always a decoded map on this side of the boundary.
type Notification struct {
	Content  string
	Type     NotificationKind
	Metadata map[string]string
	Time     time.Time
}

// wireNotification matches the wire layout: content may be null, metadata may
// be either an object or a string holding serialized JSON.
type wireNotification struct {
	Content  *string          `json:"content"`
	Type     NotificationKind `json:"type"`
	Metadata json.RawMessage  `json:"metadata,omitempty"`
	Time     *time.Time       `json:"time,omitempty"`
}

// MarshalJSON serializes metadata as a JSON string, the form the server's
// inbound DTO expects.
func (n Notification) MarshalJSON() ([]byte, error) {
	w := wireNotification{Type: n.Type}
	if n.Content != "" {
		w.Content = &n.Content
	}
	if !n.Time.IsZero() {
		t := n.Time
		w.Time = &t
	}
	if n.Metadata != nil {
		inner, err := json.Marshal(n.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		quoted, err := json.Marshal(string(inner))
		if err != nil {
			return nil, fmt.Errorf("quote metadata: %w", err)
		}
		w.Metadata = quoted
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts metadata as either an object or a JSON string and
// always leaves a decoded map behind.
func (n *Notification) UnmarshalJSON(data []byte) error {
	var w wireNotification
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	n.Type = w.Type
	n.Content = ""
	if w.Content != nil {
		n.Content = *w.Content
	}
	n.Time = time.Time{}
	if w.Time != nil {
		n.Time = *w.Time
	}
	meta, err := DecodeMetadata(w.Metadata)
	if err != nil {
		return err
	}
	n.Metadata = meta
	return nil
}

// DecodeMetadata turns the raw metadata field into a key/value map. A nil or
// null field yields a nil map.
func DecodeMetadata(raw json.RawMessage) (map[string]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err == nil {
		return m, nil
	}
	// String form: the map is serialized once more inside a JSON string.
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("metadata is neither object nor string: %w", err)
	}
	if s == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decode metadata string: %w", err)
	}
	return m, nil
}

// Meta returns the metadata value for key, or "" when absent.
func (n Notification) Meta(key string) string {
	if n.Metadata == nil {
		return ""
	}
	return n.Metadata[key]
}

// DecodeUser decodes the USER metadata value, a JSON-encoded user reference.
func DecodeUser(s string) (User, error) {
	var u User
	if s == "" {
		return u, nil
	}
	if err := json.Unmarshal([]byte(s), &u); err != nil {
		return u, fmt.Errorf("decode user: %w", err)
	}
	return u, nil
}

// DecodeUserList decodes the USERS metadata value, a JSON array of presence
// records.
func DecodeUserList(s string) ([]UserSocket, error) {
	if s == "" {
		return nil, nil
	}
	var list []UserSocket
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return nil, fmt.Errorf("decode user list: %w", err)
	}
	return list, nil
}

// EncodeUserList serializes presence records for the USERS metadata value.
func EncodeUserList(list []UserSocket) string {
	b, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// EncodeUser serializes a user reference for the USER metadata value.
func EncodeUser(u User) string {
	b, err := json.Marshal(u)
	if err != nil {
		return ""
	}
	return string(b)
}
