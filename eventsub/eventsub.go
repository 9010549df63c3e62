// Package eventsub contains the Twitch EventSub webhook message model and the
// HMAC signature verification scheme.
// See https://dev.twitch.tv/docs/eventsub/handling-webhook-events
package eventsub

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// EventSub request headers. Header lookup is case-insensitive per net/http.
const (
	HeaderMessageID        = "Twitch-Eventsub-Message-Id"
	HeaderMessageTimestamp = "Twitch-Eventsub-Message-Timestamp"
	HeaderMessageSignature = "Twitch-Eventsub-Message-Signature"
	HeaderMessageType      = "Twitch-Eventsub-Message-Type"
)

// Message types.
const (
	MessageTypeVerification = "webhook_callback_verification"
	MessageTypeNotification = "notification"
	MessageTypeRevocation   = "revocation"
)

// Subscription types we act on. Anything else is acknowledged and dropped.
const (
	SubStreamOnline  = "stream.online"
	SubStreamOffline = "stream.offline"
	SubChannelUpdate = "channel.update"
)

const signaturePrefix = "sha256="

// Message is the envelope common to all EventSub webhook bodies. Event stays raw
// because its shape depends on Subscription.Type.
type Message struct {
	Challenge    string          `json:"challenge"`
	Subscription Subscription    `json:"subscription"`
	Event        json.RawMessage `json:"event"`
}

type Subscription struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	Version string `json:"version"`
}

// StreamEvent covers the fields shared by stream.online, stream.offline and
// channel.update events. Title is a pointer: stream.offline carries none.
type StreamEvent struct {
	BroadcasterUserID    string  `json:"broadcaster_user_id"`
	BroadcasterUserLogin string  `json:"broadcaster_user_login"`
	BroadcasterUserName  string  `json:"broadcaster_user_name"`
	Title                *string `json:"title"`
}

// ComputeSignature returns the expected signature header value for a message:
// sha256= followed by hex(HMAC-SHA256(secret, messageID + timestamp + rawBody)).
func ComputeSignature(secret, messageID, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the signature header against the recomputed HMAC using a
// constant-time comparison. A short-circuiting string compare would leak how many
// leading bytes of the attacker's guess were correct.
func VerifySignature(secret, messageID, timestamp, signature string, body []byte) bool {
	expected := ComputeSignature(secret, messageID, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ParseMessage decodes a verified raw body into the envelope.
func ParseMessage(body []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("parse eventsub message: %w", err)
	}
	return &m, nil
}

// ParseStreamEvent decodes the event payload of a notification.
func (m *Message) ParseStreamEvent() (*StreamEvent, error) {
	var ev StreamEvent
	if err := json.Unmarshal(m.Event, &ev); err != nil {
		return nil, fmt.Errorf("parse %s event: %w", m.Subscription.Type, err)
	}
	return &ev, nil
}
