package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event tags sent by the message service.
const (
	EventMessageReceived     = "message_received"
	EventTypingStart         = "typing_start"
	EventTypingStop          = "typing_stop"
	EventPresenceUpdate      = "presence_update"
	EventConversationUpdated = "conversation_updated"
)

// Message is the wire envelope in both directions.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Type     string `json:"type"`
}

type ChatMessage struct {
	ID          string       `json:"id"`
	SenderID    string       `json:"senderId"`
	Content     string       `json:"content"`
	Type        string       `json:"type"` // text, image or file
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

type MessageReceivedPayload struct {
	ConversationID string      `json:"conversationId"`
	Message        ChatMessage `json:"message"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId,omitempty"`
	Username       string `json:"username,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`
}

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
	PresenceAway    PresenceStatus = "away"
)

type PresencePayload struct {
	UserID    string         `json:"userId,omitempty"`
	Status    PresenceStatus `json:"status"`
	LastSeen  string         `json:"lastSeen,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

type ConversationMember struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

type Conversation struct {
	ID            string               `json:"id"`
	Type          string               `json:"type"` // DM or GROUP
	Title         string               `json:"title"`
	Members       []ConversationMember `json:"members"`
	LastMessageAt time.Time            `json:"lastMessageAt"`
	UnreadCount   int                  `json:"unreadCount"`
}

type ConversationUpdatedPayload struct {
	ConversationID string        `json:"conversationId"`
	Action         string        `json:"action"` // created, updated or deleted
	Conversation   *Conversation `json:"conversation,omitempty"`
}

// Decode unmarshals a listener payload into T.
func Decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("[realtime Decode] %w", err)
	}
	return v, nil
}
