package models

import "time"

// Message represents a direct chat message between two users.
type Message struct {
	ID              string    `json:"id,omitempty"` // ULID, assigned on publish
	Sender          string    `json:"sender"`
	Receiver        string    `json:"receiver"`
	Content         string    `json:"content"`
	TimeStamp       time.Time `json:"timeStamp"`
	SenderName      string    `json:"senderName"`
	ReceiverName    string    `json:"receiverName"`
	DeletedSender   bool      `json:"deletedSender"`
	DeletedReceiver bool      `json:"deletedReceiver"`
}

// CommunityMessage represents an ephemeral message broadcast to a region.
type CommunityMessage struct {
	Content          string    `json:"content"`
	Timestamp        time.Time `json:"timestamp"`
	SenderName       string    `json:"senderName"`
	Region           string    `json:"region"`
	OpenSessionCount int       `json:"openSessionCount"` // stamped at delivery, never stored
}

// UnreadNotice is pushed once to a client that connects with unread messages.
type UnreadNotice struct {
	Type  string `json:"type"` // "unread"
	Count int64  `json:"count"`
}

// NewUnreadNotice builds the notice for count missed messages.
func NewUnreadNotice(count int64) UnreadNotice {
	return UnreadNotice{Type: "unread", Count: count}
}
