package models

import "time"

// Collections backing notifications, chats and presence.
const (
	CollectionNotifications = "notifications"
	CollectionChats         = "chats"
	CollectionMessages      = "messages"
	CollectionUsers         = "users"
)

// NotificationStatus follows unread -> read -> archived -> deleted and never reverts.
type NotificationStatus string

const (
	NotificationUnread   NotificationStatus = "unread"
	NotificationRead     NotificationStatus = "read"
	NotificationArchived NotificationStatus = "archived"
	NotificationDeleted  NotificationStatus = "deleted"
)

// Rank orders statuses along the lifecycle; unknown statuses rank as unread.
func (s NotificationStatus) Rank() int {
	switch s {
	case NotificationRead:
		return 1
	case NotificationArchived:
		return 2
	case NotificationDeleted:
		return 3
	default:
		return 0
	}
}

// CanTransitionTo reports whether moving to next keeps the lifecycle forward-only.
func (s NotificationStatus) CanTransitionTo(next NotificationStatus) bool {
	return next.Rank() >= s.Rank()
}

// NotificationRecord is a per-user notification.
type NotificationRecord struct {
	ID         string             `json:"id"`
	UserID     string             `json:"userId"`
	Type       string             `json:"type"`
	Title      string             `json:"title"`
	Message    string             `json:"message"`
	Status     NotificationStatus `json:"status"`
	ActionLink string             `json:"actionLink"`
	ContentID  string             `json:"contentId"`
	CreatedAt  *time.Time         `json:"createdAt"`
}

func (n NotificationRecord) RecordID() string       { return n.ID }
func (n NotificationRecord) RecordCategory() string { return n.Type }
func (n NotificationRecord) SearchText() []string   { return []string{n.Title, n.Message} }

// IsUnread is used to derive unread counters from snapshots.
func (n NotificationRecord) IsUnread() bool { return n.Status == NotificationUnread }

// Message statuses.
const (
	MessageSent = "sent"
	MessageRead = "read"
)

// MessageRecord is immutable once written apart from its status.
type MessageRecord struct {
	ID         string     `json:"id"`
	ChatID     string     `json:"chatId"`
	Sender     Author     `json:"sender"`
	ReceiverID string     `json:"receiverId"`
	Content    string     `json:"content"`
	Timestamp  *time.Time `json:"timestamp"`
	Status     string     `json:"status"`
}

func (m MessageRecord) RecordID() string { return m.ID }

// Presence values.
const (
	PresenceOnline  = "online"
	PresenceAway    = "away"
	PresenceOffline = "offline"
)

// Chat statuses.
const (
	ChatActive = "active"
	ChatClosed = "closed"
)

// Participant is a member of a chat.
type Participant struct {
	UserID   string `json:"userId"`
	Role     string `json:"role"`
	Name     string `json:"name"`
	Presence string `json:"presence"`
}

// LastMessage caches the newest message of a chat for list views.
type LastMessage struct {
	Content   string     `json:"content"`
	SenderID  string     `json:"senderId"`
	Timestamp *time.Time `json:"timestamp"`
}

// ChatRecord is a conversation between participants.
type ChatRecord struct {
	ID           string        `json:"id"`
	Participants []Participant `json:"participants"`
	LastMessage  LastMessage   `json:"lastMessage"`
	Status       string        `json:"status"`
	CreatedAt    *time.Time    `json:"createdAt"`
	UpdatedAt    *time.Time    `json:"updatedAt"`
}

func (c ChatRecord) RecordID() string { return c.ID }

// HasParticipant reports whether userID belongs to the chat.
func (c ChatRecord) HasParticipant(userID string) bool {
	for _, participant := range c.Participants {
		if participant.UserID == userID {
			return true
		}
	}
	return false
}
