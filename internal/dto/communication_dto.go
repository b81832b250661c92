package dto

import (
	"time"

	"github.com/noah-isme/healthwatch-api/internal/models"
)

// NotificationResponse represents notification data returned to clients.
type NotificationResponse struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	Status     string     `json:"status"`
	ActionLink string     `json:"actionLink,omitempty"`
	ContentID  string     `json:"contentId,omitempty"`
	CreatedAt  *time.Time `json:"createdAt"`
}

// NewNotificationResponse converts a notification record to DTO.
func NewNotificationResponse(record models.NotificationRecord) NotificationResponse {
	return NotificationResponse{
		ID:         record.ID,
		Type:       record.Type,
		Title:      record.Title,
		Message:    record.Message,
		Status:     string(record.Status),
		ActionLink: record.ActionLink,
		ContentID:  record.ContentID,
		CreatedAt:  record.CreatedAt,
	}
}

// NotificationSnapshotResponse is one full notification snapshot with its
// derived unread counter.
type NotificationSnapshotResponse struct {
	Items  []NotificationResponse `json:"items"`
	Unread int                    `json:"unread"`
}

// NewNotificationSnapshot converts records into a snapshot payload. Deleted
// notifications are hidden; unread is counted over what is returned.
func NewNotificationSnapshot(records []models.NotificationRecord) NotificationSnapshotResponse {
	snapshot := NotificationSnapshotResponse{Items: make([]NotificationResponse, 0, len(records))}
	for _, record := range records {
		if record.Status == models.NotificationDeleted {
			continue
		}
		if record.IsUnread() {
			snapshot.Unread++
		}
		snapshot.Items = append(snapshot.Items, NewNotificationResponse(record))
	}
	return snapshot
}

// ChatCreateRequest opens a chat with other users.
type ChatCreateRequest struct {
	Participants []ParticipantInput `json:"participants" validate:"required,min=1,max=20,dive"`
}

// ParticipantInput identifies a chat participant.
type ParticipantInput struct {
	UserID string `json:"userId" validate:"required,max=128"`
	Name   string `json:"name" validate:"omitempty,max=120"`
	Role   string `json:"role" validate:"omitempty,oneof=health_worker admin user"`
}

// MessageSendRequest represents the payload sent from clients to post a chat message.
type MessageSendRequest struct {
	Content string `json:"content" validate:"required,min=1,max=4000"`
}

// DirectMessageRequest sends a message to one user outside an existing chat.
type DirectMessageRequest struct {
	ReceiverID   string `json:"receiverId" validate:"required,max=128"`
	ReceiverName string `json:"receiverName" validate:"omitempty,max=120"`
	Content      string `json:"content" validate:"required,min=1,max=4000"`
}

// PresenceRequest updates the caller's presence.
type PresenceRequest struct {
	Status string `json:"status" validate:"required,oneof=online away offline"`
}

// MessageResponse is the serialized representation of a chat message.
type MessageResponse struct {
	ID         string        `json:"id"`
	ChatID     string        `json:"chatId"`
	Sender     models.Author `json:"sender"`
	ReceiverID string        `json:"receiverId,omitempty"`
	Content    string        `json:"content"`
	Status     string        `json:"status"`
	Timestamp  *time.Time    `json:"timestamp"`
}

func NewMessageResponse(record models.MessageRecord) MessageResponse {
	return MessageResponse{
		ID:         record.ID,
		ChatID:     record.ChatID,
		Sender:     record.Sender,
		ReceiverID: record.ReceiverID,
		Content:    record.Content,
		Status:     record.Status,
		Timestamp:  record.Timestamp,
	}
}

// MessageSnapshotResponse is one full message snapshot of a chat. Unread
// counts messages from others the viewer has not read.
type MessageSnapshotResponse struct {
	ChatID string            `json:"chatId"`
	Items  []MessageResponse `json:"items"`
	Unread int               `json:"unread"`
}

func NewMessageSnapshot(chatID string, records []models.MessageRecord, unread int) MessageSnapshotResponse {
	snapshot := MessageSnapshotResponse{ChatID: chatID, Items: make([]MessageResponse, 0, len(records)), Unread: unread}
	for _, record := range records {
		snapshot.Items = append(snapshot.Items, NewMessageResponse(record))
	}
	return snapshot
}

// ChatResponse is a chat as listed to a participant.
type ChatResponse struct {
	ID           string               `json:"id"`
	Participants []models.Participant `json:"participants"`
	LastMessage  models.LastMessage   `json:"lastMessage"`
	Status       string               `json:"status"`
	CreatedAt    *time.Time           `json:"createdAt"`
	UpdatedAt    *time.Time           `json:"updatedAt"`
}

func NewChatResponse(record models.ChatRecord) ChatResponse {
	return ChatResponse{
		ID:           record.ID,
		Participants: record.Participants,
		LastMessage:  record.LastMessage,
		Status:       record.Status,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
}

func NewChatResponseSlice(records []models.ChatRecord) []ChatResponse {
	out := make([]ChatResponse, 0, len(records))
	for _, record := range records {
		out = append(out, NewChatResponse(record))
	}
	return out
}

// Chat socket frame types.
const (
	ChatFrameMessage  = "message"
	ChatFrameSwitch   = "switch"
	ChatFrameRead     = "read"
	ChatFrameSnapshot = "snapshot"
	ChatFrameAck      = "ack"
	ChatFrameError    = "error"
)

// ChatClientFrame is a frame sent by a chat socket client. Message frames
// post content to the open chat; switch frames open another chat.
type ChatClientFrame struct {
	Type    string `json:"type" validate:"required,oneof=message switch read"`
	ChatID  string `json:"chatId" validate:"required_if=Type switch,max=128"`
	Content string `json:"content" validate:"required_if=Type message,max=4000"`
}

// ChatServerFrame is pushed to chat socket clients.
type ChatServerFrame struct {
	Type     string                   `json:"type"`
	Snapshot *MessageSnapshotResponse `json:"snapshot,omitempty"`
	Message  *MessageResponse         `json:"message,omitempty"`
	Error    *FrameError              `json:"error,omitempty"`
}

// FrameError mirrors the error envelope of the REST API.
type FrameError struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}
