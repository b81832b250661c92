package repository

import (
	"context"
	"errors"
	"time"

	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/normalize"
	"github.com/noah-isme/healthwatch-api/internal/store"
)

// ChatRepository persists chats and their messages.
type ChatRepository interface {
	// UserChatsQuery selects every chat the user participates in.
	UserChatsQuery(userID string) store.Query
	// MessagesQuery selects a chat's messages, oldest first.
	MessagesQuery(chatID string) store.Query
	Create(ctx context.Context, chat models.ChatRecord) (models.ChatRecord, error)
	// Ensure creates the chat under id unless it already exists.
	Ensure(ctx context.Context, id string, chat models.ChatRecord) (models.ChatRecord, error)
	FindByID(ctx context.Context, id string) (models.ChatRecord, error)
	ListForUser(ctx context.Context, userID string) ([]models.ChatRecord, error)
	ListMessages(ctx context.Context, chatID string) ([]models.MessageRecord, error)
	SaveMessage(ctx context.Context, message models.MessageRecord) (models.MessageRecord, error)
	UpdateLastMessage(ctx context.Context, chatID string, last models.LastMessage) error
	MarkMessageRead(ctx context.Context, messageID string) error
	SetStatus(ctx context.Context, chatID, status string) error
	SetPresence(ctx context.Context, chatID, userID, presence string) error
}

type chatRepository struct {
	store store.DocumentStore
}

// NewChatRepository constructs a chat repository backed by the document store.
func NewChatRepository(documents store.DocumentStore) ChatRepository {
	return &chatRepository{store: documents}
}

func (r *chatRepository) UserChatsQuery(userID string) store.Query {
	return store.Query{
		Collection:    models.CollectionChats,
		ArrayContains: &store.Filter{Field: "participantIds", Value: userID},
		OrderBy:       "updatedAt",
		Direction:     store.Desc,
	}
}

func (r *chatRepository) MessagesQuery(chatID string) store.Query {
	return store.Query{
		Collection: models.CollectionMessages,
		Where:      []store.Filter{{Field: "chatId", Value: chatID}},
		OrderBy:    "timestamp",
		Direction:  store.Asc,
	}
}

func (r *chatRepository) Create(ctx context.Context, chat models.ChatRecord) (models.ChatRecord, error) {
	chat = stampChat(chat)
	id, err := r.store.Create(ctx, models.CollectionChats, chatDocument(chat))
	if err != nil {
		return models.ChatRecord{}, err
	}
	chat.ID = id
	return chat, nil
}

func (r *chatRepository) Ensure(ctx context.Context, id string, chat models.ChatRecord) (models.ChatRecord, error) {
	existing, err := r.FindByID(ctx, id)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.ChatRecord{}, err
	}

	chat = stampChat(chat)
	if err := r.store.Set(ctx, models.CollectionChats, id, chatDocument(chat)); err != nil {
		return models.ChatRecord{}, err
	}
	chat.ID = id
	return chat, nil
}

func (r *chatRepository) FindByID(ctx context.Context, id string) (models.ChatRecord, error) {
	doc, err := r.store.Get(ctx, models.CollectionChats, id)
	if err != nil {
		return models.ChatRecord{}, err
	}
	return normalize.Chat(doc), nil
}

func (r *chatRepository) ListForUser(ctx context.Context, userID string) ([]models.ChatRecord, error) {
	docs, err := r.store.Query(ctx, r.UserChatsQuery(userID))
	if err != nil {
		return nil, err
	}
	chats := make([]models.ChatRecord, 0, len(docs))
	for _, doc := range docs {
		chats = append(chats, normalize.Chat(doc))
	}
	return chats, nil
}

func (r *chatRepository) ListMessages(ctx context.Context, chatID string) ([]models.MessageRecord, error) {
	docs, err := r.store.Query(ctx, r.MessagesQuery(chatID))
	if err != nil {
		return nil, err
	}
	messages := make([]models.MessageRecord, 0, len(docs))
	for _, doc := range docs {
		messages = append(messages, normalize.Message(doc))
	}
	return messages, nil
}

func (r *chatRepository) SaveMessage(ctx context.Context, message models.MessageRecord) (models.MessageRecord, error) {
	now := time.Now().UTC()
	message.Timestamp = &now
	if message.Status == "" {
		message.Status = models.MessageSent
	}

	id, err := r.store.Create(ctx, models.CollectionMessages, map[string]any{
		"chatId": message.ChatID,
		"sender": map[string]any{
			"id":   message.Sender.ID,
			"name": message.Sender.Name,
			"role": message.Sender.Role,
		},
		"receiverId": message.ReceiverID,
		"content":    message.Content,
		"status":     message.Status,
		"timestamp":  now,
	})
	if err != nil {
		return models.MessageRecord{}, err
	}
	message.ID = id
	return message, nil
}

func (r *chatRepository) UpdateLastMessage(ctx context.Context, chatID string, last models.LastMessage) error {
	now := time.Now().UTC()
	timestamp := now
	if last.Timestamp != nil {
		timestamp = *last.Timestamp
	}
	return r.store.Update(ctx, models.CollectionChats, chatID, map[string]any{
		"lastMessage": map[string]any{
			"content":   last.Content,
			"senderId":  last.SenderID,
			"timestamp": timestamp,
		},
		"updatedAt": now,
	})
}

func (r *chatRepository) MarkMessageRead(ctx context.Context, messageID string) error {
	return r.store.Update(ctx, models.CollectionMessages, messageID, map[string]any{"status": models.MessageRead})
}

func (r *chatRepository) SetStatus(ctx context.Context, chatID, status string) error {
	return r.store.Update(ctx, models.CollectionChats, chatID, map[string]any{
		"status":    status,
		"updatedAt": time.Now().UTC(),
	})
}

func (r *chatRepository) SetPresence(ctx context.Context, chatID, userID, presence string) error {
	return r.store.Update(ctx, models.CollectionChats, chatID, map[string]any{"presence." + userID: presence})
}

func stampChat(chat models.ChatRecord) models.ChatRecord {
	now := time.Now().UTC()
	chat.CreatedAt = &now
	chat.UpdatedAt = &now
	if chat.Status == "" {
		chat.Status = models.ChatActive
	}
	return chat
}

func chatDocument(chat models.ChatRecord) map[string]any {
	participants := make([]any, 0, len(chat.Participants))
	ids := make([]any, 0, len(chat.Participants))
	presence := make(map[string]any, len(chat.Participants))
	for _, participant := range chat.Participants {
		participants = append(participants, map[string]any{
			"userId": participant.UserID,
			"role":   participant.Role,
			"name":   participant.Name,
		})
		ids = append(ids, participant.UserID)
		status := participant.Presence
		if status == "" {
			status = models.PresenceOffline
		}
		presence[participant.UserID] = status
	}

	data := map[string]any{
		"participants":   participants,
		"participantIds": ids,
		"presence":       presence,
		"status":         chat.Status,
	}
	if chat.CreatedAt != nil {
		data["createdAt"] = *chat.CreatedAt
	}
	if chat.UpdatedAt != nil {
		data["updatedAt"] = *chat.UpdatedAt
	}
	return data
}
