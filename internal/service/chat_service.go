package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/healthwatch-api/internal/apperror"
	"github.com/noah-isme/healthwatch-api/internal/dto"
	"github.com/noah-isme/healthwatch-api/internal/feed"
	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/observability"
	"github.com/noah-isme/healthwatch-api/internal/repository"
	"github.com/noah-isme/healthwatch-api/internal/store"
)

const (
	chatSendBufferSize = 32
	chatPingInterval   = 30 * time.Second
	directChatPrefix   = "dm_"
)

// ChatConn is the part of a websocket connection a chat session uses.
type ChatConn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// ChatConnectionOptions wraps metadata extracted during the HTTP upgrade.
type ChatConnectionOptions struct {
	Actor         models.Actor
	ChatID        string
	CorrelationID string
	Context       context.Context
}

// ChatService manages chats, their messages and participant presence.
type ChatService interface {
	Create(ctx context.Context, actor models.Actor, payload dto.ChatCreateRequest) (dto.ChatResponse, error)
	List(ctx context.Context, actor models.Actor) ([]dto.ChatResponse, error)
	// Subscribe follows the actor's chat list. The caller must Close it.
	Subscribe(ctx context.Context, actor models.Actor) (*feed.Subscriber[models.ChatRecord], error)
	Messages(ctx context.Context, chatID string, actor models.Actor) (dto.MessageSnapshotResponse, error)
	Send(ctx context.Context, chatID string, actor models.Actor, payload dto.MessageSendRequest) (dto.MessageResponse, error)
	SendDirect(ctx context.Context, actor models.Actor, payload dto.DirectMessageRequest) (dto.MessageResponse, error)
	MarkRead(ctx context.Context, chatID string, actor models.Actor) (int, error)
	Close(ctx context.Context, chatID string, actor models.Actor) (dto.ChatResponse, error)
	SetPresence(ctx context.Context, actor models.Actor, payload dto.PresenceRequest) error
	ServeConnection(conn ChatConn, opts ChatConnectionOptions)
}

type chatService struct {
	repo      repository.ChatRepository
	users     repository.UserRepository
	documents store.DocumentStore
	messages  *feed.Fetcher[models.MessageRecord]
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	plain     *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewChatService creates a chat service instance.
func NewChatService(repo repository.ChatRepository, users repository.UserRepository, documents store.DocumentStore, validate *validator.Validate, logger zerolog.Logger) ChatService {
	if validate == nil {
		validate = validator.New()
	}
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")

	componentLogger := logger.With().Str("component", "chat_service").Logger()
	return &chatService{
		repo:      repo,
		users:     users,
		documents: documents,
		messages:  feed.NewFetcher(documents, feed.MessageDecoder, componentLogger),
		validator: validate,
		sanitizer: sanitizer,
		plain:     bluemonday.StrictPolicy(),
		logger:    componentLogger,
		tracer:    otel.Tracer("github.com/noah-isme/healthwatch-api/internal/service/chat"),
	}
}

func (s *chatService) Create(ctx context.Context, actor models.Actor, payload dto.ChatCreateRequest) (dto.ChatResponse, error) {
	if actor.ID == "" {
		return dto.ChatResponse{}, apperror.Unauthorized("sign in to chat")
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.ChatResponse{}, apperror.Validation("invalid chat payload", err)
	}

	participants := []models.Participant{participantFor(actor)}
	seen := map[string]struct{}{actor.ID: {}}
	for _, input := range payload.Participants {
		userID := strings.TrimSpace(input.UserID)
		if _, ok := seen[userID]; ok || userID == "" {
			continue
		}
		seen[userID] = struct{}{}
		role := input.Role
		if role == "" {
			role = models.RoleUser
		}
		participants = append(participants, models.Participant{
			UserID: userID,
			Name:   strings.TrimSpace(s.plain.Sanitize(input.Name)),
			Role:   role,
		})
	}
	if len(participants) < 2 {
		return dto.ChatResponse{}, apperror.Validation("a chat needs at least one other participant", nil)
	}

	chat, err := s.repo.Create(ctx, models.ChatRecord{Participants: participants})
	if err != nil {
		return dto.ChatResponse{}, apperror.Mutation("Could not start the chat. Please try again.", err)
	}
	return dto.NewChatResponse(chat), nil
}

func (s *chatService) List(ctx context.Context, actor models.Actor) ([]dto.ChatResponse, error) {
	if actor.ID == "" {
		return nil, apperror.Unauthorized("sign in to chat")
	}
	chats, err := s.repo.ListForUser(ctx, actor.ID)
	if err != nil {
		return nil, apperror.Retrieval("Could not load chats. Please try again.", err)
	}
	return dto.NewChatResponseSlice(chats), nil
}

func (s *chatService) Subscribe(ctx context.Context, actor models.Actor) (*feed.Subscriber[models.ChatRecord], error) {
	if actor.ID == "" {
		return nil, apperror.Unauthorized("sign in to chat")
	}
	subscriber := feed.NewSubscriber(s.documents, feed.ChatDecoder, "chats", nil, s.logger)
	if err := subscriber.Switch(ctx, s.repo.UserChatsQuery(actor.ID)); err != nil {
		subscriber.Close()
		return nil, err
	}
	return subscriber, nil
}

func (s *chatService) Messages(ctx context.Context, chatID string, actor models.Actor) (dto.MessageSnapshotResponse, error) {
	if _, err := s.authorize(ctx, chatID, actor); err != nil {
		return dto.MessageSnapshotResponse{}, err
	}
	records, err := s.messages.Fetch(ctx, s.repo.MessagesQuery(chatID))
	if err != nil {
		return dto.MessageSnapshotResponse{}, err
	}
	return dto.NewMessageSnapshot(chatID, records, feed.CountUnread(records, unreadFor(actor.ID))), nil
}

func (s *chatService) Send(ctx context.Context, chatID string, actor models.Actor, payload dto.MessageSendRequest) (dto.MessageResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageResponse{}, apperror.Validation("invalid message", err)
	}
	chat, err := s.authorize(ctx, chatID, actor)
	if err != nil {
		return dto.MessageResponse{}, err
	}
	if chat.Status == models.ChatClosed {
		return dto.MessageResponse{}, apperror.Conflict("this chat is closed")
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(payload.Content))
	if clean == "" {
		return dto.MessageResponse{}, apperror.Validation("message content empty after sanitization", nil)
	}

	ctx, span := s.tracer.Start(ctx, "chat.send", trace.WithAttributes(
		attribute.String("chat.id", chatID),
		attribute.String("chat.sender_id", actor.ID),
	))
	defer span.End()

	message, err := s.repo.SaveMessage(ctx, models.MessageRecord{
		ChatID:     chatID,
		Sender:     models.Author{ID: actor.ID, Name: actor.Name, Role: actor.Role},
		ReceiverID: otherParticipant(chat, actor.ID),
		Content:    clean,
	})
	if err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, apperror.Mutation("Could not send your message. Please try again.", err)
	}

	last := models.LastMessage{Content: message.Content, SenderID: actor.ID, Timestamp: message.Timestamp}
	if err := s.repo.UpdateLastMessage(ctx, chatID, last); err != nil {
		s.logger.Warn().Err(err).Str("chat_id", chatID).Msg("failed to update last message")
	}

	observability.ChatMessagesSent().Inc()
	return dto.NewMessageResponse(message), nil
}

func (s *chatService) SendDirect(ctx context.Context, actor models.Actor, payload dto.DirectMessageRequest) (dto.MessageResponse, error) {
	if actor.ID == "" {
		return dto.MessageResponse{}, apperror.Unauthorized("sign in to chat")
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageResponse{}, apperror.Validation("invalid message", err)
	}
	receiverID := strings.TrimSpace(payload.ReceiverID)
	if receiverID == actor.ID {
		return dto.MessageResponse{}, apperror.Validation("cannot message yourself", nil)
	}

	chatID := directChatID(actor.ID, receiverID)
	_, err := s.repo.Ensure(ctx, chatID, models.ChatRecord{Participants: []models.Participant{
		participantFor(actor),
		{UserID: receiverID, Name: strings.TrimSpace(s.plain.Sanitize(payload.ReceiverName)), Role: models.RoleUser},
	}})
	if err != nil {
		return dto.MessageResponse{}, apperror.Mutation("Could not start the chat. Please try again.", err)
	}

	return s.Send(ctx, chatID, actor, dto.MessageSendRequest{Content: payload.Content})
}

// MarkRead flips every message the actor received in the chat to read.
func (s *chatService) MarkRead(ctx context.Context, chatID string, actor models.Actor) (int, error) {
	if _, err := s.authorize(ctx, chatID, actor); err != nil {
		return 0, err
	}
	messages, err := s.repo.ListMessages(ctx, chatID)
	if err != nil {
		return 0, apperror.Retrieval("Could not load messages. Please try again.", err)
	}

	updated := 0
	isUnread := unreadFor(actor.ID)
	for _, message := range messages {
		if !isUnread(message) {
			continue
		}
		if err := s.repo.MarkMessageRead(ctx, message.ID); err != nil {
			return updated, apperror.Mutation("Could not mark messages as read. Please try again.", err)
		}
		updated++
	}
	return updated, nil
}

func (s *chatService) Close(ctx context.Context, chatID string, actor models.Actor) (dto.ChatResponse, error) {
	chat, err := s.authorize(ctx, chatID, actor)
	if err != nil {
		return dto.ChatResponse{}, err
	}
	if chat.Status == models.ChatClosed {
		return dto.NewChatResponse(chat), nil
	}
	if err := s.repo.SetStatus(ctx, chatID, models.ChatClosed); err != nil {
		return dto.ChatResponse{}, apperror.Mutation("Could not close the chat. Please try again.", err)
	}
	chat.Status = models.ChatClosed
	return dto.NewChatResponse(chat), nil
}

// SetPresence records the actor's presence on their profile and on every chat
// they take part in, where chat list subscribers observe it.
func (s *chatService) SetPresence(ctx context.Context, actor models.Actor, payload dto.PresenceRequest) error {
	if actor.ID == "" {
		return apperror.Unauthorized("sign in to chat")
	}
	if err := s.validator.Struct(payload); err != nil {
		return apperror.Validation("invalid presence", err)
	}

	if err := s.users.Touch(ctx, actor, payload.Status); err != nil {
		return apperror.Mutation("Could not update your status. Please try again.", err)
	}
	chats, err := s.repo.ListForUser(ctx, actor.ID)
	if err != nil {
		return apperror.Retrieval("Could not load chats. Please try again.", err)
	}
	for _, chat := range chats {
		if err := s.repo.SetPresence(ctx, chat.ID, actor.ID, payload.Status); err != nil {
			return apperror.Mutation("Could not update your status. Please try again.", err)
		}
	}
	return nil
}

func (s *chatService) authorize(ctx context.Context, chatID string, actor models.Actor) (models.ChatRecord, error) {
	if actor.ID == "" {
		return models.ChatRecord{}, apperror.Unauthorized("sign in to chat")
	}
	chat, err := s.repo.FindByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.ChatRecord{}, apperror.NotFound("chat", err)
		}
		return models.ChatRecord{}, apperror.Retrieval("Could not load the chat. Please try again.", err)
	}
	if !chat.HasParticipant(actor.ID) {
		return models.ChatRecord{}, apperror.Forbidden("you are not part of this chat")
	}
	return chat, nil
}

// ServeConnection runs one chat socket. The socket follows one chat at a time
// and pushes a full message snapshot after every change.
func (s *chatService) ServeConnection(conn ChatConn, opts ChatConnectionOptions) {
	baseCtx := opts.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	session := &chatSession{
		conn:     conn,
		service:  s,
		actor:    opts.Actor,
		logger:   s.logger.With().Str("user_id", opts.Actor.ID).Str("correlation_id", opts.CorrelationID).Logger(),
		messages: feed.NewSubscriber(s.documents, feed.MessageDecoder, "chat_messages", unreadFor(opts.Actor.ID), s.logger),
		outbound: make(chan dto.ChatServerFrame, chatSendBufferSize),
		closed:   make(chan struct{}),
	}
	defer session.close()

	if opts.ChatID != "" {
		if err := session.open(ctx, opts.ChatID); err != nil {
			session.sendError(err)
		}
	}

	go session.writer()
	session.reader(ctx)
}

type chatSession struct {
	conn     ChatConn
	service  *chatService
	actor    models.Actor
	logger   zerolog.Logger
	messages *feed.Subscriber[models.MessageRecord]
	outbound chan dto.ChatServerFrame
	closed   chan struct{}
	once     sync.Once

	mu     sync.Mutex
	chatID string
}

func (c *chatSession) open(ctx context.Context, chatID string) error {
	if _, err := c.service.authorize(ctx, chatID, c.actor); err != nil {
		return err
	}
	c.mu.Lock()
	previous := c.chatID
	c.chatID = chatID
	c.mu.Unlock()

	if err := c.messages.Switch(ctx, c.service.repo.MessagesQuery(chatID)); err != nil {
		c.mu.Lock()
		c.chatID = previous
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *chatSession) currentChat() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chatID
}

func (c *chatSession) reader(ctx context.Context) {
	defer c.close()

	for {
		var frame dto.ChatClientFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			c.logger.Debug().Err(err).Msg("chat read loop ended")
			return
		}
		if err := c.service.validator.Struct(frame); err != nil {
			c.sendError(apperror.Validation("invalid frame", err))
			continue
		}

		switch frame.Type {
		case dto.ChatFrameSwitch:
			if err := c.open(ctx, frame.ChatID); err != nil {
				c.sendError(err)
			}
		case dto.ChatFrameRead:
			if _, err := c.service.MarkRead(ctx, c.currentChat(), c.actor); err != nil {
				c.sendError(err)
			}
		case dto.ChatFrameMessage:
			chatID := c.currentChat()
			if chatID == "" {
				c.sendError(apperror.Validation("open a chat before sending", nil))
				continue
			}
			message, err := c.service.Send(ctx, chatID, c.actor, dto.MessageSendRequest{Content: frame.Content})
			if err != nil {
				c.sendError(err)
				continue
			}
			c.send(dto.ChatServerFrame{Type: dto.ChatFrameAck, Message: &message})
		}

		select {
		case <-c.closed:
			return
		default:
		}
	}
}

func (c *chatSession) writer() {
	defer c.close()

	ticker := time.NewTicker(chatPingInterval)
	defer ticker.Stop()

	updates := c.messages.Updates()
	for {
		select {
		case view, ok := <-updates:
			if !ok {
				return
			}
			if !c.messages.IsCurrent(view.Generation) {
				continue
			}
			chatID := c.currentChat()
			if len(view.Records) > 0 {
				chatID = view.Records[0].ChatID
			}
			snapshot := dto.NewMessageSnapshot(chatID, view.Records, view.Unread)
			if err := c.conn.WriteJSON(dto.ChatServerFrame{Type: dto.ChatFrameSnapshot, Snapshot: &snapshot}); err != nil {
				c.logger.Debug().Err(err).Msg("chat write loop terminated")
				return
			}
		case frame := <-c.outbound:
			if err := c.conn.WriteJSON(frame); err != nil {
				c.logger.Debug().Err(err).Msg("chat write loop terminated")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.logger.Debug().Err(err).Msg("chat ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *chatSession) send(frame dto.ChatServerFrame) {
	select {
	case c.outbound <- frame:
	case <-c.closed:
	default:
		c.logger.Warn().Str("frame", frame.Type).Msg("chat queue full, dropping frame")
	}
}

func (c *chatSession) sendError(err error) {
	appErr := apperror.From(err)
	c.send(dto.ChatServerFrame{Type: dto.ChatFrameError, Error: &dto.FrameError{
		Kind:      string(appErr.Kind),
		Message:   appErr.Message,
		Retryable: appErr.Retryable,
	}})
}

func (c *chatSession) close() {
	c.once.Do(func() {
		close(c.closed)
		c.messages.Close()
		_ = c.conn.Close()
	})
}

func participantFor(actor models.Actor) models.Participant {
	role := actor.Role
	if role == "" {
		role = models.RoleUser
	}
	return models.Participant{UserID: actor.ID, Name: actor.Name, Role: role, Presence: models.PresenceOnline}
}

func otherParticipant(chat models.ChatRecord, userID string) string {
	if len(chat.Participants) != 2 {
		return ""
	}
	for _, participant := range chat.Participants {
		if participant.UserID != userID {
			return participant.UserID
		}
	}
	return ""
}

// directChatID is the same for both directions of a conversation. The pair is
// length-prefixed before hashing so no two pairs share an id.
func directChatID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	pair := fmt.Sprintf("%d:%s|%s", len(ids[0]), ids[0], ids[1])
	return directChatPrefix + uuid.NewSHA1(uuid.NameSpaceOID, []byte(pair)).String()
}

// unreadFor counts messages from other participants the viewer has not read.
func unreadFor(viewerID string) func(models.MessageRecord) bool {
	return func(message models.MessageRecord) bool {
		return message.Sender.ID != viewerID && message.Status != models.MessageRead
	}
}
