package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ChangeFeed tells standing subscriptions that a collection changed. Events
// raised on this node are delivered locally and, when configured, relayed to
// other nodes over Redis pub/sub and NATS.
type ChangeFeed struct {
	mu        sync.RWMutex
	listeners map[string]map[uint64]func()
	nextID    uint64

	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	nodeID       string
	logger       zerolog.Logger
}

type changeEvent struct {
	Source     string    `json:"source"`
	Collection string    `json:"collection"`
	ChangedAt  time.Time `json:"changed_at"`
}

// NewChangeFeed builds a feed. redisClient and natsConn are optional.
func NewChangeFeed(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) *ChangeFeed {
	feed := &ChangeFeed{
		listeners: make(map[string]map[uint64]func()),
		redis:     redisClient,
		nats:      natsConn,
		nodeID:    uuid.NewString(),
		logger:    logger.With().Str("component", "change_feed").Logger(),
	}
	if channelBase != "" {
		feed.redisChannel = channelBase + ":changes"
		feed.natsSubject = strings.ReplaceAll(channelBase, ":", ".") + ".changes"
	}
	return feed
}

// Start consumes remote change events until ctx ends.
func (f *ChangeFeed) Start(ctx context.Context) {
	if f.redis != nil && f.redisChannel != "" {
		go f.consumeRedis(ctx)
	}
	if f.nats != nil && f.natsSubject != "" {
		go f.consumeNATS(ctx)
	}
}

// Listen registers fn for changes of collection and returns its removal func.
func (f *ChangeFeed) Listen(collection string, fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := f.nextID
	if _, ok := f.listeners[collection]; !ok {
		f.listeners[collection] = make(map[uint64]func())
	}
	f.listeners[collection][id] = fn

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if listeners, ok := f.listeners[collection]; ok {
			delete(listeners, id)
			if len(listeners) == 0 {
				delete(f.listeners, collection)
			}
		}
	}
}

// Publish signals a local change and relays it to other nodes.
func (f *ChangeFeed) Publish(ctx context.Context, collection string) {
	f.notify(collection)

	if f.redisChannel == "" && f.natsSubject == "" {
		return
	}

	payload, err := json.Marshal(changeEvent{Source: f.nodeID, Collection: collection, ChangedAt: time.Now().UTC()})
	if err != nil {
		f.logger.Warn().Err(err).Msg("failed to encode change event")
		return
	}

	if f.redis != nil && f.redisChannel != "" {
		if err := f.redis.Publish(ctx, f.redisChannel, payload).Err(); err != nil {
			f.logger.Warn().Err(err).Str("collection", collection).Msg("failed to relay change over redis")
		}
	}
	if f.nats != nil && f.natsSubject != "" {
		if err := f.nats.Publish(f.natsSubject, payload); err != nil {
			f.logger.Warn().Err(err).Str("collection", collection).Msg("failed to relay change over nats")
		}
	}
}

func (f *ChangeFeed) notify(collection string) {
	f.mu.RLock()
	listeners := make([]func(), 0, len(f.listeners[collection]))
	for _, fn := range f.listeners[collection] {
		listeners = append(listeners, fn)
	}
	f.mu.RUnlock()

	for _, fn := range listeners {
		fn()
	}
}

func (f *ChangeFeed) consumeRedis(ctx context.Context) {
	pubsub := f.redis.Subscribe(ctx, f.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			f.logger.Error().Err(err).Msg("change feed redis subscription closed")
			return
		}
		f.handleEvent([]byte(msg.Payload))
	}
}

func (f *ChangeFeed) consumeNATS(ctx context.Context) {
	// Every node needs every event, so this is a plain subscription rather
	// than a queue group.
	sub, err := f.nats.Subscribe(f.natsSubject, func(msg *nats.Msg) {
		f.handleEvent(msg.Data)
	})
	if err != nil {
		f.logger.Error().Err(err).Msg("failed to subscribe to nats change subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			f.logger.Warn().Err(err).Msg("failed to drain change feed nats subscription")
		}
	}()
}

func (f *ChangeFeed) handleEvent(payload []byte) {
	var event changeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		f.logger.Warn().Err(err).Msg("invalid change event payload")
		return
	}
	if event.Source == f.nodeID || event.Collection == "" {
		return
	}
	f.notify(event.Collection)
}
