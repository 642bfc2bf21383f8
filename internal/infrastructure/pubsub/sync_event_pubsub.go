package pubsub

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"archie-core-dam-sync/internal/domain"

	"github.com/rs/zerolog"
)

// SyncEventChannel represents a subscription channel
type SyncEventChannel struct {
	ID     string
	Filter *SyncEventFilter
	Events chan *domain.SyncEvent
	Done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// SyncEventFilter filters sync events
type SyncEventFilter struct {
	Types  []domain.SyncEventType // Filter by event type
	ShopID string                 // Filter by shop
}

// SyncEventPubSub fans sync events out to live subscribers
type SyncEventPubSub struct {
	mu       sync.RWMutex
	channels map[string]*SyncEventChannel
	logger   zerolog.Logger
	nextID   int64
	idMu     sync.Mutex
}

// NewSyncEventPubSub creates a new sync event pub/sub system
func NewSyncEventPubSub(logger zerolog.Logger) *SyncEventPubSub {
	return &SyncEventPubSub{
		channels: make(map[string]*SyncEventChannel),
		logger:   logger,
	}
}

// Subscribe creates a new subscription channel that closes when ctx ends
func (ps *SyncEventPubSub) Subscribe(ctx context.Context, filter *SyncEventFilter) *SyncEventChannel {
	ps.idMu.Lock()
	id := ps.generateID()
	ps.idMu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)

	channel := &SyncEventChannel{
		ID:     id,
		Filter: filter,
		Events: make(chan *domain.SyncEvent, 32),
		Done:   make(chan struct{}),
		ctx:    subCtx,
		cancel: cancel,
	}

	ps.mu.Lock()
	ps.channels[id] = channel
	ps.mu.Unlock()

	ps.logger.Debug().
		Str("channelId", id).
		Interface("filter", filter).
		Msg("Sync event subscription created")

	go func() {
		<-subCtx.Done()
		ps.Unsubscribe(id)
	}()

	return channel
}

// Unsubscribe removes a subscription channel
func (ps *SyncEventPubSub) Unsubscribe(channelID string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	channel, exists := ps.channels[channelID]
	if !exists {
		return
	}

	close(channel.Events)
	close(channel.Done)
	channel.cancel()
	delete(ps.channels, channelID)

	ps.logger.Debug().
		Str("channelId", channelID).
		Msg("Sync event subscription removed")
}

// Publish broadcasts an event to all matching subscribers without blocking
func (ps *SyncEventPubSub) Publish(event *domain.SyncEvent) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	publishedCount := 0
	for _, channel := range ps.channels {
		if !matchesFilter(event, channel.Filter) {
			continue
		}
		select {
		case channel.Events <- event:
			publishedCount++
		case <-channel.ctx.Done():
		default:
			ps.logger.Warn().
				Str("channelId", channel.ID).
				Msg("Channel buffer full, dropping event")
		}
	}

	if publishedCount > 0 {
		ps.logger.Debug().
			Str("type", string(event.Type)).
			Str("shopId", event.ShopID).
			Int("subscribers", publishedCount).
			Msg("Published sync event to subscribers")
	}
}

func matchesFilter(event *domain.SyncEvent, filter *SyncEventFilter) bool {
	if filter == nil {
		return true
	}
	if len(filter.Types) > 0 && !slices.Contains(filter.Types, event.Type) {
		return false
	}
	if filter.ShopID != "" && event.ShopID != filter.ShopID {
		return false
	}
	return true
}

func (ps *SyncEventPubSub) generateID() string {
	ps.nextID++
	return fmt.Sprintf("channel-%d", ps.nextID)
}

// Subscribers returns the number of live subscriptions
func (ps *SyncEventPubSub) Subscribers() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.channels)
}
