package broadcast

import (
	"sync"

	"github.com/pairstream/pairstream/internal/common"
	"github.com/pairstream/pairstream/internal/logger"
)

// PriceUpdate is the event emitted after a price point has been durably
// persisted.
type PriceUpdate struct {
	Pool        string   `json:"pool"`
	Price       float64  `json:"price"`
	BlockNumber uint64   `json:"block_number"`
	Timestamp   uint64   `json:"timestamp"`
	Reserves    Reserves `json:"reserves"`
}

// Reserves carries the raw pool reserves as decimal strings so consumers
// never lose precision to float encoding.
type Reserves struct {
	Reserve0 string `json:"reserve0"`
	Reserve1 string `json:"reserve1"`
}

// Hub fans price updates out to subscribers. Publish never blocks: a
// subscriber whose buffer is full loses the update.
type Hub struct {
	mu         sync.RWMutex
	subs       map[uint64]chan PriceUpdate
	nextID     uint64
	bufferSize int
	closed     bool

	log *logger.Logger
}

// NewHub creates a hub handing each subscriber a buffer of bufferSize
// updates.
func NewHub(bufferSize int, log *logger.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Hub{
		subs:       make(map[uint64]chan PriceUpdate),
		bufferSize: bufferSize,
		log:        log.WithComponent(common.ComponentBroadcast),
	}
}

// Subscribe registers a new subscriber and returns its update channel and
// an unsubscribe function. The channel is closed on unsubscribe and on hub
// close.
func (h *Hub) Subscribe() (<-chan PriceUpdate, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		ch := make(chan PriceUpdate)
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	ch := make(chan PriceUpdate, h.bufferSize)
	h.subs[id] = ch
	SubscribersSet(len(h.subs))

	return ch, func() { h.unsubscribe(id) }
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(ch)
	SubscribersSet(len(h.subs))
}

// Publish delivers the update to every subscriber that can take it right
// now and drops it for the rest.
func (h *Hub) Publish(update PriceUpdate) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	for id, ch := range h.subs {
		select {
		case ch <- update:
			PublishedInc()
		default:
			DroppedInc()
			h.log.Debugw("dropping price update for slow subscriber",
				"subscriberID", id, "blockNumber", update.BlockNumber)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscriber channel. Publish and Subscribe become
// no-ops afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
	SubscribersSet(0)
}
