package events

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"nftmarket/core/types"
)

const hubHistoryLimit = 2048

// Update is a sequenced event published by the Hub.
type Update struct {
	Sequence uint64       `json:"sequence"`
	Cursor   string       `json:"cursor"`
	Event    *types.Event `json:"event"`
}

func cloneUpdate(update Update) Update {
	cloned := update
	cloned.Event = update.Event.Clone()
	return cloned
}

// Hub is an Emitter that keeps a bounded history and broadcasts every event
// to live subscribers. Slow subscribers drop updates rather than block the
// emitter.
type Hub struct {
	mu      sync.Mutex
	seq     uint64
	nextID  uint64
	subs    map[uint64]chan Update
	history []Update
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan Update)}
}

// Emit implements the Emitter interface.
func (h *Hub) Emit(evt Event) {
	if h == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}

	h.mu.Lock()
	h.seq++
	update := Update{Sequence: h.seq, Cursor: strconv.FormatUint(h.seq, 10), Event: payload.Clone()}
	h.history = append(h.history, update)
	if len(h.history) > hubHistoryLimit {
		excess := len(h.history) - hubHistoryLimit
		trimmed := make([]Update, hubHistoryLimit)
		copy(trimmed, h.history[excess:])
		h.history = trimmed
	}
	// Sends happen under the lock so cancel cannot close a channel mid-send.
	for _, ch := range h.subs {
		select {
		case ch <- cloneUpdate(update):
		default:
		}
	}
	h.mu.Unlock()
}

// Subscribe registers a subscriber for updates after the supplied cursor. The
// backlog holds retained history newer than the cursor. The returned cancel
// function must be called to release the subscription; it is also invoked
// when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, cursor string) (<-chan Update, func(), []Update, error) {
	if h == nil {
		return nil, nil, nil, fmt.Errorf("events: hub not initialised")
	}
	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		parsed, err := strconv.ParseUint(trimmed, 10, 64)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("events: invalid cursor %q", cursor)
		}
		since = parsed
	}
	updates := make(chan Update, 32)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = updates
	backlog := make([]Update, 0, len(h.history))
	for _, update := range h.history {
		if update.Sequence > since {
			backlog = append(backlog, cloneUpdate(update))
		}
	}
	h.mu.Unlock()

	var once sync.Once
	done := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(updates)
			close(done)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return updates, cancel, backlog, nil
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
