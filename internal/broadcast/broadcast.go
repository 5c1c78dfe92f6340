// Package broadcast implements the Broadcast Hub: bounded fan-out of
// JSON snapshots to WebSocket subscribers, with per-send write-deadline
// timeouts so one slow subscriber never delays the healthy majority.
package broadcast

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/desktopai/runcontrol/internal/idgen"
	"github.com/desktopai/runcontrol/internal/logging"
)

// Conn is the subset of *websocket.Conn the hub needs, so tests can
// supply a fake without opening a real socket.
type Conn interface {
	SetWriteDeadline(t time.Time) error
	WriteJSON(v any) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// recentCloseCacheSize bounds the stale-subscriber generation cache: it
// only needs to survive one broadcast's worth of concurrent eviction
// races, not the subscriber count itself.
const recentCloseCacheSize = 4096

// defaultFanoutConcurrency bounds how many subscriber sends BroadcastJSON
// runs at once, matching the teacher's ExecuteParallel worker-pool shape
// (errgroup.SetLimit over independent units of work) rather than an
// unbounded goroutine-per-subscriber fan-out.
const defaultFanoutConcurrency = 32

type subscriberEntry struct {
	id   string
	conn Conn
	mu   sync.Mutex
}

// Hub is the Broadcast Hub.
type Hub struct {
	maxConnections    int
	sendTimeout       time.Duration
	fanoutConcurrency int
	logger            logging.Logger

	mu          sync.Mutex
	subscribers map[string]*subscriberEntry
	recentClose *lru.Cache[string, struct{}]
}

// Config constructs a Hub.
type Config struct {
	MaxConnections int
	SendTimeout    time.Duration
	// FanoutConcurrency bounds how many subscriber sends BroadcastJSON
	// runs at once. Defaults to defaultFanoutConcurrency.
	FanoutConcurrency int
	Logger            logging.Logger
}

// New constructs a Hub from cfg.
func New(cfg Config) *Hub {
	cache, _ := lru.New[string, struct{}](recentCloseCacheSize)
	maxConnections := cfg.MaxConnections
	if maxConnections <= 0 {
		maxConnections = 256
	}
	sendTimeout := cfg.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = 5 * time.Second
	}
	fanoutConcurrency := cfg.FanoutConcurrency
	if fanoutConcurrency <= 0 {
		fanoutConcurrency = defaultFanoutConcurrency
	}
	return &Hub{
		maxConnections:    maxConnections,
		sendTimeout:       sendTimeout,
		fanoutConcurrency: fanoutConcurrency,
		logger:            logging.OrNop(cfg.Logger).With("broadcast"),
		subscribers:       make(map[string]*subscriberEntry),
		recentClose:       cache,
	}
}

// Add registers conn as a subscriber, returning its id. If the hub is at
// capacity, conn is refused: it is closed with policy close code 1013
// ("try again later") and ok is false.
func (h *Hub) Add(conn Conn) (id string, ok bool) {
	h.mu.Lock()
	if len(h.subscribers) >= h.maxConnections {
		h.mu.Unlock()
		closeOverCapacity(conn)
		return "", false
	}
	id = idgen.NewSubscriberID()
	h.subscribers[id] = &subscriberEntry{id: id, conn: conn}
	h.mu.Unlock()
	return id, true
}

func closeOverCapacity(conn Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "try again later")
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
	_ = conn.Close()
}

// Remove unregisters id, e.g. when the gateway's read loop for that
// connection exits.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	delete(h.subscribers, id)
	h.mu.Unlock()
}

// Count reports the current subscriber count.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// BroadcastJSON sends payload to every current subscriber, dispatching up
// to fanoutConcurrency sends at once via errgroup.SetLimit so one slow
// subscriber's blocked send never holds up the healthy majority's
// delivery behind it in a serial queue. Each send is itself bounded by
// the configured per-send timeout via a write deadline on the
// connection, not a goroutine-per-subscriber timer; a subscriber whose
// send fails or times out is marked stale and removed once every
// dispatched send has returned.
func (h *Hub) BroadcastJSON(payload any) {
	h.mu.Lock()
	entries := make([]*subscriberEntry, 0, len(h.subscribers))
	for _, e := range h.subscribers {
		entries = append(entries, e)
	}
	h.mu.Unlock()

	var (
		staleMu sync.Mutex
		stale   []string
		g       errgroup.Group
	)
	g.SetLimit(h.fanoutConcurrency)
	for _, e := range entries {
		e := e
		g.Go(func() error {
			if err := h.sendOne(e, payload); err != nil {
				if h.markStaleOnce(e.id) {
					h.logger.Debug("subscriber %s stale, removing: %v", e.id, err)
				}
				staleMu.Lock()
				stale = append(stale, e.id)
				staleMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(stale) == 0 {
		return
	}

	h.mu.Lock()
	for _, id := range stale {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
}

func (h *Hub) sendOne(e *subscriberEntry, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.conn.SetWriteDeadline(time.Now().Add(h.sendTimeout)); err != nil {
		return err
	}
	return e.conn.WriteJSON(payload)
}

// markStaleOnce reports whether id has not already been marked stale
// recently, guarding against two concurrent BroadcastJSON calls both
// logging and racing to evict the same subscriber.
func (h *Hub) markStaleOnce(id string) bool {
	if _, ok := h.recentClose.Get(id); ok {
		return false
	}
	h.recentClose.Add(id, struct{}{})
	return true
}
