package live

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/streamhub/pkbattle/src/app/battles"
	"github.com/streamhub/pkbattle/src/domain/battle"
	"github.com/streamhub/pkbattle/src/domain/shared"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
)

// subscriber holds only the newest snapshot not yet written. Offers never
// block and never replace a snapshot with an older one, so the ended
// snapshot, being the last version, always reaches the viewer.
type subscriber struct {
	mu      sync.Mutex
	latest  battle.Battle
	pending bool
	ready   chan struct{}
}

func newSubscriber() *subscriber {
	return &subscriber{ready: make(chan struct{}, 1)}
}

// offer reports whether an unwritten snapshot was overwritten.
func (s *subscriber) offer(b battle.Battle) (replaced bool) {
	s.mu.Lock()
	if s.pending && b.Version <= s.latest.Version {
		s.mu.Unlock()
		return false
	}
	replaced = s.pending
	s.latest = b
	s.pending = true
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
	return replaced
}

func (s *subscriber) take() (battle.Battle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pending {
		return battle.Battle{}, false
	}
	s.pending = false
	return s.latest, true
}

// Hub fans battle snapshots out to websocket viewers of that battle. It
// implements battles.UpdateListener and never blocks the publisher: a slow
// viewer skips intermediate snapshots but always receives the latest one.
type Hub struct {
	logger   *zap.Logger
	clock    clockwork.Clock
	upgrader websocket.Upgrader

	mu   sync.RWMutex
	subs map[shared.BattleID]map[*subscriber]struct{}

	viewers atomic.Int64
	skipped atomic.Int64
}

// NewHub builds a hub; clock drives remaining_seconds and defaults to the
// real clock when nil.
func NewHub(logger *zap.Logger, clock clockwork.Clock) *Hub {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Hub{
		logger: logger,
		clock:  clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subs: make(map[shared.BattleID]map[*subscriber]struct{}),
	}
}

// BattleUpdated hands a snapshot to every viewer of the battle.
func (h *Hub) BattleUpdated(b battle.Battle) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[b.ID] {
		if sub.offer(b) {
			h.skipped.Inc()
		}
	}
}

// Viewers reports connected viewers across all battles.
func (h *Hub) Viewers() int64 { return h.viewers.Load() }

// Skipped reports snapshots overwritten before a slow viewer wrote them.
func (h *Hub) Skipped() int64 { return h.skipped.Load() }

// Serve subscribes to the battle, loads its current snapshot and then
// upgrades the request and streams snapshots until the ended one is
// written. Subscribing before loading means a transition that commits
// in between is still delivered. A load error is returned before the
// upgrade so the caller can answer with a plain HTTP error.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, id shared.BattleID, load func() (battle.Battle, error)) error {
	sub := newSubscriber()
	h.subscribe(id, sub)
	defer h.unsubscribe(id, sub)

	current, err := load()
	if err != nil {
		return err
	}
	sub.offer(current)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return nil
	}
	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, sub, done)
	return nil
}

func (h *Hub) subscribe(id shared.BattleID, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[id]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[id] = set
	}
	set[sub] = struct{}{}
	h.viewers.Inc()
}

func (h *Hub) unsubscribe(id shared.BattleID, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[id]
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, id)
	}
	h.viewers.Dec()
}

// readPump discards client frames; it exists to process control frames and
// notice disconnects.
func (h *Hub) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, sub *subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	var last uint64
	for {
		select {
		case <-sub.ready:
			b, ok := sub.take()
			if !ok || b.Version <= last {
				continue
			}
			last = b.Version
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(battles.NewView(b, h.clock.Now())); err != nil {
				return
			}
			if b.State == battle.StateEnded {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "battle ended"),
					time.Now().Add(writeWait))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
