// Package dispatch pushes ride views to websocket watchers. Each watcher
// re-reads the view on a fixed interval and receives a frame only when the
// serialized view changed, which replaces UI-side polling.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/chainride/internal/observability"
)

// Snapshot produces the current serialized view for a watcher.
type Snapshot func(ctx context.Context) ([]byte, error)

// WSSession is one connected watcher.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

// WSRegistry tracks watchers per ride key.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]map[*WSSession]struct{}
	interval time.Duration
	logger   *slog.Logger
}

func NewWSRegistry(interval time.Duration, logger *slog.Logger) *WSRegistry {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &WSRegistry{
		sessions: make(map[string]map[*WSSession]struct{}),
		interval: interval,
		logger:   logger.With("component", "dispatch"),
	}
}

func (r *WSRegistry) add(key string, s *WSSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[key] == nil {
		r.sessions[key] = make(map[*WSSession]struct{})
	}
	r.sessions[key][s] = struct{}{}
	observability.WSWatchers.Inc()
}

func (r *WSRegistry) remove(key string, s *WSSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[key][s]; !ok {
		return
	}
	delete(r.sessions[key], s)
	if len(r.sessions[key]) == 0 {
		delete(r.sessions, key)
	}
	observability.WSWatchers.Dec()
}

// Watchers returns the number of open sessions for key.
func (r *WSRegistry) Watchers(key string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[key])
}

// Watch serves conn until the client disconnects or ctx ends. It owns and
// closes conn.
func (r *WSRegistry) Watch(ctx context.Context, key string, conn *websocket.Conn, snap Snapshot) {
	s := &WSSession{conn: conn}
	r.add(key, s)
	defer func() {
		r.remove(key, s)
		_ = conn.Close()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Reads only detect the close; watchers send nothing meaningful.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	var last []byte
	for {
		frame, err := snap(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("watch snapshot failed", "key", key, "error", err)
			frame = errorFrame(err)
		}
		if !bytes.Equal(frame, last) {
			if err := s.Send(frame); err != nil {
				r.logger.Debug("watcher gone", "key", key, "error", err)
				return
			}
			last = frame
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func errorFrame(err error) []byte {
	b, _ := json.Marshal(map[string]any{"success": false, "error": err.Error()})
	return b
}
