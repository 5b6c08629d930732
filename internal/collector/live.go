package collector

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/carivox/voicerunner/internal/observe"
)

// defaultPushInterval is how often stats are broadcast when no interval is
// configured.
const defaultPushInterval = 2 * time.Second

// LiveFeed broadcasts aggregate collection stats to connected websocket
// clients, driving live dashboards during collection events. Clients receive
// a snapshot on connect and a fresh one every push interval.
type LiveFeed struct {
	store    Store
	interval time.Duration
	metrics  *observe.Metrics

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewLiveFeed creates a feed over the given store. A non-positive interval
// falls back to the default.
func NewLiveFeed(store Store, interval time.Duration, metrics *observe.Metrics) *LiveFeed {
	if interval <= 0 {
		interval = defaultPushInterval
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &LiveFeed{
		store:    store,
		interval: interval,
		metrics:  metrics,
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

// Run pushes stats to all connected clients until the context is cancelled.
func (f *LiveFeed) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.closeAll()
			return ctx.Err()
		case <-ticker.C:
			f.broadcast(ctx)
		}
	}
}

// Serve upgrades the request to a websocket and registers the client. The
// connection stays open until the client disconnects or [LiveFeed.Run]
// shuts down.
func (f *LiveFeed) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Dashboards are served from a different origin than the API.
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Warn("collector: websocket accept failed", "error", err)
		return
	}

	f.mu.Lock()
	f.clients[conn] = struct{}{}
	f.mu.Unlock()
	f.metrics.LiveFeedClients.Add(r.Context(), 1)
	slog.Debug("collector: live feed client connected")

	// Initial snapshot so the dashboard renders immediately.
	f.push(r.Context(), conn)

	// Reads are discarded; the feed is one-way. CloseRead returns a context
	// that ends when the client disconnects.
	readCtx := conn.CloseRead(context.Background())
	<-readCtx.Done()

	f.drop(conn)
	f.metrics.LiveFeedClients.Add(context.Background(), -1)
	slog.Debug("collector: live feed client disconnected")
}

// broadcast computes stats once and writes them to every client. Clients
// whose write fails are dropped.
func (f *LiveFeed) broadcast(ctx context.Context) {
	f.mu.Lock()
	if len(f.clients) == 0 {
		f.mu.Unlock()
		return
	}
	conns := make([]*websocket.Conn, 0, len(f.clients))
	for c := range f.clients {
		conns = append(conns, c)
	}
	f.mu.Unlock()

	data, ok := f.snapshot(ctx)
	if !ok {
		return
	}
	for _, conn := range conns {
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := conn.Write(writeCtx, websocket.MessageText, data)
		cancel()
		if err != nil {
			f.drop(conn)
		}
	}
}

// push writes a single stats snapshot to one client.
func (f *LiveFeed) push(ctx context.Context, conn *websocket.Conn) {
	data, ok := f.snapshot(ctx)
	if !ok {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		f.drop(conn)
	}
}

// snapshot computes and encodes the current stats.
func (f *LiveFeed) snapshot(ctx context.Context) ([]byte, bool) {
	stats, err := f.store.Stats(ctx)
	if err != nil {
		slog.Warn("collector: live feed stats failed", "error", err)
		return nil, false
	}
	data, err := json.Marshal(stats)
	if err != nil {
		slog.Warn("collector: live feed encode failed", "error", err)
		return nil, false
	}
	return data, true
}

// drop removes a client and closes its connection.
func (f *LiveFeed) drop(conn *websocket.Conn) {
	f.mu.Lock()
	_, present := f.clients[conn]
	delete(f.clients, conn)
	f.mu.Unlock()
	if present {
		conn.Close(websocket.StatusNormalClosure, "")
	}
}

// closeAll disconnects every client, used at shutdown.
func (f *LiveFeed) closeAll() {
	f.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(f.clients))
	for c := range f.clients {
		conns = append(conns, c)
	}
	f.clients = make(map[*websocket.Conn]struct{})
	f.mu.Unlock()

	for _, conn := range conns {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}
