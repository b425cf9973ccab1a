package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vidshare-realtime/internal/conversation"
)

// HubOptions carries the optional collaborators of a Hub.
type HubOptions struct {
	// Directory validates identified users. Nil accepts any positive id.
	Directory UserDirectory
	// Bus routes topic publishes. Nil delivers to local subscribers only.
	Bus TopicBus
	// Mirror receives presence transitions.
	Mirror PresenceMirror
	// Sinks archive every appended conversation message.
	Sinks []conversation.Sink

	ReplyDelay     time.Duration
	Client         ClientConfig
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Hub owns the realtime components and the lifecycle of every connection.
type Hub struct {
	registry      *Registry
	topics        *Topics
	presence      *PresenceTracker
	broadcaster   *Broadcaster
	conversations *ConversationService
	router        *Router

	upgrader  websocket.Upgrader
	clientCfg ClientConfig
	logger    *slog.Logger

	mu      sync.Mutex
	closed  bool
	clients sync.WaitGroup
	now     func() time.Time
}

func NewHub(store *conversation.Store, opts HubOptions) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clientCfg := opts.Client
	if clientCfg == (ClientConfig{}) {
		clientCfg = DefaultClientConfig()
	}
	replyDelay := opts.ReplyDelay
	if replyDelay == 0 {
		replyDelay = DefaultReplyDelay
	}

	registry := NewRegistry()
	topics := NewTopics()
	broadcaster := NewBroadcaster(registry, topics, opts.Bus, logger.With("component", "broadcaster"))
	presence := NewPresenceTracker(broadcaster, opts.Directory, opts.Mirror, logger.With("component", "presence"))
	conversations := NewConversationService(store, broadcaster, opts.Sinks, replyDelay, logger.With("component", "conversation"))
	presence.sessions = registry
	router := NewRouter(registry, topics, presence, broadcaster, conversations, logger.With("component", "router"))

	return &Hub{
		registry:      registry,
		topics:        topics,
		presence:      presence,
		broadcaster:   broadcaster,
		conversations: conversations,
		router:        router,
		upgrader:      NewUpgrader(opts.AllowedOrigins),
		clientCfg:     clientCfg,
		logger:        logger,
		now:           time.Now,
	}
}

func (h *Hub) Registry() *Registry                 { return h.registry }
func (h *Hub) Topics() *Topics                     { return h.topics }
func (h *Hub) Presence() *PresenceTracker          { return h.presence }
func (h *Hub) Broadcaster() *Broadcaster           { return h.broadcaster }
func (h *Hub) Conversations() *ConversationService { return h.conversations }
func (h *Hub) Router() *Router                     { return h.router }

// Connect registers conn and greets it with its session id. It fails with
// ErrShuttingDown once Shutdown has started.
func (h *Hub) Connect(conn Conn) error {
	if h.isClosed() {
		return ErrShuttingDown
	}
	if err := h.registry.Register(conn.ID(), conn); err != nil {
		h.logger.Error("Failed to register connection", "sessionID", conn.ID(), "error", err)
		return err
	}
	// Shutdown may have taken its snapshot before this registration.
	if h.isClosed() {
		h.registry.Unregister(conn.ID())
		return ErrShuttingDown
	}
	h.logger.Info("Client registered", "sessionID", conn.ID())

	data, err := json.Marshal(NewConnectionEstablishedFrame(conn.ID(), h.now()))
	if err != nil {
		return fmt.Errorf("marshal greeting: %w", err)
	}
	if err := conn.SendText(data); err != nil {
		h.logger.Warn("Failed to send greeting", "sessionID", conn.ID(), "error", err)
	}
	return nil
}

// Disconnect is the single cleanup path for close and transport errors. It is
// idempotent and returns only after registry, topic and presence state for
// the session are gone.
func (h *Hub) Disconnect(ctx context.Context, sessionID string) {
	removed := h.registry.Unregister(sessionID)
	h.topics.UnsubscribeAll(sessionID)
	if h.presence.MarkOffline(ctx, sessionID) {
		h.presence.BroadcastOnlineCount(ctx)
	}
	if removed {
		h.logger.Info("Client unregistered", "sessionID", sessionID)
	}
}

// HandleFrame routes one inbound text frame from sessionID.
func (h *Hub) HandleFrame(ctx context.Context, sessionID string, raw []byte) {
	h.router.OnTextFrame(ctx, sessionID, raw)
}

// SendMessage is the conversation path used by the HTTP API.
func (h *Hub) SendMessage(ctx context.Context, req SendMessageRequest) (conversation.Message, error) {
	return h.conversations.SendMessage(ctx, req)
}

func (h *Hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *Hub) Stats() Stats {
	return h.router.stats()
}

// ServeWS upgrades the request and serves the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	h.clients.Add(1)
	h.mu.Unlock()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.clients.Done()
		h.logger.Error("Failed to upgrade WebSocket connection", "error", err)
		return
	}

	client := NewClient(h, conn, h.clientCfg)
	if err := h.Connect(client); err != nil {
		h.clients.Done()
		client.close()
		_ = conn.Close()
		return
	}

	go func() {
		defer h.clients.Done()
		client.run()
	}()
}

// Shutdown rejects new connections, closes every open one and drains
// pending deferred replies.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.logger.Info("WebSocket hub shutting down")
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	for conn := range h.registry.AllOpen() {
		if client, ok := conn.(*Client); ok {
			client.close()
		}
	}

	done := make(chan struct{})
	go func() {
		h.clients.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return h.conversations.Scheduler().Shutdown(ctx)
}
