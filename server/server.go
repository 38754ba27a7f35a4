// Package server implements the A2A HTTP Router (spec.md §4.2): a plain
// REST+JSON gin server in front of the Terminal Controller, Task Store,
// Reply Stack, Agent Registry, Task Board and Webhook Dispatcher, served
// simultaneously over TCP and an optional Unix domain socket.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/synapse-a2a/synapse/internal/board"
	"github.com/synapse-a2a/synapse/internal/history"
	"github.com/synapse-a2a/synapse/internal/ptyctl"
	"github.com/synapse-a2a/synapse/internal/registry"
	"github.com/synapse-a2a/synapse/internal/replystack"
	"github.com/synapse-a2a/synapse/internal/taskstore"
	"github.com/synapse-a2a/synapse/internal/webhook"
	"github.com/synapse-a2a/synapse/server/config"
	"github.com/synapse-a2a/synapse/server/middlewares"
	"github.com/synapse-a2a/synapse/types"
)

// readyPollInterval governs how often identity-injection retries are
// attempted and the readiness gate's condition is re-evaluated
// (spec.md §4.2 readiness gate, §5 concurrency model).
const readyPollInterval = 250 * time.Millisecond

// Server is one synapse-agentd process's A2A HTTP router plus all the
// component state it wires together.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	card   types.AgentCard

	controller  *ptyctl.Controller
	tasks       *taskstore.Store
	replies     *replystack.Stack
	reg         *registry.Registry
	portManager *registry.PortManager
	boardStore  *board.Board
	historyLog  *history.Store
	webhooks    *webhook.Registry
	dispatcher  *webhook.Dispatcher
	auth        middlewares.Authenticator
	responder   ResponseSender
	httpClient  *http.Client

	agentID  string
	identity string

	mu       sync.RWMutex
	external map[string]ExternalPeer

	readyCond *sync.Cond
	ready     bool

	router  *gin.Engine
	servers []*http.Server
	udsPath string

	stopPolling chan struct{}
}

// New builds a Server from its configuration and already-constructed
// component dependencies; identity is the text InjectIdentity sends once
// the wrapped process produces its first prompt.
func New(
	cfg *config.Config,
	logger *zap.Logger,
	card types.AgentCard,
	controller *ptyctl.Controller,
	reg *registry.Registry,
	portManager *registry.PortManager,
	boardStore *board.Board,
	historyLog *history.Store,
	identity string,
) *Server {
	s := &Server{
		cfg:         cfg,
		logger:      logger,
		card:        card,
		controller:  controller,
		tasks:       taskstore.New(logger),
		replies:     replystack.New(),
		reg:         reg,
		portManager: portManager,
		boardStore:  boardStore,
		historyLog:  historyLog,
		webhooks:    webhook.NewRegistry(),
		external:    make(map[string]ExternalPeer),
		agentID:     card.ID,
		identity:    identity,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		stopPolling: make(chan struct{}),
	}
	s.dispatcher = webhook.NewDispatcher(s.webhooks, cfg.Webhook.Timeout, cfg.Webhook.MaxRetries, logger)
	s.auth = middlewares.NewAuthenticator(cfg.Auth.APIKey, cfg.Auth.AllowedCIDRs, logger)
	s.responder = NewDefaultResponseSender(logger)
	s.readyCond = sync.NewCond(&s.mu)

	s.router = s.setupRouter()
	return s
}

// setupRouter builds the gin engine and registers every route spec.md §4.2
// names. Write-bearing routes pass through the readiness gate; read-only
// and task-board routes never block (spec.md §4.2 "GET endpoints and the
// task board remain available").
func (s *Server) setupRouter() *gin.Engine {
	if !s.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.LoggingMiddleware(s.logger, s.cfg.Server.DisableHealthcheckLog))
	r.Use(s.auth.Middleware())

	r.GET("/.well-known/agent.json", s.handleAgentCard)
	r.GET("/status", s.handleStatus)

	r.POST("/tasks/create", s.handleCreateTask)
	r.POST("/tasks/send", s.gated(s.handleSendTask))
	r.POST("/tasks/send-priority", s.gated(s.handleSendTaskPriority))
	r.GET("/tasks", s.handleListTasks)
	r.GET("/tasks/board", s.handleBoardList)
	r.POST("/tasks/board", s.handleBoardCreate)
	r.POST("/tasks/board/:id/claim", s.handleBoardClaim)
	r.POST("/tasks/board/:id/complete", s.handleBoardComplete)
	r.GET("/tasks/:id", s.handleGetTask)
	r.POST("/tasks/:id/cancel", s.handleCancelTask)

	r.POST("/spawn", s.gated(s.handleSpawn))
	r.POST("/team/start", s.gated(s.handleTeamStart))

	r.POST("/external/discover", s.gated(s.handleExternalDiscover))
	r.POST("/external/agents/:alias/send", s.gated(s.handleExternalSend))

	r.POST("/webhooks", s.handleWebhookRegister)
	r.DELETE("/webhooks/:id", s.handleWebhookUnregister)
	r.GET("/webhooks", s.handleWebhookList)
	r.GET("/webhooks/deliveries", s.handleWebhookDeliveries)

	return r
}

// readyGateDeadline bounds how long a write-bearing request waits on the
// readiness gate before giving up with 503 (spec.md §4.2, §5: "the
// readiness gate waits with a bounded deadline, default a few seconds").
const readyGateDeadline = 5 * time.Second

// gated wraps a handler so it blocks on the readiness condition variable
// until the identity handshake completes or readyGateDeadline elapses, at
// which point it reports 503 with Retry-After (spec.md §4.2).
func (s *Server) gated(handler gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.controller == nil || s.waitUntilReady(readyGateDeadline) {
			handler(c)
			return
		}
		s.responder.Error(c, NewNotReadyError())
	}
}

// waitUntilReady blocks on readyCond until the identity handshake completes
// or deadline elapses, returning whether it became ready in time.
func (s *Server) waitUntilReady(deadline time.Duration) bool {
	if s.controller.IdentitySent() {
		return true
	}

	done := make(chan struct{})
	expired := false
	timer := time.AfterFunc(deadline, func() {
		s.mu.Lock()
		expired = true
		s.readyCond.Broadcast()
		s.mu.Unlock()
	})
	defer timer.Stop()

	go func() {
		s.mu.Lock()
		for !s.ready && !expired && !s.controller.IdentitySent() {
			// Re-check every readyPollInterval too: the handshake can
			// complete without a broadcast on readyCond.
			wake := time.AfterFunc(readyPollInterval, func() {
				s.mu.Lock()
				s.readyCond.Broadcast()
				s.mu.Unlock()
			})
			s.readyCond.Wait()
			wake.Stop()
		}
		s.mu.Unlock()
		close(done)
	}()

	<-done
	return s.controller.IdentitySent()
}

// Start begins serving on the configured TCP host:port and, when
// ServerConfig.UDSPath is set, on a Unix domain socket as well. It also
// starts the background identity-injection and idle-poll loop. Start
// returns once the listeners are open; each one is served on its own
// goroutine.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Port)
	tcpLn, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen tcp %s: %w", addr, err)
	}

	var tlsConfig *tls.Config
	if s.cfg.Server.TLSCertPath != "" && s.cfg.Server.TLSKeyPath != "" {
		cert, err := tls.LoadX509KeyPair(s.cfg.Server.TLSCertPath, s.cfg.Server.TLSKeyPath)
		if err != nil {
			return fmt.Errorf("load tls key pair: %w", err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
		tcpLn = tls.NewListener(tcpLn, tlsConfig)
	}

	s.serveOn(tcpLn)
	s.logger.Info("listening", zap.String("addr", addr), zap.Bool("tls", tlsConfig != nil))

	if s.cfg.Server.UDSPath != "" {
		if err := os.RemoveAll(s.cfg.Server.UDSPath); err != nil {
			return fmt.Errorf("remove stale uds socket: %w", err)
		}
		udsLn, err := net.Listen("unix", s.cfg.Server.UDSPath)
		if err != nil {
			return fmt.Errorf("listen uds %s: %w", s.cfg.Server.UDSPath, err)
		}
		s.udsPath = s.cfg.Server.UDSPath
		s.serveOn(udsLn)
		s.logger.Info("listening on unix socket", zap.String("path", s.udsPath))
	}

	go s.pollLoop(ctx)
	return nil
}

func (s *Server) serveOn(ln net.Listener) {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	s.servers = append(s.servers, srv)
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server exited", zap.Error(err))
		}
	}()
}

// pollLoop periodically re-evaluates the Terminal Controller's idle status
// for the timeout/hybrid strategies and retries identity injection until it
// succeeds (spec.md §4.1, §5).
func (s *Server) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	var lastStatus ptyctl.Status

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopPolling:
			return
		case <-ticker.C:
			s.controller.PollTimeout()
			if !s.controller.IdentitySent() && s.controller.Status() != ptyctl.StatusProcessing {
				if sent, err := s.controller.InjectIdentity(s.identity, ""); err != nil {
					s.logger.Warn("identity injection attempt failed", zap.Error(err))
				} else if sent {
					s.logger.Info("identity injected")
					s.mu.Lock()
					s.ready = true
					s.readyCond.Broadcast()
					s.mu.Unlock()
				}
			}

			if status := s.controller.Status(); status != lastStatus {
				lastStatus = status
				s.publishStatus(status)
			}
		}
	}
}

// publishStatus republishes the agent's record with an updated Status field
// whenever the Terminal Controller's status changes, per spec.md §3
// ("status transitions publish to the Registry only on change"). ptyctl's
// StatusDone is its idle signal and is published as READY, so the registry
// only ever sees PROCESSING/READY/WAITING for a live agent.
func (s *Server) publishStatus(status ptyctl.Status) {
	rec, ok := s.reg.Get(s.agentID)
	if !ok {
		return
	}
	switch status {
	case ptyctl.StatusProcessing:
		rec.Status = types.AgentProcessing
	case ptyctl.StatusWaiting:
		rec.Status = types.AgentWaiting
	case ptyctl.StatusDone:
		rec.Status = types.AgentReady
	default:
		rec.Status = types.AgentReady
	}
	rec.UpdatedAt = time.Now().UTC()
	if err := s.reg.Register(rec); err != nil {
		s.logger.Warn("failed to publish status change", zap.Error(err))
	}
}

// Stop gracefully shuts down every listener and removes the Unix socket
// file it created.
func (s *Server) Stop(ctx context.Context) error {
	close(s.stopPolling)

	var firstErr error
	for _, srv := range s.servers {
		if err := srv.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.udsPath != "" {
		_ = os.Remove(s.udsPath)
	}
	return firstErr
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler { return s.router }

// recordObservation is a thin best-effort wrapper around the optional
// History Store.
func (s *Server) recordObservation(kind, taskID string, payload map[string]any) {
	if s.historyLog == nil || !s.historyLog.Enabled() {
		return
	}
	s.historyLog.Record(types.Observation{AgentID: s.agentID, TaskID: taskID, Kind: kind, Payload: payload})
}

// senderFromMetadata extracts the optional spec.md §6 sender envelope from
// a request's metadata map.
func senderFromMetadata(metadata map[string]any) (types.SenderInfo, bool) {
	raw, ok := metadata[types.MetaSender]
	if !ok {
		return types.SenderInfo{}, false
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return types.SenderInfo{}, false
	}
	info := types.SenderInfo{}
	if v, ok := m["sender_id"].(string); ok {
		info.SenderID = v
	}
	if v, ok := m["sender_endpoint"].(string); ok {
		info.SenderEndpoint = v
	}
	if v, ok := m["sender_task_id"].(string); ok {
		info.SenderTaskID = v
	}
	if v, ok := m["sender_uds_path"].(string); ok {
		info.SenderUDSPath = v
	}
	if v, ok := m["sender_type"].(string); ok {
		info.SenderType = v
	}
	return info, info.SenderID != ""
}

// inReplyTo extracts metadata["in_reply_to"], if present.
func inReplyTo(metadata map[string]any) (string, bool) {
	v, ok := metadata[types.MetaInReplyTo].(string)
	return v, ok && v != ""
}

// newUDSAwareClient builds an *http.Client whose transport dials the given
// Unix socket for every request when udsPath is set, and uses ordinary TCP
// otherwise (spec.md §6: "clients that can reach the UDS must prefer it").
func newUDSAwareClient(udsPath string) *http.Client {
	transport := &http.Transport{}
	if udsPath != "" {
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", udsPath)
		}
	}
	return &http.Client{Timeout: 15 * time.Second, Transport: transport}
}

// truncateContext bounds a terminal snapshot to the ceiling spec.md §4.2
// sets for /status responses.
func truncateContext(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}

func normalizeAlias(alias string) string { return strings.TrimSpace(alias) }
