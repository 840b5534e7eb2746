// Package gateway serves the voicesquad console: the HTTP routes, the
// console socket and the per-socket Console state behind it.
package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/voicesquad/internal/agents"
	"github.com/soyeahso/voicesquad/internal/auth"
	"github.com/soyeahso/voicesquad/internal/config"
	"github.com/soyeahso/voicesquad/internal/logging"
	"github.com/soyeahso/voicesquad/internal/notify"
	"github.com/soyeahso/voicesquad/internal/version"
	"github.com/soyeahso/voicesquad/internal/voice"
)

// HTTP server limits. Sockets clear these deadlines on upgrade.
const (
	httpReadTimeout  = 30 * time.Second
	httpWriteTimeout = 30 * time.Second
	httpIdleTimeout  = 2 * time.Minute
	shutdownTimeout  = 10 * time.Second
)

// Server is the voicesquad HTTP and console socket server.
type Server struct {
	cfg      config.Config
	log      *logging.Logger
	clients  *ClientRegistry
	handlers map[string]RequestHandler
	version  string
	tick     time.Duration

	repo        *agents.Repository
	verifier    *auth.Verifier
	gate        *auth.Gate
	voice       voice.Gateway
	permTimeout time.Duration
	oauth       *auth.OAuth // nil when sign-in is hosted elsewhere

	upgrader websocket.Upgrader
	limiter  *failureLimiter

	mu        sync.Mutex
	listener  net.Listener
	startedAt time.Time
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithVoiceGateway sets the conversational session provider. Without it
// every voice.connect fails as unavailable.
func WithVoiceGateway(gw voice.Gateway) ServerOption {
	return func(s *Server) { s.voice = gw }
}

// New builds a server that verifies sessions with verifier and reads and
// writes agents through repo.
func New(cfg config.Config, repo *agents.Repository, verifier *auth.Verifier, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:      cfg,
		log:      log.Sub("gateway"),
		clients:  NewClientRegistry(log.Sub("clients")),
		handlers: make(map[string]RequestHandler),
		version:  version.Version,
		tick:     tickInterval,

		repo:     repo,
		verifier: verifier,
		gate: &auth.Gate{
			Verifier:   verifier,
			CookieName: cfg.Auth.CookieName,
			EntryURL:   cfg.Auth.EntryURL,
		},
		voice:       voice.Unavailable{},
		permTimeout: cfg.Voice.PermissionTimeout(),

		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Gateway.AllowedOrigins),
		},
		limiter: newFailureLimiter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRPCHandlers()
	return s
}

// Gate returns the HTTP session gate.
func (s *Server) Gate() *auth.Gate { return s.gate }

// EnableOAuth serves the Google sign-in entry point under /auth. Sessions
// it issues land in the server's cookie. Call before Start.
func (s *Server) EnableOAuth(cfg auth.OAuthConfig) error {
	o, err := auth.NewOAuth(cfg, s.gate, s.log)
	if err != nil {
		return err
	}
	s.oauth = o
	return nil
}

// Handle registers an RPC method.
func (s *Server) Handle(method string, handler RequestHandler) {
	s.handlers[method] = handler
}

// Methods lists the registered RPC methods in sorted order.
func (s *Server) Methods() []string {
	methods := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// resolveBindAddr turns the bind mode into a listen address. Unknown modes
// stay on loopback.
func resolveBindAddr(cfg config.GatewayConfig) string {
	host := "127.0.0.1"
	switch cfg.Bind {
	case "lan", "auto":
		host = "0.0.0.0"
	case "custom":
		host = cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(cfg.Port))
}

// listen opens the TCP listener, wrapped in TLS when configured.
func (s *Server) listen() (net.Listener, error) {
	addr := resolveBindAddr(s.cfg.Gateway)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	t := s.cfg.Gateway.TLS
	if !t.Enabled {
		if s.cfg.Gateway.Bind != "loopback" {
			s.log.Warn().Msg("TLS is off; session tokens cross the network in cleartext")
		}
		return ln, nil
	}
	cert, err := tls.LoadX509KeyPair(t.CertPath, t.KeyPath)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}), nil
}

// Start serves until ctx is cancelled. On the way out every console is
// told the server is stopping and its socket is closed.
func (s *Server) Start(ctx context.Context) error {
	ln, err := s.listen()
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	srv := &http.Server{
		Handler:      withMiddleware(mux, s.log, s.cfg.Gateway.AllowedOrigins),
		ReadTimeout:  httpReadTimeout,
		WriteTimeout: httpWriteTimeout,
		IdleTimeout:  httpIdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.listener = ln
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Gateway.Bind).
		Bool("tls", s.cfg.Gateway.TLS.Enabled).
		Bool("oauth", s.oauth != nil).
		Int("methods", len(s.handlers)).
		Msg("gateway listening")

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.log.Info().Int("consoles", s.clients.Count()).Msg("gateway stopping")
		s.clients.Notify(notify.Info("Server Stopping", "The console will reconnect when the server is back."))
		s.clients.CloseAll("server shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			s.log.Warn().Err(err).Msg("gateway shutdown incomplete")
		}
	}()

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-stopped
	return nil
}

// Addr is the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}
