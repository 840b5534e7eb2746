// Package elevenlabs implements voice.Gateway over the ElevenLabs
// Conversational AI WebSocket API.
package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/voicesquad/internal/logging"
	"github.com/soyeahso/voicesquad/internal/version"
	"github.com/soyeahso/voicesquad/internal/voice"
)

const (
	DefaultWSURL  = "wss://api.elevenlabs.io/v1/convai/conversation"
	DefaultAPIURL = "https://api.elevenlabs.io"

	defaultConnectTimeout = 15 * time.Second
	defaultSpeakingHold   = 400 * time.Millisecond
)

// Config configures the gateway. Zero values fall back to defaults.
type Config struct {
	// APIKey, when set, is used to request a signed URL for private agents.
	APIKey string
	WSURL  string
	APIURL string
	// ConnectTimeout bounds dialing plus waiting for the conversation
	// metadata.
	ConnectTimeout time.Duration
	// SpeakingHold is how long after the last audio chunk the agent is
	// still considered speaking.
	SpeakingHold time.Duration
}

// Gateway opens ElevenLabs conversations.
type Gateway struct {
	cfg    Config
	client *http.Client
	dialer *websocket.Dialer
	log    *logging.Logger
}

// New creates a gateway.
func New(cfg Config, log *logging.Logger) *Gateway {
	if strings.TrimSpace(cfg.WSURL) == "" {
		cfg.WSURL = DefaultWSURL
	}
	if strings.TrimSpace(cfg.APIURL) == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.SpeakingHold <= 0 {
		cfg.SpeakingHold = defaultSpeakingHold
	}
	return &Gateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.ConnectTimeout},
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.ConnectTimeout},
		log:    log.Sub("elevenlabs"),
	}
}

// Open dials the conversation for agentID and waits for the service to
// accept it.
func (g *Gateway) Open(ctx context.Context, agentID string, ev voice.Events) (voice.Session, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, errors.New("elevenlabs agent id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.ConnectTimeout)
	defer cancel()

	wsURL, err := g.conversationURL(ctx, agentID)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())
	conn, resp, err := g.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing elevenlabs: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing elevenlabs: %w", err)
	}

	s := newSession(conn, ev, g.cfg.SpeakingHold, g.log.With("agentId", agentID))
	if err := s.writeJSON(ctx, initiationMessage{Type: typeInitiationClientData}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sending initiation data: %w", err)
	}
	go s.readLoop()

	select {
	case <-s.ready:
	case <-s.done:
		return nil, fmt.Errorf("elevenlabs closed before conversation started: %s", s.closeReason())
	case <-ctx.Done():
		_ = s.Close(context.Background())
		return nil, fmt.Errorf("waiting for conversation metadata: %w", ctx.Err())
	}

	g.log.Info().Str("conversation", s.ID()).Str("agentId", agentID).Msg("conversation started")
	if ev.OnConnect != nil {
		ev.OnConnect()
	}
	return s, nil
}

// conversationURL returns the URL to dial: a signed URL when an API key is
// configured, the public endpoint otherwise.
func (g *Gateway) conversationURL(ctx context.Context, agentID string) (string, error) {
	if strings.TrimSpace(g.cfg.APIKey) == "" {
		u, err := url.Parse(g.cfg.WSURL)
		if err != nil {
			return "", fmt.Errorf("invalid elevenlabs ws url: %w", err)
		}
		q := u.Query()
		q.Set("agent_id", agentID)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	endpoint := strings.TrimRight(g.cfg.APIURL, "/") + "/v1/convai/conversation/get-signed-url?agent_id=" + url.QueryEscape(agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("xi-api-key", strings.TrimSpace(g.cfg.APIKey))
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting signed url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("requesting signed url: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		SignedURL string `json:"signed_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding signed url: %w", err)
	}
	if out.SignedURL == "" {
		return "", errors.New("elevenlabs returned an empty signed url")
	}
	return out.SignedURL, nil
}
