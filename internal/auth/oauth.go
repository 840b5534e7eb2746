package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/soyeahso/voicesquad/internal/logging"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

const stateCookie = "voicesquad_oauth_state"

// OAuthConfig configures the Google sign-in entry point.
type OAuthConfig struct {
	ClientID        string
	ClientSecret    string
	CredentialsFile string // Google client JSON; overrides ClientID/ClientSecret
	RedirectURL     string
	SessionTTL      time.Duration
	SecureCookies   bool
}

// OAuth serves /auth/login and /auth/callback.
type OAuth struct {
	conf   *oauth2.Config
	gate   *Gate
	ttl    time.Duration
	secure bool
	log    *logging.Logger

	// userinfoOpts are extra options for the userinfo client.
	userinfoOpts []option.ClientOption
}

// NewOAuth builds the entry point. Sessions are issued with gate's verifier
// and stored in gate's cookie.
func NewOAuth(cfg OAuthConfig, gate *Gate, log *logging.Logger) (*OAuth, error) {
	scopes := []string{oauth2api.UserinfoEmailScope}

	var conf *oauth2.Config
	if cfg.CredentialsFile != "" {
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("reading oauth credentials: %w", err)
		}
		conf, err = google.ConfigFromJSON(b, scopes...)
		if err != nil {
			return nil, fmt.Errorf("parsing oauth credentials: %w", err)
		}
	} else {
		if cfg.ClientID == "" || cfg.ClientSecret == "" {
			return nil, fmt.Errorf("oauth client id and secret are required")
		}
		conf = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       scopes,
		}
	}
	if cfg.RedirectURL != "" {
		conf.RedirectURL = cfg.RedirectURL
	}

	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &OAuth{conf: conf, gate: gate, ttl: ttl, secure: cfg.SecureCookies, log: log.Sub("oauth")}, nil
}

// Login redirects to the provider's consent page.
func (o *OAuth) Login(w http.ResponseWriter, r *http.Request) {
	state, err := randomState()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   o.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, o.conf.AuthCodeURL(state), http.StatusFound)
}

// Callback exchanges the code, looks up the user's email and issues a
// session cookie.
func (o *OAuth) Callback(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" || c.Value != r.URL.Query().Get("state") {
		http.Error(w, "invalid oauth state", http.StatusBadRequest)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	user, err := o.lookup(r.Context(), code)
	if err != nil {
		o.log.Warn().Err(err).Msg("oauth callback failed")
		http.Error(w, "sign-in failed", http.StatusBadGateway)
		return
	}

	s, err := o.gate.Verifier.Issue(user, o.ttl)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/auth", MaxAge: -1})
	o.gate.SetCookie(w, s, o.secure)
	o.log.Info().Str("email", user.Email).Msg("user signed in")
	http.Redirect(w, r, "/", http.StatusFound)
}

func (o *OAuth) lookup(ctx context.Context, code string) (User, error) {
	tok, err := o.conf.Exchange(ctx, code)
	if err != nil {
		return User{}, fmt.Errorf("exchanging code: %w", err)
	}

	opts := append([]option.ClientOption{option.WithHTTPClient(o.conf.Client(ctx, tok))}, o.userinfoOpts...)
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return User{}, fmt.Errorf("creating userinfo client: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return User{}, fmt.Errorf("fetching userinfo: %w", err)
	}
	if info.Email == "" {
		return User{}, fmt.Errorf("provider returned no email")
	}

	id := info.Id
	if id == "" {
		id = info.Email
	}
	return User{ID: id, Email: info.Email}, nil
}

func randomState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
