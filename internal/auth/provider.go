package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

//go:generate mockgen -package=auth_test -destination=mock_provider_test.go -source=provider.go

// Authenticator performs the two authentication calls.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
	Me(ctx context.Context, token string) (string, error)
}

// Store persists the singleton credential.
type Store interface {
	// LoadCredential returns the stored credential; ok is false when none exists.
	LoadCredential(ctx context.Context) (cred Credential, ok bool, err error)
	// SaveCredential replaces the stored credential.
	SaveCredential(ctx context.Context, cred Credential) error
}

// Config holds the settings required to authenticate.
type Config struct {
	LoginURL string
	MeURL    string
	Username string
	Password string
}

// Validate returns ErrConfig when any setting is empty.
func (c Config) Validate() error {
	missing := ""
	switch {
	case c.LoginURL == "":
		missing = "auth url"
	case c.MeURL == "":
		missing = "me url"
	case c.Username == "":
		missing = "user"
	case c.Password == "":
		missing = "password"
	default:
		return nil
	}
	return fmt.Errorf("%w: %s is required", ErrConfig, missing)
}

// Provider hands out a valid credential, refreshing it when expired.
type Provider struct {
	cfg    Config
	client Authenticator
	store  Store
	logger *slog.Logger
	now    func() time.Time

	group singleflight.Group
}

// NewProvider creates a credential provider.
func NewProvider(cfg Config, client Authenticator, store Store, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		cfg:    cfg,
		client: client,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// GetValidToken returns the stored credential while it is valid, otherwise
// authenticates and persists a fresh one. Concurrent callers share one
// refresh. There is no retry.
func (p *Provider) GetValidToken(ctx context.Context) (Credential, error) {
	v, err, shared := p.group.Do("credential", func() (any, error) {
		return p.getValidToken(ctx)
	})
	if err != nil {
		return Credential{}, err
	}
	if shared {
		p.logger.Debug("credential request shared with concurrent caller")
	}
	return v.(Credential), nil
}

func (p *Provider) getValidToken(ctx context.Context) (Credential, error) {
	cached, ok, err := p.store.LoadCredential(ctx)
	if err != nil {
		return Credential{}, fmt.Errorf("load credential: %w", err)
	}
	if ok && cached.Valid(p.now()) {
		return cached, nil
	}

	token, accountID, err := p.authenticate(ctx)
	if err != nil {
		return Credential{}, err
	}

	expiresAt, err := ExpiryTime(token)
	if err != nil {
		p.logger.Error("invalid token structure", "phase", "decode", "error", err)
		return Credential{}, err
	}

	cred := Credential{Token: token, AccountID: accountID, ExpiresAt: expiresAt}
	if err := p.store.SaveCredential(ctx, cred); err != nil {
		return Credential{}, fmt.Errorf("save credential: %w", err)
	}

	p.logger.Info("credential refreshed",
		"account_id", accountID,
		"expires_at", expiresAt.UTC().Format(time.RFC3339),
	)
	return cred, nil
}

// authenticate logs in and resolves the account id. Any failure is logged
// with its cause and reported as ErrAuth.
func (p *Provider) authenticate(ctx context.Context) (string, string, error) {
	if err := p.cfg.Validate(); err != nil {
		return "", "", err
	}

	token, err := p.client.Login(ctx, p.cfg.Username, p.cfg.Password)
	if err != nil {
		p.logger.Error("authentication failed", "phase", "login", "error", err)
		return "", "", ErrAuth
	}

	accountID, err := p.client.Me(ctx, token)
	if err != nil {
		p.logger.Error("authentication failed", "phase", "identity", "error", err)
		return "", "", ErrAuth
	}

	return token, accountID, nil
}
