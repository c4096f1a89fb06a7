package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"

	"commissions/internal/store"
)

const googleIssuer = "https://accounts.google.com"

// Identity is the authenticated user.
type Identity struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

// Verifier turns a bearer credential into an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// claims is the Google ID token payload
type claims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

var errUnverifiedEmail = errors.New("email address is not verified")

func identityFromClaims(c claims) (Identity, error) {
	if c.Email == "" || !c.EmailVerified {
		return Identity{}, errUnverifiedEmail
	}
	name := c.Name
	if name == "" {
		name = c.Email
	}
	return Identity{Email: store.NormalizeEmail(c.Email), Name: name, Picture: c.Picture}, nil
}

// GoogleVerifier checks Google ID tokens against the OAuth client ID. The
// provider discovery document is fetched on first use and retried after a
// failure.
type GoogleVerifier struct {
	clientID string

	mu       sync.Mutex
	verifier *oidc.IDTokenVerifier
}

func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{clientID: clientID}
}

func (g *GoogleVerifier) get(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.verifier != nil {
		return g.verifier, nil
	}
	if g.clientID == "" {
		return nil, errors.New("GOOGLE_CLIENT_ID is not set")
	}
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("discover google provider: %w", err)
	}
	g.verifier = provider.Verifier(&oidc.Config{ClientID: g.clientID})
	return g.verifier, nil
}

func (g *GoogleVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	v, err := g.get(ctx)
	if err != nil {
		return Identity{}, err
	}
	idToken, err := v.Verify(ctx, token)
	if err != nil {
		return Identity{}, err
	}
	var c claims
	if err := idToken.Claims(&c); err != nil {
		return Identity{}, err
	}
	return identityFromClaims(c)
}

// StaticVerifier trusts the credential as the caller's email. It backs
// AUTH_DISABLED local runs, where the HTTP layer forwards X-Debug-Email.
type StaticVerifier struct{}

func (StaticVerifier) Verify(_ context.Context, token string) (Identity, error) {
	email := store.NormalizeEmail(token)
	if email == "" || !strings.Contains(email, "@") {
		return Identity{}, fmt.Errorf("invalid debug email %q", token)
	}
	return Identity{Email: email, Name: email}, nil
}
