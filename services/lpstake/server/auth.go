package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"lpstaking/crypto"
)

// Account binds an API token to the ledger address it acts as.
type Account struct {
	Label   string
	Token   string
	Address string
}

// Principal is the authenticated caller of a request.
type Principal struct {
	Label   string
	Address crypto.Address
}

type principalContextKey struct{}

type credential struct {
	token     []byte
	principal *Principal
}

// Authenticator resolves bearer tokens to principals.
type Authenticator struct {
	credentials []credential
}

// NewAuthenticator validates the configured accounts.
func NewAuthenticator(accounts []Account) (*Authenticator, error) {
	if len(accounts) == 0 {
		return nil, fmt.Errorf("at least one api account must be configured")
	}
	seen := make(map[string]struct{}, len(accounts))
	creds := make([]credential, 0, len(accounts))
	for i, acct := range accounts {
		token := strings.TrimSpace(acct.Token)
		if token == "" {
			return nil, fmt.Errorf("account %d: token required", i)
		}
		if _, dup := seen[token]; dup {
			return nil, fmt.Errorf("account %d: duplicate token", i)
		}
		seen[token] = struct{}{}
		addr, err := crypto.ParseAddress(acct.Address)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", i, err)
		}
		label := strings.TrimSpace(acct.Label)
		if label == "" {
			label = addr.String()
		}
		creds = append(creds, credential{token: []byte(token), principal: &Principal{Label: label, Address: addr}})
	}
	return &Authenticator{credentials: creds}, nil
}

// PrincipalFromContext extracts the authenticated principal.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	principal, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || principal == nil {
		return nil, false
	}
	return principal, true
}

// Middleware rejects requests without a known bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := a.authenticate(r)
		if principal == nil {
			writeError(w, r, http.StatusUnauthorized, "authentication_required", "authentication required")
			return
		}
		ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) authenticate(r *http.Request) *Principal {
	if a == nil || r == nil {
		return nil
	}
	token := parseBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return nil
	}
	provided := []byte(token)
	var match *Principal
	for _, cred := range a.credentials {
		if subtle.ConstantTimeCompare(provided, cred.token) == 1 {
			match = cred.principal
		}
	}
	return match
}

func parseBearerToken(header string) string {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return ""
	}
	parts := strings.SplitN(trimmed, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(strings.TrimSpace(parts[0]), "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
