package rpc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Scopes granted by API tokens.
const (
	ScopeRead  = "vault:read"
	ScopeWrite = "vault:write"
)

var errNoAuthSecret = errors.New("auth secret not configured")

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Enabled    bool
	HMACSecret string
	Issuer     string
	Audience   string
	ClockSkew  time.Duration
}

// scopeList decodes either a space separated string or a JSON array and
// encodes as the former.
type scopeList []string

func (s scopeList) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.Join(s, " "))
}

func (s *scopeList) UnmarshalJSON(data []byte) error {
	var joined string
	if err := json.Unmarshal(data, &joined); err == nil {
		*s = strings.Fields(joined)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return errors.New("scope claim must be a string or string array")
	}
	*s = list
	return nil
}

type vaultClaims struct {
	Scope scopeList `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens and enforces scopes.
type Authenticator struct {
	enabled bool
	secret  []byte
	parser  *jwt.Parser
	logger  *slog.Logger
}

// NewAuthenticator builds the verifier. A disabled authenticator passes every
// request through.
func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.ClockSkew),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Authenticator{
		enabled: cfg.Enabled,
		secret:  []byte(strings.TrimSpace(cfg.HMACSecret)),
		parser:  jwt.NewParser(opts...),
		logger:  logger,
	}
}

// Middleware rejects requests that lack a valid token carrying every scope in
// required.
func (a *Authenticator) Middleware(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a == nil || !a.enabled {
				next.ServeHTTP(w, r)
				return
			}
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing bearer token", Code: "unauthenticated"})
				return
			}
			claims, err := a.verify(raw)
			if err != nil {
				a.logger.Warn("token rejected", "path", r.URL.Path, "error", err)
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "invalid token", Code: "unauthenticated"})
				return
			}
			for _, scope := range required {
				if !slices.Contains(claims.Scope, scope) {
					writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "insufficient scope", Code: "insufficient_scope"})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Authenticator) verify(raw string) (*vaultClaims, error) {
	if len(a.secret) == 0 {
		return nil, errNoAuthSecret
	}
	claims := &vaultClaims{}
	if _, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}); err != nil {
		return nil, err
	}
	return claims, nil
}

// IssueToken signs an HS256 token for subject carrying scopes. A zero ttl
// mints a token without expiry.
func IssueToken(secret, issuer, audience, subject string, scopes []string, ttl time.Duration, now time.Time) (string, error) {
	key := []byte(strings.TrimSpace(secret))
	if len(key) == 0 {
		return "", errNoAuthSecret
	}
	claims := vaultClaims{
		Scope: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
