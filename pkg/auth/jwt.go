package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrMissingToken     = errors.New("missing authentication token")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrNoIdentity       = errors.New("no authenticated identity in context")
)

// defaultTokenTTL applies when a generator is configured without an expiry
const defaultTokenTTL = 7 * 24 * time.Hour

// Claims of a canvas token. The registered subject is the owner whose graph
// the bearer may read and write.
type Claims struct {
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// OwnerID returns the canvas owner the token acts for
func (c *Claims) OwnerID() string { return c.Subject }

// Identity is the request identity the claims grant
func (c *Claims) Identity() *UserContext {
	return &UserContext{UserID: c.Subject, Email: c.Email, Roles: c.Roles}
}

// keyMaterial pairs a signing method with the keys it verifies and signs
// with. sign is nil on validators.
type keyMaterial struct {
	method jwt.SigningMethod
	verify interface{}
	sign   interface{}
}

func loadKeys(method, secret, pemKey string, private bool) (keyMaterial, error) {
	switch method {
	case "HS256", "":
		if secret == "" {
			return keyMaterial{}, errors.New("secret key required for HS256")
		}
		return keyMaterial{method: jwt.SigningMethodHS256, verify: []byte(secret), sign: []byte(secret)}, nil
	case "RS256":
		if pemKey == "" {
			return keyMaterial{}, errors.New("PEM key required for RS256")
		}
		if !private {
			pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemKey))
			if err != nil {
				return keyMaterial{}, fmt.Errorf("failed to parse public key: %w", err)
			}
			return keyMaterial{method: jwt.SigningMethodRS256, verify: pub}, nil
		}
		priv, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pemKey))
		if err != nil {
			return keyMaterial{}, fmt.Errorf("failed to parse private key: %w", err)
		}
		return keyMaterial{method: jwt.SigningMethodRS256, verify: &priv.PublicKey, sign: priv}, nil
	default:
		return keyMaterial{}, fmt.Errorf("unsupported signing method: %s", method)
	}
}

// JWTConfig holds JWT validation settings
type JWTConfig struct {
	SigningMethod string // RS256 or HS256 (default)
	PublicKey     string // PEM, RS256 only
	SecretKey     string // HS256 only
	Issuer        string
	Audience      []string // any one of them must be present
	Leeway        time.Duration
}

// JWTValidator checks bearer tokens presented to the canvas API
type JWTValidator struct {
	keys   keyMaterial
	parser *jwt.Parser
}

// NewJWTValidator creates a new JWT validator
func NewJWTValidator(config JWTConfig) (*JWTValidator, error) {
	keys, err := loadKeys(config.SigningMethod, config.SecretKey, config.PublicKey, false)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{keys.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(config.Leeway),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if len(config.Audience) > 0 {
		opts = append(opts, jwt.WithAudience(config.Audience...))
	}
	return &JWTValidator{keys: keys, parser: jwt.NewParser(opts...)}, nil
}

// ValidateToken verifies a raw or "Bearer "-prefixed token and returns its
// claims. Every accepted token names an owner.
func (v *JWTValidator) ValidateToken(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.keys.verify, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return nil, fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.OwnerID() == "" {
		return nil, fmt.Errorf("%w: no owner in subject", ErrInvalidClaims)
	}
	return claims, nil
}

// JWTGeneratorConfig holds JWT generator configuration
type JWTGeneratorConfig struct {
	SigningMethod string // RS256 or HS256 (default)
	PrivateKey    string // PEM, RS256 only
	SecretKey     string // HS256 only
	Issuer        string
	Audience      []string
	ExpiryTime    time.Duration
}

// JWTGenerator issues owner tokens. End users get theirs from the identity
// provider; the generator serves canvasctl and the test suites.
type JWTGenerator struct {
	keys     keyMaterial
	issuer   string
	audience []string
	ttl      time.Duration
	now      func() time.Time
}

// NewJWTGenerator creates a new JWT generator
func NewJWTGenerator(config JWTGeneratorConfig) (*JWTGenerator, error) {
	keys, err := loadKeys(config.SigningMethod, config.SecretKey, config.PrivateKey, true)
	if err != nil {
		return nil, err
	}
	ttl := config.ExpiryTime
	if ttl == 0 {
		ttl = defaultTokenTTL
	}
	return &JWTGenerator{
		keys:     keys,
		issuer:   config.Issuer,
		audience: config.Audience,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// IssueToken signs a token that lets its bearer act as owner
func (g *JWTGenerator) IssueToken(owner, email string, roles ...string) (string, error) {
	if owner == "" {
		return "", fmt.Errorf("%w: no owner", ErrInvalidClaims)
	}
	now := g.now()
	claims := &Claims{
		Email: email,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.issuer,
			Subject:   owner,
			Audience:  g.audience,
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(g.keys.method, claims).SignedString(g.keys.sign)
}

// Unauthorized renders a token or identity failure as the API error the
// client sees
func Unauthorized(err error) *pkgerrors.AppError {
	switch {
	case errors.Is(err, ErrMissingToken), errors.Is(err, ErrNoIdentity):
		return pkgerrors.NewUnauthorizedError("missing authentication token").
			WithCode(pkgerrors.CodeMissingToken)
	case errors.Is(err, ErrExpiredToken):
		return pkgerrors.NewUnauthorizedError("token has expired").
			WithCode(pkgerrors.CodeExpiredToken).
			WithCause(err)
	case errors.Is(err, ErrInvalidSignature):
		return pkgerrors.NewUnauthorizedError("invalid token signature").
			WithCode(pkgerrors.CodeInvalidToken).
			WithCause(err)
	default:
		return pkgerrors.NewUnauthorizedError("invalid token").
			WithCode(pkgerrors.CodeInvalidToken).
			WithCause(err)
	}
}

// UserContext represents the authenticated identity carried on a request
type UserContext struct {
	UserID string
	Email  string
	Roles  []string
}

type contextKey string

// UserContextKey is the context key under which the identity is stored
const UserContextKey contextKey = "user"

// GetUserFromContext extracts user from context
func GetUserFromContext(ctx context.Context) (*UserContext, error) {
	user, ok := ctx.Value(UserContextKey).(*UserContext)
	if !ok || user == nil || user.UserID == "" {
		return nil, ErrNoIdentity
	}
	return user, nil
}

// SetUserInContext adds user to context
func SetUserInContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// WithOwner is a shorthand used by background jobs and tests that act on
// behalf of an owner without a token.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return SetUserInContext(ctx, &UserContext{UserID: ownerID})
}

// AuthorizeOwner fails unless ctx carries the identity of owner
func AuthorizeOwner(ctx context.Context, owner string) error {
	user, err := GetUserFromContext(ctx)
	if err != nil {
		return Unauthorized(err)
	}
	if owner == "" || user.UserID != owner {
		return pkgerrors.NewForbiddenError("owner does not match the authenticated identity").
			WithCode(pkgerrors.CodeOwnerMismatch)
	}
	return nil
}
