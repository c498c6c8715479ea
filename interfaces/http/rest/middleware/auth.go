package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/MartinFunctu/lifeos/pkg/auth"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

// Headers set by the Lambda entry point from the API Gateway JWT authorizer.
// The entry point strips any client-supplied copies before setting them.
const (
	HeaderGatewayAuthorized = "X-API-Gateway-Authorized"
	HeaderUserID            = "X-User-ID"
	HeaderUserEmail         = "X-User-Email"
	HeaderUserRoles         = "X-User-Roles"
)

// Authenticator resolves the caller identity of every API request and
// applies per-IP and per-user rate limits.
type Authenticator struct {
	validator   *auth.JWTValidator
	ipLimiter   auth.RateLimiter
	userLimiter auth.RateLimiter
	errors      *pkgerrors.ErrorHandler
	logger      *zap.Logger
	gateway     bool
}

// NewAuthenticator creates an authenticator validating bearer tokens with
// validator. Either limiter may be nil.
func NewAuthenticator(
	validator *auth.JWTValidator,
	ipLimiter, userLimiter auth.RateLimiter,
	errHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *Authenticator {
	return &Authenticator{
		validator:   validator,
		ipLimiter:   ipLimiter,
		userLimiter: userLimiter,
		errors:      errHandler,
		logger:      logger,
	}
}

// NewGatewayAuthenticator creates an authenticator for Lambda deployments,
// where API Gateway has already validated the token and the entry point
// forwards the claims as headers.
func NewGatewayAuthenticator(
	ipLimiter, userLimiter auth.RateLimiter,
	errHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *Authenticator {
	a := NewAuthenticator(nil, ipLimiter, userLimiter, errHandler, logger)
	a.gateway = true
	return a
}

// Middleware returns the authentication middleware
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := getClientIP(r)
		if !a.allow(w, r, a.ipLimiter, clientIP) {
			return
		}

		user, err := a.identify(r)
		if err != nil {
			a.logger.Debug("Authentication failed",
				zap.Error(err),
				zap.String("ip", clientIP),
				zap.String("path", r.URL.Path),
			)
			a.errors.Handle(w, r, err)
			return
		}

		if !a.allow(w, r, a.userLimiter, user.UserID) {
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetUserInContext(r.Context(), user)))
	})
}

func (a *Authenticator) identify(r *http.Request) (*auth.UserContext, error) {
	if a.gateway {
		if r.Header.Get(HeaderGatewayAuthorized) != "true" || r.Header.Get(HeaderUserID) == "" {
			return nil, pkgerrors.NewUnauthorizedError("request not authorized by API Gateway").
				WithCode(pkgerrors.CodeMissingToken)
		}
		user := &auth.UserContext{
			UserID: r.Header.Get(HeaderUserID),
			Email:  r.Header.Get(HeaderUserEmail),
		}
		if roles := r.Header.Get(HeaderUserRoles); roles != "" {
			user.Roles = strings.Split(roles, ",")
		}
		return user, nil
	}

	claims, err := a.validator.ValidateToken(extractToken(r))
	if err != nil {
		return nil, auth.Unauthorized(err)
	}
	return claims.Identity(), nil
}

func (a *Authenticator) allow(w http.ResponseWriter, r *http.Request, limiter auth.RateLimiter, key string) bool {
	if limiter == nil {
		return true
	}
	allowed, err := limiter.Allow(r.Context(), key)
	if err != nil {
		// A broken limiter must not take the API down with it.
		a.logger.Error("Rate limiter error", zap.Error(err))
		return true
	}
	if !allowed {
		a.errors.Handle(w, r, pkgerrors.NewRateLimitError("rate limit exceeded"))
		return false
	}
	return true
}

// extractToken extracts the bearer token from the Authorization header
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// getClientIP returns the client address. chi's RealIP middleware has
// already folded X-Forwarded-For and X-Real-IP into RemoteAddr.
func getClientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
