package middleware

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	apierrors "github.com/feral-file/ff-collection-bridge/internal/api/shared/errors"
	"github.com/feral-file/ff-collection-bridge/internal/logger"
)

const (
	AUTH_TYPE_KEY    = "auth_type"
	AUTH_SUBJECT_KEY = "auth_subject"
	JWT_CLAIMS_KEY   = "jwt_claims"
)

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTPublicKey string // PEM encoded RSA public key
	APIKeys      []string
}

// AuthResult describes an authenticated caller
type AuthResult struct {
	AuthType    string // "jwt" or "apikey"
	Claims      *jwt.RegisteredClaims
	AuthSubject string
}

// Authenticator checks Authorization headers of the form "Bearer <jwt>" or
// "ApiKey <key>". Without credentials configured every request is rejected.
type Authenticator struct {
	publicKey *rsa.PublicKey
	apiKeys   map[string]struct{}
	parser    *jwt.Parser
}

func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	a := &Authenticator{
		apiKeys: make(map[string]struct{}, len(cfg.APIKeys)),
		parser:  jwt.NewParser(jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"})),
	}
	for _, key := range cfg.APIKeys {
		if key != "" {
			a.apiKeys[key] = struct{}{}
		}
	}

	if cfg.JWTPublicKey != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.JWTPublicKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA public key: %w", err)
		}
		a.publicKey = key
	}

	return a, nil
}

func (a *Authenticator) Authenticate(header string) (*AuthResult, error) {
	if header == "" {
		return nil, errors.New("missing Authorization header")
	}

	scheme, credentials, ok := strings.Cut(header, " ")
	if !ok {
		return nil, errors.New("invalid Authorization header format")
	}

	switch strings.ToLower(scheme) {
	case "bearer":
		return a.authenticateJWT(credentials)
	case "apikey":
		return a.authenticateAPIKey(credentials)
	}
	return nil, fmt.Errorf("unsupported authorization type: %s", scheme)
}

func (a *Authenticator) authenticateAPIKey(key string) (*AuthResult, error) {
	if len(a.apiKeys) == 0 {
		return nil, errors.New("no API keys configured")
	}
	if _, ok := a.apiKeys[key]; !ok {
		return nil, errors.New("invalid API key")
	}
	return &AuthResult{AuthType: "apikey"}, nil
}

// authenticateJWT accepts RSA signed tokens only; exp and nbf are checked by the parser
func (a *Authenticator) authenticateJWT(raw string) (*AuthResult, error) {
	if a.publicKey == nil {
		return nil, errors.New("JWT public key not configured")
	}

	claims := &jwt.RegisteredClaims{}
	token, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return &AuthResult{AuthType: "jwt", Claims: claims, AuthSubject: claims.Subject}, nil
}

// Auth guards the routes that act on behalf of devnet accounts
func (a *Authenticator) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		result, err := a.Authenticate(c.GetHeader("Authorization"))
		if err != nil {
			logger.WarnCtx(ctx, "Authentication failed",
				zap.Error(err),
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
				zap.String("request_id", RequestIDFrom(c)),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierrors.NewUnauthorizedError("Authentication failed", err.Error()))
			return
		}

		c.Set(AUTH_TYPE_KEY, result.AuthType)
		if result.Claims != nil {
			c.Set(JWT_CLAIMS_KEY, result.Claims)
		}
		if result.AuthSubject != "" {
			c.Set(AUTH_SUBJECT_KEY, result.AuthSubject)
		}

		logger.DebugCtx(ctx, "Authenticated", zap.String("type", result.AuthType), zap.String("subject", result.AuthSubject))
		c.Next()
	}
}
