package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	tokenstore "Copilot/pkg/token"
)

const (
	ContextUserIDKey = "current_user_id"
	ContextJTIKey    = "current_jti"
	ContextExpKey    = "current_token_exp"
)

var (
	ErrTokenRevoked   = errors.New("Token has been revoked (logout)")
	ErrInvalidSubject = errors.New("invalid subject in token")
)

// Identity is what a valid bearer token resolves to.
type Identity struct {
	UserID    uint
	JTI       string
	ExpiresAt time.Time
}

// Authenticator verifies HS256 bearer tokens issued by the auth service.
type Authenticator struct {
	secret []byte
	tokens *tokenstore.Store
}

func NewAuthenticator(secret string, tokens *tokenstore.Store) *Authenticator {
	return &Authenticator{secret: []byte(secret), tokens: tokens}
}

// Parse validates tokenStr and extracts the user id from the user_id claim,
// falling back to sub.
func (a *Authenticator) Parse(tokenStr string) (Identity, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Identity{}, jwt.ErrTokenInvalidClaims
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, jwt.ErrTokenInvalidClaims
	}

	id := Identity{}
	id.JTI, _ = claims["jti"].(string)
	if a.tokens != nil && a.tokens.IsRevoked(id.JTI) {
		return Identity{}, ErrTokenRevoked
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}

	uid, ok := claimUserID(claims["user_id"])
	if !ok {
		uid, ok = claimUserID(claims["sub"])
	}
	if !ok {
		return Identity{}, ErrInvalidSubject
	}
	id.UserID = uid
	return id, nil
}

// claimUserID accepts numbers and numeric strings; jwt decodes JSON numbers
// as float64.
func claimUserID(v any) (uint, bool) {
	var n uint64
	switch t := v.(type) {
	case float64:
		if t <= 0 || t != float64(uint64(t)) {
			return 0, false
		}
		n = uint64(t)
	case json.Number:
		p, err := strconv.ParseUint(t.String(), 10, 64)
		if err != nil {
			return 0, false
		}
		n = p
	case string:
		p, err := strconv.ParseUint(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		n = p
	default:
		return 0, false
	}
	if n == 0 {
		return 0, false
	}
	return uint(n), true
}

func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "missing authorization header"})
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "invalid authorization header"})
			return
		}

		id, err := a.Parse(parts[1])
		switch {
		case errors.Is(err, ErrTokenRevoked), errors.Is(err, ErrInvalidSubject):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": err.Error()})
			return
		case err != nil:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "invalid token"})
			return
		}

		c.Set(ContextUserIDKey, id.UserID)
		c.Set(ContextJTIKey, id.JTI)
		c.Set(ContextExpKey, id.ExpiresAt)
		c.Next()
	}
}

// UserID returns the authenticated user id set by Middleware.
func UserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(ContextUserIDKey)
	if !ok {
		return 0, false
	}
	uid, ok := v.(uint)
	return uid, ok && uid != 0
}
