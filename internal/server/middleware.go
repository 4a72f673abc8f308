package server

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	obscontext "github.com/smallbiznis/stagepass/internal/observability/context"
)

const (
	contextUserIDKey   = "user_id"
	contextArtistIDKey = "artist_id"
)

// UserAuthRequired verifies an HS256 bearer token. The subject is the fan's
// user id; artist accounts also carry an artist_id claim.
func (s *Server) UserAuthRequired() gin.HandlerFunc {
	secret := []byte(s.cfg.AuthJWTSecret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok || len(secret) == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		claims := jwt.MapClaims{}
		token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return secret, nil
		})
		if err != nil || !token.Valid {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		userID, err := claims.GetSubject()
		if err != nil || strings.TrimSpace(userID) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Set(contextUserIDKey, strings.TrimSpace(userID))

		if artistID, ok := artistIDClaim(claims); ok {
			c.Set(contextArtistIDKey, artistID)
		}

		c.Request = c.Request.WithContext(obscontext.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

// RequireArtist rejects users whose token carries no artist_id claim.
func RequireArtist() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := artistIDFromContext(c); !ok {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

// CronSecretRequired guards the internal endpoints called by the platform
// cron with a shared secret.
func (s *Server) CronSecretRequired() gin.HandlerFunc {
	secret := []byte(strings.TrimSpace(s.cfg.PayoutCronSecret))

	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok || len(secret) == 0 || subtle.ConstantTimeCompare([]byte(raw), secret) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return "", false
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return parts[1], true
}

func artistIDClaim(claims jwt.MapClaims) (snowflake.ID, bool) {
	value, ok := claims[contextArtistIDKey]
	if !ok || value == nil {
		return 0, false
	}
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case float64:
		raw = fmt.Sprintf("%.0f", v)
	default:
		return 0, false
	}
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func userIDFromContext(c *gin.Context) (string, bool) {
	userID := strings.TrimSpace(c.GetString(contextUserIDKey))
	return userID, userID != ""
}

func artistIDFromContext(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(contextArtistIDKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(snowflake.ID)
	return id, ok && id > 0
}
