package gateway

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const ctxKeyRecipientID = "recipient_id"

// Claims carried by the platform's access tokens. Token issuance happens
// elsewhere; this service only verifies the signature and reads the subject.
type Claims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"user_id"`
}

// Auth verifies the bearer token and puts the recipient id on the request
// context.
func Auth(secret string, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bearer token required"})
			return
		}

		var claims Claims
		token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			log.Debug("token rejected", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		uid := claims.UserID
		if uid == 0 && claims.Subject != "" {
			uid, _ = strconv.ParseInt(claims.Subject, 10, 64)
		}
		if uid <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no subject in token"})
			return
		}

		c.Set(ctxKeyRecipientID, uid)
		c.Next()
	}
}

func recipientID(c *gin.Context) int64 {
	v, _ := c.Get(ctxKeyRecipientID)
	id, _ := v.(int64)
	return id
}
