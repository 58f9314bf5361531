package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MarkoPoloResearchLab/perkledger/pkg/perks"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	contextKeyUserID = "perks_user_id"
	bearerPrefix     = "Bearer "
)

var errMissingBearer = errors.New("missing bearer token")

// bearerAuth resolves the request's user from an HS256 bearer token whose
// subject is the user id.
func bearerAuth(cfg Config) gin.HandlerFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.JWTIssuer),
		jwt.WithExpirationRequired(),
	)
	signingKey := []byte(cfg.JWTSigningKey)
	return func(ctx *gin.Context) {
		userID, err := userFromToken(parser, signingKey, ctx.GetHeader("Authorization"))
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", err.Error()))
			return
		}
		ctx.Set(contextKeyUserID, userID)
		ctx.Next()
	}
}

func userFromToken(parser *jwt.Parser, signingKey []byte, header string) (perks.UserID, error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return perks.UserID{}, errMissingBearer
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if raw == "" {
		return perks.UserID{}, errMissingBearer
	}
	claims := &jwt.RegisteredClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return signingKey, nil
	}); err != nil {
		return perks.UserID{}, err
	}
	return perks.NewUserID(claims.Subject)
}

func getUserID(ctx *gin.Context) (perks.UserID, bool) {
	value, ok := ctx.Get(contextKeyUserID)
	if !ok {
		return perks.UserID{}, false
	}
	userID, ok := value.(perks.UserID)
	return userID, ok
}
