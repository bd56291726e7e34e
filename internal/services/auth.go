package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/chatstream-backend/internal/platform/ctxutil"
	"github.com/yungbote/chatstream-backend/internal/platform/logger"
)

// AuthService verifies viewer tokens. Sessions are issued elsewhere; this
// service only needs the shared HS256 secret.
type AuthService interface {
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	IssueToken(userID uuid.UUID, ttl time.Duration) (string, error)
}

type JWTClaims struct {
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

type authService struct {
	log    *logger.Logger
	secret []byte
	issuer string
}

func NewAuthService(log *logger.Logger, jwtSecretKey, issuer string) AuthService {
	return &authService{
		log:    log.With("service", "AuthService"),
		secret: []byte(jwtSecretKey),
		issuer: issuer,
	}
}

func (as *authService) IssueToken(userID uuid.UUID, ttl time.Duration) (string, error) {
	if len(as.secret) == 0 {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	claims := JWTClaims{
		SessionID: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    as.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(as.secret)
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	if tokenString == "" {
		return ctx, ErrNotAuthenticated
	}
	if len(as.secret) == 0 {
		return ctx, errors.New("jwt secret not configured")
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if as.issuer != "" {
		opts = append(opts, jwt.WithIssuer(as.issuer))
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return as.secret, nil
	}, opts...)
	if err != nil {
		return ctx, fmt.Errorf("failed to parse token: %w", err)
	}
	claims, ok := parsed.Claims.(*JWTClaims)
	if !ok || !parsed.Valid {
		return ctx, errors.New("invalid or expired token")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return ctx, fmt.Errorf("invalid user id in token")
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{UserID: userID, SessionID: claims.SessionID}), nil
}
