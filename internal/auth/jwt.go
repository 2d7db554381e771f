package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"fish-tracker/internal/model"
)

var (
	ErrInvalidToken = errors.New("invalid admin token")
	ErrUnknownRole  = errors.New("unknown admin role")
)

// Claims identify an admin session.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type TokenConfig struct {
	Secret string
	Expiry time.Duration
	Issuer string
}

func DefaultTokenConfig(secret string) TokenConfig {
	return TokenConfig{
		Secret: secret,
		Expiry: 24 * time.Hour,
		Issuer: "fish-tracker",
	}
}

func knownRole(role string) bool {
	return role == model.RoleAdmin || role == model.RoleSuperAdmin
}

// CreateToken signs an HS256 admin token carrying username and role.
func CreateToken(username, role string, cfg TokenConfig) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", errors.New("missing secret")
	case username == "":
		return "", errors.New("missing username")
	case cfg.Expiry <= 0:
		return "", errors.New("invalid expiry")
	case !knownRole(role):
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	now := time.Now()
	claims := Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.Expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}

// VerifyToken accepts only HS256 tokens with an expiry, a username and a
// known role. The issuer is checked when cfg sets one.
func VerifyToken(tokenString string, cfg TokenConfig) (*Claims, error) {
	if cfg.Secret == "" {
		return nil, errors.New("missing secret")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Username == "" || !knownRole(claims.Role) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
