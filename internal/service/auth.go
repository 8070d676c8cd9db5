package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
	"github.com/boddenberg/finance-tracker-go/internal/port"
)

var authTracer = otel.Tracer("service/auth")

const (
	bcryptCost        = 12
	minPasswordLength = 8
	tokenIssuer       = "finance-tracker"
	accessTokenType   = "access"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.@+-]{3,150}$`)

// AuthService registers users and issues the access tokens that scope every
// ledger and report request to one owner.
type AuthService struct {
	store     port.UserStore
	jwtSecret []byte
	accessTTL time.Duration
	logger    *zap.Logger
	cost      int
}

// NewAuthService creates a new auth service.
func NewAuthService(store port.UserStore, jwtSecret string, accessTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		store:     store,
		jwtSecret: []byte(jwtSecret),
		accessTTL: accessTTL,
		logger:    logger,
		cost:      bcryptCost,
	}
}

// WithBcryptCost overrides the hashing cost (tests use bcrypt.MinCost).
func (s *AuthService) WithBcryptCost(cost int) *AuthService {
	s.cost = cost
	return s
}

// ============================================================
// Register: POST /v1/auth/register
// ============================================================

func (s *AuthService) Register(ctx context.Context, req *domain.Credentials) (*domain.User, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Register")
	defer span.End()

	username := strings.TrimSpace(req.Username)
	if !usernamePattern.MatchString(username) {
		return nil, &domain.ErrValidation{Field: "username", Message: "must be 3-150 letters, digits or _.@+-"}
	}
	if len(req.Password) < minPasswordLength {
		return nil, &domain.ErrValidation{Field: "password", Message: fmt.Sprintf("must be at least %d characters", minPasswordLength)}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &domain.User{
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered", zap.String("user_id", u.ID), zap.String("username", username))
	return u, nil
}

// ============================================================
// Login: POST /v1/auth/login
// ============================================================

func (s *AuthService) Login(ctx context.Context, req *domain.Credentials) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()
	span.SetAttributes(attribute.String("username", req.Username))

	u, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		var nf *domain.ErrNotFound
		if errors.As(err, &nf) {
			return nil, &domain.ErrUnauthorized{Message: "invalid username or password"}
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn("login: wrong password", zap.String("user_id", u.ID))
		return nil, &domain.ErrUnauthorized{Message: "invalid username or password"}
	}

	token, err := s.signAccessToken(u)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	s.logger.Info("user logged in", zap.String("user_id", u.ID))
	return &domain.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int(s.accessTTL.Seconds()),
		UserID:      u.ID,
		Username:    u.Username,
	}, nil
}

// ============================================================
// ValidateAccessToken: used by middleware
// ============================================================

// Claims are the custom claims carried by access tokens. Subject is the
// user ID.
type Claims struct {
	Username string `json:"username"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

func (s *AuthService) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	if claims.Type != accessTokenType {
		return nil, &domain.ErrUnauthorized{Message: "invalid token type"}
	}
	return claims, nil
}

func (s *AuthService) signAccessToken(u *domain.User) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: u.Username,
		Type:     accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    tokenIssuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}
