package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	userdomain "github.com/landovsky/gmail-assistant-sub002/internal/user/domain"
	userrepo "github.com/landovsky/gmail-assistant-sub002/internal/user/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is the lifetime of an operator token when none is given.
const DefaultTokenTTL = 30 * 24 * time.Hour

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUnknownUser  = errors.New("user not found")
)

// AuthUsecase issues and validates the bearer tokens that protect the
// debug API.
type AuthUsecase interface {
	IssueToken(ctx context.Context, email string, ttl time.Duration) (string, error)
	ValidateToken(ctx context.Context, tokenString string) (*userdomain.User, error)
}

// authUsecase implements AuthUsecase interface
type authUsecase struct {
	userRepo userrepo.UserRepository
	secret   []byte
}

// NewAuthUsecase creates a new instance of authUsecase
func NewAuthUsecase(userRepo userrepo.UserRepository, jwtSecret string) AuthUsecase {
	return &authUsecase{
		userRepo: userRepo,
		secret:   []byte(jwtSecret),
	}
}

func (u *authUsecase) IssueToken(ctx context.Context, email string, ttl time.Duration) (string, error) {
	user, err := u.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownUser, email)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"user_id":  user.ID,
		"email":    user.Email,
		"token_id": uuid.New().String(),
		"exp":      now.Add(ttl).Unix(),
		"iat":      now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(u.secret)
}

func (u *authUsecase) ValidateToken(ctx context.Context, tokenString string) (*userdomain.User, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return u.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())

	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return nil, ErrInvalidToken
	}

	user, err := u.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user == nil || !user.IsActive {
		return nil, ErrUnknownUser
	}

	return user, nil
}
