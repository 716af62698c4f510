package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/anshtyagi9/Banking-API-Project/internal/domain"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository"
	"github.com/anshtyagi9/Banking-API-Project/internal/util"
)

const (
	minPasswordLength = 8
	maxUsernameLength = 64
)

type RegisterInput struct {
	Username string
	Password string
	FullName string
	Email    string
}

type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

type Service interface {
	Register(ctx context.Context, input RegisterInput) (*domain.User, *domain.Account, error)
	Login(ctx context.Context, username, password string) (*Session, error)
	Authenticate(token string) (string, error)
	OpenAccount(ctx context.Context, ownerID string) (*domain.Account, error)
}

type service struct {
	txManager  repository.TxManager
	tokens     *TokenIssuer
	bcryptCost int
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(txManager repository.TxManager, tokens *TokenIssuer, bcryptCost int, logger *zap.Logger) Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &service{
		txManager:  txManager,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		logger:     logger,
		now:        time.Now,
	}
}

// Register creates the user together with its first account.
func (s *service) Register(ctx context.Context, input RegisterInput) (*domain.User, *domain.Account, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)
	if err := validateRegistration(input); err != nil {
		return nil, nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		ID:           util.GenerateUUID(),
		Username:     input.Username,
		FullName:     strings.TrimSpace(input.FullName),
		Email:        input.Email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	var account *domain.Account
	err = s.txManager.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Users().CreateUser(ctx, user); err != nil {
			return err
		}
		account, err = repos.Accounts().CreateAccount(ctx, user.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrUserAlreadyExists) {
			s.logger.Info("Registration rejected, username taken", zap.String("username", input.Username))
		} else {
			s.logger.Error("Failed to register user", zap.String("username", input.Username), zap.Error(err))
		}
		return nil, nil, err
	}

	s.logger.Info("User registered", zap.String("user_id", user.ID), zap.String("account_id", account.ID))
	user.PasswordHash = ""
	return user, account, nil
}

func (s *service) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.txManager.Repositories().Users().GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("Login rejected", zap.String("user_id", user.ID))
		return nil, domain.ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, UserID: user.ID, ExpiresAt: expiresAt}, nil
}

func (s *service) Authenticate(token string) (string, error) {
	return s.tokens.Verify(token)
}

func (s *service) OpenAccount(ctx context.Context, ownerID string) (*domain.Account, error) {
	acc, err := s.txManager.Repositories().Accounts().CreateAccount(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Account opened", zap.String("owner_id", ownerID), zap.String("account_id", acc.ID))
	return acc, nil
}

func validateRegistration(input RegisterInput) error {
	switch {
	case input.Username == "" || len(input.Username) > maxUsernameLength:
		return fmt.Errorf("username must be 1 to %d characters: %w", maxUsernameLength, domain.ErrInvalidInput)
	case len(input.Password) < minPasswordLength:
		return fmt.Errorf("password must be at least %d characters: %w", minPasswordLength, domain.ErrInvalidInput)
	}
	if input.Email != "" {
		if _, err := mail.ParseAddress(input.Email); err != nil {
			return fmt.Errorf("email %q is not valid: %w", input.Email, domain.ErrInvalidInput)
		}
	}
	return nil
}
