package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/anshtyagi9/Banking-API-Project/internal/domain"
	"github.com/anshtyagi9/Banking-API-Project/internal/infrastructure/database"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository/users_repo"
)

type UserRepository struct {
	querier domain.Querier
}

func NewUserRepository(querier domain.Querier) *UserRepository {
	return &UserRepository{querier: querier}
}

func (r *UserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, username, full_name, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.querier.ExecContext(ctx, query,
		user.ID, user.Username, user.FullName, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		if database.ErrorCode(err) == database.CodeUniqueViolation {
			return domain.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user %s: %w", user.Username, err)
	}
	return nil
}

func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getUser(ctx, `WHERE id = $1`, id)
}

func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getUser(ctx, `WHERE username = $1`, username)
}

func (r *UserRepository) getUser(ctx context.Context, where string, arg string) (*domain.User, error) {
	query := `SELECT id, username, full_name, email, password_hash, created_at FROM users ` + where
	user := &domain.User{}
	err := r.querier.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.FullName,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

var _ users_repo.UserRepository = (*UserRepository)(nil)
