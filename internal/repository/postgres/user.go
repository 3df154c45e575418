package postgres

import (
	"context"
	"fmt"
	"time"

	"filetree/internal/domain"
	"filetree/internal/domain/models"
	"filetree/internal/domain/repositories"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresUserRepository implements the UserRepository interface
type PostgresUserRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewUserRepository creates a new user directory repository
func NewUserRepository(config *RepositoryConfig) repositories.UserRepository {
	return &PostgresUserRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// List returns every user ordered by name
func (r *PostgresUserRepository) List(ctx context.Context) ([]models.User, error) {
	query := fmt.Sprintf(`
		SELECT id, name, email, created_at
		FROM %s
		ORDER BY name ASC
	`, r.tables.Users)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// GetByID retrieves a user by ID
func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf(`
		SELECT id, name, email, created_at
		FROM %s
		WHERE id = $1
	`, r.tables.Users)

	var u models.User
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, id).Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt)
	if err != nil {
		if IsPgNoRowsError(err) || IsPgInvalidInputError(err) {
			return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// Upsert creates or updates a user keyed by ID
func (r *PostgresUserRepository) Upsert(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, name, email, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email
		RETURNING created_at
	`, r.tables.Users)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, user.ID, user.Name, user.Email, user.CreatedAt).Scan(&user.CreatedAt)
	if err != nil {
		if IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("email '%s' already in use", user.Email),
				ResourceType: "user",
				ResourceID:   user.ID,
			}
		}
		if IsPgInvalidInputError(err) {
			return domain.NewValidationError("user id must be a UUID")
		}
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}
