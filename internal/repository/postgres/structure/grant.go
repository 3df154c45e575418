package structure

import (
	"context"
	"fmt"

	"filetree/internal/domain"
	models "filetree/internal/domain/models/structure"
	structureRepo "filetree/internal/domain/repositories/structure"
	"filetree/internal/repository/postgres"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresGrantRepository implements the GrantRepository interface
type PostgresGrantRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
}

// NewGrantRepository creates a new grant repository
func NewGrantRepository(config *postgres.RepositoryConfig) structureRepo.GrantRepository {
	return &PostgresGrantRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

const grantColumns = `id, folder_id, user_id, can_view, can_edit, can_delete, can_create, can_upload, granted_by, updated_at`

// Upsert writes all five flags for (folder_id, user_id) in one statement.
// An existing row keeps its id.
func (r *PostgresGrantRepository) Upsert(ctx context.Context, grant *models.Grant) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, folder_id, user_id, can_view, can_edit, can_delete, can_create, can_upload, granted_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (folder_id, user_id) DO UPDATE SET
			can_view = EXCLUDED.can_view,
			can_edit = EXCLUDED.can_edit,
			can_delete = EXCLUDED.can_delete,
			can_create = EXCLUDED.can_create,
			can_upload = EXCLUDED.can_upload,
			granted_by = EXCLUDED.granted_by,
			updated_at = EXCLUDED.updated_at
		RETURNING id, updated_at
	`, r.tables.Permissions)

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		uuid.NewString(),
		grant.FolderID,
		grant.UserID,
		grant.CanView,
		grant.CanEdit,
		grant.CanDelete,
		grant.CanCreate,
		grant.CanUpload,
		grant.GrantedBy,
	).Scan(&grant.ID, &grant.UpdatedAt)
	if err != nil {
		if postgres.IsPgInvalidInputError(err) {
			return domain.NewValidationError("folder, user and grantor must be valid ids")
		}
		return fmt.Errorf("upsert grant: %w", err)
	}

	return nil
}

// GetByID retrieves a grant by ID
func (r *PostgresGrantRepository) GetByID(ctx context.Context, id string) (*models.Grant, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, grantColumns, r.tables.Permissions)

	executor := postgres.GetExecutor(ctx, r.pool)
	grant, err := scanGrant(executor.QueryRow(ctx, query, id))
	if err != nil {
		if postgres.IsPgNoRowsError(err) || postgres.IsPgInvalidInputError(err) {
			return nil, fmt.Errorf("grant %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get grant: %w", err)
	}
	return grant, nil
}

// Get retrieves the grant for (folderID, userID)
func (r *PostgresGrantRepository) Get(ctx context.Context, folderID, userID string) (*models.Grant, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE folder_id = $1 AND user_id = $2
	`, grantColumns, r.tables.Permissions)

	executor := postgres.GetExecutor(ctx, r.pool)
	grant, err := scanGrant(executor.QueryRow(ctx, query, folderID, userID))
	if err != nil {
		if postgres.IsPgNoRowsError(err) || postgres.IsPgInvalidInputError(err) {
			return nil, fmt.Errorf("grant for folder %s: %w", folderID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get grant: %w", err)
	}
	return grant, nil
}

// Delete removes a grant by ID
func (r *PostgresGrantRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tables.Permissions)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, id)
	if err != nil {
		if postgres.IsPgInvalidInputError(err) {
			return fmt.Errorf("grant %s: %w", id, domain.ErrNotFound)
		}
		return fmt.Errorf("delete grant: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("grant %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// HasCapability reads the single flag mapped to action
func (r *PostgresGrantRepository) HasCapability(ctx context.Context, userID, folderID string, action models.Action) (bool, error) {
	column, ok := capabilityColumn(action)
	if !ok {
		return false, nil
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE folder_id = $1 AND user_id = $2
	`, column, r.tables.Permissions)

	var allowed bool
	executor := postgres.GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, folderID, userID).Scan(&allowed); err != nil {
		if postgres.IsPgNoRowsError(err) || postgres.IsPgInvalidInputError(err) {
			return false, nil
		}
		return false, fmt.Errorf("check capability: %w", err)
	}
	return allowed, nil
}

// ListByFolder returns the folder's grants with grantee name and email
func (r *PostgresGrantRepository) ListByFolder(ctx context.Context, folderID string) ([]models.GrantWithUser, error) {
	query := fmt.Sprintf(`
		SELECT p.id, p.folder_id, p.user_id, p.can_view, p.can_edit, p.can_delete, p.can_create, p.can_upload,
		       p.granted_by, p.updated_at, COALESCE(u.name, ''), COALESCE(u.email, '')
		FROM %s p
		LEFT JOIN %s u ON u.id = p.user_id
		WHERE p.folder_id = $1
		ORDER BY u.name ASC NULLS LAST, p.updated_at ASC
	`, r.tables.Permissions, r.tables.Users)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, folderID)
	if err != nil {
		if postgres.IsPgInvalidInputError(err) {
			return []models.GrantWithUser{}, nil
		}
		return nil, fmt.Errorf("list folder grants: %w", err)
	}
	defer rows.Close()

	grants := []models.GrantWithUser{}
	for rows.Next() {
		var g models.GrantWithUser
		err := rows.Scan(
			&g.ID, &g.FolderID, &g.UserID,
			&g.CanView, &g.CanEdit, &g.CanDelete, &g.CanCreate, &g.CanUpload,
			&g.GrantedBy, &g.UpdatedAt,
			&g.UserName, &g.UserEmail,
		)
		if err != nil {
			return nil, fmt.Errorf("scan folder grant: %w", err)
		}
		grants = append(grants, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate folder grants: %w", err)
	}
	return grants, nil
}

// ListByUser returns every grant held by userID
func (r *PostgresGrantRepository) ListByUser(ctx context.Context, userID string) ([]models.Grant, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE user_id = $1`, grantColumns, r.tables.Permissions)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID)
	if err != nil {
		if postgres.IsPgInvalidInputError(err) {
			return []models.Grant{}, nil
		}
		return nil, fmt.Errorf("list user grants: %w", err)
	}
	defer rows.Close()

	grants := []models.Grant{}
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user grant: %w", err)
		}
		grants = append(grants, *g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user grants: %w", err)
	}
	return grants, nil
}

// ListUsersWithPermissions returns every user; users without a grant get all flags false
func (r *PostgresGrantRepository) ListUsersWithPermissions(ctx context.Context, folderID string) ([]models.UserPermissions, error) {
	if _, err := uuid.Parse(folderID); err != nil {
		folderID = uuid.Nil.String()
	}

	query := fmt.Sprintf(`
		SELECT u.id, u.name, u.email,
		       COALESCE(p.can_view, FALSE), COALESCE(p.can_edit, FALSE), COALESCE(p.can_delete, FALSE),
		       COALESCE(p.can_create, FALSE), COALESCE(p.can_upload, FALSE)
		FROM %s u
		LEFT JOIN %s p ON p.user_id = u.id AND p.folder_id = $1
		ORDER BY u.name ASC
	`, r.tables.Users, r.tables.Permissions)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, folderID)
	if err != nil {
		return nil, fmt.Errorf("list users with permissions: %w", err)
	}
	defer rows.Close()

	users := []models.UserPermissions{}
	for rows.Next() {
		var u models.UserPermissions
		err := rows.Scan(
			&u.UserID, &u.Name, &u.Email,
			&u.CanView, &u.CanEdit, &u.CanDelete, &u.CanCreate, &u.CanUpload,
		)
		if err != nil {
			return nil, fmt.Errorf("scan user permissions: %w", err)
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user permissions: %w", err)
	}
	return users, nil
}

func scanGrant(row pgx.Row) (*models.Grant, error) {
	var g models.Grant
	err := row.Scan(
		&g.ID, &g.FolderID, &g.UserID,
		&g.CanView, &g.CanEdit, &g.CanDelete, &g.CanCreate, &g.CanUpload,
		&g.GrantedBy, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// capabilityColumn maps an action to its flag column; it is the only source
// of column names interpolated into HasCapability.
func capabilityColumn(action models.Action) (string, bool) {
	switch action {
	case models.ActionView:
		return "can_view", true
	case models.ActionEdit:
		return "can_edit", true
	case models.ActionDelete:
		return "can_delete", true
	case models.ActionCreate:
		return "can_create", true
	case models.ActionUpload:
		return "can_upload", true
	default:
		return "", false
	}
}
