package structure

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"filetree/internal/domain"
	models "filetree/internal/domain/models/structure"
	structureRepo "filetree/internal/domain/repositories/structure"
	"filetree/internal/repository/postgres"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresNodeRepository implements the NodeRepository interface
type PostgresNodeRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	schema *postgres.SchemaCapabilities
	logger *slog.Logger
}

// NewNodeRepository creates a new node repository
func NewNodeRepository(config *postgres.RepositoryConfig) structureRepo.NodeRepository {
	return &PostgresNodeRepository{
		pool:   config.Pool,
		tables: config.Tables,
		schema: config.Schema,
		logger: config.Logger,
	}
}

// ownerExpr selects owner_id, or a typed NULL on schemas without the column
func (r *PostgresNodeRepository) ownerExpr() string {
	if r.schema.HasOwnerColumn() {
		return "owner_id"
	}
	return "NULL::uuid AS owner_id"
}

func (r *PostgresNodeRepository) columns() string {
	return "id, name, type, parent_id, file_path, " + r.ownerExpr() + ", created_at"
}

// Create inserts a node with a generated id. The insert only happens when the
// parent is absent or is a folder, so a file can never gain children.
func (r *PostgresNodeRepository) Create(ctx context.Context, node *models.Node) error {
	node.ID = uuid.NewString()
	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now().UTC()
	}

	var (
		columns string
		values  string
		args    []any
	)
	if r.schema.HasOwnerColumn() {
		columns = "id, name, type, parent_id, file_path, owner_id, created_at"
		values = "$1::uuid, $2::varchar, $3::varchar, $4::uuid, $5::text, $6::uuid, $7::timestamptz"
		args = []any{node.ID, node.Name, node.Type, node.ParentID, node.FilePath, node.OwnerID, node.CreatedAt}
	} else {
		columns = "id, name, type, parent_id, file_path, created_at"
		values = "$1::uuid, $2::varchar, $3::varchar, $4::uuid, $5::text, $6::timestamptz"
		args = []any{node.ID, node.Name, node.Type, node.ParentID, node.FilePath, node.CreatedAt}
		if node.OwnerID != nil {
			r.logger.Debug("owner column absent, node stored without owner", "node_id", node.ID)
			node.OwnerID = nil
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s)
		SELECT %[3]s
		WHERE $4::uuid IS NULL
		   OR EXISTS (SELECT 1 FROM %[1]s AS p WHERE p.id = $4::uuid AND p.type = 'folder')
		RETURNING created_at
	`, r.tables.Structure, columns, values)

	executor := postgres.GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, args...).Scan(&node.CreatedAt); err != nil {
		switch {
		case postgres.IsPgNoRowsError(err):
			// Filtered out: the parent is missing or is a file
			if _, getErr := r.GetByID(ctx, deref(node.ParentID)); getErr != nil {
				return fmt.Errorf("parent %s: %w", deref(node.ParentID), domain.ErrNotFound)
			}
			return domain.NewValidationError("parent must be a folder")
		case postgres.IsPgForeignKeyError(err):
			return fmt.Errorf("parent %s: %w", deref(node.ParentID), domain.ErrNotFound)
		case postgres.IsPgCheckError(err):
			return domain.NewValidationError("node violates structure constraints")
		case postgres.IsPgInvalidInputError(err):
			return fmt.Errorf("parent %s: %w", deref(node.ParentID), domain.ErrNotFound)
		}
		return fmt.Errorf("create node: %w", err)
	}

	return nil
}

// GetByID retrieves a node by ID
func (r *PostgresNodeRepository) GetByID(ctx context.Context, id string) (*models.Node, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE id = $1
	`, r.columns(), r.tables.Structure)

	executor := postgres.GetExecutor(ctx, r.pool)
	node, err := scanNode(executor.QueryRow(ctx, query, id))
	if err != nil {
		if postgres.IsPgNoRowsError(err) || postgres.IsPgInvalidInputError(err) {
			return nil, fmt.Errorf("node %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get node: %w", err)
	}

	return node, nil
}

// ListAll returns every node ordered by type string then name, so files
// ('file' < 'folder') come first
func (r *PostgresNodeRepository) ListAll(ctx context.Context) ([]models.Node, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		ORDER BY type ASC, name ASC
	`, r.columns(), r.tables.Structure)

	return r.list(ctx, query)
}

// ListChildren returns one level ordered by type descending, so folders come
// first here, then by name
func (r *PostgresNodeRepository) ListChildren(ctx context.Context, parentID *string) ([]models.Node, error) {
	if parentID == nil {
		query := fmt.Sprintf(`
			SELECT %s
			FROM %s
			WHERE parent_id IS NULL
			ORDER BY type DESC, name ASC
		`, r.columns(), r.tables.Structure)
		return r.list(ctx, query)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE parent_id = $1
		ORDER BY type DESC, name ASC
	`, r.columns(), r.tables.Structure)
	nodes, err := r.list(ctx, query, *parentID)
	if err != nil && postgres.IsPgInvalidInputError(err) {
		return []models.Node{}, nil
	}
	return nodes, err
}

// Update persists name and type. Retyping a node with children to file is
// refused in the same statement.
func (r *PostgresNodeRepository) Update(ctx context.Context, node *models.Node) error {
	query := fmt.Sprintf(`
		UPDATE %[1]s AS n
		SET name = $1, type = $2
		WHERE n.id = $3
		  AND ($2 <> 'file' OR NOT EXISTS (SELECT 1 FROM %[1]s AS c WHERE c.parent_id = n.id))
	`, r.tables.Structure)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, node.Name, node.Type, node.ID)
	if err != nil {
		switch {
		case postgres.IsPgCheckError(err):
			return domain.NewValidationError("node violates structure constraints")
		case postgres.IsPgInvalidInputError(err):
			return fmt.Errorf("node %s: %w", node.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("update node: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Either the node is gone or it has children and was retyped to file
		if _, err := r.GetByID(ctx, node.ID); err != nil {
			return err
		}
		return hasChildrenRetypeConflict(node.ID)
	}

	return nil
}

// DeleteIfChildless deletes the row only while no child references it.
// The NOT EXISTS re-check and the RESTRICT foreign key together close the
// window between checking for children and deleting.
func (r *PostgresNodeRepository) DeleteIfChildless(ctx context.Context, id string) error {
	query := fmt.Sprintf(`
		DELETE FROM %[1]s AS n
		WHERE n.id = $1
		  AND NOT EXISTS (SELECT 1 FROM %[1]s AS c WHERE c.parent_id = n.id)
	`, r.tables.Structure)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, id)
	if err != nil {
		switch {
		case postgres.IsPgForeignKeyError(err):
			return hasChildrenConflict(id)
		case postgres.IsPgInvalidInputError(err):
			return fmt.Errorf("node %s: %w", id, domain.ErrNotFound)
		}
		return fmt.Errorf("delete node: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Either the node is gone or it still has children
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return hasChildrenConflict(id)
	}

	return nil
}

// ListLinks returns the (id, parent_id, owner_id) projection of every node
func (r *PostgresNodeRepository) ListLinks(ctx context.Context) ([]models.NodeLink, error) {
	query := fmt.Sprintf(`SELECT id, parent_id, %s FROM %s`, r.ownerExpr(), r.tables.Structure)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list node links: %w", err)
	}
	defer rows.Close()

	links := []models.NodeLink{}
	for rows.Next() {
		var link models.NodeLink
		if err := rows.Scan(&link.ID, &link.ParentID, &link.OwnerID); err != nil {
			return nil, fmt.Errorf("scan node link: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate node links: %w", err)
	}

	return links, nil
}

func (r *PostgresNodeRepository) list(ctx context.Context, query string, args ...any) ([]models.Node, error) {
	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	nodes := []models.Node{}
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, *node)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}

	return nodes, nil
}

func scanNode(row pgx.Row) (*models.Node, error) {
	var node models.Node
	err := row.Scan(
		&node.ID,
		&node.Name,
		&node.Type,
		&node.ParentID,
		&node.FilePath,
		&node.OwnerID,
		&node.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func hasChildrenConflict(id string) error {
	return &domain.ConflictError{
		Message:      "cannot delete folder with children",
		ResourceType: "node",
		ResourceID:   id,
	}
}

func hasChildrenRetypeConflict(id string) error {
	return &domain.ConflictError{
		Message:      "folder with children cannot become a file",
		ResourceType: "node",
		ResourceID:   id,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
