// Package testutil provides in-memory repositories that reproduce the
// Postgres repositories' ordering and error behavior for service tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"filetree/internal/domain"
	"filetree/internal/domain/models"
	structmodels "filetree/internal/domain/models/structure"

	"github.com/google/uuid"
)

// Store backs the three in-memory repositories with shared state so the
// grant/user join behaves like the SQL one.
type Store struct {
	mu     sync.Mutex
	nodes  map[string]structmodels.Node
	grants map[string]structmodels.Grant
	users  map[string]models.User
	clock  time.Time

	// Calls counts repository invocations by method name
	Calls map[string]int
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		nodes:  map[string]structmodels.Node{},
		grants: map[string]structmodels.Grant{},
		users:  map[string]models.User{},
		clock:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Calls:  map[string]int{},
	}
}

// Nodes returns the NodeRepository view of the store
func (s *Store) Nodes() *NodeRepo { return &NodeRepo{s: s} }

// Grants returns the GrantRepository view of the store
func (s *Store) Grants() *GrantRepo { return &GrantRepo{s: s} }

// Users returns the UserRepository view of the store
func (s *Store) Users() *UserRepo { return &UserRepo{s: s} }

// GrantCount returns the number of stored grant rows
func (s *Store) GrantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.grants)
}

// PutNode inserts a node verbatim, bypassing parent checks. Used to build
// corrupt fixtures such as parent cycles.
func (s *Store) PutNode(n structmodels.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID] = n
}

func (s *Store) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *Store) call(name string) {
	s.Calls[name]++
}

// NodeRepo is an in-memory NodeRepository
type NodeRepo struct{ s *Store }

func (r *NodeRepo) Create(ctx context.Context, node *structmodels.Node) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.call("nodes.Create")

	if node.ParentID != nil {
		parent, ok := r.s.nodes[*node.ParentID]
		if !ok {
			return fmt.Errorf("parent %s: %w", *node.ParentID, domain.ErrNotFound)
		}
		if parent.Type != structmodels.NodeTypeFolder {
			return domain.NewValidationError("parent must be a folder")
		}
	}
	node.ID = uuid.NewString()
	node.CreatedAt = r.s.tick()
	r.s.nodes[node.ID] = *node
	return nil
}

func (r *NodeRepo) GetByID(ctx context.Context, id string) (*structmodels.Node, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.call("nodes.GetByID")

	n, ok := r.s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", id, domain.ErrNotFound)
	}
	return &n, nil
}

func (r *NodeRepo) ListAll(ctx context.Context) ([]structmodels.Node, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.call("nodes.ListAll")

	nodes := r.s.snapshot(func(structmodels.Node) bool { return true })
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Type != nodes[j].Type {
			return nodes[i].Type < nodes[j].Type
		}
		return nodes[i].Name < nodes[j].Name
	})
	return nodes, nil
}

func (r *NodeRepo) ListChildren(ctx context.Context, parentID *string) ([]structmodels.Node, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.call("nodes.ListChildren")

	nodes := r.s.snapshot(func(n structmodels.Node) bool {
		if parentID == nil {
			return n.ParentID == nil
		}
		return n.ParentID != nil && *n.ParentID == *parentID
	})
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Type != nodes[j].Type {
			return nodes[i].Type > nodes[j].Type
		}
		return nodes[i].Name < nodes[j].Name
	})
	return nodes, nil
}

func (r *NodeRepo) Update(ctx context.Context, node *structmodels.Node) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.call("nodes.Update")

	existing, ok := r.s.nodes[node.ID]
	if !ok {
		return fmt.Errorf("node %s: %w", node.ID, domain.ErrNotFound)
	}
	if node.Type == structmodels.NodeTypeFile && r.s.countChildren(node.ID) > 0 {
		return &domain.ConflictError{
			Message:      "folder with children cannot become a file",
			ResourceType: "node",
			ResourceID:   node.ID,
		}
	}
	existing.Name = node.Name
	existing.Type = node.Type
	r.s.nodes[node.ID] = existing
	return nil
}

func (r *NodeRepo) DeleteIfChildless(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.call("nodes.DeleteIfChildless")

	if _, ok := r.s.nodes[id]; !ok {
		return fmt.Errorf("node %s: %w", id, domain.ErrNotFound)
	}
	if r.s.countChildren(id) > 0 {
		return &domain.ConflictError{Message: "cannot delete folder with children", ResourceType: "node", ResourceID: id}
	}
	delete(r.s.nodes, id)
	return nil
}

func (r *NodeRepo) ListLinks(ctx context.Context) ([]structmodels.NodeLink, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.call("nodes.ListLinks")

	links := make([]structmodels.NodeLink, 0, len(r.s.nodes))
	for _, n := range r.s.sortedNodes() {
		links = append(links, structmodels.NodeLink{ID: n.ID, ParentID: n.ParentID, OwnerID: n.OwnerID})
	}
	return links, nil
}

// GrantRepo is an in-memory GrantRepository
type GrantRepo struct{ s *Store }

func (r *GrantRepo) Upsert(ctx context.Context, grant *structmodels.Grant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.call("grants.Upsert")

	grant.UpdatedAt = r.s.tick()
	for id, g := range r.s.grants {
		if g.FolderID == grant.FolderID && g.UserID == grant.UserID {
			grant.ID = id
			r.s.grants[id] = *grant
			return nil
		}
	}
	grant.ID = uuid.NewString()
	r.s.grants[grant.ID] = *grant
	return nil
}

func (r *GrantRepo) GetByID(ctx context.Context, id string) (*structmodels.Grant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.call("grants.GetByID")

	g, ok := r.s.grants[id]
	if !ok {
		return nil, fmt.Errorf("grant %s: %w", id, domain.ErrNotFound)
	}
	return &g, nil
}

func (r *GrantRepo) Get(ctx context.Context, folderID, userID string) (*structmodels.Grant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.call("grants.Get")

	if g, ok := r.s.findGrant(folderID, userID); ok {
		return &g, nil
	}
	return nil, fmt.Errorf("grant for folder %s: %w", folderID, domain.ErrNotFound)
}

func (r *GrantRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.call("grants.Delete")

	if _, ok := r.s.grants[id]; !ok {
		return fmt.Errorf("grant %s: %w", id, domain.ErrNotFound)
	}
	delete(r.s.grants, id)
	return nil
}

func (r *GrantRepo) HasCapability(ctx context.Context, userID, folderID string, action structmodels.Action) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.call("grants.HasCapability")

	g, ok := r.s.findGrant(folderID, userID)
	if !ok {
		return false, nil
	}
	return g.Allows(action), nil
}

func (r *GrantRepo) ListByFolder(ctx context.Context, folderID string) ([]structmodels.GrantWithUser, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.call("grants.ListByFolder")

	out := []structmodels.GrantWithUser{}
	for _, g := range r.s.grants {
		if g.FolderID != folderID {
			continue
		}
		u := r.s.users[g.UserID]
		out = append(out, structmodels.GrantWithUser{Grant: g, UserName: u.Name, UserEmail: u.Email})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserName < out[j].UserName })
	return out, nil
}

func (r *GrantRepo) ListByUser(ctx context.Context, userID string) ([]structmodels.Grant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.call("grants.ListByUser")

	out := []structmodels.Grant{}
	for _, g := range r.s.grants {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FolderID < out[j].FolderID })
	return out, nil
}

func (r *GrantRepo) ListUsersWithPermissions(ctx context.Context, folderID string) ([]structmodels.UserPermissions, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.call("grants.ListUsersWithPermissions")

	out := []structmodels.UserPermissions{}
	for _, u := range r.s.sortedUsers() {
		up := structmodels.UserPermissions{UserID: u.ID, Name: u.Name, Email: u.Email}
		if g, ok := r.s.findGrant(folderID, u.ID); ok {
			up.Capabilities = g.Capabilities
		}
		out = append(out, up)
	}
	return out, nil
}

// UserRepo is an in-memory UserRepository
type UserRepo struct{ s *Store }

func (r *UserRepo) List(ctx context.Context) ([]models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.sortedUsers(), nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return &u, nil
}

func (r *UserRepo) Upsert(ctx context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if existing, ok := r.s.users[user.ID]; ok {
		user.CreatedAt = existing.CreatedAt
	} else {
		user.CreatedAt = r.s.tick()
	}
	r.s.users[user.ID] = *user
	return nil
}

func (s *Store) snapshot(keep func(structmodels.Node) bool) []structmodels.Node {
	out := []structmodels.Node{}
	for _, n := range s.sortedNodes() {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

// sortedNodes orders by creation so map iteration never leaks into results
func (s *Store) sortedNodes() []structmodels.Node {
	out := make([]structmodels.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) sortedUsers() []models.User {
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Store) countChildren(id string) int {
	count := 0
	for _, n := range s.nodes {
		if n.ParentID != nil && *n.ParentID == id {
			count++
		}
	}
	return count
}

func (s *Store) findGrant(folderID, userID string) (structmodels.Grant, bool) {
	for _, g := range s.grants {
		if g.FolderID == folderID && g.UserID == userID {
			return g, true
		}
	}
	return structmodels.Grant{}, false
}
