// Package seed loads YAML fixtures describing users, a node hierarchy and
// grants, and writes them through the repositories.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"filetree/internal/domain/models"
	structModels "filetree/internal/domain/models/structure"
	"filetree/internal/domain/repositories"
	structureRepo "filetree/internal/domain/repositories/structure"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Fixture is the top-level document of a seed file
type Fixture struct {
	Users  []UserFixture  `yaml:"users"`
	Nodes  []NodeFixture  `yaml:"nodes"`
	Grants []GrantFixture `yaml:"grants"`
}

// UserFixture describes a directory user. ID is generated when empty.
type UserFixture struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// NodeFixture describes a node and its nested children.
// Owner refers to a user by name.
type NodeFixture struct {
	Name     string        `yaml:"name"`
	Type     string        `yaml:"type"`
	Owner    string        `yaml:"owner"`
	FilePath string        `yaml:"file_path"`
	Children []NodeFixture `yaml:"children"`
}

// GrantFixture grants capabilities on a folder addressed by its slash path,
// e.g. "Docs/Reports". User and GrantedBy refer to users by name.
type GrantFixture struct {
	Folder    string `yaml:"folder"`
	User      string `yaml:"user"`
	GrantedBy string `yaml:"granted_by"`
	View      bool   `yaml:"view"`
	Edit      bool   `yaml:"edit"`
	Delete    bool   `yaml:"delete"`
	Create    bool   `yaml:"create"`
	Upload    bool   `yaml:"upload"`
}

// Result summarises what a seed run wrote
type Result struct {
	Users  int
	Nodes  int
	Grants int
	// Paths maps each node's slash path to its generated id
	Paths map[string]string
}

// LoadFile parses a fixture file
func LoadFile(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return Parse(data)
}

// Parse decodes a fixture, rejecting unknown keys
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return &f, nil
}

// Seeder writes fixtures through the repositories, bypassing service gates
type Seeder struct {
	users     repositories.UserRepository
	nodes     structureRepo.NodeRepository
	grants    structureRepo.GrantRepository
	txManager repositories.TransactionManager
	logger    *slog.Logger
}

// NewSeeder creates a new seeder
func NewSeeder(
	users repositories.UserRepository,
	nodes structureRepo.NodeRepository,
	grants structureRepo.GrantRepository,
	txManager repositories.TransactionManager,
	logger *slog.Logger,
) *Seeder {
	return &Seeder{
		users:     users,
		nodes:     nodes,
		grants:    grants,
		txManager: txManager,
		logger:    logger,
	}
}

// Apply writes the fixture in one transaction
func (s *Seeder) Apply(ctx context.Context, f *Fixture) (*Result, error) {
	result := &Result{Paths: map[string]string{}}

	err := s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		userIDs := make(map[string]string, len(f.Users))
		for _, uf := range f.Users {
			user, err := s.seedUser(ctx, uf)
			if err != nil {
				return err
			}
			userIDs[uf.Name] = user.ID
			result.Users++
		}

		for _, nf := range f.Nodes {
			if err := s.seedNode(ctx, nf, nil, "", userIDs, result); err != nil {
				return err
			}
		}

		for _, gf := range f.Grants {
			if err := s.seedGrant(ctx, gf, userIDs, result); err != nil {
				return err
			}
			result.Grants++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("fixture applied",
		"users", result.Users,
		"nodes", result.Nodes,
		"grants", result.Grants,
	)
	return result, nil
}

func (s *Seeder) seedUser(ctx context.Context, uf UserFixture) (*models.User, error) {
	if uf.Name == "" {
		return nil, errors.New("user without name")
	}
	user := &models.User{ID: uf.ID, Name: uf.Name, Email: uf.Email}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Email == "" {
		user.Email = strings.ToLower(uf.Name) + "@example.com"
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("seed user %s: %w", uf.Name, err)
	}
	return user, nil
}

func (s *Seeder) seedNode(ctx context.Context, nf NodeFixture, parentID *string, parentPath string, userIDs map[string]string, result *Result) error {
	path := nf.Name
	if parentPath != "" {
		path = parentPath + "/" + nf.Name
	}

	node := &structModels.Node{
		Name:     nf.Name,
		Type:     structModels.NodeType(nf.Type),
		ParentID: parentID,
	}
	if node.Type == "" {
		node.Type = structModels.NodeTypeFolder
		if nf.FilePath != "" {
			node.Type = structModels.NodeTypeFile
		}
	}
	if !node.Type.Valid() {
		return fmt.Errorf("node %s: unknown type %q", path, nf.Type)
	}
	if nf.FilePath != "" {
		fp := nf.FilePath
		node.FilePath = &fp
	}
	if nf.Owner != "" {
		owner, ok := userIDs[nf.Owner]
		if !ok {
			return fmt.Errorf("node %s: unknown owner %q", path, nf.Owner)
		}
		node.OwnerID = &owner
	}

	if err := s.nodes.Create(ctx, node); err != nil {
		return fmt.Errorf("seed node %s: %w", path, err)
	}
	result.Paths[path] = node.ID
	result.Nodes++

	for _, child := range nf.Children {
		if err := s.seedNode(ctx, child, &node.ID, path, userIDs, result); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) seedGrant(ctx context.Context, gf GrantFixture, userIDs map[string]string, result *Result) error {
	folderID, ok := result.Paths[strings.Trim(gf.Folder, "/")]
	if !ok {
		return fmt.Errorf("grant: unknown folder %q", gf.Folder)
	}
	userID, ok := userIDs[gf.User]
	if !ok {
		return fmt.Errorf("grant on %s: unknown user %q", gf.Folder, gf.User)
	}
	grantedBy := userID
	if gf.GrantedBy != "" {
		if grantedBy, ok = userIDs[gf.GrantedBy]; !ok {
			return fmt.Errorf("grant on %s: unknown grantor %q", gf.Folder, gf.GrantedBy)
		}
	}

	grant := &structModels.Grant{
		FolderID: folderID,
		UserID:   userID,
		Capabilities: structModels.Capabilities{
			CanView:   gf.View,
			CanEdit:   gf.Edit,
			CanDelete: gf.Delete,
			CanCreate: gf.Create,
			CanUpload: gf.Upload,
		},
		GrantedBy: grantedBy,
	}
	if err := s.grants.Upsert(ctx, grant); err != nil {
		return fmt.Errorf("seed grant on %s: %w", gf.Folder, err)
	}
	return nil
}
