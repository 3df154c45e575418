package structure

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"filetree/internal/blobstore"
	"filetree/internal/domain"
	"filetree/internal/domain/models"
	structModels "filetree/internal/domain/models/structure"
	svc "filetree/internal/domain/services/structure"
	"filetree/internal/service/access"
	"filetree/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	store   *testutil.Store
	blobs   *blobstore.MemoryStore
	nodes   svc.StructureService
	perms   svc.PermissionService
	u1, u2  *models.Requester
	outside *models.Requester
}

func newEnv(t *testing.T, opts Options) *env {
	t.Helper()
	store := testutil.NewStore()
	blobs := blobstore.NewMemoryStore()
	logger := testutil.Logger()
	resolver := access.NewResolver(store.Nodes(), store.Grants(), nil, logger)

	if opts.MaxUploadBytes == 0 {
		opts.MaxUploadBytes = 1 << 20
	}

	return &env{
		store:   store,
		blobs:   blobs,
		nodes:   NewStructureService(store.Nodes(), resolver, blobs, opts, logger),
		perms:   NewPermissionService(store.Nodes(), store.Grants(), store.Users(), resolver, logger),
		u1:      &models.Requester{UserID: store.AddUser(t, "alice")},
		u2:      &models.Requester{UserID: store.AddUser(t, "bob")},
		outside: &models.Requester{UserID: store.AddUser(t, "carol")},
	}
}

func (e *env) folder(t *testing.T, name string, parent *string, as *models.Requester) *structModels.Node {
	t.Helper()
	n, err := e.nodes.CreateNode(context.Background(), &svc.CreateNodeRequest{
		Name: name, Type: structModels.NodeTypeFolder, ParentID: parent,
	}, as)
	require.NoError(t, err)
	return n
}

func (e *env) file(t *testing.T, name string, parent string, as *models.Requester) *structModels.Node {
	t.Helper()
	n, err := e.nodes.CreateNode(context.Background(), &svc.CreateNodeRequest{
		Name: name, Type: structModels.NodeTypeFile, ParentID: &parent,
	}, as)
	require.NoError(t, err)
	return n
}

func (e *env) nodesOf(t *testing.T) []structModels.Node {
	t.Helper()
	nodes, err := e.store.Nodes().ListAll(context.Background())
	require.NoError(t, err)
	return nodes
}

func (e *env) grant(t *testing.T, folderID string, to *models.Requester, caps structModels.Capabilities) {
	t.Helper()
	_, err := e.perms.Grant(context.Background(), &svc.GrantRequest{
		FolderID: folderID, UserID: to.UserID, Capabilities: caps,
	}, e.u1)
	require.NoError(t, err)
}

func TestCreateNode_Validation(t *testing.T) {
	e := newEnv(t, Options{})
	ctx := context.Background()
	docs := e.folder(t, "docs", nil, e.u1)

	tests := []struct {
		name string
		req  svc.CreateNodeRequest
	}{
		{"empty name", svc.CreateNodeRequest{Name: "", Type: structModels.NodeTypeFolder}},
		{"blank name", svc.CreateNodeRequest{Name: "   ", Type: structModels.NodeTypeFolder}},
		{"name too long", svc.CreateNodeRequest{Name: strings.Repeat("x", 256), Type: structModels.NodeTypeFolder}},
		{"missing type", svc.CreateNodeRequest{Name: "a"}},
		{"invalid type", svc.CreateNodeRequest{Name: "a", Type: "link"}},
		{"file at root", svc.CreateNodeRequest{Name: "a.txt", Type: structModels.NodeTypeFile}},
		{"file with empty parent", svc.CreateNodeRequest{Name: "a.txt", Type: structModels.NodeTypeFile, ParentID: testutil.Ptr("")}},
		{"folder with file path", svc.CreateNodeRequest{Name: "a", Type: structModels.NodeTypeFolder, ParentID: &docs.ID, FilePath: testutil.Ptr("x")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := e.store.Calls["nodes.Create"]
			req := tt.req
			_, err := e.nodes.CreateNode(ctx, &req, e.u1)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Equal(t, before, e.store.Calls["nodes.Create"], "store touched on invalid input")
		})
	}

	// 255 runes is fine, and the name is stored trimmed
	n, err := e.nodes.CreateNode(ctx, &svc.CreateNodeRequest{
		Name: "  " + strings.Repeat("é", 255) + " ", Type: structModels.NodeTypeFolder,
	}, e.u1)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 255), n.Name)
}

func TestCreateNode_ParentRules(t *testing.T) {
	e := newEnv(t, Options{})
	ctx := context.Background()
	docs := e.folder(t, "docs", nil, e.u1)

	_, err := e.nodes.CreateNode(ctx, &svc.CreateNodeRequest{
		Name: "x", Type: structModels.NodeTypeFolder, ParentID: testutil.Ptr("nope"),
	}, e.u1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = e.nodes.CreateNode(ctx, &svc.CreateNodeRequest{
		Name: "x", Type: structModels.NodeTypeFolder, ParentID: &docs.ID,
	}, e.u2)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	e.grant(t, docs.ID, e.u2, structModels.Capabilities{CanCreate: true})
	n, err := e.nodes.CreateNode(ctx, &svc.CreateNodeRequest{
		Name: "x", Type: structModels.NodeTypeFolder, ParentID: &docs.ID,
	}, e.u2)
	require.NoError(t, err)
	require.NotNil(t, n.OwnerID)
	assert.Equal(t, e.u2.UserID, *n.OwnerID)

	// Root-level creation is never gated
	_, err = e.nodes.CreateNode(ctx, &svc.CreateNodeRequest{Name: "mine", Type: structModels.NodeTypeFolder}, e.outside)
	assert.NoError(t, err)

	_, err = e.nodes.CreateNode(ctx, &svc.CreateNodeRequest{Name: "anon", Type: structModels.NodeTypeFolder}, nil)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestUpdateNode(t *testing.T) {
	e := newEnv(t, Options{})
	ctx := context.Background()
	docs := e.folder(t, "docs", nil, e.u1)
	f := e.file(t, "a.txt", docs.ID, e.u1)

	t.Run("no fields is a no-op", func(t *testing.T) {
		got, err := e.nodes.UpdateNode(ctx, f.ID, &svc.UpdateNodeRequest{}, e.u1)
		require.NoError(t, err)
		assert.Equal(t, "a.txt", got.Name)
		assert.Zero(t, e.store.Calls["nodes.Update"])
	})

	t.Run("rename", func(t *testing.T) {
		got, err := e.nodes.UpdateNode(ctx, f.ID, &svc.UpdateNodeRequest{Name: testutil.Ptr(" b.txt ")}, e.u1)
		require.NoError(t, err)
		assert.Equal(t, "b.txt", got.Name)
	})

	t.Run("rejects empty name and bad type", func(t *testing.T) {
		_, err := e.nodes.UpdateNode(ctx, f.ID, &svc.UpdateNodeRequest{Name: testutil.Ptr(" ")}, e.u1)
		assert.ErrorIs(t, err, domain.ErrValidation)
		bad := structModels.NodeType("dir")
		_, err = e.nodes.UpdateNode(ctx, f.ID, &svc.UpdateNodeRequest{Type: &bad}, e.u1)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("root folder cannot become a file", func(t *testing.T) {
		file := structModels.NodeTypeFile
		_, err := e.nodes.UpdateNode(ctx, docs.ID, &svc.UpdateNodeRequest{Type: &file}, e.u1)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("other owner needs edit", func(t *testing.T) {
		_, err := e.nodes.UpdateNode(ctx, f.ID, &svc.UpdateNodeRequest{Name: testutil.Ptr("c.txt")}, e.u2)
		assert.ErrorIs(t, err, domain.ErrForbidden)

		e.grant(t, docs.ID, e.u2, structModels.Capabilities{CanEdit: true})
		got, err := e.nodes.UpdateNode(ctx, f.ID, &svc.UpdateNodeRequest{Name: testutil.Ptr("c.txt")}, e.u2)
		require.NoError(t, err)
		assert.Equal(t, "c.txt", got.Name)
	})

	t.Run("unowned node is not gated", func(t *testing.T) {
		legacy := e.store.AddFolder(t, "legacy", "", "")
		got, err := e.nodes.UpdateNode(ctx, legacy, &svc.UpdateNodeRequest{Name: testutil.Ptr("renamed")}, e.outside)
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Name)
	})

	t.Run("missing node", func(t *testing.T) {
		_, err := e.nodes.UpdateNode(ctx, "missing", &svc.UpdateNodeRequest{Name: testutil.Ptr("x")}, e.u1)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestCreateNode_ParentMustBeFolder(t *testing.T) {
	e := newEnv(t, Options{})
	ctx := context.Background()
	docs := e.folder(t, "docs", nil, e.u1)
	f := e.file(t, "a.txt", docs.ID, e.u1)
	before := len(e.nodesOf(t))

	tests := []struct {
		name string
		req  *svc.CreateNodeRequest
	}{
		{name: "folder under file", req: &svc.CreateNodeRequest{Name: "child", Type: structModels.NodeTypeFolder, ParentID: &f.ID}},
		{name: "file under file", req: &svc.CreateNodeRequest{Name: "b.txt", Type: structModels.NodeTypeFile, ParentID: &f.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.nodes.CreateNode(ctx, tt.req, e.u1)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	_, err := e.nodes.UploadFile(ctx, &svc.UploadFileRequest{
		ParentID: f.ID, Name: "c.txt", Size: 5, Body: strings.NewReader("hello"),
	}, e.u1)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, e.blobs.Len())

	assert.Len(t, e.nodesOf(t), before)
	// The file still deletes without a childless conflict
	require.NoError(t, e.nodes.DeleteNode(ctx, f.ID, e.u1))
}

func TestCreateNode_DoesNotModifyRequest(t *testing.T) {
	e := newEnv(t, Options{})
	blank := " "
	req := &svc.CreateNodeRequest{Name: "top", Type: structModels.NodeTypeFolder, ParentID: &blank}

	n, err := e.nodes.CreateNode(context.Background(), req, e.u1)
	require.NoError(t, err)
	assert.Nil(t, n.ParentID)
	require.NotNil(t, req.ParentID)
	assert.Equal(t, " ", *req.ParentID)
}

func TestUpdateNode_FolderWithChildrenCannotBecomeFile(t *testing.T) {
	e := newEnv(t, Options{})
	ctx := context.Background()
	docs := e.folder(t, "docs", nil, e.u1)
	sub := e.folder(t, "sub", &docs.ID, e.u1)
	e.file(t, "a.txt", sub.ID, e.u1)
	empty := e.folder(t, "empty", &docs.ID, e.u1)
	file := structModels.NodeTypeFile

	_, err := e.nodes.UpdateNode(ctx, sub.ID, &svc.UpdateNodeRequest{Type: &file}, e.u1)
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, sub.ID, conflict.ResourceID)

	stored, err := e.store.Nodes().GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, structModels.NodeTypeFolder, stored.Type)

	got, err := e.nodes.UpdateNode(ctx, empty.ID, &svc.UpdateNodeRequest{Type: &file}, e.u1)
	require.NoError(t, err)
	assert.Equal(t, structModels.NodeTypeFile, got.Type)
}

func TestDeleteNode_ChildlessOnly(t *testing.T) {
	e := newEnv(t, Options{})
	ctx := context.Background()
	docs := e.folder(t, "docs", nil, e.u1)
	sub := e.folder(t, "sub", &docs.ID, e.u1)
	f := e.file(t, "a.txt", sub.ID, e.u1)

	err := e.nodes.DeleteNode(ctx, docs.ID, e.u1)
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, docs.ID, conflict.ResourceID)

	assert.ErrorIs(t, e.nodes.DeleteNode(ctx, sub.ID, e.u1), domain.ErrConflict)
	require.NoError(t, e.nodes.DeleteNode(ctx, f.ID, e.u1))
	require.NoError(t, e.nodes.DeleteNode(ctx, sub.ID, e.u1))
	require.NoError(t, e.nodes.DeleteNode(ctx, docs.ID, e.u1))

	assert.ErrorIs(t, e.nodes.DeleteNode(ctx, docs.ID, e.u1), domain.ErrNotFound)
}

func TestDeleteNode_Gate(t *testing.T) {
	e := newEnv(t, Options{})
	ctx := context.Background()
	docs := e.folder(t, "docs", nil, e.u1)
	f := e.file(t, "a.txt", docs.ID, e.u1)

	assert.ErrorIs(t, e.nodes.DeleteNode(ctx, f.ID, e.u2), domain.ErrForbidden)

	// edit does not imply delete
	e.grant(t, docs.ID, e.u2, structModels.Capabilities{CanEdit: true})
	assert.ErrorIs(t, e.nodes.DeleteNode(ctx, f.ID, e.u2), domain.ErrForbidden)

	e.grant(t, docs.ID, e.u2, structModels.Capabilities{CanDelete: true})
	assert.NoError(t, e.nodes.DeleteNode(ctx, f.ID, e.u2))
}

func TestDeleteNode_BlobCleanupIsBestEffort(t *testing.T) {
	e := newEnv(t, Options{})
	ctx := context.Background()
	docs := e.folder(t, "docs", nil, e.u1)

	up, err := e.nodes.UploadFile(ctx, &svc.UploadFileRequest{
		ParentID: docs.ID, Name: "a.txt", Size: 5, Body: strings.NewReader("hello"),
	}, e.u1)
	require.NoError(t, err)
	require.Equal(t, 1, e.blobs.Len())

	e.blobs.FailDelete = true
	require.NoError(t, e.nodes.DeleteNode(ctx, up.ID, e.u1))

	_, err = e.store.Nodes().GetByID(ctx, up.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	e.blobs.FailDelete = false
	up, err = e.nodes.UploadFile(ctx, &svc.UploadFileRequest{
		ParentID: docs.ID, Name: "b.txt", Size: 5, Body: strings.NewReader("hello"),
	}, e.u1)
	require.NoError(t, err)
	require.NoError(t, e.nodes.DeleteNode(ctx, up.ID, e.u1))
	_, ok := e.blobs.Get(*up.FilePath)
	assert.False(t, ok)
}

func TestScenario_DocsReportsQ1(t *testing.T) {
	e := newEnv(t, Options{})
	ctx := context.Background()
	resolver := access.NewResolver(e.store.Nodes(), e.store.Grants(), nil, testutil.Logger())

	docs := e.folder(t, "Docs", nil, e.u1)
	reports := e.folder(t, "Reports", &docs.ID, e.u1)
	q1 := e.file(t, "q1.pdf", reports.ID, e.u1)
	e.grant(t, docs.ID, e.u2, structModels.Capabilities{CanView: true})

	view, err := resolver.CheckUserPermission(ctx, e.u2.UserID, q1.ID, structModels.ActionView)
	require.NoError(t, err)
	assert.True(t, view)

	edit, err := resolver.CheckUserPermission(ctx, e.u2.UserID, q1.ID, structModels.ActionEdit)
	require.NoError(t, err)
	assert.False(t, edit)

	assert.ErrorIs(t, e.nodes.DeleteNode(ctx, reports.ID, e.u1), domain.ErrConflict)
	require.NoError(t, e.nodes.DeleteNode(ctx, q1.ID, e.u1))
	require.NoError(t, e.nodes.DeleteNode(ctx, reports.ID, e.u1))
}

func TestGetTree_FilteredAndAnnotated(t *testing.T) {
	e := newEnv(t, Options{})
	ctx := context.Background()

	docs := e.folder(t, "Docs", nil, e.u1)
	reports := e.folder(t, "Reports", &docs.ID, e.u1)
	e.file(t, "q1.pdf", reports.ID, e.u1)
	e.folder(t, "Private", nil, e.u1)
	e.grant(t, reports.ID, e.u2, structModels.Capabilities{CanView: true, CanUpload: true})

	full, err := e.nodes.GetTree(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Docs", "Private"}, names(full))
	assert.Nil(t, full[0].Permissions)

	tree, err := e.nodes.GetTree(ctx, e.u2)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	// Docs is filtered out, so Reports is promoted to a root
	assert.Equal(t, "Reports", tree[0].Name)
	require.NotNil(t, tree[0].Permissions)
	assert.Equal(t, structModels.Capabilities{CanView: true, CanUpload: true}, *tree[0].Permissions)
	assert.Equal(t, []string{"q1.pdf"}, names(tree[0].Children))

	owner, err := e.nodes.GetTree(ctx, e.u1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Docs", "Private"}, names(owner))
	assert.Equal(t, structModels.FullCapabilities(), *owner[0].Children[0].Children[0].Permissions)

	none, err := e.nodes.GetTree(ctx, e.outside)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetTree_IncludeAncestors(t *testing.T) {
	e := newEnv(t, Options{IncludeAncestors: true})
	ctx := context.Background()

	docs := e.folder(t, "Docs", nil, e.u1)
	reports := e.folder(t, "Reports", &docs.ID, e.u1)
	e.folder(t, "Other", &docs.ID, e.u1)
	e.grant(t, reports.ID, e.u2, structModels.Capabilities{CanView: true})

	tree, err := e.nodes.GetTree(ctx, e.u2)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Equal(t, "Docs", tree[0].Name)
	assert.Equal(t, structModels.Capabilities{}, *tree[0].Permissions)
	assert.Equal(t, []string{"Reports"}, names(tree[0].Children))

	children, err := e.nodes.GetChildren(ctx, nil, e.u2)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, docs.ID, children[0].ID)
}

func TestGetChildren(t *testing.T) {
	e := newEnv(t, Options{})
	ctx := context.Background()

	root := e.folder(t, "root", nil, e.u1)
	e.folder(t, "report", &root.ID, e.u1)
	e.file(t, "report.pdf", root.ID, e.u1)
	e.folder(t, "reports", &root.ID, e.u1)
	e.file(t, "a.txt", root.ID, e.u1)

	all, err := e.nodes.GetChildren(ctx, &root.ID, nil)
	require.NoError(t, err)
	var got []string
	for _, c := range all {
		got = append(got, c.Name)
		assert.Nil(t, c.Permissions)
	}
	// type descending: folders first, then files, each by name
	assert.Equal(t, []string{"report", "reports", "a.txt", "report.pdf"}, got)

	_, err = e.nodes.GetChildren(ctx, testutil.Ptr("missing"), e.u1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	hidden, err := e.nodes.GetChildren(ctx, &root.ID, e.u2)
	require.NoError(t, err)
	assert.Empty(t, hidden)

	mine, err := e.nodes.GetChildren(ctx, &root.ID, e.u1)
	require.NoError(t, err)
	require.Len(t, mine, 4)
	assert.True(t, mine[0].Permissions.CanDelete)
}

func TestGetTree_FullOrdering(t *testing.T) {
	e := newEnv(t, Options{})
	ctx := context.Background()

	root := e.folder(t, "root", nil, e.u1)
	e.file(t, "b.txt", root.ID, e.u1)
	e.folder(t, "b", &root.ID, e.u1)
	e.file(t, "a.txt", root.ID, e.u1)
	e.folder(t, "a", &root.ID, e.u1)

	tree, err := e.nodes.GetTree(ctx, nil)
	require.NoError(t, err)
	// type ascending in the full listing: 'file' sorts before 'folder'
	assert.Equal(t, []string{"a.txt", "b.txt", "a", "b"}, names(tree[0].Children))
}

func TestUploadFile(t *testing.T) {
	e := newEnv(t, Options{MaxUploadBytes: 64})
	ctx := context.Background()
	docs := e.folder(t, "docs", nil, e.u1)

	pdf := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte{' '}, 10)...)
	up, err := e.nodes.UploadFile(ctx, &svc.UploadFileRequest{
		ParentID: docs.ID, Name: "Report.PDF", Size: int64(len(pdf)), Body: bytes.NewReader(pdf),
	}, e.u1)
	require.NoError(t, err)

	assert.Equal(t, structModels.NodeTypeFile, up.Type)
	assert.Equal(t, "application/pdf", up.MimeType)
	assert.Equal(t, int64(len(pdf)), up.FileSize)
	require.NotNil(t, up.FilePath)
	assert.True(t, strings.HasSuffix(*up.FilePath, ".pdf"))
	stored, ok := e.blobs.Get(*up.FilePath)
	require.True(t, ok)
	assert.Equal(t, pdf, stored)

	t.Run("needs upload on parent", func(t *testing.T) {
		_, err := e.nodes.UploadFile(ctx, &svc.UploadFileRequest{
			ParentID: docs.ID, Name: "x.txt", Size: 1, Body: strings.NewReader("x"),
		}, e.u2)
		assert.ErrorIs(t, err, domain.ErrForbidden)

		e.grant(t, docs.ID, e.u2, structModels.Capabilities{CanUpload: true})
		up, err := e.nodes.UploadFile(ctx, &svc.UploadFileRequest{
			ParentID: docs.ID, Name: "x.txt", Size: 1, ContentType: "text/plain", Body: strings.NewReader("x"),
		}, e.u2)
		require.NoError(t, err)
		assert.Equal(t, "text/plain", up.MimeType)
		assert.Equal(t, e.u2.UserID, *up.OwnerID)
	})

	t.Run("rejects oversize and missing parent", func(t *testing.T) {
		before := e.blobs.Len()
		_, err := e.nodes.UploadFile(ctx, &svc.UploadFileRequest{
			ParentID: docs.ID, Name: "big.bin", Size: 65, Body: strings.NewReader("x"),
		}, e.u1)
		assert.ErrorIs(t, err, domain.ErrValidation)

		_, err = e.nodes.UploadFile(ctx, &svc.UploadFileRequest{
			Name: "orphan.txt", Size: 1, Body: strings.NewReader("x"),
		}, e.u1)
		assert.ErrorIs(t, err, domain.ErrValidation)

		_, err = e.nodes.UploadFile(ctx, &svc.UploadFileRequest{
			ParentID: "missing", Name: "x.txt", Size: 1, Body: strings.NewReader("x"),
		}, e.u1)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, before, e.blobs.Len())
	})
}

func TestSniffContentType_KeepsWholeBody(t *testing.T) {
	body := strings.Repeat("a", 5000)

	r, ct, err := sniffContentType(strings.NewReader(body), "")
	require.NoError(t, err)
	assert.Equal(t, "text/plain; charset=utf-8", ct)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)
	assert.Equal(t, body, buf.String())

	_, ct, err = sniffContentType(strings.NewReader(body), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
}
