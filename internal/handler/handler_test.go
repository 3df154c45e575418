package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"filetree/internal/blobstore"
	"filetree/internal/domain/models"
	structModels "filetree/internal/domain/models/structure"
	"filetree/internal/httputil"
	"filetree/internal/service/access"
	"filetree/internal/service/structure"
	"filetree/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type server struct {
	mux   *http.ServeMux
	store *testutil.Store
	blobs *blobstore.MemoryStore
	alice *models.Requester
	bob   *models.Requester
	admin *models.Requester
}

func newServer(t *testing.T) *server {
	t.Helper()
	store := testutil.NewStore()
	blobs := blobstore.NewMemoryStore()
	logger := testutil.Logger()
	resolver := access.NewResolver(store.Nodes(), store.Grants(), nil, logger)

	structureSvc := structure.NewStructureService(store.Nodes(), resolver, blobs, structure.Options{MaxUploadBytes: 1 << 16}, logger)
	permissionSvc := structure.NewPermissionService(store.Nodes(), store.Grants(), store.Users(), resolver, logger)

	mux := http.NewServeMux()
	RegisterRoutes(mux, Handlers{
		Structure:  NewStructureHandler(structureSvc, 1<<16, logger),
		Permission: NewPermissionHandler(permissionSvc, logger),
		Health:     NewHealthHandler(fakePinger{}, logger),
	})

	return &server{
		mux:   mux,
		store: store,
		blobs: blobs,
		alice: &models.Requester{UserID: store.AddUser(t, "alice")},
		bob:   &models.Requester{UserID: store.AddUser(t, "bob")},
		admin: &models.Requester{UserID: store.AddUser(t, "root"), Role: models.RoleAdmin},
	}
}

func (s *server) do(t *testing.T, as *models.Requester, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return s.serve(req, as)
}

func (s *server) serve(req *http.Request, as *models.Requester) *httptest.ResponseRecorder {
	if as != nil {
		req = httputil.WithRequester(req, as)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCreateNode(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, s.alice, http.MethodPost, "/api/structure", map[string]any{"name": "Docs", "type": "folder"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	node := decode[structModels.Node](t, rec)
	assert.Equal(t, "Docs", node.Name)
	require.NotNil(t, node.OwnerID)
	assert.Equal(t, s.alice.UserID, *node.OwnerID)
	assert.Nil(t, node.ParentID)
}

func TestCreateNode_ErrorMapping(t *testing.T) {
	s := newServer(t)
	docs := s.store.AddFolder(t, "Docs", "", s.alice.UserID)

	tests := []struct {
		name       string
		as         *models.Requester
		body       any
		wantStatus int
	}{
		{"blank name", s.alice, map[string]any{"name": "  ", "type": "folder"}, http.StatusBadRequest},
		{"bad type", s.alice, map[string]any{"name": "x", "type": "link"}, http.StatusBadRequest},
		{"unknown field", s.alice, map[string]any{"name": "x", "type": "folder", "color": "red"}, http.StatusBadRequest},
		{"missing parent", s.alice, map[string]any{"name": "x", "type": "folder", "parent_id": "nope"}, http.StatusNotFound},
		{"no create on parent", s.bob, map[string]any{"name": "x", "type": "folder", "parent_id": docs}, http.StatusForbidden},
		{"anonymous", nil, map[string]any{"name": "x", "type": "folder"}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.as, http.MethodPost, "/api/structure", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestGetTree_FilteredAndAdmin(t *testing.T) {
	s := newServer(t)
	docs := s.store.AddFolder(t, "Docs", "", s.alice.UserID)
	s.store.AddFile(t, "a.txt", docs, s.alice.UserID)
	s.store.AddFolder(t, "Bobs", "", s.bob.UserID)

	rec := s.do(t, s.alice, http.MethodGet, "/api/structure", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tree := decode[[]structModels.TreeNode](t, rec)
	require.Len(t, tree, 1)
	assert.Equal(t, "Docs", tree[0].Name)
	require.NotNil(t, tree[0].Permissions)
	assert.True(t, tree[0].Permissions.CanDelete)
	require.Len(t, tree[0].Children, 1)

	rec = s.do(t, s.admin, http.MethodGet, "/api/structure", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tree = decode[[]structModels.TreeNode](t, rec)
	assert.Len(t, tree, 2)
	assert.Nil(t, tree[0].Permissions)

	rec = s.do(t, nil, http.MethodGet, "/api/structure", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetChildren(t *testing.T) {
	s := newServer(t)
	docs := s.store.AddFolder(t, "Docs", "", s.alice.UserID)
	s.store.AddFolder(t, "sub", docs, s.alice.UserID)
	s.store.AddFile(t, "a.txt", docs, s.alice.UserID)

	rec := s.do(t, s.alice, http.MethodGet, "/api/structure/"+docs+"/children", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	children := decode[[]structModels.AnnotatedNode](t, rec)
	require.Len(t, children, 2)
	assert.Equal(t, "sub", children[0].Name)
	assert.Equal(t, "a.txt", children[1].Name)

	rec = s.do(t, s.alice, http.MethodGet, "/api/structure/children", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	roots := decode[[]structModels.AnnotatedNode](t, rec)
	require.Len(t, roots, 1)
	assert.Equal(t, "Docs", roots[0].Name)

	rec = s.do(t, s.alice, http.MethodGet, "/api/structure/missing/children", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateAndDeleteNode(t *testing.T) {
	s := newServer(t)
	docs := s.store.AddFolder(t, "Docs", "", s.alice.UserID)
	s.store.AddFile(t, "a.txt", docs, s.alice.UserID)

	rec := s.do(t, s.alice, http.MethodPatch, "/api/structure/"+docs, map[string]any{"name": "Papers"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Papers", decode[structModels.Node](t, rec).Name)

	rec = s.do(t, s.bob, http.MethodPatch, "/api/structure/"+docs, map[string]any{"name": "Mine"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, s.alice, http.MethodDelete, "/api/structure/"+docs, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	problem := decode[map[string]any](t, rec)
	assert.Equal(t, "node", problem["resource_type"])
	assert.Equal(t, docs, problem["resource_id"])

	rec = s.do(t, s.alice, http.MethodDelete, "/api/structure/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func multipartUpload(t *testing.T, fields map[string]string, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/structure/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadFile(t *testing.T) {
	s := newServer(t)
	docs := s.store.AddFolder(t, "Docs", "", s.alice.UserID)

	content := []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n")
	req := multipartUpload(t, map[string]string{"parent_id": docs}, "report.PDF", content)

	rec := s.serve(req, s.alice)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	uploaded := decode[structModels.UploadedFile](t, rec)
	assert.Equal(t, "report.PDF", uploaded.Name)
	assert.Equal(t, int64(len(content)), uploaded.FileSize)
	assert.Equal(t, "application/pdf", uploaded.MimeType)
	require.NotNil(t, uploaded.FilePath)
	assert.True(t, strings.HasSuffix(*uploaded.FilePath, ".pdf"))

	stored, ok := s.blobs.Get(*uploaded.FilePath)
	require.True(t, ok)
	assert.Equal(t, content, stored)
}

func TestUploadFile_Errors(t *testing.T) {
	s := newServer(t)
	docs := s.store.AddFolder(t, "Docs", "", s.alice.UserID)

	tests := []struct {
		name       string
		as         *models.Requester
		fields     map[string]string
		filename   string
		content    []byte
		wantStatus int
	}{
		{"no file part", s.alice, map[string]string{"parent_id": docs}, "", nil, http.StatusBadRequest},
		{"no parent", s.alice, nil, "a.txt", []byte("x"), http.StatusBadRequest},
		{"unknown parent", s.alice, map[string]string{"parent_id": "nope"}, "a.txt", []byte("x"), http.StatusNotFound},
		{"no upload capability", s.bob, map[string]string{"parent_id": docs}, "a.txt", []byte("x"), http.StatusForbidden},
		{"too large", s.alice, map[string]string{"parent_id": docs}, "big.bin", bytes.Repeat([]byte("x"), 3<<20), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.serve(multipartUpload(t, tt.fields, tt.filename, tt.content), tt.as)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Zero(t, s.blobs.Len())
		})
	}
}

func TestPermissionRoutes(t *testing.T) {
	s := newServer(t)
	docs := s.store.AddFolder(t, "Docs", "", s.alice.UserID)

	rec := s.do(t, s.alice, http.MethodPost, "/api/permissions", map[string]any{
		"folder_id": docs, "user_id": s.bob.UserID, "can_view": true, "can_upload": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	grant := decode[structModels.Grant](t, rec)
	assert.True(t, grant.CanUpload)
	assert.False(t, grant.CanEdit)
	assert.Equal(t, s.alice.UserID, grant.GrantedBy)

	rec = s.do(t, s.bob, http.MethodGet, "/api/folders/"+docs+"/permissions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	grants := decode[[]structModels.GrantWithUser](t, rec)
	require.Len(t, grants, 1)
	assert.Equal(t, "bob", grants[0].UserName)

	rec = s.do(t, s.alice, http.MethodGet, "/api/folders/"+docs+"/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]structModels.UserPermissions](t, rec), 3)

	rec = s.do(t, s.bob, http.MethodDelete, "/api/permissions/"+grant.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, s.alice, http.MethodDelete, "/api/permissions/"+grant.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, s.store.GrantCount())

	rec = s.do(t, s.bob, http.MethodGet, "/api/folders/"+docs+"/permissions", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListUsers(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, s.bob, http.MethodGet, "/api/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	users := decode[[]models.User](t, rec)
	require.Len(t, users, 3)
	assert.Equal(t, "alice", users[0].Name)
}

func TestHealthCheck(t *testing.T) {
	logger := testutil.Logger()

	rec := httptest.NewRecorder()
	NewHealthHandler(fakePinger{}, logger).HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthHandler(fakePinger{err: errors.New("down")}, logger).HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
