package structure

import (
	"testing"

	models "filetree/internal/domain/models/structure"

	"github.com/stretchr/testify/assert"
)

func TestRenderTree(t *testing.T) {
	nodes := []models.Node{
		node("d", "Docs", models.NodeTypeFolder, ""),
		node("a", "a.txt", models.NodeTypeFile, "d"),
		node("r", "Reports", models.NodeTypeFolder, "d"),
		node("q", "q1.pdf", models.NodeTypeFile, "r"),
		node("o", "Other", models.NodeTypeFolder, ""),
	}

	want := "Docs/\n" +
		"├── a.txt\n" +
		"└── Reports/\n" +
		"    └── q1.pdf\n" +
		"Other/"
	assert.Equal(t, want, RenderTree(BuildTree(nodes, nil)))
}

func TestRenderTree_Capabilities(t *testing.T) {
	nodes := []models.Node{
		node("d", "Docs", models.NodeTypeFolder, ""),
		node("a", "a.txt", models.NodeTypeFile, "d"),
	}
	perms := map[string]models.Capabilities{
		"d": {CanView: true, CanUpload: true},
	}

	want := "Docs/ [view upload]\n" +
		"└── a.txt [-]"
	assert.Equal(t, want, RenderTree(BuildTree(nodes, perms)))
}

func TestRenderTree_Empty(t *testing.T) {
	assert.Empty(t, RenderTree(nil))
}
