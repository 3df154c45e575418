package structure

import (
	"strings"

	models "filetree/internal/domain/models/structure"
)

// RenderTree draws the tree with box-drawing branches, one node per line.
//
//	Docs/ [view edit delete create upload]
//	├── a.txt [view edit delete create upload]
//	└── Reports/ [view]
//	    └── q1.pdf [view]
//
// Folders end in "/". Capabilities are listed only for annotated trees.
func RenderTree(roots []*models.TreeNode) string {
	var b strings.Builder
	for _, root := range roots {
		writeLine(&b, "", root)
		renderChildren(&b, root.Children, "")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func renderChildren(b *strings.Builder, children []*models.TreeNode, prefix string) {
	for i, child := range children {
		branch, next := "├── ", "│   "
		if i == len(children)-1 {
			branch, next = "└── ", "    "
		}
		writeLine(b, prefix+branch, child)
		renderChildren(b, child.Children, prefix+next)
	}
}

func writeLine(b *strings.Builder, prefix string, n *models.TreeNode) {
	b.WriteString(prefix)
	b.WriteString(n.Name)
	if n.Type == models.NodeTypeFolder {
		b.WriteString("/")
	}
	if n.Permissions != nil {
		b.WriteString(" [")
		b.WriteString(capabilityList(*n.Permissions))
		b.WriteString("]")
	}
	b.WriteString("\n")
}

func capabilityList(c models.Capabilities) string {
	var held []string
	for _, action := range models.AllActions {
		if c.Allows(action) {
			held = append(held, string(action))
		}
	}
	if len(held) == 0 {
		return "-"
	}
	return strings.Join(held, " ")
}
