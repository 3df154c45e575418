package access

import (
	models "filetree/internal/domain/models/structure"
)

// snapshot is one user's view of the node links and their grants, read once
type snapshot struct {
	userID   string
	byID     map[string]models.NodeLink
	children map[string][]string
	grants   map[string]models.Capabilities
	order    []string
}

func newSnapshot(userID string, links []models.NodeLink, grants []models.Grant) *snapshot {
	s := &snapshot{
		userID:   userID,
		byID:     make(map[string]models.NodeLink, len(links)),
		children: make(map[string][]string),
		grants:   make(map[string]models.Capabilities, len(grants)),
		order:    make([]string, 0, len(grants)),
	}
	for _, link := range links {
		s.byID[link.ID] = link
		if link.ParentID != nil {
			s.children[*link.ParentID] = append(s.children[*link.ParentID], link.ID)
		}
	}
	for _, g := range grants {
		if g.UserID != userID {
			continue
		}
		if _, dup := s.grants[g.FolderID]; !dup {
			s.order = append(s.order, g.FolderID)
		}
		s.grants[g.FolderID] = g.Capabilities
	}
	return s
}

// accessible runs a BFS from every owned node and every view-granted folder
func (s *snapshot) accessible() map[string]struct{} {
	set := make(map[string]struct{})
	var queue []string

	push := func(id string) {
		if _, ok := set[id]; ok {
			return
		}
		set[id] = struct{}{}
		queue = append(queue, id)
	}

	for _, folderID := range s.order {
		if s.grants[folderID].CanView {
			push(folderID)
		}
	}
	for id, link := range s.byID {
		if owns(link, s.userID) {
			push(id)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range s.children[id] {
			push(child)
		}
	}

	return set
}

// withAncestors returns set plus every ancestor of its members, so a filtered
// tree keeps the path down to each accessible node
func (s *snapshot) withAncestors(set map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(set))
	for id := range set {
		out[id] = struct{}{}
	}
	for id := range set {
		link := s.byID[id]
		for link.ParentID != nil {
			parent, ok := s.byID[*link.ParentID]
			if !ok {
				break
			}
			if _, seen := out[parent.ID]; seen {
				break
			}
			out[parent.ID] = struct{}{}
			link = parent
		}
	}
	return out
}

// capabilities resolves all five actions for one node. Ownership anywhere on
// the chain yields everything; otherwise flags are the union over the chain.
func (s *snapshot) capabilities(nodeID string) models.Capabilities {
	var caps models.Capabilities
	visited := make(map[string]struct{})

	id := nodeID
	for {
		if _, seen := visited[id]; seen {
			break
		}
		visited[id] = struct{}{}

		link, ok := s.byID[id]
		if !ok {
			break
		}
		if owns(link, s.userID) {
			return models.FullCapabilities()
		}
		if g, ok := s.grants[id]; ok {
			caps = union(caps, g)
		}
		if link.ParentID == nil {
			break
		}
		id = *link.ParentID
	}

	return caps
}

func owns(link models.NodeLink, userID string) bool {
	return link.OwnerID != nil && userID != "" && *link.OwnerID == userID
}

func union(a, b models.Capabilities) models.Capabilities {
	return models.Capabilities{
		CanView:   a.CanView || b.CanView,
		CanEdit:   a.CanEdit || b.CanEdit,
		CanDelete: a.CanDelete || b.CanDelete,
		CanCreate: a.CanCreate || b.CanCreate,
		CanUpload: a.CanUpload || b.CanUpload,
	}
}
