// Package comments turns flat comment lists into reply forests and drives the
// reply/edit/mention composer for one entity's thread.
package comments

import "snapfeed/internal/models"

// BuildForest links a flat, fetch-ordered comment list into root nodes with
// nested replies. Roots and every reply list keep input order.
//
// A comment whose parent is missing from the list is a root. So is a comment
// that names itself as parent, and every comment on a parent cycle. When ids
// repeat, the first record with that id is the one replies attach to.
func BuildForest(flat []models.Comment) []*models.CommentNode {
	nodes := make([]*models.CommentNode, len(flat))
	byID := make(map[string]*models.CommentNode, len(flat))
	for i, c := range flat {
		n := &models.CommentNode{Comment: c, Replies: []*models.CommentNode{}}
		nodes[i] = n
		if _, dup := byID[c.ID]; !dup {
			byID[c.ID] = n
		}
	}

	cyclic := cycleMembers(nodes, byID)
	roots := make([]*models.CommentNode, 0, len(nodes))
	for _, n := range nodes {
		if p := parentOf(n, byID); p != nil && !cyclic[n] {
			p.Replies = append(p.Replies, n)
			continue
		}
		roots = append(roots, n)
	}
	return roots
}

func parentOf(n *models.CommentNode, byID map[string]*models.CommentNode) *models.CommentNode {
	if n.ParentID == nil {
		return nil
	}
	p, ok := byID[*n.ParentID]
	if !ok || p == n {
		return nil
	}
	return p
}

// cycleMembers marks nodes whose parent chain loops back on itself.
func cycleMembers(nodes []*models.CommentNode, byID map[string]*models.CommentNode) map[*models.CommentNode]bool {
	const (
		onPath = 1
		done   = 2
	)
	state := make(map[*models.CommentNode]int, len(nodes))
	cyclic := map[*models.CommentNode]bool{}

	for _, start := range nodes {
		var path []*models.CommentNode
		n := start
		for n != nil && state[n] == 0 {
			state[n] = onPath
			path = append(path, n)
			n = parentOf(n, byID)
		}
		if n != nil && state[n] == onPath {
			for i := len(path) - 1; i >= 0; i-- {
				cyclic[path[i]] = true
				if path[i] == n {
					break
				}
			}
		}
		for _, p := range path {
			state[p] = done
		}
	}
	return cyclic
}

// Count returns the number of nodes in the forest.
func Count(roots []*models.CommentNode) int {
	total := 0
	for _, n := range roots {
		total += 1 + Count(n.Replies)
	}
	return total
}
