package comments

import (
	"testing"
	"time"

	"snapfeed/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func comment(id, parent string, at int64) models.Comment {
	c := models.Comment{ID: id, AuthorID: "u1", Text: id, CreatedAt: time.Unix(at, 0)}
	if parent != "" {
		c.ParentID = &parent
	}
	return c
}

// shape flattens a forest to "id(child,child)" form for comparison.
func shape(nodes []*models.CommentNode) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		s := n.ID
		if len(n.Replies) > 0 {
			s += "("
			for i, r := range shape(n.Replies) {
				if i > 0 {
					s += ","
				}
				s += r
			}
			s += ")"
		}
		out = append(out, s)
	}
	return out
}

func TestBuildForestOrphanFallsBackToRoot(t *testing.T) {
	flat := []models.Comment{comment("a", "", 1), comment("b", "a", 2), comment("c", "zzz", 3)}

	roots := BuildForest(flat)
	assert.Equal(t, []string{"a(b)", "c"}, shape(roots))
	require.Len(t, roots[0].Replies, 1)
	assert.Empty(t, roots[1].Replies)
	assert.NotNil(t, roots[1].Replies)
}

func TestBuildForestIsDeterministic(t *testing.T) {
	flat := []models.Comment{
		comment("a", "", 1), comment("b", "a", 2), comment("c", "", 3),
		comment("d", "b", 4), comment("e", "a", 5), comment("f", "c", 6),
	}
	first := BuildForest(flat)
	second := BuildForest(flat)
	assert.Equal(t, shape(first), shape(second))
	assert.Equal(t, []string{"a(b(d),e)", "c(f)"}, shape(first))
	assert.Equal(t, len(flat), Count(first))
}

func TestBuildForestPartitionsEveryComment(t *testing.T) {
	flat := []models.Comment{
		comment("a", "", 1), comment("b", "a", 2), comment("c", "missing", 3),
		comment("d", "c", 4), comment("e", "e", 5), comment("f", "g", 6), comment("g", "f", 7),
		comment("h", "f", 8),
	}
	roots := BuildForest(flat)

	seen := map[string]int{}
	var walk func([]*models.CommentNode)
	walk = func(nodes []*models.CommentNode) {
		for _, n := range nodes {
			seen[n.ID]++
			walk(n.Replies)
		}
	}
	walk(roots)

	for _, c := range flat {
		assert.Equal(t, 1, seen[c.ID], c.ID)
	}
	// self-parent and cycle members are roots; h hangs off f
	assert.Equal(t, []string{"a(b)", "c(d)", "e", "f(h)", "g"}, shape(roots))
}

func TestBuildForestKeepsAscendingOrder(t *testing.T) {
	flat := []models.Comment{
		comment("r1", "", 1), comment("x", "r1", 2), comment("r2", "", 3),
		comment("y", "r1", 4), comment("z", "r2", 5), comment("w", "r1", 6),
	}
	roots := BuildForest(flat)

	var check func([]*models.CommentNode)
	check = func(nodes []*models.CommentNode) {
		for i := 1; i < len(nodes); i++ {
			assert.False(t, nodes[i].CreatedAt.Before(nodes[i-1].CreatedAt))
		}
		for _, n := range nodes {
			check(n.Replies)
		}
	}
	check(roots)
	assert.Equal(t, []string{"r1(x,y,w)", "r2(z)"}, shape(roots))
}

func TestBuildForestEmptyAndDuplicates(t *testing.T) {
	assert.Empty(t, BuildForest(nil))

	flat := []models.Comment{comment("a", "", 1), comment("a", "", 2), comment("b", "a", 3)}
	roots := BuildForest(flat)
	assert.Equal(t, []string{"a(b)", "a"}, shape(roots))
}
