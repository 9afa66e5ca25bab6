package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestCommentNormalized(t *testing.T) {
	c := Comment{
		ID:              "c1",
		ParentID:        strPtr("  "),
		ReplyToUsername: strPtr(""),
		MentionIDs:      []string{},
	}

	n := c.Normalized()
	assert.Nil(t, n.ParentID)
	assert.Nil(t, n.ReplyToUsername)
	assert.Nil(t, n.MentionIDs)
	assert.False(t, n.IsReply())

	// original is untouched
	assert.NotNil(t, c.ParentID)
}

func TestCommentValidate(t *testing.T) {
	valid := Comment{ID: "c1", AuthorID: "u1", Text: "hi", CreatedAt: time.Unix(1, 0)}
	assert.NoError(t, valid.Validate())

	noID := valid
	noID.ID = ""
	assert.ErrorIs(t, noID.Validate(), ErrCommentMissingID)

	noAuthor := valid
	noAuthor.AuthorID = " "
	assert.ErrorIs(t, noAuthor.Validate(), ErrCommentMissingAuthor)

	blank := valid
	blank.Text = "\n\t"
	assert.ErrorIs(t, blank.Validate(), ErrCommentEmptyText)

	noTime := valid
	noTime.CreatedAt = time.Time{}
	assert.ErrorIs(t, noTime.Validate(), ErrCommentNoTimestamp)
}

func TestActionAccepts(t *testing.T) {
	assert.True(t, ActionLike.Accepts(EntityReel))
	assert.False(t, ActionLike.Accepts(EntityUser))
	assert.True(t, ActionSave.Accepts(EntityPost))
	assert.False(t, ActionSave.Accepts(EntityStory))
	assert.True(t, ActionFollow.Accepts(EntityUser))
	assert.False(t, ActionKind("poke").Valid())
}

func TestEntityRefValidate(t *testing.T) {
	assert.NoError(t, EntityRef{Kind: EntityPost, ID: "p1"}.Validate())
	assert.Error(t, EntityRef{Kind: "album", ID: "p1"}.Validate())
	assert.Error(t, EntityRef{Kind: EntityPost}.Validate())
	assert.Equal(t, "reel/r9", EntityRef{Kind: EntityReel, ID: "r9"}.String())
}
