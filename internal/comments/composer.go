package comments

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"snapfeed/internal/models"
	"snapfeed/internal/utils"
)

// MentionTrigger starts a mention token.
const MentionTrigger = '@'

// Mode is the composer state.
type Mode int

const (
	Idle Mode = iota
	Composing
	Replying
	Editing
)

func (m Mode) String() string {
	switch m {
	case Composing:
		return "composing"
	case Replying:
		return "replying"
	case Editing:
		return "editing"
	default:
		return "idle"
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

type mention struct {
	userID   string
	username string
}

// Composer is the reply/edit/mention state machine for one thread.
// It is not safe for concurrent use; Thread serializes access.
type Composer struct {
	mode     Mode
	text     string
	target   *models.Comment // reply target or comment being edited
	mentions []mention
}

// Draft is what a submit sends.
type Draft struct {
	Mode            Mode
	Text            string
	EditID          string
	ParentID        *string
	ReplyToUsername *string
	MentionIDs      []string
}

// ComposerView is the composer's read-only state.
type ComposerView struct {
	Mode            Mode   `json:"mode"`
	Text            string `json:"text"`
	TargetID        string `json:"targetId,omitempty"`
	ReplyToUsername string `json:"replyToUsername,omitempty"`
}

func (c *Composer) Mode() Mode   { return c.mode }
func (c *Composer) Text() string { return c.text }

// Target returns the reply target or the comment being edited.
func (c *Composer) Target() *models.Comment { return c.target }

// SetText replaces the composer text. Idle and Composing follow whether any
// text is present; Replying and Editing keep their target.
func (c *Composer) SetText(text string) {
	c.text = text
	switch c.mode {
	case Idle:
		if strings.TrimSpace(text) != "" {
			c.mode = Composing
		}
	case Composing:
		if strings.TrimSpace(text) == "" {
			c.mode = Idle
		}
	}
}

// MentionQuery returns the text after the trigger when the trailing
// whitespace-delimited token starts with it. The query may be empty.
func (c *Composer) MentionQuery() (string, bool) {
	token := trailingToken(c.text)
	if token == "" || token[0] != MentionTrigger {
		return "", false
	}
	return token[1:], true
}

// StartReply targets a comment. Not allowed while editing.
func (c *Composer) StartReply(target models.Comment) error {
	if c.mode == Editing {
		return utils.NewAppError(utils.ErrInvalidState, "finish or cancel the edit before replying", nil)
	}
	c.mode = Replying
	c.target = &target
	return nil
}

// StartEdit loads the comment's text. Any reply target and pending mentions are dropped.
func (c *Composer) StartEdit(comment models.Comment) {
	c.mode = Editing
	c.target = &comment
	c.text = comment.Text
	c.mentions = nil
}

// SelectMention swaps the trailing partial token for "@username " and records the user.
func (c *Composer) SelectMention(candidate models.MentionCandidate) {
	token := trailingToken(c.text)
	c.text = c.text[:len(c.text)-len(token)] + string(MentionTrigger) + candidate.Username + " "
	for _, m := range c.mentions {
		if m.userID == candidate.UserID {
			return
		}
	}
	c.mentions = append(c.mentions, mention{userID: candidate.UserID, username: candidate.Username})
	if c.mode == Idle {
		c.mode = Composing
	}
}

// Reset returns to Idle with nothing pending.
func (c *Composer) Reset() {
	*c = Composer{}
}

// Draft validates the composer and builds the submission. Only mentions whose
// "@username" still appears in the text are attached.
func (c *Composer) Draft() (Draft, error) {
	text := strings.TrimSpace(c.text)
	if text == "" {
		return Draft{}, utils.NewAppError(utils.ErrInvalidInput, "comment text is empty", nil)
	}

	d := Draft{Mode: c.mode, Text: text}
	switch c.mode {
	case Editing:
		d.EditID = c.target.ID
	case Replying:
		id, name := c.target.ID, c.target.AuthorName
		d.ParentID, d.ReplyToUsername = &id, &name
	}
	for _, m := range c.mentions {
		if strings.Contains(text, string(MentionTrigger)+m.username) {
			d.MentionIDs = append(d.MentionIDs, m.userID)
		}
	}
	return d, nil
}

func (c *Composer) View() ComposerView {
	v := ComposerView{Mode: c.mode, Text: c.text}
	if c.target != nil {
		v.TargetID = c.target.ID
		if c.mode == Replying {
			v.ReplyToUsername = c.target.AuthorName
		}
	}
	return v
}

func trailingToken(text string) string {
	i := strings.LastIndexFunc(text, unicode.IsSpace)
	if i < 0 {
		return text
	}
	_, size := utf8.DecodeRuneInString(text[i:])
	return text[i+size:]
}
