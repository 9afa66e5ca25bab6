package models

// ActionKind is a togglable social relationship.
type ActionKind string

const (
	ActionLike   ActionKind = "like"
	ActionSave   ActionKind = "save"
	ActionFollow ActionKind = "follow"
)

// Valid reports whether a is a known action kind.
func (a ActionKind) Valid() bool {
	return a == ActionLike || a == ActionSave || a == ActionFollow
}

// Accepts reports whether the action can target entities of kind k.
func (a ActionKind) Accepts(k EntityKind) bool {
	switch a {
	case ActionLike:
		return k.Commentable()
	case ActionSave:
		return k == EntityPost
	case ActionFollow:
		return k == EntityUser
	default:
		return false
	}
}

// SocialAction is the displayed state of one togglable relationship between an
// actor and an entity. Active true means the actor's contribution is included
// in Count relative to the last known server value.
type SocialAction struct {
	Action  ActionKind `json:"action"`
	Entity  EntityRef  `json:"entity"`
	ActorID string     `json:"actorId"`
	Active  bool       `json:"active"`
	Count   int        `json:"count"`
}
