package notify

import "snapfeed/internal/models"

// Target is one receiver of a comment notification.
type Target struct {
	ReceiverID string
	Type       models.NotificationType
}

// CommentTargets lists who hears about a new comment: the parent author
// (reply), each mentioned user (mention) and the entity owner (comment).
// Each receiver appears once under the most specific type and the author never does.
func CommentTargets(authorID, ownerID, parentAuthorID string, mentionIDs []string) []Target {
	seen := map[string]bool{authorID: true, "": true}
	var out []Target
	add := func(id string, t models.NotificationType) {
		if seen[id] {
			return
		}
		seen[id] = true
		out = append(out, Target{ReceiverID: id, Type: t})
	}

	add(parentAuthorID, models.NotifyReply)
	for _, id := range mentionIDs {
		add(id, models.NotifyMention)
	}
	add(ownerID, models.NotifyComment)
	return out
}
