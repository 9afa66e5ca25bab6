package dbtest

import (
	"context"
	"time"

	"snapfeed/internal/database"
	"snapfeed/internal/models"
)

// Seed stores the users and a post owned by the first user, returning the post ref.
func Seed(ctx context.Context, db database.DBAdapter, usernames ...string) (models.EntityRef, error) {
	owner := ""
	for i, name := range usernames {
		u := &models.User{ID: "u-" + name, Username: name, DisplayName: name, CreatedAt: time.Unix(int64(i+1), 0).UTC()}
		if err := db.SaveUser(ctx, u); err != nil {
			return models.EntityRef{}, err
		}
		if owner == "" {
			owner = u.ID
		}
	}
	ref := models.EntityRef{Kind: models.EntityPost, ID: "p1"}
	if err := db.SaveEntity(ctx, &models.Entity{Ref: ref, OwnerID: owner}); err != nil {
		return models.EntityRef{}, err
	}
	return ref, nil
}
