package database

import (
	"context"
	"fmt"
	"time"

	"snapfeed/internal/models"
)

// DemoUserID and DemoPostID name the records SeedDemo writes, so a load
// driver can address them without listing the store.
func DemoUserID(i int) string { return fmt.Sprintf("u-demo-%d", i) }
func DemoPostID(i int) string { return fmt.Sprintf("p-demo-%d", i) }

// DemoUsername is the username of demo user i.
func DemoUsername(i int) string { return fmt.Sprintf("user_%d", i) }

var demoThemes = []string{
	"gaming", "tech", "science", "music", "movies",
	"books", "sports", "food", "travel", "art",
}

// SeedDemo stores numUsers users and numPosts posts spread over them round-robin.
// Existing records with the same ids are overwritten with zeroed counters.
func SeedDemo(ctx context.Context, db DBAdapter, numUsers, numPosts int) error {
	if numUsers <= 0 {
		return nil
	}
	base := time.Now().Add(-time.Duration(numUsers) * time.Minute).UTC()
	for i := 0; i < numUsers; i++ {
		u := &models.User{
			ID:          DemoUserID(i),
			Username:    DemoUsername(i),
			DisplayName: fmt.Sprintf("%s fan %d", demoThemes[i%len(demoThemes)], i),
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.SaveUser(ctx, u); err != nil {
			return fmt.Errorf("seed user %s: %w", u.ID, err)
		}
	}
	for i := 0; i < numPosts; i++ {
		post := &models.Entity{
			Ref:     models.EntityRef{Kind: models.EntityPost, ID: DemoPostID(i)},
			OwnerID: DemoUserID(i % numUsers),
		}
		if err := db.SaveEntity(ctx, post); err != nil {
			return fmt.Errorf("seed post %s: %w", post.Ref.ID, err)
		}
	}
	return nil
}
