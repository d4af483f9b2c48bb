package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/playperu/knowsy/internal/feed"
)

type seedTopic struct {
	id    string
	name  string
	items []string
}

var demoTopics = []seedTopic{
	{"food", "Comfort food", []string{"Pizza", "Tacos", "Sushi", "Burgers", "Salad", "Ramen", "Curry"}},
	{"weekend", "Weekend plans", []string{"Hiking", "Brunch", "Movie marathon", "Board games", "Beach day", "Museum", "Sleeping in"}},
	{"chores", "Household chores", []string{"Dishes", "Laundry", "Vacuuming", "Grocery run", "Taking out trash", "Cooking"}},
	{"travel", "Dream trips", []string{"Tokyo", "Lima", "Reykjavik", "Cape Town", "New York", "Rome"}},
}

// SeedCatalog fills an empty topic catalog with demo topics. It reports
// whether anything was inserted.
func (s *Store) SeedCatalog(ctx context.Context) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM topics`).Scan(&n); err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	err := s.inTx(ctx, func(tx *sql.Tx, _ func(feed.Event)) error {
		for _, t := range demoTopics {
			if _, err := tx.ExecContext(ctx, `INSERT INTO topics (id, name) VALUES (?, ?)`, t.id, t.name); err != nil {
				return fmt.Errorf("seeding topic %s: %w", t.id, err)
			}
			for _, name := range t.items {
				id := t.id + "-" + strings.ReplaceAll(strings.ToLower(name), " ", "-")
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO catalog_items (id, topic_id, name) VALUES (?, ?, ?)
				`, id, t.id, name); err != nil {
					return fmt.Errorf("seeding item %s: %w", id, err)
				}
			}
		}
		return nil
	})
	return err == nil, err
}
