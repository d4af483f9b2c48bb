package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/playperu/knowsy/internal/knowsy"
)

// Topics lists the shared topics plus those owned by orgID, each with its
// shared catalog items followed by orgID's custom items.
func (s *Store) Topics(ctx context.Context, orgID string) ([]knowsy.Topic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(org_id, ''), name FROM topics
		WHERE org_id IS NULL OR org_id = ?
		ORDER BY name
	`, orgID)
	if err != nil {
		return nil, err
	}
	var topics []knowsy.Topic
	for rows.Next() {
		var t knowsy.Topic
		if err := rows.Scan(&t.ID, &t.OrgID, &t.Name); err != nil {
			rows.Close()
			return nil, err
		}
		topics = append(topics, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range topics {
		items, err := s.topicItems(ctx, topics[i].ID, orgID)
		if err != nil {
			return nil, err
		}
		topics[i].Items = items
	}
	return topics, nil
}

// Topic returns one topic visible to orgID.
func (s *Store) Topic(ctx context.Context, topicID, orgID string) (knowsy.Topic, error) {
	var t knowsy.Topic
	err := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(org_id, ''), name FROM topics
		WHERE id = ? AND (org_id IS NULL OR org_id = ?)
	`, topicID, orgID).Scan(&t.ID, &t.OrgID, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Items, err = s.topicItems(ctx, t.ID, orgID)
	return t, err
}

func (s *Store) topicItems(ctx context.Context, topicID, orgID string) ([]knowsy.TopicItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT 'catalog', id, name, image_url FROM catalog_items WHERE topic_id = ?
		UNION ALL
		SELECT 'org', id, name, image_url FROM org_items WHERE topic_id = ? AND org_id = ?
		ORDER BY 1, 3
	`, topicID, topicID, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []knowsy.TopicItem
	for rows.Next() {
		var (
			kind string
			it   knowsy.Item
		)
		if err := rows.Scan(&kind, &it.ID, &it.Name, &it.Image); err != nil {
			return nil, err
		}
		items = append(items, knowsy.TopicItem{
			Ref:  knowsy.ItemRef{Kind: knowsy.ItemKind(kind), ID: it.ID},
			Item: it,
		})
	}
	return items, rows.Err()
}

// AddOrgItem adds an organization's custom item to a topic.
func (s *Store) AddOrgItem(ctx context.Context, orgID, topicID, name, image string) (knowsy.Item, error) {
	it := knowsy.Item{ID: newID(), Name: name, Image: image}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO org_items (id, org_id, topic_id, name, image_url) VALUES (?, ?, ?, ?, ?)
	`, it.ID, orgID, topicID, name, image)
	if err != nil {
		return knowsy.Item{}, fmt.Errorf("inserting org item: %w", err)
	}
	return it, nil
}

// ResolveItems looks refs up in both catalogs and returns displayable items
// in the same order. Unknown ids resolve to themselves.
func (s *Store) ResolveItems(ctx context.Context, refs []knowsy.ItemRef) ([]knowsy.Item, error) {
	var catalogIDs, orgIDs []any
	for _, r := range refs {
		switch r.Kind {
		case knowsy.ItemCatalog:
			catalogIDs = append(catalogIDs, r.ID)
		case knowsy.ItemOrg:
			orgIDs = append(orgIDs, r.ID)
		}
	}

	catalog, err := s.itemsByID(ctx, "catalog_items", catalogIDs)
	if err != nil {
		return nil, err
	}
	org, err := s.itemsByID(ctx, "org_items", orgIDs)
	if err != nil {
		return nil, err
	}
	return knowsy.ResolveItems(refs, catalog, org), nil
}

func (s *Store) itemsByID(ctx context.Context, table string, ids []any) (map[string]knowsy.Item, error) {
	out := make(map[string]knowsy.Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, name, image_url FROM %s WHERE id IN (%s)`, table, placeholders(len(ids))),
		ids...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var it knowsy.Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Image); err != nil {
			return nil, err
		}
		out[it.ID] = it
	}
	return out, rows.Err()
}
