package knowsy

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type ItemKind string

const (
	ItemCatalog ItemKind = "catalog"
	ItemOrg     ItemKind = "org"
	ItemInline  ItemKind = "inline"
)

// ItemRef points at an item in the shared catalog, at an organization's
// custom catalog, or carries a free-text item inline.
type ItemRef struct {
	Kind  ItemKind `json:"kind"`
	ID    string   `json:"id,omitempty"`
	Name  string   `json:"name,omitempty"`
	Image string   `json:"image,omitempty"`
}

func CatalogRef(id string) ItemRef { return ItemRef{Kind: ItemCatalog, ID: id} }

func OrgRef(id string) ItemRef { return ItemRef{Kind: ItemOrg, ID: id} }

func InlineRef(name, image string) ItemRef {
	return ItemRef{Kind: ItemInline, Name: strings.TrimSpace(name), Image: image}
}

var (
	ErrUnknownItemKind = errors.New("unknown item kind")
	ErrEmptyItem       = errors.New("item has no id or name")
)

func (r ItemRef) Validate() error {
	switch r.Kind {
	case ItemCatalog, ItemOrg:
		if r.ID == "" {
			return ErrEmptyItem
		}
	case ItemInline:
		if strings.TrimSpace(r.Name) == "" {
			return ErrEmptyItem
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownItemKind, r.Kind)
	}
	return nil
}

// Key identifies the item for equality. Inline items compare by
// case-folded name.
func (r ItemRef) Key() string {
	if r.Kind == ItemInline {
		return "inline:" + strings.ToLower(strings.TrimSpace(r.Name))
	}
	return string(r.Kind) + ":" + r.ID
}

func (r ItemRef) Equal(o ItemRef) bool { return r.Key() == o.Key() }

func (r *ItemRef) UnmarshalJSON(data []byte) error {
	type plain ItemRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	ref := ItemRef(p)
	if err := ref.Validate(); err != nil {
		return err
	}
	*r = ref
	return nil
}

// Item is a resolved, displayable item.
type Item struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// ResolveItems maps refs to displayable items, preserving order. Refs whose
// id is missing from the lookup tables resolve to the raw id.
func ResolveItems(refs []ItemRef, catalog, org map[string]Item) []Item {
	out := make([]Item, 0, len(refs))
	for _, r := range refs {
		var (
			it Item
			ok bool
		)
		switch r.Kind {
		case ItemCatalog:
			it, ok = catalog[r.ID]
		case ItemOrg:
			it, ok = org[r.ID]
		case ItemInline:
			it, ok = Item{ID: r.Key(), Name: r.Name, Image: r.Image}, true
		}
		if !ok {
			it = Item{ID: r.ID, Name: r.ID}
		}
		out = append(out, it)
	}
	return out
}

var (
	ErrSelectionSize   = fmt.Errorf("a ranking must contain exactly %d items", SelectionSize)
	ErrDuplicateItem   = errors.New("ranking contains the same item twice")
	ErrNotAPermutation = errors.New("guess must rank exactly the VIP's items")
)

// ValidateRanking checks that refs is a well-formed ranking of distinct items.
func ValidateRanking(refs []ItemRef) error {
	if len(refs) != SelectionSize {
		return ErrSelectionSize
	}
	seen := make(map[string]struct{}, len(refs))
	for i, r := range refs {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("item %d: %w", i+1, err)
		}
		k := r.Key()
		if _, dup := seen[k]; dup {
			return ErrDuplicateItem
		}
		seen[k] = struct{}{}
	}
	return nil
}

// ValidateGuess checks that guess ranks the same items as selection.
func ValidateGuess(selection, guess []ItemRef) error {
	if err := ValidateRanking(guess); err != nil {
		return err
	}
	want := make(map[string]struct{}, len(selection))
	for _, r := range selection {
		want[r.Key()] = struct{}{}
	}
	for _, r := range guess {
		if _, ok := want[r.Key()]; !ok {
			return ErrNotAPermutation
		}
	}
	return nil
}
