package conflict

import (
	"context"
	"strings"

	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
	"github.com/jackchouchani/inventoryApp-sub001/internal/remote"
	"github.com/jackchouchani/inventoryApp-sub001/internal/syncx"
)

// DuplicateFinder searches the remote store for rows that plausibly
// describe the same real-world object as a locally created one.
// Field names the key that matched; it is empty when the finder does not
// apply to the entity or the local data lacks the key.
type DuplicateFinder interface {
	Find(ctx context.Context, rs remote.Store, entity model.Entity, data map[string]any) (field string, recs []remote.Record, err error)
}

// DefaultFinders returns the search order used for CREATE events: natural
// unique key, entity secondary key, then case-insensitive name.
func DefaultFinders() []DuplicateFinder {
	return []DuplicateFinder{
		KeyFinder{Pick: func(s model.EntitySchema) string { return s.UniqueKey }},
		KeyFinder{Pick: func(s model.EntitySchema) string { return s.SecondaryKey }},
		NameFinder{},
	}
}

// KeyFinder matches one schema-selected field exactly
type KeyFinder struct {
	Pick func(model.EntitySchema) string
}

func (f KeyFinder) Find(ctx context.Context, rs remote.Store, entity model.Entity, data map[string]any) (string, []remote.Record, error) {
	sc, ok := model.Schema(entity)
	if !ok {
		return "", nil, nil
	}
	field := f.Pick(sc)
	if field == "" {
		return "", nil, nil
	}
	v, present := data[field]
	if !present || v == nil {
		return "", nil, nil
	}
	if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
		return "", nil, nil
	}

	recs, err := rs.FindByUniqueKey(ctx, entity, field, v)
	return field, recs, err
}

// NameFinder matches the entity name case-insensitively
type NameFinder struct{}

func (NameFinder) Find(ctx context.Context, rs remote.Store, entity model.Entity, data map[string]any) (string, []remote.Record, error) {
	sc, ok := model.Schema(entity)
	if !ok || sc.NameField == "" {
		return "", nil, nil
	}
	name, _ := syncx.GetString(data, sc.NameField)
	if strings.TrimSpace(name) == "" {
		return "", nil, nil
	}

	recs, err := rs.FindByName(ctx, entity, name)
	return sc.NameField, recs, err
}

// match is one candidate duplicate and every key it matched on
type match struct {
	rec    remote.Record
	fields []string
}

// findDuplicates runs finders in order and unions their results by id,
// excluding selfID and soft-deleted rows. Order of first appearance is kept.
func findDuplicates(ctx context.Context, rs remote.Store, finders []DuplicateFinder, entity model.Entity, selfID string, data map[string]any) ([]match, error) {
	var out []match
	index := make(map[string]int)

	for _, f := range finders {
		field, recs, err := f.Find(ctx, rs, entity, data)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			if rec.ID == "" || rec.ID == selfID || rec.Deleted {
				continue
			}
			if i, seen := index[rec.ID]; seen {
				out[i].fields = appendUnique(out[i].fields, field)
				continue
			}
			index[rec.ID] = len(out)
			out = append(out, match{rec: rec, fields: []string{field}})
		}
	}
	return out, nil
}

func appendUnique(list []string, s string) []string {
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}
