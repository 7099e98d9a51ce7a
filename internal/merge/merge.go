// Package merge finds duplicate product documents in the dataset and folds
// them into a single survivor. Duplicates mostly come from editors entering
// the same ingredient with different spacing, width, or decorations, so
// grouping happens on an aggressively normalized name.
package merge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/suptia/contentsync/internal/document"
	"github.com/suptia/contentsync/internal/report"
	"github.com/suptia/contentsync/internal/sanity"
)

// Loser is a duplicate scheduled for deletion.
type Loser struct {
	ID    string
	Name  string
	Score int
}

// Group is one set of duplicates with the chosen survivor and the fields it
// inherits from losers.
type Group struct {
	Key       string
	KeepID    string
	KeepName  string
	KeepScore int
	Losers    []Loser
	SetFields document.Document
}

// Plan lists every duplicate group found in the dataset.
type Plan struct {
	Total  int
	Groups []Group
}

// NormalizeName collapses a display name to a grouping key: lowercased,
// full-width ASCII folded, bracketed decorations removed, and everything but
// letters and digits dropped.
func NormalizeName(name string) string {
	name = stripBrackets(name)
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		// Fold full-width ASCII (！ through ～) onto its half-width form.
		if r >= 0xFF01 && r <= 0xFF5E {
			r = r - 0xFF01 + '!'
			r = unicode.ToLower(r)
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func stripBrackets(s string) string {
	pairs := [][2]rune{{'【', '】'}, {'（', '）'}, {'(', ')'}, {'[', ']'}}
	var b strings.Builder
	depth := 0
	for _, r := range s {
		opened := false
		for _, p := range pairs {
			switch r {
			case p[0]:
				depth++
				opened = true
			case p[1]:
				if depth > 0 {
					depth--
				}
				opened = true
			}
		}
		if !opened && depth == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Score rates how complete a document is. Non-empty payload fields count one
// each, description length adds up to ten, and a resolvable slug is worth
// keeping on its own.
func Score(doc document.Document) int {
	score := 0
	for k, v := range doc {
		if strings.HasPrefix(k, "_") {
			continue
		}
		if !isEmpty(v) {
			score++
		}
	}
	if desc, ok := doc["description"].(string); ok {
		bonus := len(desc) / 50
		if bonus > 10 {
			bonus = 10
		}
		score += bonus
	}
	if document.Slug(doc) != "" {
		score += 5
	}
	return score
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}

// BuildPlan groups docs by normalized name and picks the survivor of each
// duplicate group. Deterministic: ties on score fall back to document id.
func BuildPlan(docs []document.Document) Plan {
	groups := map[string][]document.Document{}
	for _, doc := range docs {
		name, _ := doc["name"].(string)
		if name == "" {
			name, _ = doc["nameEn"].(string)
		}
		key := NormalizeName(name)
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], doc)
	}

	keys := make([]string, 0, len(groups))
	for key, members := range groups {
		if len(members) > 1 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	plan := Plan{Total: len(docs)}
	for _, key := range keys {
		members := groups[key]
		sort.Slice(members, func(i, j int) bool {
			si, sj := Score(members[i]), Score(members[j])
			if si != sj {
				return si > sj
			}
			idi, _ := members[i]["_id"].(string)
			idj, _ := members[j]["_id"].(string)
			return idi < idj
		})

		keep := members[0]
		keepID, _ := keep["_id"].(string)
		keepName, _ := keep["name"].(string)
		group := Group{
			Key:       key,
			KeepID:    keepID,
			KeepName:  keepName,
			KeepScore: Score(keep),
			SetFields: document.Document{},
		}
		for _, loser := range members[1:] {
			id, _ := loser["_id"].(string)
			name, _ := loser["name"].(string)
			group.Losers = append(group.Losers, Loser{ID: id, Name: name, Score: Score(loser)})
			// The survivor inherits payload fields it lacks. The slug stays
			// untouched: changing it would break published URLs.
			for k, v := range document.Payload(loser) {
				if k == "slug" || k == "_type" || isEmpty(v) {
					continue
				}
				if isEmpty(keep[k]) && isEmpty(group.SetFields[k]) {
					group.SetFields[k] = v
				}
			}
		}
		plan.Groups = append(plan.Groups, group)
	}
	return plan
}

// Merger applies merge plans to the dataset.
type Merger struct {
	store    sanity.Store
	reporter *report.Reporter
}

// NewMerger builds a Merger.
func NewMerger(store sanity.Store, reporter *report.Reporter) *Merger {
	return &Merger{store: store, reporter: reporter}
}

// Run fetches all documents of docType, builds the plan, and applies it
// unless dryRun is set. The plan is returned either way so callers can
// render it.
func (m *Merger) Run(ctx context.Context, docType string, dryRun bool) (Plan, error) {
	docs, err := m.store.FetchByType(ctx, docType)
	if err != nil {
		return Plan{}, fmt.Errorf("fetch %s documents: %w", docType, err)
	}
	plan := BuildPlan(docs)
	if len(plan.Groups) == 0 {
		m.reporter.Infof("no duplicates among %d documents", plan.Total)
		return plan, nil
	}
	m.reporter.Infof("found %d duplicate groups among %d documents", len(plan.Groups), plan.Total)

	for _, group := range plan.Groups {
		if dryRun {
			m.reporter.Infof("[dry run] would keep %s (%s), delete %d duplicates, inherit %d fields",
				group.KeepName, group.KeepID, len(group.Losers), len(group.SetFields))
			continue
		}
		if len(group.SetFields) > 0 {
			if err := m.store.Patch(ctx, group.KeepID, group.SetFields); err != nil {
				return plan, fmt.Errorf("patch survivor %s: %w", group.KeepID, err)
			}
		}
		for _, loser := range group.Losers {
			if err := m.store.Delete(ctx, loser.ID); err != nil {
				return plan, fmt.Errorf("delete duplicate %s: %w", loser.ID, err)
			}
		}
		m.reporter.Succeedf("merged %q: kept %s, removed %d duplicates",
			group.KeepName, group.KeepID, len(group.Losers))
	}
	return plan, nil
}
