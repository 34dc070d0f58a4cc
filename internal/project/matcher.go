package project

import (
	"fmt"

	"github.com/dgnsrekt/voicestudio/internal/script"
	"github.com/dgnsrekt/voicestudio/internal/textsim"
)

// Policy selects how characters from different sources are unified.
type Policy string

// Matching policies.
const (
	// PolicyDistinct gives every character of every source its own id.
	PolicyDistinct Policy = "distinct"

	// PolicySimilarity merges characters with similar names and the same
	// gender.
	PolicySimilarity Policy = "similarity"
)

// DefaultThreshold is the name similarity needed to merge two characters.
const DefaultThreshold = script.MatchThreshold

// Mapping is the unified character table and the id translation per
// source file.
type Mapping struct {
	Characters []script.Character `json:"characters"`

	// IDs maps original ids to merged ids. When the same original id
	// appears in several sources the last one wins; use Resolve for an
	// exact per-source lookup.
	IDs map[string]string `json:"character_mapping"`

	BySource map[string]map[string]string `json:"by_source"`
}

// Resolve returns the merged id of originalID as defined in source.
func (m *Mapping) Resolve(source, originalID string) (string, bool) {
	if ids, ok := m.BySource[source]; ok {
		if id, ok := ids[originalID]; ok {
			return id, true
		}
	}
	return "", false
}

// Character returns the merged character with id.
func (m *Mapping) Character(id string) (script.Character, bool) {
	for _, c := range m.Characters {
		if c.ID == id {
			return c, true
		}
	}
	return script.Character{}, false
}

// Matcher merges character tables across project files.
type Matcher struct {
	Policy    Policy
	Threshold float64
}

// NewMatcher returns a matcher for policy. A non-positive threshold uses
// DefaultThreshold.
func NewMatcher(policy Policy, threshold float64) *Matcher {
	if policy == "" {
		policy = PolicyDistinct
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{Policy: policy, Threshold: threshold}
}

// Merge builds the unified character table. Merged ids are assigned in
// file order, then character order, so the result is stable for a given
// input order. Files are keyed by path in BySource.
func (m *Matcher) Merge(files []*File) *Mapping {
	out := &Mapping{
		IDs:      make(map[string]string),
		BySource: make(map[string]map[string]string),
	}

	next := 1
	for _, f := range files {
		ids := make(map[string]string)
		out.BySource[f.Path] = ids

		for _, c := range f.Characters {
			original := c.ID
			if original == "" {
				original = fmt.Sprintf("char_%d", next)
			}

			if m.Policy == PolicySimilarity {
				if id, ok := m.similar(out.Characters, c); ok {
					ids[original] = id
					out.IDs[original] = id
					continue
				}
			}

			merged := c
			merged.ID = fmt.Sprintf("merged_char_%d", next)
			merged.OriginalID = original
			merged.SourceFile = f.Name()
			next++

			out.Characters = append(out.Characters, merged)
			ids[original] = merged.ID
			out.IDs[original] = merged.ID
		}
	}
	return out
}

func (m *Matcher) similar(existing []script.Character, c script.Character) (string, bool) {
	best, bestID := 0.0, ""
	for _, e := range existing {
		if e.GenderOrNeutral() != c.GenderOrNeutral() {
			continue
		}
		if r := textsim.Similarity(e.DisplayName(), c.DisplayName()); r >= m.Threshold && r > best {
			best, bestID = r, e.ID
		}
	}
	return bestID, bestID != ""
}
