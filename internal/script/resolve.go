package script

import (
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/dgnsrekt/voicestudio/internal/textsim"
)

// MatchThreshold is the name similarity a fuzzy hit needs before a speaker
// is taken to be a declared character.
const MatchThreshold = 0.7

// characterSource adapts a character table for fuzzy matching against both
// ids and display names.
type characterSource []Character

func (c characterSource) String(i int) string {
	return c[i].ID + " " + c[i].DisplayName()
}

func (c characterSource) Len() int { return len(c) }

// ResolveSpeaker maps a dialogue speaker to a character id. Exact ids win,
// then case-insensitive id or name matches, then the best fuzzy match among
// declared characters whose name is at least MatchThreshold similar.
// Characters derived from speakers only ever match exactly.
func (s *Script) ResolveSpeaker(speaker string) (string, bool) {
	speaker = strings.TrimSpace(speaker)
	if speaker == "" {
		return "", false
	}
	for _, c := range s.Characters {
		if c.ID == speaker {
			return c.ID, true
		}
	}
	for _, c := range s.Characters {
		if strings.EqualFold(c.ID, speaker) || strings.EqualFold(c.Name, speaker) {
			return c.ID, true
		}
	}

	if len([]rune(speaker)) < minFuzzyLen {
		return "", false
	}
	src := characterSource(s.Characters)
	for _, m := range fuzzy.FindFrom(speaker, src) {
		c := s.Characters[m.Index]
		if c.derived {
			continue
		}
		// the match must start a word, "ana" should not resolve to "narrator"
		first := m.MatchedIndexes[0]
		if first != 0 && m.Str[first-1] != ' ' {
			continue
		}
		sim := max(textsim.Similarity(speaker, c.ID), textsim.Similarity(speaker, c.DisplayName()))
		if sim >= MatchThreshold {
			return c.ID, true
		}
	}
	return "", false
}

const minFuzzyLen = 3

// normalizeSpeakers rewrites every dialogue speaker to a character id and
// adds a derived character for speakers that match nothing.
func (s *Script) normalizeSpeakers() {
	for i := range s.Segments {
		for j := range s.Segments[i].Dialogues {
			d := &s.Segments[i].Dialogues[j]
			if id, ok := s.ResolveSpeaker(d.Speaker); ok {
				d.Speaker = id
				continue
			}
			c := derivedCharacter(d.Speaker)
			d.Speaker = c.ID
			s.Characters = append(s.Characters, c)
		}
	}
}

func derivedCharacter(speaker string) Character {
	return Character{ID: speaker, Name: speaker, Gender: Neutral, derived: true}
}
