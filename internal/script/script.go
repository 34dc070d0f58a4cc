// Package script defines the narration script model (characters, segments
// and dialogues) and parses it from structured JSON or plain text sources.
package script

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Genders accepted in character tables.
const (
	Male    = "male"
	Female  = "female"
	Neutral = "neutral"
)

// NarratorID is the character every plain text dialogue is attributed to.
const NarratorID = "narrator"

// Info is the free-form project header.
type Info struct {
	Title string `json:"title,omitempty"`
	Genre string `json:"genre,omitempty"`
}

// Character is one entry of the character table.
type Character struct {
	ID             string         `json:"id" validate:"required"`
	Name           string         `json:"name,omitempty"`
	Gender         string         `json:"gender,omitempty" validate:"omitempty,oneof=male female neutral"`
	SuggestedVoice string         `json:"suggested_voice,omitempty"`
	VoiceSettings  map[string]any `json:"voice_settings,omitempty"`

	// Set by the character matcher when tables are merged.
	OriginalID string `json:"original_id,omitempty"`
	SourceFile string `json:"source_file,omitempty"`

	derived bool
}

// DisplayName returns Name, or the id when no name is set.
func (c Character) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// GenderOrNeutral returns the lowercased gender, neutral when unset.
func (c Character) GenderOrNeutral() string {
	if g := strings.ToLower(strings.TrimSpace(c.Gender)); g != "" {
		return g
	}
	return Neutral
}

// InnerVoiceParams override the echo parameters of an inner voice effect.
type InnerVoiceParams struct {
	Delay float64 `json:"delay,omitempty"`
	Decay float64 `json:"decay,omitempty"`
	Gain  float64 `json:"gain,omitempty"`
}

// Dialogue is one utterance.
type Dialogue struct {
	Speaker          string            `json:"speaker" validate:"required"`
	Text             string            `json:"text" validate:"required"`
	Emotion          string            `json:"emotion,omitempty"`
	InnerVoice       bool              `json:"inner_voice,omitempty"`
	InnerVoiceType   string            `json:"inner_voice_type,omitempty" validate:"omitempty,oneof=light deep dreamy"`
	InnerVoiceParams *InnerVoiceParams `json:"inner_voice_params,omitempty"`
	VoiceParams      map[string]any    `json:"voice_params,omitempty"`
}

// SegmentID accepts both numeric and string ids.
type SegmentID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *SegmentID) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*id = SegmentID(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("segment id must be a number or string: %s", b)
	}
	*id = SegmentID(s)
	return nil
}

// MarshalJSON writes integer ids as numbers.
func (id SegmentID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.Atoi(string(id)); err == nil && strconv.Itoa(n) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Segment is an ordered group of dialogues, usually a scene.
type Segment struct {
	ID        SegmentID  `json:"id"`
	Title     string     `json:"title,omitempty"`
	Duration  float64    `json:"duration,omitempty"`
	Dialogues []Dialogue `json:"dialogues" validate:"dive"`
}

// Script is a parsed project source.
type Script struct {
	Project    Info        `json:"project"`
	Characters []Character `json:"characters" validate:"dive"`
	Segments   []Segment   `json:"segments" validate:"dive"`
}

// Character looks up a character by id.
func (s *Script) Character(id string) (Character, bool) {
	for _, c := range s.Characters {
		if c.ID == id {
			return c, true
		}
	}
	return Character{}, false
}

// DialogueCount is the number of dialogues across all segments.
func (s *Script) DialogueCount() int {
	var n int
	for _, seg := range s.Segments {
		n += len(seg.Dialogues)
	}
	return n
}

// WordCount counts whitespace separated words in every dialogue.
func (s *Script) WordCount() int {
	var n int
	for _, seg := range s.Segments {
		for _, d := range seg.Dialogues {
			n += len(strings.Fields(d.Text))
		}
	}
	return n
}

// Speakers returns dialogue speakers in order of first appearance.
func (s *Script) Speakers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, seg := range s.Segments {
		for _, d := range seg.Dialogues {
			if !seen[d.Speaker] {
				seen[d.Speaker] = true
				out = append(out, d.Speaker)
			}
		}
	}
	return out
}
