package batch

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dgnsrekt/voicestudio/internal/project"
	"github.com/dgnsrekt/voicestudio/internal/script"
	"github.com/dgnsrekt/voicestudio/internal/voice"
)

// unit is one dialogue of one segment of one project file.
type unit struct {
	index    int
	file     *project.File
	dir      string
	segment  int
	dialogue int

	line      script.Dialogue
	speaker   string
	character script.Character
}

// name is the output file stem: s<S>_d<D>_<speaker>.
func (u *unit) name() string {
	return fmt.Sprintf("s%d_d%d_%s", u.segment, u.dialogue, safeName(u.line.Speaker))
}

func (u *unit) label() string {
	return u.file.Name() + "/" + u.name()
}

// enumerate lists every unit of the job in file, segment and dialogue
// order. A job with several files writes each into its own directory.
func enumerate(job *Job, m *project.Mapping) []*unit {
	dirs := projectDirs(job.OutputDir, job.Files)

	var units []*unit
	for fi, f := range job.Files {
		if f.Script == nil {
			continue
		}
		for si, seg := range f.Script.Segments {
			for di, d := range seg.Dialogues {
				u := &unit{
					index:    len(units),
					file:     f,
					dir:      dirs[fi],
					segment:  si + 1,
					dialogue: di + 1,
					line:     d,
					speaker:  d.Speaker,
				}
				if id, ok := m.Resolve(f.Path, d.Speaker); ok {
					u.speaker = id
					u.character, _ = m.Character(id)
				} else if c, ok := f.Script.Character(d.Speaker); ok {
					u.character = c
				}
				units = append(units, u)
			}
		}
	}
	return units
}

func projectDirs(outputDir string, files []*project.File) []string {
	dirs := make([]string, len(files))
	if len(files) == 1 {
		dirs[0] = outputDir
		return dirs
	}

	used := make(map[string]int)
	for i, f := range files {
		stem := safeName(strings.TrimSuffix(f.Name(), filepath.Ext(f.Name())))
		used[stem]++
		if n := used[stem]; n > 1 {
			stem = fmt.Sprintf("%s_%d", stem, n)
		}
		dirs[i] = filepath.Join(outputDir, stem)
	}
	return dirs
}

// unitParams layers the job's shared settings, the character's voice and
// settings and the dialogue's own params, in that order.
func unitParams(shared voice.Params, c script.Character, d script.Dialogue) (voice.Params, error) {
	params := shared.Clone()
	if c.SuggestedVoice != "" {
		params.VoiceID = c.SuggestedVoice
	}
	if len(c.VoiceSettings) > 0 {
		over, err := voice.FromMap(c.VoiceSettings)
		if err != nil {
			return voice.Params{}, fmt.Errorf("character %s voice settings: %w", c.ID, err)
		}
		params = params.Merge(over)
	}
	if len(d.VoiceParams) > 0 {
		over, err := voice.FromMap(d.VoiceParams)
		if err != nil {
			return voice.Params{}, fmt.Errorf("dialogue voice params: %w", err)
		}
		params = params.Merge(over)
	}
	if d.Emotion != "" {
		params = params.Merge(voice.Params{Extra: map[string]any{"emotion": d.Emotion}})
	}
	return params, nil
}

func safeName(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r > 127:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
