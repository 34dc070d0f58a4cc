package script

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Format is the detected kind of a script source.
type Format string

// Detected formats.
const (
	FormatStructuredJSON Format = "structured_json"
	FormatPlainText      Format = "plain_script_text"
)

// Extensions lists every supported source extension.
var Extensions = []string{".json", ".txt", ".script", ".md", ".csv"}

var (
	// ErrUnsupported is returned for files with an unknown extension.
	ErrUnsupported = errors.New("unsupported script format")

	// ErrNoSegments is returned when a JSON source has no segments array.
	ErrNoSegments = errors.New("script has no segments")
)

var validate = validator.New()

// Supported reports whether path has a supported extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// ParseFile reads and parses path based on its extension.
func ParseFile(path string) (*Script, Format, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var s *Script
	format := FormatPlainText
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		format = FormatStructuredJSON
		s, err = ParseJSON(data)
	case ".txt", ".script":
		s, err = ParseText(string(data), title)
	case ".md":
		s, err = ParseMarkdown(data, title)
	case ".csv":
		s, err = ParseCSV(bytes.NewReader(data), title)
	default:
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupported, path)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return s, format, nil
}

// ParseJSON parses a structured script. A missing character table is
// derived from the dialogue speakers.
func ParseJSON(data []byte) (*Script, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, err
	}
	if _, ok := keys["segments"]; !ok {
		return nil, ErrNoSegments
	}

	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	for i := range s.Characters {
		if s.Characters[i].Gender != "" {
			s.Characters[i].Gender = s.Characters[i].GenderOrNeutral()
		}
	}
	for i := range s.Segments {
		if s.Segments[i].ID == "" {
			s.Segments[i].ID = SegmentID(fmt.Sprint(i + 1))
		}
	}
	if err := validate.Struct(&s); err != nil {
		return nil, err
	}

	s.normalizeSpeakers()
	return &s, nil
}

// ParseText turns a plain text script into one segment of narrator
// dialogues, one per paragraph.
func ParseText(content, title string) (*Script, error) {
	return narrated(title, paragraphs(content))
}

// ParseCSV reads rows of speaker,text[,emotion] into a single segment. A
// leading header row is skipped.
func ParseCSV(r io.Reader, title string) (*Script, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var dialogues []Dialogue
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if line == 1 && len(rec) >= 2 &&
			strings.EqualFold(rec[0], "speaker") && strings.EqualFold(rec[1], "text") {
			continue
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("line %d: want speaker,text[,emotion], got %d fields", line, len(rec))
		}
		d := Dialogue{Speaker: strings.TrimSpace(rec[0]), Text: strings.TrimSpace(rec[1])}
		if len(rec) > 2 {
			d.Emotion = strings.TrimSpace(rec[2])
		}
		if d.Speaker == "" || d.Text == "" {
			continue
		}
		dialogues = append(dialogues, d)
	}
	if len(dialogues) == 0 {
		return nil, errors.New("no dialogue rows")
	}

	s := &Script{
		Project:  Info{Title: title},
		Segments: []Segment{{ID: "1", Title: title, Dialogues: dialogues}},
	}
	s.normalizeSpeakers()
	return s, nil
}

func narrated(title string, texts []string) (*Script, error) {
	if len(texts) == 0 {
		return nil, errors.New("no text content")
	}
	dialogues := make([]Dialogue, len(texts))
	for i, t := range texts {
		dialogues[i] = Dialogue{Speaker: NarratorID, Text: t, Emotion: "neutral"}
	}
	return &Script{
		Project:    Info{Title: title},
		Characters: []Character{{ID: NarratorID, Name: "Narrator", Gender: Neutral}},
		Segments:   []Segment{{ID: "1", Title: title, Dialogues: dialogues}},
	}, nil
}

// paragraphs splits on blank lines and joins wrapped lines.
func paragraphs(content string) []string {
	var out, cur []string
	flush := func() {
		if len(cur) > 0 {
			out = append(out, strings.Join(cur, " "))
			cur = cur[:0]
		}
	}
	for _, line := range strings.Split(content, "\n") {
		words := strings.Fields(line)
		if len(words) == 0 {
			flush()
			continue
		}
		cur = append(cur, words...)
	}
	flush()
	return out
}
