// Package project discovers script sources in a directory tree and unifies
// their character tables.
package project

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/muesli/gitcha"

	"github.com/dgnsrekt/voicestudio/internal/script"
)

// WordsPerMinute is the narration rate used for text duration estimates.
const WordsPerMinute = 150

// Parse confidence per detected format.
const (
	StructuredQuality = 0.8
	TextQuality       = 0.6
)

// defaultSegmentSeconds is assumed for JSON segments without a duration.
const defaultSegmentSeconds = 30

// File is a normalized descriptor for one parsed script source.
type File struct {
	Path              string             `json:"file_path"`
	Type              string             `json:"file_type"`
	Format            script.Format      `json:"detected_format"`
	Characters        []script.Character `json:"characters"`
	SegmentCount      int                `json:"segments_count"`
	EstimatedDuration float64            `json:"estimated_duration"`
	Metadata          map[string]any     `json:"metadata"`
	QualityScore      float64            `json:"quality_score"`

	Script *script.Script `json:"-"`
}

// Name is the base filename.
func (f *File) Name() string {
	return filepath.Base(f.Path)
}

// Detector finds and parses project files.
type Detector struct {
	// ShowAll ignores .gitignore rules while walking.
	ShowAll bool

	logger *log.Logger
}

// NewDetector returns a detector logging to logger, or the default logger.
func NewDetector(logger *log.Logger) *Detector {
	if logger == nil {
		logger = log.Default()
	}
	return &Detector{logger: logger}
}

func patterns() []string {
	var out []string
	for _, ext := range script.Extensions {
		out = append(out, "*"+ext, "*"+strings.ToUpper(ext))
	}
	return out
}

// Detect walks dir and returns one File per parseable source, sorted by
// parse quality, highest first. Files that fail to parse are logged and
// skipped.
func (d *Detector) Detect(dir string) ([]*File, error) {
	var (
		ch  chan gitcha.SearchResult
		err error
	)
	if d.ShowAll {
		ch, err = gitcha.FindAllFilesExcept(dir, patterns(), nil)
	} else {
		ch, err = gitcha.FindFilesExcept(dir, patterns(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", dir, err)
	}

	var paths []string
	seen := make(map[string]bool)
	for res := range ch {
		if (res.Info != nil && res.Info.IsDir()) || seen[res.Path] {
			continue
		}
		seen[res.Path] = true
		paths = append(paths, res.Path)
	}
	sort.Strings(paths)

	files := make([]*File, 0, len(paths))
	for _, p := range paths {
		f, err := Analyze(p)
		if err != nil {
			d.logger.Warn("Skipping unparseable project file", "path", p, "err", err)
			continue
		}
		files = append(files, f)
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].QualityScore > files[j].QualityScore
	})
	d.logger.Debug("Detected project files", "dir", dir, "found", len(paths), "parsed", len(files))
	return files, nil
}

// Analyze parses a single source into a File.
func Analyze(path string) (*File, error) {
	s, format, err := script.ParseFile(path)
	if err != nil {
		return nil, err
	}

	f := &File{
		Path:         path,
		Format:       format,
		Characters:   s.Characters,
		SegmentCount: len(s.Segments),
		Script:       s,
	}

	words := s.WordCount()
	switch format {
	case script.FormatStructuredJSON:
		f.Type = "json"
		f.QualityScore = StructuredQuality
		for _, seg := range s.Segments {
			if seg.Duration > 0 {
				f.EstimatedDuration += seg.Duration
			} else {
				f.EstimatedDuration += defaultSegmentSeconds
			}
		}
		f.Metadata = map[string]any{"project_info": s.Project}
	default:
		f.Type = "text"
		f.QualityScore = TextQuality
		f.EstimatedDuration = float64(words) / WordsPerMinute * 60
		f.Metadata = map[string]any{"word_count": words}
	}
	return f, nil
}
