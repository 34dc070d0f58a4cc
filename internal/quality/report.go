package quality

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ReportPath is where SaveReport writes the report for taskID.
func ReportPath(dir, taskID string) string {
	return filepath.Join(dir, fmt.Sprintf("quality_report_%s.json", sanitize(taskID)))
}

// SaveReport writes r as indented JSON into dir.
func SaveReport(r *Report, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	path := ReportPath(dir, r.TaskID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// LoadReport reads a report written by SaveReport.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &r, nil
}
