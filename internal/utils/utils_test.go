package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
)

func TestExpandPath(t *testing.T) {
	home, err := homedir.Dir()
	if err != nil {
		t.Skip("no home directory")
	}
	t.Setenv("VOICESTUDIO_TEST_DIR", "/srv/voices")

	tests := []struct {
		in   string
		want string
	}{
		{"~/models", filepath.Join(home, "models")},
		{"$VOICESTUDIO_TEST_DIR/en", "/srv/voices/en"},
		{"/abs/path", "/abs/path"},
		{"relative", "relative"},
	}
	for _, tt := range tests {
		if got := ExpandPath(tt.in); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRemoveFrontmatter(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"frontmatter", "---\ntitle: Night\n---\n# Chapter\n", "# Chapter\n"},
		{"none", "# Chapter\n\ntext\n", "# Chapter\n\ntext\n"},
		{"not leading", "intro\n---\nx\n---\n", "intro\n---\nx\n---\n"},
		{"unterminated", "---\ntitle: Night\n", "---\ntitle: Night\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(RemoveFrontmatter([]byte(tt.in))); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.wav")
	if err := os.WriteFile(src, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(dir, "nested", "out", "b.wav")
	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("MoveFile() error = %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("source still exists: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "RIFF" {
		t.Errorf("destination = %q, %v", data, err)
	}

	if err := MoveFile(filepath.Join(dir, "missing.wav"), dst); err == nil {
		t.Error("MoveFile() on a missing source should fail")
	}
}
