// Package archive keeps non-selected candidate audio around for debugging.
// Files are stored zstd-compressed under a directory with a gob index and
// evicted oldest-first once the archive exceeds its capacity.
package archive

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Errors returned by the archive.
var (
	// ErrItemTooLarge is returned when an item exceeds the archive capacity.
	ErrItemTooLarge = errors.New("item too large for archive")

	// ErrNotFound is returned when a key has no entry.
	ErrNotFound = errors.New("archive entry not found")
)

const indexName = "archive.index"

// Stats holds archive counters.
type Stats struct {
	Capacity  int64
	Size      int64
	ItemCount int64
	Stored    int64
	Evictions int64
}

// Entry describes one archived file.
type Entry struct {
	Key          string
	FilePath     string
	SourceName   string
	Size         int64 // on disk
	OriginalSize int64
	Compressed   bool
	Stored       time.Time
}

// Archive is a capacity-bounded, compressed store of candidate files.
type Archive struct {
	basePath string
	capacity int64
	size     int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	index map[string]*Entry

	mu    sync.Mutex
	stats Stats
}

// New opens or creates an archive at basePath. A compressionLevel of 0
// stores files as-is.
func New(basePath string, capacity int64, compressionLevel int) (*Archive, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	a := &Archive{
		basePath: basePath,
		capacity: capacity,
		index:    make(map[string]*Entry),
		stats:    Stats{Capacity: capacity},
	}

	if compressionLevel > 0 {
		var err error
		a.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}
	// Always able to read back compressed entries from a previous run.
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	a.decoder = dec

	if err := a.loadIndex(); err != nil {
		a.index = make(map[string]*Entry)
	}
	for _, e := range a.index {
		a.size += e.Size
	}

	return a, nil
}

// Store moves the file at path into the archive under key. The source file
// is removed once it has been written.
func (a *Archive) Store(key, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := a.Put(key, filepath.Base(path), data); err != nil {
		return err
	}
	return os.Remove(path)
}

// Put stores raw bytes under key.
func (a *Archive) Put(key, sourceName string, value []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	original := int64(len(value))
	out := value
	compressed := false
	if a.encoder != nil {
		if enc := a.encoder.EncodeAll(value, nil); len(enc) < len(value) {
			out = enc
			compressed = true
		}
	}
	diskSize := int64(len(out))

	if existing, ok := a.index[key]; ok {
		a.size -= existing.Size
		os.Remove(existing.FilePath)
		delete(a.index, key)
	}

	if a.capacity > 0 {
		if diskSize > a.capacity {
			return ErrItemTooLarge
		}
		for a.size+diskSize > a.capacity && len(a.index) > 0 {
			a.evictOldest()
		}
	}

	filePath := a.filePath(key)
	if err := writeFile(filePath, out); err != nil {
		return fmt.Errorf("failed to write archive file: %w", err)
	}

	a.index[key] = &Entry{
		Key:          key,
		FilePath:     filePath,
		SourceName:   sourceName,
		Size:         diskSize,
		OriginalSize: original,
		Compressed:   compressed,
		Stored:       time.Now(),
	}
	a.size += diskSize
	a.stats.Stored++

	return a.saveIndex()
}

// Get returns the decompressed contents stored under key.
func (a *Archive) Get(key string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.index[key]
	if !ok {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(e.FilePath)
	if err != nil {
		delete(a.index, key)
		a.size -= e.Size
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if e.Compressed {
		return a.decoder.DecodeAll(data, nil)
	}
	return data, nil
}

// Restore writes the entry under key to dst.
func (a *Archive) Restore(key, dst string) error {
	data, err := a.Get(key)
	if err != nil {
		return err
	}
	return writeFile(dst, data)
}

// Entries returns the archived entries, oldest first.
func (a *Archive) Entries() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Entry, 0, len(a.index))
	for _, e := range a.index {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Stored.Before(out[j].Stored)
	})
	return out
}

// Stats returns archive statistics.
func (a *Archive) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.stats
	s.Size = a.size
	s.ItemCount = int64(len(a.index))
	return s
}

// Close saves the index and releases the codecs.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.saveIndex()
	if a.encoder != nil {
		a.encoder.Close()
	}
	a.decoder.Close()
	return err
}

func (a *Archive) filePath(key string) string {
	hash := sha256.Sum256([]byte(key))
	return filepath.Join(a.basePath, hex.EncodeToString(hash[:16])+".zst")
}

func (a *Archive) evictOldest() {
	var oldest *Entry
	for _, e := range a.index {
		if oldest == nil || e.Stored.Before(oldest.Stored) {
			oldest = e
		}
	}
	if oldest == nil {
		return
	}
	os.Remove(oldest.FilePath)
	a.size -= oldest.Size
	delete(a.index, oldest.Key)
	a.stats.Evictions++
}

func (a *Archive) loadIndex() error {
	file, err := os.Open(filepath.Join(a.basePath, indexName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	return gob.NewDecoder(file).Decode(&a.index)
}

func (a *Archive) saveIndex() error {
	indexPath := filepath.Join(a.basePath, indexName)
	tempPath := indexPath + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}
	err = gob.NewEncoder(file).Encode(a.index)
	closeErr := file.Close()
	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}
	return os.Rename(tempPath, indexPath)
}

// writeFile writes to a temp file first and renames it into place.
func writeFile(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		os.Remove(tempPath)
		return err
	}
	return os.Rename(tempPath, path)
}
