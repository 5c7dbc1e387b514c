package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/aryannaik/nubfinder/internal/feed"
)

// ErrStorage reports a snapshot that could not be read or written.
var ErrStorage = errors.New("snapshot storage")

const formatVersion byte = 1

var magic = []byte("NUBS")

// payload is the gob-encoded body of a snapshot file.
type payload struct {
	Items []feed.Item
}

// Fetcher is the slow path used when no snapshot is available.
type Fetcher interface {
	Fetch(ctx context.Context) ([]feed.Item, error)
}

// Store keeps the last known item list in a single local file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Save replaces the snapshot. The new contents are written to a temporary
// file in the same directory and renamed into place, so a crash mid-write
// leaves the previous snapshot intact.
func (s *Store) Save(items []feed.Item) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create data dir: %w", ErrStorage, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrStorage, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	w := bufio.NewWriter(tmp)
	if err := encode(w, items); err != nil {
		return fmt.Errorf("%w: encode: %w", ErrStorage, err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("%w: write: %w", ErrStorage, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %w", ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrStorage, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("%w: rename into place: %w", ErrStorage, err)
	}
	committed = true
	return nil
}

// Load reads the snapshot. A missing file is an error.
func (s *Store) Load() ([]feed.Item, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %w", ErrStorage, err)
	}
	defer f.Close()

	items, err := decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrStorage, s.path, err)
	}
	return items, nil
}

// LoadOrFetch returns the snapshot when it exists and is readable. Otherwise
// it fetches once, saves the result and returns it.
func (s *Store) LoadOrFetch(ctx context.Context, fetcher Fetcher) ([]feed.Item, error) {
	items, loadErr := s.Load()
	if loadErr == nil {
		return items, nil
	}

	items, err := fetcher.Fetch(ctx)
	if err != nil {
		if s.Exists() {
			return nil, errors.Join(loadErr, err)
		}
		return nil, err
	}
	if err := s.Save(items); err != nil {
		return nil, err
	}
	return items, nil
}

// Exists reports whether a snapshot file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// UpdatedAt returns the snapshot modification time, or zero time if unknown.
func (s *Store) UpdatedAt() time.Time {
	info, err := os.Stat(s.path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func encode(w io.Writer, items []feed.Item) error {
	if _, err := w.Write(magic); err != nil {
		return err
	}
	if _, err := w.Write([]byte{formatVersion}); err != nil {
		return err
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(zw).Encode(payload{Items: items}); err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}

func decode(r io.Reader) ([]feed.Item, error) {
	header := make([]byte, len(magic)+1)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if !bytes.Equal(header[:len(magic)], magic) {
		return nil, errors.New("not a snapshot file")
	}
	if v := header[len(magic)]; v != formatVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", v)
	}

	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var p payload
	if err := gob.NewDecoder(zr).Decode(&p); err != nil {
		return nil, err
	}
	if p.Items == nil {
		p.Items = []feed.Item{}
	}
	return p.Items, nil
}
