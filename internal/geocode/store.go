package geocode

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"github.com/couchcryptid/brsi-pipeline/internal/domain"
)

// CacheColumns is the header of the cache file.
var CacheColumns = []string{"full_address", "lat", "lng", "status", "location_type"}

// ErrLocked is returned when another run holds the cache lock.
var ErrLocked = errors.New("geocode cache is locked by another run")

// Store is the geocoding cache keyed by normalized address.
type Store interface {
	Get(address string) (domain.CacheEntry, bool)
	// Put records a new entry. Existing addresses are never overwritten.
	Put(entry domain.CacheEntry) error
	// Pending is the number of entries not yet flushed.
	Pending() int
	Len() int
	Flush() error
	Reload() error
	Close() error
}

// FileStore is a Store persisted as a CSV file. The whole file is read on
// open and rewritten on every flush.
type FileStore struct {
	path    string
	lock    *flock.Flock
	entries map[string]domain.CacheEntry
	order   []string
	pending []domain.CacheEntry
}

// OpenFileStore locks path for this process and loads its entries. A missing
// file is an empty cache.
func OpenFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	s := &FileStore{path: path, lock: lock}
	if err := s.Reload(); err != nil {
		lock.Unlock() //nolint:errcheck // load error takes precedence
		return nil, err
	}
	return s, nil
}

// Get returns the entry for address, flushed or pending.
func (s *FileStore) Get(address string) (domain.CacheEntry, bool) {
	e, ok := s.entries[address]
	return e, ok
}

// Put adds an entry. It returns domain.ErrDuplicateEntry if the address is
// already cached.
func (s *FileStore) Put(e domain.CacheEntry) error {
	if _, ok := s.entries[e.Address]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateEntry, e.Address)
	}
	s.entries[e.Address] = e
	s.order = append(s.order, e.Address)
	s.pending = append(s.pending, e)
	return nil
}

func (s *FileStore) Pending() int { return len(s.pending) }

func (s *FileStore) Len() int { return len(s.order) }

// Entries returns every entry in insertion order.
func (s *FileStore) Entries() []domain.CacheEntry {
	out := make([]domain.CacheEntry, len(s.order))
	for i, a := range s.order {
		out[i] = s.entries[a]
	}
	return out
}

// Flush rewrites the cache file with every entry. The file is replaced
// atomically via a temp file in the same directory. Nothing is written when
// there are no pending entries.
func (s *FileStore) Flush() error {
	if len(s.pending) == 0 {
		return nil
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("flush cache: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	if err := WriteEntries(tmp, s.Entries()); err != nil {
		tmp.Close() //nolint:errcheck // write error takes precedence
		return fmt.Errorf("flush cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("flush cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("flush cache: %w", err)
	}
	s.pending = nil
	return nil
}

// Reload replaces the in-memory view with the file contents. Pending entries
// not present in the file are kept.
func (s *FileStore) Reload() error {
	entries, err := readEntriesFile(s.path)
	if err != nil {
		return err
	}
	s.entries = make(map[string]domain.CacheEntry, len(entries)+len(s.pending))
	s.order = s.order[:0]
	for _, e := range entries {
		if _, dup := s.entries[e.Address]; dup {
			continue
		}
		s.entries[e.Address] = e
		s.order = append(s.order, e.Address)
	}
	pending := s.pending[:0]
	for _, e := range s.pending {
		if _, ok := s.entries[e.Address]; ok {
			continue
		}
		s.entries[e.Address] = e
		s.order = append(s.order, e.Address)
		pending = append(pending, e)
	}
	s.pending = pending
	return nil
}

// Close releases the lock. Pending entries are not flushed.
func (s *FileStore) Close() error {
	return s.lock.Unlock()
}

func readEntriesFile(path string) ([]domain.CacheEntry, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	entries, err := ReadEntries(f)
	if err != nil {
		return nil, fmt.Errorf("read cache %s: %w", path, err)
	}
	return entries, nil
}

// ReadEntries parses a cache file. Empty lat/lng cells are null coordinates.
func ReadEntries(r io.Reader) ([]domain.CacheEntry, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !slices.Equal(header, CacheColumns) {
		return nil, fmt.Errorf("unexpected cache header %q", strings.Join(header, ","))
	}

	var entries []domain.CacheEntry
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		e := domain.CacheEntry{Address: rec[0], Status: rec[3], LocationType: rec[4]}
		if e.Lat, err = parseCoord(rec[1]); err != nil {
			return nil, fmt.Errorf("line %d: lat: %w", line, err)
		}
		if e.Lng, err = parseCoord(rec[2]); err != nil {
			return nil, fmt.Errorf("line %d: lng: %w", line, err)
		}
		entries = append(entries, e)
	}
}

// WriteEntries writes a cache header followed by entries.
func WriteEntries(w io.Writer, entries []domain.CacheEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CacheColumns); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write([]string{e.Address, formatCoord(e.Lat), formatCoord(e.Lng), e.Status, e.LocationType}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func parseCoord(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func formatCoord(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
