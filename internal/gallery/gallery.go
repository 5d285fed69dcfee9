// Package gallery manages the on-disk set of normalized face samples.
//
// Every sample is a single grayscale image named <identity>_<index>.<ext>.
// Indices are allocated per identity as the highest existing index plus one,
// so an index is never handed out twice even after files are deleted.
package gallery

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // decoders for Load
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/andresmejia3/vigil/internal/imaging"
	"github.com/andresmejia3/vigil/internal/types"
)

// Ext is the extension used for newly saved samples.
const Ext = ".jpg"

// sampleName matches <identity>_<digits>.<ext>. The identity group is greedy,
// so the split happens at the last underscore.
var sampleName = regexp.MustCompile(`^(.+)_([0-9]+)\.([A-Za-z]+)$`)

var sampleExts = map[string]bool{"jpg": true, "jpeg": true, "png": true}

// Entry is one sample file in the gallery.
type Entry struct {
	Identity string
	Index    int
	Path     string
}

// Store is the gallery directory.
type Store struct {
	dir string
}

// Open creates the gallery directory if needed and returns a Store for it.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create gallery %s: %v", types.ErrIO, dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the gallery directory.
func (s *Store) Dir() string {
	return s.dir
}

// ParseName splits a sample file name into identity and index.
// It reports false for anything that does not follow the naming convention.
func ParseName(name string) (identity string, index int, ok bool) {
	m := sampleName.FindStringSubmatch(name)
	if m == nil || !sampleExts[strings.ToLower(m[3])] {
		return "", 0, false
	}
	identity = strings.Trim(m[1], " ")
	if identity == "" {
		return "", 0, false
	}
	index, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return identity, index, true
}

// List returns every well-formed sample in file-listing order.
// Malformed names and subdirectories are skipped.
func (s *Store) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read gallery %s: %v", types.ErrIO, s.dir, err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		identity, index, ok := ParseName(de.Name())
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			Identity: identity,
			Index:    index,
			Path:     filepath.Join(s.dir, de.Name()),
		})
	}
	return entries, nil
}

// NextIndex returns one more than the highest index stored for identity, or 1.
func (s *Store) NextIndex(identity string) (int, error) {
	entries, err := s.List()
	if err != nil {
		return 0, err
	}
	return nextIndex(entries, identity), nil
}

func nextIndex(entries []Entry, identity string) int {
	highest := 0
	for _, e := range entries {
		if strings.EqualFold(e.Identity, identity) && e.Index > highest {
			highest = e.Index
		}
	}
	return highest + 1
}

// Save writes sample as the next entry for identity and returns it.
// Existing files are never overwritten.
func (s *Store) Save(identity string, sample *image.Gray) (Entry, error) {
	if identity == "" {
		return Entry{}, fmt.Errorf("%w: empty identity", types.ErrIO)
	}

	data, err := imaging.EncodeJPEG(sample)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", types.ErrIO, err)
	}

	entries, err := s.List()
	if err != nil {
		return Entry{}, err
	}
	index := nextIndex(entries, identity)

	// A concurrent writer may claim the same index; step forward until the exclusive create wins.
	for attempt := 0; attempt < 16; attempt++ {
		path := filepath.Join(s.dir, fmt.Sprintf("%s_%d%s", identity, index, Ext))
		err = writeExclusive(path, data)
		if err == nil {
			return Entry{Identity: identity, Index: index, Path: path}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return Entry{}, fmt.Errorf("%w: failed to write sample: %v", types.ErrIO, err)
		}
		index++
	}
	return Entry{}, fmt.Errorf("%w: could not allocate an index for %s", types.ErrIO, identity)
}

func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// Load decodes a sample and normalizes it to the training size.
func (s *Store) Load(e Entry) (*image.Gray, error) {
	f, err := os.Open(e.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(e.Path), err)
	}
	return imaging.Normalize(img, types.SampleSize), nil
}

// Identities returns the distinct identities in the gallery with their sample counts,
// in first-seen order. Names differing only in case are counted together.
func (s *Store) Identities() ([]string, map[string]int, error) {
	entries, err := s.List()
	if err != nil {
		return nil, nil, err
	}
	var order []string
	counts := make(map[string]int)
	canonical := make(map[string]string)
	for _, e := range entries {
		key := strings.ToLower(e.Identity)
		name, seen := canonical[key]
		if !seen {
			name = e.Identity
			canonical[key] = name
			order = append(order, name)
		}
		counts[name]++
	}
	return order, counts, nil
}

// Rename moves every sample of from to identity to, allocating fresh indices
// after any samples to already owns. It returns the number of files moved.
func (s *Store) Rename(from, to string) (int, error) {
	entries, err := s.List()
	if err != nil {
		return 0, err
	}
	next := nextIndex(entries, to)
	moved := 0
	for _, e := range entries {
		if !strings.EqualFold(e.Identity, from) {
			continue
		}
		dst := filepath.Join(s.dir, fmt.Sprintf("%s_%d%s", to, next, filepath.Ext(e.Path)))
		if _, err := os.Stat(dst); err == nil {
			return moved, fmt.Errorf("%w: refusing to overwrite %s", types.ErrIO, dst)
		}
		if err := os.Rename(e.Path, dst); err != nil {
			return moved, fmt.Errorf("%w: failed to move %s: %v", types.ErrIO, e.Path, err)
		}
		next++
		moved++
	}
	return moved, nil
}

// Clear removes every sample file, leaving unrelated files and the directory in place.
func (s *Store) Clear() (int, error) {
	entries, err := s.List()
	if err != nil {
		return 0, err
	}
	for i, e := range entries {
		if err := os.Remove(e.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return i, fmt.Errorf("%w: failed to remove %s: %v", types.ErrIO, e.Path, err)
		}
	}
	return len(entries), nil
}
