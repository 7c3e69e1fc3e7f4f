// Package dataset owns the on-disk face sample layout: one grayscale JPEG per
// capture, with the person's name and numeric ID encoded in the filename.
package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/MrCodeEU/faceattend/pkg/logging"
)

// Sample is one saved face image.
type Sample struct {
	Path  string
	Name  string
	ID    int
	Index int
}

// ErrBadFilename is returned when a filename matches none of the known conventions.
var ErrBadFilename = errors.New("filename does not encode a face sample")

// ErrInvalidID is returned when the person ID is not a non-negative integer.
var ErrInvalidID = errors.New("invalid ID: must be a non-negative number")

// ErrInvalidName is returned for names that cannot be encoded in a filename.
var ErrInvalidName = errors.New("invalid name")

// FormatFilename returns the canonical Name_ID_index.jpg filename.
func FormatFilename(name string, id, index int) string {
	return fmt.Sprintf("%s_%d_%d.jpg", name, id, index)
}

// ParseID parses a user-entered person ID.
func ParseID(value string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, value)
	}
	return id, nil
}

// ValidateName rejects names that would break the filename encoding.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if strings.ContainsAny(name, "_./\\") {
		return fmt.Errorf("%w: %q must not contain '_', '.', or path separators", ErrInvalidName, name)
	}
	return nil
}

// ParseFilename extracts the sample identity from a filename. It accepts
// Name_ID.jpg, Name_ID_index.jpg and Name.ID.count.jpg.
func ParseFilename(filename string) (Sample, error) {
	base := filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(base))
	if ext != ".jpg" && ext != ".jpeg" {
		return Sample{}, fmt.Errorf("%w: %s", ErrBadFilename, base)
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	var parts []string
	switch {
	case strings.Contains(stem, "_"):
		parts = strings.Split(stem, "_")
	case strings.Count(stem, ".") == 2:
		parts = strings.Split(stem, ".")
		if len(parts) != 3 {
			return Sample{}, fmt.Errorf("%w: %s", ErrBadFilename, base)
		}
	default:
		return Sample{}, fmt.Errorf("%w: %s", ErrBadFilename, base)
	}

	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" {
		return Sample{}, fmt.Errorf("%w: %s", ErrBadFilename, base)
	}

	id, err := ParseID(parts[1])
	if err != nil {
		return Sample{}, fmt.Errorf("%s: %w", base, err)
	}

	sample := Sample{Path: filename, Name: parts[0], ID: id}
	if len(parts) == 3 {
		index, err := strconv.Atoi(parts[2])
		if err != nil || index < 0 {
			return Sample{}, fmt.Errorf("%w: bad index in %s", ErrBadFilename, base)
		}
		sample.Index = index
	}

	return sample, nil
}

// Scan walks dir recursively and returns every parseable sample sorted by
// path. Unparseable .jpg files are logged and skipped; a missing directory
// yields no samples.
func Scan(dir string) ([]Sample, error) {
	var samples []Sample

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".jpg" && ext != ".jpeg" {
			return nil
		}

		sample, err := ParseFilename(path)
		if err != nil {
			logging.WithField("file", path).Warnf("Skipping sample: %v", err)
			return nil
		}
		samples = append(samples, sample)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan dataset %s: %w", dir, err)
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i].Path < samples[j].Path })
	return samples, nil
}

// Labels maps person IDs to names. When one ID appears under several names the
// first sample in path order wins and the conflict is logged.
func Labels(samples []Sample) map[int]string {
	labels := make(map[int]string)
	for _, s := range samples {
		existing, ok := labels[s.ID]
		if !ok {
			labels[s.ID] = s.Name
			continue
		}
		if existing != s.Name {
			logging.WithFields(logging.Fields{
				"id":       s.ID,
				"name":     existing,
				"conflict": s.Name,
			}).Warn("Person ID is used by more than one name")
		}
	}
	return labels
}

// LoadLabels scans dir and returns the ID to name mapping.
func LoadLabels(dir string) (map[int]string, error) {
	samples, err := Scan(dir)
	if err != nil {
		return nil, err
	}
	return Labels(samples), nil
}

// NextIndex returns the first capture index not yet used by name/id in dir.
func NextIndex(dir, name string, id int) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read dataset %s: %w", dir, err)
	}

	next := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		sample, err := ParseFilename(entry.Name())
		if err != nil || sample.Name != name || sample.ID != id {
			continue
		}
		if sample.Index >= next {
			next = sample.Index + 1
		}
	}
	return next, nil
}
