// Package attendance keeps the per-day CSV attendance ledger.
//
// Each calendar day has its own file, attendance_<YYYY-MM-DD>.csv, with the
// columns Name, Date, Time. A person is logged at most once per day and only
// while the clock is inside the configured window.
package attendance

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MrCodeEU/faceattend/pkg/config"
	"github.com/MrCodeEU/faceattend/pkg/logging"
)

// Date and time layouts used in the CSV.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// Header is the first row of every attendance file.
var Header = []string{"Name", "Date", "Time"}

// Source tells where an attendance mark came from.
type Source string

const (
	SourceCamera Source = "camera"
	SourceManual Source = "manual"
)

// Record is one attendance row.
type Record struct {
	Name string `json:"name"`
	Date string `json:"date"`
	Time string `json:"time"`
}

// ErrOutsideWindow is returned when a mark is attempted outside the allowed window.
var ErrOutsideWindow = errors.New("attendance outside allowed time window")

// ErrAlreadyLogged is returned when the person is already in today's file.
var ErrAlreadyLogged = errors.New("attendance already logged today")

// ErrEmptyName is returned when no name is given.
var ErrEmptyName = errors.New("name is required")

// Window is the daily span in which attendance may be logged, as offsets
// from midnight. The zero Window admits any time.
type Window struct {
	Start time.Duration
	End   time.Duration
}

// ParseWindow parses "HH:MM:SS" bounds. Two empty strings give the zero Window.
func ParseWindow(start, end string) (Window, error) {
	if start == "" && end == "" {
		return Window{}, nil
	}
	s, err := config.ParseClock(start)
	if err != nil {
		return Window{}, err
	}
	e, err := config.ParseClock(end)
	if err != nil {
		return Window{}, err
	}
	if s > e {
		return Window{}, fmt.Errorf("window start %s is after end %s", start, end)
	}
	return Window{Start: s, End: e}, nil
}

// IsZero reports whether the window is unrestricted.
func (w Window) IsZero() bool {
	return w.Start == 0 && w.End == 0
}

// Contains reports whether t falls inside the window, both ends inclusive.
func (w Window) Contains(t time.Time) bool {
	if w.IsZero() {
		return true
	}
	offset := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
	return offset >= w.Start && offset <= w.End
}

func (w Window) String() string {
	if w.IsZero() {
		return "any time"
	}
	midnight := time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC)
	return midnight.Add(w.Start).Format(TimeLayout) + "-" + midnight.Add(w.End).Format(TimeLayout)
}

// Mirror receives every record appended to the ledger.
type Mirror interface {
	Append(rec Record, source Source, session string) error
}

// Option configures a Book.
type Option func(*Book)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Book) { b.now = now }
}

// WithMirror adds a secondary sink for appended records.
func WithMirror(m Mirror) Option {
	return func(b *Book) { b.mirrors = append(b.mirrors, m) }
}

// WithSession tags mirrored records with a session identifier.
func WithSession(id string) Option {
	return func(b *Book) { b.session = id }
}

// Book is the attendance ledger rooted at a directory.
type Book struct {
	dir     string
	window  Window
	now     func() time.Time
	mirrors []Mirror
	session string
	mu      sync.Mutex
}

// NewBook creates a Book. The directory is created on first write.
func NewBook(dir string, window Window, opts ...Option) *Book {
	b := &Book{
		dir:    dir,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Window returns the configured window.
func (b *Book) Window() Window {
	return b.window
}

// Path returns the CSV file for the given day.
func (b *Book) Path(day time.Time) string {
	return filepath.Join(b.dir, fmt.Sprintf("attendance_%s.csv", day.Format(DateLayout)))
}

// Mark logs name for the current day. It fails with ErrOutsideWindow when the
// clock is outside the window and ErrAlreadyLogged when (name, today) is
// already present.
func (b *Book) Mark(name string, source Source) (Record, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Record{}, ErrEmptyName
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	rec := Record{
		Name: name,
		Date: now.Format(DateLayout),
		Time: now.Format(TimeLayout),
	}
	log := logging.WithFields(logging.Fields{"name": name, "source": source})

	if !b.window.Contains(now) {
		log.Warnf("Attendance denied outside allowed time %s: %s", b.window, rec.Time)
		return Record{}, fmt.Errorf("%w: %s not in %s", ErrOutsideWindow, rec.Time, b.window)
	}

	path := b.Path(now)
	existing, err := readRecords(path)
	if err != nil {
		return Record{}, err
	}
	for _, r := range existing {
		if r.Name == rec.Name && r.Date == rec.Date {
			log.Infof("Attendance already logged today")
			return Record{}, fmt.Errorf("%w: %s on %s", ErrAlreadyLogged, name, rec.Date)
		}
	}

	if err := appendRecord(path, rec); err != nil {
		return Record{}, err
	}
	log.Infof("Attendance logged at %s on %s", rec.Time, rec.Date)

	for _, m := range b.mirrors {
		if err := m.Append(rec, source, b.session); err != nil {
			log.WithError(err).Warn("Failed to mirror attendance record")
		}
	}

	return rec, nil
}

// Records returns the rows logged on day. A day without a file has no rows.
func (b *Book) Records(day time.Time) ([]Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return readRecords(b.Path(day))
}

// Today returns the rows logged on the current day.
func (b *Book) Today() ([]Record, error) {
	return b.Records(b.now())
}

func readRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open attendance file: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var records []Record
	first := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if first {
			first = false
			if len(row) > 0 && row[0] == Header[0] {
				continue
			}
		}
		if len(row) < len(Header) {
			logging.WithField("file", path).Warnf("Skipping short attendance row: %v", row)
			continue
		}
		records = append(records, Record{Name: row[0], Date: row[1], Time: row[2]})
	}
	return records, nil
}

func appendRecord(path string, rec Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create attendance directory: %w", err)
	}

	writeHeader := false
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		writeHeader = true
	case err != nil:
		return fmt.Errorf("failed to stat attendance file: %w", err)
	case info.Size() == 0:
		writeHeader = true
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open attendance file: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(Header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	if err := w.Write([]string{rec.Name, rec.Date, rec.Time}); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush attendance file: %w", err)
	}
	return f.Sync()
}
