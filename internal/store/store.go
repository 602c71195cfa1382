package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"localcal/internal/models"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultFile is the store file used when no path is configured.
const DefaultFile = "calendar_db.json"

const (
	defaultCategory    = "general"
	defaultDurationMin = 60
)

var (
	// ErrNotFound is returned when no event matches an id or title.
	ErrNotFound = errors.New("event not found")
	// ErrInvalidEvent wraps every validation failure.
	ErrInvalidEvent = errors.New("invalid event")
)

// Store keeps events in a single JSON file. Every operation reads the file,
// applies its change and writes it back; nothing is cached in between.
type Store struct {
	path   string
	logger *slog.Logger
	loc    *time.Location
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLocation sets the zone that defines "today" and offset-less times.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Store backed by the file at path.
func New(path string, logger *slog.Logger, opts ...Option) *Store {
	if path == "" {
		path = DefaultFile
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:   path,
		logger: logger,
		loc:    time.Local,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Location returns the zone used for date filtering.
func (s *Store) Location() *time.Location {
	return s.loc
}

// Load reads all events. A missing or empty file is an empty store.
func (s *Store) Load() ([]models.Event, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("No calendar file found, starting empty.", "file", s.path)
			return []models.Event{}, nil
		}
		return nil, fmt.Errorf("failed to read calendar file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []models.Event{}, nil
	}

	var events []models.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to parse calendar file %s: %w", s.path, err)
	}
	if events == nil {
		events = []models.Event{}
	}
	s.logger.Debug("Loaded calendar.", "file", s.path, "count", len(events))
	return events, nil
}

// Save replaces the file contents with events. The write goes to a temp file
// in the same directory which is then renamed over the target.
func (s *Store) Save(events []models.Event) error {
	if events == nil {
		events = []models.Event{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(events); err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create calendar directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to set calendar file mode: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace calendar file: %w", err)
	}

	s.logger.Debug("Saved calendar.", "file", s.path, "count", len(events))
	return nil
}

// Add validates ev, fills in defaults, id and creation time, and appends it.
func (s *Store) Add(ev models.Event) (models.Event, error) {
	ev, err := s.normalize(ev, nil)
	if err != nil {
		return models.Event{}, err
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Created == "" {
		ev.Created = s.now().In(s.loc).Format(models.LocalLayout)
	}

	events, err := s.Load()
	if err != nil {
		return models.Event{}, err
	}
	events = append(events, ev)
	if err := s.Save(events); err != nil {
		return models.Event{}, err
	}

	s.logger.Info("Added event.", "title", ev.Title, "time", ev.Time, "id", ev.ID)
	return ev, nil
}

// List returns every event in insertion order.
func (s *Store) List() ([]models.Event, error) {
	return s.Load()
}

// Today returns the events dated on the current day in the store location.
func (s *Store) Today() ([]models.Event, error) {
	return s.OnDate(s.now())
}

// OnDate returns the events dated on the calendar date of day in the store
// location. An event's date is the one written in its time, offset or not.
func (s *Store) OnDate(day time.Time) ([]models.Event, error) {
	y, m, d := day.In(s.loc).Date()
	return s.filter(func(start time.Time) bool {
		sy, sm, sd := start.Date()
		return sy == y && sm == m && sd == d
	})
}

// Between returns the events with start <= time <= end.
func (s *Store) Between(start, end time.Time) ([]models.Event, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("range end %s is before start %s",
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return s.filter(func(t time.Time) bool {
		return !t.Before(start) && !t.After(end)
	})
}

func (s *Store) filter(keep func(time.Time) bool) ([]models.Event, error) {
	events, err := s.Load()
	if err != nil {
		return nil, err
	}
	out := []models.Event{}
	for _, ev := range events {
		start, err := ev.Start(s.loc)
		if err != nil {
			s.logger.Warn("Skipping event with unparseable time.", "title", ev.Title, "time", ev.Time)
			continue
		}
		if keep(start) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Delete removes every event whose id or title equals ref and returns how many
// were removed. The file is left untouched when nothing matches.
func (s *Store) Delete(ref string) (int, error) {
	events, err := s.Load()
	if err != nil {
		return 0, err
	}

	kept := make([]models.Event, 0, len(events))
	for _, ev := range events {
		if !ev.Matches(ref) {
			kept = append(kept, ev)
		}
	}
	removed := len(events) - len(kept)
	if removed == 0 {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, ref)
	}

	if err := s.Save(kept); err != nil {
		return 0, err
	}
	s.logger.Info("Deleted events.", "ref", ref, "count", removed)
	return removed, nil
}

// Patch lists the fields Update changes. Nil fields are left as they are.
type Patch struct {
	Title       *string
	Time        *string
	Category    *string
	Priority    *string
	DurationMin *int
	Status      *string
}

// Update applies p to the first event matching ref.
func (s *Store) Update(ref string, p Patch) (models.Event, error) {
	events, err := s.Load()
	if err != nil {
		return models.Event{}, err
	}

	idx := -1
	for i, ev := range events {
		if ev.Matches(ref) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.Event{}, fmt.Errorf("%w: %q", ErrNotFound, ref)
	}

	ev := events[idx]
	if p.Title != nil {
		ev.Title = *p.Title
	}
	if p.Time != nil {
		ev.Time = *p.Time
	}
	if p.Category != nil {
		ev.Category = *p.Category
	}
	if p.Priority != nil {
		ev.Priority = models.Priority(*p.Priority)
	}
	if p.DurationMin != nil {
		ev.DurationMin = *p.DurationMin
	}
	if p.Status != nil {
		ev.Status = models.Status(*p.Status)
	}

	ev, err = s.normalize(ev, &p)
	if err != nil {
		return models.Event{}, err
	}
	events[idx] = ev
	if err := s.Save(events); err != nil {
		return models.Event{}, err
	}

	s.logger.Info("Updated event.", "title", ev.Title, "id", ev.ID)
	return ev, nil
}

// MarkDone sets the status of the first event matching ref to done.
func (s *Store) MarkDone(ref string) (models.Event, error) {
	status := string(models.StatusDone)
	return s.Update(ref, Patch{Status: &status})
}

// Cancel sets the status of the first event matching ref to canceled.
func (s *Store) Cancel(ref string) (models.Event, error) {
	status := string(models.StatusCanceled)
	return s.Update(ref, Patch{Status: &status})
}

// normalize validates ev and fills empty fields with their defaults. With a
// non-nil patch, a time or priority read from an older file is only checked
// when the patch replaces it.
func (s *Store) normalize(ev models.Event, p *Patch) (models.Event, error) {
	ev.Title = strings.TrimSpace(ev.Title)
	if ev.Title == "" {
		return ev, fmt.Errorf("%w: title must not be empty", ErrInvalidEvent)
	}

	if p == nil || p.Time != nil {
		ev.Time = strings.TrimSpace(ev.Time)
		if _, err := models.ParseTime(ev.Time, s.loc); err != nil {
			return ev, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
	}

	if ev.Category == "" {
		ev.Category = defaultCategory
	}

	if p == nil || p.Priority != nil || ev.Priority.Rank() > 0 || ev.Priority == "" {
		priority, err := models.ParsePriority(string(ev.Priority))
		if err != nil {
			return ev, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		ev.Priority = priority
	}

	switch {
	case ev.DurationMin < 0:
		return ev, fmt.Errorf("%w: duration must not be negative", ErrInvalidEvent)
	case ev.DurationMin == 0:
		ev.DurationMin = defaultDurationMin
	}

	status, err := models.ParseStatus(string(ev.Status))
	if err != nil {
		return ev, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	ev.Status = status

	return ev, nil
}
