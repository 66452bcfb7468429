// Package session holds the in-memory state of one labelling run: the
// ordered records from a scan, the cursor, and the committed label entries.
// It is UI-agnostic; the terminal loop and the review API both drive it.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/dataset"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/labels"
)

var (
	ErrAtFirstImage = errors.New("already at the first image")
	ErrAtLastImage  = errors.New("already at the last image")
	ErrOutOfRange   = errors.New("image index out of range")
)

// Session is single-threaded by design: one annotator, one interactive
// run, all mutation on user action.
type Session struct {
	ID        string
	Protocol  labels.Protocol
	Root      string
	Annotator string
	StartedAt time.Time

	Records []dataset.Record
	Entries map[string]labels.Entry

	// AutosaveEvery fires Autosave after that many commits; zero disables
	// checkpointing (the clinical tool saves on explicit action only).
	AutosaveEvery int
	Autosave      func(*Session) error

	cursor     int
	commits    int
	imageStart time.Time
	now        func() time.Time
}

func New(protocol labels.Protocol, root, annotator string, records []dataset.Record) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		Protocol:  protocol,
		Root:      root,
		Annotator: annotator,
		Records:   records,
		Entries:   make(map[string]labels.Entry, len(records)),
		now:       time.Now,
	}
	s.StartedAt = s.now()
	return s
}

func (s *Session) Len() int { return len(s.Records) }

func (s *Session) Labeled() int { return len(s.Entries) }

func (s *Session) Cursor() int { return s.cursor }

func (s *Session) Done() bool { return s.cursor >= len(s.Records) }

func (s *Session) Remaining() int { return len(s.Records) - len(s.Entries) }

// Current returns the record under the cursor.
func (s *Session) Current() (dataset.Record, bool) {
	if s.Done() {
		return dataset.Record{}, false
	}
	return s.Records[s.cursor], true
}

// EntryFor returns any existing label for the record.
func (s *Session) EntryFor(r dataset.Record) (labels.Entry, bool) {
	e, ok := s.Entries[r.Path]
	return e, ok
}

// StartTimer marks the moment the current image was presented. Commit
// charges the elapsed time to the entry.
func (s *Session) StartTimer() {
	s.imageStart = s.now()
}

// CommitClinical validates and records a clinical label for the current
// image, then advances the cursor.
func (s *Session) CommitClinical(label, comment string) error {
	if err := labels.ValidateClinical(label, comment); err != nil {
		return err
	}
	return s.commit(label, "", comment)
}

// CommitHistopath validates and records a histopath diagnosis plus grading
// for the current image, then advances the cursor.
func (s *Session) CommitHistopath(diagnosis string, g labels.Grading, comment string) error {
	if err := labels.ValidateHistopath(diagnosis, g, comment); err != nil {
		return err
	}
	return s.commit(diagnosis, labels.EncodeSubtype(diagnosis, g), comment)
}

func (s *Session) commit(category, subtype, comment string) error {
	rec, ok := s.Current()
	if !ok {
		return ErrOutOfRange
	}

	entry := labels.Entry{
		Case:          rec.Case,
		Visit:         rec.Visit,
		BodySite:      rec.BodySite,
		Magnification: rec.Magnification,
		MagValue:      rec.MagValue,
		File:          rec.File,
		Path:          rec.Path,
		Category:      category,
		Subtype:       subtype,
		Comment:       comment,
		Annotator:     s.Annotator,
		LabeledAt:     s.now(),
	}

	// Time spent accumulates across revisits of the same image.
	if !s.imageStart.IsZero() {
		entry.TimeSpent = s.now().Sub(s.imageStart).Seconds()
		s.imageStart = time.Time{}
	}
	if prev, relabelled := s.Entries[rec.Path]; relabelled {
		entry.TimeSpent += prev.TimeSpent
	}
	s.Entries[rec.Path] = entry

	s.cursor++
	s.commits++
	if s.AutosaveEvery > 0 && s.Autosave != nil && s.commits%s.AutosaveEvery == 0 {
		if err := s.Autosave(s); err != nil {
			return fmt.Errorf("label saved, but autosave failed: %w", err)
		}
	}
	return nil
}

// Next skips the current image without labelling it.
func (s *Session) Next() error {
	if s.cursor >= len(s.Records)-1 {
		return ErrAtLastImage
	}
	s.cursor++
	return nil
}

// Back moves the cursor to the previous image for review or relabelling.
func (s *Session) Back() error {
	if s.cursor == 0 {
		return ErrAtFirstImage
	}
	s.cursor--
	return nil
}

// JumpTo moves the cursor to an arbitrary image, mirroring the clickable
// progress bar of the desktop tools.
func (s *Session) JumpTo(i int) error {
	if i < 0 || i >= len(s.Records) {
		return ErrOutOfRange
	}
	s.cursor = i
	return nil
}

// Clear drops any existing label for the current image so it can be
// relabelled. Reports whether a label was present.
func (s *Session) Clear() bool {
	rec, ok := s.Current()
	if !ok {
		return false
	}
	if _, labelled := s.Entries[rec.Path]; !labelled {
		return false
	}
	delete(s.Entries, rec.Path)
	return true
}

// Restore loads previously committed entries (from the session DB) without
// touching the cursor or commit counter.
func (s *Session) Restore(entries []labels.Entry) {
	for _, e := range entries {
		s.Entries[e.Path] = e
	}
}

// UniqueCases counts distinct case IDs among labelled entries.
func (s *Session) UniqueCases() int {
	cases := map[string]bool{}
	for _, e := range s.Entries {
		cases[e.Case] = true
	}
	return len(cases)
}
