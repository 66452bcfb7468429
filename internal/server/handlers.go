package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/labels"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/report"
)

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	reply := map[string]interface{}{
		"id":         s.Session.ID,
		"protocol":   s.Session.Protocol,
		"root":       s.Session.Root,
		"annotator":  s.Session.Annotator,
		"started_at": s.Session.StartedAt,
		"total":      s.Session.Len(),
		"labeled":    s.Session.Labeled(),
	}
	s.mu.Unlock()
	json.NewEncoder(w).Encode(reply)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(s.Session.Records)
}

func (s *Server) handleLabels(w http.ResponseWriter, r *http.Request) {
	entries := s.snapshotEntries()
	report.SortEntries(s.Session.Protocol, entries)
	json.NewEncoder(w).Encode(entries)
}

// snapshotEntries copies the label map under the lock so handlers can
// encode or render without holding it.
func (s *Server) snapshotEntries() []labels.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]labels.Entry, 0, len(s.Session.Entries))
	for _, e := range s.Session.Entries {
		entries = append(entries, e)
	}
	return entries
}

type CommitRequest struct {
	Path      string  `json:"path"`
	Category  string  `json:"category"`
	Subtype   string  `json:"subtype"`
	Comment   string  `json:"comment"`
	TimeSpent float64 `json:"time_spent"`
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	idx := -1
	for i, candidate := range s.Session.Records {
		if candidate.Path == req.Path {
			idx = i
			break
		}
	}
	if idx < 0 {
		http.Error(w, "unknown image path", http.StatusNotFound)
		return
	}

	target := s.Session.Records[idx]
	entry := labels.Entry{
		Case:          target.Case,
		Visit:         target.Visit,
		BodySite:      target.BodySite,
		Magnification: target.Magnification,
		MagValue:      target.MagValue,
		File:          target.File,
		Path:          target.Path,
		Category:      req.Category,
		Subtype:       req.Subtype,
		Comment:       req.Comment,
		TimeSpent:     req.TimeSpent,
		Annotator:     s.Session.Annotator,
		LabeledAt:     time.Now(),
	}
	if err := entry.Validate(s.Session.Protocol); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	s.mu.Lock()
	if prev, ok := s.Session.Entries[target.Path]; ok {
		entry.TimeSpent += prev.TimeSpent
	}
	s.Session.Entries[target.Path] = entry
	labeled := s.Session.Labeled()
	s.mu.Unlock()

	if s.DB != nil {
		if err := s.DB.UpsertEntries(r.Context(), s.Session.ID, []labels.Entry{entry}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"labeled": labeled,
		"total":   s.Session.Len(),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	entries := s.snapshotEntries()
	now := time.Now()
	meta := report.Meta{
		Protocol:    s.Session.Protocol,
		Annotator:   s.Session.Annotator,
		StartedAt:   s.Session.StartedAt,
		EndedAt:     now,
		GeneratedAt: now,
		TotalImages: s.Session.Len(),
		Partial:     len(entries) < s.Session.Len(),
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := report.RenderSummary(w, meta, entries); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
