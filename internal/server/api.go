package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/streamnote/streamnote/internal/session"
	"github.com/streamnote/streamnote/internal/storage"
	"github.com/streamnote/streamnote/internal/transcript"
)

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// SessionStore is the archive surface the REST routes read from.
type SessionStore interface {
	GetSessionsByDate(date string) ([]storage.Session, error)
	GetSession(id string) (storage.Session, error)
	GetSegments(sessionID string) ([]transcript.Segment, error)
	GetSummaries(sessionID string) ([]session.Summary, error)
	GetDates() ([]string, error)
}

type liveSession struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at"`
	Segments  int       `json:"segments"`
	Summaries int       `json:"summaries"`
}

func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": s.sessions.Len(),
		})
	})

	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		if date == "" {
			date = time.Now().UTC().Format("2006-01-02")
		}

		archived := []storage.Session{}
		if s.store != nil {
			var err error
			archived, err = s.store.GetSessionsByDate(date)
			if err != nil {
				writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list sessions: %v", err))
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"live":     s.liveSessions(),
			"archived": archived,
		})
	})

	mux.HandleFunc("GET /api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}

		if sess, ok := s.sessions.Get(sessionID); ok {
			segments := sess.Transcript()
			summaries := sess.Summaries()
			writeJSON(w, http.StatusOK, map[string]any{
				"session": liveSession{
					ID:        sessionID,
					State:     sess.State().String(),
					StartedAt: sess.StartedAt(),
					Segments:  len(segments),
					Summaries: len(summaries),
				},
				"segments":  segments,
				"summaries": summaries,
			})
			return
		}

		if s.store == nil {
			writeJSONError(w, http.StatusNotFound, "session not found")
			return
		}

		sessionData, err := s.store.GetSession(sessionID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, sql.ErrNoRows) {
				status = http.StatusNotFound
			}
			writeJSONError(w, status, fmt.Sprintf("get session: %v", err))
			return
		}

		segments, err := s.store.GetSegments(sessionID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get session segments: %v", err))
			return
		}

		summaries, err := s.store.GetSummaries(sessionID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get session summaries: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"session":   sessionData,
			"segments":  segments,
			"summaries": summaries,
		})
	})

	mux.HandleFunc("GET /api/dates", func(w http.ResponseWriter, r *http.Request) {
		if s.store == nil {
			writeJSON(w, http.StatusOK, []string{})
			return
		}
		dates, err := s.store.GetDates()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get dates: %v", err))
			return
		}
		if dates == nil {
			dates = []string{}
		}
		writeJSON(w, http.StatusOK, dates)
	})
}

func (s *Server) liveSessions() []liveSession {
	active := s.sessions.List()
	out := make([]liveSession, 0, len(active))
	for _, sess := range active {
		out = append(out, liveSession{
			ID:        sess.ID,
			State:     sess.State().String(),
			StartedAt: sess.StartedAt(),
			Segments:  len(sess.Transcript()),
			Summaries: len(sess.Summaries()),
		})
	}
	return out
}

func validSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
