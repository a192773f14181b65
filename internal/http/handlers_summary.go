package http

import (
	"bytes"
	"net/http"
	"strconv"

	"kharcha/internal/auth"
	"kharcha/internal/export"
	"kharcha/internal/log"
	"kharcha/internal/services"
)

// superseded answers the request with 409 when a newer request for the
// same session and view started after ticket was issued.
func (s *Server) superseded(w http.ResponseWriter, r *http.Request, view string, ticket services.Ticket) bool {
	if ticket.Current() {
		return false
	}
	log.FromContext(r.Context()).DebugContext(r.Context(), "Discarding superseded summary",
		log.FieldComponent, log.ComponentSummary,
		log.FieldPath, r.URL.Path,
		"view", view)
	writeError(w, r, errSuperseded)
	return true
}

// sessionKey scopes the stale guard to the token and, when the client sends
// one, its SessionHeader, so tabs sharing a token do not supersede each other.
func (s *Server) sessionKey(r *http.Request) string {
	key := auth.GetUserID(r.Context())
	if c := auth.GetClaims(r.Context()); c != nil && c.ID != "" {
		key = c.ID
	}
	if tab := r.Header.Get(SessionHeader); tab != "" {
		if len(tab) > maxSessionHeader {
			tab = tab[:maxSessionHeader]
		}
		key += "/" + tab
	}
	return key
}

func (s *Server) handleMonthSummary(w http.ResponseWriter, r *http.Request) {
	p, err := ParsePeriodParams(r.URL.Query(), s.now(), true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ticket := s.guard.Begin(s.sessionKey(r), "month")

	sum, err := s.deps.Summary.Month(r.Context(), auth.GetUserID(r.Context()), p)
	if s.superseded(w, r, "month", ticket) {
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sum)
}

func (s *Server) handleYearSummary(w http.ResponseWriter, r *http.Request) {
	p, err := ParsePeriodParams(r.URL.Query(), s.now(), false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ticket := s.guard.Begin(s.sessionKey(r), "year")

	sum, err := s.deps.Summary.Year(r.Context(), auth.GetUserID(r.Context()), p.Year)
	if s.superseded(w, r, "year", ticket) {
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sum)
}

// handleExport streams the period as xlsx. A month export first settles
// the carryover so the workbook matches the dashboard.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	p, err := s.listPeriod(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	userID := auth.GetUserID(r.Context())

	if !p.IsYear() {
		if _, err := s.deps.Summary.Month(r.Context(), userID, p); err != nil {
			writeError(w, r, err)
			return
		}
	}
	snap, err := s.deps.Summary.Snapshot(r.Context(), userID, p)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, snap); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(p)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
