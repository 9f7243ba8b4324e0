package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ppiankov/vetter/internal/fetcher"
	"github.com/ppiankov/vetter/internal/history"
	"github.com/ppiankov/vetter/internal/report"
	"github.com/ppiankov/vetter/internal/vetting"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus maps a verification error to an HTTP status.
func errorStatus(err error) int {
	var rl *fetcher.RateLimitedError
	var te *fetcher.TransientError
	switch {
	case errors.Is(err, vetting.ErrEmptyUsername):
		return http.StatusBadRequest
	case errors.Is(err, fetcher.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &rl):
		return http.StatusTooManyRequests
	case errors.As(err, &te):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var rl *fetcher.RateLimitedError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(rl.RetryAfter.Seconds())))
	}
	writeJSON(w, errorStatus(err), errorBody{Error: err.Error(), Kind: fetcher.Kind(err)})
}

// remoteParam reads ?remote=, falling back to the server default.
func (s *Server) remoteParam(r *http.Request) bool {
	v := r.URL.Query().Get("remote")
	if v == "" {
		return s.cfg.Remote
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return s.cfg.Remote
	}
	return b
}

func (s *Server) verify(r *http.Request) (report.Report, error) {
	return s.cfg.Service.Verify(r.Context(), r.URL.Query().Get("username"), vetting.Options{
		Remote: s.remoteParam(r),
		Source: "dashboard",
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	rep, err := s.verify(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be between 1 and 500"})
			return
		}
		limit = n
	}
	if s.cfg.History == nil {
		writeJSON(w, http.StatusOK, []history.Record{})
		return
	}
	recs, err := s.cfg.History.Recent(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleReference(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Service.Reference())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"reference": s.cfg.Service.Holder().Hash(),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := pageData{Username: strings.TrimSpace(r.URL.Query().Get("username")), Remote: s.remoteParam(r)}
	status := http.StatusOK
	if data.Username != "" {
		if res, ok := s.allowVerify(w, r); !ok {
			status = http.StatusTooManyRequests
			data.Error = res.Reason
		} else if rep, err := s.verify(r); err != nil {
			status = errorStatus(err)
			data.Error = err.Error()
		} else {
			data.Report = &rep
		}
	}
	if s.cfg.History != nil {
		recs, err := s.cfg.History.Recent(r.Context(), 10)
		if err != nil {
			s.cfg.Logger.Warn().Err(err).Msg("load recent history")
		}
		data.Recent = recs
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := indexTemplate.Execute(w, data); err != nil {
		s.cfg.Logger.Error().Err(err).Msg("render index")
	}
}
