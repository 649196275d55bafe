package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/helixir/record-cleaner-service/internal/domain"
	"github.com/helixir/record-cleaner-service/internal/engine"
	"github.com/helixir/record-cleaner-service/internal/observability"
	"github.com/helixir/record-cleaner-service/internal/profile"
	"github.com/helixir/record-cleaner-service/internal/repository"
)

// decodeBody reads a size-limited JSON body into dst and validates it.
// It writes the error response itself and reports whether to continue.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}

	if err := json.Unmarshal(body, dst); err != nil {
		var inputErr *domain.InputError
		if errors.As(err, &inputErr) {
			writeError(w, http.StatusBadRequest, inputErr.Error())
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}

	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// validationMessage reports the first failed constraint.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// writeDomainError maps engine errors to HTTP status codes. Server-side
// failures are logged with the request ID.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrServiceUnavailable), errors.Is(err, domain.ErrReferenceUnavailable):
		s.requestLogger(r).Warn().Err(err).Msg("dependency unavailable")
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		s.requestLogger(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) tableFrom(w http.ResponseWriter, r *http.Request, req tableRequest) (*domain.Table, bool) {
	t, err := domain.NewTable(req.Columns, req.Rows)
	if err != nil {
		s.writeDomainError(w, r, err)
		return nil, false
	}
	return t, true
}

// canonicalizeValue handles POST /api/v1/canonicalize.
func (s *Server) canonicalizeValue(w http.ResponseWriter, r *http.Request) {
	var req canonicalizeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	ft, err := domain.ParseFieldType(req.FieldType)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var cutoff float64
	if req.Cutoff != nil {
		cutoff = *req.Cutoff
	}

	correction, err := s.engine.Canonicalizer.Canonicalize(r.Context(), req.Value, ft, cutoff)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, correction)
}

// canonicalizeTable handles POST /api/v1/tables/canonicalize.
func (s *Server) canonicalizeTable(w http.ResponseWriter, r *http.Request) {
	var req canonicalizeTableRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	t, ok := s.tableFrom(w, r, req.tableRequest)
	if !ok {
		return
	}

	ctx := r.Context()
	if req.RunID != "" {
		ctx = observability.WithRunID(ctx, req.RunID)
	}

	var contextChanges map[string]int
	if req.ContextCorrections {
		fixed, err := profile.ApplyContextCorrections(t)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		t, contextChanges = fixed.Table, fixed.Changed
	}

	res, err := s.engine.Tables.Canonicalize(ctx, t)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tableResponse{
		RunID:          res.RunID,
		Columns:        res.Table.Columns(),
		Rows:           tableRows(res.Table),
		Reports:        res.Columns,
		Changed:        res.Changed,
		ContextChanges: contextChanges,
	})
}

// detectDuplicates handles POST /api/v1/tables/duplicates.
func (s *Server) detectDuplicates(w http.ResponseWriter, r *http.Request) {
	var req duplicatesRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	t, ok := s.tableFrom(w, r, req.tableRequest)
	if !ok {
		return
	}

	ctx := r.Context()
	var runID string
	if req.Canonicalize {
		res, err := s.engine.Tables.Canonicalize(ctx, t)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		t, runID = res.Table, res.RunID
	}

	report, err := s.engine.DetectDuplicates(ctx, t, engine.DuplicateRequest{
		Primary:         req.Primary,
		Secondary:       req.Secondary,
		Blocking:        req.Blocking,
		Threshold:       req.Threshold,
		PreferCanonical: req.PreferCanonical,
		NameMatching:    req.NameMatching,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDuplicatesResponse(report, runID))
}

// profileTable handles POST /api/v1/tables/profile.
func (s *Server) profileTable(w http.ResponseWriter, r *http.Request) {
	var req tableRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	t, ok := s.tableFrom(w, r, req)
	if !ok {
		return
	}

	report, err := profile.Profile(t)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// listOverrides handles GET /api/v1/overrides.
func (s *Server) listOverrides(w http.ResponseWriter, _ *http.Request) {
	entries := s.engine.Overrides.Entries()
	writeJSON(w, http.StatusOK, overridesResponse{Overrides: entries, Total: len(entries)})
}

// putOverride handles PUT /api/v1/overrides.
func (s *Server) putOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	entry, err := s.engine.Overrides.RecordOverride(r.Context(), req.Raw, req.Canonical)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOverrideResponse(entry))
}

// deleteOverride handles DELETE /api/v1/overrides/{raw}.
func (s *Server) deleteOverride(w http.ResponseWriter, r *http.Request) {
	raw, ok := pathParam(w, r, "raw")
	if !ok {
		return
	}
	if err := s.engine.Overrides.RemoveOverride(r.Context(), raw); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listWhitelist handles GET /api/v1/whitelist.
func (s *Server) listWhitelist(w http.ResponseWriter, _ *http.Request) {
	values := s.engine.Overrides.Whitelist()
	writeJSON(w, http.StatusOK, whitelistResponse{Values: values, Total: len(values)})
}

// addWhitelist handles POST /api/v1/whitelist.
func (s *Server) addWhitelist(w http.ResponseWriter, r *http.Request) {
	var req whitelistRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.Overrides.AddWhitelist(r.Context(), req.Value); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"value": domain.NormalizeKey(req.Value)})
}

// deleteWhitelist handles DELETE /api/v1/whitelist/{value}.
func (s *Server) deleteWhitelist(w http.ResponseWriter, r *http.Request) {
	value, ok := pathParam(w, r, "value")
	if !ok {
		return
	}
	if err := s.engine.Overrides.RemoveWhitelist(r.Context(), value); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// reloadReferences handles POST /api/v1/references/reload.
func (s *Server) reloadReferences(w http.ResponseWriter, r *http.Request) {
	summary, err := s.engine.Reload(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// listChangeLog handles GET /api/v1/changelog. It requires the database.
func (s *Server) listChangeLog(w http.ResponseWriter, r *http.Request) {
	if s.engine.ChangeLog == nil {
		writeError(w, http.StatusNotFound, "change-log archive is not configured")
		return
	}

	q := r.URL.Query()
	filter := repository.ChangeLogFilter{
		RunID:  q.Get("run_id"),
		Column: q.Get("column"),
		Method: domain.Method(q.Get("method")),
	}
	var ok bool
	if filter.Limit, ok = intParam(w, q, "limit"); !ok {
		return
	}
	if filter.Offset, ok = intParam(w, q, "offset"); !ok {
		return
	}
	if v := q.Get("recorded_after"); v != "" {
		after, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid recorded_after format: expected RFC3339")
			return
		}
		filter.RecordedAfter = &after
	}

	if err := filter.Validate(); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	entries, total, err := s.engine.ChangeLog.List(r.Context(), filter)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.ChangeLogEntry{}
	}
	writeJSON(w, http.StatusOK, changeLogResponse{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	})
}

// pathParam returns the unescaped URL parameter, writing a 400 when it is blank.
func pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	raw := chi.URLParam(r, name)
	value, err := url.PathUnescape(raw)
	if err != nil || value == "" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return "", false
	}
	return value, true
}

func intParam(w http.ResponseWriter, q url.Values, name string) (int, bool) {
	v := q.Get(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a non-negative integer", name))
		return 0, false
	}
	return n, true
}

func (s *Server) requestLogger(r *http.Request) *zerolog.Logger {
	l := observability.LoggerFromContext(r.Context(), s.logger)
	return &l
}
