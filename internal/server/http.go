package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alfredjeanlab/provenance/internal/archive"
	"github.com/alfredjeanlab/provenance/internal/events"
	"github.com/alfredjeanlab/provenance/internal/ledger"
	"github.com/alfredjeanlab/provenance/internal/model"
)

// NewHTTPHandler returns the ledger's HTTP API. When authToken is non-empty,
// all routes except GET /v1/health require a matching Bearer token.
func (s *LedgerServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/changes", s.handleRecordChange)
	mux.HandleFunc("GET /v1/records/{entity}/{id}/events", s.handleRecordEvents)
	mux.HandleFunc("GET /v1/records/{entity}/{id}/at", s.handleRehydrate)
	mux.HandleFunc("POST /v1/records/{entity}/{id}/tamper-check", s.handleTamperCheck)
	mux.HandleFunc("GET /v1/records/{entity}/{id}/custody", s.handleCustody)
	mux.HandleFunc("GET /v1/records/{entity}/{id}/digests", s.handleDigests)
	mux.HandleFunc("GET /v1/events", s.handleRecentEvents)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("POST /v1/sweep", s.handleSweep)
	mux.HandleFunc("GET /v1/export", s.handleExport)
	mux.HandleFunc("GET /v1/health", s.handleHealth)

	return AuthMiddleware(authToken, mux)
}

// handleRecordChange handles POST /v1/changes.
func (s *LedgerServer) handleRecordChange(w http.ResponseWriter, r *http.Request) {
	var ch ledger.Change
	if err := json.NewDecoder(r.Body).Decode(&ch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	receipt, err := s.ledger.Record(r.Context(), ch)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidChange):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusConflict, "record is locked by another writer")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	s.publish(r.Context(), events.TopicChangeRecorded, events.ChangeRecorded{
		EntityType: ch.EntityType,
		RecordID:   ch.RecordID,
		Operation:  string(ch.Operation),
		Actor:      ch.Actor,
		EventIDs:   receipt.EventIDs,
		Digest:     receipt.Digest.DigestValue,
		OccurredAt: receipt.OccurredAt,
	})
	if receipt.Snapshot != nil {
		s.publish(r.Context(), events.TopicSnapshotTaken, events.SnapshotTaken{Snapshot: receipt.Snapshot})
	}

	writeJSON(w, http.StatusCreated, receipt)
}

// handleRecordEvents handles GET /v1/records/{entity}/{id}/events.
func (s *LedgerServer) handleRecordEvents(w http.ResponseWriter, r *http.Request) {
	entity, id, ok := s.recordPath(w, r)
	if !ok {
		return
	}
	from, to, err := timeRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	evts, err := s.ledger.Store().EventsBetween(r.Context(), entity, id, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if evts == nil {
		evts = []*model.ChangeEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": evts,
		"total":  len(evts),
	})
}

// handleRehydrate handles GET /v1/records/{entity}/{id}/at.
func (s *LedgerServer) handleRehydrate(w http.ResponseWriter, r *http.Request) {
	entity, id, ok := s.recordPath(w, r)
	if !ok {
		return
	}

	at := time.Now().UTC()
	if v := r.URL.Query().Get("time"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid time: "+err.Error())
			return
		}
		at = t
	}

	state, err := s.ledger.Rehydrate(r.Context(), entity, id, at)
	if errors.Is(err, ledger.ErrNotFound) {
		writeError(w, http.StatusNotFound, "record did not exist at the requested time")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to rehydrate record")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entity_type": entity,
		"record_id":   id,
		"at":          at,
		"state":       state,
	})
}

// tamperCheckInput is the body of POST /v1/records/{entity}/{id}/tamper-check.
// LiveState is the record's current live row; null means the record is absent
// from the live table.
type tamperCheckInput struct {
	LiveState model.State `json:"live_state"`
}

// handleTamperCheck handles POST /v1/records/{entity}/{id}/tamper-check.
func (s *LedgerServer) handleTamperCheck(w http.ResponseWriter, r *http.Request) {
	entity, id, ok := s.recordPath(w, r)
	if !ok {
		return
	}

	var in tamperCheckInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if in.LiveState != nil {
		canon, err := in.LiveState.Canonicalize()
		if err != nil {
			writeError(w, http.StatusBadRequest, "live state: "+err.Error())
			return
		}
		in.LiveState = canon
	}

	report, err := s.ledger.DetectTampering(r.Context(), entity, id, in.LiveState)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !report.Intact {
		s.publish(r.Context(), events.TopicTamperDetected, events.TamperDetected{Report: report})
	}

	writeJSON(w, http.StatusOK, report)
}

// handleCustody handles GET /v1/records/{entity}/{id}/custody.
func (s *LedgerServer) handleCustody(w http.ResponseWriter, r *http.Request) {
	entity, id, ok := s.recordPath(w, r)
	if !ok {
		return
	}
	from, to, err := timeRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.ledger.ChainOfCustody(r.Context(), entity, id, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// handleDigests handles GET /v1/records/{entity}/{id}/digests.
func (s *LedgerServer) handleDigests(w http.ResponseWriter, r *http.Request) {
	entity, id, ok := s.recordPath(w, r)
	if !ok {
		return
	}
	from, to, err := timeRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	digests, err := s.ledger.Store().DigestsBetween(r.Context(), entity, id, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list digests")
		return
	}
	if digests == nil {
		digests = []*model.IntegrityDigest{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"digests": digests,
		"total":   len(digests),
	})
}

// handleRecentEvents handles GET /v1/events.
func (s *LedgerServer) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	evts, err := s.ledger.Store().RecentEvents(r.Context(), q.Get("entity"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if evts == nil {
		evts = []*model.ChangeEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": evts,
		"total":  len(evts),
	})
}

// handleStats handles GET /v1/stats.
func (s *LedgerServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.Store().Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleSweep handles POST /v1/sweep.
func (s *LedgerServer) handleSweep(w http.ResponseWriter, r *http.Request) {
	result, err := s.ledger.Sweep(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.publish(r.Context(), events.TopicSweepCompleted, events.SweepCompleted{Result: result})

	writeJSON(w, http.StatusOK, result)
}

// handleExport handles GET /v1/export. The full ledger streams out as JSONL;
// once the header line is written the status is committed, so a mid-stream
// failure can only be logged.
func (s *LedgerServer) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	if err := archive.ExportJSONL(r.Context(), s.ledger.Store(), w); err != nil {
		s.logger.Error("export failed mid-stream", "error", err)
	}
}

// handleHealth handles GET /v1/health.
func (s *LedgerServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// recordPath extracts and validates the {entity}/{id} path segments. On
// failure it writes the error response and returns ok=false.
func (s *LedgerServer) recordPath(w http.ResponseWriter, r *http.Request) (string, int64, bool) {
	entity := r.PathValue("entity")
	if _, err := s.ledger.Schemas().Lookup(entity); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", 0, false
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return "", 0, false
	}
	return entity, id, true
}

// timeRange parses the optional from/to query params. from defaults to the
// beginning of time, to defaults to now.
func timeRange(r *http.Request) (from, to time.Time, err error) {
	q := r.URL.Query()
	to = time.Now().UTC()

	if v := q.Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return from, to, errors.New("invalid from: " + err.Error())
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return from, to, errors.New("invalid to: " + err.Error())
		}
	}
	return from, to, nil
}

// writeJSON writes data as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
