package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/mcclellann/pawnledger/pkg/logging"
	"github.com/mcclellann/pawnledger/pkg/models"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(r.Context()).Error("failed to encode response", "error", err)
	}
}

// writeError maps ledger errors onto HTTP statuses. Anything unrecognised is
// logged and reported as a 500 without its details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{Error: err.Error()}
	var status int

	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		resp.Field = verr.Field
	case errors.Is(err, models.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidState):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrConcurrencyConflict):
		status = http.StatusConflict
	default:
		logging.FromContext(r.Context()).Error("request failed", "error", err)
		status = http.StatusInternalServerError
		resp.Error = "internal server error"
	}
	writeJSON(w, r, status, resp)
}

func badRequest(w http.ResponseWriter, r *http.Request, field, message string) {
	writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: message, Field: field})
}

func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		badRequest(w, r, "id", "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// apiDate accepts either a calendar date (YYYY-MM-DD, taken as UTC midnight)
// or a full RFC 3339 timestamp.
type apiDate struct {
	time.Time
}

func (d *apiDate) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	t, err := parseDate(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, models.NewValidationError("date", "must be YYYY-MM-DD or RFC 3339")
	}
	return t.UTC(), nil
}

func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		writeError(w, r, err)
		return
	}
	badRequest(w, r, "body", "invalid request body: "+err.Error())
}
