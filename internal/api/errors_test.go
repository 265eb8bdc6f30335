package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openjobspec/ojs-httpjob/internal/core"
)

// --- WriteJSON Tests ---

func TestWriteJSON_200Struct(t *testing.T) {
	w := httptest.NewRecorder()
	data := struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}{Name: "test", Count: 42}

	WriteJSON(w, http.StatusOK, data)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != contentTypeJSON {
		t.Errorf("Content-Type = %q, want %q", ct, contentTypeJSON)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["name"] != "test" {
		t.Errorf("name = %v, want %q", resp["name"], "test")
	}
	if resp["count"] != float64(42) {
		t.Errorf("count = %v, want %v", resp["count"], 42)
	}
}

func TestWriteJSON_200Slice(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusOK, []*core.JobDefinition{{JobName: "a"}, {JobName: "b"}})

	var resp []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp) != 2 || resp[0]["JobName"] != "a" {
		t.Errorf("resp = %v", resp)
	}
}

func TestWriteJSON_Unencodable(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusOK, map[string]any{"ch": make(chan int)})
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

// --- WriteError Tests ---

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"validation", core.NewValidationError("Url invalid", nil), http.StatusBadRequest, "Url invalid"},
		{"not found", core.NewNotFoundError("recurring-job", "x"), http.StatusNotFound, "not found recurring-job:x"},
		{"conflict", core.NewConflictError("x is registered!", nil), http.StatusInternalServerError, "x is registered!"},
		{"upstream", core.NewUpstreamError("active server not exist!"), http.StatusInternalServerError, "active server not exist!"},
		{"wrapped", fmt.Errorf("outer: %w", core.NewValidationError("ContentType invalid", nil)), http.StatusBadRequest, "ContentType invalid"},
		{"plain", errors.New("boom"), http.StatusInternalServerError, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
			if ct := w.Header().Get("Content-Type"); ct != contentTypeText {
				t.Errorf("Content-Type = %q, want %q", ct, contentTypeText)
			}
		})
	}
}

func TestNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	NoContent(w)
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("status = %d body = %q", w.Code, w.Body.String())
	}
}
