package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestID_Generates(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	reqID := rec.Header().Get("X-Request-Id")
	if reqID == "" {
		t.Fatal("X-Request-Id should be generated when not provided")
	}
	if !strings.HasPrefix(reqID, "req_") {
		t.Errorf("X-Request-Id = %q, should start with 'req_'", reqID)
	}
}

func TestRequestID_Echoes(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "custom-id-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "custom-id-123" {
		t.Errorf("X-Request-Id = %q, want %q", got, "custom-id-123")
	}
}

func TestRequestLogger_CapturesStatus(t *testing.T) {
	handler := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test?op=pausejob", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
}

func TestStatusWriter_DefaultStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}

	// Without calling WriteHeader, status should default to 200
	if sw.status != http.StatusOK {
		t.Errorf("default status = %d, want %d", sw.status, http.StatusOK)
	}
}

func TestStatusWriter_WriteHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}
	sw.WriteHeader(http.StatusNotFound)

	if sw.status != http.StatusNotFound {
		t.Errorf("status = %d, want %d", sw.status, http.StatusNotFound)
	}
}

func TestStatusWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}
	_, _ = sw.Write([]byte("ok"))
	sw.WriteHeader(http.StatusInternalServerError)

	if !sw.wroteHeader || sw.status != http.StatusOK || rec.Code != http.StatusOK {
		t.Errorf("status = %d (recorder %d), wroteHeader = %v", sw.status, rec.Code, sw.wroteHeader)
	}
}

func TestLimitBody_RejectsOversizedBody(t *testing.T) {
	var readErr error
	handler := LimitBody(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	body := strings.NewReader(strings.Repeat("x", MaxBodySize+1))
	req := httptest.NewRequest(http.MethodPost, "/", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if readErr == nil {
		t.Error("expected error reading oversized body")
	}
}

func TestLimitBody_AllowsSmallBody(t *testing.T) {
	var got string
	handler := LimitBody(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = string(b)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"JobName":"a"}`))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got != `{"JobName":"a"}` {
		t.Errorf("body = %q", got)
	}
}

func TestAPIKey(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		header string
		value  string
		want   int
	}{
		{"disabled", "", "", "", http.StatusOK},
		{"missing", "secret", "", "", http.StatusUnauthorized},
		{"bearer", "secret", "Authorization", "Bearer secret", http.StatusOK},
		{"header", "secret", "X-Api-Key", "secret", http.StatusOK},
		{"wrong", "secret", "X-Api-Key", "nope", http.StatusUnauthorized},
		{"basic scheme", "secret", "Authorization", "Basic secret", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := APIKey(tt.key)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

type countingObserver struct {
	method string
	status int
	calls  int
}

func (o *countingObserver) ObserveRequest(method string, status int) {
	o.method, o.status = method, status
	o.calls++
}

func TestMetrics_ObservesStatus(t *testing.T) {
	obs := &countingObserver{}
	handler := Metrics(obs)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))

	if obs.calls != 1 || obs.method != http.MethodPost || obs.status != http.StatusNoContent {
		t.Errorf("observer = %+v", obs)
	}
}
