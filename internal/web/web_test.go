package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"calharvest/internal/config"
	"calharvest/internal/history"
)

type fakeStore struct {
	runs []history.Run
	err  error
}

func (s *fakeStore) Record(run history.Run) error { s.runs = append(s.runs, run); return nil }
func (s *fakeStore) Recent(limit int) ([]history.Run, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.runs) {
		return s.runs[:limit], nil
	}
	return s.runs, nil
}
func (s *fakeStore) Close() error { return nil }

func testServer(t *testing.T, store history.Store) (*Server, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.SourceURL = "https://example.org/calendar"
	cfg.ICSPath = filepath.Join(dir, "calendar.ics")
	cfg.JSONPath = filepath.Join(dir, "events.json")
	cfg.Normalize()
	return NewServer(cfg, store), cfg
}

func TestHealth(t *testing.T) {
	s, _ := testServer(t, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestCalendar_ServesArtifact(t *testing.T) {
	s, cfg := testServer(t, nil)
	artifact := "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"
	if err := os.WriteFile(cfg.ICSPath, []byte(artifact), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/calendar.ics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != artifact {
		t.Errorf("body = %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/calendar; charset=utf-8" {
		t.Errorf("content-type = %q", ct)
	}
}

func TestCalendar_MissingArtifactIs404(t *testing.T) {
	s, _ := testServer(t, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/calendar.ics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 before first successful publish", rec.Code)
	}
}

func TestRuns_ReturnsHistory(t *testing.T) {
	store := &fakeStore{runs: []history.Run{
		{ID: 2, Status: history.StatusPublished, EventCount: 35, StartedAt: time.Now(), FinishedAt: time.Now()},
		{ID: 1, Status: history.StatusValidationFailed, RolledBack: true, StartedAt: time.Now(), FinishedAt: time.Now()},
	}}
	s, _ := testServer(t, store)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Runs []history.Run `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if len(resp.Runs) != 2 || resp.Runs[0].EventCount != 35 {
		t.Errorf("runs = %+v", resp.Runs)
	}
}

func TestRuns_LimitParam(t *testing.T) {
	store := &fakeStore{runs: []history.Run{{ID: 1}, {ID: 2}, {ID: 3}}}
	s, _ := testServer(t, store)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit=1", nil))

	var resp struct {
		Runs []history.Run `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if len(resp.Runs) != 1 {
		t.Errorf("len = %d, want 1", len(resp.Runs))
	}
}

func TestRuns_DisabledHistory(t *testing.T) {
	s, _ := testServer(t, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when history disabled", rec.Code)
	}
}
