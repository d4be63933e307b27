package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"smart-todo/internal/auth"
)

type fakeServers struct {
	backend *httptest.Server
	relay   *httptest.Server

	mu       sync.Mutex
	created  []map[string]any
	deleted  []string
	calendar []map[string]string
	events   []string
}

func newFakeServers(t *testing.T) *fakeServers {
	t.Helper()
	f := &fakeServers{}

	f.backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer user-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/tasks/":
			w.Write([]byte(`{"count":2,"results":[
				{"id":"t1","title":"File taxes","priority_label":"High","status":"Pending","deadline":"2020-04-15T09:00:00Z","category_name":"Finance"},
				{"id":"t2","title":"Plan trip","priority_label":"Low","status":"Completed","deadline":"2030-07-01T09:00:00Z"}
			]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/tasks/":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.created = append(f.created, body)
			body["id"] = "new"
			json.NewEncoder(w).Encode(body)
		case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/api/tasks/"):
			f.deleted = append(f.deleted, r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodGet && r.URL.Path == "/api/categories/":
			w.Write([]byte(`{"count":1,"results":[{"id":"c1","name":"Work"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))

	f.relay = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.URL.Path {
		case "/google-calendar/create-event":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.calendar = append(f.calendar, body)
			w.Write([]byte(`{"success":true,"eventId":"ev","message":"Event created in Google Calendar"}`))
		case "/enhance", "/suggest-task-details":
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"An internal server error occurred."}`))
		case "/analytics/events":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if r.Header.Get("X-Platform") != "cli" {
				t.Errorf("analytics platform header: %q", r.Header.Get("X-Platform"))
			}
			f.events = append(f.events, body["event"].(string))
			w.Write([]byte(`{"ok":true}`))
		default:
			http.NotFound(w, r)
		}
	}))

	t.Cleanup(func() {
		f.backend.Close()
		f.relay.Close()
	})
	t.Setenv("API_BASE_URL", f.backend.URL)
	t.Setenv("RELAY_URL", f.relay.URL)
	return f
}

func signedIn(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	err := auth.NewFileStore(dir).Save(context.Background(), sessionKey, &auth.Session{
		AccessToken:   "user-token",
		ProviderToken: "google-token",
		User:          auth.Principal{ID: "u1", Email: "ada@example.com", Provider: auth.CalendarProvider},
	})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return dir
}

func run(t *testing.T, dir, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(strings.NewReader(stdin), &out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--state-dir", dir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestTasksList(t *testing.T) {
	newFakeServers(t)
	dir := signedIn(t)

	out, err := run(t, dir, "", "tasks", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "File taxes") || !strings.Contains(out, "(overdue)") || !strings.Contains(out, "Plan trip") {
		t.Errorf("output:\n%s", out)
	}
	if !strings.Contains(out, "2 of 2 tasks, synced at ") {
		t.Errorf("missing sync footer:\n%s", out)
	}

	out, err = run(t, dir, "", "tasks", "list", "--tab", "completed")
	if err != nil {
		t.Fatalf("list completed: %v", err)
	}
	if strings.Contains(out, "File taxes") || !strings.Contains(out, "Plan trip") {
		t.Errorf("completed tab:\n%s", out)
	}
}

func TestTasksListSignedOut(t *testing.T) {
	newFakeServers(t)

	_, err := run(t, t.TempDir(), "", "tasks", "list")
	if err == nil || !strings.Contains(err.Error(), "not authenticated") {
		t.Fatalf("got %v", err)
	}
}

func TestTasksDeleteAsksFirst(t *testing.T) {
	f := newFakeServers(t)
	dir := signedIn(t)

	out, err := run(t, dir, "n\n", "tasks", "delete", "t1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !strings.Contains(out, "Cancelled.") || len(f.deleted) != 0 {
		t.Fatalf("declined delete went through: %q %v", out, f.deleted)
	}

	if _, err := run(t, dir, "", "tasks", "delete", "--yes", "t1"); err != nil {
		t.Fatalf("delete --yes: %v", err)
	}
	if len(f.deleted) != 1 || f.deleted[0] != "/api/tasks/t1/" {
		t.Errorf("deleted: %v", f.deleted)
	}
}

func TestTasksImport(t *testing.T) {
	f := newFakeServers(t)
	dir := signedIn(t)

	csvPath := filepath.Join(t.TempDir(), "tasks.csv")
	content := `"Subject","Start Date","Start Time","End Date","End Time","All Day Event","Description","Location"
"Write report","05/10/2030","10:00 AM","05/10/2030","11:00 AM","False","Q2 numbers","Work"
"","05/11/2030","10:00 AM","05/11/2030","11:00 AM","False","skipped",""
"Call mom","05/12/2030","10:00 AM","05/12/2030","11:00 AM","False","",""`
	if err := os.WriteFile(csvPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, dir, "", "tasks", "import", csvPath)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "Imported 2 of 2 tasks.") {
		t.Errorf("output: %s", out)
	}

	if len(f.created) != 2 {
		t.Fatalf("created: %v", f.created)
	}
	if f.created[0]["category"] != "c1" || f.created[0]["priority_label"] != "Medium" {
		t.Errorf("first task: %v", f.created[0])
	}
	if f.created[1]["description"] != "Imported from CSV" {
		t.Errorf("second task: %v", f.created[1])
	}

	// every created task was forwarded to the calendar before exit
	if len(f.calendar) != 2 {
		t.Errorf("calendar notifications: %v", f.calendar)
	}
	if len(f.events) != 1 || f.events[0] != "tasks_imported" {
		t.Errorf("analytics: %v", f.events)
	}
}

func TestTasksAddSurvivesModelFailure(t *testing.T) {
	f := newFakeServers(t)
	dir := signedIn(t)

	out, err := run(t, dir, "", "tasks", "add", "Write docs",
		"--description", "first draft", "--deadline", "2030-01-02", "--enhance", "--suggest")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out, "An internal server error occurred.") || !strings.Contains(out, "Created task new: Write docs") {
		t.Errorf("output:\n%s", out)
	}
	if len(f.created) != 1 || f.created[0]["description"] != "first draft" {
		t.Fatalf("created: %v", f.created)
	}
	if len(f.calendar) != 1 {
		t.Errorf("calendar notifications: %v", f.calendar)
	}
}

func TestTasksAddStillNeedsDeadline(t *testing.T) {
	f := newFakeServers(t)
	dir := signedIn(t)

	if _, err := run(t, dir, "", "tasks", "add", "Write docs", "--description", "d", "--suggest"); err == nil {
		t.Fatal("expected a validation error")
	}
	if len(f.created) != 0 {
		t.Errorf("created: %v", f.created)
	}
}

func TestTasksExport(t *testing.T) {
	f := newFakeServers(t)
	dir := signedIn(t)
	outPath := filepath.Join(t.TempDir(), "out.csv")

	if _, err := run(t, dir, "", "tasks", "export", "--status", "pending", "-o", outPath); err != nil {
		t.Fatalf("export: %v", err)
	}
	raw, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], `"File taxes",`) || !strings.HasSuffix(lines[1], `"Finance"`) {
		t.Errorf("csv:\n%s", raw)
	}
	if len(f.events) != 1 || f.events[0] != "tasks_exported" {
		t.Errorf("analytics: %v", f.events)
	}
}

func TestParseDeadline(t *testing.T) {
	loc := time.FixedZone("X", 3600)
	for in, want := range map[string]time.Time{
		"2026-05-10":           time.Date(2026, 5, 10, 0, 0, 0, 0, loc),
		"2026-05-10 14:30":     time.Date(2026, 5, 10, 14, 30, 0, 0, loc),
		"2026-05-10T14:30":     time.Date(2026, 5, 10, 14, 30, 0, 0, loc),
		"2026-05-10T14:30:00Z": time.Date(2026, 5, 10, 14, 30, 0, 0, time.UTC),
	} {
		got, err := parseDeadline(in, loc)
		if err != nil || !got.Equal(want) {
			t.Errorf("parseDeadline(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := parseDeadline("next week", loc); err == nil {
		t.Error("expected an error")
	}
}
