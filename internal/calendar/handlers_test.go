package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"smart-todo/internal/analytics"
	"smart-todo/internal/apiclient"
	"smart-todo/internal/auth"
	"smart-todo/internal/tasks"
)

type recorded struct {
	mu     sync.Mutex
	events []string
}

func (r *recorded) Record(_ context.Context, _ analytics.Envelope, event string, _ any, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func serve(h http.HandlerFunc, method, body string, s *auth.Session) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	if s != nil {
		req = req.WithContext(auth.WithSession(req.Context(), s))
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestCreateEventHandler(t *testing.T) {
	cal := &fakeCalendar{}
	srv := cal.server(t)
	defer srv.Close()

	svc := NewService(NewClient(srv.URL, nil), Config{Location: time.UTC})
	rec := &recorded{}
	h := CreateEventHandler(svc, rec)

	res := serve(h, http.MethodPost, `{"title":"Dentist","description":"Checkup","deadline":"2026-06-01T14:30","timeZone":"Europe/Berlin"}`, googleSession())
	if res.Code != http.StatusOK {
		t.Fatalf("status %d: %s", res.Code, res.Body)
	}
	var out CreateResult
	_ = json.Unmarshal(res.Body.Bytes(), &out)
	if !out.Success || out.EventID != "ev1" {
		t.Fatalf("result: %+v", out)
	}
	if got := cal.events[0].Start; got.DateTime != "2026-06-01T14:30:00+02:00" || got.TimeZone != "Europe/Berlin" {
		t.Errorf("start: %+v", got)
	}
	if len(rec.events) != 1 || rec.events[0] != analytics.EventCalendarEventCreated {
		t.Errorf("events: %v", rec.events)
	}

	res = serve(h, http.MethodPost, `{"title":"Dentist","deadline":"someday"}`, googleSession())
	_ = json.Unmarshal(res.Body.Bytes(), &out)
	if res.Code != http.StatusOK || out.Success || out.Message != "Error creating calendar event" {
		t.Errorf("bad deadline: %d %+v", res.Code, out)
	}

	if res := serve(h, http.MethodPost, `{}`, nil); res.Code != http.StatusUnauthorized {
		t.Errorf("no session: %d", res.Code)
	}
}

func TestSyncTasksHandler(t *testing.T) {
	backend := taskBackend(t, `{"count":1,"results":[{"id":"1","title":"Write report","priority_label":"High","status":"Pending","deadline":"2026-05-10T09:00:00Z"}]}`)
	defer backend.Close()
	cal := &fakeCalendar{}
	srv := cal.server(t)
	defer srv.Close()

	svc := NewService(NewClient(srv.URL, nil), Config{APIBaseURL: backend.URL})
	rec := &recorded{}
	h := SyncTasksHandler(svc, rec)

	res := serve(h, http.MethodPost, "", googleSession())
	if res.Code != http.StatusOK {
		t.Fatalf("status %d: %s", res.Code, res.Body)
	}
	var out SyncSummary
	_ = json.Unmarshal(res.Body.Bytes(), &out)
	if out.TotalTasks != 1 || out.Results.Success != 1 || out.Results.Errors == nil {
		t.Errorf("summary: %+v", out)
	}
	if len(rec.events) != 1 || rec.events[0] != analytics.EventCalendarTasksSynced {
		t.Errorf("events: %v", rec.events)
	}

	email := googleSession()
	email.User.Provider = "email"
	res = serve(h, http.MethodPost, "", email)
	if res.Code != http.StatusBadRequest || !strings.Contains(res.Body.String(), "Please reconnect your Google account.") {
		t.Errorf("not connected: %d %s", res.Code, res.Body)
	}

	stale := googleSession()
	stale.AccessToken = "stale"
	res = serve(h, http.MethodPost, "", stale)
	if res.Code != http.StatusInternalServerError || !strings.Contains(res.Body.String(), "Failed to sync tasks with Google Calendar") {
		t.Errorf("backend failure: %d %s", res.Code, res.Body)
	}
}

type staticSessions struct{ s *auth.Session }

func (s staticSessions) Current() *auth.Session { return s.s }

func TestRelayNotifier(t *testing.T) {
	var got http.Header
	var body map[string]string
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != createEventPath {
			http.NotFound(w, r)
			return
		}
		got = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["title"] == "nope" {
			w.Write([]byte(`{"success":false,"message":"Google Calendar not connected"}`))
			return
		}
		w.Write([]byte(`{"success":true,"eventId":"ev1","message":"Event created in Google Calendar"}`))
	}))
	defer relay.Close()

	n := NewRelayNotifier(relay.URL, apiclient.StaticToken("user-token"), staticSessions{googleSession()})

	deadline := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	if err := n.NotifyTaskCreated(context.Background(), tasks.Task{Title: "Write report", Deadline: deadline}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got.Get("Authorization") != "Bearer user-token" ||
		got.Get(auth.ProviderTokenHeader) != "google-token" ||
		got.Get(auth.ProviderRefreshTokenHeader) != "google-refresh" {
		t.Errorf("headers: %v", got)
	}
	if body["deadline"] != "2026-05-10T09:00:00Z" {
		t.Errorf("body: %v", body)
	}

	err := n.NotifyTaskCreated(context.Background(), tasks.Task{Title: "nope", Deadline: deadline})
	if err == nil || err.Error() != "Google Calendar not connected" {
		t.Errorf("unsuccessful relay: %v", err)
	}
}
