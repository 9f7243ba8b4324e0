package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/vetter/internal/model"
	"github.com/ppiankov/vetter/internal/report"
)

func fastSender() *Sender {
	s := NewSender(zerolog.Nop())
	s.http.RetryWaitMin = time.Millisecond
	s.http.RetryWaitMax = 5 * time.Millisecond
	return s
}

func dismissedEvent() Event {
	return Event{
		Timestamp:     "2026-04-02T15:04:05Z",
		UserID:        666,
		Username:      "raider",
		Status:        "DISMISSED",
		Disqualifying: []string{"User ID 666 is on the denylist"},
		Rules:         []string{"denylisted_user"},
		ProfileURL:    "https://www.roblox.com/users/666/profile",
		RefHash:       "sha256:abc",
		Source:        "cli",
	}
}

func countingServer(t *testing.T, status int, called *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewEvent(t *testing.T) {
	p := &model.Profile{UserID: 7, Username: "newbie"}
	v := model.Verdict{
		Status: model.Flagged,
		Flags: []model.Flag{
			{RuleID: "min_age", Severity: model.Advisory, Message: "Account is 2 days old"},
		},
	}
	r := report.New(p, v, nil, "sha256:x", time.Date(2026, 4, 2, 15, 4, 5, 0, time.UTC))

	e := NewEvent(r, "dashboard")
	if e.UserID != 7 || e.Username != "newbie" || e.Status != "FLAGGED" {
		t.Errorf("unexpected event: %+v", e)
	}
	if e.Timestamp != "2026-04-02T15:04:05Z" || e.Source != "dashboard" {
		t.Errorf("timestamp/source = %q %q", e.Timestamp, e.Source)
	}
	if len(e.Review) != 1 || len(e.Disqualifying) != 0 || e.Rules[0] != "min_age" {
		t.Errorf("messages: %+v", e)
	}
}

func TestDispatchMatchesStatuses(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		status   string
		want     int32
	}{
		{"explicit match", []string{"DISMISSED"}, "DISMISSED", 1},
		{"case insensitive", []string{"dismissed"}, "DISMISSED", 1},
		{"no match", []string{"DISMISSED"}, "FLAGGED", 0},
		{"default skips verified", nil, "VERIFIED", 0},
		{"default sends flagged", nil, "FLAGGED", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called atomic.Int32
			srv := countingServer(t, http.StatusOK, &called)
			d := NewDispatcher([]Config{{URL: srv.URL, Statuses: tt.statuses}}, fastSender(), zerolog.Nop())

			e := dismissedEvent()
			e.Status = tt.status
			d.Dispatch(context.Background(), e)
			d.Wait()

			if got := called.Load(); got != tt.want {
				t.Errorf("calls = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDispatchMultipleWebhooks(t *testing.T) {
	var called atomic.Int32
	srv1 := countingServer(t, http.StatusOK, &called)
	srv2 := countingServer(t, http.StatusOK, &called)

	d := NewDispatcher([]Config{
		{URL: srv1.URL, Statuses: []string{"DISMISSED"}},
		{URL: srv2.URL, Statuses: []string{"DISMISSED", "FLAGGED"}},
	}, fastSender(), zerolog.Nop())

	d.Dispatch(context.Background(), dismissedEvent())
	d.Wait()

	if called.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", called.Load())
	}
}

func TestDispatchSurvivesCancelledContext(t *testing.T) {
	var called atomic.Int32
	srv := countingServer(t, http.StatusOK, &called)
	d := NewDispatcher([]Config{{URL: srv.URL}}, fastSender(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, dismissedEvent())
	cancel()
	d.Wait()

	if called.Load() != 1 {
		t.Errorf("expected delivery after request ended, got %d calls", called.Load())
	}
}

func TestNewDispatcherNilOnEmpty(t *testing.T) {
	d := NewDispatcher(nil, nil, zerolog.Nop())
	if d != nil {
		t.Fatal("expected nil dispatcher for empty configs")
	}
	// Nil dispatcher is safe to use.
	d.Dispatch(context.Background(), dismissedEvent())
	d.Wait()
}

func TestSendHeaders(t *testing.T) {
	var gotAuth, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := Config{URL: srv.URL, Headers: map[string]string{"Authorization": "Bearer t0k"}}
	if err := fastSender().Send(context.Background(), cfg, dismissedEvent()); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer t0k" || gotType != "application/json" {
		t.Errorf("headers = %q %q", gotAuth, gotType)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if called.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := fastSender().Send(context.Background(), Config{URL: srv.URL}, dismissedEvent()); err != nil {
		t.Fatalf("expected success after retry: %v", err)
	}
	if called.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", called.Load())
	}
}

func TestServerErrorExhaustsRetries(t *testing.T) {
	var called atomic.Int32
	srv := countingServer(t, http.StatusInternalServerError, &called)

	err := fastSender().Send(context.Background(), Config{URL: srv.URL}, dismissedEvent())
	if err == nil || !strings.Contains(err.Error(), "HTTP 500") {
		t.Fatalf("err = %v", err)
	}
	if called.Load() != maxRetries+1 {
		t.Errorf("attempts = %d, want %d", called.Load(), maxRetries+1)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var called atomic.Int32
	srv := countingServer(t, http.StatusBadRequest, &called)

	err := fastSender().Send(context.Background(), Config{URL: srv.URL}, dismissedEvent())
	if err == nil || !strings.Contains(err.Error(), "rejected") {
		t.Fatalf("err = %v", err)
	}
	if called.Load() != 1 {
		t.Errorf("expected 1 attempt for 4xx, got %d", called.Load())
	}
}

func TestFormatGenericJSON(t *testing.T) {
	body, err := FormatPayload("generic", dismissedEvent())
	if err != nil {
		t.Fatal(err)
	}
	var got Event
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if got.Username != "raider" || got.Status != "DISMISSED" || got.UserID != 666 {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestFormatSlackBlockKit(t *testing.T) {
	body, err := FormatPayload("slack", dismissedEvent())
	if err != nil {
		t.Fatal(err)
	}
	s := string(body)
	for _, want := range []string{`"blocks"`, "vetter: raider DISMISSED", "*Disqualifying:*", "User ID 666 is on the denylist"} {
		if !strings.Contains(s, want) {
			t.Errorf("slack payload missing %q: %s", want, s)
		}
	}
	if strings.Contains(s, "*Review:*") {
		t.Error("empty review section rendered")
	}
}

func TestFormatPagerDuty(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{"DISMISSED", "error"},
		{"FLAGGED", "warning"},
		{"VERIFIED", "info"},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			e := dismissedEvent()
			e.Status = tt.status
			body, err := FormatPayload("pagerduty", e)
			if err != nil {
				t.Fatal(err)
			}
			var payload struct {
				EventAction string `json:"event_action"`
				Payload     struct {
					Severity string `json:"severity"`
					Source   string `json:"source"`
				} `json:"payload"`
			}
			if err := json.Unmarshal(body, &payload); err != nil {
				t.Fatal(err)
			}
			if payload.EventAction != "trigger" || payload.Payload.Severity != tt.want || payload.Payload.Source != "vetter" {
				t.Errorf("unexpected payload: %+v", payload)
			}
		})
	}
}
