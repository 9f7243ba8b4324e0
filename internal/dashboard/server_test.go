package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ppiankov/vetter/internal/fetcher"
	"github.com/ppiankov/vetter/internal/history"
	"github.com/ppiankov/vetter/internal/metrics"
	"github.com/ppiankov/vetter/internal/model"
	"github.com/ppiankov/vetter/internal/ratelimit"
	"github.com/ppiankov/vetter/internal/refdata"
	"github.com/ppiankov/vetter/internal/vetting"
)

type stubFetcher struct{}

func (stubFetcher) FetchProfile(ctx context.Context, username string) (*model.Profile, error) {
	switch username {
	case "builderman":
		groups := make([]model.Group, 15)
		for i := range groups {
			groups[i] = model.Group{ID: int64(100 + i), Name: "Hobby"}
		}
		return &model.Profile{
			UserID: 42, Username: "builderman", DisplayName: "Builder",
			AccountAgeDays: 400, FriendCount: 80, Groups: groups, BadgeCount: 350,
			DataComplete: true,
		}, nil
	case "newbie":
		return &model.Profile{UserID: 43, Username: "newbie", AccountAgeDays: 2, DataComplete: true}, nil
	case "busy":
		return nil, &fetcher.RateLimitedError{Op: "resolve", RetryAfter: 7 * time.Second}
	case "flaky":
		return nil, &fetcher.TransientError{Op: "groups", Status: 503}
	case "slow":
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, fetcher.ErrNotFound
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return newTestServerWith(t, nil)
}

func newTestServerWith(t *testing.T, configure func(*Config)) *httptest.Server {
	t.Helper()
	rd, err := refdata.New(refdata.Lists{}, refdata.DefaultThresholds())
	if err != nil {
		t.Fatal(err)
	}
	hs, err := history.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { hs.Close() })

	reg := prometheus.NewRegistry()
	svc, err := vetting.New(vetting.Config{
		Holder:  refdata.NewHolder(rd, "sha256:dash"),
		Fetcher: stubFetcher{},
		History: hs,
		Metrics: metrics.New(reg),
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	cfg := Config{Service: svc, History: hs, Gatherer: reg, Logger: zerolog.Nop()}
	if configure != nil {
		configure(&cfg)
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, ts *httptest.Server, path string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(body)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, body := get(t, ts, "/healthz")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "sha256:dash") {
		t.Fatalf("healthz = %d %s", resp.StatusCode, body)
	}
}

func TestAPIVerify(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantBody   string
	}{
		{"verified", "?username=builderman", http.StatusOK, `"status":"VERIFIED"`},
		{"flagged", "?username=newbie", http.StatusOK, `"rule_id":"min_age"`},
		{"missing username", "", http.StatusBadRequest, "username is required"},
		{"not found", "?username=ghost", http.StatusNotFound, `"kind":"not_found"`},
		{"rate limited", "?username=busy", http.StatusTooManyRequests, `"kind":"rate_limited"`},
		{"transient", "?username=flaky", http.StatusBadGateway, `"kind":"transient"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, ts, "/api/verify"+tt.query)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", resp.StatusCode, tt.wantStatus, body)
			}
			if !strings.Contains(body, tt.wantBody) {
				t.Errorf("body %s does not contain %s", body, tt.wantBody)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}

	resp, _ := get(t, ts, "/api/verify?username=busy")
	if resp.Header.Get("Retry-After") != "7" {
		t.Errorf("Retry-After = %q, want 7", resp.Header.Get("Retry-After"))
	}
}

func TestAPIVerifyClientLimit(t *testing.T) {
	ts := newTestServerWith(t, func(c *Config) {
		c.VerifyLimit = ratelimit.Limit{MaxRequests: 2, Window: time.Hour}
	})

	for i := 0; i < 2; i++ {
		if resp, body := get(t, ts, "/api/verify?username=builderman"); resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d = %d %s", i+1, resp.StatusCode, body)
		}
	}
	resp, body := get(t, ts, "/api/verify?username=builderman")
	if resp.StatusCode != http.StatusTooManyRequests || !strings.Contains(body, "client_rate_limited") {
		t.Fatalf("over budget = %d %s", resp.StatusCode, body)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	// The index page shares the budget.
	resp, body = get(t, ts, "/?username=builderman")
	if resp.StatusCode != http.StatusTooManyRequests || !strings.Contains(body, "rate limit exceeded") {
		t.Errorf("index over budget = %d", resp.StatusCode)
	}

	// Non-verifying endpoints are unaffected.
	if resp, _ := get(t, ts, "/api/reference"); resp.StatusCode != http.StatusOK {
		t.Errorf("reference = %d", resp.StatusCode)
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"empty username", vetting.ErrEmptyUsername, http.StatusBadRequest},
		{"not found", fmt.Errorf("fetch profile %q: %w", "ghost", fetcher.ErrNotFound), http.StatusNotFound},
		{"upstream rate limited", &fetcher.RateLimitedError{Op: "resolve"}, http.StatusTooManyRequests},
		{"transient", &fetcher.TransientError{Op: "groups", Status: 503}, http.StatusBadGateway},
		{"request timeout", fmt.Errorf("fetch profile %q: %w", "slow", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorStatus(tt.err); got != tt.want {
				t.Errorf("errorStatus = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAPIVerifyTimeout(t *testing.T) {
	ts := newTestServerWith(t, func(c *Config) {
		c.RequestTimeout = 50 * time.Millisecond
	})
	resp, body := get(t, ts, "/api/verify?username=slow")
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504 (%s)", resp.StatusCode, body)
	}
}

func TestAPIHistory(t *testing.T) {
	ts := newTestServer(t)
	get(t, ts, "/api/verify?username=builderman")
	get(t, ts, "/api/verify?username=newbie")

	resp, body := get(t, ts, "/api/history?limit=1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var recs []history.Record
	if err := json.Unmarshal([]byte(body), &recs); err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}

	resp, _ = get(t, ts, "/api/history?limit=abc")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", resp.StatusCode)
	}
}

func TestAPIReference(t *testing.T) {
	ts := newTestServer(t)
	_, body := get(t, ts, "/api/reference")
	var info vetting.ReferenceInfo
	if err := json.Unmarshal([]byte(body), &info); err != nil {
		t.Fatal(err)
	}
	if info.Hash != "sha256:dash" || info.Thresholds.MinFriends != 30 || len(info.Rules) == 0 {
		t.Errorf("unexpected reference: %+v", info)
	}
}

func TestIndexPage(t *testing.T) {
	ts := newTestServer(t)

	resp, body := get(t, ts, "/")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "<form") {
		t.Fatalf("index = %d", resp.StatusCode)
	}

	_, body = get(t, ts, "/?username=newbie")
	for _, want := range []string{"FLAGGED", "min_age", "Review", "Recent"} {
		if !strings.Contains(body, want) {
			t.Errorf("result page missing %q", want)
		}
	}

	resp, body = get(t, ts, "/?username=ghost")
	if resp.StatusCode != http.StatusNotFound || !strings.Contains(body, "account not found") {
		t.Errorf("unknown account page = %d", resp.StatusCode)
	}
}

func TestIndexEscapesInput(t *testing.T) {
	ts := newTestServer(t)
	_, body := get(t, ts, "/?username=%3Cscript%3E")
	if strings.Contains(body, "<script>") {
		t.Error("username was rendered unescaped")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	get(t, ts, "/api/verify?username=builderman")

	_, body := get(t, ts, "/metrics")
	if !strings.Contains(body, `vetter_verifications_total{status="VERIFIED"} 1`) {
		t.Errorf("metrics output missing verification counter:\n%s", body)
	}
}

func TestClientIP(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.168.1.1"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		trusted []netip.Prefix
		headers map[string]string
		remote  string
		want    string
	}{
		{"no proxies ignores forwarded", nil, map[string]string{"X-Forwarded-For": "6.6.6.6"}, "1.2.3.4:80", "1.2.3.4"},
		{"no proxies ignores real ip", nil, map[string]string{"X-Real-IP": "6.6.6.6"}, "1.2.3.4:80", "1.2.3.4"},
		{"untrusted peer ignores forwarded", trusted, map[string]string{"X-Forwarded-For": "6.6.6.6"}, "1.2.3.4:80", "1.2.3.4"},
		{"trusted peer uses rightmost untrusted hop", trusted, map[string]string{"X-Forwarded-For": "6.6.6.6, 5.5.5.5, 10.1.1.1"}, "192.168.1.1:80", "5.5.5.5"},
		{"trusted peer falls back to real ip", trusted, map[string]string{"X-Real-IP": "5.5.5.5"}, "10.0.0.2:80", "5.5.5.5"},
		{"trusted peer without headers", trusted, nil, "10.0.0.2:80", "10.0.0.2"},
		{"no port", nil, nil, "1.2.3.4", "1.2.3.4"},
		{"ipv6", nil, nil, "[::1]:80", "::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := clientIP(r, tt.trusted); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseTrustedProxiesRejectsGarbage(t *testing.T) {
	for _, v := range []string{"", "proxy.local", "10.0.0.0/99"} {
		if _, err := ParseTrustedProxies([]string{v}); err == nil {
			t.Errorf("accepted %q", v)
		}
	}
}

func TestClientLimitIgnoresRotatedForwardedFor(t *testing.T) {
	ts := newTestServerWith(t, func(c *Config) {
		c.VerifyLimit = ratelimit.Limit{MaxRequests: 1, Window: time.Minute}
	})

	var statuses []int
	for i := 0; i < 5; i++ {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/verify?username=builderman", nil)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
	}
	if statuses[0] != http.StatusOK {
		t.Fatalf("first request = %d", statuses[0])
	}
	for i, st := range statuses[1:] {
		if st != http.StatusTooManyRequests {
			t.Errorf("request %d with rotated header = %d, want 429", i+2, st)
		}
	}
}
