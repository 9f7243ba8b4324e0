package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/vetter/internal/audit"
)

const testReference = `
trusted_owner_ids: []
trusted_group_ids: []
denylisted_group_ids: []
denylisted_user_ids: [666]
denylisted_badge_ids: []
banned_username_words: []
impersonation_names: []
thresholds:
  min_badges: 2
  min_non_trusted_groups: 1
  min_friends: 1
`

// fakePlatform serves the handful of platform endpoints the fetcher uses.
// "builderman" is a well-established account, "raider" is denylisted.
func fakePlatform(t *testing.T) *httptest.Server {
	t.Helper()
	ids := map[string]int64{"builderman": 156, "raider": 666}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/usernames/users", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Usernames []string `json:"usernames"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		data := []map[string]any{}
		if id, ok := ids[req.Usernames[0]]; ok {
			data = append(data, map[string]any{"id": id, "name": req.Usernames[0]})
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	})
	mux.HandleFunc("GET /v1/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		name := "builderman"
		if r.PathValue("id") == "666" {
			name = "raider"
		}
		fmt.Fprintf(w, `{"id":%s,"name":%q,"displayName":%q,"created":"2020-01-01T00:00:00.000Z"}`, r.PathValue("id"), name, name)
	})
	mux.HandleFunc("GET /v1/users/{id}/friends/count", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"count":12}`))
	})
	mux.HandleFunc("GET /v1/users/{id}/groups/roles", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"group":{"id":10,"name":"Builders","owner":{"userId":1}},"role":{"name":"Member"}}]}`))
	})
	mux.HandleFunc("GET /v1/users/{id}/badges", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":1},{"id":2},{"id":3}],"nextPageCursor":""}`))
	})
	mux.HandleFunc("GET /v1/users/avatar-headshot", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func setupVerify(t *testing.T) (home string, platform *httptest.Server) {
	t.Helper()
	home = setHome(t)
	referencePath = filepath.Join(home, "reference.yaml")
	if err := os.WriteFile(referencePath, []byte(testReference), 0o600); err != nil {
		t.Fatal(err)
	}
	platform = fakePlatform(t)

	logLevel, logFormat = "error", "json"
	verifyRemote, verifyRemoteURL = false, ""
	verifyFormat, verifyReportDir = "text", ""
	verifyAuditLog, verifyHistoryDB = "", ""
	verifyRules, verifySkipRules = nil, nil
	verifyParallel, verifyNoCache, verifyNoRecord = false, true, false
	verifyEndpoint = platform.URL
	alertWebhooks, alertFormat, alertOn = nil, "generic", []string{"DISMISSED", "FLAGGED"}
	t.Cleanup(func() {
		referencePath = ""
		verifyEndpoint = ""
	})
	return home, platform
}

func TestRunVerifyVerified(t *testing.T) {
	home, _ := setupVerify(t)
	verifyReportDir = filepath.Join(home, "reports")

	cmd, out := testCmd()
	if err := runVerify(cmd, []string{"builderman"}); err != nil {
		t.Fatalf("runVerify: %v\n%s", err, out.String())
	}
	for _, want := range []string{"Account: builderman (156)", "Status: VERIFIED", "No rules triggered.", "Report written to"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}

	reports, _ := filepath.Glob(filepath.Join(verifyReportDir, "report_156_*.json"))
	if len(reports) != 1 {
		t.Errorf("expected one report file, got %v", reports)
	}
	entries, err := audit.ReadAll(filepath.Join(home, ".vetter", "audit.jsonl"))
	if err != nil || len(entries) != 1 || entries[0].Source != "cli" {
		t.Errorf("audit entries = %+v, %v", entries, err)
	}
	if _, err := os.Stat(filepath.Join(home, ".vetter", "history.db")); err != nil {
		t.Errorf("history database not created: %v", err)
	}
}

func TestRunVerifyDismissedExitCode(t *testing.T) {
	setupVerify(t)
	verifyFormat = "json"

	cmd, out := testCmd()
	err := runVerify(cmd, []string{"raider"})
	var ee *exitError
	if !errors.As(err, &ee) || ee.code != 2 {
		t.Fatalf("expected exit code 2, got %v", err)
	}

	var rep struct {
		Verdict struct {
			Status string `json:"status"`
		} `json:"verdict"`
	}
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatalf("json output invalid: %v\n%s", err, out.String())
	}
	if rep.Verdict.Status != "DISMISSED" {
		t.Errorf("status = %s", rep.Verdict.Status)
	}
}

func TestRunVerifyAlertWebhook(t *testing.T) {
	setupVerify(t)
	verifyNoRecord = true

	received := make(chan map[string]any, 4)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		received <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()
	alertWebhooks = []string{hook.URL}
	alertOn = []string{"DISMISSED"}

	cmd, _ := testCmd()
	if err := runVerify(cmd, []string{"builderman"}); err != nil {
		t.Fatal(err)
	}
	_ = runVerify(cmd, []string{"raider"})

	// runVerify waits for deliveries before returning.
	if len(received) != 1 {
		t.Fatalf("webhook calls = %d, want 1", len(received))
	}
	body := <-received
	if body["username"] != "raider" || body["status"] != "DISMISSED" || body["source"] != "cli" {
		t.Errorf("unexpected payload: %v", body)
	}
}

func TestRunVerifyErrors(t *testing.T) {
	setupVerify(t)
	verifyNoRecord = true
	cmd, _ := testCmd()

	if err := runVerify(cmd, []string{"ghost"}); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got %v", err)
	}

	verifyFormat = "xml"
	if err := runVerify(cmd, []string{"builderman"}); err == nil {
		t.Error("expected error for unknown format")
	}
	verifyFormat = "text"

	verifyRules = []string{"no_such_rule"}
	if err := runVerify(cmd, []string{"builderman"}); err == nil {
		t.Error("expected error for unknown rule")
	}
	verifyRules = nil

	referencePath = filepath.Join(t.TempDir(), "missing.yaml")
	if err := runVerify(cmd, []string{"builderman"}); err == nil || !strings.Contains(err.Error(), "vetter init") {
		t.Errorf("expected missing reference error, got %v", err)
	}
}

func TestRuleSet(t *testing.T) {
	rs, err := ruleSet([]string{"min_age", "denylisted_user"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ids := rs.IDs(); len(ids) != 2 || ids[0] != "denylisted_user" {
		t.Errorf("rules not in canonical order: %v", ids)
	}

	rs, err = ruleSet(nil, []string{"data_incomplete"})
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range rs.IDs() {
		if id == "data_incomplete" {
			t.Error("skipped rule still present")
		}
	}

	if _, err := ruleSet(nil, []string{"bogus"}); err == nil {
		t.Error("expected error for unknown skipped rule")
	}
	if _, err := ruleSet([]string{"min_age"}, []string{"min_age"}); err == nil {
		t.Error("expected error for an empty rule set")
	}
}

func TestRunConfig(t *testing.T) {
	setupVerify(t)
	cmd, out := testCmd()

	configFormat = "text"
	if err := runConfig(cmd, nil); err != nil {
		t.Fatalf("runConfig: %v", err)
	}
	for _, want := range []string{"Hash:      sha256:", "denylisted_user_ids", "min_badges", " 1. denylisted_user"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("config output missing %q:\n%s", want, out.String())
		}
	}

	os.WriteFile(referencePath, []byte("denylisted_user_ids: [1]\n"), 0o600)
	if err := runConfig(cmd, nil); err == nil {
		t.Error("expected error for reference file with missing lists")
	}
}

func TestRunHistoryAndAudit(t *testing.T) {
	home, _ := setupVerify(t)
	cmd, out := testCmd()
	runVerify(cmd, []string{"builderman"})
	runVerify(cmd, []string{"raider"})

	out.Reset()
	historyDB, historyUserID, historyLimit, historyFormat = "", 0, 20, "text"
	if err := runHistory(cmd, nil); err != nil {
		t.Fatalf("runHistory: %v", err)
	}
	if !strings.Contains(out.String(), "raider") || !strings.Contains(out.String(), "denylisted_user") {
		t.Errorf("history output:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "All time: 2 total | 1 verified, 0 flagged, 1 dismissed") {
		t.Errorf("history totals missing:\n%s", out.String())
	}

	// Totals cover the whole store even when the listing is limited.
	out.Reset()
	historyLimit = 1
	if err := runHistory(cmd, nil); err != nil {
		t.Fatalf("runHistory: %v", err)
	}
	if !strings.Contains(out.String(), "All time: 2 total") {
		t.Errorf("limited history totals:\n%s", out.String())
	}
	historyLimit = 20

	out.Reset()
	auditPathArg := []string{filepath.Join(home, ".vetter", "audit.jsonl")}
	if err := runAuditVerify(cmd, auditPathArg); err != nil {
		t.Fatalf("audit verify: %v", err)
	}
	if !strings.Contains(out.String(), "OK: 2 entries verified") {
		t.Errorf("audit verify output: %s", out.String())
	}

	out.Reset()
	auditUserID, auditUsername, auditStatus, auditSince, auditLines, auditFormat = 0, "", "DISMISSED", 0, 0, "text"
	if err := runAuditShow(cmd, auditPathArg); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Summary: 1 total | 0 verified, 0 flagged, 1 dismissed") {
		t.Errorf("audit show output:\n%s", out.String())
	}
	auditStatus = ""
}

func TestDataPath(t *testing.T) {
	home := setHome(t)
	tests := []struct {
		flag, want string
	}{
		{"", filepath.Join(home, ".vetter", "audit.jsonl")},
		{"off", ""},
		{"/tmp/x.jsonl", "/tmp/x.jsonl"},
	}
	for _, tt := range tests {
		got, err := dataPath(tt.flag, "audit.jsonl")
		if err != nil || got != tt.want {
			t.Errorf("dataPath(%q) = %q, %v; want %q", tt.flag, got, err, tt.want)
		}
	}
}
