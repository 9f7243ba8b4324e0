package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Filter selects entries from the log. Zero fields match everything.
type Filter struct {
	UserID   int64
	Username string // case-insensitive
	Status   string
	From     time.Time
	To       time.Time
}

func (f Filter) match(e Entry) bool {
	if f.UserID != 0 && e.UserID != f.UserID {
		return false
	}
	if f.Username != "" && !strings.EqualFold(e.Username, f.Username) {
		return false
	}
	if f.Status != "" && !strings.EqualFold(e.Status, f.Status) {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	ts, err := time.Parse(TimestampFormat, e.Timestamp)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ts.After(f.To) {
		return false
	}
	return true
}

// Summary counts outcomes across a set of entries.
type Summary struct {
	Total          int    `json:"total"`
	Verified       int    `json:"verified"`
	Flagged        int    `json:"flagged"`
	Dismissed      int    `json:"dismissed"`
	FirstTimestamp string `json:"first_timestamp,omitempty"`
	LastTimestamp  string `json:"last_timestamp,omitempty"`
}

// Result holds the filtered entries and their summary.
type Result struct {
	Entries []Entry `json:"entries"`
	Summary Summary `json:"summary"`
}

// ReadAll returns every well-formed entry in the log. Malformed lines are
// skipped; use Verify to detect them.
func ReadAll(path string) ([]Entry, error) {
	res, err := Query(path, Filter{})
	if err != nil {
		return nil, err
	}
	return res.Entries, nil
}

// Query reads the log and returns the entries matching f in file order.
func Query(path string, f Filter) (*Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	res := &Result{Entries: []Entry{}}
	sc := newScanner(file)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		if !f.match(e) {
			continue
		}
		res.Entries = append(res.Entries, e)
		res.Summary.add(e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return res, nil
}

func (s *Summary) add(e Entry) {
	s.Total++
	switch strings.ToUpper(e.Status) {
	case "VERIFIED":
		s.Verified++
	case "FLAGGED":
		s.Flagged++
	case "DISMISSED":
		s.Dismissed++
	}
	if s.FirstTimestamp == "" {
		s.FirstTimestamp = e.Timestamp
	}
	s.LastTimestamp = e.Timestamp
}

// Tail returns a result holding only the last n entries, with the summary
// recomputed for them. n <= 0 or n >= len(Entries) returns r unchanged.
func (r *Result) Tail(n int) *Result {
	if n <= 0 || n >= len(r.Entries) {
		return r
	}
	out := &Result{Entries: r.Entries[len(r.Entries)-n:]}
	for _, e := range out.Entries {
		out.Summary.add(e)
	}
	return out
}
