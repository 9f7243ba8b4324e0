package audit

import (
	"time"

	"github.com/ppiankov/vetter/internal/model"
)

// TimestampFormat is the layout used in audit entry timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// FlagRecord is one triggered rule as written to the log.
type FlagRecord struct {
	RuleID   string `json:"rule_id"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Entry is one line in the hash-chained JSONL audit log.
// All fields are structs or slices of structs (no map[string]any) so
// json.Marshal field order is deterministic and hashes are reproducible.
type Entry struct {
	Timestamp string       `json:"ts"`
	UserID    int64        `json:"user_id"`
	Username  string       `json:"username"`
	Status    string       `json:"status"`
	Flags     []FlagRecord `json:"flags"`
	RefHash   string       `json:"ref_hash"`
	Remote    bool         `json:"remote,omitempty"`
	Source    string       `json:"source,omitempty"`
	PrevHash  string       `json:"prev_hash"`
}

// NewEntry builds an entry for one finished verification.
func NewEntry(p *model.Profile, v model.Verdict, refHash string, at time.Time) Entry {
	flags := make([]FlagRecord, len(v.Flags))
	for i, f := range v.Flags {
		flags[i] = FlagRecord{RuleID: f.RuleID, Severity: string(f.Severity), Message: f.Message}
	}
	e := Entry{
		Status:  string(v.Status),
		Flags:   flags,
		RefHash: refHash,
	}
	if !at.IsZero() {
		e.Timestamp = at.UTC().Format(TimestampFormat)
	}
	if p != nil {
		e.UserID = p.UserID
		e.Username = p.Username
	}
	return e
}
