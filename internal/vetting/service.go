// Package vetting runs one verification end to end: it pins a reference
// snapshot, merges the optional remote denylist, fetches the profile,
// evaluates the rules and records the result.
package vetting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/vetter/internal/alert"
	"github.com/ppiankov/vetter/internal/audit"
	"github.com/ppiankov/vetter/internal/engine"
	"github.com/ppiankov/vetter/internal/fetcher"
	"github.com/ppiankov/vetter/internal/history"
	"github.com/ppiankov/vetter/internal/metrics"
	"github.com/ppiankov/vetter/internal/model"
	"github.com/ppiankov/vetter/internal/refdata"
	"github.com/ppiankov/vetter/internal/remote"
	"github.com/ppiankov/vetter/internal/report"
	"github.com/ppiankov/vetter/internal/rules"
)

// ErrEmptyUsername is returned when Verify is called without a username.
var ErrEmptyUsername = errors.New("username is required")

// AuditRecorder appends verification entries to an audit trail.
type AuditRecorder interface {
	Record(audit.Entry) error
}

// HistoryStore persists verification records. Last returns nil when the
// account has never been checked.
type HistoryStore interface {
	Save(ctx context.Context, r history.Record) (int64, error)
	Last(ctx context.Context, userID int64) (*history.Record, error)
}

// AvatarResolver looks up the avatar image for an account.
type AvatarResolver interface {
	AvatarURL(ctx context.Context, userID int64) (string, error)
}

// Notifier delivers verdict alerts. Implementations must not block.
type Notifier interface {
	Dispatch(ctx context.Context, e alert.Event)
}

// Config wires the collaborators of a Service. Holder and Fetcher are
// required; everything else is optional.
type Config struct {
	Holder  *refdata.Holder
	Fetcher fetcher.Fetcher
	Remote  remote.Source
	Avatars AvatarResolver
	Audit   AuditRecorder
	History HistoryStore
	Alerts  Notifier
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
	Now     func() time.Time
}

// Options controls a single verification.
type Options struct {
	// Remote merges the remote CSV denylist into the user denylist.
	Remote bool
	// RemoteURL overrides the URL from the reference file.
	RemoteURL string
	// Parallel evaluates the rules concurrently.
	Parallel bool
	// Rules defaults to rules.Default().
	Rules rules.Set
	// Source names the surface that asked, e.g. "cli" or "dashboard".
	Source string
}

// Service verifies accounts against the current reference data.
type Service struct {
	cfg Config
}

// New validates cfg and returns a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Holder == nil || cfg.Holder.Load() == nil {
		return nil, engine.ErrNoReference
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("vetting: fetcher is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{cfg: cfg}, nil
}

// Holder returns the reference holder the service reads from.
func (s *Service) Holder() *refdata.Holder {
	return s.cfg.Holder
}

// Verify runs a full verification of username.
// Fetch errors are returned as is (wrapped) and never reach the engine.
// Audit and history failures are logged; they do not change the verdict.
func (s *Service) Verify(ctx context.Context, username string, opts Options) (report.Report, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return report.Report{}, ErrEmptyUsername
	}
	start := s.cfg.Now()
	log := s.cfg.Logger.With().Str("username", username).Logger()

	// Pin one snapshot for the whole run so a concurrent reload cannot
	// change the lists halfway through.
	rd, refHash := s.cfg.Holder.Snapshot()
	if rd == nil {
		return report.Report{}, engine.ErrNoReference
	}

	var remoteStatus *report.RemoteStatus
	if opts.Remote {
		url := opts.RemoteURL
		if url == "" {
			url = rd.RemoteDenylistURL()
		}
		if url != "" {
			ids, ok := remote.LoadOrEmpty(ctx, s.cfg.Remote, url, log)
			s.cfg.Metrics.IncrementRemoteLoad(ok)
			remoteStatus = &report.RemoteStatus{URL: url, Loaded: ok, IDs: len(ids)}
			rd = rd.WithRemoteUsers(ids)
		} else {
			log.Warn().Msg("remote denylist requested but no URL configured")
		}
	}

	p, err := s.cfg.Fetcher.FetchProfile(ctx, username)
	if err != nil {
		return report.Report{}, fmt.Errorf("fetch profile %q: %w", username, err)
	}

	rs := opts.Rules
	if len(rs) == 0 {
		rs = rules.Default()
	}
	var v model.Verdict
	if opts.Parallel {
		v, err = engine.VerifyParallel(ctx, p, rd, rs)
	} else {
		v, err = engine.Verify(p, rd, rs)
	}
	if err != nil {
		return report.Report{}, fmt.Errorf("verify %q: %w", username, err)
	}

	now := s.cfg.Now()
	s.observe(v, now.Sub(start))
	log.Info().
		Int64("user_id", p.UserID).
		Str("status", string(v.Status)).
		Strs("rules", v.RuleIDs()).
		Msg("verification complete")

	r := report.New(p, v, rd, refHash, now)
	r.Remote = remoteStatus
	r.Previous = s.previous(ctx, log, p.UserID)
	if s.cfg.Avatars != nil {
		if url, err := s.cfg.Avatars.AvatarURL(ctx, p.UserID); err != nil {
			log.Debug().Err(err).Msg("avatar lookup failed")
		} else {
			r.AvatarURL = url
		}
	}

	s.record(ctx, log, p, v, refHash, now, opts)
	if s.cfg.Alerts != nil {
		s.cfg.Alerts.Dispatch(ctx, alert.NewEvent(r, opts.Source))
	}
	return r, nil
}

func (s *Service) observe(v model.Verdict, d time.Duration) {
	m := s.cfg.Metrics
	m.IncrementVerification(string(v.Status))
	for _, f := range v.Flags {
		m.IncrementFlag(f.RuleID, string(f.Severity))
	}
	m.ObserveVerifyLatency(d)
}

// previous must run before record, otherwise it returns the current run.
func (s *Service) previous(ctx context.Context, log zerolog.Logger, userID int64) *report.PreviousCheck {
	if s.cfg.History == nil || userID <= 0 {
		return nil
	}
	last, err := s.cfg.History.Last(ctx, userID)
	if err != nil {
		log.Debug().Err(err).Msg("history lookup failed")
		return nil
	}
	if last == nil {
		return nil
	}
	return &report.PreviousCheck{Status: last.Status, CheckedAt: last.CheckedAt, RefHash: last.RefHash}
}

func (s *Service) record(ctx context.Context, log zerolog.Logger, p *model.Profile, v model.Verdict, refHash string, at time.Time, opts Options) {
	if s.cfg.Audit != nil {
		e := audit.NewEntry(p, v, refHash, at)
		e.Remote = opts.Remote
		e.Source = opts.Source
		if err := s.cfg.Audit.Record(e); err != nil {
			log.Error().Err(err).Msg("audit record failed")
		}
	}
	if s.cfg.History != nil {
		if _, err := s.cfg.History.Save(ctx, history.NewRecord(p, v, refHash, at)); err != nil {
			log.Error().Err(err).Msg("history save failed")
		}
	}
}

// ReferenceInfo describes the snapshot currently published by the holder.
type ReferenceInfo struct {
	Hash       string             `json:"hash"`
	Lists      map[string]int     `json:"lists"`
	Thresholds refdata.Thresholds `json:"thresholds"`
	RemoteURL  string             `json:"remote_denylist_url,omitempty"`
	Rules      []string           `json:"rules"`
}

// Reference summarizes the current reference snapshot.
func (s *Service) Reference() ReferenceInfo {
	rd, hash := s.cfg.Holder.Snapshot()
	return ReferenceInfo{
		Hash:       hash,
		Lists:      rd.Summary(),
		Thresholds: rd.Thresholds(),
		RemoteURL:  rd.RemoteDenylistURL(),
		Rules:      rules.Default().IDs(),
	}
}
