// Package remote loads a supplementary user denylist from a published
// spreadsheet export. The source is optional: callers use LoadOrEmpty so a
// failed load never blocks a verification.
package remote

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/ppiankov/vetter/internal/logging"
)

// DefaultAllowedHost is the only host accepted unless overridden.
const DefaultAllowedHost = "docs.google.com"

// DefaultMaxBytes caps the size of a downloaded sheet.
const DefaultMaxBytes = 4 << 20

// Source loads remote denylist ids.
type Source interface {
	LoadRemoteIDs(ctx context.Context, rawURL string) (map[int64]struct{}, error)
}

// LoadError describes why a remote list could not be used.
type LoadError struct {
	URL    string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote denylist %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("remote denylist %s: %s", e.URL, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Options configures a Loader.
type Options struct {
	AllowedHosts []string
	Timeout      time.Duration
	RetryMax     int
	MaxBytes     int64
	// HTTPClient replaces the underlying transport client (tests use the
	// httptest TLS client).
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// DefaultOptions returns options matching the public sheet export setup.
func DefaultOptions() Options {
	return Options{
		AllowedHosts: []string{DefaultAllowedHost},
		Timeout:      6 * time.Second,
		RetryMax:     3,
		MaxBytes:     DefaultMaxBytes,
		Logger:       zerolog.Nop(),
	}
}

// Loader fetches CSV exports over HTTPS from an allowed host.
type Loader struct {
	client   *retryablehttp.Client
	allowed  map[string]bool
	maxBytes int64
}

// NewLoader builds a Loader from opts. Zero fields fall back to DefaultOptions.
func NewLoader(opts Options) *Loader {
	def := DefaultOptions()
	if len(opts.AllowedHosts) == 0 {
		opts.AllowedHosts = def.AllowedHosts
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = def.MaxBytes
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}

	c := retryablehttp.NewClient()
	if opts.HTTPClient != nil {
		c.HTTPClient = opts.HTTPClient
	}
	c.HTTPClient.Timeout = opts.Timeout
	c.RetryMax = opts.RetryMax
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.Logger = logging.RetryLogger{Logger: opts.Logger}
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler

	allowed := make(map[string]bool, len(opts.AllowedHosts))
	for _, h := range opts.AllowedHosts {
		allowed[strings.ToLower(strings.TrimSpace(h))] = true
	}
	return &Loader{client: c, allowed: allowed, maxBytes: opts.MaxBytes}
}

// CheckURL rejects anything that is not an https URL on an allowed host.
func (l *Loader) CheckURL(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return &LoadError{URL: rawURL, Reason: "invalid url", Err: err}
	}
	if u.Scheme != "https" {
		return &LoadError{URL: rawURL, Reason: fmt.Sprintf("scheme %q not allowed (https only)", u.Scheme)}
	}
	if !l.allowed[strings.ToLower(u.Hostname())] {
		return &LoadError{URL: rawURL, Reason: fmt.Sprintf("host %q not allowed", u.Hostname())}
	}
	return nil
}

// LoadRemoteIDs downloads rawURL and returns every all-digit cell as an id.
// An empty URL yields an empty set.
func (l *Loader) LoadRemoteIDs(ctx context.Context, rawURL string) (map[int64]struct{}, error) {
	ids := make(map[int64]struct{})
	if strings.TrimSpace(rawURL) == "" {
		return ids, nil
	}
	if err := l.CheckURL(rawURL); err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &LoadError{URL: rawURL, Reason: "build request", Err: err}
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := l.client.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, &LoadError{URL: rawURL, Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &LoadError{URL: rawURL, Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	body := io.LimitReader(resp.Body, l.maxBytes+1)
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &LoadError{URL: rawURL, Reason: "read body", Err: err}
	}
	if int64(len(data)) > l.maxBytes {
		return nil, &LoadError{URL: rawURL, Reason: fmt.Sprintf("body exceeds %d bytes", l.maxBytes)}
	}

	if err := ParseIDs(strings.NewReader(string(data)), ids); err != nil {
		return nil, &LoadError{URL: rawURL, Reason: "parse csv", Err: err}
	}
	return ids, nil
}

// ParseIDs reads CSV from r and adds every cell made only of ASCII digits
// to ids. Other cells are ignored.
func ParseIDs(r io.Reader, ids map[int64]struct{}) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, cell := range row {
			if id, ok := parseID(cell); ok {
				ids[id] = struct{}{}
			}
		}
	}
}

func parseID(cell string) (int64, bool) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// LoadOrEmpty loads ids from src and degrades any failure to an empty set.
// ok is false when the load failed; the failure is logged as a warning.
func LoadOrEmpty(ctx context.Context, src Source, rawURL string, logger zerolog.Logger) (ids map[int64]struct{}, ok bool) {
	if src == nil || strings.TrimSpace(rawURL) == "" {
		return map[int64]struct{}{}, true
	}
	ids, err := src.LoadRemoteIDs(ctx, rawURL)
	if err != nil {
		logger.Warn().Err(err).Str("url", rawURL).Msg("remote denylist unavailable, using local lists only")
		return map[int64]struct{}{}, false
	}
	logger.Info().Int("ids", len(ids)).Str("url", rawURL).Msg("remote denylist loaded")
	return ids, true
}
