// Package fetcher builds profile snapshots from the platform's public REST
// API. It owns every network concern of a verification: retries, timeouts,
// pagination limits and error classification. The engine never sees these.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
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
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/vetter/internal/logging"
	"github.com/ppiankov/vetter/internal/metrics"
	"github.com/ppiankov/vetter/internal/model"
)

// Fetcher produces a complete profile snapshot for a username.
type Fetcher interface {
	FetchProfile(ctx context.Context, username string) (*model.Profile, error)
}

const (
	badgePageSize = 100
	maxBodyBytes  = 8 << 20
)

// Endpoints holds the base URL of each platform API.
type Endpoints struct {
	Users      string
	Friends    string
	Groups     string
	Badges     string
	Thumbnails string
}

// DefaultEndpoints returns the public platform hosts.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Users:      "https://users.roblox.com",
		Friends:    "https://friends.roblox.com",
		Groups:     "https://groups.roblox.com",
		Badges:     "https://badges.roblox.com",
		Thumbnails: "https://thumbnails.roblox.com",
	}
}

// SingleHost points every API at base. Used with test servers.
func SingleHost(base string) Endpoints {
	base = strings.TrimRight(base, "/")
	return Endpoints{Users: base, Friends: base, Groups: base, Badges: base, Thumbnails: base}
}

// Limits bounds how much badge history is read.
type Limits struct {
	// MinBadges stops the badge count once reached.
	MinBadges int
	// OldestBadges is the size of the oldest-badge sample.
	OldestBadges int
	// MaxPages caps each paginated walk.
	MaxPages int
}

// DefaultLimits returns the stock pagination limits.
func DefaultLimits() Limits {
	return Limits{MinBadges: 300, OldestBadges: 90, MaxPages: 10}
}

// Options configures a Client.
type Options struct {
	Endpoints Endpoints
	Timeout   time.Duration
	RetryMax  int
	UserAgent string

	// Limits is consulted on every fetch so reloaded thresholds apply
	// without rebuilding the client. Nil means DefaultLimits.
	Limits func() Limits

	// Now is the clock used for account age. Nil means time.Now.
	Now func() time.Time

	HTTPClient *http.Client
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
}

// Client talks to the platform API.
type Client struct {
	http      *retryablehttp.Client
	endpoints Endpoints
	userAgent string
	limits    func() Limits
	now       func() time.Time
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

var _ Fetcher = (*Client)(nil)

// NewClient builds a Client. Zero option fields take sensible defaults.
func NewClient(opts Options) *Client {
	if opts.Endpoints == (Endpoints{}) {
		opts.Endpoints = DefaultEndpoints()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 6 * time.Second
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "vetter/1.0"
	}
	if opts.Limits == nil {
		opts.Limits = DefaultLimits
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	rc := retryablehttp.NewClient()
	if opts.HTTPClient != nil {
		rc.HTTPClient = opts.HTTPClient
	}
	rc.HTTPClient.Timeout = opts.Timeout
	rc.RetryMax = opts.RetryMax
	rc.RetryWaitMin = 300 * time.Millisecond
	rc.RetryWaitMax = 3 * time.Second
	rc.Logger = logging.RetryLogger{Logger: opts.Logger}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		http:      rc,
		endpoints: opts.Endpoints,
		userAgent: opts.UserAgent,
		limits:    opts.Limits,
		now:       opts.Now,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

// FetchProfile resolves username and gathers everything the rules need.
// A snapshot is returned only when every call succeeded.
func (c *Client) FetchProfile(ctx context.Context, username string) (*model.Profile, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("resolve: %w", ErrNotFound)
	}

	id, err := c.resolve(ctx, username)
	if err != nil {
		return nil, err
	}

	lim := c.limits()
	if lim.MaxPages <= 0 {
		lim.MaxPages = DefaultLimits().MaxPages
	}

	var (
		info        userInfo
		friends     int
		groups      []model.Group
		badgeCount  int
		countDone   bool
		oldest      []int64
		sampled     bool
		oldestValid bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, err = c.userInfo(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		friends, err = c.friendCount(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		groups, err = c.groups(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		badgeCount, countDone, err = c.countBadges(gctx, id, lim.MinBadges, lim.MaxPages)
		return err
	})
	g.Go(func() error {
		var err error
		oldest, sampled, oldestValid, err = c.oldestBadges(gctx, id, lim.OldestBadges, lim.MaxPages)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := c.now().UTC()
	p := &model.Profile{
		UserID:         id,
		Username:       info.Name,
		DisplayName:    info.DisplayName,
		AccountAgeDays: ageDays(info.Created, now),
		FriendCount:    friends,
		Groups:         groups,
		BadgeCount:     badgeCount,
		BadgeIDs:       oldest,
		BadgesSampled:  sampled,
		DataComplete:   countDone && oldestValid,
		Created:        info.Created,
		FetchedAt:      now,
	}
	if p.Username == "" {
		p.Username = username
	}
	if !p.DataComplete {
		c.logger.Warn().Int64("user_id", id).Msg("badge pagination stopped early; profile marked incomplete")
	}
	if err := p.Validate(); err != nil {
		return nil, &ResponseError{Op: "profile", Status: http.StatusOK, Err: err}
	}
	return p, nil
}

// AvatarURL returns the headshot image URL, or "" when the platform has none.
func (c *Client) AvatarURL(ctx context.Context, userID int64) (string, error) {
	q := url.Values{}
	q.Set("userIds", strconv.FormatInt(userID, 10))
	q.Set("size", "150x150")
	q.Set("format", "Png")
	q.Set("isCircular", "false")

	var out struct {
		Data []struct {
			ImageURL string `json:"imageUrl"`
		} `json:"data"`
	}
	if err := c.do(ctx, "avatar", http.MethodGet, c.endpoints.Thumbnails+"/v1/users/avatar-headshot?"+q.Encode(), nil, &out); err != nil {
		return "", err
	}
	if len(out.Data) == 0 {
		return "", nil
	}
	return out.Data[0].ImageURL, nil
}

func (c *Client) resolve(ctx context.Context, username string) (int64, error) {
	body := map[string]any{"usernames": []string{username}, "excludeBannedUsers": false}
	var out struct {
		Data []struct {
			ID int64 `json:"id"`
		} `json:"data"`
	}
	if err := c.do(ctx, "resolve", http.MethodPost, c.endpoints.Users+"/v1/usernames/users", body, &out); err != nil {
		return 0, err
	}
	if len(out.Data) == 0 || out.Data[0].ID <= 0 {
		return 0, fmt.Errorf("resolve %q: %w", username, ErrNotFound)
	}
	return out.Data[0].ID, nil
}

type userInfo struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	Created     time.Time `json:"created"`
}

func (c *Client) userInfo(ctx context.Context, id int64) (userInfo, error) {
	var info userInfo
	if err := c.do(ctx, "user", http.MethodGet, fmt.Sprintf("%s/v1/users/%d", c.endpoints.Users, id), nil, &info); err != nil {
		return userInfo{}, err
	}
	if info.Created.IsZero() {
		return userInfo{}, &ResponseError{Op: "user", Status: http.StatusOK, Err: errors.New("creation date missing")}
	}
	return info, nil
}

func (c *Client) friendCount(ctx context.Context, id int64) (int, error) {
	var out struct {
		Count *int `json:"count"`
	}
	if err := c.do(ctx, "friends", http.MethodGet, fmt.Sprintf("%s/v1/users/%d/friends/count", c.endpoints.Friends, id), nil, &out); err != nil {
		return 0, err
	}
	if out.Count == nil {
		return 0, &ResponseError{Op: "friends", Status: http.StatusOK, Err: errors.New("count missing")}
	}
	return *out.Count, nil
}

func (c *Client) groups(ctx context.Context, id int64) ([]model.Group, error) {
	var out struct {
		Data []struct {
			Group struct {
				ID    int64  `json:"id"`
				Name  string `json:"name"`
				Owner *struct {
					UserID int64 `json:"userId"`
				} `json:"owner"`
			} `json:"group"`
			Role struct {
				Name string `json:"name"`
			} `json:"role"`
		} `json:"data"`
	}
	if err := c.do(ctx, "groups", http.MethodGet, fmt.Sprintf("%s/v1/users/%d/groups/roles", c.endpoints.Groups, id), nil, &out); err != nil {
		return nil, err
	}

	groups := make([]model.Group, 0, len(out.Data))
	seen := make(map[int64]bool, len(out.Data))
	for _, d := range out.Data {
		if d.Group.ID <= 0 || seen[d.Group.ID] {
			continue
		}
		seen[d.Group.ID] = true
		g := model.Group{ID: d.Group.ID, Name: d.Group.Name, Role: d.Role.Name}
		if d.Group.Owner != nil {
			g.OwnerID = d.Group.Owner.UserID
		}
		groups = append(groups, g)
	}
	return groups, nil
}

type badgePage struct {
	Data []struct {
		ID int64 `json:"id"`
	} `json:"data"`
	NextPageCursor string `json:"nextPageCursor"`
}

func (c *Client) badgePage(ctx context.Context, id int64, order, cursor string) (badgePage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(badgePageSize))
	q.Set("sortOrder", order)
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var page badgePage
	err := c.do(ctx, "badges", http.MethodGet, fmt.Sprintf("%s/v1/users/%d/badges?%s", c.endpoints.Badges, id, q.Encode()), nil, &page)
	return page, err
}

// countBadges walks newest-first and stops as soon as threshold is reached.
// complete is false when the walk hit the page cap or a repeated cursor
// before reaching either the threshold or the last page.
func (c *Client) countBadges(ctx context.Context, id int64, threshold, maxPages int) (count int, complete bool, err error) {
	seen := map[string]bool{}
	cursor := ""
	for pages := 0; pages < maxPages; pages++ {
		page, err := c.badgePage(ctx, id, "Desc", cursor)
		if err != nil {
			return 0, false, err
		}
		if len(page.Data) == 0 {
			return count, true, nil
		}
		count += len(page.Data)
		if count >= threshold {
			return count, true, nil
		}
		next := page.NextPageCursor
		if next == "" {
			return count, true, nil
		}
		if seen[next] {
			return count, false, nil
		}
		seen[next] = true
		cursor = next
	}
	return count, false, nil
}

// oldestBadges returns up to limit badge ids in award order. sampled is true
// when more badges exist past the sample; complete is false when the walk
// was cut short by the page cap or a repeated cursor.
func (c *Client) oldestBadges(ctx context.Context, id int64, limit, maxPages int) (ids []int64, sampled, complete bool, err error) {
	ids = []int64{}
	if limit <= 0 {
		return ids, true, true, nil
	}
	seenCursor := map[string]bool{}
	seenID := map[int64]bool{}
	cursor := ""
	for pages := 0; pages < maxPages; pages++ {
		page, err := c.badgePage(ctx, id, "Asc", cursor)
		if err != nil {
			return nil, false, false, err
		}
		for _, b := range page.Data {
			if b.ID <= 0 || seenID[b.ID] {
				continue
			}
			if len(ids) == limit {
				return ids, true, true, nil
			}
			seenID[b.ID] = true
			ids = append(ids, b.ID)
		}
		next := page.NextPageCursor
		if len(page.Data) == 0 || next == "" {
			return ids, false, true, nil
		}
		if len(ids) == limit {
			return ids, true, true, nil
		}
		if seenCursor[next] {
			return ids, false, false, nil
		}
		seenCursor[next] = true
		cursor = next
	}
	return ids, false, false, nil
}

// do sends one request and decodes a JSON body into out, mapping every
// failure onto the package's typed errors.
func (c *Client) do(ctx context.Context, op, method, rawURL string, body, out any) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveFetch(op, time.Since(start))
		if err != nil {
			c.metrics.IncrementFetchError(op, Kind(err))
		}
	}()

	var payload any
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		payload = b
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, rawURL, payload)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil && resp == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", op, ctxErr)
		}
		return &TransientError{Op: op, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitedError{Op: op, RetryAfter: retryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case resp.StatusCode >= 500:
		return &TransientError{Op: op, Status: resp.StatusCode, Err: err}
	case resp.StatusCode != http.StatusOK:
		return &ResponseError{Op: op, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(out); err != nil {
		return &ResponseError{Op: op, Status: resp.StatusCode, Err: err}
	}
	return nil
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func ageDays(created, now time.Time) int {
	if created.IsZero() || now.Before(created) {
		return 0
	}
	return int(now.Sub(created).Hours() / 24)
}
