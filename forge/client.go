package forge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Doer executes HTTP requests. Satisfied by *http.Client; injectable for
// testing.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures a Client.
type Config struct {
	HTTP        Doer         // nil = http.Client with 30s timeout
	Logger      *slog.Logger // nil = slog.Default()
	Token       string       // bearer credential, supplied out-of-band
	Owner       string
	Repo        string
	BaseURL     string        // default https://api.github.com
	MaxAttempts int           // retry budget for transient failures (default 5)
	RetryBase   time.Duration // exponential backoff base (default 1s)
	PageSize    int           // default 100

	// RateLimitFloor is the minimum pause after a rate-limit response.
	// Guards against a stale or skewed reset header producing a zero wait
	// and a tight retry loop. Default 1m.
	RateLimitFloor time.Duration
}

// Client is a read-only facade over the provider's paginated change-request
// and check-run endpoints. A single rate-limit signal applies to the whole
// client; retries after a rate limit are serialized across callers.
type Client struct {
	http   Doer
	logger *slog.Logger
	cfg    Config

	mu          sync.Mutex
	pausedUntil time.Time
}

// NewClient creates a Client for one repository.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.github.com"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.RateLimitFloor <= 0 {
		cfg.RateLimitFloor = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	httpc := cfg.HTTP
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{http: httpc, logger: cfg.Logger, cfg: cfg}
}

// get performs one API request with rate-limit handling and bounded
// exponential backoff on transient failures, decoding the response into v.
func (c *Client) get(ctx context.Context, path string, query url.Values, v any) error {
	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := c.cfg.RetryBase << (attempt - 1)
			c.logger.Debug("retrying request", "url", u, "attempt", attempt+1, "wait", wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := c.waitRateLimit(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		if c.cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		}

		c.logger.Debug("api request", "path", path)
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}
		c.logger.Log(ctx, LevelDump, "api response", "path", path, "status", resp.StatusCode, "bytes", len(body))

		switch {
		case resp.StatusCode == http.StatusOK:
			if v == nil {
				return nil
			}
			if err := json.Unmarshal(body, v); err != nil {
				return fmt.Errorf("decode %s: %w", path, err)
			}
			return nil

		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%s: %w", path, ErrNotFound)

		case isRateLimited(resp):
			reset := rateLimitReset(resp)
			if floor := time.Now().Add(c.cfg.RateLimitFloor); reset.Before(floor) {
				reset = floor
			}
			c.logger.Warn("rate limited", "path", path, "resetAt", reset)
			c.setPaused(reset)
			// Rate limits do not consume the transient retry budget.
			attempt--
			lastErr = &RateLimitedError{ResetAt: reset}
			continue

		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error %d", resp.StatusCode)
			continue

		default:
			return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
		}
	}

	return &TransientError{Attempts: c.cfg.MaxAttempts, Err: lastErr}
}

// waitRateLimit blocks until any client-wide rate-limit pause has elapsed.
// The mutex serializes waiters so a single reset signal produces a single
// coordinated backoff rather than a thundering herd.
func (c *Client) waitRateLimit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	wait := time.Until(c.pausedUntil)
	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) setPaused(until time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if until.After(c.pausedUntil) {
		c.pausedUntil = until
	}
}

func isRateLimited(resp *http.Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return resp.StatusCode == http.StatusForbidden &&
		resp.Header.Get("X-RateLimit-Remaining") == "0"
}

// rateLimitReset extracts the provider-declared reset time, falling back to
// a fixed pause when the header is absent or unparsable.
func rateLimitReset(resp *http.Response) time.Time {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Now().Add(time.Duration(secs) * time.Second)
		}
	}
	if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(unix, 0)
		}
	}
	return time.Now().Add(time.Minute)
}

// pullResponse is the subset of the provider's pull-request object we need.
type pullResponse struct {
	MergedAt *time.Time `json:"merged_at"`
	Title    string     `json:"title"`
	URL      string     `json:"html_url"`
	Number   int64      `json:"number"`
}

// ListMergedChangeRequests returns merged change requests with id > sinceID
// in ascending id order, up to limit. The provider orders by creation, so
// re-querying with the same sinceID yields a superset of earlier results.
func (c *Client) ListMergedChangeRequests(ctx context.Context, sinceID int64, limit int) ([]ChangeRequest, error) {
	var out []ChangeRequest
	for page := 1; ; page++ {
		q := url.Values{
			"state":     {"closed"},
			"sort":      {"created"},
			"direction": {"asc"},
			"per_page":  {strconv.Itoa(c.cfg.PageSize)},
			"page":      {strconv.Itoa(page)},
		}
		var pulls []pullResponse
		if err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/pulls", c.cfg.Owner, c.cfg.Repo), q, &pulls); err != nil {
			return nil, fmt.Errorf("list change requests: %w", err)
		}

		for _, p := range pulls {
			if p.MergedAt == nil || p.Number <= sinceID {
				continue
			}
			out = append(out, ChangeRequest{
				ID:       p.Number,
				Title:    p.Title,
				URL:      p.URL,
				MergedAt: *p.MergedAt,
			})
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}

		if len(pulls) < c.cfg.PageSize {
			return out, nil
		}
	}
}

// commitResponse mirrors the provider's pull-request commit object.
type commitResponse struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Date time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
	Parents []struct {
		SHA string `json:"sha"`
	} `json:"parents"`
}

// checkRunsResponse mirrors the check-runs list endpoint.
type checkRunsResponse struct {
	CheckRuns []CheckRun `json:"check_runs"`
}

// ListCommitsWithChecks returns the change request's commits in
// chronological order, each populated with its observed check runs.
func (c *Client) ListCommitsWithChecks(ctx context.Context, crID int64) ([]Commit, error) {
	var all []commitResponse
	for page := 1; ; page++ {
		q := url.Values{
			"per_page": {strconv.Itoa(c.cfg.PageSize)},
			"page":     {strconv.Itoa(page)},
		}
		var commits []commitResponse
		path := fmt.Sprintf("/repos/%s/%s/pulls/%d/commits", c.cfg.Owner, c.cfg.Repo, crID)
		if err := c.get(ctx, path, q, &commits); err != nil {
			return nil, fmt.Errorf("list commits for %d: %w", crID, err)
		}
		all = append(all, commits...)
		if len(commits) < c.cfg.PageSize {
			break
		}
	}

	out := make([]Commit, 0, len(all))
	for _, cr := range all {
		commit := Commit{
			SHA:        cr.SHA,
			Message:    firstLine(cr.Commit.Message),
			AuthoredAt: cr.Commit.Author.Date,
		}
		if len(cr.Parents) > 0 {
			commit.ParentSHA = cr.Parents[0].SHA
		}

		var runs checkRunsResponse
		path := fmt.Sprintf("/repos/%s/%s/commits/%s/check-runs", c.cfg.Owner, c.cfg.Repo, cr.SHA)
		if err := c.get(ctx, path, nil, &runs); err != nil {
			return nil, fmt.Errorf("check runs for %s: %w", cr.SHA, err)
		}
		commit.Checks = runs.CheckRuns
		out = append(out, commit)
	}
	return out, nil
}

// commitDetailResponse is the per-commit endpoint subset with changed files.
type commitDetailResponse struct {
	Files []struct {
		Filename string `json:"filename"`
		Patch    string `json:"patch"`
	} `json:"files"`
}

// ChangedFiles returns the paths touched by a commit.
func (c *Client) ChangedFiles(ctx context.Context, sha string) ([]string, error) {
	var detail commitDetailResponse
	path := fmt.Sprintf("/repos/%s/%s/commits/%s", c.cfg.Owner, c.cfg.Repo, sha)
	if err := c.get(ctx, path, nil, &detail); err != nil {
		return nil, fmt.Errorf("changed files for %s: %w", sha, err)
	}
	files := make([]string, 0, len(detail.Files))
	for _, f := range detail.Files {
		files = append(files, f.Filename)
	}
	return files, nil
}

// contentResponse mirrors the contents endpoint.
type contentResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// FileContent returns the raw bytes of a file at a specific commit.
func (c *Client) FileContent(ctx context.Context, filePath, ref string) ([]byte, error) {
	var content contentResponse
	q := url.Values{"ref": {ref}}
	path := fmt.Sprintf("/repos/%s/%s/contents/%s", c.cfg.Owner, c.cfg.Repo, filePath)
	if err := c.get(ctx, path, q, &content); err != nil {
		return nil, fmt.Errorf("content of %s at %s: %w", filePath, ref, err)
	}
	if content.Encoding != "base64" {
		return []byte(content.Content), nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("decode content of %s: %w", filePath, err)
	}
	return data, nil
}

// compareResponse mirrors the two-commit compare endpoint.
type compareResponse struct {
	Files []struct {
		Filename string `json:"filename"`
		Patch    string `json:"patch"`
	} `json:"files"`
}

// CompareDiff returns the unified diff of one file between two commits, or
// an empty string if the file did not change between them.
func (c *Client) CompareDiff(ctx context.Context, badSHA, goodSHA, filePath string) (string, error) {
	var cmp compareResponse
	path := fmt.Sprintf("/repos/%s/%s/compare/%s...%s", c.cfg.Owner, c.cfg.Repo, badSHA, goodSHA)
	if err := c.get(ctx, path, nil, &cmp); err != nil {
		return "", fmt.Errorf("compare %s...%s: %w", badSHA, goodSHA, err)
	}
	for _, f := range cmp.Files {
		if f.Filename == filePath {
			return f.Patch, nil
		}
	}
	return "", nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
