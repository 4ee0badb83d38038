package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/signalsfoundry/conjunction-engine/internal/logging"
	"github.com/signalsfoundry/conjunction-engine/model"
)

const defaultBaseURL = "https://celestrak.org/NORAD/elements/gp.php"

// groupTags maps known Celestrak group names to the classification defaults
// applied to their objects. Unlisted groups keep the parser defaults
// (SECONDARY, NORMAL).
var groupTags = map[string]struct {
	priority model.Priority
	mission  model.MissionClass
}{
	"stations": {model.PriorityPrimary, model.MissionNormal},
}

// FetcherOptions configure the Celestrak client. Zero values pick
// conservative defaults.
type FetcherOptions struct {
	BaseURL   string        // GP query endpoint
	UserAgent string        // sent with every request
	Timeout   time.Duration // per-request limit, default 20s
	Interval  time.Duration // minimum spacing between group fetches, default 2s
}

// Fetcher pulls TLE group files from Celestrak. Group requests pass through
// a token bucket so a bulk refresh never hammers the upstream service.
type Fetcher struct {
	baseURL string
	ua      string
	client  *http.Client
	limiter *rate.Limiter
	log     logging.Logger
}

// NewFetcher builds a Celestrak client from options.
func NewFetcher(opts FetcherOptions, log logging.Logger) *Fetcher {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Fetcher{
		baseURL: opts.BaseURL,
		ua:      opts.UserAgent,
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Every(opts.Interval), 1),
		log:     log,
	}
}

// FetchGroup retrieves and parses one Celestrak group, applying the group's
// classification defaults to every object.
func (f *Fetcher) FetchGroup(ctx context.Context, group string) (ParseResult, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return ParseResult{}, fmt.Errorf("rate limit wait: %w", err)
	}

	u, err := url.Parse(f.baseURL)
	if err != nil {
		return ParseResult{}, fmt.Errorf("parse base URL: %w", err)
	}
	q := u.Query()
	q.Set("GROUP", group)
	q.Set("FORMAT", "tle")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return ParseResult{}, fmt.Errorf("create request: %w", err)
	}
	if f.ua != "" {
		req.Header.Set("User-Agent", f.ua)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return ParseResult{}, fmt.Errorf("fetch group %q: %w", group, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ParseResult{}, fmt.Errorf("fetch group %q: unexpected status %d", group, resp.StatusCode)
	}

	res, err := Parse(ctx, resp.Body, f.log)
	if err != nil {
		return ParseResult{}, fmt.Errorf("group %q: %w", group, err)
	}
	if tags, ok := groupTags[group]; ok {
		for i := range res.Objects {
			res.Objects[i].Priority = tags.priority
			res.Objects[i].Mission = tags.mission
		}
	}
	f.log.Info(ctx, "fetched element group",
		logging.String("group", group),
		logging.Int("objects", len(res.Objects)),
		logging.Int("skipped", res.Skipped))
	return res, nil
}

// FetchGroups retrieves several groups in sequence, pacing requests through
// the shared limiter. Any group failure aborts the whole refresh so a partial
// result never masquerades as a full catalog. Objects listed in more than one
// group keep the tags of the last group fetched; the catalog upsert resolves
// duplicates by NORAD id.
func (f *Fetcher) FetchGroups(ctx context.Context, groups []string) (ParseResult, error) {
	var all ParseResult
	for _, g := range groups {
		res, err := f.FetchGroup(ctx, g)
		if err != nil {
			return ParseResult{}, err
		}
		all.Objects = append(all.Objects, res.Objects...)
		all.Skipped += res.Skipped
	}
	return all, nil
}
