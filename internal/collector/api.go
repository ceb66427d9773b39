package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mpetrov/jobpool/internal/classify"
	"github.com/mpetrov/jobpool/internal/model"
	"github.com/mpetrov/jobpool/internal/ratelimit"
)

const (
	defaultAdzunaCountry = "us"
	defaultPageSize      = 50
	defaultMaxPages      = 5
	// Extra pause before retrying a page that failed with a 5xx.
	serverErrorPause = 2 * time.Second
)

// quotaMarker is the slice of the store the API collector needs: when a
// provider answers 429 the daily quota is recorded so later passes can
// skip the network entirely.
type quotaMarker interface {
	MarkQuotaExhausted(at time.Time) error
}

// APIConfig carries provider credentials and paging knobs.
type APIConfig struct {
	AdzunaAppID    string
	AdzunaAppKey   string
	AdzunaCountry  string
	ReedAPIKey     string
	ResultsPerPage int
	MaxPages       int
}

func (c APIConfig) pageSize() int {
	if c.ResultsPerPage > 0 {
		return c.ResultsPerPage
	}
	return defaultPageSize
}

func (c APIConfig) maxPages() int {
	if c.MaxPages > 0 {
		return c.MaxPages
	}
	return defaultMaxPages
}

func (c APIConfig) country() string {
	if c.AdzunaCountry != "" {
		return c.AdzunaCountry
	}
	return defaultAdzunaCountry
}

// ResolveProvider classifies an API source locator once, at creation
// time. adzunaCreds reports whether Adzuna credentials are configured;
// a bare keyword query only makes sense as an Adzuna search when they
// are.
func ResolveProvider(locator string, adzunaCreds bool) string {
	lower := strings.ToLower(locator)

	if strings.HasPrefix(lower, "adzuna:") {
		return model.ProviderAdzuna
	}
	isURL := strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
	if isURL {
		if strings.Contains(lower, "adzuna") {
			return model.ProviderAdzuna
		}
		if strings.Contains(lower, "reed") {
			return model.ProviderReed
		}
		return model.ProviderGeneric
	}
	if adzunaCreds {
		return model.ProviderAdzuna
	}
	return model.ProviderGeneric
}

// APICollector serves sources of type "api", dispatching on the
// provider tag resolved when the source was created.
type APICollector struct {
	client *http.Client
	cfg    APIConfig
	quota  quotaMarker
	pacer  *ratelimit.Pacer
	logger *slog.Logger
}

// NewAPI creates a collector for structured job APIs.
func NewAPI(client *http.Client, cfg APIConfig, quota quotaMarker, pacer *ratelimit.Pacer, logger *slog.Logger) *APICollector {
	return &APICollector{client: client, cfg: cfg, quota: quota, pacer: pacer, logger: logger}
}

// Collect dispatches on the source's provider tag. An unknown tag is
// re-resolved from the locator so sources created before a provider
// column existed still work.
func (c *APICollector) Collect(ctx context.Context, src model.Source) []model.Job {
	provider := src.Provider
	if provider == "" {
		provider = ResolveProvider(src.Locator, c.cfg.AdzunaAppID != "" && c.cfg.AdzunaAppKey != "")
	}

	switch provider {
	case model.ProviderAdzuna:
		return c.collectAdzuna(ctx, src)
	case model.ProviderReed:
		return c.collectReed(ctx, src)
	default:
		return c.collectGeneric(ctx, src)
	}
}

// adzunaQuery extracts the search keyword and country from a source
// locator. Accepted forms: "adzuna:<query>", a full Adzuna API URL
// (country from the /jobs/<cc>/ path segment, query from the "what"
// parameter), a bare keyword, or the sentinel "all" meaning no keyword.
func (c *APICollector) adzunaQuery(locator string) (query, country string) {
	country = c.cfg.country()

	lower := strings.ToLower(locator)
	switch {
	case strings.HasPrefix(lower, "adzuna:"):
		query = strings.TrimSpace(locator[len("adzuna:"):])
	case strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://"):
		u, err := url.Parse(locator)
		if err != nil {
			return "", country
		}
		query = u.Query().Get("what")
		parts := strings.Split(u.Path, "/")
		for i, part := range parts {
			if part == "jobs" && i+1 < len(parts) && len(parts[i+1]) == 2 {
				country = parts[i+1]
				break
			}
		}
	default:
		query = strings.TrimSpace(locator)
	}

	if strings.EqualFold(query, "all") {
		query = ""
	}
	return query, country
}

type adzunaResponse struct {
	Results []struct {
		Title   string `json:"title"`
		Company struct {
			DisplayName string `json:"display_name"`
		} `json:"company"`
		Location struct {
			DisplayName string `json:"display_name"`
		} `json:"location"`
		Description string `json:"description"`
		RedirectURL string `json:"redirect_url"`
		Created     string `json:"created"`
	} `json:"results"`
}

// collectAdzuna pages through Adzuna search results. Paging stops at
// the page ceiling, on a short or empty page, on 401 (bad credentials,
// retrying is pointless), or on 429, which also records the exhausted
// daily quota. A 5xx gets one retry of the same page after a pause.
func (c *APICollector) collectAdzuna(ctx context.Context, src model.Source) []model.Job {
	if c.cfg.AdzunaAppID == "" || c.cfg.AdzunaAppKey == "" {
		c.logger.Warn("adzuna source skipped, credentials not configured", "source", src.Label())
		return nil
	}

	query, country := c.adzunaQuery(src.Locator)
	pageSize := c.cfg.pageSize()

	var jobs []model.Job
	retried := false
	for page := 1; page <= c.cfg.maxPages(); page++ {
		if page > 1 && c.pacer != nil {
			if err := c.pacer.Wait(ctx, model.ProviderAdzuna); err != nil {
				return jobs
			}
		}

		pageURL := fmt.Sprintf("https://api.adzuna.com/v1/api/jobs/%s/search/%d", country, page)
		params := url.Values{}
		params.Set("app_id", c.cfg.AdzunaAppID)
		params.Set("app_key", c.cfg.AdzunaAppKey)
		params.Set("results_per_page", fmt.Sprintf("%d", pageSize))
		params.Set("content-type", "application/json")
		if query != "" {
			params.Set("what", query)
		}

		body, err := c.get(ctx, pageURL+"?"+params.Encode(), nil)
		if err != nil {
			var httpErr *model.HTTPError
			if errors.As(err, &httpErr) {
				switch {
				case httpErr.StatusCode == http.StatusTooManyRequests:
					c.logger.Warn("adzuna quota exhausted", "source", src.Label(), "page", page)
					if c.quota != nil {
						if qerr := c.quota.MarkQuotaExhausted(time.Now()); qerr != nil {
							c.logger.Error("recording quota exhaustion failed", "error", qerr)
						}
					}
					return jobs
				case httpErr.StatusCode == http.StatusUnauthorized:
					c.logger.Error("adzuna rejected credentials", "source", src.Label())
					return jobs
				case httpErr.StatusCode >= 500 && !retried:
					c.logger.Warn("adzuna server error, retrying page", "page", page, "status", httpErr.StatusCode)
					retried = true
					select {
					case <-ctx.Done():
						return jobs
					case <-time.After(serverErrorPause):
					}
					page--
					continue
				}
			}
			c.logger.Warn("adzuna page fetch failed", "source", src.Label(), "page", page, "error", err)
			return jobs
		}
		retried = false

		var parsed adzunaResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			c.logger.Warn("adzuna response parse failed", "source", src.Label(), "page", page, "error", err)
			return jobs
		}
		if len(parsed.Results) == 0 {
			break
		}

		for _, r := range parsed.Results {
			title := cleanText(r.Title)
			if title == "" || r.RedirectURL == "" {
				continue
			}
			description := extractText(r.Description)
			jobs = append(jobs, model.Job{
				Title:       title,
				Company:     cleanText(r.Company.DisplayName),
				Location:    cleanText(r.Location.DisplayName),
				Description: description,
				URL:         r.RedirectURL,
				Level:       classify.Level(title, description),
				PostedAt:    parseAPIDate(r.Created),
			})
		}

		if len(parsed.Results) < pageSize {
			break
		}
	}

	c.logger.Info("collected jobs from adzuna", "source", src.Label(), "count", len(jobs))
	return jobs
}

type reedResponse struct {
	Results []struct {
		JobTitle       string  `json:"jobTitle"`
		EmployerName   string  `json:"employerName"`
		LocationName   string  `json:"locationName"`
		JobDescription string  `json:"jobDescription"`
		JobURL         string  `json:"jobUrl"`
		Date           string  `json:"date"`
		MinimumSalary  float64 `json:"minimumSalary"`
		MaximumSalary  float64 `json:"maximumSalary"`
	} `json:"results"`
}

// collectReed fetches one page from the Reed job search API. Reed
// authenticates with the API key as the basic-auth username.
func (c *APICollector) collectReed(ctx context.Context, src model.Source) []model.Job {
	if c.cfg.ReedAPIKey == "" {
		c.logger.Warn("reed source skipped, api key not configured", "source", src.Label())
		return nil
	}

	body, err := c.get(ctx, src.Locator, func(req *http.Request) {
		req.SetBasicAuth(c.cfg.ReedAPIKey, "")
	})
	if err != nil {
		c.logger.Warn("reed fetch failed", "source", src.Label(), "error", err)
		return nil
	}

	var parsed reedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.logger.Warn("reed response parse failed", "source", src.Label(), "error", err)
		return nil
	}

	var jobs []model.Job
	for _, r := range parsed.Results {
		title := cleanText(r.JobTitle)
		if title == "" || r.JobURL == "" {
			continue
		}
		description := extractText(r.JobDescription)
		jobs = append(jobs, model.Job{
			Title:       title,
			Company:     cleanText(r.EmployerName),
			Location:    cleanText(r.LocationName),
			Description: description,
			URL:         r.JobURL,
			Level:       classify.Level(title, description),
			PostedAt:    parseAPIDate(r.Date),
		})
	}

	c.logger.Info("collected jobs from reed", "source", src.Label(), "count", len(jobs))
	return jobs
}

// Field fallbacks for unknown JSON APIs, tried in order.
var (
	genericListKeys  = []string{"results", "jobs", "data"}
	genericTitleKeys = []string{"title", "jobTitle", "name", "position"}
	genericCompKeys  = []string{"company", "employerName", "company_name", "employer"}
	genericLocKeys   = []string{"location", "locationName", "city", "place"}
	genericDescKeys  = []string{"description", "jobDescription", "summary", "snippet"}
	genericURLKeys   = []string{"url", "jobUrl", "link", "redirect_url", "apply_url"}
	genericDateKeys  = []string{"date", "created", "posted_date", "published_at", "datePosted"}
)

// collectGeneric makes a best-effort pass over an unknown JSON API: the
// job list is found under a well-known key (or the response is itself
// an array) and each record's fields are resolved through fallback
// lists.
func (c *APICollector) collectGeneric(ctx context.Context, src model.Source) []model.Job {
	body, err := c.get(ctx, src.Locator, nil)
	if err != nil {
		c.logger.Warn("api fetch failed", "source", src.Label(), "error", err)
		return nil
	}

	records := genericRecords(body)
	if records == nil {
		c.logger.Warn("api response has no recognizable job list", "source", src.Label())
		return nil
	}

	var jobs []model.Job
	for _, rec := range records {
		title := cleanText(stringField(rec, genericTitleKeys))
		link := stringField(rec, genericURLKeys)
		if title == "" || link == "" {
			continue
		}
		description := extractText(stringField(rec, genericDescKeys))
		jobs = append(jobs, model.Job{
			Title:       title,
			Company:     cleanText(stringField(rec, genericCompKeys)),
			Location:    cleanText(stringField(rec, genericLocKeys)),
			Description: description,
			URL:         link,
			Level:       classify.Level(title, description),
			PostedAt:    parseAPIDate(stringField(rec, genericDateKeys)),
		})
	}

	c.logger.Info("collected jobs from api", "source", src.Label(), "count", len(jobs))
	return jobs
}

// genericRecords locates the list of job objects in an arbitrary JSON
// body.
func genericRecords(body []byte) []map[string]any {
	var asObject map[string]json.RawMessage
	if err := json.Unmarshal(body, &asObject); err == nil {
		for _, key := range genericListKeys {
			raw, ok := asObject[key]
			if !ok {
				continue
			}
			var records []map[string]any
			if err := json.Unmarshal(raw, &records); err == nil {
				return records
			}
		}
		return nil
	}

	var records []map[string]any
	if err := json.Unmarshal(body, &records); err == nil {
		return records
	}
	return nil
}

// stringField returns the first non-empty string value among keys.
// Nested objects with a display_name field (Adzuna-style) flatten to
// that field.
func stringField(rec map[string]any, keys []string) string {
	for _, key := range keys {
		switch v := rec[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if name, ok := v["display_name"].(string); ok && name != "" {
				return name
			}
		}
	}
	return ""
}

// get performs a GET and returns the body, converting non-200 statuses
// into *model.HTTPError so callers can dispatch on the code.
func (c *APICollector) get(ctx context.Context, rawURL string, mutate func(*http.Request)) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if mutate != nil {
		mutate(req)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("GET %s", rawURL),
		}
	}
	return body, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// apiDateLayouts are tried in order; an unparseable date yields nil
// rather than a bogus timestamp.
var apiDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseAPIDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range apiDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}
