package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/mpetrov/jobpool/internal/model"
	"github.com/mpetrov/jobpool/internal/ratelimit"
)

type fakeQuota struct {
	marked bool
	at     time.Time
}

func (f *fakeQuota) MarkQuotaExhausted(at time.Time) error {
	f.marked = true
	f.at = at
	return nil
}

func adzunaPage(page, count int) string {
	results := make([]map[string]any, 0, count)
	for i := 0; i < count; i++ {
		n := (page-1)*100 + i
		results = append(results, map[string]any{
			"title":        fmt.Sprintf("Engineer %d", n),
			"company":      map[string]any{"display_name": "Acme"},
			"location":     map[string]any{"display_name": "Austin, TX"},
			"description":  "Build things.",
			"redirect_url": fmt.Sprintf("https://adzuna.example/%d", n),
			"created":      "2026-08-01T09:00:00Z",
		})
	}
	body, _ := json.Marshal(map[string]any{"results": results})
	return string(body)
}

// pageFromPath pulls the trailing page number from an Adzuna search path.
func pageFromPath(path string) int {
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	page, _ := strconv.Atoi(parts[len(parts)-1])
	return page
}

func newAPICollector(srv *httptest.Server, quota *fakeQuota) *APICollector {
	cfg := APIConfig{
		AdzunaAppID:    "id",
		AdzunaAppKey:   "key",
		ResultsPerPage: 2,
		MaxPages:       3,
	}
	return NewAPI(rewriteClient(srv), cfg, quota, ratelimit.NewPacer(0), testLogger())
}

func TestAdzunaCollect_StopsAtPageCeiling(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(adzunaPage(pageFromPath(r.URL.Path), 2)))
	}))
	defer srv.Close()

	quota := &fakeQuota{}
	c := newAPICollector(srv, quota)
	jobs := c.Collect(context.Background(), model.Source{
		Type: model.SourceAPI, Locator: "adzuna:golang", Provider: model.ProviderAdzuna,
	})

	if calls != 3 {
		t.Errorf("expected 3 page fetches, got %d", calls)
	}
	if len(jobs) != 6 {
		t.Fatalf("expected 6 jobs, got %d", len(jobs))
	}
	if quota.marked {
		t.Error("quota should not be marked on success")
	}

	j := jobs[0]
	if j.Company != "Acme" || j.Location != "Austin, TX" {
		t.Errorf("nested display_name fields not flattened: %+v", j)
	}
	if j.PostedAt == nil || j.PostedAt.Month() != time.August {
		t.Errorf("unexpected PostedAt: %v", j.PostedAt)
	}
}

func TestAdzunaCollect_StopsOnShortPage(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		page := pageFromPath(r.URL.Path)
		if page == 2 {
			w.Write([]byte(adzunaPage(page, 1)))
			return
		}
		w.Write([]byte(adzunaPage(page, 2)))
	}))
	defer srv.Close()

	c := newAPICollector(srv, &fakeQuota{})
	jobs := c.Collect(context.Background(), model.Source{
		Type: model.SourceAPI, Locator: "adzuna:golang", Provider: model.ProviderAdzuna,
	})

	if calls != 2 {
		t.Errorf("expected paging to stop after the short page, got %d calls", calls)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
}

func TestAdzunaCollect_QuotaExhaustedMidPaging(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := pageFromPath(r.URL.Path)
		if page == 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(adzunaPage(page, 2)))
	}))
	defer srv.Close()

	quota := &fakeQuota{}
	c := newAPICollector(srv, quota)
	jobs := c.Collect(context.Background(), model.Source{
		Type: model.SourceAPI, Locator: "adzuna:golang", Provider: model.ProviderAdzuna,
	})

	if len(jobs) != 4 {
		t.Fatalf("expected jobs from the pages before the 429, got %d", len(jobs))
	}
	if !quota.marked {
		t.Error("expected quota exhaustion to be recorded")
	}
}

func TestAdzunaCollect_UnauthorizedHaltsWithoutRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	quota := &fakeQuota{}
	c := newAPICollector(srv, quota)
	jobs := c.Collect(context.Background(), model.Source{
		Type: model.SourceAPI, Locator: "adzuna:golang", Provider: model.ProviderAdzuna,
	})

	if calls != 1 {
		t.Errorf("expected a single attempt on bad credentials, got %d", calls)
	}
	if len(jobs) != 0 {
		t.Errorf("expected no jobs, got %d", len(jobs))
	}
	if quota.marked {
		t.Error("401 must not be treated as quota exhaustion")
	}
}

func TestAdzunaCollect_ServerErrorRetriesOnce(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(adzunaPage(pageFromPath(r.URL.Path), 1)))
	}))
	defer srv.Close()

	c := newAPICollector(srv, &fakeQuota{})
	jobs := c.Collect(context.Background(), model.Source{
		Type: model.SourceAPI, Locator: "adzuna:golang", Provider: model.ProviderAdzuna,
	})

	if calls != 2 {
		t.Errorf("expected one retry of the failed page, got %d calls", calls)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job after retry, got %d", len(jobs))
	}
}

func TestReedCollect_FieldMapping(t *testing.T) {
	var gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _, _ = r.BasicAuth()
		w.Write([]byte(`{"results": [
			{"jobTitle": "Senior DevOps Engineer", "employerName": "Reedco",
			 "locationName": "London", "jobDescription": "<p>Run the platform.</p>",
			 "jobUrl": "https://reed.example/jobs/9", "date": "2026-07-15"}
		]}`))
	}))
	defer srv.Close()

	cfg := APIConfig{ReedAPIKey: "reed-key"}
	c := NewAPI(rewriteClient(srv), cfg, &fakeQuota{}, ratelimit.NewPacer(0), testLogger())
	jobs := c.Collect(context.Background(), model.Source{
		Type: model.SourceAPI, Locator: "https://www.reed.co.uk/api/1.0/search?keywords=go", Provider: model.ProviderReed,
	})

	if gotUser != "reed-key" {
		t.Errorf("expected api key as basic-auth user, got %q", gotUser)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}

	j := jobs[0]
	if j.Title != "Senior DevOps Engineer" || j.Company != "Reedco" || j.Location != "London" {
		t.Errorf("unexpected field mapping: %+v", j)
	}
	if j.Description != "Run the platform." {
		t.Errorf("expected html stripped from description, got %q", j.Description)
	}
	if j.Level != model.LevelSenior {
		t.Errorf("expected level senior, got %q", j.Level)
	}
	if j.PostedAt == nil || j.PostedAt.Day() != 15 {
		t.Errorf("unexpected PostedAt: %v", j.PostedAt)
	}
}

func TestGenericCollect_FieldFallbacks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jobs": [
			{"name": "Backend Developer", "employer": "Genco", "city": "Oslo",
			 "snippet": "Ship features.", "link": "https://genco.example/jobs/1",
			 "posted_date": "2026-08-10T12:00:00Z"},
			{"employer": "No Title Inc", "link": "https://genco.example/jobs/2"}
		]}`))
	}))
	defer srv.Close()

	cfg := APIConfig{}
	c := NewAPI(srv.Client(), cfg, &fakeQuota{}, ratelimit.NewPacer(0), testLogger())
	jobs := c.Collect(context.Background(), model.Source{
		Type: model.SourceAPI, Locator: srv.URL, Provider: model.ProviderGeneric,
	})

	if len(jobs) != 1 {
		t.Fatalf("expected the titleless record to be skipped, got %d jobs", len(jobs))
	}

	j := jobs[0]
	if j.Title != "Backend Developer" || j.Company != "Genco" || j.Location != "Oslo" {
		t.Errorf("fallback field resolution failed: %+v", j)
	}
	if j.Description != "Ship features." {
		t.Errorf("unexpected description %q", j.Description)
	}
}

func TestResolveProvider(t *testing.T) {
	tests := []struct {
		name    string
		locator string
		creds   bool
		want    string
	}{
		{"adzuna prefix", "adzuna:golang", false, model.ProviderAdzuna},
		{"adzuna url", "https://api.adzuna.com/v1/api/jobs/gb/search/1?what=go", false, model.ProviderAdzuna},
		{"reed url", "https://www.reed.co.uk/api/1.0/search", false, model.ProviderReed},
		{"unknown url", "https://jobs.example.com/api/v2/postings", false, model.ProviderGeneric},
		{"bare keyword with creds", "golang", true, model.ProviderAdzuna},
		{"bare keyword without creds", "golang", false, model.ProviderGeneric},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveProvider(tc.locator, tc.creds); got != tc.want {
				t.Errorf("ResolveProvider(%q, %v) = %q, want %q", tc.locator, tc.creds, got, tc.want)
			}
		})
	}
}

func TestAdzunaQuery(t *testing.T) {
	c := &APICollector{cfg: APIConfig{AdzunaCountry: "us"}}

	tests := []struct {
		name        string
		locator     string
		wantQuery   string
		wantCountry string
	}{
		{"prefixed query", "adzuna:golang developer", "golang developer", "us"},
		{"sentinel all", "adzuna:all", "", "us"},
		{"full url", "https://api.adzuna.com/v1/api/jobs/gb/search/1?what=rust", "rust", "gb"},
		{"bare keyword", "python", "python", "us"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			query, country := c.adzunaQuery(tc.locator)
			if query != tc.wantQuery || country != tc.wantCountry {
				t.Errorf("adzunaQuery(%q) = (%q, %q), want (%q, %q)",
					tc.locator, query, country, tc.wantQuery, tc.wantCountry)
			}
		})
	}
}
