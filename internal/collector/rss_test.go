package collector

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mpetrov/jobpool/internal/model"
)

func TestRSSCollect_CustomFields(t *testing.T) {
	feed := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
	<title>Engineering Jobs</title>
	<item>
		<title>Senior Go Engineer</title>
		<link>https://example.com/jobs/1</link>
		<description>Build backend services.</description>
		<company>Acme</company>
		<location>Berlin</location>
		<type>senior</type>
		<pubDate>Mon, 10 Aug 2026 09:00:00 GMT</pubDate>
	</item>
	<item>
		<title>Marketing Analyst</title>
		<link>https://example.com/jobs/2</link>
		<description>Location: Austin, TX. Analyze campaigns.</description>
	</item>
</channel>
</rss>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(feed))
	}))
	defer srv.Close()

	c := NewRSS(srv.Client(), testLogger())
	jobs := c.Collect(context.Background(), model.Source{Type: model.SourceRSS, Locator: srv.URL})

	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}

	j := jobs[0]
	if j.Title != "Senior Go Engineer" {
		t.Errorf("expected title Senior Go Engineer, got %q", j.Title)
	}
	if j.Company != "Acme" {
		t.Errorf("expected company from custom field, got %q", j.Company)
	}
	if j.Location != "Berlin" {
		t.Errorf("expected location from custom field, got %q", j.Location)
	}
	if j.Level != model.LevelSenior {
		t.Errorf("expected level senior from type field, got %q", j.Level)
	}
	if j.PostedAt == nil || j.PostedAt.Day() != 10 {
		t.Errorf("unexpected PostedAt: %v", j.PostedAt)
	}

	// Second entry has no custom fields: company stays empty, location
	// comes from the description marker, level from the classifier.
	j = jobs[1]
	if j.Company != "" {
		t.Errorf("expected empty company without custom field, got %q", j.Company)
	}
	if j.Location != "Austin, TX" {
		t.Errorf("expected location from description marker, got %q", j.Location)
	}
	if j.Level != model.LevelMid {
		t.Errorf("expected default level mid, got %q", j.Level)
	}
	if j.PostedAt != nil {
		t.Errorf("expected nil PostedAt without pubDate, got %v", j.PostedAt)
	}
}

func TestRSSCollect_MalformedFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not xml at all"))
	}))
	defer srv.Close()

	c := NewRSS(srv.Client(), testLogger())
	jobs := c.Collect(context.Background(), model.Source{Type: model.SourceRSS, Locator: srv.URL})

	if len(jobs) != 0 {
		t.Fatalf("expected no jobs from malformed feed, got %d", len(jobs))
	}
}

func TestRSSCollect_SkipsIncompleteEntries(t *testing.T) {
	feed := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
	<title>Jobs</title>
	<item>
		<title>No Link Here</title>
		<description>Missing the link element.</description>
	</item>
	<item>
		<title>Data Engineer</title>
		<link>https://example.com/jobs/3</link>
	</item>
</channel>
</rss>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feed))
	}))
	defer srv.Close()

	c := NewRSS(srv.Client(), testLogger())
	jobs := c.Collect(context.Background(), model.Source{Type: model.SourceRSS, Locator: srv.URL})

	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if jobs[0].Title != "Data Engineer" {
		t.Errorf("expected the complete entry to survive, got %q", jobs[0].Title)
	}
}

func TestLocationFromText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"colon marker", "Location: Berlin. Great team.", "Berlin"},
		{"city marker", "City: Toronto", "Toronto"},
		{"remote mention", "Fully remote role with quarterly offsites.", "Remote"},
		{"hybrid mention", "Hybrid schedule, 2 days in office.", "Hybrid"},
		{"no location", "Just a plain description.", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := locationFromText(tc.text); got != tc.want {
				t.Errorf("locationFromText(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

// --- helpers shared by the collector tests ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// roundTripFunc adapts a function into an http.RoundTripper.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// rewriteClient returns a client whose requests all land on srv,
// whatever host they name.
func rewriteClient(srv *httptest.Server) *http.Client {
	return &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			req.URL.Scheme = "http"
			req.URL.Host = srv.Listener.Addr().String()
			return http.DefaultTransport.RoundTrip(req)
		}),
	}
}
