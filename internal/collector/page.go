package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mpetrov/jobpool/internal/ai"
	"github.com/mpetrov/jobpool/internal/classify"
	"github.com/mpetrov/jobpool/internal/model"
)

const (
	maxTitleCandidates = 50
	maxDescriptionLen  = 1000
	maxParagraphLen    = 500
	// Character budget for the text handed to the LLM extraction tier.
	llmInputBudget = 15000

	pageUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

var (
	titleClassRegex    = regexp.MustCompile(`(?i)(job|position|career|role|opening)[-_]title`)
	locationClassRegex = regexp.MustCompile(`(?i)(location|city|place|address|area|remote|hybrid|onsite)`)
	descClassRegex     = regexp.MustCompile(`(?i)(description|summary|detail)`)

	numericOnlyRegex = regexp.MustCompile(`^[0-9\s\-]+$`)
	symbolOnlyRegex  = regexp.MustCompile(`^[^\w\s]+$`)

	jsonArrayRegex = regexp.MustCompile(`\[[\s\S]*\]`)
)

// jobTitleKeywords mark a candidate string as plausibly a job title.
var jobTitleKeywords = []string{
	"engineer", "developer", "manager", "analyst", "specialist",
	"coordinator", "director", "assistant", "associate", "intern",
	"designer", "consultant", "executive", "officer", "lead",
	"architect", "scientist", "administrator", "representative",
	"technician", "supervisor", "agent",
}

// URLCollector scrapes an arbitrary career page. It tries a structural
// CSS-class heuristic first and falls back to LLM free-text extraction
// when a provider is configured; with neither producing results it
// returns nothing.
type URLCollector struct {
	client   *http.Client
	provider ai.LLMProvider // nil disables the free-text tier
	logger   *slog.Logger
}

// NewURL creates a collector for arbitrary HTML career pages.
func NewURL(client *http.Client, provider ai.LLMProvider, logger *slog.Logger) *URLCollector {
	return &URLCollector{client: client, provider: provider, logger: logger}
}

// Collect fetches src.Locator and extracts job postings. Transport and
// parse failures are logged and yield an empty result.
func (c *URLCollector) Collect(ctx context.Context, src model.Source) []model.Job {
	pageURL := src.Locator

	doc, err := c.fetch(ctx, pageURL)
	if err != nil {
		c.logger.Warn("page fetch failed", "url", pageURL, "error", err)
		return nil
	}

	jobs := c.structuralJobs(doc, pageURL)
	if len(jobs) > 0 {
		c.logger.Info("collected jobs from page", "url", pageURL, "count", len(jobs), "tier", "structural")
		return jobs
	}

	if c.provider == nil {
		c.logger.Info("no structural matches and no llm configured", "url", pageURL)
		return nil
	}

	jobs = c.llmJobs(ctx, doc, pageURL)
	c.logger.Info("collected jobs from page", "url", pageURL, "count", len(jobs), "tier", "llm")
	return jobs
}

func (c *URLCollector) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", pageUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &model.HTTPError{StatusCode: resp.StatusCode, Err: fmt.Errorf("fetching %s", pageURL)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	return doc, nil
}

// titleCandidate is an element whose text looks like a job title.
type titleCandidate struct {
	sel   *goquery.Selection
	title string
	href  string
}

// structuralJobs is the first extraction tier: elements carrying
// job-title-like class names, plus bare headings that wrap a link.
func (c *URLCollector) structuralJobs(doc *goquery.Document, pageURL string) []model.Job {
	var candidates []titleCandidate

	doc.Find("h1, h2, h3, h4, h5, a, span, div, p").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		if !titleClassRegex.MatchString(class) {
			return
		}
		title := cleanText(s.Text())
		if !isValidJobTitle(title) {
			return
		}
		candidates = append(candidates, titleCandidate{sel: s, title: title, href: nearestLink(s)})
	})

	doc.Find("h2, h3, h4").Each(func(_ int, s *goquery.Selection) {
		link := s.Find("a[href]").First()
		if link.Length() == 0 {
			return
		}
		title := cleanText(s.Text())
		if !isValidJobTitle(title) {
			return
		}
		href, _ := link.Attr("href")
		candidates = append(candidates, titleCandidate{sel: s, title: title, href: href})
	})

	// Collapse duplicate titles (case/whitespace-insensitive), keep
	// first occurrence, cap the candidate list.
	seen := make(map[string]bool)
	var unique []titleCandidate
	for _, cand := range candidates {
		key := strings.ToLower(strings.TrimSpace(cand.title))
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, cand)
		if len(unique) >= maxTitleCandidates {
			break
		}
	}

	company := companyFromURL(pageURL)

	var jobs []model.Job
	for _, cand := range unique {
		link := resolveURL(pageURL, cand.href)
		if link == "" {
			continue
		}

		container := cand.sel.Parent()
		location := locationNear(container)
		description := descriptionNear(container)

		jobs = append(jobs, model.Job{
			Title:       cand.title,
			Company:     company,
			Location:    location,
			Description: description,
			URL:         link,
			Level:       classify.Level(cand.title, description),
		})
	}
	return jobs
}

// nearestLink finds the href associated with an element: the element
// itself when it is an anchor, else the closest ancestor anchor, else
// the first descendant anchor.
func nearestLink(s *goquery.Selection) string {
	if s.Is("a") {
		if href, ok := s.Attr("href"); ok {
			return href
		}
	}
	if ancestor := s.ParentsFiltered("a[href]").First(); ancestor.Length() > 0 {
		href, _ := ancestor.Attr("href")
		return href
	}
	if descendant := s.Find("a[href]").First(); descendant.Length() > 0 {
		href, _ := descendant.Attr("href")
		return href
	}
	return ""
}

// locationNear pulls a short location string from elements around the
// title whose class looks location-like.
func locationNear(container *goquery.Selection) string {
	if container == nil || container.Length() == 0 {
		return ""
	}
	location := ""
	container.Find("span, div, p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		if !locationClassRegex.MatchString(class) {
			return true
		}
		text := cleanText(s.Text())
		if text != "" && len(text) < 100 {
			location = text
			return false
		}
		return true
	})
	return location
}

// descriptionNear pulls a description from class-matched elements near
// the title, falling back to the container's first paragraph.
func descriptionNear(container *goquery.Selection) string {
	if container == nil || container.Length() == 0 {
		return ""
	}
	description := ""
	container.Find("p, div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		if !descClassRegex.MatchString(class) {
			return true
		}
		if text := cleanText(s.Text()); text != "" {
			description = truncate(text, maxDescriptionLen)
			return false
		}
		return true
	})
	if description != "" {
		return description
	}
	if para := container.Find("p").First(); para.Length() > 0 {
		return truncate(cleanText(para.Text()), maxParagraphLen)
	}
	return ""
}

// isValidJobTitle filters out garbage matches: a candidate must be a
// sane length, not mostly special characters or repeated runes, and
// either carry a job-title keyword or read like ordinary text.
func isValidJobTitle(title string) bool {
	if len(title) < 5 || len(title) > 200 {
		return false
	}
	if isGarbageText(title) {
		return false
	}

	lower := strings.ToLower(title)
	for _, kw := range jobTitleKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return specialCharRatio(title, " -") < 0.3
}

func isGarbageText(text string) bool {
	if text == "" {
		return true
	}
	if specialCharRatio(text, " -.,!?") > 0.5 {
		return true
	}
	// Heavy single-character repetition usually means an encoding issue.
	if len(text) > 10 {
		unique := make(map[rune]bool)
		for _, r := range text {
			unique[r] = true
		}
		if len(unique) < len([]rune(text))*3/10 {
			return true
		}
	}
	return numericOnlyRegex.MatchString(text) || symbolOnlyRegex.MatchString(text)
}

// specialCharRatio is the share of characters that are neither
// alphanumeric nor in allowed.
func specialCharRatio(text, allowed string) float64 {
	runes := []rune(text)
	if len(runes) == 0 {
		return 1
	}
	special := 0
	for _, r := range runes {
		if isAlnum(r) || strings.ContainsRune(allowed, r) {
			continue
		}
		special++
	}
	return float64(special) / float64(len(runes))
}

func isAlnum(r rune) bool {
	return r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
}

// llmJob is one entry in the jobs array the model is asked to return.
type llmJob struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Salary      string `json:"salary"`
	Level       string `json:"level"`
}

type llmExtraction struct {
	Jobs []llmJob `json:"jobs"`
}

const extractSystemPrompt = "You are a precise structured data extractor for job listings on career pages."

// llmJobs is the second extraction tier: hand the page's visible text
// to the language model and parse the JSON it returns.
func (c *URLCollector) llmJobs(ctx context.Context, doc *goquery.Document, pageURL string) []model.Job {
	text := visibleText(doc)
	if text == "" {
		return nil
	}

	prompt := fmt.Sprintf(
		`Extract every job posting from the following career page text.
Return a JSON object with a "jobs" array; each element has the fields
"title", "company", "location", "description", "url", "salary", and
"level" (one of entry, mid, senior, executive). Use empty strings for
unknown fields.

Page URL: %s

Page text:
%s`, pageURL, truncate(text, llmInputBudget))

	raw, err := c.provider.Complete(ctx, extractSystemPrompt, prompt)
	if err != nil {
		c.logger.Warn("llm extraction failed", "url", pageURL, "error", err)
		return nil
	}

	extracted := parseLLMJobs(raw)
	if extracted == nil {
		c.logger.Warn("llm returned unparseable job data", "url", pageURL)
		return nil
	}

	defaultCompany := companyFromURL(pageURL)

	var jobs []model.Job
	for _, lj := range extracted {
		title := cleanText(lj.Title)
		if title == "" {
			continue
		}

		company := cleanText(lj.Company)
		if company == "" {
			company = defaultCompany
		}
		location := cleanText(lj.Location)
		if location == "" {
			location = "Not specified"
		}

		description := cleanText(lj.Description)
		if lj.Salary != "" {
			description = cleanText(description + " Salary: " + lj.Salary)
		}

		level := model.Level(strings.ToLower(strings.TrimSpace(lj.Level)))
		if !model.ValidLevel(string(level)) {
			level = classify.Level(title, description)
		}

		link := resolveURL(pageURL, lj.URL)
		if link == "" {
			link = pageURL
		}

		jobs = append(jobs, model.Job{
			Title:       title,
			Company:     company,
			Location:    location,
			Description: description,
			URL:         link,
			Level:       level,
		})
	}
	return jobs
}

// parseLLMJobs tries a strict parse of the model output first, then
// falls back to locating an embedded JSON array.
func parseLLMJobs(raw string) []llmJob {
	var extraction llmExtraction
	if err := json.Unmarshal([]byte(raw), &extraction); err == nil && extraction.Jobs != nil {
		return extraction.Jobs
	}

	match := jsonArrayRegex.FindString(raw)
	if match == "" {
		return nil
	}
	var jobs []llmJob
	if err := json.Unmarshal([]byte(match), &jobs); err != nil {
		return nil
	}
	return jobs
}

// visibleText strips non-content markup and collapses the document to
// newline-joined non-blank lines.
func visibleText(doc *goquery.Document) string {
	clone := doc.Selection.Clone()
	clone.Find("script, style, noscript, nav, header, footer").Remove()

	var lines []string
	for _, line := range strings.Split(clone.Text(), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return strings.Join(lines, "\n")
}
