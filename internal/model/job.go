package model

import (
	"context"
	"time"
)

// Level is the coarse seniority bucket assigned to every job.
type Level string

const (
	LevelEntry     Level = "entry"
	LevelMid       Level = "mid"
	LevelSenior    Level = "senior"
	LevelExecutive Level = "executive"
)

// ValidLevel reports whether s is one of the four known buckets.
func ValidLevel(s string) bool {
	switch Level(s) {
	case LevelEntry, LevelMid, LevelSenior, LevelExecutive:
		return true
	}
	return false
}

// Job is the normalized representation of a posting produced by any
// collector. It is transient: collectors hand it to the store's upsert,
// which keys on URL.
type Job struct {
	Title       string
	Company     string
	Location    string
	Description string
	URL         string // absolute, collector-populated; unique identity key
	Level       Level
	PostedAt    *time.Time // nullable (many sources omit it)
}

// StoredJob is a Job as persisted, with store-assigned bookkeeping.
type StoredJob struct {
	ID int64
	Job
	Source      string // collector type tag: rss, url, api
	SourceName  string // human label or raw source locator
	CollectedAt time.Time
	IsActive    bool
}

// Source type tags. A source's type selects the collector that serves it.
const (
	SourceRSS = "rss"
	SourceURL = "url"
	SourceAPI = "api"
)

// API provider kinds, resolved once when an API source is created
// instead of re-sniffed on every collection pass.
const (
	ProviderAdzuna  = "adzuna"
	ProviderReed    = "reed"
	ProviderGeneric = "generic"
)

// Source is a configured origin of job postings.
type Source struct {
	ID        int64
	Type      string // rss, url, api
	Locator   string // feed/page URL, search query, or the sentinel "all"
	Name      string // optional label
	Provider  string // api sources only: adzuna, reed, generic
	IsActive  bool
	CreatedAt time.Time
}

// Label returns the source's human name, falling back to its locator.
// Persisted jobs carry this as their source_name, and the deactivation
// cascade matches on it.
func (s Source) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Locator
}

// RefreshStatus is the process-wide aggregate recomputed after every
// orchestration pass. Advisory only: concurrent writers race
// last-writer-wins.
type RefreshStatus struct {
	LastRefresh     *time.Time
	JobsCount       int
	SourcesCount    int
	APILimitReached bool
	APILimitDate    *time.Time
}

// UpsertResult tells the orchestrator whether an upsert created a new
// row or refreshed an existing one.
type UpsertResult string

const (
	Created UpsertResult = "created"
	Updated UpsertResult = "updated"
)

// Collector turns one external source into normalized jobs. Collect is
// total: fetch and parse failures are logged and yield whatever was
// extracted so far (possibly nothing), never an error.
type Collector interface {
	Collect(ctx context.Context, src Source) []Job
}

// JobStore is the persistence contract the ingestion core depends on.
type JobStore interface {
	UpsertJob(job Job, sourceType, sourceName string) (UpsertResult, error)
	ActiveSources() ([]Source, error)
	RecordRefresh() error
	MarkQuotaExhausted(at time.Time) error
	QuotaExhausted(now time.Time) (bool, error)
}
