package orchestrator

import (
	"context"
	"log/slog"

	"github.com/mpetrov/jobpool/internal/model"
)

// Stats summarizes one collection pass.
type Stats struct {
	Collected int
	Created   int
	Updated   int
	Failed    int
}

// Orchestrator routes each source to the collector serving its type and
// persists whatever comes back.
type Orchestrator struct {
	collectors map[string]model.Collector // keyed by source type
	store      model.JobStore
	logger     *slog.Logger
}

// New creates an orchestrator. collectors maps source types (rss, url,
// api) to their collector.
func New(collectors map[string]model.Collector, store model.JobStore, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{collectors: collectors, store: store, logger: logger}
}

// CollectFromSource runs one source through its collector and upserts
// the results. Each job is persisted independently: one bad row never
// discards the rest of the batch. A source of unknown type is logged
// and yields zero jobs.
func (o *Orchestrator) CollectFromSource(ctx context.Context, src model.Source) Stats {
	collector, ok := o.collectors[src.Type]
	if !ok {
		o.logger.Warn("no collector for source type", "type", src.Type, "source", src.Label())
		return Stats{}
	}

	jobs := collector.Collect(ctx, src)

	stats := Stats{Collected: len(jobs)}
	for _, job := range jobs {
		result, err := o.store.UpsertJob(job, src.Type, src.Label())
		if err != nil {
			stats.Failed++
			o.logger.Error("saving job failed", "url", job.URL, "error", err)
			continue
		}
		switch result {
		case model.Created:
			stats.Created++
		case model.Updated:
			stats.Updated++
		}
	}

	o.logger.Info("collected source",
		"source", src.Label(),
		"type", src.Type,
		"collected", stats.Collected,
		"created", stats.Created,
		"updated", stats.Updated,
		"failed", stats.Failed,
	)
	return stats
}

// CollectAll runs every active source in order and records the refresh
// aggregate afterwards, whether or not any source produced jobs.
func (o *Orchestrator) CollectAll(ctx context.Context) Stats {
	var total Stats

	sources, err := o.store.ActiveSources()
	if err != nil {
		o.logger.Error("listing active sources failed", "error", err)
		return total
	}

	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		s := o.CollectFromSource(ctx, src)
		total.Collected += s.Collected
		total.Created += s.Created
		total.Updated += s.Updated
		total.Failed += s.Failed
	}

	if err := o.store.RecordRefresh(); err != nil {
		o.logger.Error("recording refresh failed", "error", err)
	}

	o.logger.Info("collection pass complete",
		"sources", len(sources),
		"collected", total.Collected,
		"created", total.Created,
		"updated", total.Updated,
	)
	return total
}
