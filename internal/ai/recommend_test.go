package ai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mpetrov/jobpool/internal/model"
)

type stubProvider struct {
	response string
	err      error
}

func (s *stubProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	return s.response, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func job(title string, level model.Level, location, description string) model.StoredJob {
	return model.StoredJob{
		Job: model.Job{
			Title:       title,
			Company:     "Acme",
			Location:    location,
			Description: description,
			Level:       level,
		},
	}
}

func TestRank_DeterministicScoring(t *testing.T) {
	profile := Profile{
		Skills:   []string{"Go", "Kubernetes"},
		Level:    model.LevelSenior,
		Location: "Berlin",
	}
	jobs := []model.StoredJob{
		job("Junior Accountant", model.LevelEntry, "Paris", "ledgers"),
		job("Senior Go Engineer", model.LevelSenior, "Berlin, Germany", "go and kubernetes"),
		job("VP Engineering", model.LevelExecutive, "Remote", "leadership"),
	}

	r := NewRecommender(nil, testLogger())
	recs := r.Rank(context.Background(), profile, jobs)

	if len(recs) != 2 {
		t.Fatalf("expected 2 scored jobs, got %d", len(recs))
	}
	// level(10) + 2 skills(4) + location(5)
	if recs[0].Job.Title != "Senior Go Engineer" || recs[0].Score != 19 {
		t.Errorf("unexpected top recommendation: %s score %d", recs[0].Job.Title, recs[0].Score)
	}
	// senior profile, executive job: step-up(5)
	if recs[1].Job.Title != "VP Engineering" || recs[1].Score != 5 {
		t.Errorf("unexpected second recommendation: %s score %d", recs[1].Job.Title, recs[1].Score)
	}
}

func TestRank_CapsAtFive(t *testing.T) {
	profile := Profile{Level: model.LevelMid}
	var jobs []model.StoredJob
	for i := 0; i < 8; i++ {
		jobs = append(jobs, job("Engineer", model.LevelMid, "", ""))
	}

	r := NewRecommender(nil, testLogger())
	recs := r.Rank(context.Background(), profile, jobs)

	if len(recs) != 5 {
		t.Fatalf("expected 5 recommendations, got %d", len(recs))
	}
}

func TestRank_LLMPath(t *testing.T) {
	provider := &stubProvider{response: `{"recommendations": [
		{"index": 2, "reason": "strong skill overlap"},
		{"index": 99, "reason": "out of range, dropped"}
	]}`}
	jobs := []model.StoredJob{
		job("First", model.LevelMid, "", ""),
		job("Second", model.LevelMid, "", ""),
	}

	r := NewRecommender(provider, testLogger())
	recs := r.Rank(context.Background(), Profile{Level: model.LevelMid}, jobs)

	if len(recs) != 1 {
		t.Fatalf("expected 1 recommendation, got %d", len(recs))
	}
	if recs[0].Job.Title != "Second" || recs[0].Reason != "strong skill overlap" {
		t.Errorf("unexpected recommendation: %+v", recs[0])
	}
}

func TestRank_LLMFailureFallsBack(t *testing.T) {
	provider := &stubProvider{err: errors.New("timeout")}
	jobs := []model.StoredJob{
		job("Mid Engineer", model.LevelMid, "", ""),
	}

	r := NewRecommender(provider, testLogger())
	recs := r.Rank(context.Background(), Profile{Level: model.LevelMid}, jobs)

	if len(recs) != 1 {
		t.Fatalf("expected fallback scoring to produce 1 recommendation, got %d", len(recs))
	}
	if recs[0].Score != 10 {
		t.Errorf("expected fallback score 10, got %d", recs[0].Score)
	}
}

func TestRank_EmptyJobs(t *testing.T) {
	r := NewRecommender(nil, testLogger())
	if recs := r.Rank(context.Background(), Profile{}, nil); recs != nil {
		t.Fatalf("expected nil for no jobs, got %v", recs)
	}
}
