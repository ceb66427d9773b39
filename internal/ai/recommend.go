package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mpetrov/jobpool/internal/model"
)

const (
	maxRecommendations = 5
	// Upper bound on how many jobs the LLM prompt lists.
	maxPromptJobs = 20
)

// Profile describes the person jobs are ranked for.
type Profile struct {
	Experience string      `yaml:"experience"`
	Skills     []string    `yaml:"skills"`
	Level      model.Level `yaml:"level"`
	Location   string      `yaml:"location"`
}

// Recommendation pairs a job with its rank rationale.
type Recommendation struct {
	Job    model.StoredJob
	Score  int
	Reason string
}

// Recommender ranks stored jobs against a profile. With a provider it
// asks the model; without one, or when the model's answer is unusable,
// it falls back to deterministic scoring so recommendations always
// come back.
type Recommender struct {
	provider LLMProvider // nil means fallback scoring only
	logger   *slog.Logger
}

// NewRecommender creates a recommender. provider may be nil.
func NewRecommender(provider LLMProvider, logger *slog.Logger) *Recommender {
	return &Recommender{provider: provider, logger: logger}
}

// Rank returns up to five jobs ordered by fit.
func (r *Recommender) Rank(ctx context.Context, profile Profile, jobs []model.StoredJob) []Recommendation {
	if len(jobs) == 0 {
		return nil
	}

	if r.provider != nil {
		if recs := r.rankWithLLM(ctx, profile, jobs); recs != nil {
			return recs
		}
	}
	return rankDeterministic(profile, jobs)
}

const recommendSystemPrompt = "You are a career advisor matching a candidate profile against job postings."

type llmRecommendation struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

type llmRecommendations struct {
	Recommendations []llmRecommendation `json:"recommendations"`
}

func (r *Recommender) rankWithLLM(ctx context.Context, profile Profile, jobs []model.StoredJob) []Recommendation {
	listed := jobs
	if len(listed) > maxPromptJobs {
		listed = listed[:maxPromptJobs]
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Pick the best matches for this candidate.

Candidate:
- experience: %s
- skills: %s
- level: %s
- location: %s

Jobs (numbered):
`, profile.Experience, strings.Join(profile.Skills, ", "), profile.Level, profile.Location)
	for i, job := range listed {
		fmt.Fprintf(&b, "%d. %s at %s (%s, %s): %s\n",
			i+1, job.Title, job.Company, job.Location, job.Level, snippet(job.Description, 200))
	}
	fmt.Fprintf(&b, `
Return a JSON object: {"recommendations": [{"index": <job number>, "reason": "<one sentence>"}]}.
At most %d recommendations, best match first.`, maxRecommendations)

	raw, err := r.provider.Complete(ctx, recommendSystemPrompt, b.String())
	if err != nil {
		r.logger.Warn("llm ranking failed, using fallback scoring", "error", err)
		return nil
	}

	var parsed llmRecommendations
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || len(parsed.Recommendations) == 0 {
		r.logger.Warn("llm ranking response unusable, using fallback scoring")
		return nil
	}

	var recs []Recommendation
	for _, lr := range parsed.Recommendations {
		if lr.Index < 1 || lr.Index > len(listed) {
			continue
		}
		recs = append(recs, Recommendation{Job: listed[lr.Index-1], Reason: lr.Reason})
		if len(recs) == maxRecommendations {
			break
		}
	}
	if len(recs) == 0 {
		return nil
	}
	return recs
}

// rankDeterministic scores each job against the profile: exact level
// match counts most, adjacent-level stretch roles a little, then skill
// mentions and location overlap.
func rankDeterministic(profile Profile, jobs []model.StoredJob) []Recommendation {
	recs := make([]Recommendation, 0, len(jobs))
	for _, job := range jobs {
		score := 0
		var reasons []string

		switch {
		case job.Level == profile.Level:
			score += 10
			reasons = append(reasons, "level match")
		case profile.Level == model.LevelSenior && job.Level == model.LevelExecutive:
			score += 5
			reasons = append(reasons, "step-up role")
		case profile.Level == model.LevelMid && job.Level == model.LevelSenior:
			score += 3
			reasons = append(reasons, "step-up role")
		}

		text := strings.ToLower(job.Title + " " + job.Description)
		matched := 0
		for _, skill := range profile.Skills {
			if skill != "" && strings.Contains(text, strings.ToLower(skill)) {
				score += 2
				matched++
			}
		}
		if matched > 0 {
			reasons = append(reasons, fmt.Sprintf("%d skill(s) mentioned", matched))
		}

		if profile.Location != "" &&
			strings.Contains(strings.ToLower(job.Location), strings.ToLower(profile.Location)) {
			score += 5
			reasons = append(reasons, "location match")
		}

		if score == 0 {
			continue
		}
		recs = append(recs, Recommendation{Job: job, Score: score, Reason: strings.Join(reasons, ", ")})
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })
	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}
	return recs
}

func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
