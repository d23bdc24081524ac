package harness

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/bingranl/task-mining/extract"
)

// Job pairs one artifact pair with the check that claims to prove it.
type Job struct {
	Key   string // stable sample key, e.g. "1913_149a345"
	Bad   extract.ArtifactVersion
	Good  extract.ArtifactVersion
	Check CheckSource
}

// JobResult is the outcome of one job.
type JobResult struct {
	Key     string
	Outcome *VerificationOutcome
}

// Summary counts outcomes by category.
type Summary struct {
	Proven       int
	Disproven    int
	Inconclusive int
	HarnessError int
}

// Add records one outcome.
func (s *Summary) Add(o Outcome) {
	switch o {
	case OutcomeProven:
		s.Proven++
	case OutcomeDisproven:
		s.Disproven++
	case OutcomeInconclusive:
		s.Inconclusive++
	case OutcomeHarnessError:
		s.HarnessError++
	}
}

// VerifyAll runs jobs concurrently with bounded parallelism. Jobs have no
// data dependency on each other and every run gets its own disposable
// directory, so workers never share mutable build-tool state. Results keep
// job order. The only error returned is context cancellation.
func (h *Harness) VerifyAll(ctx context.Context, jobs []Job, maxParallel int) ([]JobResult, error) {
	if maxParallel <= 0 {
		maxParallel = 2
	}

	results := make([]JobResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)

	for i := range jobs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			job := jobs[i]
			results[i] = JobResult{
				Key:     job.Key,
				Outcome: h.Verify(gctx, job.Bad, job.Good, job.Check),
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Summarize tallies job results by outcome.
func Summarize(results []JobResult) Summary {
	var s Summary
	for _, r := range results {
		if r.Outcome != nil {
			s.Add(r.Outcome.Outcome)
		}
	}
	return s
}
