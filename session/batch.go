package session

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/wudi/pdfredact/observability"
	"github.com/wudi/pdfredact/redact"
	"github.com/wudi/pdfredact/search"
)

// Job redacts every match of Queries in one document.
type Job struct {
	Name     string
	Data     []byte
	Password string
	Queries  []search.Query
	Style    redact.Style
}

// Result is the outcome of one Job. Output is nil when Err is set.
type Result struct {
	Name    string
	Matches int
	Report  *redact.Report
	Output  []byte
	Err     error
}

// Batch runs jobs with at most concurrency documents open at once. Results
// keep the order of jobs; a failed job does not stop the others. The
// error is only set when ctx ends.
func (m *Manager) Batch(ctx context.Context, jobs []Job, concurrency int) ([]Result, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]Result, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				results[i] = Result{Name: job.Name, Err: gctx.Err()}
				return gctx.Err()
			default:
			}
			results[i] = m.runJob(gctx, job)
			if results[i].Err != nil {
				m.log.Warn("batch job failed",
					observability.String("name", job.Name),
					observability.Error("error", results[i].Err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

func (m *Manager) runJob(ctx context.Context, job Job) Result {
	res := Result{Name: job.Name}
	h, err := m.open(ctx, job.Data, job.Password, job.Name)
	if err != nil {
		res.Err = fmt.Errorf("open %s: %w", job.Name, err)
		return res
	}
	defer m.Close(h)

	res.Report = &redact.Report{}
	for _, q := range job.Queries {
		sr, err := m.RedactSearch(ctx, h, q, job.Style)
		if err != nil {
			res.Err = fmt.Errorf("redact %q in %s: %w", q.Text, job.Name, err)
			return res
		}
		res.Matches += len(sr.Matches)
		res.Report.Items = append(res.Report.Items, sr.Report.Items...)
		res.Report.Pages = append(res.Report.Pages, sr.Report.Pages...)
	}
	if res.Output, err = m.Save(ctx, h, nil); err != nil {
		res.Err = fmt.Errorf("save %s: %w", job.Name, err)
	}
	return res
}
