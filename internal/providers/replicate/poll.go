package replicate

import (
	"context"
	"fmt"
	"time"

	"adminpanel/internal/domain"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollTimeout  = 5 * time.Minute
)

type statusFetcher interface {
	FetchStatus(ctx context.Context, jobID string) (*domain.GenerationJob, error)
}

// PollOptions bounds the wait for a remote job. A zero MaxAttempts leaves the
// attempt count unbounded; Timeout still applies.
type PollOptions struct {
	Interval    time.Duration
	Timeout     time.Duration
	MaxAttempts int
}

// Poller waits for predictions to reach a terminal status.
type Poller struct {
	fetcher     statusFetcher
	interval    time.Duration
	timeout     time.Duration
	maxAttempts int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewPoller(fetcher statusFetcher, opts PollOptions) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	return &Poller{
		fetcher:     fetcher,
		interval:    interval,
		timeout:     timeout,
		maxAttempts: opts.MaxAttempts,
		now:         time.Now,
		sleep:       sleepContext,
	}
}

// AwaitCompletion fetches the job and waits until it is terminal.
func (p *Poller) AwaitCompletion(ctx context.Context, jobID string, onProgress func(domain.JobStatus)) (*domain.GenerationJob, error) {
	job, err := p.fetcher.FetchStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return p.Wait(ctx, job, onProgress)
}

// Wait polls from an already known snapshot, so a job that was terminal at
// submission is returned without any status request.
func (p *Poller) Wait(ctx context.Context, job *domain.GenerationJob, onProgress func(domain.JobStatus)) (*domain.GenerationJob, error) {
	if job == nil {
		return nil, fmt.Errorf("%w: no job to wait for", domain.ErrRemoteService)
	}
	started := p.now()
	attempts := 0
	for !job.Status.Terminal() {
		if onProgress != nil {
			onProgress(job.Status)
		}
		if p.maxAttempts > 0 && attempts >= p.maxAttempts {
			return nil, fmt.Errorf("%w: job %s still %s after %d status checks", domain.ErrJobTimeout, job.ID, job.Status, attempts)
		}
		if elapsed := p.now().Sub(started); elapsed+p.interval > p.timeout {
			return nil, fmt.Errorf("%w: job %s still %s after %s", domain.ErrJobTimeout, job.ID, job.Status, elapsed.Round(time.Millisecond))
		}
		if err := p.sleep(ctx, p.interval); err != nil {
			return nil, err
		}
		next, err := p.fetcher.FetchStatus(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		attempts++
		job = next
	}
	return finish(job)
}

func finish(job *domain.GenerationJob) (*domain.GenerationJob, error) {
	switch job.Status {
	case domain.JobStatusSucceeded:
		return job, nil
	default:
		msg := job.Error
		if msg == "" {
			msg = fmt.Sprintf("job %s", job.Status)
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrJobFailed, msg)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
