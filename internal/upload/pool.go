package upload

import (
	"context"
	"fmt"
	"sync"
)

// Job is one archive blob queued for upload.
type Job struct {
	Index int
	Key   string
	Blob  []byte
}

// CommitFunc is invoked exactly once per uploaded job, in strictly
// increasing Index order regardless of upload completion order. This is
// the commit barrier that keeps manifest entries ordered while uploads
// run concurrently.
type CommitFunc func(job Job, token Token) error

type result struct {
	job   Job
	token Token
	err   error
}

// UploadOrdered drains jobs with at most workers concurrent uploads,
// committing completed uploads in index order starting at startIndex.
// The first upload or commit failure cancels the remaining work; in-flight
// uploads finish or fail on their own, never half-aborted.
func (c *Coordinator) UploadOrdered(ctx context.Context, jobs <-chan Job, workers, startIndex int, commit CommitFunc) error {
	if workers <= 0 {
		workers = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan result, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if runCtx.Err() != nil {
					results <- result{job: job, err: runCtx.Err()}
					continue
				}
				token, err := c.Upload(runCtx, job.Key, job.Blob)
				results <- result{job: job, token: token, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	// Commit barrier: completed uploads park in pending until every lower
	// index has been committed.
	pending := make(map[int]result)
	next := startIndex
	var firstErr error

	for res := range results {
		if res.err != nil && firstErr == nil {
			firstErr = fmt.Errorf("upload batch %d: %w", res.job.Index, res.err)
			cancel()
			continue
		}
		if firstErr != nil {
			continue
		}

		pending[res.job.Index] = res
		for {
			r, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			if err := commit(r.job, r.token); err != nil {
				firstErr = fmt.Errorf("commit batch %d: %w", r.job.Index, err)
				cancel()
				break
			}
			next++
		}
	}

	return firstErr
}
