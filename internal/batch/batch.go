// Package batch implements the configuration-file-driven job runner
// named in spec.md §6's "client <config.json>" CLI surface: a JSON
// document listing download and upload jobs against one or more
// servers, executed concurrently.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/tftpcore/tftpd/internal/logging"
	"github.com/tftpcore/tftpd/internal/transfer"
)

// JobKind distinguishes a download from an upload job.
type JobKind string

const (
	KindDownload JobKind = "download"
	KindUpload   JobKind = "upload"
)

// Job is one entry in a config.json job list.
type Job struct {
	Kind     JobKind `json:"kind"`
	Server   string  `json:"server"`
	Filename string  `json:"filename"`
}

// Config is the top-level config.json shape: a default timeout/retry
// pair plus the job list.
type Config struct {
	TimeoutMillis int   `json:"timeout_ms"`
	MaxRetries    int   `json:"max_retries"`
	Jobs          []Job `json:"jobs"`
}

// Decode parses a config.json document.
func Decode(r io.Reader) (Config, error) {
	var cfg Config
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode batch config: %w", err)
	}
	return cfg, nil
}

// Result pairs one job with its outcome.
type Result struct {
	Job     Job
	Outcome transfer.Outcome
}

// Run executes every job in cfg concurrently via errgroup, resolving
// each job's transfer.Config from cfg's defaults, and aggregates every
// job that failed into a single multierr error. It returns the full
// per-job result list regardless of failures, so callers can report
// which jobs succeeded.
func Run(ctx context.Context, cfg Config, log logging.Sink) ([]Result, error) {
	results := make([]Result, len(cfg.Jobs))
	g, _ := errgroup.WithContext(ctx)

	tcfg := transfer.Config{Log: log}
	if cfg.TimeoutMillis > 0 {
		tcfg.Timeout = time.Duration(cfg.TimeoutMillis) * time.Millisecond
	}
	if cfg.MaxRetries > 0 {
		tcfg.MaxRetries = cfg.MaxRetries
	}

	for i, job := range cfg.Jobs {
		i, job := i, job
		g.Go(func() error {
			outcome, err := runJob(job, tcfg)
			results[i] = Result{Job: job, Outcome: outcome}
			return err
		})
	}

	var aggregate error
	if err := g.Wait(); err != nil {
		aggregate = err
	}
	for _, r := range results {
		if r.Outcome.Kind == transfer.KindSuccess {
			continue
		}
		if r.Outcome.Err != nil {
			aggregate = multierr.Append(aggregate, fmt.Errorf("%s %s: %w", r.Job.Kind, r.Job.Filename, r.Outcome.Err))
		} else {
			aggregate = multierr.Append(aggregate, fmt.Errorf("%s %s: %s", r.Job.Kind, r.Job.Filename, r.Outcome.Kind))
		}
	}
	return results, aggregate
}

func runJob(job Job, cfg transfer.Config) (transfer.Outcome, error) {
	addr, err := net.ResolveUDPAddr("udp", job.Server)
	if err != nil {
		return transfer.Outcome{Kind: transfer.KindInvalidServerResponse, Err: err}, err
	}

	done := make(chan transfer.Outcome, 1)
	onDone := func(o transfer.Outcome) { done <- o }

	switch job.Kind {
	case KindDownload:
		worker, err := transfer.NewDownloadClient(addr, job.Filename, cfg, onDone)
		if err != nil {
			return transfer.Outcome{Kind: transfer.KindConnectionLost, Err: err}, err
		}
		worker.Start()
	case KindUpload:
		worker, err := transfer.NewUploadClient(addr, job.Filename, cfg, onDone)
		if err != nil {
			return transfer.Outcome{Kind: transfer.KindConnectionLost, Err: err}, err
		}
		worker.Start()
	default:
		err := fmt.Errorf("unknown job kind %q", job.Kind)
		return transfer.Outcome{Kind: transfer.KindInvalidServerResponse, Err: err}, err
	}

	outcome := <-done
	if outcome.Kind != transfer.KindSuccess {
		return outcome, outcome.Err
	}
	return outcome, nil
}
