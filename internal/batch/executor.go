// Package batch implements the UNWIND-batch write path: it partitions a
// record source into bounded chunks and executes one parameterized write
// statement per chunk. One round-trip per thousands of rows instead of one
// per row is the load's main throughput lever.
package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/graphmill/graphload/internal/graph"
	"github.com/graphmill/graphload/internal/source"
	"github.com/graphmill/graphload/internal/types"
)

// TotalUnknown marks a run whose record total was not counted upfront.
const TotalUnknown int64 = -1

// Options configures one executor run.
type Options struct {
	// Phase names the running phase in progress snapshots and logs.
	Phase string

	// BatchSize is the number of records bound per write statement. Must be
	// at least 1.
	BatchSize int

	// Total is the expected record count, or TotalUnknown when the caller
	// skipped the upfront counting pass.
	Total int64

	// MaxAttempts bounds retries of a transient chunk failure. Zero means
	// the default of 3.
	MaxAttempts int

	// BackoffBase is the first retry delay; each retry doubles it. Zero
	// means the default of 200ms.
	BackoffBase time.Duration

	// StatementTimeout bounds each chunk's write statement. Expiry is
	// classified transient and retried. Zero disables the bound.
	StatementTimeout time.Duration

	// ProgressRecords emits a snapshot every N processed records. Zero means
	// the default of 50000.
	ProgressRecords int64

	// ProgressChunks emits a snapshot every N chunks, whichever of the two
	// intervals is reached first. Zero means the default of 25.
	ProgressChunks int

	// OnProgress receives throttled snapshots and one final snapshot at
	// completion. Must be bounded-time; a slow observer stalls the writer.
	OnProgress func(Snapshot)

	// Workers dispatches chunks to a small bounded pool to overlap network
	// latency with batch preparation. Zero or 1 means sequential. Each
	// worker acquires its own session through the runner.
	Workers int

	// Limiter optionally throttles chunk dispatch.
	Limiter *rate.Limiter

	// sleep is the retry delay hook, replaced in tests.
	sleep func(context.Context, time.Duration) error
}

// FailedRange identifies a chunk that exhausted its retries: the half-open
// record offset range it covered and the final error.
type FailedRange struct {
	Offset int64
	Length int64
	Err    error
}

// Result is the outcome of one executor run. A run with failed ranges is a
// partial success: the caller inspects FailedRanges to decide whether to
// re-run the phase.
type Result struct {
	Processed    int64
	Failed       int64
	Chunks       int
	Retries      int
	FailedRanges []FailedRange
	Summary      graph.Summary
	Elapsed      time.Duration
}

// Executor runs batched writes against a graph runner.
type Executor struct {
	logger *slog.Logger
}

// NewExecutor creates an Executor logging through the given logger.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{logger: logger}
}

// Run partitions src into contiguous chunks of opts.BatchSize and executes
// template once per chunk with the chunk bound as the $batch parameter.
//
// Transient chunk failures are retried with bounded exponential backoff; on
// exhaustion the chunk's offset range is recorded and execution continues
// with the next chunk. Invalid statement errors abort immediately: a broken
// template fails every chunk the same way. Fatal classifications abort the
// run. Cancellation is honored between chunks, never mid-chunk; a committed
// batch is already durable.
//
// An empty source returns a zero-count success without issuing any write.
func (e *Executor) Run(ctx context.Context, runner graph.Runner, template string, src source.Source, opts Options) (Result, error) {
	if opts.BatchSize < 1 {
		return Result{}, types.NewError(types.BATCH_WRITE_FAILED,
			fmt.Sprintf("batch size must be >= 1, got %d", opts.BatchSize))
	}
	applyDefaults(&opts)

	start := time.Now()
	result := Result{}
	tracker := newProgressTracker(opts, start)

	if opts.Workers > 1 {
		err := e.runParallel(ctx, runner, template, src, opts, &result, tracker)
		result.Elapsed = time.Since(start)
		tracker.complete(&result)
		return result, err
	}

	var offset int64
	for {
		if err := ctx.Err(); err != nil {
			result.Elapsed = time.Since(start)
			return result, err
		}

		chunk, err := nextChunk(src, opts.BatchSize)
		if err != nil {
			result.Elapsed = time.Since(start)
			return result, err
		}
		if len(chunk) == 0 {
			break
		}

		outcome := e.writeChunk(ctx, runner, template, chunk, offset, opts)
		result.Chunks++
		result.Retries += outcome.retries
		if outcome.fatal != nil {
			result.Elapsed = time.Since(start)
			return result, outcome.fatal
		}
		if outcome.failed != nil {
			result.Failed += int64(len(chunk))
			result.FailedRanges = append(result.FailedRanges, *outcome.failed)
		} else {
			result.Processed += int64(len(chunk))
			accumulate(&result.Summary, outcome.summary)
		}

		offset += int64(len(chunk))
		tracker.observe(&result)
	}

	result.Elapsed = time.Since(start)
	tracker.complete(&result)
	return result, nil
}

// chunkOutcome is the result of writing one chunk, possibly after retries.
type chunkOutcome struct {
	summary graph.Summary
	retries int
	failed  *FailedRange
	fatal   error
}

// writeChunk executes one chunk with the configured retry policy.
func (e *Executor) writeChunk(ctx context.Context, runner graph.Runner, template string, chunk []map[string]any, offset int64, opts Options) chunkOutcome {
	var outcome chunkOutcome
	params := map[string]any{"batch": chunk}

	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		if opts.Limiter != nil {
			if err := opts.Limiter.Wait(ctx); err != nil {
				outcome.fatal = err
				return outcome
			}
		}

		writeCtx := ctx
		var cancel context.CancelFunc
		if opts.StatementTimeout > 0 {
			writeCtx, cancel = context.WithTimeout(ctx, opts.StatementTimeout)
		}
		res, err := runner.RunWrite(writeCtx, template, params)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			outcome.summary = res.Summary
			return outcome
		}

		switch graph.Classify(err) {
		case graph.ClassTransient:
			// Run-level cancellation also surfaces as a deadline error
			// from the driver; do not spin on a dead context.
			if ctx.Err() != nil {
				outcome.fatal = ctx.Err()
				return outcome
			}
			if attempt == opts.MaxAttempts-1 {
				outcome.failed = &FailedRange{
					Offset: offset,
					Length: int64(len(chunk)),
					Err: types.WrapError(types.BATCH_WRITE_FAILED,
						fmt.Sprintf("chunk at offset %d failed after %d attempts", offset, opts.MaxAttempts), err),
				}
				e.logger.WarnContext(ctx, "chunk failed after retry exhaustion",
					"phase", opts.Phase, "offset", offset, "records", len(chunk),
					"attempts", opts.MaxAttempts, "error", err)
				return outcome
			}
			outcome.retries++
			delay := opts.BackoffBase << attempt
			e.logger.DebugContext(ctx, "transient write error, backing off",
				"phase", opts.Phase, "offset", offset, "attempt", attempt+1, "delay", delay)
			if err := opts.sleep(ctx, delay); err != nil {
				outcome.fatal = err
				return outcome
			}

		case graph.ClassInvalid:
			// A malformed template or parameter shape fails every chunk
			// identically; surface immediately instead of grinding through
			// the rest of the phase.
			outcome.fatal = types.WrapError(types.WRITE_INVALID,
				fmt.Sprintf("invalid statement in phase %s", opts.Phase), err)
			return outcome

		default:
			outcome.fatal = err
			return outcome
		}
	}

	return outcome
}

// runParallel dispatches chunks to a bounded worker pool. Chunk write order
// across workers is not deterministic: MERGE is commutative over disjoint
// batches because target identifiers are unique keys. Workers report their
// counts back through mu; nothing else is shared mutably.
func (e *Executor) runParallel(ctx context.Context, runner graph.Runner, template string, src source.Source, opts Options, result *Result, tracker *progressTracker) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	var mu sync.Mutex
	var offset int64

	for {
		if err := gctx.Err(); err != nil {
			break
		}

		chunk, err := nextChunk(src, opts.BatchSize)
		if err != nil {
			_ = g.Wait()
			return err
		}
		if len(chunk) == 0 {
			break
		}

		chunkOffset := offset
		offset += int64(len(chunk))

		g.Go(func() error {
			outcome := e.writeChunk(gctx, runner, template, chunk, chunkOffset, opts)
			if outcome.fatal != nil {
				return outcome.fatal
			}

			mu.Lock()
			defer mu.Unlock()
			result.Chunks++
			result.Retries += outcome.retries
			if outcome.failed != nil {
				result.Failed += int64(len(chunk))
				result.FailedRanges = append(result.FailedRanges, *outcome.failed)
			} else {
				result.Processed += int64(len(chunk))
				accumulate(&result.Summary, outcome.summary)
			}
			tracker.observe(result)
			return nil
		})
	}

	return g.Wait()
}

// nextChunk reads up to batchSize records from src. Chunk boundaries never
// split a record.
func nextChunk(src source.Source, batchSize int) ([]map[string]any, error) {
	chunk := make([]map[string]any, 0, batchSize)
	for len(chunk) < batchSize {
		record, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		chunk = append(chunk, map[string]any(record))
	}
	return chunk, nil
}

func accumulate(into *graph.Summary, from graph.Summary) {
	into.NodesCreated += from.NodesCreated
	into.RelationshipsCreated += from.RelationshipsCreated
	into.PropertiesSet += from.PropertiesSet
}

func applyDefaults(opts *Options) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 200 * time.Millisecond
	}
	if opts.ProgressRecords <= 0 {
		opts.ProgressRecords = 50000
	}
	if opts.ProgressChunks <= 0 {
		opts.ProgressChunks = 25
	}
	if opts.Total == 0 {
		opts.Total = TotalUnknown
	}
	if opts.sleep == nil {
		opts.sleep = sleepCtx
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
