package batch

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time view of a running phase's progress.
type Snapshot struct {
	Phase     string        `json:"phase"`
	Processed int64         `json:"processed"`
	Total     int64         `json:"total"`
	Chunks    int           `json:"chunks"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Percent reports completion as a percentage, or -1 when the total is
// unknown.
func (s Snapshot) Percent() float64 {
	if s.Total <= 0 {
		return -1
	}
	return float64(s.Processed) / float64(s.Total) * 100
}

// progressTracker throttles snapshot emission by records-or-chunks interval,
// whichever is reached first, plus one unconditional snapshot at completion.
type progressTracker struct {
	opts  Options
	start time.Time

	mu           sync.Mutex
	lastRecords  int64
	lastChunks   int
	emittedFinal bool
}

func newProgressTracker(opts Options, start time.Time) *progressTracker {
	return &progressTracker{opts: opts, start: start}
}

// observe emits a snapshot when either throttle interval has elapsed since
// the last emission. Called with the result's counts already updated.
func (p *progressTracker) observe(result *Result) {
	if p.opts.OnProgress == nil {
		return
	}
	p.mu.Lock()
	processed := result.Processed + result.Failed
	if processed-p.lastRecords < p.opts.ProgressRecords && result.Chunks-p.lastChunks < p.opts.ProgressChunks {
		p.mu.Unlock()
		return
	}
	p.lastRecords = processed
	p.lastChunks = result.Chunks
	snap := p.snapshot(result)
	p.mu.Unlock()

	p.opts.OnProgress(snap)
}

// complete emits the final snapshot exactly once.
func (p *progressTracker) complete(result *Result) {
	if p.opts.OnProgress == nil {
		return
	}
	p.mu.Lock()
	if p.emittedFinal {
		p.mu.Unlock()
		return
	}
	p.emittedFinal = true
	snap := p.snapshot(result)
	p.mu.Unlock()

	p.opts.OnProgress(snap)
}

func (p *progressTracker) snapshot(result *Result) Snapshot {
	return Snapshot{
		Phase:     p.opts.Phase,
		Processed: result.Processed + result.Failed,
		Total:     p.opts.Total,
		Chunks:    result.Chunks,
		Elapsed:   time.Since(p.start),
	}
}
