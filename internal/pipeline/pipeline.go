// Package pipeline orchestrates a complete load: probe the server, select a
// dialect, apply schema, run the data phases, verify counts. The pipeline
// owns the run's state machine; callers drive it once via Run and read the
// summary.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/graphmill/graphload/internal/batch"
	"github.com/graphmill/graphload/internal/checkpoint"
	"github.com/graphmill/graphload/internal/config"
	"github.com/graphmill/graphload/internal/graph"
	"github.com/graphmill/graphload/internal/job"
	"github.com/graphmill/graphload/internal/neoversion"
	"github.com/graphmill/graphload/internal/observability"
	"github.com/graphmill/graphload/internal/phase"
	"github.com/graphmill/graphload/internal/schema"
	"github.com/graphmill/graphload/internal/source"
	"github.com/graphmill/graphload/internal/types"
)

// PhaseResult records the outcome of one executed phase.
type PhaseResult struct {
	PhaseID      int                 `json:"phase_id"`
	Name         string              `json:"name"`
	Kind         phase.Kind          `json:"kind"`
	Processed    int64               `json:"processed"`
	Skipped      int64               `json:"skipped"`
	Failed       int64               `json:"failed"`
	Chunks       int                 `json:"chunks"`
	Retries      int                 `json:"retries"`
	FailedRanges []batch.FailedRange `json:"failed_ranges,omitempty"`
	Elapsed      time.Duration       `json:"elapsed"`
}

// Verification holds post-load count queries keyed by label and
// relationship type.
type Verification struct {
	NodeCounts         map[string]int64 `json:"node_counts"`
	RelationshipCounts map[string]int64 `json:"relationship_counts"`
}

// Summary is the complete record of one pipeline run.
type Summary struct {
	RunID        string               `json:"run_id"`
	Manifest     string               `json:"manifest"`
	Profile      neoversion.Profile   `json:"profile"`
	Dialect      neoversion.DialectID `json:"dialect"`
	Schema       schema.Report        `json:"schema"`
	Phases       []PhaseResult        `json:"phases"`
	Verification *Verification        `json:"verification,omitempty"`
	State        State                `json:"state"`
	Elapsed      time.Duration        `json:"elapsed"`
}

// TotalProcessed sums processed records across all phases.
func (s *Summary) TotalProcessed() int64 {
	var n int64
	for _, p := range s.Phases {
		n += p.Processed
	}
	return n
}

// TotalSkipped sums records dropped by source transforms across all phases.
func (s *Summary) TotalSkipped() int64 {
	var n int64
	for _, p := range s.Phases {
		n += p.Skipped
	}
	return n
}

// TotalFailed sums failed records across all phases.
func (s *Summary) TotalFailed() int64 {
	var n int64
	for _, p := range s.Phases {
		n += p.Failed
	}
	return n
}

// Options configures a Pipeline.
type Options struct {
	Config   *config.Config
	Manifest *job.Manifest
	Runner   graph.Runner

	// Checkpoint optionally records run and phase completions. A nil store
	// disables checkpointing.
	Checkpoint *checkpoint.Store

	Logger *slog.Logger

	// OnProgress receives throttled batch progress snapshots.
	OnProgress func(batch.Snapshot)
}

// RunOptions selects what one Run call executes.
type RunOptions struct {
	// PhaseIDs restricts the run to a subset of the plan, in ascending ID
	// order. Empty runs the full plan. Schema always reapplies first; the
	// DDL is idempotent, and a resumed run must not write data ahead of its
	// constraints.
	PhaseIDs []int

	// SkipRowCount skips the upfront record-counting pass; progress then
	// reports an unknown total.
	SkipRowCount bool
}

// Pipeline runs one load end to end.
type Pipeline struct {
	cfg        *config.Config
	manifest   *job.Manifest
	runner     graph.Runner
	store      *checkpoint.Store
	logger     *slog.Logger
	onProgress func(batch.Snapshot)

	state        State
	dialect      neoversion.Dialect
	checkpointed bool
}

// New creates a Pipeline in the initial state.
func New(opts Options) (*Pipeline, error) {
	if opts.Runner == nil {
		return nil, types.NewError(types.CONFIG_VALIDATION_FAILED, "pipeline requires a runner")
	}
	if opts.Manifest == nil {
		return nil, types.NewError(types.CONFIG_VALIDATION_FAILED, "pipeline requires a manifest")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:        cfg,
		manifest:   opts.Manifest,
		runner:     opts.Runner,
		store:      opts.Checkpoint,
		logger:     logger,
		onProgress: opts.OnProgress,
		state:      StateInit,
	}, nil
}

// State returns the pipeline's current state.
func (p *Pipeline) State() State {
	return p.state
}

// Run executes the load. The summary is returned for failed runs too, with
// the phases that completed before the failure.
func (p *Pipeline) Run(ctx context.Context, run RunOptions) (*Summary, error) {
	start := time.Now()
	summary := &Summary{
		RunID:    uuid.NewString(),
		Manifest: p.manifest.Name,
	}
	logger := observability.RunLogger(p.logger, summary.RunID)

	finish := func(err error) (*Summary, error) {
		if err != nil {
			p.fail()
		}
		summary.State = p.state
		summary.Elapsed = time.Since(start)
		p.finishCheckpoint(ctx, summary, logger)
		return summary, err
	}

	// Probing
	p.transition(StateProbing)
	if err := p.runner.Connect(ctx); err != nil {
		return finish(err)
	}
	profile, err := neoversion.Probe(ctx, p.runner)
	if err != nil {
		return finish(err)
	}
	dialect, err := neoversion.Select(profile)
	if err != nil {
		return finish(err)
	}
	p.dialect = dialect
	summary.Profile = profile
	summary.Dialect = dialect.ID
	logger.InfoContext(ctx, "server probed",
		"version", profile.FullVersion, "edition", profile.Edition, "dialect", dialect.ID)

	p.beginCheckpoint(ctx, summary, logger)

	// Schema
	p.transition(StateSchema)
	orch := schema.NewOrchestrator(p.dialect, logger)
	report, err := orch.Apply(ctx, p.runner, p.manifest.Constraints, p.manifest.Indexes)
	summary.Schema = report
	if err != nil {
		return finish(err)
	}

	// Loading
	p.transition(StateLoading)
	phases, err := p.selectPhases(run)
	if err != nil {
		return finish(err)
	}

	wantVerify := false
	for _, ph := range phases {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		switch ph.Kind {
		case phase.KindSchema:
			// Applied above; the phase entry keeps schema addressable in
			// subset runs.
			summary.Phases = append(summary.Phases, PhaseResult{
				PhaseID: ph.ID, Name: ph.Name, Kind: ph.Kind,
			})
		case phase.KindVerify:
			wantVerify = true
		default:
			result, err := p.runDataPhase(ctx, ph, run, logger)
			summary.Phases = append(summary.Phases, result)
			p.recordPhase(ctx, summary.RunID, result, logger)
			if err != nil {
				return finish(err)
			}
		}
	}

	// Verifying
	if wantVerify {
		p.transition(StateVerifying)
		verification, err := p.verify(ctx, logger)
		if err != nil {
			return finish(err)
		}
		summary.Verification = verification
	}

	p.transition(StateDone)
	logger.InfoContext(ctx, "load complete",
		"processed", summary.TotalProcessed(), "skipped", summary.TotalSkipped(),
		"failed", summary.TotalFailed(), "elapsed", time.Since(start))
	return finish(nil)
}

// selectPhases resolves the run's phase list from the manifest plan.
func (p *Pipeline) selectPhases(run RunOptions) ([]phase.Phase, error) {
	plan, err := p.manifest.Plan()
	if err != nil {
		return nil, err
	}
	if len(run.PhaseIDs) == 0 {
		return plan.Phases(), nil
	}
	return plan.Subset(run.PhaseIDs)
}

// runDataPhase opens the phase's source and drives the batch executor.
func (p *Pipeline) runDataPhase(ctx context.Context, ph phase.Phase, run RunOptions, logger *slog.Logger) (PhaseResult, error) {
	phaseStart := time.Now()
	result := PhaseResult{PhaseID: ph.ID, Name: ph.Name, Kind: ph.Kind}
	phaseLogger := observability.PhaseLogger(logger, ph.ID, ph.Name)

	template, err := p.renderTemplate(ph)
	if err != nil {
		return result, err
	}

	total := batch.TotalUnknown
	if !run.SkipRowCount && !p.cfg.Load.SkipRowCount {
		if n, err := p.manifest.CountSource(ph.Source); err == nil && n >= 0 {
			total = n
		}
	}

	src, err := p.manifest.OpenSource(ph.Source)
	if err != nil {
		return result, err
	}
	defer src.Close()

	batchSize := p.cfg.Load.BatchSize
	if ph.BatchSize > 0 {
		batchSize = ph.BatchSize
	}
	var limiter *rate.Limiter
	if p.cfg.Load.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(p.cfg.Load.RatePerSecond), 1)
	}

	phaseLogger.InfoContext(ctx, "phase starting", "total", total, "batch_size", batchSize)

	exec := batch.NewExecutor(phaseLogger)
	res, err := exec.Run(ctx, p.runner, template, src, batch.Options{
		Phase:            ph.Name,
		BatchSize:        batchSize,
		Total:            total,
		MaxAttempts:      p.cfg.Load.MaxAttempts,
		BackoffBase:      p.cfg.Load.BackoffBase,
		StatementTimeout: p.cfg.Load.StatementTimeout,
		ProgressRecords:  p.cfg.Load.ProgressRecords,
		ProgressChunks:   p.cfg.Load.ProgressChunks,
		Workers:          p.cfg.Load.Workers,
		Limiter:          limiter,
		OnProgress:       p.onProgress,
	})

	result.Processed = res.Processed
	result.Failed = res.Failed
	if sk, ok := src.(source.Skipper); ok {
		result.Skipped = sk.Skipped()
	}
	result.Chunks = res.Chunks
	result.Retries = res.Retries
	result.FailedRanges = res.FailedRanges
	result.Elapsed = time.Since(phaseStart)

	if err != nil {
		return result, err
	}
	phaseLogger.InfoContext(ctx, "phase complete",
		"processed", result.Processed, "failed", result.Failed, "elapsed", result.Elapsed)
	return result, nil
}

// renderTemplate resolves the phase's write statement: explicit Cypher from
// the manifest, or a merge spec rendered through the selected dialect.
func (p *Pipeline) renderTemplate(ph phase.Phase) (string, error) {
	spec, ok := p.manifest.PhaseSpecByID(ph.ID)
	if !ok {
		return "", types.NewError(types.PHASE_UNKNOWN, fmt.Sprintf("no manifest entry for phase %d", ph.ID))
	}
	switch {
	case spec.Cypher != "":
		return spec.Cypher, nil
	case spec.Merge != nil:
		return p.dialect.MergeNode(spec.Merge.Label, spec.Merge.Keys), nil
	case spec.Relationship != nil:
		r := spec.Relationship
		return p.dialect.MergeRelationship(r.Type,
			neoversion.RelEndpoint{Label: r.From.Label, KeyProp: r.From.Key, RowField: r.From.Field},
			neoversion.RelEndpoint{Label: r.To.Label, KeyProp: r.To.Key, RowField: r.To.Field},
			r.WithProps), nil
	default:
		return "", types.NewError(types.PHASE_UNKNOWN,
			fmt.Sprintf("phase %q has no statement", ph.Name))
	}
}

// verify runs count queries for every label and relationship type the
// manifest writes.
func (p *Pipeline) verify(ctx context.Context, logger *slog.Logger) (*Verification, error) {
	v := &Verification{
		NodeCounts:         make(map[string]int64),
		RelationshipCounts: make(map[string]int64),
	}

	for _, label := range p.targetLabels() {
		count, err := p.runCount(ctx, p.dialect.CountNodes(label))
		if err != nil {
			return nil, err
		}
		v.NodeCounts[label] = count
	}
	for _, relType := range p.targetRelTypes() {
		count, err := p.runCount(ctx, p.dialect.CountRelationships(relType))
		if err != nil {
			return nil, err
		}
		v.RelationshipCounts[relType] = count
	}

	logger.InfoContext(ctx, "verification complete",
		"labels", len(v.NodeCounts), "relationship_types", len(v.RelationshipCounts))
	return v, nil
}

func (p *Pipeline) runCount(ctx context.Context, query string) (int64, error) {
	res, err := p.runner.Run(ctx, query, nil)
	if err != nil {
		return 0, err
	}
	if len(res.Records) == 0 {
		return 0, nil
	}
	switch n := res.Records[0]["count"].(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, nil
	}
}

// targetLabels collects the distinct node labels the manifest writes, in
// stable order.
func (p *Pipeline) targetLabels() []string {
	seen := make(map[string]bool)
	var labels []string
	add := func(label string) {
		if label != "" && !seen[label] {
			seen[label] = true
			labels = append(labels, label)
		}
	}
	for _, spec := range p.manifest.Phases {
		if spec.Merge != nil {
			add(spec.Merge.Label)
		}
	}
	return labels
}

// targetRelTypes collects the distinct relationship types the manifest
// writes, in stable order.
func (p *Pipeline) targetRelTypes() []string {
	seen := make(map[string]bool)
	var relTypes []string
	for _, spec := range p.manifest.Phases {
		if spec.Relationship != nil && spec.Relationship.Type != "" && !seen[spec.Relationship.Type] {
			seen[spec.Relationship.Type] = true
			relTypes = append(relTypes, spec.Relationship.Type)
		}
	}
	return relTypes
}

// beginCheckpoint records the run start. Checkpointing is informational;
// store failures log a warning and never fail the load.
func (p *Pipeline) beginCheckpoint(ctx context.Context, summary *Summary, logger *slog.Logger) {
	if p.store == nil {
		return
	}
	err := p.store.BeginRun(ctx, checkpoint.RunRecord{
		ID:            summary.RunID,
		Manifest:      summary.Manifest,
		Database:      p.cfg.Neo4j.Database,
		ServerVersion: summary.Profile.FullVersion,
		StartedAt:     time.Now(),
	})
	if err != nil {
		logger.WarnContext(ctx, "failed to record run start", "error", err)
		return
	}
	p.checkpointed = true
}

func (p *Pipeline) recordPhase(ctx context.Context, runID string, result PhaseResult, logger *slog.Logger) {
	if p.store == nil || !p.checkpointed {
		return
	}
	err := p.store.RecordPhase(ctx, checkpoint.PhaseRecord{
		RunID:       runID,
		PhaseID:     result.PhaseID,
		Name:        result.Name,
		Processed:   result.Processed,
		Failed:      result.Failed,
		Chunks:      result.Chunks,
		Retries:     result.Retries,
		CompletedAt: time.Now(),
	})
	if err != nil {
		logger.WarnContext(ctx, "failed to record phase completion", "error", err)
	}
}

func (p *Pipeline) finishCheckpoint(ctx context.Context, summary *Summary, logger *slog.Logger) {
	if p.store == nil || !p.checkpointed {
		return
	}
	status := checkpoint.RunStatusCompleted
	if p.state == StateFailed {
		status = checkpoint.RunStatusFailed
	}
	if err := p.store.FinishRun(ctx, summary.RunID, status); err != nil {
		logger.WarnContext(ctx, "failed to record run finish", "error", err)
	}
}
