// Package schema creates uniqueness constraints and indexes ahead of any data
// phase. Constraint-before-data ordering is the load's central performance
// invariant: a MERGE against an unconstrained label degrades from an indexed
// lookup to a full label scan.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/graphmill/graphload/internal/graph"
	"github.com/graphmill/graphload/internal/neoversion"
	"github.com/graphmill/graphload/internal/types"
)

// ConstraintSpec declares one uniqueness constraint: the target label and the
// property (or composite property set) that must be unique.
type ConstraintSpec struct {
	Name       string   `yaml:"name"`
	Label      string   `yaml:"label"`
	Properties []string `yaml:"properties"`
}

// IndexSpec declares one secondary index used by read queries after the load.
type IndexSpec struct {
	Name       string   `yaml:"name"`
	Label      string   `yaml:"label"`
	Properties []string `yaml:"properties"`
}

// StatementStatus records the outcome of one DDL statement.
type StatementStatus struct {
	Name      string
	Statement string
	Err       error
}

// Report is the per-statement outcome of an Apply call. A failed statement is
// recorded here rather than aborting the others; the caller decides whether a
// partially applied schema is acceptable.
type Report struct {
	Constraints []StatementStatus
	Indexes     []StatementStatus
}

// Failed returns the statuses that carry an error.
func (r Report) Failed() []StatementStatus {
	var failed []StatementStatus
	for _, s := range append(append([]StatementStatus{}, r.Constraints...), r.Indexes...) {
		if s.Err != nil {
			failed = append(failed, s)
		}
	}
	return failed
}

// AllApplied reports whether every statement succeeded.
func (r Report) AllApplied() bool {
	return len(r.Failed()) == 0
}

// Orchestrator renders constraint and index DDL through a dialect and applies
// it idempotently. Re-running Apply across resumed runs is a no-op because
// every statement carries IF NOT EXISTS.
type Orchestrator struct {
	dialect neoversion.Dialect
	logger  *slog.Logger
}

// NewOrchestrator creates an Orchestrator for the given dialect.
func NewOrchestrator(dialect neoversion.Dialect, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{dialect: dialect, logger: logger}
}

// Apply issues all constraint statements, then all index statements. The
// ordering matters: constraints carry the unique indexes MERGE depends on,
// so they go first, and both categories complete before any data phase runs.
//
// Statements are independent: one failure is recorded in the report and does
// not stop the rest. The report is surfaced to the caller as a non-fatal
// per-statement status, matching the "load as much as possible" policy.
func (o *Orchestrator) Apply(ctx context.Context, runner graph.Runner, constraints []ConstraintSpec, indexes []IndexSpec) (Report, error) {
	var report Report

	for _, spec := range constraints {
		if err := validateSpec(spec.Name, spec.Label, spec.Properties); err != nil {
			report.Constraints = append(report.Constraints, StatementStatus{Name: spec.Name, Err: err})
			continue
		}

		stmt := o.dialect.CreateUniqueConstraint(spec.Name, spec.Label, spec.Properties)
		status := StatementStatus{Name: spec.Name, Statement: stmt}

		start := time.Now()
		if _, err := runner.RunWrite(ctx, stmt, nil); err != nil {
			if graph.Classify(err) == graph.ClassFatal {
				return report, types.WrapError(types.SCHEMA_APPLY_FAILED,
					fmt.Sprintf("fatal error applying constraint %q", spec.Name), err)
			}
			status.Err = types.WrapError(types.SCHEMA_APPLY_FAILED,
				fmt.Sprintf("constraint %q failed", spec.Name), err)
			o.logger.WarnContext(ctx, "constraint creation failed",
				"constraint", spec.Name, "error", err)
		} else {
			o.logger.DebugContext(ctx, "constraint applied",
				"constraint", spec.Name, "elapsed", time.Since(start))
		}

		report.Constraints = append(report.Constraints, status)

		if ctx.Err() != nil {
			return report, ctx.Err()
		}
	}

	for _, spec := range indexes {
		if err := validateSpec(spec.Name, spec.Label, spec.Properties); err != nil {
			report.Indexes = append(report.Indexes, StatementStatus{Name: spec.Name, Err: err})
			continue
		}

		stmt := o.dialect.CreateIndex(spec.Name, spec.Label, spec.Properties)
		status := StatementStatus{Name: spec.Name, Statement: stmt}

		if _, err := runner.RunWrite(ctx, stmt, nil); err != nil {
			if graph.Classify(err) == graph.ClassFatal {
				return report, types.WrapError(types.SCHEMA_APPLY_FAILED,
					fmt.Sprintf("fatal error applying index %q", spec.Name), err)
			}
			status.Err = types.WrapError(types.SCHEMA_APPLY_FAILED,
				fmt.Sprintf("index %q failed", spec.Name), err)
			o.logger.WarnContext(ctx, "index creation failed",
				"index", spec.Name, "error", err)
		}

		report.Indexes = append(report.Indexes, status)

		if ctx.Err() != nil {
			return report, ctx.Err()
		}
	}

	return report, nil
}

func validateSpec(name, label string, props []string) error {
	if name == "" || label == "" || len(props) == 0 {
		return types.NewError(types.SCHEMA_APPLY_FAILED,
			fmt.Sprintf("spec %q must carry a name, a label and at least one property", name))
	}
	return nil
}
