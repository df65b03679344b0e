// Package phase models a load as an ordered series of numbered phases:
// schema first, then lookup tables, then nodes, then relationships, then
// verification. The ordering is load-bearing; relationship MERGE matches
// nodes that earlier phases must already have written.
package phase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/graphmill/graphload/internal/types"
)

// Kind categorizes what a phase writes.
type Kind string

const (
	KindSchema       Kind = "schema"
	KindLookup       Kind = "lookup"
	KindNode         Kind = "node"
	KindRelationship Kind = "relationship"
	KindVerify       Kind = "verify"
)

// Phase is one numbered step of a load plan.
type Phase struct {
	// ID is the phase's stable number, used for subset selection and
	// resume. IDs are unique and strictly ascending within a plan.
	ID int `yaml:"id" json:"id"`

	// Name is a short human label shown in progress output and logs.
	Name string `yaml:"name" json:"name"`

	// Kind categorizes the phase.
	Kind Kind `yaml:"kind" json:"kind"`

	// Source names the record source binding for data phases. Empty for
	// schema and verify phases.
	Source string `yaml:"source,omitempty" json:"source,omitempty"`

	// Template is the parameterized write statement executed per chunk.
	// Empty when the pipeline derives it from the dialect.
	Template string `yaml:"template,omitempty" json:"template,omitempty"`

	// BatchSize overrides the plan-wide batch size when positive.
	BatchSize int `yaml:"batch_size,omitempty" json:"batch_size,omitempty"`
}

// Plan is an ordered, validated list of phases.
type Plan struct {
	phases []Phase
}

// NewPlan validates and orders the given phases into a plan. Phase IDs must
// be unique; phases are kept in ascending ID order regardless of input
// order.
func NewPlan(phases []Phase) (*Plan, error) {
	seen := make(map[int]string, len(phases))
	ordered := make([]Phase, len(phases))
	copy(ordered, phases)

	for _, p := range ordered {
		if prev, dup := seen[p.ID]; dup {
			return nil, types.NewError(types.PHASE_DUPLICATE_ID,
				fmt.Sprintf("phase id %d used by both %q and %q", p.ID, prev, p.Name))
		}
		seen[p.ID] = p.Name
		if err := validatePhase(p); err != nil {
			return nil, err
		}
	}

	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	return &Plan{phases: ordered}, nil
}

func validatePhase(p Phase) error {
	switch p.Kind {
	case KindSchema, KindLookup, KindNode, KindRelationship, KindVerify:
	default:
		return types.NewError(types.PHASE_UNKNOWN,
			fmt.Sprintf("phase %d (%s) has unknown kind %q", p.ID, p.Name, p.Kind))
	}
	if p.Name == "" {
		return types.NewError(types.PHASE_UNKNOWN, fmt.Sprintf("phase %d has no name", p.ID))
	}
	return nil
}

// Phases returns the plan's phases in ascending ID order.
func (p *Plan) Phases() []Phase {
	out := make([]Phase, len(p.phases))
	copy(out, p.phases)
	return out
}

// Len returns the number of phases in the plan.
func (p *Plan) Len() int {
	return len(p.phases)
}

// Subset returns the phases with the given IDs, always in ascending ID
// order regardless of the order requested. An unknown ID fails the whole
// request; running a partial subset silently would corrupt a resume.
func (p *Plan) Subset(ids []int) ([]Phase, error) {
	byID := make(map[int]Phase, len(p.phases))
	for _, ph := range p.phases {
		byID[ph.ID] = ph
	}

	want := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, types.NewError(types.PHASE_UNKNOWN,
				fmt.Sprintf("no phase with id %d in plan", id))
		}
		want[id] = struct{}{}
	}

	subset := make([]Phase, 0, len(want))
	for _, ph := range p.phases {
		if _, ok := want[ph.ID]; ok {
			subset = append(subset, ph)
		}
	}
	return subset, nil
}

// Describe renders the plan as one line per phase for listing output.
func (p *Plan) Describe() string {
	var sb strings.Builder
	for _, ph := range p.phases {
		fmt.Fprintf(&sb, "%3d  %-14s %s", ph.ID, ph.Kind, ph.Name)
		if ph.Source != "" {
			fmt.Fprintf(&sb, "  (source: %s)", ph.Source)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
