// Package job defines the YAML load manifest: the declarative description
// of one dataset's sources, schema, and phase plan.
package job

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/graphmill/graphload/internal/phase"
	"github.com/graphmill/graphload/internal/schema"
	"github.com/graphmill/graphload/internal/source"
	"github.com/graphmill/graphload/internal/types"
)

// SourceFormat identifies a record source encoding.
type SourceFormat string

const (
	FormatCSV   SourceFormat = "csv"
	FormatJSONL SourceFormat = "jsonl"
)

// SourceSpec binds a named record source to a file. Relative paths resolve
// against the manifest's directory. Required lists fields a record must carry
// a non-empty value for; records missing one are skipped and counted, never
// merged.
type SourceSpec struct {
	Path     string       `yaml:"path"`
	Format   SourceFormat `yaml:"format"`
	Required []string     `yaml:"required,omitempty"`
}

// EndpointSpec names one end of a relationship merge: the node label, its
// key property, and the record field carrying the key value.
type EndpointSpec struct {
	Label string `yaml:"label"`
	Key   string `yaml:"key"`
	Field string `yaml:"field"`
}

// MergeSpec derives a node-merge statement from a label and key properties.
type MergeSpec struct {
	Label string   `yaml:"label"`
	Keys  []string `yaml:"keys"`
}

// RelSpec derives a relationship-merge statement.
type RelSpec struct {
	Type      string       `yaml:"type"`
	From      EndpointSpec `yaml:"from"`
	To        EndpointSpec `yaml:"to"`
	WithProps bool         `yaml:"with_props"`
}

// PhaseSpec is one phase entry in the manifest. Data phases carry either an
// explicit Cypher template or a merge spec the pipeline renders through the
// selected dialect.
type PhaseSpec struct {
	ID           int        `yaml:"id"`
	Name         string     `yaml:"name"`
	Kind         phase.Kind `yaml:"kind"`
	Source       string     `yaml:"source,omitempty"`
	BatchSize    int        `yaml:"batch_size,omitempty"`
	Cypher       string     `yaml:"cypher,omitempty"`
	Merge        *MergeSpec `yaml:"merge,omitempty"`
	Relationship *RelSpec   `yaml:"relationship,omitempty"`
}

// Manifest is a parsed and validated load manifest.
type Manifest struct {
	Name        string                  `yaml:"name"`
	Sources     map[string]SourceSpec   `yaml:"sources"`
	Constraints []schema.ConstraintSpec `yaml:"constraints,omitempty"`
	Indexes     []schema.IndexSpec      `yaml:"indexes,omitempty"`
	Phases      []PhaseSpec             `yaml:"phases"`

	// dir is the manifest file's directory, for resolving source paths.
	dir string
}

// Load parses and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.WrapError(types.MANIFEST_PARSE_FAILED, "failed to read manifest", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, types.WrapError(types.MANIFEST_PARSE_FAILED, "failed to parse manifest", err)
	}
	m.dir = filepath.Dir(path)

	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if m.Name == "" {
		return types.NewError(types.MANIFEST_PARSE_FAILED, "manifest has no name")
	}
	if len(m.Phases) == 0 {
		return types.NewError(types.MANIFEST_PARSE_FAILED, "manifest declares no phases")
	}

	for name, src := range m.Sources {
		switch src.Format {
		case FormatCSV, FormatJSONL:
		default:
			return types.NewError(types.MANIFEST_PARSE_FAILED,
				fmt.Sprintf("source %q has unknown format %q", name, src.Format))
		}
		if src.Path == "" {
			return types.NewError(types.MANIFEST_PARSE_FAILED,
				fmt.Sprintf("source %q has no path", name))
		}
		for _, f := range src.Required {
			if f == "" {
				return types.NewError(types.MANIFEST_PARSE_FAILED,
					fmt.Sprintf("source %q has an empty required field name", name))
			}
		}
	}

	for _, p := range m.Phases {
		if err := m.validatePhase(p); err != nil {
			return err
		}
	}

	// Plan construction enforces unique IDs and known kinds.
	if _, err := m.Plan(); err != nil {
		return err
	}
	return nil
}

func (m *Manifest) validatePhase(p PhaseSpec) error {
	isData := p.Kind == phase.KindLookup || p.Kind == phase.KindNode || p.Kind == phase.KindRelationship
	if !isData {
		if p.Source != "" {
			return types.NewError(types.MANIFEST_PARSE_FAILED,
				fmt.Sprintf("phase %q (%s) must not declare a source", p.Name, p.Kind))
		}
		return nil
	}

	if p.Source == "" {
		return types.NewError(types.MANIFEST_PARSE_FAILED,
			fmt.Sprintf("phase %q requires a source", p.Name))
	}
	if _, ok := m.Sources[p.Source]; !ok {
		return types.NewError(types.MANIFEST_PARSE_FAILED,
			fmt.Sprintf("phase %q references unknown source %q", p.Name, p.Source))
	}

	specs := 0
	if p.Cypher != "" {
		specs++
	}
	if p.Merge != nil {
		specs++
	}
	if p.Relationship != nil {
		specs++
	}
	if specs != 1 {
		return types.NewError(types.MANIFEST_PARSE_FAILED,
			fmt.Sprintf("phase %q must declare exactly one of cypher, merge, or relationship", p.Name))
	}

	if p.Merge != nil && (p.Merge.Label == "" || len(p.Merge.Keys) == 0) {
		return types.NewError(types.MANIFEST_PARSE_FAILED,
			fmt.Sprintf("phase %q merge spec needs a label and at least one key", p.Name))
	}
	if p.Relationship != nil {
		r := p.Relationship
		if p.Kind != phase.KindRelationship {
			return types.NewError(types.MANIFEST_PARSE_FAILED,
				fmt.Sprintf("phase %q declares a relationship spec but has kind %s", p.Name, p.Kind))
		}
		if r.Type == "" || !endpointComplete(r.From) || !endpointComplete(r.To) {
			return types.NewError(types.MANIFEST_PARSE_FAILED,
				fmt.Sprintf("phase %q relationship spec is incomplete", p.Name))
		}
	}
	if p.Merge != nil && p.Kind == phase.KindRelationship {
		return types.NewError(types.MANIFEST_PARSE_FAILED,
			fmt.Sprintf("phase %q declares a node merge but has kind relationship", p.Name))
	}
	return nil
}

func endpointComplete(e EndpointSpec) bool {
	return e.Label != "" && e.Key != "" && e.Field != ""
}

// Plan builds the ordered phase plan from the manifest's phase entries.
func (m *Manifest) Plan() (*phase.Plan, error) {
	phases := make([]phase.Phase, 0, len(m.Phases))
	for _, p := range m.Phases {
		phases = append(phases, phase.Phase{
			ID:        p.ID,
			Name:      p.Name,
			Kind:      p.Kind,
			Source:    p.Source,
			Template:  p.Cypher,
			BatchSize: p.BatchSize,
		})
	}
	return phase.NewPlan(phases)
}

// PhaseSpecByID returns the manifest entry for a phase id.
func (m *Manifest) PhaseSpecByID(id int) (PhaseSpec, bool) {
	for _, p := range m.Phases {
		if p.ID == id {
			return p, true
		}
	}
	return PhaseSpec{}, false
}

// OpenSource opens the named record source for reading. Sources declaring
// required fields get a transform that skips records missing any of them.
func (m *Manifest) OpenSource(name string) (source.Source, error) {
	spec, ok := m.Sources[name]
	if !ok {
		return nil, types.NewError(types.SOURCE_OPEN_FAILED, fmt.Sprintf("unknown source %q", name))
	}
	path := m.resolvePath(spec.Path)

	var transform source.Transform
	if len(spec.Required) > 0 {
		transform = source.RequireFields(spec.Required...)
	}

	switch spec.Format {
	case FormatCSV:
		return source.NewCSVSource(path, transform)
	case FormatJSONL:
		return source.NewJSONLSource(path, transform)
	default:
		return nil, types.NewError(types.SOURCE_OPEN_FAILED,
			fmt.Sprintf("source %q has unsupported format %q", name, spec.Format))
	}
}

// CountSource counts the records in the named source without consuming it.
func (m *Manifest) CountSource(name string) (int64, error) {
	src, err := m.OpenSource(name)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	counter, ok := src.(source.Counter)
	if !ok {
		return -1, nil
	}
	return counter.Count()
}

func (m *Manifest) resolvePath(p string) string {
	if filepath.IsAbs(p) || m.dir == "" {
		return p
	}
	return filepath.Join(m.dir, p)
}

// SourceNames returns the declared source names in sorted order.
func (m *Manifest) SourceNames() []string {
	names := make([]string, 0, len(m.Sources))
	for name := range m.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
