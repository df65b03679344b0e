package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphmill/graphload/internal/batch"
	"github.com/graphmill/graphload/internal/checkpoint"
	"github.com/graphmill/graphload/internal/config"
	"github.com/graphmill/graphload/internal/graph"
	"github.com/graphmill/graphload/internal/job"
	"github.com/graphmill/graphload/internal/neoversion"
	"github.com/graphmill/graphload/internal/types"
)

// newTestManifest writes a small two-source manifest with CSV data files and
// loads it.
func newTestManifest(t *testing.T) *job.Manifest {
	t.Helper()
	dir := t.TempDir()

	companies := "number,name\n"
	for i := 0; i < 25; i++ {
		companies += strings.Repeat("0", 7) + string(rune('0'+i%10)) + ",Company\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "companies.csv"), []byte(companies), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "appointments.csv"),
		[]byte("officer_id,company_number\nOF1,00000001\nOF2,00000002\n"), 0o644))

	manifest := `
name: test-load
sources:
  companies: {path: companies.csv, format: csv}
  appointments: {path: appointments.csv, format: csv}
constraints:
  - name: company_number
    label: Company
    properties: [number]
indexes:
  - name: company_name
    label: Company
    properties: [name]
phases:
  - id: 1
    name: schema
    kind: schema
  - id: 2
    name: companies
    kind: node
    source: companies
    merge: {label: Company, keys: [number]}
  - id: 3
    name: officer-of
    kind: relationship
    source: appointments
    relationship:
      type: OFFICER_OF
      from: {label: Officer, key: officer_id, field: officer_id}
      to: {label: Company, key: number, field: company_number}
  - id: 4
    name: verify
    kind: verify
`
	path := filepath.Join(dir, "load.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))

	m, err := job.Load(path)
	require.NoError(t, err)
	return m
}

// newProbeableMock scripts a mock runner whose read path answers the version
// probe and count queries.
func newProbeableMock(version, edition string) *graph.MockRunner {
	mock := graph.NewMockRunner()
	mock.ReadFunc = func(cypher string, params map[string]any) (graph.Result, error) {
		if strings.Contains(cypher, "dbms.components") {
			return graph.Result{Records: []map[string]any{
				{"name": "Neo4j Kernel", "versions": []any{version}, "edition": edition},
				{"name": "Cypher", "versions": []any{"5"}, "edition": edition},
			}}, nil
		}
		if strings.Contains(cypher, "count(") {
			return graph.Result{Records: []map[string]any{{"count": int64(25)}}}, nil
		}
		return graph.Result{}, nil
	}
	return mock
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Load.BatchSize = 10
	return cfg
}

func TestPipeline_Run_FullPlan(t *testing.T) {
	ctx := context.Background()
	mock := newProbeableMock("5.26.0", "enterprise")

	p, err := New(Options{Config: testConfig(), Manifest: newTestManifest(t), Runner: mock})
	require.NoError(t, err)
	assert.Equal(t, StateInit, p.State())

	summary, err := p.Run(ctx, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, StateDone, summary.State)
	assert.Equal(t, StateDone, p.State())
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, "test-load", summary.Manifest)
	assert.Equal(t, 5, summary.Profile.Major)
	assert.Equal(t, neoversion.DialectModern, summary.Dialect)

	// Constraint and index applied before any data write.
	writes := mock.WriteCalls()
	require.GreaterOrEqual(t, len(writes), 2)
	assert.Contains(t, writes[0].Cypher, "CREATE CONSTRAINT")
	assert.Contains(t, writes[1].Cypher, "CREATE INDEX")
	assert.True(t, summary.Schema.AllApplied())

	// Schema entry, companies, officer-of.
	require.Len(t, summary.Phases, 3)
	assert.Equal(t, int64(25), summary.Phases[1].Processed)
	assert.Equal(t, 3, summary.Phases[1].Chunks)
	assert.Equal(t, int64(2), summary.Phases[2].Processed)
	assert.Equal(t, int64(27), summary.TotalProcessed())

	require.NotNil(t, summary.Verification)
	assert.Equal(t, int64(25), summary.Verification.NodeCounts["Company"])
	assert.Contains(t, summary.Verification.RelationshipCounts, "OFFICER_OF")
}

func TestPipeline_Run_DerivesDialectTemplates(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name           string
		version        string
		wantConstraint string
	}{
		{"legacy dialect", "4.4.30", "ON (n:Company) ASSERT"},
		{"modern dialect", "5.26.0", "FOR (n:Company) REQUIRE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newProbeableMock(tt.version, "community")
			p, err := New(Options{Config: testConfig(), Manifest: newTestManifest(t), Runner: mock})
			require.NoError(t, err)

			_, err = p.Run(ctx, RunOptions{})
			require.NoError(t, err)

			writes := mock.WriteCalls()
			assert.Contains(t, writes[0].Cypher, tt.wantConstraint)

			var sawMerge, sawRel bool
			for _, w := range writes {
				if strings.Contains(w.Cypher, "MERGE (n:Company {number: row.number})") {
					sawMerge = true
				}
				if strings.Contains(w.Cypher, "MERGE (a)-[r:OFFICER_OF]->(b)") {
					sawRel = true
				}
			}
			assert.True(t, sawMerge)
			assert.True(t, sawRel)
		})
	}
}

func TestPipeline_Run_SkipsRecordsMissingRequiredFields(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	// Two rows with a blank key column must never reach a MERGE batch.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "companies.csv"),
		[]byte("number,name\n00000001,Acme Ltd\n,Blank One Ltd\n00000003,Third Ltd\n  ,Blank Two Ltd\n"), 0o644))
	path := filepath.Join(dir, "load.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: skip-test
sources:
  companies:
    path: companies.csv
    format: csv
    required: [number]
phases:
  - id: 1
    name: companies
    kind: node
    source: companies
    merge: {label: Company, keys: [number]}
`), 0o644))
	manifest, err := job.Load(path)
	require.NoError(t, err)

	mock := newProbeableMock("5.26.0", "enterprise")
	p, err := New(Options{Config: testConfig(), Manifest: manifest, Runner: mock})
	require.NoError(t, err)

	summary, err := p.Run(ctx, RunOptions{})
	require.NoError(t, err)

	require.Len(t, summary.Phases, 1)
	assert.Equal(t, int64(2), summary.Phases[0].Processed)
	assert.Equal(t, int64(2), summary.Phases[0].Skipped)
	assert.Equal(t, int64(2), summary.TotalSkipped())

	for _, w := range mock.WriteCalls() {
		rows, ok := w.Params["batch"].([]map[string]any)
		require.True(t, ok)
		for _, row := range rows {
			assert.NotEmpty(t, strings.TrimSpace(row["number"].(string)))
		}
	}
}

func TestPipeline_Run_UnsupportedVersionFailsClosed(t *testing.T) {
	ctx := context.Background()
	mock := newProbeableMock("7.0.0", "enterprise")

	p, err := New(Options{Config: testConfig(), Manifest: newTestManifest(t), Runner: mock})
	require.NoError(t, err)

	summary, err := p.Run(ctx, RunOptions{})
	require.Error(t, err)
	assert.Equal(t, types.NEO_VERSION_UNSUPPORTED, types.CodeOf(err))
	assert.Equal(t, StateFailed, summary.State)

	// No schema or data statement may reach an unsupported server.
	assert.Empty(t, mock.WriteCalls())
}

func TestPipeline_Run_ConnectFailureFails(t *testing.T) {
	ctx := context.Background()
	mock := graph.NewMockRunner()
	mock.SetConnectError(types.NewError(types.NEO_UNREACHABLE, "refused"))

	p, err := New(Options{Config: testConfig(), Manifest: newTestManifest(t), Runner: mock})
	require.NoError(t, err)

	summary, err := p.Run(ctx, RunOptions{})
	require.Error(t, err)
	assert.Equal(t, StateFailed, summary.State)
}

func TestPipeline_Run_SubsetReappliesSchema(t *testing.T) {
	ctx := context.Background()
	mock := newProbeableMock("5.26.0", "enterprise")

	p, err := New(Options{Config: testConfig(), Manifest: newTestManifest(t), Runner: mock})
	require.NoError(t, err)

	// Resume only the relationship phase.
	summary, err := p.Run(ctx, RunOptions{PhaseIDs: []int{3}})
	require.NoError(t, err)

	writes := mock.WriteCalls()
	require.NotEmpty(t, writes)
	assert.Contains(t, writes[0].Cypher, "CREATE CONSTRAINT")

	// Only the officer-of phase ran; no node merges, no verification.
	require.Len(t, summary.Phases, 1)
	assert.Equal(t, "officer-of", summary.Phases[0].Name)
	assert.Nil(t, summary.Verification)
	for _, w := range writes {
		assert.NotContains(t, w.Cypher, "MERGE (n:Company")
	}
}

func TestPipeline_Run_UnknownPhaseID(t *testing.T) {
	ctx := context.Background()
	mock := newProbeableMock("5.26.0", "enterprise")

	p, err := New(Options{Config: testConfig(), Manifest: newTestManifest(t), Runner: mock})
	require.NoError(t, err)

	summary, err := p.Run(ctx, RunOptions{PhaseIDs: []int{99}})
	require.Error(t, err)
	assert.Equal(t, types.PHASE_UNKNOWN, types.CodeOf(err))
	assert.Equal(t, StateFailed, summary.State)
}

func TestPipeline_Run_InvalidStatementFailsRun(t *testing.T) {
	ctx := context.Background()
	mock := newProbeableMock("5.26.0", "enterprise")

	p, err := New(Options{Config: testConfig(), Manifest: newTestManifest(t), Runner: mock})
	require.NoError(t, err)

	// Schema DDL succeeds, then every data write is a syntax error.
	applied := 0
	mock.WriteFunc = func(cypher string, params map[string]any) (graph.Result, error) {
		if strings.HasPrefix(cypher, "CREATE ") {
			applied++
			return graph.Result{}, nil
		}
		return graph.Result{}, &db.Neo4jError{Code: "Neo.ClientError.Statement.SyntaxError", Msg: "bad"}
	}

	summary, err := p.Run(ctx, RunOptions{})
	require.Error(t, err)
	assert.Equal(t, types.WRITE_INVALID, types.CodeOf(err))
	assert.Equal(t, StateFailed, summary.State)
	assert.Equal(t, 2, applied)
}

func TestPipeline_Run_RecordsCheckpoints(t *testing.T) {
	ctx := context.Background()
	mock := newProbeableMock("5.26.0", "enterprise")

	store, err := checkpoint.Open(checkpoint.DefaultConfig(filepath.Join(t.TempDir(), "cp.db")))
	require.NoError(t, err)
	defer store.Close()

	p, err := New(Options{
		Config:     testConfig(),
		Manifest:   newTestManifest(t),
		Runner:     mock,
		Checkpoint: store,
	})
	require.NoError(t, err)

	summary, err := p.Run(ctx, RunOptions{})
	require.NoError(t, err)

	last, err := store.LastRun(ctx, "test-load")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, summary.RunID, last.ID)
	assert.Equal(t, checkpoint.RunStatusCompleted, last.Status)
	assert.Equal(t, "5.26.0", last.ServerVersion)

	phases, err := store.CompletedPhases(ctx, summary.RunID)
	require.NoError(t, err)
	require.Len(t, phases, 2)
	assert.Equal(t, int64(25), phases[0].Processed)
}

func TestPipeline_Run_ProgressReachesObserver(t *testing.T) {
	ctx := context.Background()
	mock := newProbeableMock("5.26.0", "enterprise")

	var snapshots []batch.Snapshot
	p, err := New(Options{
		Config:   testConfig(),
		Manifest: newTestManifest(t),
		Runner:   mock,
		OnProgress: func(s batch.Snapshot) {
			snapshots = append(snapshots, s)
		},
	})
	require.NoError(t, err)

	_, err = p.Run(ctx, RunOptions{})
	require.NoError(t, err)

	// At minimum the completion snapshot of each data phase.
	require.GreaterOrEqual(t, len(snapshots), 2)
	final := snapshots[len(snapshots)-1]
	assert.Equal(t, "officer-of", final.Phase)
	assert.Equal(t, int64(2), final.Processed)
	assert.Equal(t, int64(2), final.Total)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateInit, StateProbing, true},
		{StateProbing, StateSchema, true},
		{StateSchema, StateLoading, true},
		{StateLoading, StateVerifying, true},
		{StateLoading, StateDone, true},
		{StateVerifying, StateDone, true},
		{StateInit, StateLoading, false},
		{StateSchema, StateProbing, false},
		{StateDone, StateLoading, false},
		{StateFailed, StateProbing, false},
		{StateLoading, StateFailed, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}
