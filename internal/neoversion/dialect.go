package neoversion

import (
	"fmt"
	"strings"

	"github.com/graphmill/graphload/internal/types"
)

// DialectID identifies a statement-template family.
type DialectID string

const (
	// DialectLegacy covers Neo4j 4.x: ON/ASSERT constraint DDL and the id()
	// identity function.
	DialectLegacy DialectID = "legacy"

	// DialectModern covers Neo4j 5.x and 6.x: FOR/REQUIRE constraint DDL and
	// elementId().
	DialectModern DialectID = "modern"
)

// Feature is a capability flag carried by a Dialect.
type Feature string

const (
	// FeatureNodeKey marks support for composite NODE KEY constraints
	// (enterprise edition only).
	FeatureNodeKey Feature = "node-key"

	// FeatureTextIndex marks support for TEXT indexes (5.x+).
	FeatureTextIndex Feature = "text-index"

	// FeatureVectorIndex marks support for vector indexes (5.x+).
	FeatureVectorIndex Feature = "vector-index"

	// FeatureCypher25 marks servers accepting the Cypher 25 language version.
	FeatureCypher25 Feature = "cypher-25"
)

// Dialect is the set of statement templates and idioms appropriate to one
// major version and edition of the target database. It is a pure value; all
// methods are free of I/O.
type Dialect struct {
	ID    DialectID
	Major int

	// identityFunc is the per-version function for node identity: "id" on
	// 4.x, "elementId" on 5.x+.
	identityFunc string

	features map[Feature]bool
}

// Select maps a detected version profile to a concrete dialect. Selection is
// total over known majors (4, 5, 6); unknown majors fail closed rather than
// defaulting, so no syntactically unverified statement ever reaches the
// server.
func Select(profile Profile) (Dialect, error) {
	var d Dialect
	switch profile.Major {
	case 4:
		d = Dialect{
			ID:           DialectLegacy,
			Major:        profile.Major,
			identityFunc: "id",
			features:     map[Feature]bool{},
		}
	case 5, 6:
		d = Dialect{
			ID:           DialectModern,
			Major:        profile.Major,
			identityFunc: "elementId",
			features: map[Feature]bool{
				FeatureTextIndex:   true,
				FeatureVectorIndex: true,
				FeatureCypher25:    profile.Major >= 6,
			},
		}
	default:
		return Dialect{}, types.NewError(types.NEO_VERSION_UNSUPPORTED,
			fmt.Sprintf("no dialect mapping for Neo4j major version %d (%s)",
				profile.Major, profile.FullVersion))
	}

	d.features[FeatureNodeKey] = profile.Edition == EditionEnterprise
	return d, nil
}

// Supports reports whether the dialect carries the given feature flag.
func (d Dialect) Supports(f Feature) bool {
	return d.features[f]
}

// IdentityFunc returns the name of the node identity function for this
// dialect ("id" or "elementId").
func (d Dialect) IdentityFunc() string {
	return d.identityFunc
}

// MergeNode builds the UNWIND-batch upsert statement for one node label.
// Key properties select the node; all row properties are then applied with
// SET n += row, giving MERGE-then-SET semantics: one round-trip per batch,
// one node per unique key.
func (d Dialect) MergeNode(label string, keyProps []string) string {
	var b strings.Builder
	b.WriteString("UNWIND $batch AS row\n")
	b.WriteString(fmt.Sprintf("MERGE (n:%s {%s})\n", label, mergeKeyMap(keyProps)))
	b.WriteString("SET n += row")
	return b.String()
}

// RelEndpoint names one end of a relationship template: the node label, the
// unique key property on that label, and the batch row field holding the key
// value.
type RelEndpoint struct {
	Label    string
	KeyProp  string
	RowField string
}

// MergeRelationship builds the UNWIND-batch statement that matches both
// endpoint nodes by unique key and merges the relationship between them.
// Relationship properties, when present, ride in row.props.
func (d Dialect) MergeRelationship(relType string, from, to RelEndpoint, withProps bool) string {
	var b strings.Builder
	b.WriteString("UNWIND $batch AS row\n")
	b.WriteString(fmt.Sprintf("MATCH (a:%s {%s: row.%s})\n", from.Label, from.KeyProp, from.RowField))
	b.WriteString(fmt.Sprintf("MATCH (b:%s {%s: row.%s})\n", to.Label, to.KeyProp, to.RowField))
	b.WriteString(fmt.Sprintf("MERGE (a)-[r:%s]->(b)", relType))
	if withProps {
		b.WriteString("\nSET r += row.props")
	}
	return b.String()
}

// CreateUniqueConstraint builds the idempotent uniqueness-constraint DDL for
// this dialect. Composite property lists emit a NODE KEY on dialects that
// support it and fall back to composite uniqueness otherwise.
func (d Dialect) CreateUniqueConstraint(name, label string, props []string) string {
	if d.ID == DialectLegacy {
		if len(props) == 1 {
			return fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS ON (n:%s) ASSERT n.%s IS UNIQUE",
				name, label, props[0])
		}
		if d.Supports(FeatureNodeKey) {
			return fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS ON (n:%s) ASSERT (%s) IS NODE KEY",
				name, label, propList(props))
		}
		// 4.x community has neither composite NODE KEY nor composite
		// uniqueness; a composite index keeps the merge-scan protection.
		return d.CreateIndex(name, label, props)
	}

	if len(props) == 1 {
		return fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
			name, label, props[0])
	}
	if d.Supports(FeatureNodeKey) {
		return fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE (%s) IS NODE KEY",
			name, label, propList(props))
	}
	// Community edition has no composite NODE KEY; composite uniqueness
	// keeps the merge-scan protection.
	return fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE (%s) IS UNIQUE",
		name, label, propList(props))
}

// CreateIndex builds the idempotent range-index DDL. The FOR/ON syntax is
// shared across supported majors.
func (d Dialect) CreateIndex(name, label string, props []string) string {
	return fmt.Sprintf("CREATE INDEX %s IF NOT EXISTS FOR (n:%s) ON (%s)",
		name, label, propList(props))
}

// CountNodes builds the verification count query for one label.
func (d Dialect) CountNodes(label string) string {
	return fmt.Sprintf("MATCH (n:%s) RETURN count(n) AS count", label)
}

// CountRelationships builds the verification count query for one
// relationship type.
func (d Dialect) CountRelationships(relType string) string {
	return fmt.Sprintf("MATCH ()-[r:%s]->() RETURN count(r) AS count", relType)
}

// mergeKeyMap renders {k1: row.k1, k2: row.k2} for the MERGE pattern.
func mergeKeyMap(keyProps []string) string {
	pairs := make([]string, len(keyProps))
	for i, k := range keyProps {
		pairs[i] = fmt.Sprintf("%s: row.%s", k, k)
	}
	return strings.Join(pairs, ", ")
}

// propList renders n.a, n.b for constraint and index DDL.
func propList(props []string) string {
	parts := make([]string, len(props))
	for i, p := range props {
		parts[i] = "n." + p
	}
	return strings.Join(parts, ", ")
}
