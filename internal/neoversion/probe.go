// Package neoversion detects the target Neo4j server's version profile and
// selects the Cypher dialect appropriate to it. Detection happens once per
// pipeline run; the resulting Profile is an immutable value shared read-only
// by every component that needs it.
package neoversion

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"

	"github.com/graphmill/graphload/internal/graph"
	"github.com/graphmill/graphload/internal/types"
)

// Edition is the server edition reported by the database.
type Edition string

const (
	EditionCommunity  Edition = "community"
	EditionEnterprise Edition = "enterprise"
)

// Profile describes the target database. Created once at pipeline start and
// never mutated.
type Profile struct {
	// FullVersion is the kernel version string, e.g. "5.26.0".
	FullVersion string `json:"full_version"`

	// Major is the leading component of FullVersion.
	Major int `json:"major"`

	// Edition is community or enterprise.
	Edition Edition `json:"edition"`

	// CypherVersions lists the Cypher language versions the server accepts,
	// e.g. ["5", "25"]. Informational; dialect selection keys off Major.
	CypherVersions []string `json:"cypher_versions,omitempty"`
}

// componentsQuery is the single introspection call issued per probe. The
// response contract is minimal: a name, a version list whose first element is
// authoritative, and an edition string. Extra fields are ignored.
const componentsQuery = `
CALL dbms.components()
YIELD name, versions, edition
WHERE name IN ['Neo4j Kernel', 'Cypher']
RETURN name, versions, edition`

// Probe queries the target database for its version profile. It issues
// exactly one introspection query. Failures map onto the fatal taxonomy:
// unreachable host, rejected credentials, or an unparseable version response.
func Probe(ctx context.Context, runner graph.Runner) (Profile, error) {
	result, err := runner.Run(ctx, componentsQuery, nil)
	if err != nil {
		return Profile{}, classifyProbeError(err)
	}

	var profile Profile
	for _, record := range result.Records {
		name, _ := record["name"].(string)
		switch name {
		case "Neo4j Kernel":
			versions := stringList(record["versions"])
			if len(versions) > 0 {
				profile.FullVersion = versions[0]
			}
			if edition, ok := record["edition"].(string); ok && edition == "enterprise" {
				profile.Edition = EditionEnterprise
			} else {
				profile.Edition = EditionCommunity
			}
		case "Cypher":
			profile.CypherVersions = stringList(record["versions"])
		}
	}

	if profile.FullVersion == "" {
		return Profile{}, types.NewError(types.NEO_VERSION_UNKNOWN,
			"unable to detect Neo4j version from dbms.components()")
	}

	major, err := parseMajor(profile.FullVersion)
	if err != nil {
		return Profile{}, types.WrapError(types.NEO_VERSION_UNKNOWN,
			fmt.Sprintf("unparseable version %q", profile.FullVersion), err)
	}
	profile.Major = major

	return profile, nil
}

// classifyProbeError maps a probe failure onto the fatal error taxonomy.
// At probe time every failure aborts the pipeline; the distinction between
// auth and connectivity is preserved for the operator.
func classifyProbeError(err error) error {
	var neoErr *db.Neo4jError
	if errors.As(err, &neoErr) && strings.HasPrefix(neoErr.Code, "Neo.ClientError.Security.") {
		return types.WrapError(types.NEO_AUTH_FAILED, "credentials rejected", err)
	}
	return types.WrapError(types.NEO_UNREACHABLE, "database unreachable", err)
}

// stringList converts a driver list value into []string, stringifying
// non-string elements (Cypher reports its versions as integers).
func stringList(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		default:
			out = append(out, fmt.Sprintf("%v", v))
		}
	}
	return out
}

// parseMajor extracts the leading integer of a dotted version string.
func parseMajor(version string) (int, error) {
	head := version
	if i := strings.IndexByte(version, '.'); i >= 0 {
		head = version[:i]
	}
	return strconv.Atoi(head)
}
