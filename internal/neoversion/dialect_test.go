package neoversion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphmill/graphload/internal/types"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		wantID  DialectID
		wantFn  string
	}{
		{
			name:    "neo4j 4 legacy",
			profile: Profile{FullVersion: "4.4.44", Major: 4, Edition: EditionEnterprise},
			wantID:  DialectLegacy,
			wantFn:  "id",
		},
		{
			name:    "neo4j 5 modern",
			profile: Profile{FullVersion: "5.26.0", Major: 5, Edition: EditionCommunity},
			wantID:  DialectModern,
			wantFn:  "elementId",
		},
		{
			name:    "neo4j 6 modern",
			profile: Profile{FullVersion: "6.0.3", Major: 6, Edition: EditionEnterprise},
			wantID:  DialectModern,
			wantFn:  "elementId",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Select(tt.profile)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, d.ID)
			assert.Equal(t, tt.wantFn, d.IdentityFunc())
		})
	}
}

func TestSelect_UnknownMajorFailsClosed(t *testing.T) {
	for _, major := range []int{0, 3, 7, 42} {
		_, err := Select(Profile{FullVersion: "x", Major: major})
		require.Error(t, err, "major %d must not default silently", major)
		assert.Equal(t, types.NEO_VERSION_UNSUPPORTED, types.CodeOf(err))
	}
}

func TestSelect_FeatureFlags(t *testing.T) {
	enterprise, err := Select(Profile{FullVersion: "5.26.0", Major: 5, Edition: EditionEnterprise})
	require.NoError(t, err)
	assert.True(t, enterprise.Supports(FeatureNodeKey))
	assert.True(t, enterprise.Supports(FeatureTextIndex))
	assert.False(t, enterprise.Supports(FeatureCypher25))

	community, err := Select(Profile{FullVersion: "5.26.0", Major: 5, Edition: EditionCommunity})
	require.NoError(t, err)
	assert.False(t, community.Supports(FeatureNodeKey))

	legacy, err := Select(Profile{FullVersion: "4.4.44", Major: 4, Edition: EditionEnterprise})
	require.NoError(t, err)
	assert.False(t, legacy.Supports(FeatureTextIndex))
	assert.True(t, legacy.Supports(FeatureNodeKey))

	six, err := Select(Profile{FullVersion: "6.0.3", Major: 6, Edition: EditionCommunity})
	require.NoError(t, err)
	assert.True(t, six.Supports(FeatureCypher25))
}

func TestDialect_MergeNode(t *testing.T) {
	d, err := Select(Profile{FullVersion: "5.26.0", Major: 5, Edition: EditionEnterprise})
	require.NoError(t, err)

	stmt := d.MergeNode("Company", []string{"companyNumber"})
	assert.Equal(t,
		"UNWIND $batch AS row\nMERGE (n:Company {companyNumber: row.companyNumber})\nSET n += row",
		stmt)

	composite := d.MergeNode("Address", []string{"addressLine1", "postCode"})
	assert.Contains(t, composite, "MERGE (n:Address {addressLine1: row.addressLine1, postCode: row.postCode})")
}

func TestDialect_MergeRelationship(t *testing.T) {
	d, err := Select(Profile{FullVersion: "5.26.0", Major: 5, Edition: EditionEnterprise})
	require.NoError(t, err)

	stmt := d.MergeRelationship("CLASSIFIED_AS",
		RelEndpoint{Label: "Company", KeyProp: "companyNumber", RowField: "from"},
		RelEndpoint{Label: "SICCode", KeyProp: "code", RowField: "to"},
		true)

	assert.Contains(t, stmt, "UNWIND $batch AS row")
	assert.Contains(t, stmt, "MATCH (a:Company {companyNumber: row.from})")
	assert.Contains(t, stmt, "MATCH (b:SICCode {code: row.to})")
	assert.Contains(t, stmt, "MERGE (a)-[r:CLASSIFIED_AS]->(b)")
	assert.Contains(t, stmt, "SET r += row.props")

	bare := d.MergeRelationship("LOCATED_IN",
		RelEndpoint{Label: "Address", KeyProp: "id", RowField: "from"},
		RelEndpoint{Label: "Country", KeyProp: "name", RowField: "to"},
		false)
	assert.NotContains(t, bare, "SET r")
}

func TestDialect_ConstraintDDL(t *testing.T) {
	legacy, err := Select(Profile{FullVersion: "4.4.44", Major: 4, Edition: EditionEnterprise})
	require.NoError(t, err)
	modernEnt, err := Select(Profile{FullVersion: "5.26.0", Major: 5, Edition: EditionEnterprise})
	require.NoError(t, err)
	modernCom, err := Select(Profile{FullVersion: "5.26.0", Major: 5, Edition: EditionCommunity})
	require.NoError(t, err)

	assert.Equal(t,
		"CREATE CONSTRAINT company_number IF NOT EXISTS ON (n:Company) ASSERT n.companyNumber IS UNIQUE",
		legacy.CreateUniqueConstraint("company_number", "Company", []string{"companyNumber"}))

	assert.Equal(t,
		"CREATE CONSTRAINT company_number IF NOT EXISTS FOR (n:Company) REQUIRE n.companyNumber IS UNIQUE",
		modernEnt.CreateUniqueConstraint("company_number", "Company", []string{"companyNumber"}))

	assert.Equal(t,
		"CREATE CONSTRAINT address_key IF NOT EXISTS FOR (n:Address) REQUIRE (n.addressLine1, n.postCode) IS NODE KEY",
		modernEnt.CreateUniqueConstraint("address_key", "Address", []string{"addressLine1", "postCode"}))

	// Community edition cannot create NODE KEY constraints.
	assert.Equal(t,
		"CREATE CONSTRAINT address_key IF NOT EXISTS FOR (n:Address) REQUIRE (n.addressLine1, n.postCode) IS UNIQUE",
		modernCom.CreateUniqueConstraint("address_key", "Address", []string{"addressLine1", "postCode"}))

	assert.Equal(t,
		"CREATE CONSTRAINT address_key IF NOT EXISTS ON (n:Address) ASSERT (n.addressLine1, n.postCode) IS NODE KEY",
		legacy.CreateUniqueConstraint("address_key", "Address", []string{"addressLine1", "postCode"}))

	// 4.x community also lacks composite uniqueness, so the composite key
	// degrades further, to an index.
	legacyCom, err := Select(Profile{FullVersion: "4.4.44", Major: 4, Edition: EditionCommunity})
	require.NoError(t, err)
	assert.Equal(t,
		"CREATE INDEX address_key IF NOT EXISTS FOR (n:Address) ON (n.addressLine1, n.postCode)",
		legacyCom.CreateUniqueConstraint("address_key", "Address", []string{"addressLine1", "postCode"}))
}

func TestDialect_IndexAndCountDDL(t *testing.T) {
	d, err := Select(Profile{FullVersion: "5.26.0", Major: 5, Edition: EditionCommunity})
	require.NoError(t, err)

	assert.Equal(t,
		"CREATE INDEX company_name IF NOT EXISTS FOR (n:Company) ON (n.name)",
		d.CreateIndex("company_name", "Company", []string{"name"}))

	assert.Equal(t, "MATCH (n:Company) RETURN count(n) AS count", d.CountNodes("Company"))
	assert.Equal(t, "MATCH ()-[r:HAS_ADDRESS]->() RETURN count(r) AS count", d.CountRelationships("HAS_ADDRESS"))
}
