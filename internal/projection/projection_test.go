package projection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/activerules/internal/ir"
	"github.com/roach88/activerules/internal/store"
)

func testRow() store.ActiveRuleRow {
	return store.ActiveRuleRow{
		ID:         1,
		ProfileKee: "myprofile",
		Repository: "javascript",
		RuleKey:    "S001",
		Severity:   "BLOCKER",
	}
}

func TestProject_AllFields(t *testing.T) {
	row := testRow()
	row.Inheritance = "OVERRIDES"
	row.ParentKey = "parent:javascript:S001"
	params := []store.ActiveRuleParamRow{
		{Key: "min", Value: "minimum"},
		{Key: "max", Value: "maximum"},
	}

	doc, err := Project(row, params)
	require.NoError(t, err)

	parent := ir.MustParseActiveRuleKey("parent:javascript:S001")
	want := ir.ActiveRule{
		Key:         ir.MustParseActiveRuleKey("myprofile:javascript:S001"),
		RuleKey:     ir.NewRuleKey("javascript", "S001"),
		ProfileKey:  "myprofile",
		Severity:    ir.SeverityBlocker,
		Inheritance: ir.InheritanceOverrides,
		ParentKey:   &parent,
		Params:      map[string]string{"min": "minimum", "max": "maximum"},
	}
	assert.True(t, want.Equal(doc), "got %+v", doc)
	assert.NoError(t, doc.Validate())
}

func TestProject_NoParentNoParams(t *testing.T) {
	doc, err := Project(testRow(), nil)
	require.NoError(t, err)

	assert.Nil(t, doc.ParentKey)
	assert.Equal(t, ir.InheritanceNone, doc.Inheritance)
	assert.NotNil(t, doc.Params)
	assert.Empty(t, doc.Params)
}

func TestProject_LaterParamWins(t *testing.T) {
	params := []store.ActiveRuleParamRow{
		{Key: "max", Value: "1"},
		{Key: "max", Value: "2"},
	}
	doc, err := Project(testRow(), params)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"max": "2"}, doc.Params)
}

func TestProject_UnknownSeverityFails(t *testing.T) {
	row := testRow()
	row.Severity = "blocker"

	_, err := Project(row, nil)
	require.ErrorIs(t, err, ir.ErrUnknownEnum)
	assert.Contains(t, err.Error(), "myprofile:javascript:S001")
}

func TestProject_UnknownInheritanceFails(t *testing.T) {
	row := testRow()
	row.Inheritance = "INHERITED"

	_, err := Project(row, nil)
	assert.ErrorIs(t, err, ir.ErrUnknownEnum)
}

func TestProject_MalformedKeyFails(t *testing.T) {
	row := testRow()
	row.ProfileKee = ""

	_, err := Project(row, nil)
	assert.ErrorIs(t, err, ir.ErrMalformedKey)
}

func TestProject_Pure(t *testing.T) {
	row := testRow()
	params := []store.ActiveRuleParamRow{{Key: "k", Value: "v"}}

	a, err := Project(row, params)
	require.NoError(t, err)
	a.Params["k"] = "changed"

	b, err := Project(row, params)
	require.NoError(t, err)
	assert.Equal(t, "v", b.Params["k"])
	assert.Equal(t, "v", params[0].Value)
}
