package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/activerules/internal/ir"
)

func TestDecodeDoc_RejectsUnknownSeverity(t *testing.T) {
	data, err := msgpack.Marshal(&storedDoc{
		Key:         "p:javascript:S001",
		Severity:    "SEVERE",
		Inheritance: "NONE",
	})
	require.NoError(t, err)

	_, err = decodeDoc(data)
	assert.ErrorIs(t, err, ir.ErrUnknownEnum)
}

func TestDecodeDoc_NilParamsBecomeEmpty(t *testing.T) {
	doc := activation("p", "javascript:S001", ir.SeverityInfo)
	doc.Params = nil
	data, err := encodeDoc(doc, "h")
	require.NoError(t, err)

	got, err := decodeDoc(data)
	require.NoError(t, err)
	assert.NotNil(t, got.Params)
	assert.True(t, doc.Equal(got))
}

func TestStorageKeys(t *testing.T) {
	key := ir.MustParseActiveRuleKey("p:javascript:S001")

	assert.Equal(t, "d\x00p:javascript:S001", string(docKey(key)))
	assert.Equal(t, "r\x00javascript:S001\x00p:javascript:S001", string(ruleKey(key)))
	assert.Equal(t, "p\x00p\x00p:javascript:S001", string(profileKey(key)))

	got, err := postingTarget(ruleKey(key))
	require.NoError(t, err)
	assert.Equal(t, key, got)

	got, err = docTarget(docKey(key))
	require.NoError(t, err)
	assert.Equal(t, key, got)
}
