package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeys(t *testing.T) {
	data, err := MarshalCanonical(map[string]any{"b": "2", "a": "1", "c": int64(3)})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"1","b":"2","c":3}`, string(data))
}

func TestMarshalCanonical_NoHTMLEscape(t *testing.T) {
	data, err := MarshalCanonical("<a&b>")
	require.NoError(t, err)
	assert.Equal(t, `"<a&b>"`, string(data))
}

func TestMarshalCanonical_LineSeparatorsLiteral(t *testing.T) {
	data, err := MarshalCanonical("x\u2028y")
	require.NoError(t, err)
	assert.Equal(t, "\"x\u2028y\"", string(data))

	data, err = MarshalCanonical(`x\u2028y`)
	require.NoError(t, err)
	assert.Equal(t, `"x\\u2028y"`, string(data), "escaped backslash must stay escaped")
}

func TestMarshalCanonical_UTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes to surrogates starting 0xD83D, which sort before U+FFFD in UTF-16
	data, err := MarshalCanonical(map[string]any{"\uFFFD": "a", "\U0001F600": "b"})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":\"b\",\"\uFFFD\":\"a\"}", string(data))
}

func TestMarshalCanonical_Rejects(t *testing.T) {
	_, err := MarshalCanonical(nil)
	assert.Error(t, err)
	_, err = MarshalCanonical(1.5)
	assert.Error(t, err)
	_, err = MarshalCanonical(struct{}{})
	assert.Error(t, err)
	_, err = MarshalCanonical(map[string]any{"x": nil})
	assert.Error(t, err)
}

func TestMarshalCanonical_StringMap(t *testing.T) {
	data, err := MarshalCanonical(map[string]string{"min": "minimum", "max": "maximum"})
	require.NoError(t, err)
	assert.Equal(t, `{"max":"maximum","min":"minimum"}`, string(data))
}
