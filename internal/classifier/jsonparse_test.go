package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLLMJSONRaw(t *testing.T) {
	v, err := parseLLMJSON(`{"class": 1, "confidence": 0.9}`)
	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, 1.0, m["class"])
}

func TestParseLLMJSONFencedBlock(t *testing.T) {
	v, err := parseLLMJSON("```json\n{\"matched_message_id\": \"1700-0\"}\n```")
	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, "1700-0", m["matched_message_id"])
}

func TestParseLLMJSONLiteralNull(t *testing.T) {
	v, err := parseLLMJSON("null")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestParseLLMJSONLiteralNone(t *testing.T) {
	v, err := parseLLMJSON("none")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestParseLLMJSONLiteralNullMixedCase(t *testing.T) {
	v, err := parseLLMJSON("NULL")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = parseLLMJSON("None")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestParseLLMJSONEmptyString(t *testing.T) {
	v, err := parseLLMJSON("")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestParseLLMJSONWithSurroundingProse(t *testing.T) {
	v, err := parseLLMJSON("Sure, here is the answer:\n{\"class\": 0, \"confidence\": 0.1}\nHope that helps!")
	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, 0.0, m["class"])
}
