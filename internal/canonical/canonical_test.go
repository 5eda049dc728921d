package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeSortsKeysAndKeepsNumbers(t *testing.T) {
	out, err := Canonicalize([]byte(`{ "b": 1.50, "a": {"z": [3, 1], "y": "x<y"} }`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"y":"x<y","z":[3,1]},"b":1.50}`, string(out))
}

func TestMarshalStructIsStable(t *testing.T) {
	type payload struct {
		Zeta  string  `json:"zeta"`
		Alpha float64 `json:"alpha"`
	}
	first, err := Marshal(payload{Zeta: "z", Alpha: 0.1})
	require.NoError(t, err)
	second, err := Marshal(map[string]interface{}{"alpha": 0.1, "zeta": "z"})
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestDigestDiffersOnContent(t *testing.T) {
	a, err := Digest(map[string]int{"x": 1})
	require.NoError(t, err)
	b, err := Digest(map[string]int{"x": 2})
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestCanonicalizeRejectsInvalidJSON(t *testing.T) {
	_, err := Canonicalize([]byte(`{"a":`))
	assert.Error(t, err)
}
