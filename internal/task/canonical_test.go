package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalSortsKeys(t *testing.T) {
	data, err := MarshalCanonical(map[string]any{
		"zebra": 1,
		"apple": "a<b",
		"mango": []string{"x", "y"},
		"kiwi":  true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"apple":"a<b","kiwi":true,"mango":["x","y"],"zebra":1}`, string(data))
}

func TestMarshalCanonicalRejectsUnsupported(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"f": 1.5})
	assert.Error(t, err)

	_, err = MarshalCanonical(nil)
	assert.Error(t, err)
}
