package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "o****@example.com", MaskEmail("owner@example.com"))
	assert.Equal(t, "", MaskEmail(" "))
	assert.Equal(t, "****", MaskEmail("abc"))
}

func TestMaskSensitiveWalksNestedValues(t *testing.T) {
	out := MaskSensitive(map[string]any{
		"channel": "email",
		"results": []any{
			map[string]any{"email": "alice@example.com", "success": true},
		},
		"recipients": []string{"bob@example.com"},
		"":           "dropped",
	})

	assert.Equal(t, "email", out["channel"])
	assert.Equal(t, []any{"b****@example.com"}, out["recipients"])
	results := out["results"].([]any)
	first := results[0].(map[string]any)
	assert.Equal(t, "a****@example.com", first["email"])
	assert.Equal(t, true, first["success"])
	assert.NotContains(t, out, "")
}

func TestMaskSensitiveEmpty(t *testing.T) {
	assert.Nil(t, MaskSensitive(nil))
	assert.Nil(t, MaskSensitive(map[string]any{" ": 1}))
}
