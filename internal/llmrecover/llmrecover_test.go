package llmrecover

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaignkb/internal/kberrors"
)

type hook struct {
	Name string `json:"name"`
}

func TestRecoverArray_StrictParseSucceeds(t *testing.T) {
	objs, err := RecoverArray(`[{"name":"a"},{"name":"b"}]`)
	require.NoError(t, err)
	assert.Len(t, objs, 2)
}

func TestRecoverArray_StripsMarkdownFence(t *testing.T) {
	raw := "```json\n[{\"name\":\"a\"}]\n```"
	objs, err := RecoverArray(raw)
	require.NoError(t, err)
	assert.Len(t, objs, 1)
}

func TestRecoverArray_TruncatedTailRecoversCompleteObjects(t *testing.T) {
	raw := `[{"name":"a"},{"name":"b"},{"name":"c` // truncated mid third object, no closing bracket
	objs, err := RecoverArray(raw)
	require.NoError(t, err)
	assert.Len(t, objs, 2)
}

func TestRecoverArray_BraceInsideStringLiteralDoesNotConfuseDepth(t *testing.T) {
	raw := `[{"name":"{not a brace}"},{"name":"b"}]`
	objs, err := RecoverArray(raw)
	require.NoError(t, err)
	require.Len(t, objs, 2)
}

func TestRecoverArray_NoObjectsFoundReturnsParseError(t *testing.T) {
	_, err := RecoverArray("not json at all")
	require.Error(t, err)
	assert.Equal(t, kberrors.ParseError, kberrors.KindOf(err))
}

func TestRecoverInto_DecodesRecoveredObjects(t *testing.T) {
	raw := `[{"name":"a"},{"name":"b"},{"name":"c`
	hooks, err := RecoverInto[hook](raw)
	require.NoError(t, err)
	require.Len(t, hooks, 2)
	assert.Equal(t, "a", hooks[0].Name)
	assert.Equal(t, "b", hooks[1].Name)
}
