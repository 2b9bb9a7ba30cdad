package admin

import (
	"context"
	"strings"
	"testing"

	"github.com/kirogate/kirogate/internal/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validToken(suffix string) string {
	return suffix + ":" + strings.Repeat("a", 100-len(suffix)-1)
}

func TestBatchImport_AllValid(t *testing.T) {
	store := credentials.New(nil)
	svc := New(store)

	summary, err := svc.BatchImport(context.Background(), []string{validToken("t1"), validToken("t2")}, false)
	require.NoError(t, err)
	assert.True(t, summary.Success)
	assert.Equal(t, 2, summary.Imported)
	assert.Equal(t, 0, summary.Failed)
}

func TestBatchImport_SkipsBlankLines(t *testing.T) {
	store := credentials.New(nil)
	svc := New(store)

	summary, err := svc.BatchImport(context.Background(), []string{"", "  ", validToken("t1")}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Imported)
	assert.Equal(t, 2, summary.Skipped)
}

func TestBatchImport_DedupWithinBatch(t *testing.T) {
	store := credentials.New(nil)
	svc := New(store)

	token := validToken("dup")
	summary, err := svc.BatchImport(context.Background(), []string{token, token}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Imported)
	assert.Equal(t, 1, summary.Failed)
}

func TestBatchImport_OverMaxBatchSizeFails(t *testing.T) {
	store := credentials.New(nil)
	svc := New(store)

	tokens := make([]string, maxBatchSize+1)
	for i := range tokens {
		tokens[i] = validToken("x")
	}
	_, err := svc.BatchImport(context.Background(), tokens, true)
	require.Error(t, err)
}

func TestBatchImport_InvalidFailsFastWithoutSkipInvalid(t *testing.T) {
	store := credentials.New(nil)
	svc := New(store)

	_, err := svc.BatchImport(context.Background(), []string{"too-short"}, false)
	require.Error(t, err)

	snap := store.Snapshot()
	assert.Equal(t, 0, snap.Total)
}

func TestBatchImport_SkipInvalidAccumulatesFailures(t *testing.T) {
	store := credentials.New(nil)
	svc := New(store)

	summary, err := svc.BatchImport(context.Background(), []string{"too-short", validToken("ok")}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Imported)
	assert.Equal(t, 1, summary.Failed)
}

func TestBatchImport_ResultsSortedByLine(t *testing.T) {
	store := credentials.New(nil)
	svc := New(store)

	summary, err := svc.BatchImport(context.Background(), []string{validToken("a"), "bad", validToken("c")}, true)
	require.NoError(t, err)
	require.Len(t, summary.Results, 3)
	assert.Equal(t, 1, summary.Results[0].Line)
	assert.Equal(t, 2, summary.Results[1].Line)
	assert.Equal(t, 3, summary.Results[2].Line)
}

func TestSetDisabled_DeleteRoundTrip(t *testing.T) {
	store := credentials.New(nil)
	svc := New(store)

	id, err := svc.AddCredential(credentials.Credential{RefreshToken: validToken("d")})
	require.NoError(t, err)

	require.Error(t, svc.DeleteCredential(id)) // still enabled

	require.NoError(t, svc.SetDisabled(id, true))
	require.NoError(t, svc.DeleteCredential(id))
}
