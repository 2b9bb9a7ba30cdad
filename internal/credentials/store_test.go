package credentials

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validToken(suffix string) string {
	return suffix + ":" + strings.Repeat("a", 100)
}

func TestAdd_AssignsIDAndCurrent(t *testing.T) {
	s := New(nil)

	id1, err := s.Add(Credential{RefreshToken: validToken("one"), Priority: 0})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id1)

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Total)
	assert.Equal(t, id1, snap.CurrentID)
}

func TestAdd_DuplicateFingerprintRejected(t *testing.T) {
	s := New(nil)
	tok := validToken("same")

	_, err := s.Add(Credential{RefreshToken: tok})
	require.NoError(t, err)

	_, err = s.Add(Credential{RefreshToken: tok})
	require.Error(t, err)
}

func TestValidateRefreshToken(t *testing.T) {
	require.Error(t, ValidateRefreshToken("short"))
	require.Error(t, ValidateRefreshToken(strings.Repeat("a", 101))) // no colon
	require.NoError(t, ValidateRefreshToken(validToken("x")))
}

func TestSwitchToNext_PicksLowestPriorityNonCurrent(t *testing.T) {
	s := New(nil)
	id1, _ := s.Add(Credential{RefreshToken: validToken("1"), Priority: 0})
	id2, _ := s.Add(Credential{RefreshToken: validToken("2"), Priority: 1})

	snap := s.Snapshot()
	require.Equal(t, id1, snap.CurrentID)

	s.SwitchToNext()
	snap = s.Snapshot()
	assert.Equal(t, id2, snap.CurrentID)
}

func TestRecordFailure_DisablesAtThresholdAndFailsOver(t *testing.T) {
	s := New(nil)
	id1, _ := s.Add(Credential{RefreshToken: validToken("1"), Priority: 0})
	id2, _ := s.Add(Credential{RefreshToken: validToken("2"), Priority: 1})

	for i := 0; i < failureThreshold; i++ {
		s.RecordFailure(id1)
	}

	snap := s.Snapshot()
	assert.Equal(t, id2, snap.CurrentID)
	for _, e := range snap.Entries {
		if e.ID == id1 {
			assert.True(t, e.Disabled)
		}
	}
}

func TestDelete_OnlyDisabled(t *testing.T) {
	s := New(nil)
	id1, _ := s.Add(Credential{RefreshToken: validToken("1")})

	err := s.Delete(id1)
	require.Error(t, err)

	require.NoError(t, s.SetDisabled(id1, true))
	require.NoError(t, s.Delete(id1))

	_, err = s.Get(id1)
	require.Error(t, err)
}

func TestSnapshotInvariants(t *testing.T) {
	s := New(nil)
	id1, _ := s.Add(Credential{RefreshToken: validToken("1"), Priority: 0})
	_, _ = s.Add(Credential{RefreshToken: validToken("2"), Priority: 1})
	require.NoError(t, s.SetDisabled(id1, true))

	snap := s.Snapshot()
	disabledCount := 0
	for _, e := range snap.Entries {
		if e.Disabled {
			disabledCount++
		}
	}
	assert.Equal(t, snap.Total-disabledCount, snap.Available)
	if snap.Available > 0 {
		var found bool
		for _, e := range snap.Entries {
			if e.ID == snap.CurrentID && !e.Disabled {
				found = true
			}
		}
		assert.True(t, found, "current id must point at a non-disabled entry")
	}
}

func TestConnectionGuard_ReleaseIsIdempotent(t *testing.T) {
	s := New(nil)
	id1, _ := s.Add(Credential{RefreshToken: validToken("1")})
	cred, err := s.Get(id1)
	require.NoError(t, err)

	g := s.ConnectionGuard(cred)
	snap := s.Snapshot()
	assert.EqualValues(t, 1, snap.Entries[0].Connections)

	g.Release()
	g.Release()
	snap = s.Snapshot()
	assert.EqualValues(t, 0, snap.Entries[0].Connections)
}
