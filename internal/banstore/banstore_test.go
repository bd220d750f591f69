package banstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bans.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAndReadAll(t *testing.T) {
	s := openTemp(t)

	require.NoError(t, s.Upsert(Record{GroupID: 1, UserID: 2, LiftTime: 100}))
	records, err := s.ReadAll()
	require.NoError(t, err)
	require.Equal(t, []Record{{GroupID: 1, UserID: 2, LiftTime: 100}}, records)
}

func TestUpsertOverwritesLiftTime(t *testing.T) {
	s := openTemp(t)

	require.NoError(t, s.Upsert(Record{GroupID: 1, UserID: 2, LiftTime: 100}))
	require.NoError(t, s.Upsert(Record{GroupID: 1, UserID: 2, LiftTime: 200}))

	records, err := s.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, int64(200), records[0].LiftTime)
}

func TestDeleteRemovesRecord(t *testing.T) {
	s := openTemp(t)

	require.NoError(t, s.Upsert(Record{GroupID: 1, UserID: 2, LiftTime: 100}))
	require.NoError(t, s.Delete(1, 2))

	records, err := s.ReadAll()
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestWholeGroupBanSentinel(t *testing.T) {
	s := openTemp(t)

	require.NoError(t, s.Upsert(Record{GroupID: 1, UserID: 0, LiftTime: -1}))
	records, err := s.ReadAll()
	require.NoError(t, err)
	require.Equal(t, []Record{{GroupID: 1, UserID: 0, LiftTime: -1}}, records)
}
