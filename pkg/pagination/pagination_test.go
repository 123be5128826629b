package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 10, 15, 9, 30, 0, 123456789, time.UTC), ID: uuid.New()}
	out, err := ParseCursor(EncodeCursor(in))
	require.NoError(t, err)
	require.True(t, out.CreatedAt.Equal(in.CreatedAt))
	require.Equal(t, in.ID, out.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	cursor, err := ParseCursor("")
	require.NoError(t, err)
	require.Nil(t, cursor)

	_, err = ParseCursor("%%%")
	require.Error(t, err)
	_, err = ParseCursor(EncodeCursor(Cursor{}) + "x")
	require.Error(t, err)
}

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+1))
	require.Equal(t, 7, NormalizeLimit(7))
}

func TestTrim(t *testing.T) {
	rows := []int{5, 4, 3}
	key := func(v int) Cursor { return Cursor{CreatedAt: time.Unix(int64(v), 0), ID: uuid.Nil} }

	kept, next := Trim(rows, 2, key)
	require.Equal(t, []int{5, 4}, kept)
	cursor, err := ParseCursor(next)
	require.NoError(t, err)
	require.Equal(t, int64(4), cursor.CreatedAt.Unix())

	kept, next = Trim(rows, 3, key)
	require.Len(t, kept, 3)
	require.Empty(t, next)
}
