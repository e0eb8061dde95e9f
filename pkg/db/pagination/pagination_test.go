package pagination

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 10, 14, 10, 0, 0, 500, time.FixedZone("WIB", 7*3600))
	token, err := EncodeCursor(NewCursor("42", at))
	require.NoError(t, err)

	id, got, err := DecodePosition(token)
	require.NoError(t, err)
	assert.Equal(t, "42", id)
	assert.True(t, at.Equal(got))
}

func TestDecodePositionRejectsIncompleteCursor(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42"})
	require.NoError(t, err)
	_, _, err = DecodePosition(token)
	assert.ErrorIs(t, err, ErrInvalidPageToken)

	token, err = EncodeCursor(NewCursor(" ", time.Now()))
	require.NoError(t, err)
	_, _, err = DecodePosition(token)
	assert.ErrorIs(t, err, ErrInvalidPageToken)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("!!not-base64!!")
	assert.ErrorIs(t, err, ErrInvalidPageToken)
}

func TestBuildCursorPageInfo(t *testing.T) {
	rows := []int{1, 2, 3}
	extract := func(v int) Cursor { return Cursor{ID: strconv.Itoa(v)} }

	page, info, err := BuildCursorPageInfo(rows, 2, extract)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, page)
	assert.True(t, info.HasMore)

	cursor, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, "2", cursor.ID)

	page, info, err = BuildCursorPageInfo(rows, 3, extract)
	require.NoError(t, err)
	assert.Len(t, page, 3)
	assert.False(t, info.HasMore)
}

func TestLimit(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Limit())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 1000}.Limit())
	assert.Equal(t, 10, Pagination{PageSize: 10}.Limit())
}
