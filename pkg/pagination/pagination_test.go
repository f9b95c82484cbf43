package pagination

import (
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, 10, NormalizeLimit(10))
	assert.Equal(t, MaxLimit, NormalizeLimit(500))
	assert.Equal(t, 11, Fetch(10))
}

func TestCursorSurvivesQueryString(t *testing.T) {
	c := Cursor{CreatedAt: time.Date(2026, 4, 9, 19, 45, 12, 345, time.FixedZone("x", 3600)), ID: uuid.New()}
	encoded := c.Encode()
	assert.Equal(t, encoded, url.QueryEscape(encoded), "cursor must not need escaping")

	parsed, err := ParseCursor(encoded)
	require.NoError(t, err)
	assert.True(t, parsed.CreatedAt.Equal(c.CreatedAt))
	assert.Equal(t, c.ID, parsed.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	c, err := ParseCursor("")
	assert.NoError(t, err)
	assert.Nil(t, c)

	for _, bad := range []string{"%%%", "bm90LWpzb24", Cursor{}.Encode()} {
		_, err := ParseCursor(bad)
		assert.ErrorIs(t, err, errMalformed, bad)
	}
}

type row struct {
	at time.Time
	id uuid.UUID
}

func TestTrim(t *testing.T) {
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]row, 3)
	for i := range rows {
		rows[i] = row{at: base.Add(-time.Duration(i) * time.Hour), id: uuid.New()}
	}
	key := func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	page, next := Trim(rows, 2, key)
	require.Len(t, page, 2)
	require.NotNil(t, next)
	assert.Equal(t, rows[1].id, next.ID)

	page, next = Trim(rows[:2], 2, key)
	assert.Len(t, page, 2)
	assert.Nil(t, next)
}
