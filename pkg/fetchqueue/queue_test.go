package fetchqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLaneTakesPriorityOverRefresh(t *testing.T) {
	q := New(25)
	require.NoError(t, q.PutRefresh(1))
	q.PutNew(2)

	id, ok := q.GetNowait()
	require.True(t, ok)
	assert.EqualValues(t, 2, id)

	id, ok = q.GetNowait()
	require.True(t, ok)
	assert.EqualValues(t, 1, id)

	_, ok = q.GetNowait()
	assert.False(t, ok)
}

func TestRefreshLimitExceeded(t *testing.T) {
	q := New(2)
	require.NoError(t, q.PutRefresh(1))
	require.NoError(t, q.PutRefresh(1))
	err := q.PutRefresh(1)
	require.Error(t, err)
}

func TestQSizeObservability(t *testing.T) {
	q := New(25)
	q.PutNew(1)
	q.PutNew(2)
	require.NoError(t, q.PutRefresh(3))

	assert.Equal(t, 2, q.QSizeNew())
	assert.Equal(t, 1, q.QSizeRefresh())
}
