package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/subwatch/pkg/query"
	"github.com/3leaps/subwatch/pkg/queryparse"
	"github.com/3leaps/subwatch/pkg/subwatcherr"
)

func TestAddRemoveDuplicateNotFound(t *testing.T) {
	// Scenario 8.
	st := NewStore()
	sub, err := New("cat", Destination(1))
	require.NoError(t, err)

	require.NoError(t, st.AddSubscription(sub))

	dup, err := New("CAT", Destination(1))
	require.NoError(t, err)
	err = st.AddSubscription(dup)
	require.Error(t, err)
	assert.True(t, subwatcherr.IsDuplicate(err))

	require.NoError(t, st.RemoveSubscription("cat", Destination(1)))
	err = st.RemoveSubscription("cat", Destination(1))
	require.Error(t, err)
	assert.True(t, subwatcherr.IsNotFound(err))
}

func TestPauseResumeTransitions(t *testing.T) {
	st := NewStore()
	sub, err := New("cat", Destination(1))
	require.NoError(t, err)
	require.NoError(t, st.AddSubscription(sub))

	require.NoError(t, st.PauseSubscription("cat", Destination(1)))
	err = st.PauseSubscription("cat", Destination(1))
	assert.True(t, subwatcherr.IsAlreadyPaused(err))

	require.NoError(t, st.ResumeSubscription("cat", Destination(1)))
	err = st.ResumeSubscription("cat", Destination(1))
	require.Error(t, err)
}

func TestBlocklistCombinedQueryInvalidatesOnMutation(t *testing.T) {
	st := NewStore()
	require.NoError(t, st.AddToBlocklist(Destination(1), "spam"))

	target := query.NewQueryTarget(1, []string{"some spam post"}, nil, nil, nil, query.RatingGeneral)
	combined := st.Blocklist(Destination(1)).AsCombinedQuery()
	require.NotNil(t, combined)
	assert.False(t, combined.Matches(target))

	st.RemoveFromBlocklist(Destination(1), "spam")
	combined = st.Blocklist(Destination(1)).AsCombinedQuery()
	assert.Nil(t, combined, "an emptied blocklist has no combined query to apply")
}

func TestSubscriptionMatchesTwoCallHotPath(t *testing.T) {
	sub, err := New("cat", Destination(1))
	require.NoError(t, err)

	target := query.NewQueryTarget(1, []string{"a cat"}, nil, nil, nil, query.RatingGeneral)
	assert.True(t, sub.Matches(target, nil))

	blocked, err := queryparse.Parse("spam")
	require.NoError(t, err)
	blockNode := query.NewNotNode(blocked)
	assert.True(t, sub.Matches(target, blockNode))
}
