package queryparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/subwatch/pkg/query"
	"github.com/3leaps/subwatch/pkg/subwatcherr"
)

func target(title, description, keywords, artist []string, rating query.Rating) *query.QueryTarget {
	return query.NewQueryTarget(1, title, description, keywords, artist, rating)
}

func TestScenario1AndNot(t *testing.T) {
	node, err := Parse(`cat and -"wet dog"`)
	require.NoError(t, err)
	assert.True(t, node.Matches(target([]string{"A wet cat"}, nil, nil, nil, query.RatingGeneral)))
}

func TestScenario2PrefixScopedToTitle(t *testing.T) {
	node, err := Parse("title:foo*")
	require.NoError(t, err)
	prefix, ok := node.(*query.PrefixNode)
	require.True(t, ok)
	assert.Equal(t, "foo", prefix.Prefix)

	assert.True(t, node.Matches(target([]string{"foobar"}, nil, nil, nil, query.RatingGeneral)))
	assert.False(t, node.Matches(target([]string{"foo"}, nil, nil, nil, query.RatingGeneral)))
	assert.False(t, node.Matches(target(nil, []string{"foobar"}, nil, nil, query.RatingGeneral)))
}

func TestScenario3Exception(t *testing.T) {
	node, err := Parse("cat except (cats or catfish)")
	require.NoError(t, err)

	assert.True(t, node.Matches(target(nil, []string{"the cat and the catfish"}, nil, nil, query.RatingGeneral)))
	assert.False(t, node.Matches(target(nil, []string{"just a catfish"}, nil, nil, query.RatingGeneral)))
}

func TestScenario4RatingAndKeyword(t *testing.T) {
	node, err := Parse("rating:adult and fox")
	require.NoError(t, err)

	assert.False(t, node.Matches(target(nil, nil, []string{"fox"}, nil, query.RatingGeneral)))
	assert.True(t, node.Matches(target(nil, nil, []string{"fox"}, nil, query.RatingAdult)))
}

func TestRatingAliasesParse(t *testing.T) {
	safe, err := Parse("rating:safe")
	require.NoError(t, err)
	assert.True(t, safe.Matches(target(nil, nil, nil, nil, query.RatingGeneral)))

	questionable, err := Parse("rating:questionable")
	require.NoError(t, err)
	assert.True(t, questionable.Matches(target(nil, nil, nil, nil, query.RatingMature)))
}

func TestReservedKeywordRejected(t *testing.T) {
	_, err := Parse("not")
	require.Error(t, err)
	assert.True(t, subwatcherr.IsInvalidQuery(err))
}

func TestReservedKeywordAllowedQuoted(t *testing.T) {
	node, err := Parse(`"not"`)
	require.NoError(t, err)
	assert.True(t, node.Matches(target([]string{"this is not a drill"}, nil, nil, nil, query.RatingGeneral)))
}

func TestBracketedGroupPrecedence(t *testing.T) {
	node, err := Parse("(cat or dog) and wet")
	require.NoError(t, err)
	assert.True(t, node.Matches(target([]string{"a wet dog"}, nil, nil, nil, query.RatingGeneral)))
	assert.False(t, node.Matches(target([]string{"a dry dog"}, nil, nil, nil, query.RatingGeneral)))
}

func TestRoundTripCanonicalForm(t *testing.T) {
	// P1: parse(str(parse(s))) == parse(s) for canonical operator spellings.
	node, err := Parse("cat and dog")
	require.NoError(t, err)

	reparsed, err := Parse(node.String())
	require.NoError(t, err)

	assert.Equal(t, node.String(), reparsed.String())
}

func TestInvalidQueryUnbalancedParens(t *testing.T) {
	_, err := Parse("(cat and dog")
	require.Error(t, err)
	assert.True(t, subwatcherr.IsInvalidQuery(err))
}

func TestCacheReturnsSameResultAndEvicts(t *testing.T) {
	c := NewCache(2)

	n1, err1 := c.Parse("cat")
	require.NoError(t, err1)
	n2, err2 := c.Parse("cat")
	require.NoError(t, err2)
	assert.Equal(t, n1.String(), n2.String())
	assert.Equal(t, 1, c.Len())

	_, _ = c.Parse("dog")
	_, _ = c.Parse("fox")
	assert.Equal(t, 2, c.Len())
}
