package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func targetWith(title, description, keywords, artist []string, rating Rating) *QueryTarget {
	return NewQueryTarget(1, title, description, keywords, artist, rating)
}

func TestAndOrBooleanSemantics(t *testing.T) {
	// P2: And(x,y).matches(T) iff x.matches(T) && y.matches(T).
	target := targetWith([]string{"a wet cat"}, nil, nil, nil, RatingGeneral)
	cat := NewWordNode("cat", nil)
	dog := NewWordNode("dog", nil)

	and := NewAndNode([]Node{cat, dog})
	assert.False(t, and.Matches(target))

	and2 := NewAndNode([]Node{cat, NewWordNode("wet", nil)})
	assert.True(t, and2.Matches(target))

	or := NewOrNode([]Node{cat, dog})
	assert.True(t, or.Matches(target))

	notDog := NewNotNode(dog)
	assert.True(t, notDog.Matches(target))
}

func TestAndOrFlattening(t *testing.T) {
	// P3: And([And([a,b]), c]).children == [a,b,c]; same for Or.
	a := NewWordNode("a", nil)
	b := NewWordNode("b", nil)
	c := NewWordNode("c", nil)

	inner := NewAndNode([]Node{a, b})
	outer := NewAndNode([]Node{inner, c})
	require.Len(t, outer.Children, 3)
	assert.Same(t, a, outer.Children[0])
	assert.Same(t, b, outer.Children[1])
	assert.Same(t, c, outer.Children[2])

	orInner := NewOrNode([]Node{a, b})
	orOuter := NewOrNode([]Node{orInner, c})
	lor, ok := orOuter.(*LocationOrNode)
	require.True(t, ok)
	require.Len(t, lor.Children, 3)
}

func TestExceptionMatchesOnNonOverlappingSpan(t *testing.T) {
	// P4 / scenario 3: cat except (cats or catfish).
	wordCat := NewWordNode("cat", nil)
	wordCats := NewWordNode("cats", nil)
	wordCatfish := NewWordNode("catfish", nil)
	exclusion := NewOrNode([]Node{wordCats, wordCatfish}).(LocationNode)
	exc := NewExceptionNode(wordCat, exclusion)

	matches := targetWith(nil, []string{"the cat and the catfish"}, nil, nil, RatingGeneral)
	assert.True(t, exc.Matches(matches))

	noMatch := targetWith(nil, []string{"just a catfish"}, nil, nil, RatingGeneral)
	assert.False(t, exc.Matches(noMatch))
}

func TestWordMatchIsCaseInsensitiveAndBoundaryAnchored(t *testing.T) {
	// P5.
	word := NewWordNode("cat", nil)
	assert.True(t, word.Matches(targetWith([]string{"a CAT."}, nil, nil, nil, RatingGeneral)))
	assert.False(t, word.Matches(targetWith([]string{"category"}, nil, nil, nil, RatingGeneral)))
}

func TestScenario1AndNotPhrase(t *testing.T) {
	query := NewAndNode([]Node{
		NewWordNode("cat", nil),
		NewNotNode(NewPhraseNode("wet dog", nil)),
	})
	target := targetWith([]string{"A wet cat"}, nil, nil, nil, RatingGeneral)
	assert.True(t, query.Matches(target))
}

func TestScenario2PrefixScopedToTitle(t *testing.T) {
	prefix := NewPrefixNode("foo", SelectTitle)

	assert.True(t, prefix.Matches(targetWith([]string{"foobar"}, nil, nil, nil, RatingGeneral)))
	assert.False(t, prefix.Matches(targetWith([]string{"foo"}, nil, nil, nil, RatingGeneral)))
	assert.False(t, prefix.Matches(targetWith(nil, []string{"foobar"}, nil, nil, RatingGeneral)))
}

func TestScenario4RatingAndKeyword(t *testing.T) {
	query := NewAndNode([]Node{
		NewRatingNode(RatingAdult),
		NewWordNode("fox", nil),
	})
	assert.False(t, query.Matches(targetWith(nil, nil, []string{"fox"}, nil, RatingGeneral)))
	assert.True(t, query.Matches(targetWith(nil, nil, []string{"fox"}, nil, RatingAdult)))
}

func TestMatchLocationOverlaps(t *testing.T) {
	a := MatchLocation{Field: "title_0", Start: 0, End: 5}
	b := MatchLocation{Field: "title_0", Start: 3, End: 8}
	c := MatchLocation{Field: "title_0", Start: 5, End: 9}
	d := MatchLocation{Field: "description_0", Start: 0, End: 5}

	assert.True(t, a.Overlaps(b))
	assert.False(t, a.Overlaps(c)) // half-open ranges: touching at 5 does not overlap
	assert.False(t, a.Overlaps(d)) // different field, never overlaps
}

func TestRatingAliases(t *testing.T) {
	tests := map[string]Rating{
		"general":      RatingGeneral,
		"safe":         RatingGeneral,
		"mature":       RatingMature,
		"questionable": RatingMature,
		"adult":        RatingAdult,
		"explicit":     RatingAdult,
	}
	for name, want := range tests {
		got, ok := RatingByName(name)
		require.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
	_, ok := RatingByName("nonsense")
	assert.False(t, ok)
}
