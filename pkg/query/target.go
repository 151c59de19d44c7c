package query

import "encoding/json"

// QueryTarget is the evaluation-side projection of a submission: the raw
// text fields a query AST can be run against, plus the derived per-field
// views (word lists, text lists, location-tagged text maps) computed once
// and cached for the lifetime of the target.
type QueryTarget struct {
	SubID SubmissionID

	Title       *TitleField
	Description *DescriptionField
	Keywords    *KeywordField
	Artist      *ArtistField
	Any         *AnyField

	Rating Rating
}

// NewQueryTarget builds a QueryTarget from a submission's raw fields. Title,
// description, keywords, and artist are slices because a submission may
// carry more than one instance of a field (e.g. title plus alt titles);
// most sites populate each with exactly one element.
func NewQueryTarget(subID SubmissionID, title, description, keywords, artist []string, rating Rating) *QueryTarget {
	t := NewTitleField(title)
	d := NewDescriptionField(description)
	k := NewKeywordField(keywords)
	a := NewArtistField(artist)
	return &QueryTarget{
		SubID:       subID,
		Title:       t,
		Description: d,
		Keywords:    k,
		Artist:      a,
		Any:         &AnyField{Title: t, Description: d, Keyword: k, Artist: a},
		Rating:      rating,
	}
}

// targetJSON is the wire shape used to persist and reload a QueryTarget,
// matching the external latest-submission snapshot format.
type targetJSON struct {
	SubID       string   `json:"sub_id"`
	Title       []string `json:"title"`
	Keywords    []string `json:"keywords"`
	Description []string `json:"description"`
	Artist      []string `json:"artist"`
	Rating      string   `json:"rating"`
}

// ToJSON renders the target's persisted snapshot shape.
func (t *QueryTarget) ToJSON() ([]byte, error) {
	return json.Marshal(targetJSON{
		SubID:       t.SubID.String(),
		Title:       t.Title.Texts(),
		Keywords:    t.Keywords.Texts(),
		Description: t.Description.Texts(),
		Artist:      t.Artist.Texts(),
		Rating:      string(t.Rating),
	})
}

// QueryTargetFromJSON reconstructs a QueryTarget from its persisted
// snapshot shape.
func QueryTargetFromJSON(data []byte) (*QueryTarget, error) {
	var raw targetJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	subID, err := ParseSubmissionID(raw.SubID)
	if err != nil {
		return nil, err
	}
	return NewQueryTarget(subID, raw.Title, raw.Description, raw.Keywords, raw.Artist, Rating(raw.Rating)), nil
}
