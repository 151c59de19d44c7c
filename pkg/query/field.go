package query

import (
	"strconv"
	"strings"
	"sync"
)

// FieldLocation names one text-bearing slot a match was found in, such as
// "title_0" or "keyword_2". It lets the EXCEPT operator compare match spans
// that came from different fields without ever treating them as adjacent.
type FieldLocation string

// Field projects a QueryTarget down to the word list, raw text list, and
// location-tagged text map a single query clause needs to evaluate against.
// Each accessor is computed once and cached, mirroring the target's
// "derived views are computed once" contract.
type Field interface {
	Words() []string
	Texts() []string
	TextsDict() map[FieldLocation]string
}

// specificField holds one labelled slice of raw text (titles, keywords,
// descriptions, or artist names) plus the lazily computed, cached views
// over it.
type specificField struct {
	prefix string
	value  []string

	wordsOnce sync.Once
	words     []string

	textsDictOnce sync.Once
	textsDict     map[FieldLocation]string
}

func (f *specificField) Texts() []string {
	return f.value
}

func (f *specificField) TextsDict() map[FieldLocation]string {
	f.textsDictOnce.Do(func() {
		f.textsDict = make(map[FieldLocation]string, len(f.value))
		for i, v := range f.value {
			loc := FieldLocation(f.prefix + "_" + strconv.Itoa(i))
			f.textsDict[loc] = v
		}
	})
	return f.textsDict
}

// TitleField holds a submission's title texts. Its word list is tokenized:
// each title is split into punctuation-delimited words.
type TitleField struct{ specificField }

// NewTitleField builds a TitleField over the given raw title strings.
func NewTitleField(titles []string) *TitleField {
	return &TitleField{specificField{prefix: "title", value: titles}}
}

func (f *TitleField) Words() []string {
	f.wordsOnce.Do(func() {
		for _, t := range f.value {
			f.words = append(f.words, tokenizeText(t)...)
		}
	})
	return f.words
}

// DescriptionField holds a submission's description texts, tokenized the
// same way as TitleField.
type DescriptionField struct{ specificField }

// NewDescriptionField builds a DescriptionField over the given raw
// description strings.
func NewDescriptionField(descriptions []string) *DescriptionField {
	return &DescriptionField{specificField{prefix: "description", value: descriptions}}
}

func (f *DescriptionField) Words() []string {
	f.wordsOnce.Do(func() {
		for _, d := range f.value {
			f.words = append(f.words, tokenizeText(d)...)
		}
	})
	return f.words
}

// KeywordField holds a submission's keyword tags. Each keyword is already a
// single token, so its word list is just the lower-cased tag list, not a
// further tokenization pass.
type KeywordField struct{ specificField }

// NewKeywordField builds a KeywordField over the given raw keyword tags.
func NewKeywordField(keywords []string) *KeywordField {
	return &KeywordField{specificField{prefix: "keyword", value: keywords}}
}

func (f *KeywordField) Words() []string {
	f.wordsOnce.Do(func() {
		f.words = make([]string, len(f.value))
		for i, k := range f.value {
			f.words[i] = lowerASCII(k)
		}
	})
	return f.words
}

// ArtistField holds a submission's credited artist names, one token per
// name, lower-cased like KeywordField.
type ArtistField struct{ specificField }

// NewArtistField builds an ArtistField over the given raw artist names.
func NewArtistField(artists []string) *ArtistField {
	return &ArtistField{specificField{prefix: "artist", value: artists}}
}

func (f *ArtistField) Words() []string {
	f.wordsOnce.Do(func() {
		f.words = make([]string, len(f.value))
		for i, a := range f.value {
			f.words[i] = lowerASCII(a)
		}
	})
	return f.words
}

// AnyField concatenates the words, texts, and text-location maps of every
// other field, so an unscoped query clause can search across all of them
// in one pass.
type AnyField struct {
	Title       *TitleField
	Description *DescriptionField
	Keyword     *KeywordField
	Artist      *ArtistField

	wordsOnce sync.Once
	words     []string

	textsOnce sync.Once
	texts     []string

	textsDictOnce sync.Once
	textsDict     map[FieldLocation]string
}

func (f *AnyField) Words() []string {
	f.wordsOnce.Do(func() {
		f.words = append(f.words, f.Title.Words()...)
		f.words = append(f.words, f.Description.Words()...)
		f.words = append(f.words, f.Keyword.Words()...)
		f.words = append(f.words, f.Artist.Words()...)
	})
	return f.words
}

func (f *AnyField) Texts() []string {
	f.textsOnce.Do(func() {
		f.texts = append(f.texts, f.Title.Texts()...)
		f.texts = append(f.texts, f.Description.Texts()...)
		f.texts = append(f.texts, f.Keyword.Texts()...)
		f.texts = append(f.texts, f.Artist.Texts()...)
	})
	return f.texts
}

func (f *AnyField) TextsDict() map[FieldLocation]string {
	f.textsDictOnce.Do(func() {
		f.textsDict = make(map[FieldLocation]string)
		for k, v := range f.Title.TextsDict() {
			f.textsDict[k] = v
		}
		for k, v := range f.Description.TextsDict() {
			f.textsDict[k] = v
		}
		for k, v := range f.Keyword.TextsDict() {
			f.textsDict[k] = v
		}
		for k, v := range f.Artist.TextsDict() {
			f.textsDict[k] = v
		}
	})
	return f.textsDict
}

// lowerASCII lower-cases a keyword or artist name without stripping
// punctuation, since those fields are already single tokens rather than
// punctuation-delimited free text.
func lowerASCII(s string) string {
	return strings.ToLower(s)
}
