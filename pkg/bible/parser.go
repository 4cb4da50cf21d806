package bible

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// refGrammar is the participle AST for a single scripture reference. The
// trailing chapter/verse group is disambiguated after parsing: "John 3:16-18"
// lexes with 18 in the EndChapter slot even though it is a verse ending.
type refGrammar struct {
	Book       string `parser:"@Book"`
	Chapter    *int   `parser:"( @Number"`
	Verse      *int   `parser:"  ( ':' @Number )?"`
	EndChapter *int   `parser:"  ( '-' ( @Number"`
	EndVerse   *int   `parser:"    ( ':' @Number )? )? )? )?"`
}

var refLexer = lexer.MustSimple([]lexer.SimpleRule{
	// Book names: optional leading ordinal digit, one or more words, optional
	// trailing period. Covers "John", "1 John", "Song of Solomon", "Gen.".
	{Name: "Book", Pattern: `(?:\d\s*)?[A-Za-z]+(?:\s+(?:of\s+)?[A-Za-z]+)*\.?`},
	{Name: "Number", Pattern: `\d+`},
	{Name: "Colon", Pattern: `:`},
	{Name: "Dash", Pattern: `-`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var refParser = participle.MustBuild[refGrammar](
	participle.Lexer(refLexer),
	participle.Elide("Whitespace"),
)

// dotSeparator rewrites numeric dot separators ("3.16") to colon form so the
// grammar only has to know about one separator style.
var dotSeparator = regexp.MustCompile(`(\d)\s*\.\s*(\d)`)

// Parse parses a single candidate string into a [Reference].
//
// Accepted forms include "John 3:16", "Jn 3:16", "Gen.1.1", "Romans 8:28-30",
// "Genesis 1:31-2:3", and whole-chapter references such as "Psalm 23".
// A chapter number is required; bare book names fail. All failures are
// reported as [ErrUnparseable] with detail wrapped in.
func Parse(candidate string) (Reference, error) {
	normalized := strings.ReplaceAll(candidate, "–", "-") // en dash ranges
	normalized = dotSeparator.ReplaceAllString(normalized, "$1:$2")

	g, err := refParser.ParseString("", strings.TrimSpace(normalized))
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %q", ErrUnparseable, candidate)
	}

	num, ok := BookNumber(g.Book)
	if !ok {
		return Reference{}, fmt.Errorf("%w: unknown book in %q", ErrUnparseable, candidate)
	}
	if g.Chapter == nil || *g.Chapter < 1 {
		return Reference{}, fmt.Errorf("%w: missing chapter in %q", ErrUnparseable, candidate)
	}

	ref := Reference{Book: num, Chapter: *g.Chapter}
	if g.Verse != nil {
		ref.Verse = *g.Verse
	}
	if g.EndChapter != nil {
		ref.EndChapter = *g.EndChapter
	}
	if g.EndVerse != nil {
		ref.EndVerse = *g.EndVerse
	}

	// "John 3:16-18" parses with 18 in the end-chapter slot. When a starting
	// verse is present and no end verse followed the dash, the number after
	// the dash is a verse ending, not a chapter.
	if ref.Verse != 0 && ref.EndChapter != 0 && ref.EndVerse == 0 {
		ref.EndVerse = ref.EndChapter
		ref.EndChapter = 0
	}

	return ref, nil
}

// Span is one parseable reference located inside a larger text. Start and End
// are byte offsets into the scanned string.
type Span struct {
	Start int
	End   int
	Ref   Reference
}

// scanRe matches reference-shaped substrings in prose. Built once from the
// book table. Only names and aliases of three or more characters participate,
// so common short words ("is", "am", "he") followed by a number do not fire;
// [Parse] still accepts the short abbreviations for explicit candidates.
var scanRe = func() *regexp.Regexp {
	var alts []string
	add := func(name string) {
		if len(name) < 3 {
			return
		}
		alts = append(alts, strings.ReplaceAll(regexp.QuoteMeta(name), ` `, `\s+`))
	}
	for _, b := range books {
		add(strings.ToLower(b.name))
		for _, a := range b.aliases {
			add(a)
		}
	}
	// Longest alternative first so "1 corinthians" wins over "1 cor".
	sort.Slice(alts, func(i, j int) bool { return len(alts[i]) > len(alts[j]) })

	p := `(?i)\b(?:` + strings.Join(alts, `|`) +
		`)(?:\.|\s)\s*\d{1,3}(?:\s*[:.]\s*\d{1,3})?(?:\s*[-\x{2013}]\s*\d{1,3}(?:\s*[:.]\s*\d{1,3})?)?`
	return regexp.MustCompile(p)
}()

// Scan returns every parseable reference span in text, in order of
// appearance. Candidates that match the surface pattern but fail [Parse] are
// skipped; Scan itself never fails.
func Scan(text string) []Span {
	var spans []Span
	for _, loc := range scanRe.FindAllStringIndex(text, -1) {
		ref, err := Parse(text[loc[0]:loc[1]])
		if err != nil {
			continue
		}
		spans = append(spans, Span{Start: loc[0], End: loc[1], Ref: ref})
	}
	return spans
}
