package bible

import "strings"

// book holds the canonical display name and the accepted spoken/written
// aliases for one of the 66 protestant-canon books. The slice index + 1 is the
// canonical book number (Genesis=1 … Revelation=66), matching the numbering
// used by the verse database and cross-reference tables.
type book struct {
	name    string
	aliases []string
}

var books = []book{
	{"Genesis", []string{"gen", "ge"}},
	{"Exodus", []string{"exod", "exo", "ex"}},
	{"Leviticus", []string{"lev", "le"}},
	{"Numbers", []string{"num", "nu"}},
	{"Deuteronomy", []string{"deut", "deu", "dt"}},
	{"Joshua", []string{"josh", "jos"}},
	{"Judges", []string{"judg", "jdg"}},
	{"Ruth", []string{"rut", "ru"}},
	{"1 Samuel", []string{"1 sam", "1sam", "1 sa"}},
	{"2 Samuel", []string{"2 sam", "2sam", "2 sa"}},
	{"1 Kings", []string{"1 kgs", "1kgs", "1 ki"}},
	{"2 Kings", []string{"2 kgs", "2kgs", "2 ki"}},
	{"1 Chronicles", []string{"1 chr", "1chr", "1 chron"}},
	{"2 Chronicles", []string{"2 chr", "2chr", "2 chron"}},
	{"Ezra", []string{"ezr"}},
	{"Nehemiah", []string{"neh", "ne"}},
	{"Esther", []string{"esth", "est"}},
	{"Job", nil},
	{"Psalms", []string{"psalm", "psa", "pss", "ps"}},
	{"Proverbs", []string{"prov", "pro", "pr"}},
	{"Ecclesiastes", []string{"eccl", "ecc", "qoheleth"}},
	{"Song of Solomon", []string{"song of songs", "song", "sos", "canticles"}},
	{"Isaiah", []string{"isa", "is"}},
	{"Jeremiah", []string{"jer", "je"}},
	{"Lamentations", []string{"lam", "la"}},
	{"Ezekiel", []string{"ezek", "eze"}},
	{"Daniel", []string{"dan", "da"}},
	{"Hosea", []string{"hos", "ho"}},
	{"Joel", []string{"joe", "jl"}},
	{"Amos", []string{"amo", "am"}},
	{"Obadiah", []string{"obad", "oba", "ob"}},
	{"Jonah", []string{"jon", "jnh"}},
	{"Micah", []string{"mic", "mi"}},
	{"Nahum", []string{"nah", "na"}},
	{"Habakkuk", []string{"hab", "hb"}},
	{"Zephaniah", []string{"zeph", "zep"}},
	{"Haggai", []string{"hag", "hg"}},
	{"Zechariah", []string{"zech", "zec"}},
	{"Malachi", []string{"mal", "ml"}},
	{"Matthew", []string{"matt", "mat", "mt"}},
	{"Mark", []string{"mrk", "mk", "mr"}},
	{"Luke", []string{"luk", "lk"}},
	{"John", []string{"joh", "jhn", "jn"}},
	{"Acts", []string{"act", "ac"}},
	{"Romans", []string{"rom", "ro", "rm"}},
	{"1 Corinthians", []string{"1 cor", "1cor", "1 co"}},
	{"2 Corinthians", []string{"2 cor", "2cor", "2 co"}},
	{"Galatians", []string{"gal", "ga"}},
	{"Ephesians", []string{"eph", "ep"}},
	{"Philippians", []string{"phil", "php", "pp"}},
	{"Colossians", []string{"col", "co"}},
	{"1 Thessalonians", []string{"1 thess", "1thess", "1 th"}},
	{"2 Thessalonians", []string{"2 thess", "2thess", "2 th"}},
	{"1 Timothy", []string{"1 tim", "1tim", "1 ti"}},
	{"2 Timothy", []string{"2 tim", "2tim", "2 ti"}},
	{"Titus", []string{"tit", "ti"}},
	{"Philemon", []string{"phlm", "phm", "pm"}},
	{"Hebrews", []string{"heb", "he"}},
	{"James", []string{"jas", "jm"}},
	{"1 Peter", []string{"1 pet", "1pet", "1 pe"}},
	{"2 Peter", []string{"2 pet", "2pet", "2 pe"}},
	{"1 John", []string{"1 john", "1john", "1 jn", "1jn"}},
	{"2 John", []string{"2 john", "2john", "2 jn", "2jn"}},
	{"3 John", []string{"3 john", "3john", "3 jn", "3jn"}},
	{"Jude", []string{"jud", "jde"}},
	{"Revelation", []string{"rev", "re", "apocalypse"}},
}

// bookNumbers maps every normalized name and alias to its canonical book
// number. Built once at package init.
var bookNumbers = func() map[string]int {
	m := make(map[string]int, len(books)*4)
	for i, b := range books {
		num := i + 1
		m[normalizeBookKey(b.name)] = num
		for _, a := range b.aliases {
			m[normalizeBookKey(a)] = num
		}
	}
	return m
}()

// normalizeBookKey lowercases a book name, strips trailing periods, and
// collapses internal whitespace so that "1  COR." and "1 cor" share a key.
func normalizeBookKey(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimSuffix(name, ".")
	return strings.Join(strings.Fields(name), " ")
}

// BookNumber resolves a book name or abbreviation to its canonical number
// (1–66). The second return value is false when the name is not recognized.
func BookNumber(name string) (int, bool) {
	n, ok := bookNumbers[normalizeBookKey(name)]
	return n, ok
}

// BookName returns the canonical display name for a book number, or the empty
// string when num is outside 1–66.
func BookName(num int) string {
	if num < 1 || num > len(books) {
		return ""
	}
	return books[num-1].name
}
