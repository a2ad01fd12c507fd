// Package mention handles @imgK tokens that let a description cite a
// specific reference photo. Cursor positions are rune offsets, matching
// what a text field reports as caret position.
package mention

import (
	"regexp"
	"sort"
	"strconv"
	"unicode"
)

const tokenPrefix = "@img"

var (
	tokenPattern  = regexp.MustCompile(`@img(\d+)`)
	finishedQuery = regexp.MustCompile(`^img\d+$`)
)

// Trigger describes a mention being typed: the offset of its '@' and the
// text typed after it so far.
type Trigger struct {
	At    int
	Query string
}

// Token renders the mention token for a 1-based slot ordinal.
func Token(ordinal int) string {
	return tokenPrefix + strconv.Itoa(ordinal)
}

// DetectTrigger reports whether the caret sits inside a mention being typed,
// i.e. an '@' precedes the cursor with no whitespace between them. A query
// that already forms a whole token such as "img1" is finished, not open.
func DetectTrigger(text string, cursor int) (Trigger, bool) {
	runes := []rune(text)
	cursor = clamp(cursor, len(runes))

	at := lastAt(runes[:cursor])
	if at < 0 {
		return Trigger{}, false
	}
	query := runes[at+1 : cursor]
	for _, r := range query {
		if unicode.IsSpace(r) {
			return Trigger{}, false
		}
	}
	if finishedQuery.MatchString(string(query)) {
		return Trigger{}, false
	}
	return Trigger{At: at, Query: string(query)}, true
}

// InsertMention replaces the last '@' before the cursor, and whatever was
// typed between it and the cursor, with the token for ordinal followed by a
// single space. Text after the cursor is kept; when it already starts with a
// space that space is reused instead of doubled. It returns the new text and
// the caret offset right after the separating space. Without a preceding
// '@' (or with an invalid ordinal) the input comes back unchanged.
//
// For example InsertMention("A @ B", 3, 2) returns "A @img2 B" and caret 8,
// the offset of "B": the existing space is the separator.
func InsertMention(text string, cursor int, ordinal int) (string, int) {
	runes := []rune(text)
	cursor = clamp(cursor, len(runes))

	at := lastAt(runes[:cursor])
	if at < 0 || ordinal < 1 {
		return text, cursor
	}

	token := []rune(Token(ordinal))
	after := runes[cursor:]

	out := make([]rune, 0, len(runes)+len(token)+1)
	out = append(out, runes[:at]...)
	out = append(out, token...)
	if len(after) == 0 || after[0] != ' ' {
		out = append(out, ' ')
	}
	out = append(out, after...)

	return string(out), at + len(token) + 1
}

// References lists the distinct ordinals cited in text, ascending.
func References(text string) []int {
	seen := make(map[int]bool)
	var out []int
	for _, m := range tokenPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Dangling lists cited ordinals that do not match any of slotCount photos.
// Such tokens are still sent to the provider verbatim.
func Dangling(text string, slotCount int) []int {
	var out []int
	for _, n := range References(text) {
		if n < 1 || n > slotCount {
			out = append(out, n)
		}
	}
	return out
}

func lastAt(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == '@' {
			return i
		}
	}
	return -1
}

func clamp(cursor, n int) int {
	if cursor < 0 {
		return 0
	}
	if cursor > n {
		return n
	}
	return cursor
}
