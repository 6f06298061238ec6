// Package naming derives short, collision-free, filesystem-safe identifiers
// for every artifact a job produces.
package naming

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

const (
	// MaxTitleLen is the maximum length of the sanitized title fragment.
	MaxTitleLen = 24
	// IDPrefixLen is the length of the source-ID prefix.
	IDPrefixLen = 8

	fallbackTitle = "video"
	fallbackID    = "vid"
)

// typographic punctuation mapped to filesystem-safe equivalents.
var punctReplacer = strings.NewReplacer(
	"«", "", "»", "", "“", "", "”", "", "’", "", "‘", "",
	"„", "", `"`, "", "'", "",
	":", "-", "/", "-", `\`, "-", "|", "-",
	"?", "", "*", "", "<", "", ">", "", " ", " ",
)

var (
	nonWordRe    = regexp.MustCompile(`[^\w\s-]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	unsafeIDRe   = regexp.MustCompile(`[^A-Za-z0-9_-]`)
)

// ShortID builds the stable base identifier for a job from an untrusted
// remote ID and title: "{idPrefix}_{titleToken}". The result contains only
// [A-Za-z0-9_-] and is at most IDPrefixLen+1+MaxTitleLen characters.
func ShortID(rawID, rawTitle string) string {
	// The remote ID is as untrusted as the title. After the filter the ID
	// is pure ASCII, so the prefix cut cannot split a rune.
	id := unsafeIDRe.ReplaceAllString(rawID, "")
	if id == "" {
		id = fallbackID
	}
	if len(id) > IDPrefixLen {
		id = id[:IDPrefixLen]
	}
	return id + "_" + SanitizeTitle(rawTitle)
}

// SanitizeTitle reduces an arbitrary title to an ASCII-safe token of at most
// MaxTitleLen characters. Empty input (or input that sanitizes to nothing)
// yields the literal "video".
func SanitizeTitle(title string) string {
	if title == "" {
		return fallbackTitle
	}
	title = strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(title)
	title = punctReplacer.Replace(title)
	title = stripCombining(title)
	title = nonWordRe.ReplaceAllString(title, "")
	title = whitespaceRe.ReplaceAllString(strings.TrimSpace(title), "_")
	if title == "" {
		return fallbackTitle
	}
	if len(title) > MaxTitleLen {
		title = title[:MaxTitleLen]
	}
	return title
}

// stripCombining decomposes accented characters and drops the combining
// marks, keeping the base letter when it is ASCII.
func stripCombining(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if r < 128 {
			b.WriteRune(r)
			continue
		}
		if d, ok := asciiDecomposition[r]; ok {
			b.WriteString(d)
		}
		// Non-decomposable non-ASCII runes are dropped; the word filter
		// would remove most of them anyway.
	}
	return b.String()
}

// asciiDecomposition covers the Latin-1 and common Latin Extended-A range.
// A full NFKD pass would pull in x/text; this table is the subset that
// actually occurs in video titles.
var asciiDecomposition = map[rune]string{
	'à': "a", 'á': "a", 'â': "a", 'ã': "a", 'ä': "a", 'å': "a", 'æ': "ae",
	'ç': "c", 'è': "e", 'é': "e", 'ê': "e", 'ë': "e",
	'ì': "i", 'í': "i", 'î': "i", 'ï': "i", 'ñ': "n",
	'ò': "o", 'ó': "o", 'ô': "o", 'õ': "o", 'ö': "o", 'ø': "o",
	'ù': "u", 'ú': "u", 'û': "u", 'ü': "u", 'ý': "y", 'ÿ': "y",
	'À': "A", 'Á': "A", 'Â': "A", 'Ã': "A", 'Ä': "A", 'Å': "A", 'Æ': "AE",
	'Ç': "C", 'È': "E", 'É': "E", 'Ê': "E", 'Ë': "E",
	'Ì': "I", 'Í': "I", 'Î': "I", 'Ï': "I", 'Ñ': "N",
	'Ò': "O", 'Ó': "O", 'Ô': "O", 'Õ': "O", 'Ö': "O", 'Ø': "O",
	'Ù': "U", 'Ú': "U", 'Û': "U", 'Ü': "U", 'Ý': "Y",
	'œ': "oe", 'Œ': "OE", 'ß': "ss",
}

// UniquePath returns dir/base+ext, probing for an unused name by appending
// _1, _2, ... before the extension. It never overwrites an existing file.
// Safe only under the single-process, single-job-per-prefix assumption.
func UniquePath(dir, base, ext string) string {
	candidate := filepath.Join(dir, base+ext)
	for i := 1; exists(candidate); i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, ext))
	}
	return candidate
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
