package chunker

import (
	"sort"
	"strings"
	"unicode"
)

// latinProfiles maps a language code to distinctive function words. The
// detector counts profile hits among the input tokens; the profile with
// the most hits wins. Crude but deterministic, dependency-free and good
// enough for routing and diagnostics.
var latinProfiles = map[string][]string{
	"en": {"the", "and", "of", "to", "in", "is", "that", "with", "for", "was"},
	"de": {"der", "die", "das", "und", "ist", "nicht", "mit", "ein", "eine", "für"},
	"fr": {"le", "la", "les", "et", "est", "une", "dans", "que", "pour", "des"},
	"es": {"el", "la", "los", "las", "es", "una", "que", "por", "para", "con"},
	"it": {"il", "la", "che", "di", "è", "una", "per", "non", "sono", "con"},
	"pt": {"o", "a", "os", "as", "que", "uma", "não", "para", "com", "mais"},
	"nl": {"de", "het", "een", "en", "van", "niet", "met", "voor", "zijn", "dat"},
}

// DetectLanguage returns the dominant language code of text, or "und"
// when there is not enough evidence. Non-Latin scripts are decided by
// character counts; Latin-script languages by stopword profiles.
func DetectLanguage(text string) string {
	var latin, cyrillic, han, kana, hangul, arabic, greek, hebrew int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Latin, r):
			latin++
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		case unicode.Is(unicode.Han, r):
			han++
		case unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
			kana++
		case unicode.Is(unicode.Hangul, r):
			hangul++
		case unicode.Is(unicode.Arabic, r):
			arabic++
		case unicode.Is(unicode.Greek, r):
			greek++
		case unicode.Is(unicode.Hebrew, r):
			hebrew++
		}
	}

	best, bestCount := "und", 0
	for lang, count := range map[string]int{
		"ru": cyrillic, "ja": kana, "ko": hangul,
		"ar": arabic, "el": greek, "he": hebrew,
	} {
		if count > bestCount || (count == bestCount && count > 0 && lang < best) {
			best, bestCount = lang, count
		}
	}
	// Kana decides Japanese even with many Han characters; otherwise a
	// Han majority means Chinese.
	if kana == 0 && han > bestCount && han > latin {
		best, bestCount = "zh", han
	}
	if bestCount > latin {
		return best
	}
	if latin == 0 {
		return "und"
	}
	return detectLatinLanguage(text)
}

// detectLatinLanguage scores Latin-script stopword profiles.
func detectLatinLanguage(text string) string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(tokens) == 0 {
		return "und"
	}

	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}

	langs := make([]string, 0, len(latinProfiles))
	for lang := range latinProfiles {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	best, bestScore := "und", 0
	for _, lang := range langs {
		score := 0
		for _, w := range latinProfiles[lang] {
			score += counts[w]
		}
		if score > bestScore {
			best, bestScore = lang, score
		}
	}
	if bestScore == 0 {
		return "und"
	}
	return best
}
