package worldinfo

import (
	"regexp"
	"strings"
	"unicode"
)

type MatchResult struct {
	Matched          bool
	PrimaryMatched   []string
	SecondaryMatched []string
}

// Score is the matched-key count used by inclusion-group scoring.
func (r MatchResult) Score() int {
	return len(r.PrimaryMatched) + len(r.SecondaryMatched)
}

// Matcher evaluates entry keys against scan text. It caches compiled regex keys,
// including failed compilations, so one Matcher should live no longer than a scan.
type Matcher struct {
	regexes map[string]*regexp.Regexp
}

func NewMatcher() *Matcher {
	return &Matcher{regexes: make(map[string]*regexp.Regexp)}
}

// MatchEntryAgainstText evaluates one entry with a throwaway Matcher.
func MatchEntryAgainstText(entry *PreparedEntry, text string, settings Settings) MatchResult {
	return NewMatcher().Match(entry, text, settings)
}

func (m *Matcher) Match(entry *PreparedEntry, text string, settings Settings) MatchResult {
	caseSensitive := settings.CaseSensitive
	if entry.CaseSensitive != nil {
		caseSensitive = *entry.CaseSensitive
	}
	wholeWords := settings.MatchWholeWords
	if entry.MatchWholeWords != nil {
		wholeWords = *entry.MatchWholeWords
	}

	haystack := newHaystack(text)
	result := MatchResult{}
	for _, key := range entry.Key {
		if m.matchKey(key, haystack, caseSensitive, wholeWords) {
			result.PrimaryMatched = append(result.PrimaryMatched, key)
		}
	}
	if len(result.PrimaryMatched) == 0 {
		return result
	}

	secondaryTotal := 0
	for _, key := range entry.KeySecondary {
		if strings.TrimSpace(key) == "" {
			continue
		}
		secondaryTotal++
		if m.matchKey(key, haystack, caseSensitive, wholeWords) {
			result.SecondaryMatched = append(result.SecondaryMatched, key)
		}
	}

	if !entry.Selective || secondaryTotal == 0 {
		result.Matched = true
		return result
	}

	matched := len(result.SecondaryMatched)
	switch entry.SelectiveLogic {
	case LogicAndAny:
		result.Matched = matched > 0
	case LogicNotAll:
		result.Matched = matched < secondaryTotal
	case LogicNotAny:
		result.Matched = matched == 0
	case LogicAndAll:
		result.Matched = matched == secondaryTotal
	}
	return result
}

func (m *Matcher) matchKey(key string, haystack *haystack, caseSensitive, wholeWords bool) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}

	if literal, ok := parseRegexLiteral(key); ok {
		re := m.compile(key, literal)
		return re != nil && re.MatchString(haystack.raw)
	}

	text := haystack.raw
	needle := key
	if !caseSensitive {
		text = haystack.lowered()
		needle = strings.ToLower(key)
	}

	if !wholeWords || strings.IndexFunc(needle, unicode.IsSpace) >= 0 {
		return strings.Contains(text, needle)
	}
	return containsWholeWord(text, needle)
}

func (m *Matcher) compile(key string, literal regexLiteral) *regexp.Regexp {
	if re, ok := m.regexes[key]; ok {
		return re
	}
	re, err := literal.compile()
	if err != nil {
		re = nil
	}
	m.regexes[key] = re
	return re
}

// CompileKey returns the compile error of a /pattern/flags key. Plain keys
// return nil.
func CompileKey(key string) error {
	literal, ok := parseRegexLiteral(strings.TrimSpace(key))
	if !ok {
		return nil
	}
	_, err := literal.compile()
	return err
}

type haystack struct {
	raw   string
	lower string
	done  bool
}

func newHaystack(text string) *haystack {
	return &haystack{raw: text}
}

func (h *haystack) lowered() string {
	if !h.done {
		h.lower = strings.ToLower(h.raw)
		h.done = true
	}
	return h.lower
}

type regexLiteral struct {
	body  string
	flags string
}

func parseRegexLiteral(key string) (regexLiteral, bool) {
	if len(key) < 3 || key[0] != '/' {
		return regexLiteral{}, false
	}
	end := strings.LastIndexByte(key, '/')
	if end <= 1 {
		return regexLiteral{}, false
	}
	flags := key[end+1:]
	for _, flag := range flags {
		if !strings.ContainsRune("gimsuy", flag) {
			return regexLiteral{}, false
		}
	}
	return regexLiteral{body: key[1:end], flags: flags}, true
}

func (l regexLiteral) compile() (*regexp.Regexp, error) {
	var goFlags strings.Builder
	for _, flag := range "ims" {
		if strings.ContainsRune(l.flags, flag) {
			goFlags.WriteRune(flag)
		}
	}
	pattern := l.body
	if goFlags.Len() > 0 {
		pattern = "(?" + goFlags.String() + ")" + pattern
	}
	return regexp.Compile(pattern)
}

func containsWholeWord(text, needle string) bool {
	offset := 0
	for {
		idx := strings.Index(text[offset:], needle)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(needle)
		if (start == 0 || !isWordByte(text[start-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		offset = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
