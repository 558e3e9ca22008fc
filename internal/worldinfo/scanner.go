package worldinfo

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf16"
)

type ScanState int

const (
	StateInitial ScanState = iota
	StateRecursion
	StateMinActivations
)

func (s ScanState) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateRecursion:
		return "recursion"
	case StateMinActivations:
		return "min_activations"
	default:
		return fmt.Sprintf("ScanState(%d)", int(s))
	}
}

const maxScanIterations = 64

type ScanInput struct {
	Entries  []*PreparedEntry
	Settings Settings
	// History is ordered oldest first.
	History      []Message
	MessageIndex int
	ScanSeed     string
	Trigger      Trigger

	ActiveSticky   map[string]bool
	ActiveCooldown map[string]bool
	Character      CharacterContext

	// Roll returns a draw in [0,1) for a probability check. Nil uses a draw
	// derived from ScanSeed, which keeps scans reproducible.
	Roll func(entry *PreparedEntry, pass int) float64
}

type ScanResult struct {
	// Activated is in admission order.
	Activated []*PreparedEntry
	Debug     Debug
}

// Scan runs the activation state machine over the prepared entries. It never
// fails; pathological configurations stop at the iteration cap with a warning.
func Scan(in ScanInput) ScanResult {
	s := newScan(in)
	for {
		if s.pass >= maxScanIterations {
			s.debug.Warn(fmt.Sprintf("scan stopped after %d iterations in %s state", maxScanIterations, s.state))
			break
		}
		produced := s.runPass()
		s.pass++
		if !s.advance(produced) {
			break
		}
	}

	s.debug.Passes = s.pass
	s.debug.Budget = BudgetTrace{Limit: s.budgetLimit, Used: s.budgetUsed, Overflowed: s.overflowed}
	return ScanResult{Activated: s.activated, Debug: s.debug}
}

// BudgetLimit is the token budget for world info under settings.
func BudgetLimit(settings Settings) int {
	limit := int(math.Round(float64(settings.BudgetPercent) * float64(settings.ContextWindowTokens) / 100))
	if limit < 1 {
		limit = 1
	}
	if settings.BudgetCapTokens > 0 && limit > settings.BudgetCapTokens {
		limit = settings.BudgetCapTokens
	}
	return limit
}

// EstimateTokens approximates the token cost of content at four UTF-16 code
// units per token, never less than one.
func EstimateTokens(content string) int {
	units := 0
	for _, r := range content {
		if n := utf16.RuneLen(r); n > 0 {
			units += n
		} else {
			units++
		}
	}
	tokens := (units + 3) / 4
	if tokens < 1 {
		return 1
	}
	return tokens
}

// IsEntryDelayed reports whether the entry's delay still gates it at messageIndex.
func IsEntryDelayed(entry Entry, messageIndex int) bool {
	return entry.Delay != nil && *entry.Delay > 0 && messageIndex < *entry.Delay
}

// scan is the bookkeeping owned by one Scan call.
type scan struct {
	in       ScanInput
	settings Settings
	trigger  Trigger
	matcher  *Matcher
	debug    Debug

	state          ScanState
	pass           int
	depth          int
	recursionLevel int

	activated      []*PreparedEntry
	isActivated    map[*PreparedEntry]bool
	failedRoll     map[*PreparedEntry]bool
	lastSkip       map[*PreparedEntry]SkipReason
	resolvedGroups map[string]bool
	buffer         []string
	historyText    map[int]string

	budgetLimit int
	budgetUsed  int
	overflowed  bool
}

func newScan(in ScanInput) *scan {
	trigger := in.Trigger
	if trigger == "" {
		trigger = TriggerNormal
	}
	return &scan{
		in:             in,
		settings:       in.Settings,
		trigger:        trigger,
		matcher:        NewMatcher(),
		debug:          NewDebug(),
		state:          StateInitial,
		depth:          in.Settings.ScanDepth,
		isActivated:    make(map[*PreparedEntry]bool),
		failedRoll:     make(map[*PreparedEntry]bool),
		lastSkip:       make(map[*PreparedEntry]SkipReason),
		resolvedGroups: make(map[string]bool),
		historyText:    make(map[int]string),
		budgetLimit:    BudgetLimit(in.Settings),
	}
}

// advance picks the next state. It reports false when the scan is done.
func (s *scan) advance(produced bool) bool {
	if s.settings.Recursive && produced &&
		(s.settings.MaxRecursionSteps <= 0 || s.recursionLevel < s.settings.MaxRecursionSteps) {
		s.recursionLevel++
		s.state = StateRecursion
		return true
	}

	if len(s.activated) < s.settings.MinActivations &&
		(s.settings.MinDepthMax <= 0 || s.depth < s.settings.MinDepthMax) &&
		s.depth < len(s.in.History) {
		s.depth++
		s.state = StateMinActivations
		return true
	}
	return false
}

// runPass evaluates every entry once and reports whether it admitted content
// that may drive recursion.
func (s *scan) runPass() bool {
	var candidates []GroupCandidate
	for _, entry := range s.in.Entries {
		if s.isActivated[entry] || s.failedRoll[entry] {
			continue
		}
		sticky := s.in.ActiveSticky[entry.Hash]
		if reason, skipped := s.filter(entry, sticky); skipped {
			s.skip(entry, reason)
			continue
		}
		score, reason, matched := s.evaluate(entry, sticky)
		if !matched {
			s.skip(entry, reason)
			continue
		}
		candidates = append(candidates, GroupCandidate{
			Entry:          entry,
			Score:          score,
			StickyActive:   sticky,
			CooldownActive: s.in.ActiveCooldown[entry.Hash],
			Delayed:        IsEntryDelayed(entry.Entry, s.in.MessageIndex),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.StickyActive != b.StickyActive {
			return a.StickyActive
		}
		if a.Entry.Order != b.Entry.Order {
			return a.Entry.Order > b.Entry.Order
		}
		return a.Entry.UID < b.Entry.UID
	})

	groups := ResolveGroups(candidates, s.resolvedGroups, GroupOptions{
		ScanSeed:        s.in.ScanSeed,
		PassIndex:       s.pass,
		UseGroupScoring: s.settings.UseGroupScoring,
	})
	for _, name := range groups.Resolved {
		s.resolvedGroups[name] = true
	}
	for _, excluded := range groups.Excluded {
		s.skip(excluded.Candidate.Entry, excluded.Reason)
	}

	produced := false
	for _, candidate := range groups.Winners {
		entry := candidate.Entry
		if entry.UseProbability && entry.Probability < 100 && !candidate.StickyActive {
			if s.roll(entry)*100 >= float64(entry.Probability) {
				s.failedRoll[entry] = true
				s.skip(entry, SkipProbabilityFailed)
				continue
			}
		}

		tokens := EstimateTokens(entry.Content)
		if !entry.IgnoreBudget && s.budgetUsed+tokens > s.budgetLimit {
			s.overflowed = true
			s.skip(entry, SkipBudget)
			continue
		}

		s.activated = append(s.activated, entry)
		s.isActivated[entry] = true
		s.budgetUsed += tokens
		if !entry.PreventRecursion {
			produced = true
			s.buffer = append(s.buffer, entry.Content)
		}
	}
	return produced
}

func (s *scan) filter(entry *PreparedEntry, sticky bool) (SkipReason, bool) {
	switch {
	case entry.Disable:
		return SkipDisabled, true
	case !s.triggerAllowed(entry):
		return SkipTrigger, true
	case !s.characterAllowed(entry):
		return SkipCharacterFilter, true
	}
	if sticky {
		return "", false
	}
	switch {
	case IsEntryDelayed(entry.Entry, s.in.MessageIndex):
		return SkipDelayed, true
	case s.in.ActiveCooldown[entry.Hash]:
		return SkipCooldown, true
	case s.state == StateInitial && entry.DelayUntilRecursion > 0:
		return SkipDelayUntilRecursion, true
	case s.state == StateRecursion && entry.DelayUntilRecursion > s.recursionLevel:
		return SkipRecursionLevel, true
	case s.state == StateRecursion && entry.ExcludeRecursion:
		return SkipExcludeRecursion, true
	}
	return "", false
}

func (s *scan) evaluate(entry *PreparedEntry, sticky bool) (int, SkipReason, bool) {
	if entry.Decorators.Activate {
		return s.score(entry), "", true
	}
	if entry.Decorators.DontActivate {
		return 0, SkipDontActivate, false
	}
	if entry.Constant || sticky {
		return s.score(entry), "", true
	}
	if !hasKeys(entry.Key) {
		return 0, SkipNoPrimaryKeys, false
	}

	result := s.matcher.Match(entry, s.scanText(entry), s.settings)
	if !result.Matched {
		return 0, SkipNoMatch, false
	}
	keys := append(append([]string{}, result.PrimaryMatched...), result.SecondaryMatched...)
	s.debug.MatchedKeys[entry.Hash] = keys
	return result.Score(), "", true
}

// score is the matched-key count for entries activated without matching, so
// they still rank fairly under group scoring.
func (s *scan) score(entry *PreparedEntry) int {
	if !hasKeys(entry.Key) {
		return 0
	}
	return s.matcher.Match(entry, s.scanText(entry), s.settings).Score()
}

func (s *scan) triggerAllowed(entry *PreparedEntry) bool {
	if len(entry.Triggers) == 0 {
		return true
	}
	for _, trigger := range entry.Triggers {
		if trigger == s.trigger {
			return true
		}
	}
	return false
}

func (s *scan) characterAllowed(entry *PreparedEntry) bool {
	filter := entry.CharacterFilter
	if len(filter.Names) == 0 && len(filter.Tags) == 0 {
		return true
	}
	member := containsFold(filter.Names, s.in.Character.Name)
	for _, tag := range s.in.Character.Tags {
		if containsFold(filter.Tags, tag) {
			member = true
			break
		}
	}
	if filter.IsExclude {
		return !member
	}
	return member
}

func (s *scan) roll(entry *PreparedEntry) float64 {
	if s.in.Roll != nil {
		return s.in.Roll(entry, s.pass)
	}
	return UnitHash(fmt.Sprintf("%s:probability:%d:%s", s.in.ScanSeed, s.pass, entry.Hash))
}

func (s *scan) skip(entry *PreparedEntry, reason SkipReason) {
	if s.lastSkip[entry] == reason {
		return
	}
	s.lastSkip[entry] = reason
	s.debug.skip(entry, reason, s.pass)
}

func (s *scan) scanText(entry *PreparedEntry) string {
	depth := s.depth
	if entry.ScanDepth != nil {
		depth = *entry.ScanDepth
	}
	parts := []string{s.history(max(depth, 0))}

	character := s.in.Character
	sources := []struct {
		enabled bool
		text    string
	}{
		{entry.MatchPersonaDescription, character.PersonaDescription},
		{entry.MatchCharacterDescription, character.CharacterDescription},
		{entry.MatchCharacterPersonality, character.CharacterPersonality},
		{entry.MatchCharacterDepthPrompt, character.CharacterDepthPrompt},
		{entry.MatchScenario, character.Scenario},
		{entry.MatchCreatorNotes, character.CreatorNotes},
	}
	for _, source := range sources {
		if source.enabled && source.text != "" {
			parts = append(parts, source.text)
		}
	}

	if s.state != StateMinActivations {
		parts = append(parts, s.buffer...)
	}
	return strings.Join(parts, "\n")
}

// history joins the depth most recent messages, newest first.
func (s *scan) history(depth int) string {
	if text, ok := s.historyText[depth]; ok {
		return text
	}
	messages := s.in.History
	n := min(depth, len(messages))
	lines := make([]string, 0, n)
	for i := len(messages) - 1; i >= len(messages)-n; i-- {
		lines = append(lines, messages[i].Content)
	}
	text := strings.Join(lines, "\n")
	s.historyText[depth] = text
	return text
}

func hasKeys(keys []string) bool {
	for _, key := range keys {
		if strings.TrimSpace(key) != "" {
			return true
		}
	}
	return false
}

func containsFold(list []string, value string) bool {
	if value == "" {
		return false
	}
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), strings.TrimSpace(value)) {
			return true
		}
	}
	return false
}
