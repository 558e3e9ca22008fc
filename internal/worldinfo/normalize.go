package worldinfo

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var triggerAliases = map[string]Trigger{
	"normal":              TriggerNormal,
	"generate":            TriggerNormal,
	"continue":            TriggerContinue,
	"continue_generation": TriggerContinue,
	"impersonate":         TriggerImpersonate,
	"swipe":               TriggerSwipe,
	"regenerate":          TriggerRegenerate,
	"quiet":               TriggerQuiet,
}

// NormalizeTrigger maps a raw trigger name, including legacy aliases, onto a
// Trigger. Unknown names report false.
func NormalizeTrigger(raw string) (Trigger, bool) {
	trigger, ok := triggerAliases[strings.ToLower(strings.TrimSpace(raw))]
	return trigger, ok
}

// NormalizeEntry converts a loosely-typed entry payload (imported JSON, YAML
// frontmatter, a stored row) into an Entry. It never fails: unusable values fall
// back to defaults and numeric fields are clamped into range.
func NormalizeEntry(raw map[string]any) Entry {
	e := Entry{
		Key:            []string{},
		KeySecondary:   []string{},
		Selective:      true,
		Order:          100,
		Depth:          4,
		Probability:    100,
		UseProbability: true,
		GroupWeight:    100,
		Triggers:       []Trigger{},
		CharacterFilter: CharacterFilter{
			Names: []string{},
			Tags:  []string{},
		},
	}
	if raw == nil {
		return e
	}

	e.UID = nonNegativeField(raw, 0, "uid")
	e.Key = keyList(lookup(raw, "key", "keys"))
	e.KeySecondary = keyList(lookup(raw, "keysecondary", "secondaryKeys", "keySecondary"))
	e.Comment = stringValue(lookup(raw, "comment"))
	e.Content = stringValue(lookup(raw, "content"))

	e.Constant = boolField(raw, false, "constant")
	e.Selective = boolField(raw, true, "selective")
	e.SelectiveLogic = SelectiveLogic(clamp(intField(raw, 0, "selectiveLogic"), 0, 3))
	e.Order = intField(raw, 100, "order")
	if position := intField(raw, 0, "position"); position >= int(PositionBefore) && position <= int(PositionOutlet) {
		e.Position = Position(position)
	}
	e.Depth = nonNegativeField(raw, 4, "depth")
	if role := intField(raw, 0, "role"); role >= int(RoleSystem) && role <= int(RoleAssistant) {
		e.Role = Role(role)
	}
	e.OutletName = strings.TrimSpace(stringValue(lookup(raw, "outletName")))

	e.Probability = clamp(intField(raw, 100, "probability"), 0, 100)
	e.UseProbability = boolField(raw, true, "useProbability")
	e.Disable = boolField(raw, false, "disable")
	e.IgnoreBudget = boolField(raw, false, "ignoreBudget")

	e.ExcludeRecursion = boolField(raw, false, "excludeRecursion")
	e.PreventRecursion = boolField(raw, false, "preventRecursion")
	e.DelayUntilRecursion = recursionLevel(lookup(raw, "delayUntilRecursion"))

	e.Sticky = optionalNonNegative(lookup(raw, "sticky"))
	e.Cooldown = optionalNonNegative(lookup(raw, "cooldown"))
	e.Delay = optionalNonNegative(lookup(raw, "delay"))

	e.Group = strings.TrimSpace(stringValue(lookup(raw, "group")))
	e.GroupOverride = boolField(raw, false, "groupOverride")
	e.GroupWeight = nonNegativeField(raw, 100, "groupWeight")

	e.ScanDepth = optionalNonNegative(lookup(raw, "scanDepth"))
	e.CaseSensitive = optionalBool(lookup(raw, "caseSensitive"))
	e.MatchWholeWords = optionalBool(lookup(raw, "matchWholeWords"))
	e.UseGroupScoring = optionalBool(lookup(raw, "useGroupScoring"))

	e.Triggers = triggerList(lookup(raw, "triggers"))
	if filter, ok := lookup(raw, "characterFilter").(map[string]any); ok {
		e.CharacterFilter.IsExclude = boolField(filter, false, "isExclude")
		e.CharacterFilter.Names = stringList(lookup(filter, "names"))
		e.CharacterFilter.Tags = stringList(lookup(filter, "tags"))
	}

	e.MatchPersonaDescription = boolField(raw, false, "matchPersonaDescription")
	e.MatchCharacterDescription = boolField(raw, false, "matchCharacterDescription")
	e.MatchCharacterPersonality = boolField(raw, false, "matchCharacterPersonality")
	e.MatchCharacterDepthPrompt = boolField(raw, false, "matchCharacterDepthPrompt")
	e.MatchScenario = boolField(raw, false, "matchScenario")
	e.MatchCreatorNotes = boolField(raw, false, "matchCreatorNotes")

	e.DisplayIndex = nonNegativeField(raw, 0, "displayIndex")
	return e
}

// NormalizeSettings converts a loosely-typed settings payload into Settings.
// minActivations and maxRecursionSteps are mutually exclusive; when both are set
// minActivations wins.
func NormalizeSettings(raw map[string]any) Settings {
	s := DefaultSettings()
	if raw == nil {
		return s
	}

	s.ScanDepth = nonNegativeField(raw, s.ScanDepth, "scanDepth", "scan_depth")
	s.MinActivations = nonNegativeField(raw, 0, "minActivations", "min_activations")
	s.MinDepthMax = nonNegativeField(raw, 0, "minDepthMax", "minActivationsDepthMax", "min_depth_max")
	s.BudgetPercent = clamp(intField(raw, s.BudgetPercent, "budgetPercent", "budget_percent"), 1, 100)
	s.BudgetCapTokens = nonNegativeField(raw, 0, "budgetCapTokens", "budget_cap_tokens")
	s.ContextWindowTokens = nonNegativeField(raw, s.ContextWindowTokens, "contextWindowTokens", "context_window_tokens")
	s.IncludeNames = boolField(raw, false, "includeNames", "include_names")
	s.Recursive = boolField(raw, true, "recursive")
	s.CaseSensitive = boolField(raw, false, "caseSensitive", "case_sensitive")
	s.MatchWholeWords = boolField(raw, false, "matchWholeWords", "match_whole_words")
	s.UseGroupScoring = boolField(raw, false, "useGroupScoring", "use_group_scoring")
	strategy := intField(raw, int(s.CharacterStrategy), "characterStrategy", "insertionStrategy", "character_strategy")
	s.CharacterStrategy = CharacterStrategy(clamp(strategy, 0, 2))
	s.MaxRecursionSteps = nonNegativeField(raw, 0, "maxRecursionSteps", "max_recursion_steps")

	if s.MinActivations > 0 {
		s.MaxRecursionSteps = 0
	}
	return s
}

// ToMap renders the entry as a raw payload that NormalizeEntry maps back onto
// the same Entry.
func (e Entry) ToMap() map[string]any {
	return toMap(e)
}

func (s Settings) ToMap() map[string]any {
	return toMap(s)
}

func toMap(value any) map[string]any {
	data, err := json.Marshal(value)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func lookup(raw map[string]any, names ...string) any {
	for _, name := range names {
		if value, ok := raw[name]; ok && value != nil {
			return value
		}
	}
	return nil
}

func intField(raw map[string]any, def int, names ...string) int {
	if n, ok := numberValue(lookup(raw, names...)); ok {
		return int(math.Floor(n))
	}
	return def
}

func nonNegativeField(raw map[string]any, def int, names ...string) int {
	n := intField(raw, def, names...)
	if n < 0 {
		return 0
	}
	return n
}

func boolField(raw map[string]any, def bool, names ...string) bool {
	if b, ok := boolValue(lookup(raw, names...)); ok {
		return b
	}
	return def
}

func optionalNonNegative(value any) *int {
	n, ok := numberValue(value)
	if !ok {
		return nil
	}
	floored := int(math.Floor(n))
	if floored < 0 {
		floored = 0
	}
	return &floored
}

func optionalBool(value any) *bool {
	b, ok := boolValue(value)
	if !ok {
		return nil
	}
	return &b
}

func recursionLevel(value any) int {
	if b, ok := value.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	n, ok := numberValue(value)
	if !ok || n < 0 {
		return 0
	}
	return int(math.Floor(n))
}

func numberValue(value any) (float64, bool) {
	var n float64
	switch v := value.(type) {
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int32:
		n = float64(v)
	case int64:
		n = float64(v)
	case uint64:
		n = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func boolValue(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, false
		}
		return b, true
	}
	if n, ok := numberValue(value); ok {
		return n != 0, true
	}
	return false, false
}

func stringValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	if n, ok := numberValue(value); ok {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return ""
}

func stringList(value any) []string {
	out := []string{}
	switch v := value.(type) {
	case []string:
		for _, item := range v {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	case []any:
		for _, item := range v {
			if s := strings.TrimSpace(stringValue(item)); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// keyList is stringList, except a single string that is itself a regex literal
// is kept whole instead of being split on commas.
func keyList(value any) []string {
	if s, ok := value.(string); ok {
		if _, isRegex := parseRegexLiteral(strings.TrimSpace(s)); isRegex {
			return []string{strings.TrimSpace(s)}
		}
	}
	return stringList(value)
}

func triggerList(value any) []Trigger {
	out := []Trigger{}
	seen := make(map[Trigger]struct{})
	for _, name := range stringList(value) {
		trigger, ok := NormalizeTrigger(name)
		if !ok {
			continue
		}
		if _, dup := seen[trigger]; dup {
			continue
		}
		seen[trigger] = struct{}{}
		out = append(out, trigger)
	}
	return out
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
