// Package worldinfo decides which lore entries fire for a conversation turn and
// where their content lands in the prompt. Everything here is pure: callers hand in
// entries, settings and history, and get back activated entries, prompt channels
// and a debug trace.
package worldinfo

type SelectiveLogic int

const (
	LogicAndAny SelectiveLogic = iota
	LogicNotAll
	LogicNotAny
	LogicAndAll
)

type Position int

const (
	PositionBefore Position = iota
	PositionAfter
	PositionANTop
	PositionANBottom
	PositionDepth
	PositionEMTop
	PositionEMBottom
	PositionOutlet
)

type Role int

const (
	RoleSystem Role = iota
	RoleUser
	RoleAssistant
)

type Trigger string

const (
	TriggerNormal      Trigger = "normal"
	TriggerContinue    Trigger = "continue"
	TriggerImpersonate Trigger = "impersonate"
	TriggerSwipe       Trigger = "swipe"
	TriggerRegenerate  Trigger = "regenerate"
	TriggerQuiet       Trigger = "quiet"
)

// CharacterStrategy controls how entity-profile and global bindings are merged.
type CharacterStrategy int

const (
	StrategyInterleave CharacterStrategy = iota
	StrategyEntityFirst
	StrategyGlobalFirst
)

type CharacterFilter struct {
	IsExclude bool     `json:"isExclude"`
	Names     []string `json:"names"`
	Tags      []string `json:"tags"`
}

// Entry is one lore fact in its strict, normalized shape. JSON names match the
// raw payload keys accepted by NormalizeEntry.
type Entry struct {
	UID          int      `json:"uid"`
	Key          []string `json:"key"`
	KeySecondary []string `json:"keysecondary"`
	Comment      string   `json:"comment"`
	Content      string   `json:"content"`

	Constant       bool           `json:"constant"`
	Selective      bool           `json:"selective"`
	SelectiveLogic SelectiveLogic `json:"selectiveLogic"`
	Order          int            `json:"order"`
	Position       Position       `json:"position"`
	Depth          int            `json:"depth"`
	Role           Role           `json:"role"`
	OutletName     string         `json:"outletName"`

	Probability    int  `json:"probability"`
	UseProbability bool `json:"useProbability"`
	Disable        bool `json:"disable"`
	IgnoreBudget   bool `json:"ignoreBudget"`

	ExcludeRecursion    bool `json:"excludeRecursion"`
	PreventRecursion    bool `json:"preventRecursion"`
	DelayUntilRecursion int  `json:"delayUntilRecursion"`

	Sticky   *int `json:"sticky"`
	Cooldown *int `json:"cooldown"`
	Delay    *int `json:"delay"`

	Group         string `json:"group"`
	GroupOverride bool   `json:"groupOverride"`
	GroupWeight   int    `json:"groupWeight"`

	ScanDepth       *int  `json:"scanDepth"`
	CaseSensitive   *bool `json:"caseSensitive"`
	MatchWholeWords *bool `json:"matchWholeWords"`
	UseGroupScoring *bool `json:"useGroupScoring"`

	Triggers        []Trigger       `json:"triggers"`
	CharacterFilter CharacterFilter `json:"characterFilter"`

	MatchPersonaDescription   bool `json:"matchPersonaDescription"`
	MatchCharacterDescription bool `json:"matchCharacterDescription"`
	MatchCharacterPersonality bool `json:"matchCharacterPersonality"`
	MatchCharacterDepthPrompt bool `json:"matchCharacterDepthPrompt"`
	MatchScenario             bool `json:"matchScenario"`
	MatchCreatorNotes         bool `json:"matchCreatorNotes"`

	// DisplayIndex only orders entries in editors; it never affects activation.
	DisplayIndex int `json:"displayIndex"`
}

type Decorators struct {
	Activate     bool `json:"activate"`
	DontActivate bool `json:"dontActivate"`
}

// PreparedEntry is an Entry bound to its book, with decorators stripped from the
// content and a stable identity hash. It is not mutated once prepared.
type PreparedEntry struct {
	Entry
	BookID     string     `json:"bookId"`
	BookName   string     `json:"bookName"`
	Hash       string     `json:"hash"`
	Decorators Decorators `json:"decorators"`
}

type Settings struct {
	ScanDepth           int               `json:"scanDepth"`
	MinActivations      int               `json:"minActivations"`
	MinDepthMax         int               `json:"minDepthMax"`
	BudgetPercent       int               `json:"budgetPercent"`
	BudgetCapTokens     int               `json:"budgetCapTokens"`
	ContextWindowTokens int               `json:"contextWindowTokens"`
	IncludeNames        bool              `json:"includeNames"`
	Recursive           bool              `json:"recursive"`
	CaseSensitive       bool              `json:"caseSensitive"`
	MatchWholeWords     bool              `json:"matchWholeWords"`
	UseGroupScoring     bool              `json:"useGroupScoring"`
	CharacterStrategy   CharacterStrategy `json:"characterStrategy"`
	MaxRecursionSteps   int               `json:"maxRecursionSteps"`
}

// SetMinActivations sets the minimum activation count and disables the recursion
// step cap, since the two are mutually exclusive.
func (s *Settings) SetMinActivations(n int) {
	if n < 0 {
		n = 0
	}
	s.MinActivations = n
	if n > 0 {
		s.MaxRecursionSteps = 0
	}
}

func (s *Settings) SetMaxRecursionSteps(n int) {
	if n < 0 {
		n = 0
	}
	s.MaxRecursionSteps = n
	if n > 0 {
		s.MinActivations = 0
	}
}

func DefaultSettings() Settings {
	return Settings{
		ScanDepth:           2,
		BudgetPercent:       25,
		ContextWindowTokens: 8192,
		Recursive:           true,
		CharacterStrategy:   StrategyEntityFirst,
	}
}

type Message struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// CharacterContext holds the non-history text an entry may opt into matching
// against, plus the identity used by character filters.
type CharacterContext struct {
	Name                 string   `json:"name,omitempty"`
	Tags                 []string `json:"tags,omitempty"`
	PersonaDescription   string   `json:"personaDescription,omitempty"`
	CharacterDescription string   `json:"characterDescription,omitempty"`
	CharacterPersonality string   `json:"characterPersonality,omitempty"`
	CharacterDepthPrompt string   `json:"characterDepthPrompt,omitempty"`
	Scenario             string   `json:"scenario,omitempty"`
	CreatorNotes         string   `json:"creatorNotes,omitempty"`
}
