package worldinfo

type SkipReason string

const (
	SkipProbabilityFailed   SkipReason = "probability_failed"
	SkipDisabled            SkipReason = "disabled"
	SkipTrigger             SkipReason = "trigger_mismatch"
	SkipCharacterFilter     SkipReason = "character_filter"
	SkipDelayed             SkipReason = "delayed"
	SkipCooldown            SkipReason = "cooldown"
	SkipDelayUntilRecursion SkipReason = "delay_until_recursion"
	SkipRecursionLevel      SkipReason = "recursion_level"
	SkipExcludeRecursion    SkipReason = "exclude_recursion"
	SkipDontActivate        SkipReason = "dont_activate"
	SkipNoPrimaryKeys       SkipReason = "no_primary_keys"
	SkipNoMatch             SkipReason = "no_match"
	SkipGroupResolved       SkipReason = "group_resolved"
	SkipGroupSticky         SkipReason = "group_sticky_member"
	SkipGroupScore          SkipReason = "group_score"
	SkipGroupLost           SkipReason = "group_lost"
	SkipBudget              SkipReason = "budget_overflow"
)

type Skip struct {
	Hash   string     `json:"hash"`
	UID    int        `json:"uid"`
	BookID string     `json:"bookId"`
	Reason SkipReason `json:"reason"`
	Pass   int        `json:"pass"`
}

type BudgetTrace struct {
	Limit      int  `json:"limit"`
	Used       int  `json:"used"`
	Overflowed bool `json:"overflowed"`
}

// Debug is the observability trace of one scan. It is never persisted.
type Debug struct {
	Warnings    []string            `json:"warnings"`
	MatchedKeys map[string][]string `json:"matchedKeys"`
	Skips       []Skip              `json:"skips"`
	Budget      BudgetTrace         `json:"budget"`
	Passes      int                 `json:"passes"`
}

// NewDebug returns an empty trace with non-nil collections.
func NewDebug() Debug {
	return Debug{
		Warnings:    []string{},
		MatchedKeys: map[string][]string{},
		Skips:       []Skip{},
	}
}

func (d *Debug) skip(entry *PreparedEntry, reason SkipReason, pass int) {
	d.Skips = append(d.Skips, Skip{
		Hash:   entry.Hash,
		UID:    entry.UID,
		BookID: entry.BookID,
		Reason: reason,
		Pass:   pass,
	})
}

// Warn appends a warning to the trace.
func (d *Debug) Warn(message string) {
	d.Warnings = append(d.Warnings, message)
}
