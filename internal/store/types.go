package store

import "time"

type Scope string

const (
	ScopeGlobal        Scope = "global"
	ScopeChat          Scope = "chat"
	ScopeEntityProfile Scope = "entity_profile"
	ScopePersona       Scope = "persona"
)

func (s Scope) Valid() bool {
	switch s {
	case ScopeGlobal, ScopeChat, ScopeEntityProfile, ScopePersona:
		return true
	}
	return false
}

type EffectType string

const (
	EffectSticky   EffectType = "sticky"
	EffectCooldown EffectType = "cooldown"
)

type BookInput struct {
	OwnerID     string
	Name        string
	Description string
	SourceHash  string
}

type Book struct {
	ID          string
	OwnerID     string
	Name        string
	Description string
	SourceHash  string
	EntryCount  int
	UpdatedAt   time.Time
}

// EntryRecord is a stored entry. Payload is the raw entry map; callers
// normalize it before use.
type EntryRecord struct {
	BookID     string
	UID        int
	Hash       string
	SourceFile string
	Payload    map[string]any
}

type BindingInput struct {
	OwnerID      string
	BookID       string
	Scope        Scope
	ScopeID      string
	DisplayOrder int
	Enabled      bool
	Role         string
}

type Binding struct {
	ID           string
	OwnerID      string
	BookID       string
	Scope        Scope
	ScopeID      string
	DisplayOrder int
	Enabled      bool
	Role         string
	CreatedAt    time.Time
}

type Chat struct {
	ID              string
	OwnerID         string
	PersonaID       string
	EntityProfileID string
}

type Branch struct {
	ID     string
	ChatID string
	Name   string
}

type TimedEffectInput struct {
	OwnerID           string
	ChatID            string
	BranchID          string
	EntryHash         string
	EffectType        EffectType
	StartMessageIndex int
	EndMessageIndex   int
	Protected         bool
}

type TimedEffect struct {
	ID                string
	OwnerID           string
	ChatID            string
	BranchID          string
	EntryHash         string
	EffectType        EffectType
	StartMessageIndex int
	EndMessageIndex   int
	Protected         bool
}
