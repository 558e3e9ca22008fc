// Package timed tracks sticky and cooldown windows across turns of a chat
// branch. Windows are keyed by entry hash and span [start, start+N]; a window
// expires once the current message index moves past its end.
package timed

import (
	"context"
	"fmt"

	"lorebind/internal/store"
	"lorebind/internal/worldinfo"
)

type Repository interface {
	ListTimedEffects(ctx context.Context, ownerID, chatID, branchID string) ([]store.TimedEffect, error)
	DeleteTimedEffects(ctx context.Context, ids []string) error
	UpsertTimedEffect(ctx context.Context, e store.TimedEffectInput) error
}

type LoadParams struct {
	OwnerID      string
	ChatID       string
	BranchID     string
	MessageIndex int
	// EntriesByHash resolves an expiring sticky effect to its entry so a
	// declared cooldown can take over.
	EntriesByHash map[string]*worldinfo.PreparedEntry
	DryRun        bool
}

type State struct {
	ActiveSticky   map[string]bool
	ActiveCooldown map[string]bool
	Removed        int
	HandedOff      int
}

func emptyState() State {
	return State{
		ActiveSticky:   map[string]bool{},
		ActiveCooldown: map[string]bool{},
	}
}

// Load reads the branch's effects, drops expired and stale ones, and returns
// the hashes that are currently sticky or cooling down. A dry run performs no
// I/O and reports nothing active.
func Load(ctx context.Context, repo Repository, p LoadParams) (State, error) {
	state := emptyState()
	if p.DryRun {
		return state, nil
	}

	effects, err := repo.ListTimedEffects(ctx, p.OwnerID, p.ChatID, p.BranchID)
	if err != nil {
		return State{}, fmt.Errorf("loading timed effects: %w", err)
	}

	var remove []string
	var handoffs []store.TimedEffectInput
	for _, effect := range effects {
		switch {
		case effect.EndMessageIndex < p.MessageIndex:
			remove = append(remove, effect.ID)
			if effect.EffectType != store.EffectSticky {
				continue
			}
			entry := p.EntriesByHash[effect.EntryHash]
			if entry == nil || entry.Cooldown == nil || *entry.Cooldown <= 0 {
				continue
			}
			handoffs = append(handoffs, store.TimedEffectInput{
				OwnerID:           p.OwnerID,
				ChatID:            p.ChatID,
				BranchID:          p.BranchID,
				EntryHash:         effect.EntryHash,
				EffectType:        store.EffectCooldown,
				StartMessageIndex: p.MessageIndex,
				EndMessageIndex:   p.MessageIndex + *entry.Cooldown,
				Protected:         true,
			})

		case !effect.Protected && effect.StartMessageIndex >= p.MessageIndex:
			// written for this message or a later one that was rewound
			remove = append(remove, effect.ID)

		case effect.EffectType == store.EffectSticky:
			state.ActiveSticky[effect.EntryHash] = true

		case effect.EffectType == store.EffectCooldown:
			state.ActiveCooldown[effect.EntryHash] = true
		}
	}

	if len(remove) > 0 {
		if err := repo.DeleteTimedEffects(ctx, remove); err != nil {
			return State{}, fmt.Errorf("deleting expired timed effects: %w", err)
		}
	}
	// Handoffs are written after the delete: an upsert onto an expired
	// cooldown row keeps that row's id, which is queued for removal.
	for _, in := range handoffs {
		if err := repo.UpsertTimedEffect(ctx, in); err != nil {
			return State{}, fmt.Errorf("handing sticky effect over to cooldown: %w", err)
		}
		state.ActiveCooldown[in.EntryHash] = true
		state.HandedOff++
	}
	state.Removed = len(remove)
	return state, nil
}

type ApplyParams struct {
	OwnerID      string
	ChatID       string
	BranchID     string
	MessageIndex int
	Activated    []*worldinfo.PreparedEntry
	State        State
	DryRun       bool
}

// Apply opens sticky and cooldown windows for freshly activated entries and
// returns how many windows it wrote. Entries whose window of a type is
// already open keep it.
func Apply(ctx context.Context, repo Repository, p ApplyParams) (int, error) {
	if p.DryRun {
		return 0, nil
	}

	written := 0
	for _, entry := range p.Activated {
		windows := []struct {
			kind   store.EffectType
			length *int
			active bool
		}{
			{store.EffectSticky, entry.Sticky, p.State.ActiveSticky[entry.Hash]},
			{store.EffectCooldown, entry.Cooldown, p.State.ActiveCooldown[entry.Hash]},
		}
		for _, w := range windows {
			if w.length == nil || *w.length <= 0 || w.active {
				continue
			}
			err := repo.UpsertTimedEffect(ctx, store.TimedEffectInput{
				OwnerID:           p.OwnerID,
				ChatID:            p.ChatID,
				BranchID:          p.BranchID,
				EntryHash:         entry.Hash,
				EffectType:        w.kind,
				StartMessageIndex: p.MessageIndex,
				EndMessageIndex:   p.MessageIndex + *w.length,
			})
			if err != nil {
				return written, fmt.Errorf("applying %s effect for entry %d: %w", w.kind, entry.UID, err)
			}
			written++
		}
	}
	return written, nil
}
