// Package binding decides which books apply to a chat turn.
package binding

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"lorebind/internal/store"
	"lorebind/internal/worldinfo"
)

type Lister interface {
	ListBindings(ctx context.Context, ownerID string, scope store.Scope, scopeID string) ([]store.Binding, error)
}

// Scope identifies the ids a turn is bound through. Empty ids skip their
// scope; global bindings are keyed by the owner alone.
type Scope struct {
	OwnerID         string
	ChatID          string
	PersonaID       string
	EntityProfileID string
}

type Resolver struct {
	bindings Lister
}

func NewResolver(bindings Lister) *Resolver {
	return &Resolver{bindings: bindings}
}

// ResolveBooks returns the ordered, de-duplicated book ids for a turn:
// chat bindings, then persona bindings, then entity-profile and global
// bindings merged per strategy.
func (r *Resolver) ResolveBooks(ctx context.Context, s Scope, strategy worldinfo.CharacterStrategy) ([]string, error) {
	var chat, persona, entity, global []store.Binding

	g, gctx := errgroup.WithContext(ctx)
	load := func(dst *[]store.Binding, scope store.Scope, id string) {
		if id == "" && scope != store.ScopeGlobal {
			return
		}
		g.Go(func() error {
			list, err := r.bindings.ListBindings(gctx, s.OwnerID, scope, id)
			if err != nil {
				return fmt.Errorf("listing %s bindings: %w", scope, err)
			}
			*dst = enabled(list)
			return nil
		})
	}
	load(&chat, store.ScopeChat, s.ChatID)
	load(&persona, store.ScopePersona, s.PersonaID)
	load(&entity, store.ScopeEntityProfile, s.EntityProfileID)
	load(&global, store.ScopeGlobal, "")
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ordered := append(append(chat, persona...), Merge(entity, global, strategy)...)
	seen := make(map[string]bool, len(ordered))
	books := make([]string, 0, len(ordered))
	for _, b := range ordered {
		if seen[b.BookID] {
			continue
		}
		seen[b.BookID] = true
		books = append(books, b.BookID)
	}
	return books, nil
}

// Merge combines entity-profile and global bindings. Interleave alternates
// starting with the entity side and appends whatever is left of the longer
// list.
func Merge(entity, global []store.Binding, strategy worldinfo.CharacterStrategy) []store.Binding {
	out := make([]store.Binding, 0, len(entity)+len(global))
	switch strategy {
	case worldinfo.StrategyGlobalFirst:
		out = append(append(out, global...), entity...)
	case worldinfo.StrategyInterleave:
		for i := 0; i < len(entity) || i < len(global); i++ {
			if i < len(entity) {
				out = append(out, entity[i])
			}
			if i < len(global) {
				out = append(out, global[i])
			}
		}
	default:
		out = append(append(out, entity...), global...)
	}
	return out
}

// enabled drops disabled bindings and sorts the rest by display order,
// creation time and id.
func enabled(list []store.Binding) []store.Binding {
	out := make([]store.Binding, 0, len(list))
	for _, b := range list {
		if b.Enabled {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.DisplayOrder != b.DisplayOrder {
			return a.DisplayOrder < b.DisplayOrder
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}
