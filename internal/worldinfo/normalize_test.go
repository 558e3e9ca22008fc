package worldinfo

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseDecorators(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    DecoratorResult
	}{
		{
			name:    "activate",
			content: "@@activate\nHello",
			want:    DecoratorResult{CleanContent: "Hello", Activate: true},
		},
		{
			name:    "both directives",
			content: "@@dont_activate\n  @@activate  \nBody",
			want:    DecoratorResult{CleanContent: "Body", Activate: true, DontActivate: true},
		},
		{
			name:    "indented directive",
			content: "  @@activate\nBody",
			want:    DecoratorResult{CleanContent: "Body", Activate: true},
		},
		{
			name:    "escaped literal",
			content: "@@@literal\nrest",
			want:    DecoratorResult{CleanContent: "@@literal\nrest"},
		},
		{
			name:    "escape ends directives",
			content: "@@activate\n@@@escaped\n@@dont_activate",
			want:    DecoratorResult{CleanContent: "@@escaped\n@@dont_activate", Activate: true},
		},
		{
			name:    "directive not leading",
			content: "Plain text\n@@activate",
			want:    DecoratorResult{CleanContent: "Plain text\n@@activate"},
		},
		{
			name:    "unknown directive",
			content: "@@something\nBody",
			want:    DecoratorResult{CleanContent: "@@something\nBody"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ParseDecorators(tt.content)); diff != "" {
				t.Fatalf("ParseDecorators mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalizeEntry(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		e := NormalizeEntry(nil)
		if !e.Selective || e.Order != 100 || e.Depth != 4 || e.Probability != 100 || !e.UseProbability || e.GroupWeight != 100 {
			t.Fatalf("unexpected defaults: %+v", e)
		}
		if e.Key == nil || e.KeySecondary == nil || e.Triggers == nil {
			t.Fatalf("expected empty non-nil lists")
		}
		if e.Sticky != nil || e.ScanDepth != nil || e.CaseSensitive != nil {
			t.Fatalf("expected nullable fields to stay nil")
		}
	})

	t.Run("coercion and clamping", func(t *testing.T) {
		e := NormalizeEntry(map[string]any{
			"uid":                 "7",
			"key":                 "dragon, wyrm",
			"selectiveLogic":      9,
			"probability":         -5,
			"triggers":            []any{"generate", "continue_generation", "bogus", "normal"},
			"delayUntilRecursion": true,
			"depth":               2.7,
			"sticky":              3.0,
			"cooldown":            -2,
			"caseSensitive":       nil,
			"position":            12,
			"role":                2,
			"group":               "  bosses ",
		})
		if e.UID != 7 {
			t.Fatalf("expected uid 7, got %d", e.UID)
		}
		if diff := cmp.Diff([]string{"dragon", "wyrm"}, e.Key); diff != "" {
			t.Fatalf("keys mismatch:\n%s", diff)
		}
		if e.SelectiveLogic != LogicAndAll {
			t.Fatalf("expected selectiveLogic clamped to 3, got %d", e.SelectiveLogic)
		}
		if e.Probability != 0 {
			t.Fatalf("expected probability clamped to 0, got %d", e.Probability)
		}
		if diff := cmp.Diff([]Trigger{TriggerNormal, TriggerContinue}, e.Triggers); diff != "" {
			t.Fatalf("triggers mismatch:\n%s", diff)
		}
		if e.DelayUntilRecursion != 1 {
			t.Fatalf("expected delayUntilRecursion 1, got %d", e.DelayUntilRecursion)
		}
		if e.Depth != 2 {
			t.Fatalf("expected depth floored to 2, got %d", e.Depth)
		}
		if e.Sticky == nil || *e.Sticky != 3 {
			t.Fatalf("expected sticky 3, got %v", e.Sticky)
		}
		if e.Cooldown == nil || *e.Cooldown != 0 {
			t.Fatalf("expected cooldown floored to 0, got %v", e.Cooldown)
		}
		if e.CaseSensitive != nil {
			t.Fatalf("expected caseSensitive to inherit")
		}
		if e.Position != PositionBefore {
			t.Fatalf("expected unknown position to fall back to 0, got %d", e.Position)
		}
		if e.Role != RoleAssistant {
			t.Fatalf("expected role 2, got %d", e.Role)
		}
		if e.Group != "bosses" {
			t.Fatalf("expected trimmed group, got %q", e.Group)
		}
	})

	t.Run("numeric delay until recursion", func(t *testing.T) {
		if got := NormalizeEntry(map[string]any{"delayUntilRecursion": 3}).DelayUntilRecursion; got != 3 {
			t.Fatalf("expected level 3, got %d", got)
		}
		if got := NormalizeEntry(map[string]any{"delayUntilRecursion": false}).DelayUntilRecursion; got != 0 {
			t.Fatalf("expected level 0, got %d", got)
		}
	})

	t.Run("regex key string is not split", func(t *testing.T) {
		e := NormalizeEntry(map[string]any{"key": "/fire,ice/i"})
		if diff := cmp.Diff([]string{"/fire,ice/i"}, e.Key); diff != "" {
			t.Fatalf("keys mismatch:\n%s", diff)
		}
	})

	t.Run("fixed point", func(t *testing.T) {
		first := NormalizeEntry(map[string]any{
			"uid":             3,
			"key":             []any{"dragon"},
			"keysecondary":    []string{"fire"},
			"content":         "@@activate\nDragons.",
			"scanDepth":       5,
			"matchWholeWords": true,
			"triggers":        []any{"swipe"},
			"characterFilter": map[string]any{"isExclude": true, "names": []any{"Alice"}},
			"outletName":      "lore",
			"displayIndex":    4,
		})
		second := NormalizeEntry(first.ToMap())
		if diff := cmp.Diff(first, second); diff != "" {
			t.Fatalf("normalizing twice changed the entry (-first +second):\n%s", diff)
		}
	})
}

func TestNormalizeSettings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		if diff := cmp.Diff(DefaultSettings(), NormalizeSettings(nil)); diff != "" {
			t.Fatalf("defaults mismatch:\n%s", diff)
		}
	})

	t.Run("aliases and clamping", func(t *testing.T) {
		s := NormalizeSettings(map[string]any{
			"min_activations":        2,
			"maxRecursionSteps":      3,
			"budgetPercent":          0,
			"insertionStrategy":      7,
			"minActivationsDepthMax": 6,
		})
		if s.MinActivations != 2 || s.MaxRecursionSteps != 0 {
			t.Fatalf("expected minActivations to win, got %+v", s)
		}
		if s.BudgetPercent != 1 {
			t.Fatalf("expected budgetPercent clamped to 1, got %d", s.BudgetPercent)
		}
		if s.CharacterStrategy != StrategyGlobalFirst {
			t.Fatalf("expected strategy clamped to 2, got %d", s.CharacterStrategy)
		}
		if s.MinDepthMax != 6 {
			t.Fatalf("expected minDepthMax 6, got %d", s.MinDepthMax)
		}
	})

	t.Run("setters are mutually exclusive", func(t *testing.T) {
		s := DefaultSettings()
		s.SetMinActivations(3)
		s.SetMaxRecursionSteps(2)
		if s.MinActivations != 0 || s.MaxRecursionSteps != 2 {
			t.Fatalf("unexpected settings: %+v", s)
		}
		s.SetMinActivations(1)
		if s.MinActivations != 1 || s.MaxRecursionSteps != 0 {
			t.Fatalf("unexpected settings: %+v", s)
		}
	})

	t.Run("fixed point", func(t *testing.T) {
		first := NormalizeSettings(map[string]any{
			"scanDepth":       4,
			"minActivations":  1,
			"budgetCapTokens": 300,
			"includeNames":    true,
			"useGroupScoring": "true",
		})
		if diff := cmp.Diff(first, NormalizeSettings(first.ToMap())); diff != "" {
			t.Fatalf("normalizing twice changed settings:\n%s", diff)
		}
	})
}

func TestEntryHash(t *testing.T) {
	base := NormalizeEntry(map[string]any{"uid": 1, "key": "dragon", "content": "Dragons."})

	if EntryHash("book", base) != EntryHash("book", NormalizeEntry(base.ToMap())) {
		t.Fatalf("expected identical entries to hash identically")
	}

	moved := base
	moved.DisplayIndex = 9
	if EntryHash("book", base) != EntryHash("book", moved) {
		t.Fatalf("expected displayIndex to be excluded from the hash")
	}

	edited := base
	edited.Content = "Dragons are ancient."
	if EntryHash("book", base) == EntryHash("book", edited) {
		t.Fatalf("expected content edits to change the hash")
	}
	if EntryHash("book", base) == EntryHash("other", base) {
		t.Fatalf("expected the book id to change the hash")
	}
}

func TestPrepare(t *testing.T) {
	entries := []Entry{NormalizeEntry(map[string]any{"uid": 2, "content": "@@dont_activate\nHidden"})}
	prepared := Prepare("b1", "Bestiary", entries)
	if len(prepared) != 1 {
		t.Fatalf("expected one prepared entry, got %d", len(prepared))
	}
	p := prepared[0]
	if p.Content != "Hidden" || !p.Decorators.DontActivate {
		t.Fatalf("expected decorators stripped, got %+v", p)
	}
	if p.Hash != EntryHash("b1", entries[0]) {
		t.Fatalf("expected hash over the authored entry")
	}
	if p.BookID != "b1" || p.BookName != "Bestiary" {
		t.Fatalf("unexpected book binding: %q %q", p.BookID, p.BookName)
	}
}

func TestNormalizeTrigger(t *testing.T) {
	cases := map[string]Trigger{
		"generate":              TriggerNormal,
		" Continue_Generation ": TriggerContinue,
		"swipe":                 TriggerSwipe,
	}
	for raw, want := range cases {
		got, ok := NormalizeTrigger(raw)
		if !ok || got != want {
			t.Fatalf("%q: expected %q, got %q (%v)", raw, want, got, ok)
		}
	}
	if _, ok := NormalizeTrigger("bogus"); ok {
		t.Fatalf("expected unknown trigger to be rejected")
	}
}
