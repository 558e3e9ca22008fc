package worldinfo

import (
	"fmt"
	"testing"
)

func groupCandidate(uid int, raw map[string]any) GroupCandidate {
	return GroupCandidate{Entry: prepared(uid, raw)}
}

func winnerUIDs(res GroupResolution) []int {
	uids := make([]int, 0, len(res.Winners))
	for _, w := range res.Winners {
		uids = append(uids, w.Entry.UID)
	}
	return uids
}

func exclusionReason(res GroupResolution, uid int) SkipReason {
	for _, ex := range res.Excluded {
		if ex.Candidate.Entry.UID == uid {
			return ex.Reason
		}
	}
	return ""
}

func TestResolveGroups(t *testing.T) {
	opts := GroupOptions{ScanSeed: "seed"}

	t.Run("ungrouped entries pass through", func(t *testing.T) {
		res := ResolveGroups([]GroupCandidate{
			groupCandidate(1, nil),
			groupCandidate(2, nil),
		}, nil, opts)
		if fmt.Sprint(winnerUIDs(res)) != "[1 2]" {
			t.Fatalf("unexpected winners: %v", winnerUIDs(res))
		}
		if len(res.Resolved) != 0 {
			t.Fatalf("expected no resolved groups, got %v", res.Resolved)
		}
	})

	t.Run("override picks highest order regardless of weight", func(t *testing.T) {
		res := ResolveGroups([]GroupCandidate{
			groupCandidate(1, map[string]any{"group": "g", "groupOverride": true, "order": 10, "groupWeight": 100}),
			groupCandidate(2, map[string]any{"group": "g", "groupOverride": true, "order": 50, "groupWeight": 1}),
			groupCandidate(3, map[string]any{"group": "g", "order": 90, "groupWeight": 1000}),
		}, nil, opts)
		if fmt.Sprint(winnerUIDs(res)) != "[2]" {
			t.Fatalf("unexpected winners: %v", winnerUIDs(res))
		}
		if exclusionReason(res, 1) != SkipGroupLost || exclusionReason(res, 3) != SkipGroupLost {
			t.Fatalf("expected losers to be excluded: %+v", res.Excluded)
		}
		if fmt.Sprint(res.Resolved) != "[g]" {
			t.Fatalf("expected g resolved, got %v", res.Resolved)
		}
	})

	t.Run("override ties keep insertion order", func(t *testing.T) {
		res := ResolveGroups([]GroupCandidate{
			groupCandidate(1, map[string]any{"group": "g", "groupOverride": true, "order": 50}),
			groupCandidate(2, map[string]any{"group": "g", "groupOverride": true, "order": 50}),
		}, nil, opts)
		if fmt.Sprint(winnerUIDs(res)) != "[1]" {
			t.Fatalf("unexpected winners: %v", winnerUIDs(res))
		}
	})

	t.Run("scoring keeps only max score members", func(t *testing.T) {
		candidates := []GroupCandidate{
			groupCandidate(1, map[string]any{"group": "g"}),
			groupCandidate(2, map[string]any{"group": "g", "groupOverride": true}),
			groupCandidate(3, map[string]any{"group": "g"}),
		}
		candidates[0].Score = 2
		candidates[1].Score = 1
		candidates[2].Score = 2

		res := ResolveGroups(candidates, nil, GroupOptions{ScanSeed: "seed", UseGroupScoring: true})
		if exclusionReason(res, 2) != SkipGroupScore {
			t.Fatalf("expected low scorer excluded by score: %+v", res.Excluded)
		}
		uids := winnerUIDs(res)
		if len(uids) != 1 || (uids[0] != 1 && uids[0] != 3) {
			t.Fatalf("expected one max-score winner, got %v", uids)
		}
	})

	t.Run("entry level scoring flag overrides settings", func(t *testing.T) {
		candidates := []GroupCandidate{
			groupCandidate(1, map[string]any{"group": "g", "useGroupScoring": false, "groupOverride": true}),
			groupCandidate(2, map[string]any{"group": "g"}),
		}
		candidates[1].Score = 3
		res := ResolveGroups(candidates, nil, GroupOptions{ScanSeed: "seed", UseGroupScoring: true})
		if fmt.Sprint(winnerUIDs(res)) != "[1]" {
			t.Fatalf("expected unscored override member to survive, got %v", winnerUIDs(res))
		}
	})

	t.Run("sticky members restrict the group", func(t *testing.T) {
		candidates := []GroupCandidate{
			groupCandidate(1, map[string]any{"group": "g"}),
			groupCandidate(2, map[string]any{"group": "g", "groupOverride": true, "order": 999}),
		}
		candidates[0].StickyActive = true
		res := ResolveGroups(candidates, nil, opts)
		if fmt.Sprint(winnerUIDs(res)) != "[1]" {
			t.Fatalf("expected sticky member to win, got %v", winnerUIDs(res))
		}
		if exclusionReason(res, 2) != SkipGroupSticky {
			t.Fatalf("expected non-sticky member excluded: %+v", res.Excluded)
		}
	})

	t.Run("group with no eligible members stays open", func(t *testing.T) {
		candidates := []GroupCandidate{
			groupCandidate(1, map[string]any{"group": "g"}),
			groupCandidate(2, map[string]any{"group": "g"}),
		}
		candidates[0].CooldownActive = true
		candidates[1].Delayed = true
		res := ResolveGroups(candidates, nil, opts)
		if len(res.Winners) != 0 {
			t.Fatalf("expected no winners, got %v", winnerUIDs(res))
		}
		if len(res.Resolved) != 0 {
			t.Fatalf("expected group to stay unresolved, got %v", res.Resolved)
		}
		if exclusionReason(res, 1) != SkipCooldown || exclusionReason(res, 2) != SkipDelayed {
			t.Fatalf("unexpected exclusions: %+v", res.Excluded)
		}
	})

	t.Run("resolved groups are never reconsidered", func(t *testing.T) {
		res := ResolveGroups([]GroupCandidate{
			groupCandidate(1, map[string]any{"group": "g", "groupOverride": true}),
			groupCandidate(2, nil),
		}, map[string]bool{"g": true}, opts)
		if fmt.Sprint(winnerUIDs(res)) != "[2]" {
			t.Fatalf("unexpected winners: %v", winnerUIDs(res))
		}
		if exclusionReason(res, 1) != SkipGroupResolved {
			t.Fatalf("expected group_resolved exclusion: %+v", res.Excluded)
		}
	})

	t.Run("multi group entry must survive every group", func(t *testing.T) {
		res := ResolveGroups([]GroupCandidate{
			groupCandidate(1, map[string]any{"group": "a, b", "groupOverride": true, "order": 10}),
			groupCandidate(2, map[string]any{"group": "b", "groupOverride": true, "order": 20}),
		}, nil, opts)
		if fmt.Sprint(winnerUIDs(res)) != "[2]" {
			t.Fatalf("unexpected winners: %v", winnerUIDs(res))
		}
		if fmt.Sprint(res.Resolved) != "[a b]" {
			t.Fatalf("expected both groups resolved, got %v", res.Resolved)
		}
	})

	t.Run("zero weight members lose to weighted members", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			res := ResolveGroups([]GroupCandidate{
				groupCandidate(1, map[string]any{"group": "g", "groupWeight": 0}),
				groupCandidate(2, map[string]any{"group": "g", "groupWeight": 100}),
			}, nil, GroupOptions{ScanSeed: fmt.Sprintf("seed-%d", i)})
			if fmt.Sprint(winnerUIDs(res)) != "[2]" {
				t.Fatalf("seed %d: unexpected winners %v", i, winnerUIDs(res))
			}
		}
	})

	t.Run("weighted pick is deterministic per seed", func(t *testing.T) {
		candidates := []GroupCandidate{
			groupCandidate(1, map[string]any{"group": "g", "groupWeight": 30}),
			groupCandidate(2, map[string]any{"group": "g", "groupWeight": 30}),
			groupCandidate(3, map[string]any{"group": "g", "groupWeight": 40}),
		}
		for i := 0; i < 10; i++ {
			o := GroupOptions{ScanSeed: fmt.Sprintf("chat:%d", i), PassIndex: i % 3}
			first := winnerUIDs(ResolveGroups(candidates, nil, o))
			second := winnerUIDs(ResolveGroups(candidates, nil, o))
			if fmt.Sprint(first) != fmt.Sprint(second) || len(first) != 1 {
				t.Fatalf("seed %d: %v vs %v", i, first, second)
			}
		}
	})
}

func TestUnitHash(t *testing.T) {
	for i := 0; i < 50; i++ {
		seed := fmt.Sprintf("s:%d", i)
		v := UnitHash(seed)
		if v < 0 || v >= 1 {
			t.Fatalf("%s: %v out of range", seed, v)
		}
		if v != UnitHash(seed) {
			t.Fatalf("%s: not deterministic", seed)
		}
	}
	if UnitHash("a") == UnitHash("b") {
		t.Fatalf("expected different seeds to differ")
	}
}

func TestSplitGroups(t *testing.T) {
	if got := fmt.Sprint(SplitGroups(" a, b ,a,, c")); got != "[a b c]" {
		t.Fatalf("unexpected groups: %s", got)
	}
	if SplitGroups("  ") != nil {
		t.Fatalf("expected nil for blank group")
	}
}
