package worldinfo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

type GroupCandidate struct {
	Entry          *PreparedEntry
	Score          int
	StickyActive   bool
	CooldownActive bool
	Delayed        bool
}

type GroupOptions struct {
	ScanSeed        string
	PassIndex       int
	UseGroupScoring bool
}

type GroupExclusion struct {
	Candidate GroupCandidate
	Group     string
	Reason    SkipReason
}

type GroupResolution struct {
	// Winners keeps the input order of the surviving candidates.
	Winners  []GroupCandidate
	Excluded []GroupExclusion
	// Resolved lists the groups settled by this call. Callers carry them into
	// later passes so each group yields at most one winner per scan.
	Resolved []string
}

// ResolveGroups collapses candidates that share an inclusion group down to at
// most one winner per group. Groups in resolved are already settled and
// contribute no winners.
func ResolveGroups(candidates []GroupCandidate, resolved map[string]bool, opts GroupOptions) GroupResolution {
	var order []string
	members := make(map[string][]int)
	for i, candidate := range candidates {
		for _, name := range SplitGroups(candidate.Entry.Group) {
			if _, ok := members[name]; !ok {
				order = append(order, name)
			}
			members[name] = append(members[name], i)
		}
	}

	res := GroupResolution{}
	excluded := make(map[int]bool)
	exclude := func(idx int, group string, reason SkipReason) {
		if excluded[idx] {
			return
		}
		excluded[idx] = true
		res.Excluded = append(res.Excluded, GroupExclusion{Candidate: candidates[idx], Group: group, Reason: reason})
	}

	for _, name := range order {
		group := members[name]
		if resolved[name] {
			for _, idx := range group {
				exclude(idx, name, SkipGroupResolved)
			}
			continue
		}

		eligible := stickyMembers(candidates, group)
		if len(eligible) > 0 {
			for _, idx := range difference(group, eligible) {
				exclude(idx, name, SkipGroupSticky)
			}
		} else {
			for _, idx := range group {
				switch {
				case candidates[idx].CooldownActive:
					exclude(idx, name, SkipCooldown)
				case candidates[idx].Delayed:
					exclude(idx, name, SkipDelayed)
				default:
					eligible = append(eligible, idx)
				}
			}
			if len(eligible) == 0 {
				continue
			}
		}

		scored := filterByScore(candidates, eligible, opts.UseGroupScoring)
		for _, idx := range difference(eligible, scored) {
			exclude(idx, name, SkipGroupScore)
		}

		winner := pickOverride(candidates, scored)
		if winner < 0 {
			winner = weightedPick(candidates, scored, groupSeed(opts, name))
		}
		for _, idx := range scored {
			if idx != winner {
				exclude(idx, name, SkipGroupLost)
			}
		}
		res.Resolved = append(res.Resolved, name)
	}

	for i, candidate := range candidates {
		if !excluded[i] {
			res.Winners = append(res.Winners, candidate)
		}
	}
	return res
}

// SplitGroups returns the distinct group names in a comma-separated group field.
func SplitGroups(field string) []string {
	if strings.TrimSpace(field) == "" {
		return nil
	}
	var names []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(field, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// UnitHash maps a seed onto [0,1) using the first 48 bits of its SHA-256 digest.
func UnitHash(seed string) float64 {
	sum := sha256.Sum256([]byte(seed))
	prefix := hex.EncodeToString(sum[:])[:12]
	n, err := strconv.ParseUint(prefix, 16, 64)
	if err != nil {
		return 0
	}
	return float64(n) / float64(uint64(1)<<48)
}

func groupSeed(opts GroupOptions, name string) string {
	return fmt.Sprintf("%s:%d:%s", opts.ScanSeed, opts.PassIndex, name)
}

func stickyMembers(candidates []GroupCandidate, group []int) []int {
	var out []int
	for _, idx := range group {
		if candidates[idx].StickyActive {
			out = append(out, idx)
		}
	}
	return out
}

func filterByScore(candidates []GroupCandidate, eligible []int, defaultScoring bool) []int {
	maxScore := 0
	for i, idx := range eligible {
		if score := candidates[idx].Score; i == 0 || score > maxScore {
			maxScore = score
		}
	}
	var out []int
	for _, idx := range eligible {
		entry := candidates[idx].Entry
		scoring := defaultScoring
		if entry.UseGroupScoring != nil {
			scoring = *entry.UseGroupScoring
		}
		if !scoring || candidates[idx].Score >= maxScore {
			out = append(out, idx)
		}
	}
	return out
}

func pickOverride(candidates []GroupCandidate, eligible []int) int {
	winner := -1
	for _, idx := range eligible {
		entry := candidates[idx].Entry
		if !entry.GroupOverride {
			continue
		}
		if winner < 0 || entry.Order > candidates[winner].Entry.Order {
			winner = idx
		}
	}
	return winner
}

func weightedPick(candidates []GroupCandidate, eligible []int, seed string) int {
	if len(eligible) == 0 {
		return -1
	}
	total := 0
	for _, idx := range eligible {
		total += max(candidates[idx].Entry.GroupWeight, 0)
	}
	target := UnitHash(seed) * float64(total)
	cumulative := 0
	for _, idx := range eligible {
		cumulative += max(candidates[idx].Entry.GroupWeight, 0)
		if float64(cumulative) >= target {
			return idx
		}
	}
	return eligible[len(eligible)-1]
}

func difference(all, keep []int) []int {
	kept := make(map[int]bool, len(keep))
	for _, idx := range keep {
		kept[idx] = true
	}
	var out []int
	for _, idx := range all {
		if !kept[idx] {
			out = append(out, idx)
		}
	}
	return out
}
