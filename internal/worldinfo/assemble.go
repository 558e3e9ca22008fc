package worldinfo

import (
	"sort"
	"strings"
)

const defaultOutlet = "default"

type DepthEntry struct {
	Depth   int    `json:"depth"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
	BookID  string `json:"bookId"`
	UID     int    `json:"uid"`
}

// PromptOutput holds the rendered world info for each prompt insertion point.
type PromptOutput struct {
	WorldInfoBefore string              `json:"worldInfoBefore"`
	WorldInfoAfter  string              `json:"worldInfoAfter"`
	ANTop           string              `json:"anTop"`
	ANBottom        string              `json:"anBottom"`
	EMTop           string              `json:"emTop"`
	EMBottom        string              `json:"emBottom"`
	DepthEntries    []DepthEntry        `json:"depthEntries"`
	OutletEntries   map[string][]string `json:"outletEntries"`
}

func EmptyPromptOutput() PromptOutput {
	return PromptOutput{
		DepthEntries:  []DepthEntry{},
		OutletEntries: map[string][]string{},
	}
}

// Assemble routes activated entries into prompt channels by position, ordered by
// order descending then uid ascending.
func Assemble(entries []*PreparedEntry, settings Settings) PromptOutput {
	sorted := append([]*PreparedEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Order != sorted[j].Order {
			return sorted[i].Order > sorted[j].Order
		}
		return sorted[i].UID < sorted[j].UID
	})

	out := EmptyPromptOutput()
	var before, after, anTop, anBottom, emTop, emBottom []string
	for _, entry := range sorted {
		if entry.Content == "" {
			continue
		}
		text := render(entry, settings)
		switch entry.Position {
		case PositionAfter:
			after = append(after, text)
		case PositionANTop:
			anTop = append(anTop, text)
		case PositionANBottom:
			anBottom = append(anBottom, text)
		case PositionDepth:
			out.DepthEntries = append(out.DepthEntries, DepthEntry{
				Depth:   entry.Depth,
				Role:    entry.Role,
				Content: text,
				BookID:  entry.BookID,
				UID:     entry.UID,
			})
		case PositionEMTop:
			emTop = append(emTop, text)
		case PositionEMBottom:
			emBottom = append(emBottom, text)
		case PositionOutlet:
			name := entry.OutletName
			if name == "" {
				name = defaultOutlet
			}
			out.OutletEntries[name] = append(out.OutletEntries[name], text)
		default:
			before = append(before, text)
		}
	}

	out.WorldInfoBefore = strings.Join(before, "\n")
	out.WorldInfoAfter = strings.Join(after, "\n")
	out.ANTop = strings.Join(anTop, "\n")
	out.ANBottom = strings.Join(anBottom, "\n")
	out.EMTop = strings.Join(emTop, "\n")
	out.EMBottom = strings.Join(emBottom, "\n")
	return out
}

func render(entry *PreparedEntry, settings Settings) string {
	if !settings.IncludeNames {
		return entry.Content
	}
	prefix := strings.TrimSpace(entry.Comment)
	if prefix == "" {
		prefix = entry.BookName
	}
	if prefix == "" {
		return entry.Content
	}
	return prefix + ": " + entry.Content
}
