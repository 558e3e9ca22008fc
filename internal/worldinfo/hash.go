package worldinfo

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
)

// EntryHash identifies an entry across scans. Timed effects are keyed by it, so
// it must only change when the authored entry changes.
func EntryHash(bookID string, entry Entry) string {
	hashable := entry
	hashable.DisplayIndex = 0

	payload, err := json.Marshal(hashable)
	if err != nil {
		payload = []byte(strconv.Itoa(entry.UID))
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", bookID, entry.UID, payload)))
	return hex.EncodeToString(sum[:])
}

// Prepare binds normalized entries to their book, strips decorators from their
// content and computes identity hashes.
func Prepare(bookID, bookName string, entries []Entry) []*PreparedEntry {
	prepared := make([]*PreparedEntry, 0, len(entries))
	for _, entry := range entries {
		prepared = append(prepared, PrepareEntry(bookID, bookName, entry))
	}
	return prepared
}

func PrepareEntry(bookID, bookName string, entry Entry) *PreparedEntry {
	hash := EntryHash(bookID, entry)
	decorated := ParseDecorators(entry.Content)
	entry.Content = decorated.CleanContent
	return &PreparedEntry{
		Entry:    entry,
		BookID:   bookID,
		BookName: bookName,
		Hash:     hash,
		Decorators: Decorators{
			Activate:     decorated.Activate,
			DontActivate: decorated.DontActivate,
		},
	}
}
