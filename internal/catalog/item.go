package catalog

import (
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Status is the lifecycle state of an item.
//
//	Archived --restore ok--> Restored
//	Archived --restore failed--> Corrupted
//	Archived --evicted / swept--> Deleted
//
// Only Archived items can be restored or evicted.
type Status string

const (
	StatusArchived  Status = "Archived"
	StatusRestored  Status = "Restored"
	StatusDeleted   Status = "Deleted"
	StatusCorrupted Status = "Corrupted"
)

// Valid reports whether s is one of the four known states.
func (s Status) Valid() bool {
	switch s {
	case StatusArchived, StatusRestored, StatusDeleted, StatusCorrupted:
		return true
	}
	return false
}

// Item is one row of the items table.
type Item struct {
	Name      string
	Version   int64
	Timestamp time.Time
	Status    Status
	Source    string
	Archive   string
	Size      int64
}

// timeLayout is fixed width so that text order equals time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// NormalizeName returns the NFC form of an item name, so that names typed on
// the command line match names taken from the filesystem.
func NormalizeName(name string) string {
	return norm.NFC.String(name)
}

// ArchiveName returns the blob filename for (name, version). It is both the
// items.archive value and the literal filename under the root.
func ArchiveName(name string, version int64) string {
	return fmt.Sprintf("%s-%d.tar.gz", name, version)
}
