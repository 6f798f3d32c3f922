package mscfb

import (
	"time"

	"github.com/google/uuid"
)

// Item is the public, read-only snapshot of a directory entry, grounded
// on the teacher's Entry (entry.go) but widened into the tagged variant
// described in the design notes: every Item carries the fields common to
// storages and streams, and IsStorage/IsStream/IsRoot distinguish the
// three concrete object kinds without exposing the SID-based tree
// internals.
type Item struct {
	Name      string
	Path      string
	Type      EntryType
	CLSID     uuid.UUID
	StateBits uint32
	Created   time.Time
	Modified  time.Time
	Size      uint64

	sid StreamID
}

// IsStorage reports whether the item is a storage (directory-like) entry.
func (it Item) IsStorage() bool { return it.Type == TypeStorage }

// IsStream reports whether the item is a stream (file-like) entry.
func (it Item) IsStream() bool { return it.Type == TypeStream }

// IsRoot reports whether the item is the single Root Entry.
func (it Item) IsRoot() bool { return it.Type == TypeRoot }

func newItem(e *dirEntry, path string, sid StreamID) Item {
	return Item{
		Name:      e.Name,
		Path:      path,
		Type:      e.Type,
		CLSID:     e.CLSID,
		StateBits: e.State,
		Created:   filetimeToTime(e.Created),
		Modified:  filetimeToTime(e.Mod),
		Size:      e.Size,
		sid:       sid,
	}
}
