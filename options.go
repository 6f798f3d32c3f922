package mscfb

import "go.uber.org/zap"

// Mode selects whether a CompoundFile may be committed back to its backing
// stream. §4.G's state machine only allows Commit from Update.
type Mode int

const (
	// ReadOnly opens a file for inspection only; Commit always fails.
	ReadOnly Mode = iota
	// Update opens a file for both inspection and mutation; the backing
	// stream must additionally implement io.Writer.
	Update
)

func (m Mode) String() string {
	if m == Update {
		return "update"
	}
	return "read-only"
}

// OpenOptions configures Open and Create. The zero value is a safe default:
// strict validation, no free-sector recycling, freed sectors left unerased,
// and stream ownership transferred to the CompoundFile.
type OpenOptions struct {
	// Validation controls how strictly the directory and allocation
	// tables are checked while loading.
	Validation Validation

	// SectorRecycle enables the free-sector pool: freed sectors are
	// reused by future allocations before the file is grown. Disabling it
	// is faster for append-heavy workloads; enabling it keeps file size
	// stable across churning edits (§9).
	SectorRecycle bool

	// EraseFreeSectors zeroes a sector's payload before returning it to
	// the free pool (or before leaving it as trailing garbage on shrink).
	EraseFreeSectors bool

	// LeaveOpen, if true, means the caller retains ownership of the
	// backing stream: Close will not attempt to close it.
	LeaveOpen bool

	// Logger receives a Warn message whenever Open, under permissive
	// validation, tolerates a FAT or directory validation failure. Nothing
	// else is logged. A nil Logger is replaced with zap.NewNop().
	Logger *zap.Logger
}

func (o OpenOptions) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}
