package mscfb

// Validation controls how strictly Open checks structural invariants while
// loading a compound file.
type Validation int

const (
	// ValidationStrict rejects any inconsistency between the header's
	// declared counts and what is actually found on disk, and fails on any
	// sibling-SID or chain corruption. This is the zero value, so a
	// caller who forgets to set it gets the safer behavior.
	ValidationStrict Validation = iota
	// ValidationPermissive tolerates count mismatches and skips directory
	// siblings that fail validation instead of failing the whole Open;
	// read-only traversal of the intact portion of the file still works.
	ValidationPermissive
)

// IsStrict reports whether v is ValidationStrict.
func (v Validation) IsStrict() bool {
	return v == ValidationStrict
}
