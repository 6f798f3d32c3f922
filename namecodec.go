package mscfb

import (
	"strings"
	"unicode/utf16"

	"golang.org/x/text/encoding/unicode"
)

// utf16LE is the codec backing the on-disk name field. The teacher's
// go.mod already depended on golang.org/x/text without ever importing it;
// this is where that dependency becomes load-bearing.
var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// validateName enforces the naming rules from §4.E: non-empty, at most
// MaxNameChars UTF-16 code units, and none of the characters forbidden by
// [MS-CFB] path syntax.
func validateName(name string) error {
	if name == "" {
		return errInvalidArg("name must not be empty")
	}
	if len(utf16.Encode([]rune(name))) > MaxNameChars {
		return errInvalidArg("name %q exceeds %d UTF-16 code units", name, MaxNameChars)
	}
	if strings.ContainsAny(name, "\\/:!") {
		return errInvalidArg("name %q contains one of the forbidden characters \\/:!", name)
	}
	return nil
}

// encodeName renders name into the fixed 64-byte on-disk name field and
// returns the accompanying name-length-in-bytes value (which includes the
// two-byte NUL terminator, per [MS-CFB]).
func encodeName(name string) (field [64]byte, nameLen uint16, err error) {
	if err := validateName(name); err != nil {
		return field, 0, err
	}
	raw, err := utf16LE.NewEncoder().Bytes([]byte(name))
	if err != nil {
		return field, 0, errInvalidArg("name %q is not representable as UTF-16: %v", name, err)
	}
	copy(field[:], raw)
	// The two-byte NUL terminator is already zero from field's zero value.
	return field, uint16(len(raw) + 2), nil
}

// decodeName recovers a name string from its fixed 64-byte on-disk field
// and declared byte length (including the NUL terminator).
func decodeName(field [64]byte, nameLen uint16) (string, error) {
	if nameLen == 0 {
		return "", nil
	}
	if nameLen < 2 || nameLen > 64 || nameLen%2 != 0 {
		return "", errCorrupted("directory entry name length %d out of range", nameLen)
	}
	raw := field[:nameLen-2]
	out, err := utf16LE.NewDecoder().Bytes(raw)
	if err != nil {
		return "", errCorrupted("invalid UTF-16 directory entry name: %v", err)
	}
	return string(out), nil
}

// asciiUpper uppercases a single UTF-16 code unit using only the ASCII
// a-z range. Using golang.org/x/text/cases.Upper here would be wrong: it
// performs full Unicode case folding (e.g. "ß"→"SS"), which is not
// length-preserving and would break the code-unit-by-code-unit comparison
// §3 requires. This loop is the justified standard-library exception —
// see DESIGN.md.
func asciiUpper(u uint16) uint16 {
	if u >= 'a' && u <= 'z' {
		return u - ('a' - 'A')
	}
	return u
}

// compareNames implements the directory ordering required by §3: shorter
// names sort first; names of equal length compare code-unit-by-code-unit
// after ASCII uppercasing. Equal length and equal uppercased units means
// the names are duplicates.
func compareNames(a, b string) int {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	if len(ua) != len(ub) {
		if len(ua) < len(ub) {
			return -1
		}
		return 1
	}
	for i := range ua {
		ca, cb := asciiUpper(ua[i]), asciiUpper(ub[i])
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
	}
	return 0
}
