package mscfb

import (
	"encoding/binary"
	"io"

	"github.com/google/uuid"
)

// dirEntry is the in-memory form of one 128-byte on-disk directory
// record, grounded on the teacher's DirEntry (direntry.go) but laid out
// and marshaled per the exact [MS-CFB] field table rather than via
// encoding/binary struct tags, since the on-disk order and sizes (64-byte
// name field, 2-byte name length, 1-byte type, 1-byte color, three 4-byte
// sibling/child SIDs, 16-byte CLSID, 4-byte state bits, two 8-byte
// FILETIMEs, 4-byte start sector, 8-byte size) don't map onto a single Go
// struct's natural layout.
type dirEntry struct {
	Name    string
	Type    EntryType
	Color   rbColor
	Left    StreamID
	Right   StreamID
	Child   StreamID
	CLSID   uuid.UUID
	State   uint32
	Created uint64
	Mod     uint64
	Start   sectorID
	Size    uint64
}

func newDirEntry(name string, t EntryType) *dirEntry {
	return &dirEntry{
		Name:  name,
		Type:  t,
		Color: black,
		Left:  nilSID,
		Right: nilSID,
		Child: nilSID,
		Start: sectorID(EndOfChain),
	}
}

// freeDirEntry returns a TypeInvalid record suitable for an unused slot:
// empty name and zero fields, except that the sibling and child IDs are
// NoStream and the start sector is EndOfChain.
func freeDirEntry() *dirEntry {
	return &dirEntry{Type: TypeInvalid, Left: nilSID, Right: nilSID, Child: nilSID, Start: sectorID(EndOfChain)}
}

func (e *dirEntry) isFree() bool { return e.Type == TypeInvalid }

// readDirEntry parses one 128-byte record. v selects whether the 8-byte
// size field's upper 32 bits are trusted: under v3 they must be read as
// zero regardless of what's on disk, since implementations have been
// observed writing garbage there (Open Question (c)).
func readDirEntry(r io.Reader, v Version) (*dirEntry, error) {
	var raw [DirEntryLen]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return nil, err
	}

	var nameField [64]byte
	copy(nameField[:], raw[0:64])
	nameLen := binary.LittleEndian.Uint16(raw[64:66])

	typ, ok := entryTypeFromByte(raw[66])
	if !ok {
		return nil, errCorrupted("directory entry has invalid object type byte %#x", raw[66])
	}
	col := colorFromByte(raw[67])

	left := StreamID(binary.LittleEndian.Uint32(raw[68:72]))
	right := StreamID(binary.LittleEndian.Uint32(raw[72:76]))
	child := StreamID(binary.LittleEndian.Uint32(raw[76:80]))

	clsid, err := uuid.FromBytes(leGUIDToBE(raw[80:96]))
	if err != nil {
		return nil, errCorruptedWrap(err, "directory entry has malformed CLSID")
	}

	state := binary.LittleEndian.Uint32(raw[96:100])
	created := binary.LittleEndian.Uint64(raw[100:108])
	mod := binary.LittleEndian.Uint64(raw[108:116])
	start := sectorID(binary.LittleEndian.Uint32(raw[116:120]))

	var size uint64
	if v == V4 {
		size = binary.LittleEndian.Uint64(raw[120:128])
	} else {
		size = uint64(binary.LittleEndian.Uint32(raw[120:124]))
		// Upper 32 bits are ignored for v3 per Open Question (c): some
		// writers leave them non-zero, but [MS-CFB] defines v3 stream
		// sizes as 32-bit.
	}

	name := ""
	if typ != TypeInvalid {
		name, err = decodeName(nameField, nameLen)
		if err != nil {
			return nil, err
		}
	}

	return &dirEntry{
		Name: name, Type: typ, Color: col,
		Left: left, Right: right, Child: child,
		CLSID: clsid, State: state, Created: created, Mod: mod,
		Start: start, Size: size,
	}, nil
}

func (e *dirEntry) writeTo(w io.Writer, v Version) error {
	var raw [DirEntryLen]byte

	if !e.isFree() {
		field, nameLen, err := encodeName(e.Name)
		if err != nil {
			return err
		}
		copy(raw[0:64], field[:])
		binary.LittleEndian.PutUint16(raw[64:66], nameLen)
	}

	raw[66] = byte(e.Type)
	raw[67] = e.Color.byte()
	binary.LittleEndian.PutUint32(raw[68:72], uint32(e.Left))
	binary.LittleEndian.PutUint32(raw[72:76], uint32(e.Right))
	binary.LittleEndian.PutUint32(raw[76:80], uint32(e.Child))
	copy(raw[80:96], beGUIDToLE(e.CLSID))
	binary.LittleEndian.PutUint32(raw[96:100], e.State)
	binary.LittleEndian.PutUint64(raw[100:108], e.Created)
	binary.LittleEndian.PutUint64(raw[108:116], e.Mod)
	binary.LittleEndian.PutUint32(raw[116:120], uint32(e.Start))

	if v == V4 {
		binary.LittleEndian.PutUint64(raw[120:128], e.Size)
	} else {
		binary.LittleEndian.PutUint32(raw[120:124], uint32(e.Size))
		// Bytes 124:128 stay zero, per Open Question (c): we never write
		// garbage into the unused upper half of a v3 size field.
	}

	_, err := w.Write(raw[:])
	return err
}

// leGUIDToBE and beGUIDToLE convert between [MS-CFB]'s mixed-endian CLSID
// encoding (first three fields little-endian, last two big-endian byte
// arrays) and the big-endian byte order uuid.UUID expects.
func leGUIDToBE(b []byte) []byte {
	out := make([]byte, 16)
	out[0], out[1], out[2], out[3] = b[3], b[2], b[1], b[0]
	out[4], out[5] = b[5], b[4]
	out[6], out[7] = b[7], b[6]
	copy(out[8:16], b[8:16])
	return out
}

func beGUIDToLE(u uuid.UUID) []byte {
	b := u[:]
	out := make([]byte, 16)
	out[0], out[1], out[2], out[3] = b[3], b[2], b[1], b[0]
	out[4], out[5] = b[5], b[4]
	out[6], out[7] = b[7], b[6]
	copy(out[8:16], b[8:16])
	return out
}
