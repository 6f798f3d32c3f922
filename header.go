package mscfb

import (
	"bytes"
	"encoding/binary"
	"io"
)

// header is the fixed-layout 512-byte leading sector, grounded on the
// teacher's Header (header.go). The teacher's readFrom never actually
// assigned its parsed fields to the receiver and had no return statement;
// this version carries the same field-by-field reads through to a
// complete, returned value plus the write path the teacher never had.
type header struct {
	Version          Version
	NumDirSectors    uint32 // v4 only; v3 directory is a single chain with no count
	NumFatSectors    uint32
	FirstDirSector   sectorID
	MiniCutoff       uint32
	FirstMiniFat     sectorID
	NumMiniFat       uint32
	FirstDifat       sectorID
	NumDifat         uint32
	InitialDifat     [NumDifatEntriesInHeader]sectorID
}

const headerReservedAfterMagic = 16
const headerReservedAfterMiniShift = 6

func readHeader(r io.Reader) (*header, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, err
	}
	if !bytes.Equal(magic[:], magicNumber[:]) {
		return nil, errBadSignature("first 8 bytes are not the CFB magic number")
	}

	if _, err := io.CopyN(io.Discard, r, headerReservedAfterMagic); err != nil {
		return nil, err
	}

	var minor, major, bom uint16
	for _, v := range []*uint16{&minor, &major, &bom} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	if bom != byteOrderMark {
		return nil, errBadSignature("byte order mark is %#x, expected %#x", bom, byteOrderMark)
	}

	version, err := versionFromUint16(major)
	if err != nil {
		return nil, err
	}

	var sectorShift, miniShift uint16
	if err := binary.Read(r, binary.LittleEndian, &sectorShift); err != nil {
		return nil, err
	}
	if sectorShift != version.SectorShift() {
		return nil, errUnsupportedVersion("sector shift %d does not match version %v", sectorShift, version)
	}
	if err := binary.Read(r, binary.LittleEndian, &miniShift); err != nil {
		return nil, err
	}
	if miniShift != MiniSectorShift {
		return nil, errUnsupportedVersion("mini sector shift %d, expected %d", miniShift, MiniSectorShift)
	}

	if _, err := io.CopyN(io.Discard, r, headerReservedAfterMiniShift); err != nil {
		return nil, err
	}

	h := &header{Version: version}
	var firstDir, firstMiniFat, firstDifat sectorID
	var transactionSig uint32

	for _, p := range []*uint32{&h.NumDirSectors, &h.NumFatSectors} {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			return nil, err
		}
	}
	if err := binary.Read(r, binary.LittleEndian, &firstDir); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &transactionSig); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.MiniCutoff); err != nil {
		return nil, err
	}
	if h.MiniCutoff != DefaultMiniStreamCutoff {
		return nil, errUnsupportedVersion("mini stream cutoff %d, expected %d", h.MiniCutoff, DefaultMiniStreamCutoff)
	}
	if err := binary.Read(r, binary.LittleEndian, &firstMiniFat); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.NumMiniFat); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &firstDifat); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.NumDifat); err != nil {
		return nil, err
	}

	// Some writers use FREE_SECT rather than END_OF_CHAIN to terminate an
	// empty DIFAT chain (Open Question (b)); both are accepted.
	if firstDifat == sectorID(FreeSect) {
		firstDifat = sectorID(EndOfChain)
	}

	h.FirstDirSector = firstDir
	h.FirstMiniFat = firstMiniFat
	h.FirstDifat = firstDifat

	for i := range h.InitialDifat {
		var v uint32
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return nil, err
		}
		h.InitialDifat[i] = sectorID(v)
	}

	return h, nil
}

// writeTo writes the 512 bytes of fixed header fields. For V4 the rest of
// the 4096-byte header sector is not written here; sector 0 starts at
// offset 4096, so those bytes stay as the backing stream holds them.
func (h *header) writeTo(w io.Writer) error {
	buf := new(bytes.Buffer)
	buf.Write(magicNumber[:])
	buf.Write(make([]byte, headerReservedAfterMagic))
	binary.Write(buf, binary.LittleEndian, minorVersion)
	binary.Write(buf, binary.LittleEndian, uint16(h.Version))
	binary.Write(buf, binary.LittleEndian, byteOrderMark)
	binary.Write(buf, binary.LittleEndian, h.Version.SectorShift())
	binary.Write(buf, binary.LittleEndian, MiniSectorShift)
	buf.Write(make([]byte, headerReservedAfterMiniShift))
	binary.Write(buf, binary.LittleEndian, h.NumDirSectors)
	binary.Write(buf, binary.LittleEndian, h.NumFatSectors)
	binary.Write(buf, binary.LittleEndian, uint32(h.FirstDirSector))
	binary.Write(buf, binary.LittleEndian, uint32(0)) // transaction signature, unused
	binary.Write(buf, binary.LittleEndian, h.MiniCutoff)
	binary.Write(buf, binary.LittleEndian, uint32(h.FirstMiniFat))
	binary.Write(buf, binary.LittleEndian, h.NumMiniFat)
	binary.Write(buf, binary.LittleEndian, uint32(h.FirstDifat))
	binary.Write(buf, binary.LittleEndian, h.NumDifat)
	for _, v := range h.InitialDifat {
		binary.Write(buf, binary.LittleEndian, uint32(v))
	}

	if buf.Len() != HeaderLen {
		return errCorrupted("internal error: header serialized to %d bytes, expected %d", buf.Len(), HeaderLen)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

func newHeader(v Version) *header {
	h := &header{
		Version:      v,
		FirstDirSector: sectorID(EndOfChain),
		MiniCutoff:   DefaultMiniStreamCutoff,
		FirstMiniFat: sectorID(EndOfChain),
		FirstDifat:   sectorID(EndOfChain),
	}
	for i := range h.InitialDifat {
		h.InitialDifat[i] = sectorID(FreeSect)
	}
	return h
}
