package mscfb

import (
	"io"
)

// sectors is a sparse, lazily-materialized view of the backing stream's
// sector-aligned body (everything after the fixed header sector). It is
// grounded on the teacher's Sectors/Sector pair, generalized to support
// writes: a newly appended sector is materialized as all-zero bytes rather
// than read through to the backing stream, matching the "grow means
// zero-fill" rule of §4.A.
type sectors struct {
	version Version
	inner   io.ReadWriteSeeker

	// count is the number of sectors known to exist in the backing stream,
	// derived from its length at load time and grown by append.
	count sectorID

	// dirty marks sector IDs whose in-memory copy has not yet been flushed
	// to inner. commit clears it.
	dirty map[sectorID]bool

	// cache holds materialized sector payloads that have been read or
	// written this session, keyed by sector ID. Flushing writes dirty
	// sectors back but does not evict them from the cache.
	cache map[sectorID][]byte
}

// newSectors wraps a backing stream whose total length is streamLen bytes,
// for a file of the given version. streamLen must include the header.
func newSectors(v Version, streamLen int64, inner io.ReadWriteSeeker) *sectors {
	sectorLen := int64(v.SectorLen())
	n := ceilDiv(streamLen-sectorLen, sectorLen)
	if n < 0 {
		n = 0
	}
	return &sectors{
		version: v,
		inner:   inner,
		count:   sectorID(n),
		dirty:   make(map[sectorID]bool),
		cache:   make(map[sectorID][]byte),
	}
}

func (s *sectors) sectorLen() int {
	return s.version.SectorLen()
}

func (s *sectors) len() sectorID {
	return s.count
}

// offset returns the byte offset of sector id within the backing stream,
// accounting for the header occupying sector slot -1.
func (s *sectors) offset(id sectorID) int64 {
	return int64(id+1) * int64(s.sectorLen())
}

// get returns the full payload of sector id, reading through to the
// backing stream on first access and caching the result.
func (s *sectors) get(id sectorID) ([]byte, error) {
	if buf, ok := s.cache[id]; ok {
		return buf, nil
	}
	if id >= s.count {
		return nil, errCorrupted("sector %d out of range (have %d)", id, s.count)
	}
	buf := make([]byte, s.sectorLen())
	if _, err := s.inner.Seek(s.offset(id), io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(s.inner, buf); err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	s.cache[id] = buf
	return buf, nil
}

// set overwrites sector id's payload and marks it dirty. buf must be
// exactly sectorLen bytes.
func (s *sectors) set(id sectorID, buf []byte) error {
	if id >= s.count {
		return errCorrupted("sector %d out of range (have %d)", id, s.count)
	}
	if len(buf) != s.sectorLen() {
		return errInvalidArg("sector payload must be %d bytes, got %d", s.sectorLen(), len(buf))
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	s.cache[id] = cp
	s.dirty[id] = true
	return nil
}

// append allocates a brand new, zero-filled sector at the end of the file
// and returns its ID.
func (s *sectors) append() sectorID {
	id := s.count
	s.count++
	s.cache[id] = make([]byte, s.sectorLen())
	s.dirty[id] = true
	return id
}

// isDirty reports whether id has unflushed writes.
func (s *sectors) isDirty(id sectorID) bool {
	return s.dirty[id]
}

// flush writes every dirty sector to the backing stream in ascending order
// and clears the dirty set. Commit has already rendered the directory into
// dirty sectors by then; the header is written separately and strictly
// after this, per the commit ordering in §4.G.
func (s *sectors) flush() error {
	ids := make([]sectorID, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	sortSectorIDs(ids)
	for _, id := range ids {
		buf := s.cache[id]
		if _, err := s.inner.Seek(s.offset(id), io.SeekStart); err != nil {
			return err
		}
		if _, err := s.inner.Write(buf); err != nil {
			return err
		}
		delete(s.dirty, id)
	}
	return nil
}

// rangeLockSectorID reports the fixed sector ID [MS-CFB] reserves for the
// v4 range-lock sector, and whether the file has actually grown past the
// 2 GiB watermark (§4.A/§4.G) where that sector must be accounted for in
// the FAT. v3 files never need it regardless of size.
func (s *sectors) rangeLockSectorID() (sectorID, bool) {
	if s.version != V4 || s.count <= sectorID(rangeLockSectorThreshold) {
		return 0, false
	}
	return sectorID(rangeLockSectorOffset/int64(s.sectorLen())) - 1, true
}

func sortSectorIDs(ids []sectorID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}
