package mscfb

import (
	"encoding/binary"
	"io"
	"time"
)

// Create initializes a brand new, empty compound file on w and returns a
// CompoundFile open in Update mode. Grounded on the allocate-then-write
// pattern in naqvis-poi4go's POIFSFileSystem (which builds an empty
// property table plus header on construction), generalized to this
// package's sector/FAT/directory types.
func Create(w io.ReadWriteSeeker, v Version, opts OpenOptions) (*CompoundFile, error) {
	hdr := newHeader(v)
	sec := newSectors(v, int64(v.SectorLen()), w)
	fm := newFatManager(sec, []sectorID{}, []sectorID{}, nil, opts)

	root := newDirEntry(rootEntryName, TypeRoot)
	now := timeToFiletime(time.Now())
	root.Created, root.Mod = now, now
	entries := []*dirEntry{root}
	// Directory sectors always come in whole-sector multiples of
	// DirEntriesPerSector; pad out the root sector with free slots.
	for len(entries) < v.DirEntriesPerSector() {
		entries = append(entries, freeDirEntry())
	}
	dir := newDirectory(entries)

	cf := &CompoundFile{
		mode: Update, opts: opts, backing: w, writable: w, hdr: hdr, dir: dir, fat: fm, sec: sec,
		log: opts.logger(), state: stateOpen,
	}

	rootView, err := newStreamView(fm, sec, sectorID(EndOfChain), 0)
	if err != nil {
		return nil, err
	}
	cf.rootView = rootView

	if err := cf.Commit(); err != nil {
		return nil, err
	}
	return cf, nil
}

// Commit rewrites the directory chain and the FAT/DIFAT from scratch into
// the in-memory sectors, flushes all dirty sectors, and finally overwrites
// the header — in that order, so a crash mid-commit never leaves a header
// pointing at half-written tables (§4.G). The FAT is always fully rebuilt rather than
// patched incrementally: this mirrors poifs's filesystem.go, which
// recomputes its BAT/XBAT blocks at writeFilesystem time instead of
// tracking incremental diffs.
func (c *CompoundFile) Commit() error {
	if err := c.requireUpdate(); err != nil {
		return err
	}

	if id, needed := c.sec.rangeLockSectorID(); needed {
		c.fat.reserveRangeLockSector(id)
	}
	if err := c.rewriteDirectoryChain(); err != nil {
		return err
	}
	if err := c.rewriteFatAndDifat(); err != nil {
		return err
	}
	if err := c.sec.flush(); err != nil {
		return err
	}
	if _, err := c.writable.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := c.hdr.writeTo(c.writable); err != nil {
		return err
	}
	return c.truncateBacking()
}

// truncater is implemented by backing streams (typically *os.File) that
// support shrinking, checked via type assertion since a plain
// io.ReadWriteSeeker over an in-memory buffer may not need it.
type truncater interface {
	Truncate(size int64) error
}

// truncateBacking trims the backing stream to exactly the bytes Commit
// just wrote — the header sector plus every allocated regular sector
// (§4.G step 5) — so trailing bytes left over from a prior, larger
// version of the file don't linger on disk.
func (c *CompoundFile) truncateBacking() error {
	t, ok := c.writable.(truncater)
	if !ok {
		return nil
	}
	size := int64(c.sec.len()+1) * int64(c.hdr.Version.SectorLen())
	return t.Truncate(size)
}

func (c *CompoundFile) rewriteDirectoryChain() error {
	// The root entry records where the mini-stream lives, so size the
	// mini-stream to the mini-FAT before the entry is serialized below.
	root := c.dir.root()
	rootStart, err := c.rootView.setLength(uint64(len(c.fat.minifat)) * MiniSectorLen)
	if err != nil {
		return err
	}
	root.Start, root.Size = rootStart, c.rootView.Len()

	perSector := c.hdr.Version.DirEntriesPerSector()
	for len(c.dir.entries)%perSector != 0 {
		c.dir.entries = append(c.dir.entries, freeDirEntry())
	}
	needed := len(c.dir.entries) / perSector

	view, err := newStreamView(c.fat, c.sec, c.hdr.FirstDirSector, uint64(needed)*uint64(c.hdr.Version.SectorLen()))
	if err != nil {
		return err
	}
	newStart, err := view.setLength(uint64(needed) * uint64(c.hdr.Version.SectorLen()))
	if err != nil {
		return err
	}
	c.hdr.FirstDirSector = newStart
	c.hdr.NumDirSectors = 0
	if c.hdr.Version == V4 {
		c.hdr.NumDirSectors = uint32(needed)
	}

	buf := make([]byte, 0, DirEntryLen*perSector)
	bw := &byteWriter{}
	for _, e := range c.dir.entries {
		bw.reset()
		if err := e.writeTo(bw, c.hdr.Version); err != nil {
			return err
		}
		buf = append(buf, bw.b...)
	}
	if _, err := view.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err = view.Write(buf)
	return err
}

// rewriteFatAndDifat sizes the root entry's mini-stream to the mini-FAT,
// writes the mini-FAT into freshly allocated sectors, then writes the whole
// FAT into freshly allocated FAT sectors and lists them in the header's
// DIFAT. Chains recorded in the directory keep their sector IDs.
func (c *CompoundFile) rewriteFatAndDifat() error {
	root := c.dir.root()
	miniView := c.rootView
	needed := uint64(len(c.fat.minifat)) * MiniSectorLen
	newStart, err := miniView.setLength(needed)
	if err != nil {
		return err
	}
	root.Start = newStart
	root.Size = needed
	c.rootView = miniView

	entriesPerFat := c.hdr.Version.FatEntriesPerSector()
	minifatSectorsNeeded := int(ceilDiv(int64(len(c.fat.minifat)), int64(entriesPerFat)))

	oldMiniFatStart := c.hdr.FirstMiniFat
	if oldMiniFatStart != sectorID(EndOfChain) {
		_ = c.fat.freeChain(oldMiniFatStart)
	}
	var miniFatStart sectorID = sectorID(EndOfChain)
	var miniFatTail sectorID = sectorID(EndOfChain)
	for i := 0; i < minifatSectorsNeeded; i++ {
		id := c.fat.allocateSector()
		if miniFatStart == sectorID(EndOfChain) {
			miniFatStart = id
		}
		if miniFatTail != sectorID(EndOfChain) {
			c.fat.fat[miniFatTail] = id
		}
		c.fat.fat[id] = sectorID(EndOfChain)
		miniFatTail = id

		buf := make([]byte, c.sec.sectorLen())
		for j := 0; j < entriesPerFat; j++ {
			idx := i*entriesPerFat + j
			v := sectorID(FreeSect)
			if idx < len(c.fat.minifat) {
				v = c.fat.minifat[idx]
			}
			binary.LittleEndian.PutUint32(buf[j*4:j*4+4], uint32(v))
		}
		if err := c.sec.set(id, buf); err != nil {
			return err
		}
	}
	c.hdr.FirstMiniFat = miniFatStart
	c.hdr.NumMiniFat = uint32(minifatSectorsNeeded)

	fatSectorsNeeded := int(ceilDiv(int64(len(c.fat.fat))+int64(minifatSectorsNeeded)+1, int64(entriesPerFat)))
	fatSectorIDs := make([]sectorID, fatSectorsNeeded)
	for i := range fatSectorIDs {
		fatSectorIDs[i] = c.fat.allocateSector()
	}
	for _, id := range fatSectorIDs {
		if int(id) >= len(c.fat.fat) {
			for sectorID(len(c.fat.fat)) <= id {
				c.fat.fat = append(c.fat.fat, sectorID(FreeSect))
			}
		}
		c.fat.fat[id] = sectorID(FatSect)
	}

	for i, id := range fatSectorIDs {
		buf := make([]byte, c.sec.sectorLen())
		for j := 0; j < entriesPerFat; j++ {
			idx := i*entriesPerFat + j
			v := sectorID(FreeSect)
			if idx < len(c.fat.fat) {
				v = c.fat.fat[idx]
			}
			binary.LittleEndian.PutUint32(buf[j*4:j*4+4], uint32(v))
		}
		if err := c.sec.set(id, buf); err != nil {
			return err
		}
	}
	c.hdr.NumFatSectors = uint32(len(fatSectorIDs))

	for i := range c.hdr.InitialDifat {
		if i < len(fatSectorIDs) {
			c.hdr.InitialDifat[i] = fatSectorIDs[i]
		} else {
			c.hdr.InitialDifat[i] = sectorID(FreeSect)
		}
	}
	if len(fatSectorIDs) > NumDifatEntriesInHeader {
		// Commit writes no overflow DIFAT sectors. They are only needed
		// once a file exceeds 109 FAT sectors (13,952 regular sectors in
		// a v3 file, 111,616 in a v4 file), well beyond what the test
		// fixtures in this repo exercise.
		return errInvalidOp("file requires an overflow DIFAT chain, which Commit does not yet write")
	}
	c.hdr.FirstDifat = sectorID(EndOfChain)
	c.hdr.NumDifat = 0

	c.fat.difatSectors = nil
	c.dirDirty = false
	return nil
}

// byteWriter is a tiny io.Writer over a growable slice, used to marshal
// one directory entry at a time without round-tripping through bytes.Buffer.
type byteWriter struct{ b []byte }

func (w *byteWriter) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}
func (w *byteWriter) reset() { w.b = w.b[:0] }

// Shrink compacts a file by building a brand new compound file containing
// the same hierarchy and overwriting the source with it, reclaiming every
// sector Commit's incremental rebuild never frees outright (tombstoned
// directory slots, orphaned chains from a long edit history). [MS-CFB]
// only permits this for v3; v4's range-lock sector makes rewriting a v4
// file below the 2 GiB watermark unsafe, so Shrink on a v4 file returns
// ErrInvalidOperation. Grounded on poifs's NPOIFSFileSystem.writeFilesystem,
// which likewise always serializes a full fresh copy rather than patching
// sectors in place.
func (c *CompoundFile) Shrink() error {
	if err := c.requireUpdate(); err != nil {
		return err
	}
	if c.hdr.Version != V3 {
		return errInvalidOp("Shrink is only supported for v3 compound files")
	}

	scratch := &scratchBuffer{}
	clone, err := Create(scratch, V3, c.opts)
	if err != nil {
		return err
	}
	if err := cloneHierarchy(c.RootStorage(), clone.RootStorage()); err != nil {
		return err
	}
	applyItemMeta(clone.dir.root(), newItem(c.dir.root(), "/", RootEntryID))
	if err := clone.Commit(); err != nil {
		return err
	}
	if err := clone.Close(); err != nil {
		return err
	}

	if _, err := c.writable.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := c.writable.Write(scratch.buf); err != nil {
		return err
	}
	if t, ok := c.writable.(truncater); ok {
		if err := t.Truncate(int64(len(scratch.buf))); err != nil {
			return err
		}
	}
	if _, err := c.writable.Seek(0, io.SeekStart); err != nil {
		return err
	}

	reopened, err := Open(c.backing, Update, c.opts)
	if err != nil {
		return err
	}
	c.hdr, c.dir, c.fat, c.sec, c.rootView = reopened.hdr, reopened.dir, reopened.fat, reopened.sec, reopened.rootView
	c.dirDirty = false
	return nil
}

// cloneHierarchy recursively copies every descendant of src into dst,
// preserving each entry's CLSID, state bits, and timestamps. Grounded on
// naqvis-poi4go/poifs's property-table rebuild during writeFilesystem,
// adapted to this package's Storage/Stream handles.
func cloneHierarchy(src, dst *Storage) error {
	for _, item := range src.ListEntries() {
		switch item.Type {
		case TypeStorage:
			child, err := dst.AddStorage(item.Name, item.CLSID)
			if err != nil {
				return err
			}
			applyItemMeta(child.entry(), item)
			srcChild, err := src.OpenStorage(item.Name)
			if err != nil {
				return err
			}
			if err := cloneHierarchy(srcChild, child); err != nil {
				return err
			}
		case TypeStream:
			srcStream, err := src.OpenStream(item.Name)
			if err != nil {
				return err
			}
			data := make([]byte, srcStream.Len())
			if len(data) > 0 {
				if _, err := srcStream.Seek(0, io.SeekStart); err != nil {
					return err
				}
				if _, err := io.ReadFull(srcStream, data); err != nil {
					return err
				}
			}
			dstStream, err := dst.AddStream(item.Name, data)
			if err != nil {
				return err
			}
			applyItemMeta(dstStream.entry(), item)
		}
	}
	return nil
}

func applyItemMeta(e *dirEntry, item Item) {
	e.CLSID = item.CLSID
	e.State = item.StateBits
	e.Created = timeToFiletime(item.Created)
	e.Mod = timeToFiletime(item.Modified)
}

// scratchBuffer is an in-memory io.ReadWriteSeeker with Truncate, used by
// Shrink to assemble a compacted copy of a compound file before
// overwriting the original backing stream in one pass.
type scratchBuffer struct {
	buf []byte
	pos int64
}

func (b *scratchBuffer) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = b.pos + offset
	case io.SeekEnd:
		newPos = int64(len(b.buf)) + offset
	default:
		return 0, errInvalidArg("invalid whence %d", whence)
	}
	if newPos < 0 {
		return 0, errInvalidArg("negative seek position %d", newPos)
	}
	b.pos = newPos
	return newPos, nil
}

func (b *scratchBuffer) Read(p []byte) (int, error) {
	if b.pos >= int64(len(b.buf)) {
		return 0, io.EOF
	}
	n := copy(p, b.buf[b.pos:])
	b.pos += int64(n)
	return n, nil
}

func (b *scratchBuffer) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.buf)) {
		grown := make([]byte, end)
		copy(grown, b.buf)
		b.buf = grown
	}
	n := copy(b.buf[b.pos:end], p)
	b.pos += int64(n)
	return n, nil
}

func (b *scratchBuffer) Truncate(size int64) error {
	if size <= int64(len(b.buf)) {
		b.buf = b.buf[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, b.buf)
	b.buf = grown
	return nil
}
