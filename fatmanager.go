package mscfb

// fatManager owns the FAT, the mini-FAT, and the DIFAT, and is the sole
// authority for allocating, extending, and freeing sector chains. It is
// grounded on the teacher's Allocator/MiniAlloc pair (alloc.go,
// minialloc.go), generalized from read-only validation into a read-write
// allocator per §4.C.
type fatManager struct {
	sec *sectors

	fat   []sectorID // one entry per regular sector
	minifat []sectorID // one entry per mini-sector

	// difatSectors lists, in order, the sector IDs holding the DIFAT chain
	// that lives beyond the 109 entries carried in the header.
	difatSectors []sectorID

	// free holds sector IDs (regular, not mini) available for reuse when
	// recycling is enabled.
	free map[sectorID]bool
	// miniFree holds free mini-sector indices.
	miniFree map[sectorID]bool

	recycle bool
	erase   bool
}

func newFatManager(sec *sectors, fat, minifat []sectorID, difatSectors []sectorID, opts OpenOptions) *fatManager {
	return &fatManager{
		sec:          sec,
		fat:          fat,
		minifat:      minifat,
		difatSectors: difatSectors,
		free:         make(map[sectorID]bool),
		miniFree:     make(map[sectorID]bool),
		recycle:      opts.SectorRecycle,
		erase:        opts.EraseFreeSectors,
	}
}

// validate checks that the FAT fits the file, that FAT entries point in
// range, and that no sector is pointed to twice; unknown marker values are
// rejected only under strict validation. Whether FAT and DIFAT sectors
// carry their FatSect/DifSect marks is not checked.
func (m *fatManager) validate(v Validation) error {
	if sectorID(len(m.fat)) > m.sec.len() {
		return errCorrupted("FAT has %d entries but file has only %d sectors", len(m.fat), m.sec.len())
	}
	pointees := make(map[sectorID]bool)
	for idx, next := range m.fat {
		if next <= MaxRegSect {
			if int(next) >= len(m.fat) {
				return errCorrupted("FAT entry %d points to out-of-range sector %d", idx, next)
			}
			if pointees[next] {
				return errCorrupted("sector %d is pointed to by more than one FAT entry", next)
			}
			pointees[next] = true
		} else if next != FreeSect && next != EndOfChain && next != FatSect && next != DifSect {
			if v.IsStrict() {
				return errCorrupted("FAT entry %d has invalid marker %#x", idx, next)
			}
		}
	}
	return nil
}

// next returns the sector following id in its chain.
func (m *fatManager) next(id sectorID) (sectorID, error) {
	if int(id) >= len(m.fat) {
		return 0, errCorrupted("FAT index %d out of range", id)
	}
	n := m.fat[id]
	if n != EndOfChain && n != FreeSect && n > MaxRegSect {
		return 0, errCorrupted("FAT entry %d has invalid next pointer %#x", id, n)
	}
	return n, nil
}

// chain walks the FAT starting at start and returns the full list of
// sector IDs, failing on a cycle or an out-of-range pointer.
func (m *fatManager) chain(start sectorID) ([]sectorID, error) {
	if start == EndOfChain || start == FreeSect {
		return nil, nil
	}
	seen := make(map[sectorID]bool)
	out := []sectorID{}
	cur := start
	for cur != EndOfChain {
		if seen[cur] {
			return nil, errCorrupted("sector chain starting at %d contains a cycle at %d", start, cur)
		}
		seen[cur] = true
		out = append(out, cur)
		next, err := m.next(cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return out, nil
}

// allocateSector returns a free sector ID, preferring the recycle pool
// when enabled, appending a new sector to the file otherwise.
func (m *fatManager) allocateSector() sectorID {
	if m.recycle {
		for id := range m.free {
			delete(m.free, id)
			return id
		}
	}
	id := m.sec.append()
	for sectorID(len(m.fat)) <= id {
		m.fat = append(m.fat, FreeSect)
	}
	return id
}

// extendChain appends n additional sectors to the chain ending at tail
// (or starts a new chain if tail is EndOfChain) and returns the new tail.
func (m *fatManager) extendChain(tail sectorID, n int) (newTail sectorID, firstNew sectorID, err error) {
	newTail = tail
	firstNew = EndOfChain
	for i := 0; i < n; i++ {
		id := m.allocateSector()
		if firstNew == EndOfChain {
			firstNew = id
		}
		if newTail != EndOfChain {
			m.fat[newTail] = id
		}
		m.fat[id] = EndOfChain
		newTail = id
	}
	return newTail, firstNew, nil
}

// freeChain walks the chain starting at start, marking every sector free
// (recyclable if recycling is enabled), zeroing payloads when erase is
// set.
func (m *fatManager) freeChain(start sectorID) error {
	cur := start
	for cur != EndOfChain && cur != FreeSect {
		next, err := m.next(cur)
		if err != nil {
			return err
		}
		m.fat[cur] = FreeSect
		if m.recycle {
			m.free[cur] = true
		}
		if m.erase {
			if err := m.sec.set(cur, make([]byte, m.sec.sectorLen())); err != nil {
				return err
			}
		}
		cur = next
	}
	return nil
}

// reserveRangeLockSector marks id as permanently in use without belonging
// to any chain, growing the FAT if id falls past its current end. Called
// from Commit once sectors.rangeLockSectorID reports the file has crossed
// the v4 2 GiB watermark, so the rebuilt FAT doesn't hand that sector out
// to a real stream.
func (m *fatManager) reserveRangeLockSector(id sectorID) {
	for sectorID(len(m.fat)) <= id {
		m.fat = append(m.fat, FreeSect)
	}
	m.fat[id] = EndOfChain
}

// miniNext returns the mini-sector following id in its chain.
func (m *fatManager) miniNext(id sectorID) (sectorID, error) {
	if int(id) >= len(m.minifat) {
		return 0, errCorrupted("mini-FAT index %d out of range", id)
	}
	return m.minifat[id], nil
}

func (m *fatManager) miniChain(start sectorID) ([]sectorID, error) {
	if start == EndOfChain || start == FreeSect {
		return nil, nil
	}
	seen := make(map[sectorID]bool)
	out := []sectorID{}
	cur := start
	for cur != EndOfChain {
		if seen[cur] {
			return nil, errCorrupted("mini-sector chain starting at %d contains a cycle at %d", start, cur)
		}
		seen[cur] = true
		out = append(out, cur)
		next, err := m.miniNext(cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return out, nil
}

func (m *fatManager) allocateMiniSector() sectorID {
	if m.recycle {
		for id := range m.miniFree {
			delete(m.miniFree, id)
			return id
		}
	}
	id := sectorID(len(m.minifat))
	m.minifat = append(m.minifat, EndOfChain)
	return id
}

func (m *fatManager) extendMiniChain(tail sectorID, n int) (newTail sectorID, firstNew sectorID) {
	newTail = tail
	firstNew = EndOfChain
	for i := 0; i < n; i++ {
		id := m.allocateMiniSector()
		if firstNew == EndOfChain {
			firstNew = id
		}
		if newTail != EndOfChain {
			m.minifat[newTail] = id
		}
		m.minifat[id] = EndOfChain
		newTail = id
	}
	return newTail, firstNew
}

func (m *fatManager) freeMiniChain(start sectorID) {
	cur := start
	for cur != EndOfChain && cur != FreeSect {
		next := m.minifat[cur]
		m.minifat[cur] = FreeSect
		if m.recycle {
			m.miniFree[cur] = true
		}
		cur = next
	}
}
