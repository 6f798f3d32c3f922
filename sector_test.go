package mscfb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSectorsAppendIsZeroFilled(t *testing.T) {
	mf := &memFile{}
	sec := newSectors(V3, int64(V3.SectorLen()), mf)

	id := sec.append()
	buf, err := sec.get(id)
	require.NoError(t, err)
	for _, b := range buf {
		require.Equal(t, byte(0), b)
	}
}

func TestSectorsSetAndFlushRoundTrip(t *testing.T) {
	mf := &memFile{}
	sec := newSectors(V3, int64(V3.SectorLen()), mf)

	id := sec.append()
	payload := make([]byte, sec.sectorLen())
	for i := range payload {
		payload[i] = byte(i % 256)
	}
	require.NoError(t, sec.set(id, payload))
	require.True(t, sec.isDirty(id))
	require.NoError(t, sec.flush())
	require.False(t, sec.isDirty(id))

	// A fresh sectors view over the same backing bytes should read back
	// the flushed payload.
	sec2 := newSectors(V3, int64(len(mf.buf)), mf)
	got, err := sec2.get(id)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestFatManagerChainWalk(t *testing.T) {
	mf := &memFile{}
	sec := newSectors(V3, int64(V3.SectorLen()), mf)
	fm := newFatManager(sec, []sectorID{}, nil, nil, OpenOptions{})

	tail, first, err := fm.extendChain(sectorID(EndOfChain), 3)
	require.NoError(t, err)
	require.NotEqual(t, sectorID(EndOfChain), tail)

	chain, err := fm.chain(first)
	require.NoError(t, err)
	require.Len(t, chain, 3)
}

func TestFatManagerDetectsCycle(t *testing.T) {
	mf := &memFile{}
	sec := newSectors(V3, int64(V3.SectorLen()), mf)
	fat := []sectorID{1, 0} // 0 -> 1 -> 0, a cycle
	sec.append()
	sec.append()
	fm := newFatManager(sec, fat, nil, nil, OpenOptions{})

	_, err := fm.chain(0)
	require.Error(t, err)
}

func TestRangeLockSectorNotNeededBelowThreshold(t *testing.T) {
	mf := &memFile{}
	sec := newSectors(V4, int64(V4.SectorLen()), mf)
	sec.count = sectorID(rangeLockSectorThreshold)

	_, needed := sec.rangeLockSectorID()
	require.False(t, needed)
}

func TestRangeLockSectorNeededPastThreshold(t *testing.T) {
	mf := &memFile{}
	sec := newSectors(V4, int64(V4.SectorLen()), mf)
	sec.count = sectorID(rangeLockSectorThreshold) + 1

	id, needed := sec.rangeLockSectorID()
	require.True(t, needed)

	fm := newFatManager(sec, []sectorID{}, nil, nil, OpenOptions{})
	fm.reserveRangeLockSector(id)
	require.Equal(t, EndOfChain, fm.fat[id])
}

func TestRangeLockSectorNeverNeededForV3(t *testing.T) {
	mf := &memFile{}
	sec := newSectors(V3, int64(V3.SectorLen()), mf)
	sec.count = sectorID(rangeLockSectorThreshold) + 1000

	_, needed := sec.rangeLockSectorID()
	require.False(t, needed)
}

func TestFatManagerFreeChainRecycles(t *testing.T) {
	mf := &memFile{}
	sec := newSectors(V3, int64(V3.SectorLen()), mf)
	fm := newFatManager(sec, []sectorID{}, nil, nil, OpenOptions{SectorRecycle: true})

	_, first, err := fm.extendChain(sectorID(EndOfChain), 2)
	require.NoError(t, err)
	require.NoError(t, fm.freeChain(first))
	require.Len(t, fm.free, 2)

	before := sec.len()
	id := fm.allocateSector()
	require.Equal(t, before, sec.len(), "recycled sector should not grow the file")
	require.False(t, fm.free[id])
}
