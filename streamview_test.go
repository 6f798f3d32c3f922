package mscfb

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamViewGrowWriteReadRoundTrip(t *testing.T) {
	mf := &memFile{}
	sec := newSectors(V3, int64(V3.SectorLen()), mf)
	fm := newFatManager(sec, []sectorID{}, nil, nil, OpenOptions{})

	view, err := newStreamView(fm, sec, sectorID(EndOfChain), 0)
	require.NoError(t, err)

	data := make([]byte, V3.SectorLen()*3+17)
	for i := range data {
		data[i] = byte(i % 251)
	}

	newStart, err := view.setLength(uint64(len(data)))
	require.NoError(t, err)
	require.NotEqual(t, sectorID(EndOfChain), newStart)

	_, err = view.Seek(0, io.SeekStart)
	require.NoError(t, err)
	_, err = view.Write(data)
	require.NoError(t, err)

	readBack := make([]byte, len(data))
	_, err = view.Seek(0, io.SeekStart)
	require.NoError(t, err)
	_, err = io.ReadFull(view, readBack)
	require.NoError(t, err)
	require.Equal(t, data, readBack)
}

func TestStreamViewShrinkFreesTrailingSectors(t *testing.T) {
	mf := &memFile{}
	sec := newSectors(V3, int64(V3.SectorLen()), mf)
	fm := newFatManager(sec, []sectorID{}, nil, nil, OpenOptions{})

	view, err := newStreamView(fm, sec, sectorID(EndOfChain), 0)
	require.NoError(t, err)
	_, err = view.setLength(uint64(V3.SectorLen() * 4))
	require.NoError(t, err)
	require.Len(t, view.ids, 4)

	_, err = view.setLength(uint64(V3.SectorLen()))
	require.NoError(t, err)
	require.Len(t, view.ids, 1)
}

func TestMiniStreamViewOverRootChain(t *testing.T) {
	mf := &memFile{}
	sec := newSectors(V3, int64(V3.SectorLen()), mf)
	fm := newFatManager(sec, []sectorID{}, nil, nil, OpenOptions{})

	root, err := newStreamView(fm, sec, sectorID(EndOfChain), 0)
	require.NoError(t, err)
	_, err = root.setLength(uint64(V3.SectorLen()))
	require.NoError(t, err)

	mini, err := newMiniStreamView(fm, root, sectorID(EndOfChain), 0)
	require.NoError(t, err)

	data := []byte("hello mini stream")
	_, err = mini.setLength(uint64(len(data)))
	require.NoError(t, err)
	_, err = mini.Seek(0, io.SeekStart)
	require.NoError(t, err)
	_, err = mini.Write(data)
	require.NoError(t, err)

	readBack := make([]byte, len(data))
	_, err = mini.Seek(0, io.SeekStart)
	require.NoError(t, err)
	_, err = io.ReadFull(mini, readBack)
	require.NoError(t, err)
	require.Equal(t, data, readBack)
}
