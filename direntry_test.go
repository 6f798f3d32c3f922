package mscfb

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirEntryRoundTripV4(t *testing.T) {
	e := newDirEntry("hello.txt", TypeStream)
	e.Size = 1 << 40 // exercises the high 32 bits, only representable under v4
	e.Start = 7
	e.State = 0xdeadbeef

	var buf bytes.Buffer
	require.NoError(t, e.writeTo(&buf, V4))
	require.Equal(t, DirEntryLen, buf.Len())

	got, err := readDirEntry(&buf, V4)
	require.NoError(t, err)
	require.Equal(t, e.Name, got.Name)
	require.Equal(t, e.Size, got.Size)
	require.Equal(t, e.Start, got.Start)
	require.Equal(t, e.State, got.State)
}

func TestDirEntryV3IgnoresUpperSizeBits(t *testing.T) {
	e := newDirEntry("s", TypeStream)
	e.Size = 4096
	e.Start = 3

	var buf bytes.Buffer
	require.NoError(t, e.writeTo(&buf, V3))
	raw := buf.Bytes()
	// Simulate a non-conforming writer leaving garbage in the unused
	// upper 32 bits of the v3 size field (Open Question (c)).
	raw[124], raw[125], raw[126], raw[127] = 0xff, 0xff, 0xff, 0xff

	got, err := readDirEntry(bytes.NewReader(raw), V3)
	require.NoError(t, err)
	require.Equal(t, uint64(4096), got.Size)
}

func TestFreeDirEntryRoundTrip(t *testing.T) {
	e := freeDirEntry()
	var buf bytes.Buffer
	require.NoError(t, e.writeTo(&buf, V4))
	got, err := readDirEntry(&buf, V4)
	require.NoError(t, err)
	require.True(t, got.isFree())
	require.Equal(t, "", got.Name)
}

func TestDirEntryRejectsBadObjectType(t *testing.T) {
	e := newDirEntry("x", TypeStream)
	var buf bytes.Buffer
	require.NoError(t, e.writeTo(&buf, V4))
	raw := buf.Bytes()
	raw[66] = 0x7f // not one of the four valid object type codes

	_, err := readDirEntry(bytes.NewReader(raw), V4)
	require.Error(t, err)
}
