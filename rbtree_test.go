package mscfb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeNodes is a minimal rbNodes backing store for exercising the tree
// algorithms in isolation from directory/on-disk concerns.
type fakeNodes struct {
	colors []rbColor
	lefts  []StreamID
	rights []StreamID
	names  []string
}

func newFakeNodes() *fakeNodes { return &fakeNodes{} }

func (n *fakeNodes) add(name string) StreamID {
	n.colors = append(n.colors, red)
	n.lefts = append(n.lefts, nilSID)
	n.rights = append(n.rights, nilSID)
	n.names = append(n.names, name)
	return StreamID(len(n.names) - 1)
}

func (n *fakeNodes) color(id StreamID) rbColor      { return n.colors[id] }
func (n *fakeNodes) setColor(id StreamID, c rbColor) { n.colors[id] = c }
func (n *fakeNodes) left(id StreamID) StreamID       { return n.lefts[id] }
func (n *fakeNodes) setLeft(id StreamID, v StreamID) { n.lefts[id] = v }
func (n *fakeNodes) right(id StreamID) StreamID        { return n.rights[id] }
func (n *fakeNodes) setRight(id StreamID, v StreamID)  { n.rights[id] = v }
func (n *fakeNodes) name(id StreamID) string           { return n.names[id] }

// checkRBInvariants walks the tree and verifies the standard red-black
// properties: no red node has a red child, and every path from root to a
// nil leaf passes through the same number of black nodes.
func checkRBInvariants(t *testing.T, ns *fakeNodes, root StreamID) {
	t.Helper()
	var blackHeight func(id StreamID) int
	blackHeight = func(id StreamID) int {
		if id == nilSID {
			return 1
		}
		if ns.color(id) == red {
			l, r := ns.left(id), ns.right(id)
			if l != nilSID {
				require.Equal(t, black, ns.color(l), "red node %d has red left child", id)
			}
			if r != nilSID {
				require.Equal(t, black, ns.color(r), "red node %d has red right child", id)
			}
		}
		lh := blackHeight(ns.left(id))
		rh := blackHeight(ns.right(id))
		require.Equal(t, lh, rh, "unequal black height under node %d", id)
		if ns.color(id) == black {
			return lh + 1
		}
		return lh
	}
	if root != nilSID {
		require.Equal(t, black, ns.color(root), "root must be black")
	}
	blackHeight(root)
}

// checkInOrder verifies an in-order traversal visits names in compareNames order.
func checkInOrder(t *testing.T, ns *fakeNodes, root StreamID) []string {
	t.Helper()
	var out []string
	var walk func(id StreamID)
	walk = func(id StreamID) {
		if id == nilSID {
			return
		}
		walk(ns.left(id))
		out = append(out, ns.name(id))
		walk(ns.right(id))
	}
	walk(root)
	for i := 1; i < len(out); i++ {
		require.Less(t, compareNames(out[i-1], out[i]), 0, "names out of order: %q then %q", out[i-1], out[i])
	}
	return out
}

func TestRBInsertMaintainsInvariants(t *testing.T) {
	ns := newFakeNodes()
	root := nilSID
	names := []string{"mango", "apple", "zebra", "banana", "cherry", "date", "fig", "grape", "kiwi", "lemon"}
	for _, name := range names {
		id := ns.add(name)
		var err error
		root, err = rbInsert(ns, root, id)
		require.NoError(t, err)
		checkRBInvariants(t, ns, root)
	}
	got := checkInOrder(t, ns, root)
	require.Len(t, got, len(names))
}

func TestRBInsertRejectsDuplicate(t *testing.T) {
	ns := newFakeNodes()
	root := nilSID
	id1 := ns.add("same")
	var err error
	root, err = rbInsert(ns, root, id1)
	require.NoError(t, err)

	id2 := ns.add("same")
	_, err = rbInsert(ns, root, id2)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrDuplicatedItem)
}

func TestRBDeleteMaintainsInvariants(t *testing.T) {
	ns := newFakeNodes()
	root := nilSID
	names := []string{"mango", "apple", "zebra", "banana", "cherry", "date", "fig", "grape", "kiwi", "lemon"}
	ids := make(map[string]StreamID)
	for _, name := range names {
		id := ns.add(name)
		ids[name] = id
		var err error
		root, err = rbInsert(ns, root, id)
		require.NoError(t, err)
	}

	for _, name := range []string{"apple", "kiwi", "mango"} {
		root = rbDelete(ns, root, ids[name])
		checkRBInvariants(t, ns, root)
	}

	remaining := checkInOrder(t, ns, root)
	require.NotContains(t, remaining, "apple")
	require.NotContains(t, remaining, "kiwi")
	require.NotContains(t, remaining, "mango")
	require.Len(t, remaining, len(names)-3)
}

func TestRBFind(t *testing.T) {
	ns := newFakeNodes()
	root := nilSID
	for _, name := range []string{"b", "a", "c"} {
		id := ns.add(name)
		var err error
		root, err = rbInsert(ns, root, id)
		require.NoError(t, err)
	}
	require.NotEqual(t, nilSID, rbFind(ns, root, "a"))
	require.Equal(t, nilSID, rbFind(ns, root, "missing"))
}
