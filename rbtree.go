package mscfb

// rbNodes is the storage interface the red-black tree operates over. A
// directory is a flat array of entries addressed by StreamID; each
// non-free entry optionally roots a red-black tree of its immediate
// children, ordered by compareNames. Unlike poifs's DirectoryProperty
// (which only ever does a one-time midpoint split when writing and never
// rebalances), this is a genuine red-black tree: insert and delete perform
// real rotations and recoloring, because entries persist across repeated
// add/delete/rename cycles and must stay balanced throughout.
type rbNodes interface {
	color(id StreamID) rbColor
	setColor(id StreamID, c rbColor)
	left(id StreamID) StreamID
	setLeft(id StreamID, v StreamID)
	right(id StreamID) StreamID
	setRight(id StreamID, v StreamID)
	name(id StreamID) string
}

const nilSID = NoStream

// rbInsert inserts newID, whose name has already been set in ns, into the
// tree rooted at root, and returns the new root. Returns ErrDuplicatedItem
// if a sibling with the same name (per compareNames) already exists.
func rbInsert(ns rbNodes, root StreamID, newID StreamID) (StreamID, error) {
	ns.setColor(newID, red)
	ns.setLeft(newID, nilSID)
	ns.setRight(newID, nilSID)

	if root == nilSID {
		ns.setColor(newID, black)
		return newID, nil
	}

	cur := root
	for {
		c := compareNames(ns.name(newID), ns.name(cur))
		if c == 0 {
			return root, errDuplicated("a sibling named %q already exists", ns.name(newID))
		}
		if c < 0 {
			if ns.left(cur) == nilSID {
				ns.setLeft(cur, newID)
				break
			}
			cur = ns.left(cur)
		} else {
			if ns.right(cur) == nilSID {
				ns.setRight(cur, newID)
				break
			}
			cur = ns.right(cur)
		}
	}

	return rbFixupInsert(ns, root, newID, rbParentMap(ns, root))
}

// rbParentMap rebuilds a child->parent lookup by walking the whole tree,
// since the on-disk format has no parent pointer (§4.D). Trees of
// directory siblings are small (one per storage), so a full walk per
// mutation is cheap relative to the I/O around it. The root maps to nilSID.
func rbParentMap(ns rbNodes, root StreamID) map[StreamID]StreamID {
	parent := make(map[StreamID]StreamID)
	if root != nilSID {
		parent[root] = nilSID
	}
	var walk func(id StreamID)
	walk = func(id StreamID) {
		if id == nilSID {
			return
		}
		if l := ns.left(id); l != nilSID {
			parent[l] = id
			walk(l)
		}
		if r := ns.right(id); r != nilSID {
			parent[r] = id
			walk(r)
		}
	}
	walk(root)
	return parent
}

func rbFixupInsert(ns rbNodes, root StreamID, z StreamID, parent map[StreamID]StreamID) (StreamID, error) {
	for parent[z] != nilSID && ns.color(parent[z]) == red {
		p := parent[z]
		gp := parent[p]
		if gp == nilSID {
			break
		}
		if p == ns.left(gp) {
			uncle := ns.right(gp)
			if uncle != nilSID && ns.color(uncle) == red {
				ns.setColor(p, black)
				ns.setColor(uncle, black)
				ns.setColor(gp, red)
				z = gp
				continue
			}
			if z == ns.right(p) {
				z = p
				root = rbRotateLeft(ns, root, z, parent)
				p = parent[z]
				gp = parent[p]
			}
			ns.setColor(p, black)
			ns.setColor(gp, red)
			root = rbRotateRight(ns, root, gp, parent)
		} else {
			uncle := ns.left(gp)
			if uncle != nilSID && ns.color(uncle) == red {
				ns.setColor(p, black)
				ns.setColor(uncle, black)
				ns.setColor(gp, red)
				z = gp
				continue
			}
			if z == ns.left(p) {
				z = p
				root = rbRotateRight(ns, root, z, parent)
				p = parent[z]
				gp = parent[p]
			}
			ns.setColor(p, black)
			ns.setColor(gp, red)
			root = rbRotateLeft(ns, root, gp, parent)
		}
	}
	ns.setColor(root, black)
	return root, nil
}

func rbRotateLeft(ns rbNodes, root StreamID, x StreamID, parent map[StreamID]StreamID) StreamID {
	y := ns.right(x)
	ns.setRight(x, ns.left(y))
	if ns.left(y) != nilSID {
		parent[ns.left(y)] = x
	}
	parent[y] = parent[x]
	p := parent[x]
	if p == nilSID {
		root = y
	} else if ns.left(p) == x {
		ns.setLeft(p, y)
	} else {
		ns.setRight(p, y)
	}
	ns.setLeft(y, x)
	parent[x] = y
	return root
}

func rbRotateRight(ns rbNodes, root StreamID, x StreamID, parent map[StreamID]StreamID) StreamID {
	y := ns.left(x)
	ns.setLeft(x, ns.right(y))
	if ns.right(y) != nilSID {
		parent[ns.right(y)] = x
	}
	parent[y] = parent[x]
	p := parent[x]
	if p == nilSID {
		root = y
	} else if ns.right(p) == x {
		ns.setRight(p, y)
	} else {
		ns.setLeft(p, y)
	}
	ns.setRight(y, x)
	parent[x] = y
	return root
}

// rbFind walks the tree rooted at root looking for name, returning
// NoStream if absent.
func rbFind(ns rbNodes, root StreamID, name string) StreamID {
	cur := root
	for cur != nilSID {
		c := compareNames(name, ns.name(cur))
		if c == 0 {
			return cur
		}
		if c < 0 {
			cur = ns.left(cur)
		} else {
			cur = ns.right(cur)
		}
	}
	return nilSID
}

// rbDelete removes id from the tree rooted at root and returns the new
// root. Standard CLRS delete: splice out id (or its in-order successor if
// it has two children) and rebalance from the spliced node's replacement.
func rbDelete(ns rbNodes, root StreamID, id StreamID) StreamID {
	parent := rbParentMap(ns, root)
	y := id
	yOrigColor := ns.color(y)
	var x, xParent StreamID

	if ns.left(id) == nilSID {
		x = ns.right(id)
		xParent = parent[id]
		root = rbTransplant(ns, root, id, x, parent)
	} else if ns.right(id) == nilSID {
		x = ns.left(id)
		xParent = parent[id]
		root = rbTransplant(ns, root, id, x, parent)
	} else {
		y = rbMin(ns, ns.right(id))
		yOrigColor = ns.color(y)
		x = ns.right(y)
		if parent[y] == id {
			xParent = y
		} else {
			xParent = parent[y]
			root = rbTransplant(ns, root, y, ns.right(y), parent)
			ns.setRight(y, ns.right(id))
			parent[ns.right(y)] = y
		}
		root = rbTransplant(ns, root, id, y, parent)
		ns.setLeft(y, ns.left(id))
		parent[ns.left(y)] = y
		ns.setColor(y, ns.color(id))
	}

	if yOrigColor == black {
		root = rbFixupDelete(ns, root, x, xParent, parent)
	}
	return root
}

func rbMin(ns rbNodes, id StreamID) StreamID {
	for ns.left(id) != nilSID {
		id = ns.left(id)
	}
	return id
}

func rbTransplant(ns rbNodes, root StreamID, u, v StreamID, parent map[StreamID]StreamID) StreamID {
	p := parent[u]
	if p == nilSID {
		root = v
	} else if ns.left(p) == u {
		ns.setLeft(p, v)
	} else {
		ns.setRight(p, v)
	}
	if v != nilSID {
		parent[v] = p
	}
	return root
}

func rbFixupDelete(ns rbNodes, root StreamID, x StreamID, xParent StreamID, parent map[StreamID]StreamID) StreamID {
	for x != root && (x == nilSID || ns.color(x) == black) {
		if xParent == nilSID {
			break
		}
		if x == ns.left(xParent) {
			w := ns.right(xParent)
			if w != nilSID && ns.color(w) == red {
				ns.setColor(w, black)
				ns.setColor(xParent, red)
				root = rbRotateLeft(ns, root, xParent, parent)
				w = ns.right(xParent)
			}
			if (ns.left(w) == nilSID || ns.color(ns.left(w)) == black) &&
				(ns.right(w) == nilSID || ns.color(ns.right(w)) == black) {
				if w != nilSID {
					ns.setColor(w, red)
				}
				x = xParent
				xParent = parent[x]
				continue
			}
			if ns.right(w) == nilSID || ns.color(ns.right(w)) == black {
				if ns.left(w) != nilSID {
					ns.setColor(ns.left(w), black)
				}
				ns.setColor(w, red)
				root = rbRotateRight(ns, root, w, parent)
				w = ns.right(xParent)
			}
			ns.setColor(w, ns.color(xParent))
			ns.setColor(xParent, black)
			if ns.right(w) != nilSID {
				ns.setColor(ns.right(w), black)
			}
			root = rbRotateLeft(ns, root, xParent, parent)
			x = root
			break
		}
		w := ns.left(xParent)
		if w != nilSID && ns.color(w) == red {
			ns.setColor(w, black)
			ns.setColor(xParent, red)
			root = rbRotateRight(ns, root, xParent, parent)
			w = ns.left(xParent)
		}
		if (ns.right(w) == nilSID || ns.color(ns.right(w)) == black) &&
			(ns.left(w) == nilSID || ns.color(ns.left(w)) == black) {
			if w != nilSID {
				ns.setColor(w, red)
			}
			x = xParent
			xParent = parent[x]
			continue
		}
		if ns.left(w) == nilSID || ns.color(ns.left(w)) == black {
			if ns.right(w) != nilSID {
				ns.setColor(ns.right(w), black)
			}
			ns.setColor(w, red)
			root = rbRotateLeft(ns, root, w, parent)
			w = ns.left(xParent)
		}
		ns.setColor(w, ns.color(xParent))
		ns.setColor(xParent, black)
		if ns.left(w) != nilSID {
			ns.setColor(ns.left(w), black)
		}
		root = rbRotateRight(ns, root, xParent, parent)
		x = root
		break
	}
	if x != nilSID {
		ns.setColor(x, black)
	}
	return root
}
