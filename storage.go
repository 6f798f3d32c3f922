package mscfb

import "github.com/google/uuid"

// Storage is a handle onto one storage (directory-like) entry, grounded
// on the teacher's Directory/Entries pair (directory.go) but reshaped
// into the facade described in the design notes: every mutating method
// goes through the owning CompoundFile so commit/dirty tracking stays
// centralized.
type Storage struct {
	cf   *CompoundFile
	sid  StreamID
	path string
}

func (s *Storage) entry() *dirEntry { return s.cf.dir.get(s.sid) }

// Name returns the storage's own name ("Root Entry" for the root).
func (s *Storage) Name() string { return s.entry().Name }

// Path returns the absolute slash-separated path to this storage.
func (s *Storage) Path() string { return s.path }

// ListEntries returns the immediate children of this storage, in
// directory order (i.e. an in-order walk of the sibling tree, which
// matches compareNames order).
func (s *Storage) ListEntries() []Item {
	if err := s.cf.checkOpen(); err != nil {
		return nil
	}
	var out []Item
	var walk func(id StreamID)
	walk = func(id StreamID) {
		if id == nilSID {
			return
		}
		e := s.cf.dir.get(id)
		walk(e.Left)
		out = append(out, newItem(e, PathFromNameChain(append(splitNonEmpty(s.path), e.Name)), id))
		walk(e.Right)
	}
	walk(s.entry().Child)
	return out
}

func splitNonEmpty(path string) []string {
	names := NameChainFromPath(path)
	return names
}

// VisitFunc is called once per descendant during Storage.Visit. Returning
// stop=true ends the walk early without an error; a non-nil err aborts
// the walk and is propagated to Visit's caller.
type VisitFunc func(item Item) (stop bool, err error)

// Visit performs a pre-order walk of this storage's descendants.
func (s *Storage) Visit(fn VisitFunc) error {
	if err := s.cf.checkOpen(); err != nil {
		return err
	}
	var walk func(id StreamID, path string) (bool, error)
	walk = func(id StreamID, path string) (bool, error) {
		if id == nilSID {
			return false, nil
		}
		e := s.cf.dir.get(id)
		if stop, err := walk(e.Left, path); stop || err != nil {
			return stop, err
		}
		itemPath := PathFromNameChain(append(splitNonEmpty(path), e.Name))
		stop, err := fn(newItem(e, itemPath, id))
		if stop || err != nil {
			return stop, err
		}
		if e.Type == TypeStorage {
			if stop, err := (&Storage{cf: s.cf, sid: id, path: itemPath}).visitChildren(fn); stop || err != nil {
				return stop, err
			}
		}
		return walk(e.Right, path)
	}
	_, err := walk(s.entry().Child, s.path)
	return err
}

func (s *Storage) visitChildren(fn VisitFunc) (bool, error) {
	var walk func(id StreamID) (bool, error)
	walk = func(id StreamID) (bool, error) {
		if id == nilSID {
			return false, nil
		}
		e := s.cf.dir.get(id)
		if stop, err := walk(e.Left); stop || err != nil {
			return stop, err
		}
		itemPath := PathFromNameChain(append(splitNonEmpty(s.path), e.Name))
		stop, err := fn(newItem(e, itemPath, id))
		if stop || err != nil {
			return stop, err
		}
		if e.Type == TypeStorage {
			if stop, err := (&Storage{cf: s.cf, sid: id, path: itemPath}).visitChildren(fn); stop || err != nil {
				return stop, err
			}
		}
		return walk(e.Right)
	}
	return walk(s.entry().Child)
}

// OpenStorage returns the child storage named name, or ErrNotFound.
func (s *Storage) OpenStorage(name string) (*Storage, error) {
	if err := s.cf.checkOpen(); err != nil {
		return nil, err
	}
	id := rbFind(s.cf.dir, s.entry().Child, name)
	if id == nilSID {
		return nil, errNotFound("no such storage %q", name)
	}
	e := s.cf.dir.get(id)
	if e.Type != TypeStorage {
		return nil, errInvalidArg("%q is not a storage", name)
	}
	return &Storage{cf: s.cf, sid: id, path: PathFromNameChain(append(splitNonEmpty(s.path), name))}, nil
}

// OpenStream returns the child stream named name, or ErrNotFound.
func (s *Storage) OpenStream(name string) (*Stream, error) {
	if err := s.cf.checkOpen(); err != nil {
		return nil, err
	}
	id := rbFind(s.cf.dir, s.entry().Child, name)
	if id == nilSID {
		return nil, errNotFound("no such stream %q", name)
	}
	e := s.cf.dir.get(id)
	if e.Type != TypeStream {
		return nil, errInvalidArg("%q is not a stream", name)
	}
	return s.cf.openStreamAt(id)
}

// AddStorage creates a new child storage named name. An optional clsid
// seeds the new storage's CLSID field; with no argument the CLSID stays
// the zero UUID, matching a freshly created storage's on-disk default.
func (s *Storage) AddStorage(name string, clsid ...uuid.UUID) (*Storage, error) {
	if err := s.cf.requireUpdate(); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	if rbFind(s.cf.dir, s.entry().Child, name) != nilSID {
		return nil, errDuplicated("a storage or stream named %q already exists", name)
	}
	e := newDirEntry(name, TypeStorage)
	if len(clsid) > 0 {
		e.CLSID = clsid[0]
	}
	now := s.cf.now()
	e.Created, e.Mod = now, now
	id := s.cf.dir.insert(e)
	newRoot, err := rbInsert(s.cf.dir, s.entry().Child, id)
	if err != nil {
		s.cf.dir.remove(id)
		return nil, err
	}
	s.entry().Child = newRoot
	s.cf.touchDirectory()
	return &Storage{cf: s.cf, sid: id, path: PathFromNameChain(append(splitNonEmpty(s.path), name))}, nil
}

// AddStream creates a new child stream named name with the given initial
// contents.
func (s *Storage) AddStream(name string, data []byte) (*Stream, error) {
	if err := s.cf.requireUpdate(); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	if rbFind(s.cf.dir, s.entry().Child, name) != nilSID {
		return nil, errDuplicated("a storage or stream named %q already exists", name)
	}
	e := newDirEntry(name, TypeStream)
	now := s.cf.now()
	e.Created, e.Mod = now, now
	id := s.cf.dir.insert(e)
	newRoot, err := rbInsert(s.cf.dir, s.entry().Child, id)
	if err != nil {
		s.cf.dir.remove(id)
		return nil, err
	}
	s.entry().Child = newRoot
	s.cf.touchDirectory()

	stream, err := s.cf.openStreamAt(id)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := stream.SetData(data); err != nil {
			return nil, err
		}
	}
	return stream, nil
}

// Delete removes the named child. Per §4.E, deleting a non-empty storage
// first recursively deletes every descendant of that storage.
func (s *Storage) Delete(name string) error {
	if err := s.cf.requireUpdate(); err != nil {
		return err
	}
	id := rbFind(s.cf.dir, s.entry().Child, name)
	if id == nilSID {
		return errNotFound("no such entry %q", name)
	}
	e := s.cf.dir.get(id)
	if e.Type == TypeStorage && e.Child != nilSID {
		child := &Storage{cf: s.cf, sid: id, path: PathFromNameChain(append(splitNonEmpty(s.path), e.Name))}
		for _, item := range child.ListEntries() {
			if err := child.Delete(item.Name); err != nil {
				return err
			}
		}
	}
	if e.Type == TypeStream {
		if err := s.cf.freeStreamData(e); err != nil {
			return err
		}
	}
	newRoot := rbDelete(s.cf.dir, s.entry().Child, id)
	s.entry().Child = newRoot
	s.cf.dir.remove(id)
	s.cf.touchDirectory()
	return nil
}

// Rename changes the name of the child currently called oldName to
// newName. Implemented as remove-then-reinsert, since the sibling tree is
// ordered by name and an in-place rename could violate the ordering
// invariant.
func (s *Storage) Rename(oldName, newName string) error {
	if err := s.cf.requireUpdate(); err != nil {
		return err
	}
	if err := validateName(newName); err != nil {
		return err
	}
	id := rbFind(s.cf.dir, s.entry().Child, oldName)
	if id == nilSID {
		return errNotFound("no such entry %q", oldName)
	}
	if rbFind(s.cf.dir, s.entry().Child, newName) != nilSID {
		return errDuplicated("a storage or stream named %q already exists", newName)
	}
	newRoot := rbDelete(s.cf.dir, s.entry().Child, id)
	e := s.cf.dir.get(id)
	e.Name = newName
	newRoot, err := rbInsert(s.cf.dir, newRoot, id)
	if err != nil {
		return err
	}
	s.entry().Child = newRoot
	s.cf.touchDirectory()
	return nil
}
