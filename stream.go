package mscfb

import "io"

// Stream is a handle onto one stream entry's data, grounded on the
// teacher's Stream (stream.go) but generalized from a fixed-buffer reader
// into a full Read/Write/Seek cursor backed by streamView, with
// mini-stream/normal-FAT promotion and demotion handled transparently by
// the owning CompoundFile as the stream crosses the cutoff.
type Stream struct {
	cf   *CompoundFile
	sid  StreamID
	view *streamView
}

func (s *Stream) entry() *dirEntry { return s.cf.dir.get(s.sid) }

func (s *Stream) Read(p []byte) (int, error) {
	if err := s.cf.checkOpen(); err != nil {
		return 0, err
	}
	return s.view.Read(p)
}

func (s *Stream) Seek(off int64, whence int) (int64, error) {
	if err := s.cf.checkOpen(); err != nil {
		return 0, err
	}
	return s.view.Seek(off, whence)
}

func (s *Stream) Len() uint64 {
	if err := s.cf.checkOpen(); err != nil {
		return 0
	}
	return s.view.Len()
}

// Write writes p at the current position, extending the stream (per §4.B)
// if position+len(p) runs past the current length. An extending write may
// promote the stream from the mini-stream into normal-FAT storage, so the
// write is always routed through resizeStream first to keep that crossing
// centralized in one place.
func (s *Stream) Write(p []byte) (int, error) {
	if err := s.cf.requireUpdate(); err != nil {
		return 0, err
	}
	pos, err := s.view.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	if end := uint64(pos) + uint64(len(p)); end > s.view.Len() {
		if err := s.cf.resizeStream(s.sid, end); err != nil {
			return 0, err
		}
		view, err := s.cf.streamViewFor(s.sid)
		if err != nil {
			return 0, err
		}
		if _, err := view.Seek(pos, io.SeekStart); err != nil {
			return 0, err
		}
		s.view = view
	}
	n, err := s.view.Write(p)
	e := s.cf.dir.get(s.sid)
	e.Size = s.view.Len()
	e.Start = s.view.start
	e.Mod = s.cf.now()
	s.cf.touchDirectory()
	return n, err
}

// Resize changes the stream's length to newLen, promoting to normal-FAT
// storage or demoting to the mini-stream as newLen crosses the cutoff
// (§4.G), and persists the new start sector and size into the directory
// entry.
func (s *Stream) Resize(newLen uint64) error {
	if err := s.cf.requireUpdate(); err != nil {
		return err
	}
	return s.cf.resizeStream(s.sid, newLen)
}

// SetData replaces the stream's entire contents.
func (s *Stream) SetData(data []byte) error {
	if err := s.Resize(uint64(len(data))); err != nil {
		return err
	}
	view, err := s.cf.streamViewFor(s.sid)
	if err != nil {
		return err
	}
	s.view = view
	if len(data) == 0 {
		return nil
	}
	if _, err := s.view.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err = s.view.Write(data)
	return err
}

// Append grows the stream by len(data) and writes data at the new tail.
func (s *Stream) Append(data []byte) error {
	oldLen := s.view.Len()
	if err := s.Resize(oldLen + uint64(len(data))); err != nil {
		return err
	}
	view, err := s.cf.streamViewFor(s.sid)
	if err != nil {
		return err
	}
	s.view = view
	if _, err := s.view.Seek(int64(oldLen), io.SeekStart); err != nil {
		return err
	}
	_, err = s.view.Write(data)
	return err
}

// CopyFrom replaces the stream's contents with everything read from r.
func (s *Stream) CopyFrom(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return s.SetData(data)
}
