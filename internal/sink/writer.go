package sink

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"turbodecode/internal/errors"
	"turbodecode/pkg/exception"
)

var (
	ErrClosed    = errors.New("sink writer closed")
	ErrLineBreak = errors.New("value contains a line break")
	ErrNoSink    = errors.New("no sink for strategy")
)

// MultiWriter owns one staged output file per strategy. Lines go to
// hidden temp files next to the final paths; Commit renames them into
// place and Abort removes them, so an aborted run never creates or
// modifies a final output file.
type MultiWriter struct {
	cfg    Config
	names  []string
	sinks  map[string]*stagedFile
	closed uint32
}

type stagedFile struct {
	final string
	file  *os.File
	buf   *bufio.Writer
	lines int
}

// Open stages one output per name. Either every sink opens or none is
// left behind.
func Open(cfg Config, names []string) (*MultiWriter, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Join(exception.ErrSinkOpen, err)
	}
	if len(names) == 0 {
		return nil, errors.Join(exception.ErrSinkOpen, errors.New("no sinks requested"))
	}

	w := &MultiWriter{
		cfg:   cfg,
		names: append([]string(nil), names...),
		sinks: make(map[string]*stagedFile, len(names)),
	}
	for _, name := range names {
		if _, ok := w.sinks[name]; ok {
			_ = w.discard()
			return nil, errors.Wrapf(errors.Join(exception.ErrSinkOpen, exception.ErrInvalidArgument), "duplicate sink %s", name)
		}
		staged, err := w.stage(name)
		if err != nil {
			_ = w.discard()
			return nil, errors.Wrapf(errors.Join(exception.ErrSinkOpen, err), "open sink %s", name)
		}
		w.sinks[name] = staged
	}
	return w, nil
}

func (w *MultiWriter) stage(name string) (*stagedFile, error) {
	base := w.cfg.FileName(name)
	if base != filepath.Base(base) {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "file name %q has a path separator", base)
	}
	final := filepath.Join(w.cfg.Dir, base)
	file, err := os.CreateTemp(w.cfg.Dir, "."+base+".*.tmp")
	if err != nil {
		return nil, err
	}
	// CreateTemp always uses 0600
	if err := file.Chmod(w.cfg.Perm); err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())
		return nil, err
	}
	return &stagedFile{
		final: final,
		file:  file,
		buf:   bufio.NewWriterSize(file, w.cfg.BufferSize),
	}, nil
}

// Names returns the sink names in open order.
func (w *MultiWriter) Names() []string {
	return append([]string(nil), w.names...)
}

// Path returns the final output path of a sink.
func (w *MultiWriter) Path(name string) (string, bool) {
	s, ok := w.sinks[name]
	if !ok {
		return "", false
	}
	return s.final, true
}

// Lines returns how many lines a sink has received.
func (w *MultiWriter) Lines(name string) int {
	if s, ok := w.sinks[name]; ok {
		return s.lines
	}
	return 0
}

// Write appends key, delimiter, value and a newline to the named sink.
func (w *MultiWriter) Write(name, key, value string) error {
	if atomic.LoadUint32(&w.closed) != 0 {
		return errors.Join(exception.ErrSinkWrite, ErrClosed)
	}
	s, ok := w.sinks[name]
	if !ok {
		return errors.Wrapf(errors.Join(exception.ErrSinkWrite, ErrNoSink), "write %s", name)
	}
	if strings.ContainsAny(key, "\r\n") || strings.ContainsAny(value, "\r\n") {
		return errors.Wrapf(errors.Join(exception.ErrSinkWrite, ErrLineBreak), "write %s", name)
	}

	if _, err := s.buf.WriteString(key); err != nil {
		return errors.Wrapf(errors.Join(exception.ErrSinkWrite, err), "write %s", name)
	}
	if err := s.buf.WriteByte(w.cfg.Delimiter); err != nil {
		return errors.Wrapf(errors.Join(exception.ErrSinkWrite, err), "write %s", name)
	}
	if _, err := s.buf.WriteString(value); err != nil {
		return errors.Wrapf(errors.Join(exception.ErrSinkWrite, err), "write %s", name)
	}
	if err := s.buf.WriteByte('\n'); err != nil {
		return errors.Wrapf(errors.Join(exception.ErrSinkWrite, err), "write %s", name)
	}
	s.lines++
	return nil
}

// Commit flushes every staged file and moves it to its final path.
func (w *MultiWriter) Commit() error {
	if !atomic.CompareAndSwapUint32(&w.closed, 0, 1) {
		return ErrClosed
	}
	for _, name := range w.names {
		s := w.sinks[name]
		if err := w.seal(s); err != nil {
			_ = w.discard()
			return errors.Wrapf(errors.Join(exception.ErrSinkWrite, err), "commit %s", name)
		}
	}
	for _, name := range w.names {
		s := w.sinks[name]
		if err := os.Rename(s.file.Name(), s.final); err != nil {
			_ = w.discard()
			return errors.Wrapf(errors.Join(exception.ErrSinkWrite, err), "commit %s", name)
		}
	}
	return nil
}

// Abort drops every staged file. It is safe to call after Commit.
func (w *MultiWriter) Abort() error {
	if !atomic.CompareAndSwapUint32(&w.closed, 0, 1) {
		return nil
	}
	return w.discard()
}

func (w *MultiWriter) seal(s *stagedFile) error {
	if err := s.buf.Flush(); err != nil {
		_ = s.file.Close()
		return err
	}
	if !w.cfg.DisableSync {
		if err := s.file.Sync(); err != nil {
			_ = s.file.Close()
			return err
		}
	}
	return s.file.Close()
}

func (w *MultiWriter) discard() error {
	var first error
	for _, s := range w.sinks {
		_ = s.file.Close()
		if err := os.Remove(s.file.Name()); err != nil && !os.IsNotExist(err) && first == nil {
			first = err
		}
	}
	return first
}
