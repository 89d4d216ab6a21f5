// Package ingest feeds text lines into a log device, one message per line.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/klogger/internal/log"
)

// CopyLines writes every line of r to w as a separate message, without the
// line ending. A final line without a newline is written too.
// It returns the number of messages written.
func CopyLines(r io.Reader, w io.Writer) (int, error) {
	br := bufio.NewReader(r)
	count := 0
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			if _, werr := w.Write(trimEOL(line)); werr != nil {
				return count, fmt.Errorf("writing line %d: %w", count+1, werr)
			}
			count++
		}
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("reading line %d: %w", count+1, err)
		}
	}
}

func trimEOL(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte{'\n'})
	return bytes.TrimSuffix(line, []byte{'\r'})
}

// Follower tails a file and writes each complete appended line to a writer.
type Follower struct {
	path      string
	w         io.Writer
	fromStart bool

	offset  int64
	partial []byte
	lines   int
	ready   chan struct{}
}

// FollowerOption customizes a Follower.
type FollowerOption func(*Follower)

// FromStart makes the follower ingest the existing file content first.
func FromStart() FollowerOption {
	return func(f *Follower) {
		f.fromStart = true
	}
}

// NewFollower creates a follower for path. Nothing is read until Run.
func NewFollower(path string, w io.Writer, opts ...FollowerOption) *Follower {
	f := &Follower{
		path:  path,
		w:     w,
		ready: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Ready is closed once the file is being watched.
func (f *Follower) Ready() <-chan struct{} {
	return f.ready
}

// Lines returns the number of lines written so far. Only valid after Run returns.
func (f *Follower) Lines() int {
	return f.lines
}

// Run follows the file until ctx is cancelled or the file is removed or
// renamed. A file truncated in place is read again from the start.
func (f *Follower) Run(ctx context.Context) error {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.path, err)
	}
	defer func() { _ = file.Close() }()

	if !f.fromStart {
		info, err := file.Stat()
		if err != nil {
			return fmt.Errorf("stat %s: %w", f.path, err)
		}
		f.offset = info.Size()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(f.path); err != nil {
		return fmt.Errorf("watching %s: %w", f.path, err)
	}
	log.Debug(log.CatIngest, "following file", "path", f.path, "offset", f.offset)

	if f.fromStart {
		if err := f.drain(file); err != nil {
			return err
		}
	}
	close(f.ready)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			switch {
			case event.Has(fsnotify.Write):
				if err := f.drain(file); err != nil {
					return err
				}
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename), f.gone(event):
				log.Info(log.CatIngest, "followed file went away", "path", f.path, "op", event.Op.String())
				if err := f.drain(file); err != nil {
					return err
				}
				return f.flush()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.ErrorErr(log.CatIngest, "watcher error", err, "path", f.path)
			return fmt.Errorf("watching %s: %w", f.path, err)
		}
	}
}

// gone reports a Chmod that stands in for a removal. On Linux an unlinked
// file that is still open only produces Chmod until the last descriptor closes.
func (f *Follower) gone(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Chmod) {
		return false
	}
	_, err := os.Stat(f.path)
	return errors.Is(err, fs.ErrNotExist)
}

// drain reads everything past offset and writes the complete lines.
func (f *Follower) drain(file *os.File) error {
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", f.path, err)
	}
	size := info.Size()
	if size < f.offset {
		log.Info(log.CatIngest, "file truncated, restarting", "path", f.path, "size", size, "offset", f.offset)
		f.offset = 0
		f.partial = nil
	}
	if size == f.offset {
		return nil
	}

	chunk := make([]byte, size-f.offset)
	n, err := file.ReadAt(chunk, f.offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading %s: %w", f.path, err)
	}
	f.offset += int64(n)

	data := append(f.partial, chunk[:n]...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		if _, err := f.w.Write(trimEOL(data[:i+1])); err != nil {
			return fmt.Errorf("writing line: %w", err)
		}
		f.lines++
		data = data[i+1:]
	}
	f.partial = append([]byte(nil), data...)
	return nil
}

// flush writes a trailing line that never got its newline.
func (f *Follower) flush() error {
	if len(f.partial) == 0 {
		return nil
	}
	if _, err := f.w.Write(f.partial); err != nil {
		return fmt.Errorf("writing line: %w", err)
	}
	f.lines++
	f.partial = nil
	return nil
}
