package partwriter

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/apivideo/go-upstream/internal/core/domain"
)

// PartFunc is called once per completed part file. It is invoked with
// isLast=false on every rotation and exactly once with isLast=true when the
// writer is closed after at least one byte was written.
type PartFunc func(index int, isLast bool, filePath string)

// PartWriter splits a continuous byte stream into size-bounded part files
// numbered 1, 2, 3... inside a directory.
//
// Rotation policy: the current part is closed before a write when it already
// holds at least partSize bytes. A single write larger than partSize is
// therefore never split across parts and a part may exceed partSize by up to
// one write.
type PartWriter struct {
	dir      string
	partSize int64
	onPart   PartFunc

	mu          sync.Mutex
	index       int
	current     *os.File
	currentSize int64
	hasWritten  bool
	closed      bool
}

// New creates a PartWriter writing part files into dir.
func New(dir string, partSize int64, onPart PartFunc) (*PartWriter, error) {
	if partSize <= 0 {
		return nil, fmt.Errorf("%w: part size must be greater than 0", domain.ErrInvalidConfiguration)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidConfiguration, dir)
	}
	probe, err := os.CreateTemp(dir, ".probe")
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not writable", domain.ErrInvalidConfiguration, dir)
	}
	probe.Close()
	os.Remove(probe.Name())

	return &PartWriter{dir: dir, partSize: partSize, onPart: onPart}, nil
}

// Write appends to the current part file, rotating first when the part is
// already full. It implements io.Writer.
func (w *PartWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, os.ErrClosed
	}
	if w.current != nil && w.currentSize >= w.partSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	if w.current == nil {
		if err := w.openNext(); err != nil {
			return 0, err
		}
	}

	n, err := w.current.Write(p)
	w.currentSize += int64(n)
	if n > 0 {
		w.hasWritten = true
	}
	if err != nil {
		return n, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return n, nil
}

// Close flushes the current part and notifies the listener with isLast=true
// if any byte was ever written. Subsequent calls are no-ops.
func (w *PartWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.current == nil {
		return nil
	}
	err := w.current.Close()
	if w.hasWritten {
		w.onPart(w.index, true, w.partPath(w.index))
	}
	w.current = nil
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

// rotate closes the current part and notifies the listener. Callers hold w.mu.
func (w *PartWriter) rotate() error {
	if err := w.current.Close(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	w.current = nil
	w.onPart(w.index, false, w.partPath(w.index))
	return nil
}

func (w *PartWriter) openNext() error {
	f, err := os.Create(w.partPath(w.index + 1))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	w.index++
	w.current = f
	w.currentSize = 0
	return nil
}

func (w *PartWriter) partPath(index int) string {
	return filepath.Join(w.dir, strconv.Itoa(index))
}
