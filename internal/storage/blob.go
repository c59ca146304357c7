package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// BlobStore is raw byte-addressed persistent storage.
type BlobStore interface {
	Read(offset int64, n int) ([]byte, error)
	Write(offset int64, data []byte) error
}

// erased is the value unwritten bytes read back as, like erased NOR flash.
const erased = 0xff

// FileBlob is a BlobStore backed by a regular file.
type FileBlob struct {
	mu   sync.Mutex
	path string
}

// NewFileBlob returns a FileBlob at path. The file is created on first write.
func NewFileBlob(path string) *FileBlob {
	return &FileBlob{path: path}
}

func (b *FileBlob) Read(offset int64, n int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf := make([]byte, n)
	for i := range buf {
		buf[i] = erased
	}

	f, err := os.Open(b.path)
	if os.IsNotExist(err) {
		return buf, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	defer f.Close()

	read, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read blob at %d: %w", offset, err)
	}
	// ReadAt may have zeroed nothing past the end; restore the erased pattern.
	for i := read; i < n; i++ {
		buf[i] = erased
	}
	return buf, nil
}

func (b *FileBlob) Write(offset int64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(b.path), 0700); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	f, err := os.OpenFile(b.path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("open blob: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteAt(data, offset); err != nil {
		return fmt.Errorf("write blob at %d: %w", offset, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync blob: %w", err)
	}
	return nil
}

// MemBlob is an in-memory BlobStore.
type MemBlob struct {
	mu   sync.Mutex
	data []byte
	// FailWrites makes every Write return this error.
	FailWrites error
}

func (m *MemBlob) Read(offset int64, n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, n)
	for i := range buf {
		pos := offset + int64(i)
		if pos < int64(len(m.data)) {
			buf[i] = m.data[pos]
		} else {
			buf[i] = erased
		}
	}
	return buf, nil
}

func (m *MemBlob) Write(offset int64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites != nil {
		return m.FailWrites
	}
	end := offset + int64(len(data))
	for int64(len(m.data)) < end {
		m.data = append(m.data, erased)
	}
	copy(m.data[offset:end], data)
	return nil
}
