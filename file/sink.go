package file

import (
	"fmt"
	"os"
	"path/filepath"

	mmap "github.com/edsrzf/mmap-go"
)

// Sink writes verified pieces into the files described by a torrent.
// The torrent content is treated as one flat byte range that is split
// across file boundaries here.
type Sink struct {
	files  []*mappedFile
	length int64
}

type mappedFile struct {
	path   string
	offset int64 // start within the flat content
	length int64
	f      *os.File
	m      mmap.MMap // nil for empty files
}

// Create pre-sizes and maps the output files. A single-file torrent is
// written to path itself; a multi-file torrent is laid out under the
// directory path.
func Create(tf *TorrentFile, path string) (*Sink, error) {
	s := &Sink{length: int64(tf.Length)}

	if tf.IsSingleFile() {
		if err := s.add(path, 0, int64(tf.Length)); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	}

	var offset int64
	for _, entry := range tf.Files {
		p := filepath.Join(append([]string{path}, entry.Path...)...)
		if rel, err := filepath.Rel(path, p); err != nil || !filepath.IsLocal(rel) {
			s.Close()
			return nil, fmt.Errorf("%w: file path %q escapes %s", ErrInvalidMetadata, filepath.Join(entry.Path...), path)
		}
		if err := s.add(p, offset, int64(entry.Length)); err != nil {
			s.Close()
			return nil, err
		}
		offset += int64(entry.Length)
	}
	return s, nil
}

func (s *Sink) add(path string, offset, length int64) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating directory %s: %w", dir, err)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	mf := &mappedFile{path: path, offset: offset, length: length, f: f}
	s.files = append(s.files, mf)

	if length == 0 {
		return nil
	}
	if err := f.Truncate(length); err != nil {
		return fmt.Errorf("error sizing %s: %w", path, err)
	}
	mf.m, err = mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("error mapping %s: %w", path, err)
	}
	return nil
}

// WritePiece copies data to the flat content starting at offset.
func (s *Sink) WritePiece(offset int64, data []byte) error {
	end := offset + int64(len(data))
	if offset < 0 || end > s.length {
		return fmt.Errorf("write of %d bytes at %d exceeds content length %d", len(data), offset, s.length)
	}

	for _, mf := range s.files {
		fileEnd := mf.offset + mf.length
		if mf.m == nil || fileEnd <= offset || mf.offset >= end {
			continue
		}

		from := offset
		if mf.offset > from {
			from = mf.offset
		}
		to := end
		if fileEnd < to {
			to = fileEnd
		}
		copy(mf.m[from-mf.offset:to-mf.offset], data[from-offset:to-offset])
	}
	return nil
}

// Close flushes and unmaps every file. It returns the first error seen.
func (s *Sink) Close() error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	for _, mf := range s.files {
		if mf.m != nil {
			keep(mf.m.Flush())
			keep(mf.m.Unmap())
			mf.m = nil
		}
		keep(mf.f.Close())
	}
	s.files = nil
	return first
}

// Paths lists the files the sink writes to, in content order.
func (s *Sink) Paths() []string {
	paths := make([]string, len(s.files))
	for i, mf := range s.files {
		paths[i] = mf.path
	}
	return paths
}
