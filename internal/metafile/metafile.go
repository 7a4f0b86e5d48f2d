// Package metafile implements the durable record of which concrete files
// currently back the index, key, and value regions: a three-line UTF-8 text
// file at <dir>/meta.
package metafile

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	atomicfile "github.com/natefinch/atomic"
)

// Meta holds the current index/key/value paths for one engine directory.
type Meta struct {
	dir       string
	metaPath  string
	indexPath string
	keyPath   string
	valuePath string
}

// Open reads dir's meta file if present; otherwise it initializes the
// default generation-0 paths and flushes them.
func Open(dir string) (*Meta, error) {
	m := &Meta{
		dir:      dir,
		metaPath: filepath.Join(dir, "meta"),
	}

	data, err := os.ReadFile(m.metaPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("metafile: read %s: %w", m.metaPath, err)
		}
		if err := m.updateAll(
			filepath.Join(dir, "index_0"),
			filepath.Join(dir, "key_0"),
			filepath.Join(dir, "value_0"),
		); err != nil {
			return nil, err
		}
		return m, nil
	}

	lines, err := readLines(data, 3)
	if err != nil {
		return nil, fmt.Errorf("metafile: %s: %w", m.metaPath, err)
	}
	m.indexPath, m.keyPath, m.valuePath = lines[0], lines[1], lines[2]
	return m, nil
}

func readLines(data []byte, want int) ([]string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) < want {
		return nil, fmt.Errorf("expected %d lines, got %d", want, len(lines))
	}
	return lines, nil
}

// Dir returns the engine directory.
func (m *Meta) Dir() string { return m.dir }

// MetaPath returns the path of the meta file itself.
func (m *Meta) MetaPath() string { return m.metaPath }

// IndexPath returns the current index file path.
func (m *Meta) IndexPath() string { return m.indexPath }

// KeyPath returns the current key file path.
func (m *Meta) KeyPath() string { return m.keyPath }

// ValuePath returns the current value file path.
func (m *Meta) ValuePath() string { return m.valuePath }

// UpdateAll rewrites all three paths and flushes.
func (m *Meta) UpdateAll(index, key, value string) error {
	return m.updateAll(index, key, value)
}

func (m *Meta) updateAll(index, key, value string) error {
	m.indexPath, m.keyPath, m.valuePath = index, key, value
	return m.flush()
}

// UpdateIndexPath rewrites only the index path and flushes.
func (m *Meta) UpdateIndexPath(path string) error {
	m.indexPath = path
	return m.flush()
}

// UpdateValuePath rewrites only the value path and flushes.
func (m *Meta) UpdateValuePath(path string) error {
	m.valuePath = path
	return m.flush()
}

// flush rewrites the meta file atomically (temp file + rename) via
// natefinch/atomic, so a crash mid-write never leaves a torn meta file
// behind. The engine calls it after the region it describes has been
// populated and swapped in; that region is not msync'd first.
func (m *Meta) flush() error {
	var b strings.Builder
	b.WriteString(m.indexPath)
	b.WriteByte('\n')
	b.WriteString(m.keyPath)
	b.WriteByte('\n')
	b.WriteString(m.valuePath)
	b.WriteByte('\n')

	if err := atomicfile.WriteFile(m.metaPath, strings.NewReader(b.String())); err != nil {
		return fmt.Errorf("metafile: flush %s: %w", m.metaPath, err)
	}
	return nil
}

// GenIndexPath returns a fresh, collision-avoiding index path for dir.
func GenIndexPath(dir string, unixMilli int64) string {
	return filepath.Join(dir, fmt.Sprintf("index_%d", unixMilli))
}

// GenKeyPath returns a fresh, collision-avoiding key path for dir.
func GenKeyPath(dir string, unixMilli int64) string {
	return filepath.Join(dir, fmt.Sprintf("key_%d", unixMilli))
}

// GenValuePath returns a fresh, collision-avoiding value path for dir.
func GenValuePath(dir string, unixMilli int64) string {
	return filepath.Join(dir, fmt.Sprintf("value_%d", unixMilli))
}
