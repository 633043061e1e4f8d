// Package vfs is the storage boundary the format readers consume: a
// driver resolves a logical asset path to a fully materialized byte
// source. Archive membership, driver precedence and the DAT container
// itself live behind this interface, not in this module.
package vfs

import (
	"encoding/binary"
	"os"
	"path"

	"github.com/32bitkid/fallout/stream"
)

// Driver resolves logical asset paths to byte sources.
type Driver interface {
	Name() string
	Exists(path string) bool
	// Open returns the asset's entire content as a seekable stream.
	// The stream defaults to big-endian; format readers flip the order
	// as their format requires.
	Open(path string) (*stream.Reader, error)
}

// Dir serves assets from a directory tree on the local filesystem, the
// loose-file layout of an unpacked game installation.
type Dir struct {
	Root string
}

func (d Dir) Name() string { return "dir" }

func (d Dir) Exists(p string) bool {
	info, err := os.Stat(path.Join(d.Root, p))
	return err == nil && !info.IsDir()
}

func (d Dir) Open(p string) (*stream.Reader, error) {
	data, err := os.ReadFile(path.Join(d.Root, p))
	if err != nil {
		return nil, err
	}
	return stream.New(data, binary.BigEndian), nil
}

// Mem serves assets from memory, keyed by path. Useful for tests and
// for assets already extracted from an archive.
type Mem map[string][]byte

func (m Mem) Name() string { return "mem" }

func (m Mem) Exists(p string) bool {
	_, ok := m[p]
	return ok
}

func (m Mem) Open(p string) (*stream.Reader, error) {
	data, ok := m[p]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: p, Err: os.ErrNotExist}
	}
	return stream.New(data, binary.BigEndian), nil
}
