// Package script reads Fallout's compiled scripting bytecode container,
// the INT format.
//
// An INT file is big-endian: 42 reserved bytes, a procedure table, an
// identifier table, a 4-byte end-of-table marker, an optional string
// table, and then the executable bytecode itself. All tables are parsed
// eagerly at open; the bytecode is left in place and read on demand
// through the cursor, driven by the interpreter stepping through
// procedure bodies.
package script

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/32bitkid/fallout"
	"github.com/32bitkid/fallout/stream"
	"github.com/32bitkid/fallout/vfs"
)

// tableOffset is where the procedure table starts; bytes before it are
// reserved and ignored.
const tableOffset = 42

// noStrings is the string-table size sentinel for "no string table".
const noStrings = 0xFFFFFFFF

// Flags is a procedure's attribute bitfield, as the script compiler
// emits it.
type Flags uint32

const (
	FlagTimed Flags = 1 << iota
	FlagConditional
	FlagImported
	FlagExported
	FlagCritical
)

// Procedure is one named callable unit of a compiled script. Offsets
// address the container's bytecode region; Delay is a scheduling hint
// consumed by the interpreter, not by this reader.
type Procedure struct {
	Name            string
	Flags           Flags
	Delay           uint32
	ConditionOffset uint32
	BodyOffset      uint32
	ArgumentsCount  uint32
}

func (p *Procedure) IsTimed() bool       { return p.Flags&FlagTimed != 0 }
func (p *Procedure) IsConditional() bool { return p.Flags&FlagConditional != 0 }
func (p *Procedure) IsImported() bool    { return p.Flags&FlagImported != 0 }
func (p *Procedure) IsExported() bool    { return p.Flags&FlagExported != 0 }
func (p *Procedure) IsCritical() bool    { return p.Flags&FlagCritical != 0 }

// Table maps a byte offset within its table region to the decoded
// string stored there. Offsets are the format's addressing scheme;
// contents need not be unique.
type Table map[uint32]string

// File is an opened INT container: the parsed tables plus a cursor over
// the bytecode for the interpreter to drive.
type File struct {
	src         *stream.Reader
	procedures  []Procedure
	identifiers Table
	strings     Table
}

// New parses the container's tables from src. The whole table-of-
// contents is consumed eagerly; on any format error no File is
// returned.
func New(src *stream.Reader) (*File, error) {
	src.SetOrder(binary.BigEndian)
	if err := src.Seek(tableOffset); err != nil {
		return nil, &fallout.FormatError{Format: "INT", Reason: "container smaller than reserved prefix"}
	}

	count, err := src.U32()
	if err != nil {
		return nil, err
	}
	if int64(count)*24 > int64(src.Size()-src.Pos()) {
		return nil, &fallout.FormatError{
			Format: "INT",
			Reason: fmt.Sprintf("procedure count %d exceeds container size", count),
		}
	}

	nameOffsets := make([]uint32, count)
	procedures := make([]Procedure, count)
	for i := range procedures {
		var fields [6]uint32
		for j := range fields {
			if fields[j], err = src.U32(); err != nil {
				return nil, err
			}
		}
		nameOffsets[i] = fields[0]
		procedures[i] = Procedure{
			Flags:           Flags(fields[1]),
			Delay:           fields[2],
			ConditionOffset: fields[3],
			BodyOffset:      fields[4],
			ArgumentsCount:  fields[5],
		}
	}

	idSize, err := src.U32()
	if err != nil {
		return nil, err
	}
	identifiers, err := readEntries(src, idSize)
	if err != nil {
		return nil, err
	}

	// End-of-table marker, 0xFFFFFFFF in well-formed files. Consumed
	// but not validated; real game data is not strict about it.
	if _, err := src.U32(); err != nil {
		return nil, err
	}

	for i := range procedures {
		name, ok := identifiers[nameOffsets[i]]
		if !ok {
			return nil, &fallout.FormatError{
				Format: "INT",
				Reason: fmt.Sprintf("procedure %d: name offset %d not in identifier table", i, nameOffsets[i]),
			}
		}
		procedures[i].Name = name
	}

	var strs Table
	strSize, err := src.U32()
	if err != nil {
		return nil, err
	}
	if strSize != noStrings {
		if strs, err = readEntries(src, strSize); err != nil {
			return nil, err
		}
	}

	return &File{
		src:         src,
		procedures:  procedures,
		identifiers: identifiers,
		strings:     strs,
	}, nil
}

// Open resolves path through the driver and opens it as an INT
// container.
func Open(drv vfs.Driver, path string) (*File, error) {
	src, err := drv.Open(path)
	if err != nil {
		return nil, err
	}
	return New(src)
}

// readEntries parses a table of length-prefixed strings occupying size
// bytes. Each entry's key is the byte offset just past its length
// field, counted from the size field, plus four; that is the offset
// arithmetic the compiler records in procedure entries. NUL bytes
// inside the fixed-width name slots pad, they do not terminate, so
// they are stripped.
func readEntries(src *stream.Reader, size uint32) (Table, error) {
	table := make(Table)
	used := uint32(0)
	for used < size {
		length, err := src.U16()
		if err != nil {
			return nil, err
		}
		used += 2
		offset := used + 4

		raw, err := src.Bytes(int(length))
		if err != nil {
			return nil, err
		}
		used += uint32(length)
		if used > size {
			return nil, &fallout.FormatError{
				Format: "INT",
				Reason: fmt.Sprintf("table entry at offset %d overruns the declared table size", offset),
			}
		}

		if _, dup := table[offset]; dup {
			return nil, &fallout.FormatError{
				Format: "INT",
				Reason: fmt.Sprintf("duplicate table offset %d", offset),
			}
		}
		table[offset] = strings.ReplaceAll(string(raw), "\x00", "")
	}
	return table, nil
}

// Procedures returns all procedures in file order.
func (f *File) Procedures() []Procedure { return f.procedures }

// Procedure finds the procedure with exactly the given name, or nil.
func (f *File) Procedure(name string) *Procedure {
	for i := range f.procedures {
		if f.procedures[i].Name == name {
			return &f.procedures[i]
		}
	}
	return nil
}

// Identifiers is the offset-keyed table of procedure and variable
// names.
func (f *File) Identifiers() Table { return f.identifiers }

// Strings is the offset-keyed table of string literals, nil when the
// container has none.
func (f *File) Strings() Table { return f.strings }

func (f *File) Position() int { return f.src.Pos() }

func (f *File) SetPosition(pos int) error { return f.src.Seek(pos) }

func (f *File) Size() int { return f.src.Size() }

// ReadOpcode reads the next bytecode opcode at the cursor.
func (f *File) ReadOpcode() (uint16, error) { return f.src.U16() }

// ReadValue reads the next operand value at the cursor.
func (f *File) ReadValue() (uint32, error) { return f.src.U32() }
