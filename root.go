// Package fallout implements read access to the proprietary asset
// formats shipped with Interplay's Fallout (1997).
//
// Fallout stores its data as big-endian binary containers inside DAT
// archives. Two of those formats need real decoding work rather than
// plain field reads: ACM, the lossy adaptive audio codec used for music
// and speech, and INT, the compiled container for the scripting
// language's bytecode. Package acm and package script implement them on
// top of the cursor in package stream; package vfs supplies the storage
// boundary that resolves a logical asset path to a byte source.
//
// Executing the decoded bytecode is the job of a separate interpreter;
// this module only gets the bits off disk and into typed structures.

package fallout

import "fmt"

// A FormatError reports a malformed asset: a bad signature, impossible
// geometry, or a table that does not resolve. It is fatal to the open
// operation that produced it.
type FormatError struct {
	Format string // "ACM" or "INT"
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: %s", e.Format, e.Reason)
}
