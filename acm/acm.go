// Package acm decodes Interplay's ACM audio format, the lossy adaptive
// codec Fallout uses for music and speech.
//
// The format is a 14-byte header followed by a compressed bitstream.
// Decoding runs in two stages per block: the value unpacker pulls
// quantized coefficients out of the bitstream with a per-column
// variable bit-width scheme, and the subband decoder turns them back
// into signed sample deltas with a hierarchical filter bank. There is
// exactly one variant of each stage; together they are the block
// decode, and File drives them.
package acm

import (
	"encoding/binary"

	"github.com/32bitkid/fallout"
	"github.com/32bitkid/fallout/stream"
	"github.com/32bitkid/fallout/vfs"
)

// Signature is the magic constant opening every ACM stream.
const Signature uint32 = 0x01032897

// headerSize is the fixed prefix: magic, sample count, channel count,
// sample rate, packed level/subblock field.
const headerSize = 14

// File is one decode session over an ACM byte source. It is stateful
// and single-consumer: samples come out through ReadSamples in stream
// order, and Rewind restarts from the top.
type File struct {
	src *stream.Reader

	samples  int
	channels int
	bitrate  int

	levels    uint
	subblocks int
	blockSize int

	samplesLeft  int
	samplesReady int
	next         int // read cursor into block
	block        []int32

	unpacker *valueUnpacker
	decoder  *subbandDecoder
}

// New parses the header and prepares a decode session positioned at the
// first block. The signature is checked before anything else is read.
func New(src *stream.Reader) (*File, error) {
	src.SetOrder(binary.LittleEndian)
	if err := src.Seek(0); err != nil {
		return nil, err
	}

	magic, err := src.U32()
	if err != nil {
		return nil, err
	}
	if magic != Signature {
		return nil, &fallout.FormatError{Format: "ACM", Reason: "invalid signature"}
	}

	samples, err := src.U32()
	if err != nil {
		return nil, err
	}
	channels, err := src.U16()
	if err != nil {
		return nil, err
	}
	rate, err := src.U16()
	if err != nil {
		return nil, err
	}
	packed, err := src.U16()
	if err != nil {
		return nil, err
	}

	levels := uint(packed & 0x0F)
	subblocks := int(packed >> 4)

	unpacker, err := newValueUnpacker(levels, subblocks, src)
	if err != nil {
		return nil, err
	}

	f := &File{
		src:       src,
		samples:   int(samples),
		channels:  int(channels),
		bitrate:   int(rate),
		levels:    levels,
		subblocks: subblocks,
		blockSize: subblocks << levels,
		unpacker:  unpacker,
		decoder:   newSubbandDecoder(levels),
	}
	f.samplesLeft = f.samples
	f.block = make([]int32, f.blockSize)
	return f, nil
}

// Open resolves path through the driver and opens it as an ACM stream.
func Open(drv vfs.Driver, path string) (*File, error) {
	src, err := drv.Open(path)
	if err != nil {
		return nil, err
	}
	return New(src)
}

// Samples is the total sample count declared by the header.
func (f *File) Samples() int { return f.samples }

// Channels is the channel count declared by the header. The sample
// stream is interleaved; this decoder does not split it.
func (f *File) Channels() int { return f.channels }

// Bitrate is the sample rate declared by the header, in Hz.
func (f *File) Bitrate() int { return f.bitrate }

// SamplesLeft reports how many samples have not yet been decoded. It
// decreases monotonically to zero.
func (f *File) SamplesLeft() int { return f.samplesLeft }

// Rewind restarts the session from the first block. The block buffer is
// reused; unpacker and decoder state start from scratch, so a second
// pass reproduces the first exactly.
func (f *File) Rewind() error {
	if err := f.src.Seek(headerSize); err != nil {
		return err
	}
	f.samplesLeft = f.samples
	f.samplesReady = 0
	f.next = 0
	f.unpacker.reset()
	f.decoder.reset()
	return nil
}

func (f *File) refill() (bool, error) {
	ok, err := f.unpacker.nextBlock(f.block)
	if !ok || err != nil {
		return false, err
	}
	f.decoder.decode(f.block, f.subblocks)

	f.samplesReady = f.blockSize
	if f.samplesLeft < f.samplesReady {
		f.samplesReady = f.samplesLeft
	}
	f.samplesLeft -= f.samplesReady
	f.next = 0
	return true, nil
}

// ReadSamples decodes up to len(buffer) 16-bit samples into buffer and
// returns how many were written. A short count with a nil error means
// the stream is exhausted; a FormatError means the bitstream is
// corrupt. Raw decoded values scale down to sample range by a right
// shift of the level count.
func (f *File) ReadSamples(buffer []int16) (int, error) {
	n := 0
	for n < len(buffer) {
		if f.samplesReady == 0 {
			if f.samplesLeft == 0 {
				break
			}
			ok, err := f.refill()
			if err != nil {
				return n, err
			}
			if !ok {
				break
			}
		}
		buffer[n] = int16(f.block[f.next] >> f.levels)
		f.next++
		n++
		f.samplesReady--
	}
	return n, nil
}
