package acm

import (
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/32bitkid/fallout"
	"github.com/32bitkid/fallout/stream"
	"github.com/32bitkid/fallout/vfs"
)

// bitWriter builds LSB-first bitstreams for fixtures, mirroring the
// order the unpacker consumes.
type bitWriter struct {
	buf []byte
	acc uint64
	n   uint
}

func (w *bitWriter) put(v uint32, bits uint) {
	w.acc |= uint64(v&(1<<bits-1)) << w.n
	w.n += bits
	for w.n >= 8 {
		w.buf = append(w.buf, byte(w.acc))
		w.acc >>= 8
		w.n -= 8
	}
}

func (w *bitWriter) bytes() []byte {
	if w.n > 0 {
		w.buf = append(w.buf, byte(w.acc))
		w.acc = 0
		w.n = 0
	}
	return w.buf
}

func fixture(samples uint32, channels, rate uint16, levels uint, subblocks int, bits func(w *bitWriter)) []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:], Signature)
	binary.LittleEndian.PutUint32(buf[4:], samples)
	binary.LittleEndian.PutUint16(buf[8:], channels)
	binary.LittleEndian.PutUint16(buf[10:], rate)
	binary.LittleEndian.PutUint16(buf[12:], uint16(subblocks)<<4|uint16(levels))

	w := &bitWriter{}
	if bits != nil {
		bits(w)
	}
	return append(buf, w.bytes()...)
}

func open(t *testing.T, data []byte) *File {
	t.Helper()
	f, err := New(stream.New(data, binary.LittleEndian))
	if err != nil {
		t.Fatal(err)
	}
	return f
}

// putZeroBlock emits one all-zero block: any amplitude header, then a
// zero fill for every column.
func putZeroBlock(w *bitWriter, levels uint) {
	w.put(0, 4)
	w.put(0, 16)
	for c := 0; c < 1<<levels; c++ {
		w.put(0, 5)
	}
}

func TestInvalidSignature(t *testing.T) {
	data := fixture(100, 1, 22050, 0, 8, nil)
	data[0] = 'W'

	_, err := New(stream.New(data, binary.LittleEndian))
	var fe *fallout.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("want FormatError, got %v", err)
	}
}

func TestShortHeader(t *testing.T) {
	data := fixture(100, 1, 22050, 0, 8, nil)
	_, err := New(stream.New(data[:10], binary.LittleEndian))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("want truncation error, got %v", err)
	}
}

func TestDegenerateGeometry(t *testing.T) {
	_, err := New(stream.New(fixture(100, 1, 22050, 3, 0, nil), binary.LittleEndian))
	var fe *fallout.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("want FormatError for zero subblocks, got %v", err)
	}
}

func TestHeaderFields(t *testing.T) {
	f := open(t, fixture(4410, 2, 22050, 3, 16, nil))

	for pass := 0; pass < 3; pass++ {
		if f.Samples() != 4410 || f.Channels() != 2 || f.Bitrate() != 22050 {
			t.Fatalf("pass %d: header fields drifted: %d/%d/%d",
				pass, f.Samples(), f.Channels(), f.Bitrate())
		}
		if err := f.Rewind(); err != nil {
			t.Fatal(err)
		}
	}
}

// Eight zero blocks of 16<<3 = 128 values cover a 1000 sample stream;
// a drained session returns 0 from then on.
func TestZeroStreamScenario(t *testing.T) {
	data := fixture(1000, 1, 22050, 3, 16, func(w *bitWriter) {
		for b := 0; b < 8; b++ {
			putZeroBlock(w, 3)
		}
	})
	f := open(t, data)

	out := make([]int16, 1000)
	n, err := f.ReadSamples(out)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1000 {
		t.Fatalf("want 1000 samples, got %d", n)
	}
	for i, s := range out {
		if s != 0 {
			t.Fatalf("sample %d: want 0, got %d", i, s)
		}
	}
	if f.SamplesLeft() != 0 {
		t.Fatalf("samplesLeft: %d", f.SamplesLeft())
	}

	if n, err := f.ReadSamples(out); err != nil || n != 0 {
		t.Fatalf("drained session: n=%d err=%v", n, err)
	}
}

// A single linear-filled block at level 0 decodes to the amplitude
// table entries the row codes select, with no filtering and no shift.
func TestLinearBlockDecode(t *testing.T) {
	rows := []uint32{4, 5, 3, 0, 7, 2, 6, 1}
	data := fixture(8, 1, 22050, 0, 8, func(w *bitWriter) {
		w.put(3, 4)    // 8 amplitude steps each side
		w.put(100, 16) // of 100 apart
		w.put(3, 5)    // linear, 3 bits per row
		for _, r := range rows {
			w.put(r, 3)
		}
	})
	f := open(t, data)

	out := make([]int16, 8)
	n, err := f.ReadSamples(out)
	if err != nil || n != 8 {
		t.Fatalf("n=%d err=%v", n, err)
	}

	want := []int16{0, 100, -100, -400, 300, -200, 200, -300}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("sample %d: want %d, got %d", i, want[i], out[i])
		}
	}
}

// putLinearBlock emits one block encoded entirely with linear fillers,
// row values varied deterministically. Codes stay within the amplitude
// range the block header declares, as any real encoder's must.
func putLinearBlock(w *bitWriter, levels uint, subblocks, seed int) {
	const pwr = 5
	const count = 1 << pwr
	w.put(pwr, 4)
	w.put(301, 16)
	inds := []uint{3, 5, 7, 10}
	for c := 0; c < 1<<levels; c++ {
		ind := inds[c%len(inds)]
		w.put(uint32(ind), 5)
		middle := 1 << (ind - 1)
		span := 2 * count
		if span > 1<<ind {
			span = 1 << ind
		}
		for r := 0; r < subblocks; r++ {
			b := middle - span/2 + (seed+r*7+c*13)%span
			w.put(uint32(b), ind)
		}
	}
}

func TestRewindDeterminism(t *testing.T) {
	data := fixture(32, 1, 22050, 2, 4, func(w *bitWriter) {
		putLinearBlock(w, 2, 4, 11)
		putLinearBlock(w, 2, 4, 29)
	})
	f := open(t, data)

	first := make([]int16, 32)
	if n, err := f.ReadSamples(first); err != nil || n != 32 {
		t.Fatalf("first pass: n=%d err=%v", n, err)
	}

	if err := f.Rewind(); err != nil {
		t.Fatal(err)
	}
	if f.SamplesLeft() != 32 {
		t.Fatalf("samplesLeft after rewind: %d", f.SamplesLeft())
	}

	second := make([]int16, 32)
	if n, err := f.ReadSamples(second); err != nil || n != 32 {
		t.Fatalf("second pass: n=%d err=%v", n, err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("sample %d: first pass %d, second pass %d", i, first[i], second[i])
		}
	}
}

// Draining in odd-sized chunks must produce the same stream as one
// large read: nothing lost or duplicated across block boundaries.
func TestChunkedReads(t *testing.T) {
	data := fixture(32, 1, 22050, 2, 4, func(w *bitWriter) {
		putLinearBlock(w, 2, 4, 3)
		putLinearBlock(w, 2, 4, 17)
	})
	f := open(t, data)

	whole := make([]int16, 32)
	if n, err := f.ReadSamples(whole); err != nil || n != 32 {
		t.Fatalf("n=%d err=%v", n, err)
	}

	if err := f.Rewind(); err != nil {
		t.Fatal(err)
	}

	var chunked []int16
	buf := make([]int16, 7)
	total := 0
	for {
		n, err := f.ReadSamples(buf)
		if err != nil {
			t.Fatal(err)
		}
		chunked = append(chunked, buf[:n]...)
		total += n
		if n == 0 {
			break
		}
	}
	if total != 32 {
		t.Fatalf("chunked total: %d", total)
	}
	for i := range whole {
		if whole[i] != chunked[i] {
			t.Fatalf("sample %d: whole %d, chunked %d", i, whole[i], chunked[i])
		}
	}
}

// A stream that ends cleanly before the declared sample count is an
// end-of-stream, not an error.
func TestBitstreamExhaustion(t *testing.T) {
	// one 5-byte block, 100 samples declared
	data := fixture(100, 1, 22050, 2, 4, func(w *bitWriter) {
		putZeroBlock(w, 2)
	})
	f := open(t, data)

	out := make([]int16, 100)
	n, err := f.ReadSamples(out)
	if err != nil {
		t.Fatal(err)
	}
	if n != 16 {
		t.Fatalf("want one block of 16, got %d", n)
	}
	if n, err := f.ReadSamples(out); err != nil || n != 0 {
		t.Fatalf("exhausted stream: n=%d err=%v", n, err)
	}
}

func TestCorruptFiller(t *testing.T) {
	data := fixture(100, 1, 22050, 0, 8, func(w *bitWriter) {
		w.put(0, 4)
		w.put(0, 16)
		w.put(1, 5) // filler code 1 never occurs in valid streams
	})
	f := open(t, data)

	n, err := f.ReadSamples(make([]int16, 8))
	var fe *fallout.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("want FormatError, got %v", err)
	}
	if n != 0 {
		t.Fatalf("corrupt block yielded %d samples", n)
	}
}

func TestTruncatedBlockHeader(t *testing.T) {
	data := fixture(100, 1, 22050, 0, 8, nil)
	data = append(data, 0x00) // 8 bits: enough for pwr, not for the base value
	f := open(t, data)

	_, err := f.ReadSamples(make([]int16, 8))
	var fe *fallout.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("want FormatError, got %v", err)
	}
}

func TestShortFinalBlock(t *testing.T) {
	// 10 samples and a single 16-value block: the tail values are
	// never handed out.
	data := fixture(10, 1, 22050, 2, 4, func(w *bitWriter) {
		putZeroBlock(w, 2)
	})
	f := open(t, data)

	out := make([]int16, 64)
	n, err := f.ReadSamples(out)
	if err != nil || n != 10 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if f.SamplesLeft() != 0 {
		t.Fatalf("samplesLeft: %d", f.SamplesLeft())
	}
}

func TestOpenThroughDriver(t *testing.T) {
	drv := vfs.Mem{
		"sound/music/track.acm": fixture(8, 1, 22050, 0, 8, func(w *bitWriter) {
			putZeroBlock(w, 0)
		}),
	}

	f, err := Open(drv, "sound/music/track.acm")
	if err != nil {
		t.Fatal(err)
	}
	if f.Samples() != 8 {
		t.Fatalf("samples: %d", f.Samples())
	}

	if _, err := Open(drv, "sound/music/missing.acm"); err == nil {
		t.Fatal("missing asset opened")
	}
}
