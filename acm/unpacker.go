package acm

import (
	"fmt"

	"github.com/32bitkid/fallout"
	"github.com/32bitkid/fallout/stream"
)

// valueUnpacker pulls quantized coefficients out of the compressed
// bitstream, one block at a time. A block is a matrix of subblocks rows
// by 1<<levels columns, stored row-major; each column is encoded with
// its own 5-bit filler code describing how the column's rows were
// quantized.
//
// Bits are consumed LSB-first: each refill byte enters the accumulator
// above the bits already held.
type valueUnpacker struct {
	src       *stream.Reader
	levels    uint
	subblocks int
	cols      int // 1 << levels

	acc   uint32
	avail uint

	// Signed amplitude lookup rebuilt from each block's header, indexed
	// from the middle. 1<<pwr entries on each side, pwr <= 15.
	amp [0x10000]int32
}

const ampMiddle = 0x8000

func newValueUnpacker(levels uint, subblocks int, src *stream.Reader) (*valueUnpacker, error) {
	if subblocks <= 0 {
		return nil, &fallout.FormatError{Format: "ACM", Reason: "degenerate block geometry: no subblocks"}
	}
	return &valueUnpacker{
		src:       src,
		levels:    levels,
		subblocks: subblocks,
		cols:      1 << levels,
	}, nil
}

// reset drops any buffered bits so decoding restarts from the stream's
// current cursor.
func (u *valueUnpacker) reset() {
	u.acc = 0
	u.avail = 0
}

func (u *valueUnpacker) getBits(n uint) (uint32, error) {
	for u.avail < n {
		b, err := u.src.U8()
		if err != nil {
			return 0, err
		}
		u.acc |= uint32(b) << u.avail
		u.avail += 8
	}
	v := u.acc & (1<<n - 1)
	u.acc >>= n
	u.avail -= n
	return v, nil
}

func (u *valueUnpacker) mid(i int32) int32 {
	return u.amp[ampMiddle+int(i)]
}

func (u *valueUnpacker) corrupt(format string, args ...interface{}) error {
	return &fallout.FormatError{Format: "ACM", Reason: fmt.Sprintf(format, args...)}
}

// nextBlock fills block (len subblocks<<levels) from the bitstream.
// A clean end of input at a block boundary returns (false, nil); an
// invalid filler code or truncation inside a block returns an error.
func (u *valueUnpacker) nextBlock(block []int32) (bool, error) {
	pwr, err := u.getBits(4)
	if err != nil {
		// Nothing but byte padding left: the stream is exhausted.
		return false, nil
	}
	val, err := u.getBits(16)
	if err != nil {
		return false, u.corrupt("truncated block header")
	}

	// Build the amplitude lookup: multiples of the base value on both
	// sides of zero, truncated to 16 bits exactly as the reference
	// codec does.
	count := int32(1) << pwr
	v := int32(0)
	for i := int32(0); i < count; i++ {
		u.amp[ampMiddle+int(i)] = int32(int16(v))
		v += int32(val)
	}
	v = -int32(val)
	for i := int32(0); i < count; i++ {
		u.amp[ampMiddle-1-int(i)] = int32(int16(v))
		v -= int32(val)
	}

	for col := 0; col < u.cols; col++ {
		ind, err := u.getBits(5)
		if err != nil {
			return false, u.corrupt("truncated filler code for column %d", col)
		}
		fill := fillers[ind]
		if fill == nil {
			return false, u.corrupt("invalid filler code %d for column %d", ind, col)
		}
		if err := fill(u, block, col, uint(ind)); err != nil {
			return false, err
		}
	}
	return true, nil
}

// One filler per 5-bit code. Codes 1, 2, 25, 28, 30 and 31 do not occur
// in valid streams.
var fillers = [32]func(*valueUnpacker, []int32, int, uint) error{
	0:  (*valueUnpacker).zeroFill,
	3:  (*valueUnpacker).linearFill,
	4:  (*valueUnpacker).linearFill,
	5:  (*valueUnpacker).linearFill,
	6:  (*valueUnpacker).linearFill,
	7:  (*valueUnpacker).linearFill,
	8:  (*valueUnpacker).linearFill,
	9:  (*valueUnpacker).linearFill,
	10: (*valueUnpacker).linearFill,
	11: (*valueUnpacker).linearFill,
	12: (*valueUnpacker).linearFill,
	13: (*valueUnpacker).linearFill,
	14: (*valueUnpacker).linearFill,
	15: (*valueUnpacker).linearFill,
	16: (*valueUnpacker).linearFill,
	17: (*valueUnpacker).k13,
	18: (*valueUnpacker).k12,
	19: (*valueUnpacker).t15,
	20: (*valueUnpacker).k24,
	21: (*valueUnpacker).k23,
	22: (*valueUnpacker).t27,
	23: (*valueUnpacker).k35,
	24: (*valueUnpacker).k34,
	26: (*valueUnpacker).k45,
	27: (*valueUnpacker).k44,
	29: (*valueUnpacker).t37,
}

// zeroFill clears the whole column.
func (u *valueUnpacker) zeroFill(block []int32, col int, _ uint) error {
	for sp := col; sp < len(block); sp += u.cols {
		block[sp] = 0
	}
	return nil
}

// linearFill reads ind bits per row, a direct index into the amplitude
// lookup biased to its middle.
func (u *valueUnpacker) linearFill(block []int32, col int, ind uint) error {
	middle := int32(1) << (ind - 1)
	for sp := col; sp < len(block); sp += u.cols {
		b, err := u.getBits(ind)
		if err != nil {
			return u.corrupt("truncated column %d", col)
		}
		block[sp] = u.mid(int32(b) - middle)
	}
	return nil
}

// k13: 0 -> two zeros, 10 -> one zero, 11x -> +-1.
func (u *valueUnpacker) k13(block []int32, col int, _ uint) error {
	sp := col
	for i := 0; i < u.subblocks; i++ {
		b, err := u.getBits(1)
		if err != nil {
			return u.corrupt("truncated column %d", col)
		}
		if b == 0 {
			block[sp] = 0
			sp += u.cols
			i++
			if i == u.subblocks {
				break
			}
			block[sp] = 0
			sp += u.cols
			continue
		}
		if b, err = u.getBits(1); err != nil {
			return u.corrupt("truncated column %d", col)
		}
		if b == 0 {
			block[sp] = 0
			sp += u.cols
			continue
		}
		if b, err = u.getBits(1); err != nil {
			return u.corrupt("truncated column %d", col)
		}
		if b != 0 {
			block[sp] = u.mid(1)
		} else {
			block[sp] = u.mid(-1)
		}
		sp += u.cols
	}
	return nil
}

// k12: 0 -> zero, 1x -> +-1.
func (u *valueUnpacker) k12(block []int32, col int, _ uint) error {
	for sp := col; sp < len(block); sp += u.cols {
		b, err := u.getBits(1)
		if err != nil {
			return u.corrupt("truncated column %d", col)
		}
		if b == 0 {
			block[sp] = 0
			continue
		}
		if b, err = u.getBits(1); err != nil {
			return u.corrupt("truncated column %d", col)
		}
		if b != 0 {
			block[sp] = u.mid(1)
		} else {
			block[sp] = u.mid(-1)
		}
	}
	return nil
}

// k24: 0 -> two zeros, 10 -> one zero, 11xx -> -2,-1,+1,+2.
func (u *valueUnpacker) k24(block []int32, col int, _ uint) error {
	sp := col
	for i := 0; i < u.subblocks; i++ {
		b, err := u.getBits(1)
		if err != nil {
			return u.corrupt("truncated column %d", col)
		}
		if b == 0 {
			block[sp] = 0
			sp += u.cols
			i++
			if i == u.subblocks {
				break
			}
			block[sp] = 0
			sp += u.cols
			continue
		}
		if b, err = u.getBits(1); err != nil {
			return u.corrupt("truncated column %d", col)
		}
		if b == 0 {
			block[sp] = 0
			sp += u.cols
			continue
		}
		if b, err = u.getBits(2); err != nil {
			return u.corrupt("truncated column %d", col)
		}
		block[sp] = u.mid(pm2[b])
		sp += u.cols
	}
	return nil
}

// k23: 0 -> zero, 1xx -> -2,-1,+1,+2.
func (u *valueUnpacker) k23(block []int32, col int, _ uint) error {
	for sp := col; sp < len(block); sp += u.cols {
		b, err := u.getBits(1)
		if err != nil {
			return u.corrupt("truncated column %d", col)
		}
		if b == 0 {
			block[sp] = 0
			continue
		}
		if b, err = u.getBits(2); err != nil {
			return u.corrupt("truncated column %d", col)
		}
		block[sp] = u.mid(pm2[b])
	}
	return nil
}

// k35: 0 -> two zeros, 10 -> one zero, 110x -> +-1, 111xx -> -3,-2,+2,+3.
func (u *valueUnpacker) k35(block []int32, col int, _ uint) error {
	sp := col
	for i := 0; i < u.subblocks; i++ {
		b, err := u.getBits(1)
		if err != nil {
			return u.corrupt("truncated column %d", col)
		}
		if b == 0 {
			block[sp] = 0
			sp += u.cols
			i++
			if i == u.subblocks {
				break
			}
			block[sp] = 0
			sp += u.cols
			continue
		}
		if b, err = u.getBits(1); err != nil {
			return u.corrupt("truncated column %d", col)
		}
		if b == 0 {
			block[sp] = 0
			sp += u.cols
			continue
		}
		if b, err = u.getBits(1); err != nil {
			return u.corrupt("truncated column %d", col)
		}
		if b == 0 {
			if b, err = u.getBits(1); err != nil {
				return u.corrupt("truncated column %d", col)
			}
			if b != 0 {
				block[sp] = u.mid(1)
			} else {
				block[sp] = u.mid(-1)
			}
		} else {
			if b, err = u.getBits(2); err != nil {
				return u.corrupt("truncated column %d", col)
			}
			block[sp] = u.mid(pm3[b])
		}
		sp += u.cols
	}
	return nil
}

// k34: 0 -> zero, 10x -> +-1, 11xx -> -3,-2,+2,+3.
func (u *valueUnpacker) k34(block []int32, col int, _ uint) error {
	for sp := col; sp < len(block); sp += u.cols {
		b, err := u.getBits(1)
		if err != nil {
			return u.corrupt("truncated column %d", col)
		}
		if b == 0 {
			block[sp] = 0
			continue
		}
		if b, err = u.getBits(1); err != nil {
			return u.corrupt("truncated column %d", col)
		}
		if b == 0 {
			if b, err = u.getBits(1); err != nil {
				return u.corrupt("truncated column %d", col)
			}
			if b != 0 {
				block[sp] = u.mid(1)
			} else {
				block[sp] = u.mid(-1)
			}
		} else {
			if b, err = u.getBits(2); err != nil {
				return u.corrupt("truncated column %d", col)
			}
			block[sp] = u.mid(pm3[b])
		}
	}
	return nil
}

// k45: 0 -> two zeros, 10 -> one zero, 11xxx -> -4..-1,+1..+4.
func (u *valueUnpacker) k45(block []int32, col int, _ uint) error {
	sp := col
	for i := 0; i < u.subblocks; i++ {
		b, err := u.getBits(1)
		if err != nil {
			return u.corrupt("truncated column %d", col)
		}
		if b == 0 {
			block[sp] = 0
			sp += u.cols
			i++
			if i == u.subblocks {
				break
			}
			block[sp] = 0
			sp += u.cols
			continue
		}
		if b, err = u.getBits(1); err != nil {
			return u.corrupt("truncated column %d", col)
		}
		if b == 0 {
			block[sp] = 0
			sp += u.cols
			continue
		}
		if b, err = u.getBits(3); err != nil {
			return u.corrupt("truncated column %d", col)
		}
		block[sp] = u.mid(pm4(b))
		sp += u.cols
	}
	return nil
}

// k44: 0 -> zero, 1xxx -> -4..-1,+1..+4.
func (u *valueUnpacker) k44(block []int32, col int, _ uint) error {
	for sp := col; sp < len(block); sp += u.cols {
		b, err := u.getBits(1)
		if err != nil {
			return u.corrupt("truncated column %d", col)
		}
		if b == 0 {
			block[sp] = 0
			continue
		}
		if b, err = u.getBits(3); err != nil {
			return u.corrupt("truncated column %d", col)
		}
		block[sp] = u.mid(pm4(b))
	}
	return nil
}

// t15: a 5-bit code packs three base-3 digits, each a value in -1..+1.
func (u *valueUnpacker) t15(block []int32, col int, _ uint) error {
	sp := col
	for i := 0; i < u.subblocks; i++ {
		b, err := u.getBits(5)
		if err != nil {
			return u.corrupt("truncated column %d", col)
		}
		if b > 26 {
			return u.corrupt("base-3 code %d out of range in column %d", b, col)
		}
		block[sp] = u.mid(int32(b%3) - 1)
		sp += u.cols
		i++
		if i == u.subblocks {
			break
		}
		block[sp] = u.mid(int32(b/3%3) - 1)
		sp += u.cols
		i++
		if i == u.subblocks {
			break
		}
		block[sp] = u.mid(int32(b/9) - 1)
		sp += u.cols
	}
	return nil
}

// t27: a 7-bit code packs three base-5 digits, each a value in -2..+2.
func (u *valueUnpacker) t27(block []int32, col int, _ uint) error {
	sp := col
	for i := 0; i < u.subblocks; i++ {
		b, err := u.getBits(7)
		if err != nil {
			return u.corrupt("truncated column %d", col)
		}
		if b > 124 {
			return u.corrupt("base-5 code %d out of range in column %d", b, col)
		}
		block[sp] = u.mid(int32(b%5) - 2)
		sp += u.cols
		i++
		if i == u.subblocks {
			break
		}
		block[sp] = u.mid(int32(b/5%5) - 2)
		sp += u.cols
		i++
		if i == u.subblocks {
			break
		}
		block[sp] = u.mid(int32(b/25) - 2)
		sp += u.cols
	}
	return nil
}

// t37: a 7-bit code packs two base-11 digits, each a value in -5..+5.
func (u *valueUnpacker) t37(block []int32, col int, _ uint) error {
	sp := col
	for i := 0; i < u.subblocks; i++ {
		b, err := u.getBits(7)
		if err != nil {
			return u.corrupt("truncated column %d", col)
		}
		if b > 120 {
			return u.corrupt("base-11 code %d out of range in column %d", b, col)
		}
		block[sp] = u.mid(int32(b%11) - 5)
		sp += u.cols
		i++
		if i == u.subblocks {
			break
		}
		block[sp] = u.mid(int32(b/11) - 5)
		sp += u.cols
	}
	return nil
}

// 2-bit suffix lookups skipping zero.
var pm2 = [4]int32{-2, -1, 1, 2}
var pm3 = [4]int32{-3, -2, 2, 3}

// 3-bit suffix covering -4..-1,+1..+4.
func pm4(b uint32) int32 {
	if b > 3 {
		return int32(b) - 3
	}
	return int32(b) - 4
}
