package acm

// subbandDecoder runs the codec's inverse filter bank over a block of
// unpacked coefficients, in place. Each pass halves the column width
// and doubles the run length, refining coarse values into finer deltas;
// the wrap buffer carries the last two rows of every column across
// blocks so the filter is continuous over the whole stream.
type subbandDecoder struct {
	levels uint
	wrap   []int32
}

func newSubbandDecoder(levels uint) *subbandDecoder {
	var wrap []int32
	if levels > 0 {
		wrap = make([]int32, (2<<levels)-2)
	}
	return &subbandDecoder{levels: levels, wrap: wrap}
}

// reset zeroes the carried filter state, for restarting the stream from
// the top.
func (d *subbandDecoder) reset() {
	for i := range d.wrap {
		d.wrap[i] = 0
	}
}

// decode transforms one block of subblocks rows in place. It cannot
// fail; garbage in, garbage out.
func (d *subbandDecoder) decode(block []int32, subblocks int) {
	if d.levels == 0 {
		return
	}

	// Rows are processed in bounded chunks, exactly as the reference
	// decoder sizes them.
	step := 1
	if d.levels <= 9 {
		step = (2048 >> d.levels) - 2
	}

	cols := 1 << d.levels
	todo := subblocks
	base := 0
	for {
		chunk := todo
		if chunk > step {
			chunk = step
		}

		subLen := cols / 2
		subCount := chunk * 2
		wrap := d.wrap
		for subLen > 0 {
			juggle(wrap[:2*subLen], block[base:], subLen, subCount)
			wrap = wrap[2*subLen:]
			subCount *= 2
			subLen /= 2
		}

		if todo <= step {
			break
		}
		todo -= step
		base += step << d.levels
	}
}

// juggle applies the pair transform down each of subLen interleaved
// columns: x' = 2*r1 + (r0 + r2), y' = 2*r2 - (r1 + r3), seeding r0/r1
// from wrap and storing the trailing pair back.
func juggle(wrap, block []int32, subLen, subCount int) {
	for i := 0; i < subLen; i++ {
		p := i
		r0 := wrap[2*i]
		r1 := wrap[2*i+1]
		for j := 0; j < subCount/2; j++ {
			r2 := block[p]
			block[p] = 2*r1 + (r0 + r2)
			p += subLen

			r3 := block[p]
			block[p] = 2*r2 - (r1 + r3)
			p += subLen

			r0, r1 = r2, r3
		}
		wrap[2*i] = r0
		wrap[2*i+1] = r1
	}
}
