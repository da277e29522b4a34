package turbo

import "math/rand/v2"

const interleaverSeed = 42

// convCode is a rate 1/2 convolutional encoder. The first output is the
// systematic bit, the second is the parity bit of generator index 1.
type convCode struct {
	memory     uint
	generators [2]uint
}

func newConvCode() convCode {
	return convCode{memory: 3, generators: [2]uint{0b1011, 0b1111}}
}

func (c convCode) nextState(state uint, bit uint8) uint {
	return ((state << 1) | uint(bit)) & ((1 << c.memory) - 1)
}

func (c convCode) parity(state uint, bit uint8) uint8 {
	tap := state & c.generators[1]
	if bit != 0 {
		tap |= 1 << (c.memory - 1)
	}
	var p uint8
	for tap != 0 {
		p ^= uint8(tap & 1)
		tap >>= 1
	}
	return p
}

// encode returns the parity stream for bits, starting from the zero state.
func (c convCode) encode(bits []uint8) []uint8 {
	out := make([]uint8, len(bits))
	var state uint
	for i, b := range bits {
		out[i] = c.parity(state, b)
		state = c.nextState(state, b)
	}
	return out
}

// interleaver returns the fixed permutation used for the second encoder.
func interleaver(n int) []int {
	r := rand.New(rand.NewPCG(interleaverSeed, 0))
	return r.Perm(n)
}

func permute(src []uint8, perm []int) []uint8 {
	dst := make([]uint8, len(src))
	for i, idx := range perm {
		dst[idx] = src[i]
	}
	return dst
}

func bytesToBits(b []byte) []uint8 {
	bits := make([]uint8, 0, len(b)*8)
	for _, c := range b {
		for i := 7; i >= 0; i-- {
			bits = append(bits, (c>>uint(i))&1)
		}
	}
	return bits
}

func bitsToBytes(bits []uint8) []byte {
	out := make([]byte, len(bits)/8)
	for i := range out {
		var v byte
		for _, b := range bits[i*8 : i*8+8] {
			v = v<<1 | b
		}
		out[i] = v
	}
	return out
}

// Encode turbo-encodes message into a string of systematic, parity1,
// parity2 bit triples.
func Encode(message string) string {
	bits := bytesToBits([]byte(message))
	code := newConvCode()
	p1 := code.encode(bits)
	p2 := code.encode(permute(bits, interleaver(len(bits))))

	out := make([]byte, 0, len(bits)*3)
	for i := range bits {
		out = append(out, '0'+bits[i], '0'+p1[i], '0'+p2[i])
	}
	return string(out)
}
