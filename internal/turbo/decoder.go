package turbo

import (
	"context"
	"math"

	"turbodecode/internal/decode"
	"turbodecode/internal/errors"
	"turbodecode/pkg/exception"
)

// Canonical strategy names.
const (
	BCJR   = "BCJR"
	MAP    = "MAP"
	SOVA   = "SOVA"
	HYBRID = "HYBRID"
)

var (
	errEmptySymbol  = errors.New("empty symbol")
	errSymbolLength = errors.New("symbol length is not a whole number of encoded bytes")
	errSymbolDigit  = errors.New("symbol contains a non-binary digit")
	errUnprintable  = errors.New("decoded text is not printable")
)

// Names returns the canonical strategy names in reference order.
func Names() []string {
	return []string{BCJR, MAP, SOVA, HYBRID}
}

// Register installs the four canonical strategies.
func Register(reg *decode.Registry) error {
	for _, name := range Names() {
		if err := reg.Register(name, NewDecoder(name)); err != nil {
			return err
		}
	}
	return nil
}

// kernel computes extrinsic information for one constituent code.
type kernel func(llr []float64, parity []uint8, code convCode, weight float64) []float64

// Decoder iteratively decodes turbo symbols with the kernel schedule of
// one strategy.
type Decoder struct {
	name     string
	schedule func(iter, total int) kernel
}

// NewDecoder creates the decoder for a canonical strategy name. Unknown
// names fall back to the MAP schedule.
func NewDecoder(name string) *Decoder {
	d := &Decoder{name: name}
	switch name {
	case SOVA:
		d.schedule = func(int, int) kernel { return sovaKernel }
	case HYBRID:
		d.schedule = func(iter, total int) kernel {
			if iter < total/2 {
				return mapKernel
			}
			return sovaKernel
		}
	default:
		d.schedule = func(int, int) kernel { return mapKernel }
	}
	return d
}

func (d *Decoder) Name() string {
	return d.name
}

// Decode implements decode.Decoder.
func (d *Decoder) Decode(ctx context.Context, symbol string, ch decode.Channel) (string, error) {
	sys, p1, p2, err := split(symbol)
	if err != nil {
		return "", errors.Join(exception.ErrDecodeFailure, err)
	}

	n := len(sys)
	perm := interleaver(n)
	code := newConvCode()
	weight := 2 / ch.NoiseVariance

	channel := make([]float64, n)
	for i, b := range sys {
		channel[i] = weight * bipolar(b)
	}

	ext1 := make([]float64, n)
	ext2 := make([]float64, n)
	prior := make([]float64, n)
	interleaved := make([]float64, n)
	for iter := 0; iter < ch.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		k := d.schedule(iter, ch.MaxIterations)

		for i := range prior {
			prior[i] = channel[i] + ext2[i]
		}
		next1 := k(prior, p1, code, weight)

		for i, idx := range perm {
			interleaved[idx] = channel[i] + next1[i]
		}
		out2 := k(interleaved, p2, code, weight)
		next2 := make([]float64, n)
		for i, idx := range perm {
			next2[i] = out2[idx]
		}

		delta := maxDelta(ext1, next1)
		ext1, ext2 = next1, next2
		if delta < ch.ConvergenceThreshold {
			break
		}
	}

	bits := make([]uint8, n)
	for i := range bits {
		if channel[i]+ext1[i]+ext2[i] > 0 {
			bits[i] = 1
		}
	}

	out := bitsToBytes(bits)
	for _, c := range out {
		if c < 0x20 || c > 0x7e {
			return "", errors.Join(exception.ErrDecodeFailure, errUnprintable)
		}
	}
	return string(out), nil
}

func split(symbol string) (sys, p1, p2 []uint8, err error) {
	if len(symbol) == 0 {
		return nil, nil, nil, errEmptySymbol
	}
	if len(symbol)%24 != 0 {
		return nil, nil, nil, errSymbolLength
	}
	n := len(symbol) / 3
	sys = make([]uint8, n)
	p1 = make([]uint8, n)
	p2 = make([]uint8, n)
	for i := 0; i < len(symbol); i++ {
		c := symbol[i]
		if c != '0' && c != '1' {
			return nil, nil, nil, errSymbolDigit
		}
		b := c - '0'
		switch i % 3 {
		case 0:
			sys[i/3] = b
		case 1:
			p1[i/3] = b
		default:
			p2[i/3] = b
		}
	}
	return sys, p1, p2, nil
}

// mapKernel re-encodes the current hard decisions and rewards every
// position whose parity agrees with the received parity.
func mapKernel(llr []float64, parity []uint8, code convCode, weight float64) []float64 {
	agree := agreement(llr, parity, code)
	out := make([]float64, len(llr))
	for i, a := range agree {
		out[i] = a * sign(llr[i]) * weight
	}
	return out
}

// sovaKernel is mapKernel with the reliability clipped to the current
// soft value, as a survivor path would.
func sovaKernel(llr []float64, parity []uint8, code convCode, weight float64) []float64 {
	agree := agreement(llr, parity, code)
	out := make([]float64, len(llr))
	for i, a := range agree {
		out[i] = a * sign(llr[i]) * math.Min(math.Abs(llr[i]), weight)
	}
	return out
}

func agreement(llr []float64, parity []uint8, code convCode) []float64 {
	hard := make([]uint8, len(llr))
	for i, v := range llr {
		if v > 0 {
			hard[i] = 1
		}
	}
	expected := code.encode(hard)
	out := make([]float64, len(llr))
	for i := range out {
		if expected[i] == parity[i] {
			out[i] = 1
		} else {
			out[i] = -1
		}
	}
	return out
}

func bipolar(b uint8) float64 {
	if b == 0 {
		return -1
	}
	return 1
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func maxDelta(a, b []float64) float64 {
	var m float64
	for i := range a {
		if d := math.Abs(a[i] - b[i]); d > m {
			m = d
		}
	}
	return m
}
