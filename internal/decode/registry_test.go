package decode

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turbodecode/internal/errors"
	"turbodecode/pkg/exception"
)

func upper() Decoder {
	return DecoderFunc(func(_ context.Context, symbol string, _ Channel) (string, error) {
		return strings.ToUpper(symbol), nil
	})
}

func TestRegistryRegister(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("MAP", upper()))

	assert.Error(t, reg.Register("", upper()))
	assert.True(t, errors.Is(reg.Register("SOVA", nil), exception.ErrNilInstance))
	assert.True(t, errors.Is(reg.Register("MAP", upper()), exception.ErrInvalidArgument))

	require.NoError(t, reg.Register("BCJR", upper()))
	assert.Equal(t, []string{"BCJR", "MAP"}, reg.Names())
}

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("BCJR", upper()))
	require.NoError(t, reg.Register("MAP", upper()))

	bindings, err := reg.Resolve([]string{"MAP", "BCJR"})
	require.NoError(t, err)
	require.Len(t, bindings, 2)
	assert.Equal(t, "MAP", bindings[0].Name)
	assert.Equal(t, "BCJR", bindings[1].Name)

	_, err = reg.Resolve([]string{"MAP", "TURBO9000"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrUnknownStrategy))
	assert.Contains(t, err.Error(), "TURBO9000")
}

func TestRegistryDecode(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("MAP", upper()))

	out, err := reg.Decode(t.Context(), "abc", DefaultChannel(), "MAP")
	require.NoError(t, err)
	assert.Equal(t, "ABC", out)

	_, err = reg.Decode(t.Context(), "abc", DefaultChannel(), "SOVA")
	assert.True(t, errors.Is(err, exception.ErrUnknownStrategy))
}

func TestRegistryConcurrentLookup(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("MAP", upper()))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := reg.Decode(context.Background(), "x", DefaultChannel(), "MAP")
			assert.NoError(t, err)
			assert.Equal(t, "X", out)
		}()
	}
	wg.Wait()
}

func TestChannelValidate(t *testing.T) {
	assert.NoError(t, DefaultChannel().Validate())

	testCases := []struct {
		desc string
		ch   Channel
	}{
		{"negative noise", Channel{NoiseVariance: -0.5, MaxIterations: 1}},
		{"zero noise", Channel{NoiseVariance: 0, MaxIterations: 1}},
		{"zero iterations", Channel{NoiseVariance: 0.5, MaxIterations: 0}},
		{"negative threshold", Channel{NoiseVariance: 0.5, MaxIterations: 1, ConvergenceThreshold: -1}},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			err := tc.ch.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, exception.ErrInvalidArgument), "got %v", err)
		})
	}
}
