package decode

import (
	"context"
	"sort"
	"sync"

	"turbodecode/internal/errors"
	"turbodecode/pkg/exception"
)

// Decoder turns one cleaned symbol into a decoded value. Implementations
// must be deterministic for a fixed (symbol, channel) pair and safe for
// concurrent use. A per-symbol failure should match
// exception.ErrDecodeFailure.
type Decoder interface {
	Decode(ctx context.Context, symbol string, ch Channel) (string, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(ctx context.Context, symbol string, ch Channel) (string, error)

func (f DecoderFunc) Decode(ctx context.Context, symbol string, ch Channel) (string, error) {
	return f(ctx, symbol, ch)
}

// Binding pairs a strategy name with its resolved decoder.
type Binding struct {
	Name    string
	Decoder Decoder
}

// Registry maps strategy names to decoders.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]Decoder
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]Decoder)}
}

// Register adds a decoder under name.
func (r *Registry) Register(name string, d Decoder) error {
	if name == "" {
		return errors.New("register strategy: empty name")
	}
	if d == nil {
		return errors.Wrapf(exception.ErrNilInstance, "register strategy %s", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.decoders[name]; ok {
		return errors.Wrapf(exception.ErrInvalidArgument, "register strategy %s: already registered", name)
	}
	r.decoders[name] = d
	return nil
}

// Lookup returns the decoder registered under name.
func (r *Registry) Lookup(name string) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.decoders[name]
	return d, ok
}

// Names returns the registered strategy names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.decoders))
	for name := range r.decoders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve binds every name to its decoder, keeping the given order.
func (r *Registry) Resolve(names []string) ([]Binding, error) {
	bindings := make([]Binding, 0, len(names))
	for _, name := range names {
		d, ok := r.Lookup(name)
		if !ok {
			return nil, errors.Wrapf(exception.ErrUnknownStrategy, "resolve %q", name)
		}
		bindings = append(bindings, Binding{Name: name, Decoder: d})
	}
	return bindings, nil
}

// Decode runs the strategy registered under name.
func (r *Registry) Decode(ctx context.Context, symbol string, ch Channel, name string) (string, error) {
	d, ok := r.Lookup(name)
	if !ok {
		return "", errors.Wrapf(exception.ErrUnknownStrategy, "decode %q", name)
	}
	return d.Decode(ctx, symbol, ch)
}
