package decode

import (
	"math"

	"turbodecode/internal/errors"
	"turbodecode/pkg/exception"
)

const (
	DefaultNoiseVariance        = 0.5
	DefaultMaxIterations        = 20
	DefaultConvergenceThreshold = 0.001
)

// Channel holds the channel and iteration parameters shared by every
// strategy for the duration of a run. It is passed by value and never
// mutated after the run starts.
type Channel struct {
	NoiseVariance        float64
	MaxIterations        int
	ConvergenceThreshold float64
}

// DefaultChannel returns the reference channel parameters.
func DefaultChannel() Channel {
	return Channel{
		NoiseVariance:        DefaultNoiseVariance,
		MaxIterations:        DefaultMaxIterations,
		ConvergenceThreshold: DefaultConvergenceThreshold,
	}
}

// Validate checks if the channel parameters are usable.
func (c Channel) Validate() error {
	if math.IsNaN(c.NoiseVariance) || math.IsInf(c.NoiseVariance, 0) || c.NoiseVariance <= 0 {
		return errors.Wrapf(exception.ErrInvalidArgument, "channel: NoiseVariance must be > 0, got %v", c.NoiseVariance)
	}
	if c.MaxIterations <= 0 {
		return errors.Wrapf(exception.ErrInvalidArgument, "channel: MaxIterations must be > 0, got %d", c.MaxIterations)
	}
	if math.IsNaN(c.ConvergenceThreshold) || c.ConvergenceThreshold < 0 {
		return errors.Wrapf(exception.ErrInvalidArgument, "channel: ConvergenceThreshold must be >= 0, got %v", c.ConvergenceThreshold)
	}
	return nil
}
