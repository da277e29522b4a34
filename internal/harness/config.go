package harness

import (
	"io"
	"os"

	"turbodecode/internal/decode"
	"turbodecode/internal/errors"
	"turbodecode/internal/record"
	"turbodecode/internal/sink"
	"turbodecode/pkg/exception"
)

const defaultReadBufferSize = 64 * 1024

// Config describes one batch run.
type Config struct {
	Input      string
	Parser     record.Parser
	Sink       sink.Config
	Strategies []string
	Channel    decode.Channel
	// Sentinel is written in place of a value the strategy could not decode.
	Sentinel   string
	// Parallel decodes the strategies of one record concurrently.
	Parallel   bool
	// Progress receives one "key | symbol" line per accepted record.
	Progress   io.Writer
}

// Validate checks everything that can be checked without opening files.
func (c Config) Validate() error {
	if c.Input == "" {
		return errors.Join(exception.ErrConfiguration, errors.New("input is empty"))
	}
	info, err := os.Stat(c.Input)
	if err != nil {
		return errors.Join(exception.ErrConfiguration, err)
	}
	if info.IsDir() {
		return errors.Join(exception.ErrConfiguration, errors.Wrapf(exception.ErrInvalidArgument, "input %s is a directory", c.Input))
	}
	if len(c.Strategies) == 0 {
		return errors.Join(exception.ErrConfiguration, errors.New("no strategies configured"))
	}
	seen := make(map[string]struct{}, len(c.Strategies))
	for _, name := range c.Strategies {
		if name == "" {
			return errors.Join(exception.ErrConfiguration, errors.New("empty strategy name"))
		}
		if _, ok := seen[name]; ok {
			return errors.Join(exception.ErrConfiguration, errors.Wrapf(exception.ErrInvalidArgument, "duplicate strategy %s", name))
		}
		seen[name] = struct{}{}
	}
	if err := c.Channel.Validate(); err != nil {
		return errors.Join(exception.ErrConfiguration, err)
	}
	if err := c.Parser.Validate(); err != nil {
		return errors.Join(exception.ErrConfiguration, err)
	}
	if err := c.Sink.Validate(); err != nil {
		return errors.Join(exception.ErrConfiguration, err)
	}
	if containsLineBreak(c.Sentinel) {
		return errors.Join(exception.ErrConfiguration, errors.New("sentinel contains a line break"))
	}
	return nil
}

func containsLineBreak(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' || s[i] == '\r' {
			return true
		}
	}
	return false
}
