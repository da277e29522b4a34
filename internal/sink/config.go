package sink

import (
	"fmt"
	"os"
	"strings"

	"turbodecode/internal/errors"
	"turbodecode/pkg/exception"
)

const (
	defaultFilePattern       = "%s_Output.csv"
	defaultBufferSize        = 64 * 1024
	defaultDelimiter    byte = ','
	defaultPerm              = os.FileMode(0o644)
)

// Config controls where and how strategy outputs are written.
type Config struct {
	Dir         string
	FilePattern string
	BufferSize  int
	Delimiter   byte
	DisableSync bool
	// Perm is applied to every output file. Zero means 0644.
	Perm        os.FileMode
}

// DefaultConfig returns a baseline configuration writing into dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:         dir,
		FilePattern: defaultFilePattern,
		BufferSize:  defaultBufferSize,
		Delimiter:   defaultDelimiter,
		Perm:        defaultPerm,
	}
}

func (c Config) withDefaults() Config {
	if c.Dir == "" {
		c.Dir = "."
	}
	if c.FilePattern == "" {
		c.FilePattern = defaultFilePattern
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.Delimiter == 0 {
		c.Delimiter = defaultDelimiter
	}
	if c.Perm == 0 {
		c.Perm = defaultPerm
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.BufferSize < 0 {
		return errors.Wrap(exception.ErrInvalidArgument, "sink config: BufferSize must be >= 0")
	}
	if strings.Count(c.FilePattern, "%s") != 1 {
		return errors.Wrap(exception.ErrInvalidArgument, "sink config: FilePattern must contain exactly one %s")
	}
	if c.Delimiter == '\n' || c.Delimiter == '\r' {
		return errors.Wrap(exception.ErrInvalidArgument, "sink config: Delimiter must not be a line break")
	}
	if c.Perm&^os.ModePerm != 0 {
		return errors.Wrapf(exception.ErrInvalidArgument, "sink config: Perm %v has non-permission bits", c.Perm)
	}
	return nil
}

// FileName returns the output file name for a strategy.
func (c Config) FileName(name string) string {
	return fmt.Sprintf(c.withDefaults().FilePattern, name)
}
