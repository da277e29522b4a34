package ops

import (
	"fmt"
	"os"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/decimal"

	"turbodecode/internal/decode"
	"turbodecode/internal/harness"
	"turbodecode/internal/record"
	"turbodecode/internal/sink"
	"turbodecode/internal/turbo"
)

const (
	DefaultInput     = "Turbo_Codes_Data.csv"
	DefaultOutputDir = "."
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Input       string        `json:"input"`
	OutputDir   string        `json:"outputDir"`
	FilePattern string        `json:"filePattern"`
	Strategies  []string      `json:"strategies"`
	Channel     ChannelConfig `json:"channel"`
	Parser      ParserConfig  `json:"parser"`
	Sentinel    string        `json:"sentinel"`
	Parallel    *bool         `json:"parallel"`
	Report      ReportConfig  `json:"report"`
}

// ChannelConfig holds the channel parameters as exact decimals.
type ChannelConfig struct {
	NoiseVariance        *decimal.Decimal `json:"noiseVariance"`
	MaxIterations        int              `json:"maxIterations"`
	ConvergenceThreshold *decimal.Decimal `json:"convergenceThreshold"`
}

// ParserConfig describes the input line format.
type ParserConfig struct {
	Delimiter string `json:"delimiter"`
	SuffixLen *int   `json:"suffixLen"`
	Marker    string `json:"marker"`
}

// ReportConfig describes where run reports are persisted.
type ReportConfig struct {
	DSN string `json:"dsn"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Harness   harness.Config
	ReportDSN string
}

// Default returns the reference configuration: the four canonical
// strategies over Turbo_Codes_Data.csv in the working directory.
func Default() Loaded {
	return Loaded{
		Harness: harness.Config{
			Input:      DefaultInput,
			Parser:     record.DefaultParser(),
			Sink:       sink.DefaultConfig(DefaultOutputDir),
			Strategies: turbo.Names(),
			Channel:    decode.DefaultChannel(),
		},
	}
}

// Load reads a JSON config file and resolves it over Default.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return Resolve(cfg)
}

// Resolve applies a file config over Default.
func Resolve(cfg FileConfig) (Loaded, error) {
	loaded := Default()
	hc := &loaded.Harness

	if cfg.Input != "" {
		hc.Input = cfg.Input
	}
	if cfg.OutputDir != "" {
		hc.Sink.Dir = cfg.OutputDir
	}
	if cfg.FilePattern != "" {
		hc.Sink.FilePattern = cfg.FilePattern
	}
	if len(cfg.Strategies) != 0 {
		hc.Strategies = append([]string(nil), cfg.Strategies...)
	}
	hc.Sentinel = cfg.Sentinel
	if cfg.Parallel != nil {
		hc.Parallel = *cfg.Parallel
	}

	channel, err := resolveChannel(cfg.Channel, hc.Channel)
	if err != nil {
		return Loaded{}, err
	}
	hc.Channel = channel

	parser, err := resolveParser(cfg.Parser, hc.Parser)
	if err != nil {
		return Loaded{}, err
	}
	hc.Parser = parser
	hc.Sink.Delimiter = parser.Delimiter

	loaded.ReportDSN = cfg.Report.DSN
	return loaded, nil
}

func resolveChannel(cfg ChannelConfig, ch decode.Channel) (decode.Channel, error) {
	if cfg.NoiseVariance != nil {
		v, err := toFloat(*cfg.NoiseVariance)
		if err != nil {
			return ch, fmt.Errorf("channel noiseVariance: %w", err)
		}
		ch.NoiseVariance = v
	}
	if cfg.MaxIterations != 0 {
		ch.MaxIterations = cfg.MaxIterations
	}
	if cfg.ConvergenceThreshold != nil {
		v, err := toFloat(*cfg.ConvergenceThreshold)
		if err != nil {
			return ch, fmt.Errorf("channel convergenceThreshold: %w", err)
		}
		ch.ConvergenceThreshold = v
	}
	if err := ch.Validate(); err != nil {
		return ch, err
	}
	return ch, nil
}

func resolveParser(cfg ParserConfig, p record.Parser) (record.Parser, error) {
	if cfg.Delimiter != "" {
		if len(cfg.Delimiter) != 1 {
			return p, fmt.Errorf("parser delimiter must be one byte, got %q", cfg.Delimiter)
		}
		p.Delimiter = cfg.Delimiter[0]
	}
	if cfg.Marker != "" {
		if len(cfg.Marker) != 1 {
			return p, fmt.Errorf("parser marker must be one byte, got %q", cfg.Marker)
		}
		p.Marker = cfg.Marker[0]
	}
	if cfg.SuffixLen != nil {
		if *cfg.SuffixLen <= 0 {
			return p, fmt.Errorf("parser suffixLen must be > 0")
		}
		p.SuffixLen = *cfg.SuffixLen
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

func toFloat(d decimal.Decimal) (float64, error) {
	return strconv.ParseFloat(d.String(), 64)
}
