// Package config defines the single parameter record threaded through
// build and query, following the same shape as the teacher's
// FingerprintConfig: one struct, sane defaults, loadable from YAML and
// overridable from the environment.
package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// StereoMode controls how multi-channel audio is reduced before
// fingerprinting. Builder and matcher must agree (see Params.Equal).
type StereoMode string

const (
	StereoMono        StereoMode = "mono"        // average channels
	StereoIndependent StereoMode = "independent" // fingerprint each channel, union hashes
)

// Params is the configuration record shared by every stage of the
// pipeline. Two Params values are compatible only if Equal reports true;
// a mismatch between build-time and query-time Params is a checked
// precondition (errs.ParamsMismatch), not undefined behavior.
type Params struct {
	NFFT           int        `yaml:"n_fft"`
	Hop            int        `yaml:"hop"`
	ThresholdDB    float64    `yaml:"threshold_db"`
	FanOut         int        `yaml:"fan_out"`
	DtMin          int        `yaml:"dt_min"`
	DtMax          int        `yaml:"dt_max"`
	PeaksPerSecond float64    `yaml:"peaks_per_second"`
	Stereo         StereoMode `yaml:"stereo"`
	Workers        int        `yaml:"workers"`
	QueueDepth     int        `yaml:"queue_depth"`
	LookupChunk    int        `yaml:"lookup_chunk"`
	MaxStoreRetry  int        `yaml:"max_store_retry"`
}

// Default returns the parameter set named throughout the specification:
// n_fft=2048, hop=512, threshold_dB=20, fan_out=15, dt in [1,200],
// peaks_per_second=30.
func Default() Params {
	return Params{
		NFFT:           2048,
		Hop:            512,
		ThresholdDB:    20,
		FanOut:         15,
		DtMin:          1,
		DtMax:          200,
		PeaksPerSecond: 30,
		Stereo:         StereoMono,
		Workers:        runtime.NumCPU(),
		QueueDepth:     2 * runtime.NumCPU(),
		LookupChunk:    500,
		MaxStoreRetry:  5,
	}
}

// Load reads a YAML config file, starting from Default() so the file
// only needs to specify overrides, and validates the result. Nothing is
// read from the environment; an empty path returns Default().
func Load(path string) (Params, error) {
	p := Default()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Validate rejects parameter combinations that would make the pipeline
// degenerate (e.g. a hop larger than the window, or an empty target zone).
func (p Params) Validate() error {
	if p.NFFT <= 0 || p.Hop <= 0 {
		return fmt.Errorf("n_fft and hop must be positive")
	}
	if p.Hop > p.NFFT {
		return fmt.Errorf("hop (%d) must not exceed n_fft (%d)", p.Hop, p.NFFT)
	}
	if p.FanOut <= 0 {
		return fmt.Errorf("fan_out must be positive")
	}
	if p.DtMin < 0 || p.DtMax < p.DtMin {
		return fmt.Errorf("invalid dt range [%d, %d]", p.DtMin, p.DtMax)
	}
	if p.Stereo != StereoMono && p.Stereo != StereoIndependent {
		return fmt.Errorf("unknown stereo mode %q", p.Stereo)
	}
	if p.Workers <= 0 {
		p.Workers = 1
	}
	return nil
}

// Equal reports whether two Params produce compatible fingerprints.
// Concurrency knobs (Workers, QueueDepth, LookupChunk, MaxStoreRetry) are
// excluded since they don't affect the hash space.
func (p Params) Equal(other Params) bool {
	return p.NFFT == other.NFFT &&
		p.Hop == other.Hop &&
		p.ThresholdDB == other.ThresholdDB &&
		p.FanOut == other.FanOut &&
		p.DtMin == other.DtMin &&
		p.DtMax == other.DtMax &&
		p.PeaksPerSecond == other.PeaksPerSecond &&
		p.Stereo == other.Stereo
}

// LoadDotEnv loads a .env file into the process environment if present,
// using joho/godotenv as the teacher does. Missing .env is not an error.
func LoadDotEnv(path string) {
	_ = godotenv.Load(path)
}

// GetEnv returns the environment variable named key, or fallback if unset,
// matching the helper used throughout the teacher's db package.
func GetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
