package modelconfig

import (
	"context"
	"io/ioutil"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// defaultBatchSlotDivisor and defaultBatchTimeoutSeconds match the
// constants named in spec.md §4.6's batching policy; config.toml may
// override either.
const (
	defaultBatchSlotDivisor    = 5120
	defaultBatchTimeoutSeconds = 10
)

// Config is a model directory's config.toml, decoded. WindowSize is
// required. Load applies defaults to BatchSlotDivisor and
// BatchTimeoutSeconds when they are absent or non-positive;
// SupportedMinCoverage and SupportedRequireDisagreement get no default and
// stay 0 and false when absent from the file.
type Config struct {
	WindowSize                   int  `toml:"window_size"`
	SupportedMinCoverage         int  `toml:"supported_min_coverage"`
	SupportedRequireDisagreement bool `toml:"supported_require_disagreement"`
	BatchSlotDivisor             int  `toml:"batch_slot_divisor"`
	BatchTimeoutSeconds          int  `toml:"batch_timeout_seconds"`
}

// Load reads "<dir>/config.toml" via grailbio/base/file, so dir may be a
// local path or any remote scheme the file package supports (e.g. "s3://").
// A zero or absent window_size is an error: every other caller downstream
// treats WindowSize as the partitioner's fixed window width.
func Load(ctx context.Context, dir string) (_ *Config, err error) {
	path := filepath.Join(dir, "config.toml")
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "modelconfig: opening config", "path", path)
	}
	defer func() {
		if cerr := f.Close(ctx); cerr != nil && err == nil {
			err = errors.E(cerr, "modelconfig: closing config", "path", path)
		}
	}()

	data, err := ioutil.ReadAll(f.Reader(ctx))
	if err != nil {
		return nil, errors.E(err, "modelconfig: reading config", "path", path)
	}

	cfg := &Config{
		BatchSlotDivisor:    defaultBatchSlotDivisor,
		BatchTimeoutSeconds: defaultBatchTimeoutSeconds,
	}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, errors.E(err, "modelconfig: parsing config", "path", path)
	}
	if cfg.WindowSize <= 0 {
		return nil, errors.E("modelconfig: window_size must be positive", "path", path, "got", cfg.WindowSize)
	}
	if cfg.BatchSlotDivisor <= 0 {
		cfg.BatchSlotDivisor = defaultBatchSlotDivisor
	}
	if cfg.BatchTimeoutSeconds <= 0 {
		cfg.BatchTimeoutSeconds = defaultBatchTimeoutSeconds
	}
	return cfg, nil
}
