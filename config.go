package zarr

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration written as a string such as "30s" in TOML.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) String() string { return time.Duration(d).String() }

// Config gathers the settings of every tool. Example:
//
//	[transfer]
//	mode = "resume"
//	timeout = "30s"
//	order = [1, 0, 2, 3, 4]
//
//	[pyramid]
//	method = "local_mean"
//	downscale = 2
//	max_layer = 4
//	labeled = true
//
//	[logging]
//	logfile = "/var/log/zarr-transfer.log"
//	max_log_size = 500
//	max_log_age = 30
type Config struct {
	Transfer TransferConfig `toml:"transfer"`
	Pyramid  PyramidConfig  `toml:"pyramid"`
	Import   ImportConfig   `toml:"import"`
	Logging  LogConfig      `toml:"logging"`
}

// DefaultConfig holds the settings used when no file is given.
func DefaultConfig() Config {
	return Config{
		Transfer: TransferConfig{Mode: ModeCopy},
		Pyramid:  DefaultPyramidConfig(),
		Import:   DefaultImportConfig(),
	}
}

// LoadConfig reads a TOML file over DefaultConfig. An empty path returns
// the defaults.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	if path == "" {
		return c, nil
	}
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		return c, fmt.Errorf("could not decode TOML config %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return c, fmt.Errorf("unknown settings in config %q: %v", path, undecoded)
	}
	return c, nil
}

// ParseIntList reads a comma separated list such as "1,1,1,512,512".
// An empty string yields nil.
func ParseIntList(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	out := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("invalid integer list %q: %w", s, err)
		}
		out[i] = n
	}
	return out, nil
}
