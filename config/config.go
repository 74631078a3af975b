// Package config gathers the settings of the imgfs command: which image to
// use, the layout for new images and the debug level.
//
// Debug output goes to stderr unless LogFile names a file to append to.
//
// Values come from a YAML file (IMGFS_CONFIG_FILE, or ~/.config/imgfs.yaml
// if that is unset) and are then overridden by IMGFS_* environment
// variables.
package config

import (
	"fmt"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/mit-pdos/go-imgfs/common"
	"github.com/mit-pdos/go-imgfs/super"
)

const (
	envVarPrefix = "IMGFS"
	appName      = "imgfs"
)

type Config struct {
	Image     string `envconfig:"IMAGE"      yaml:"image"`
	BlockSize uint64 `envconfig:"BLOCK_SIZE" yaml:"blockSize"`
	NumBlocks uint64 `envconfig:"NUM_BLOCKS" yaml:"numBlocks"`
	MaxInodes uint64 `envconfig:"MAX_INODES" yaml:"maxInodes"`
	Debug     uint64 `envconfig:"DEBUG"      yaml:"debug"`
	LogFile   string `envconfig:"LOG_FILE"   yaml:"logFile"`
}

func Default() Config {
	return Config{
		Image:     "disk.img",
		BlockSize: common.BLOCKSZ,
		NumBlocks: common.NBLOCKS,
		MaxInodes: common.NINODES,
	}
}

func configFile() string {
	if f := os.Getenv(envVarPrefix + "_CONFIG_FILE"); f != "" {
		return f
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appName+".yaml")
}

// Load reads the config file, if there is one, then the environment.
func Load() (*Config, error) {
	c := Default()
	if f := configFile(); f != "" {
		data, err := ioutil.ReadFile(f)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err == nil {
			if err := yaml.UnmarshalStrict(data, &c); err != nil {
				return nil, fmt.Errorf("unmarshaling config file: %w", err)
			}
		}
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}

	return &c, nil
}

// Layout is the superblock of an image formatted with c.
func (c *Config) Layout() super.Superblock {
	return super.MkLayout(c.BlockSize, c.NumBlocks, c.MaxInodes)
}

func (c *Config) Validate() error {
	for _, f := range []struct {
		name string
		env  string
		v    uint64
	}{
		{"blockSize", "BLOCK_SIZE", c.BlockSize},
		{"numBlocks", "NUM_BLOCKS", c.NumBlocks},
		{"maxInodes", "MAX_INODES", c.MaxInodes},
	} {
		if f.v > math.MaxUint32 {
			return fmt.Errorf(
				"%w: %s / %s_%s = %d does not fit in 32 bits",
				common.ErrInvalidConfig,
				f.name,
				envVarPrefix,
				f.env,
				f.v,
			)
		}
	}
	if c.Image == "" {
		return fmt.Errorf(
			"%w: missing required configuration: image / %s_IMAGE",
			common.ErrInvalidConfig,
			envVarPrefix,
		)
	}
	if err := c.Layout().Validate(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
	}
	return nil
}
