package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	logging "github.com/ipfs/go-log/v2"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/xerrors"
)

var log = logging.Logger("config")

// Config holds harness-wide defaults. Flags always win over config values.
type Config struct {
	StorageDir string `toml:"storage-dir"`
	LogLevel   string `toml:"log-level"`
	ApiVersion string `toml:"api-version"`
}

const DefaultPath = "~/.benchy/config.toml"

func Default() Config {
	return Config{
		StorageDir: "~/.benchy",
		LogLevel:   "INFO",
		ApiVersion: "1.0.0",
	}
}

// Load reads the config file at path, or the default location when path is
// empty. A missing file is not an error; a file that exists but does not
// parse is.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	exp, err := homedir.Expand(path)
	if err != nil {
		return Config{}, xerrors.Errorf("expanding config path: %w", err)
	}

	if _, err := os.Stat(exp); err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return Config{}, xerrors.Errorf("stat config %s: %w", exp, err)
	}

	if _, err := toml.DecodeFile(exp, &cfg); err != nil {
		return Config{}, xerrors.Errorf("parse config %s: %w", exp, err)
	}

	log.Debugf("loaded config from %s", exp)
	return cfg, nil
}

// StorageRoot expands the configured storage directory and makes sure it
// exists.
func (c Config) StorageRoot() (string, error) {
	dir, err := homedir.Expand(c.StorageDir)
	if err != nil {
		return "", xerrors.Errorf("expanding storage dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0775); err != nil {
		return "", xerrors.Errorf("creating storage dir %s: %w", dir, err)
	}
	return filepath.Clean(dir), nil
}
