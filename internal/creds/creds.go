package creds

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/venuewire/xapi/internal/config"
)

var ErrNoAccount = errors.New("no account configured for environment")

// File mirrors the on-disk credentials layout. The password is shared
// across environments; account ids are per environment.
type File struct {
	DemoID   string `yaml:"demo_id"`
	LiveID   string `yaml:"live_id"`
	Password string `yaml:"password"`
}

// Credentials identifies one account in one environment.
type Credentials struct {
	AccountID   string
	Password    string
	Environment config.Environment
}

// DefaultPath returns the conventional credentials location under the
// user's home directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".xapi", "credentials.yaml"), nil
}

// Load reads a credentials file and expands environment variables, so
// passwords can be kept in the process environment instead of on disk.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var f File
	if err := yaml.Unmarshal([]byte(expanded), &f); err != nil {
		return nil, fmt.Errorf("parse credentials yaml: %w", err)
	}
	return &f, nil
}

// Resolve picks the account for env and pairs it with the password.
func (f *File) Resolve(env config.Environment) (Credentials, error) {
	if !env.Valid() {
		return Credentials{}, fmt.Errorf("unknown environment %q", env)
	}

	id := f.DemoID
	if env == config.EnvironmentLive {
		id = f.LiveID
	}
	if id == "" {
		return Credentials{}, fmt.Errorf("%w: %s", ErrNoAccount, env)
	}
	if f.Password == "" {
		return Credentials{}, errors.New("credentials password is empty")
	}

	return Credentials{
		AccountID:   id,
		Password:    f.Password,
		Environment: env,
	}, nil
}
