package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const defaultURL = "http://localhost:8000/api/v1"

// settings are the API URL and access token, read from DASHBOARD_URL and
// DASHBOARD_TOKEN or the config file written by login.
type settings struct {
	v    *viper.Viper
	path string
}

func defaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "dashboardctl", "config.yaml"), nil
}

func loadSettings(path string) (*settings, error) {
	if path == "" {
		p, err := defaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetConfigPermissions(0o600)
	v.SetEnvPrefix("DASHBOARD")
	_ = v.BindEnv("url")
	_ = v.BindEnv("token")
	v.SetDefault("url", defaultURL)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return &settings{v: v, path: path}, nil
}

func (s *settings) URL() string   { return s.v.GetString("url") }
func (s *settings) Token() string { return s.v.GetString("token") }

// save stores url and token in the config file.
func (s *settings) save(url, token string) error {
	out := viper.New()
	out.SetConfigType("yaml")
	out.SetConfigPermissions(0o600)
	out.Set("url", url)
	if token != "" {
		out.Set("token", token)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	if err := out.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	s.v.Set("token", token)
	return nil
}
