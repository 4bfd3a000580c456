package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile holds the defaults applied to every invocation.
type Profile struct {
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token,omitempty"`
	Caller   string `yaml:"caller,omitempty"`
}

const defaultEndpoint = "http://localhost:8547/rpc"

func defaultProfilePath() string {
	if v := strings.TrimSpace(os.Getenv("MARKET_CLI_PROFILE")); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".nftmarket", "cli.yaml")
	}
	return filepath.Join(home, ".nftmarket", "cli.yaml")
}

// loadProfile reads path. A missing file yields the default profile.
func loadProfile(path string) (Profile, error) {
	profile := Profile{Endpoint: defaultEndpoint}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return profile, nil
	}
	if err != nil {
		return profile, err
	}
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return profile, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if strings.TrimSpace(profile.Endpoint) == "" {
		profile.Endpoint = defaultEndpoint
	}
	return profile, nil
}

func saveProfile(path string, profile Profile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(profile)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
