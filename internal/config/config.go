/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the configuration file is looked up unless
// overridden on the command line.
const DefaultPath = "/etc/wolbot/config.yaml"

// DefaultHealthAddr is the default listen address for the health and
// metrics endpoint.
const DefaultHealthAddr = ":8080"

// Config is the on-disk configuration. Device entries are kept as raw
// string tuples here; per-entry validation happens when the registry is
// built, so one malformed device cannot fail the whole load.
type Config struct {
	// AllowedUsers lists the chat user IDs permitted to issue commands.
	// Empty means nobody: every inbound command is dropped.
	AllowedUsers []int64 `yaml:"allowed_users"`

	// Interface optionally names the network interface to broadcast from.
	// Empty lets the kernel pick the default route.
	Interface string `yaml:"interface,omitempty"`

	// HealthAddr is the listen address for the health and metrics
	// endpoint. An explicit empty string disables the endpoint.
	HealthAddr string `yaml:"health_addr,omitempty"`

	// Devices maps a device name to [mac, address] or
	// [mac, address, timeoutSeconds].
	Devices map[string][]string `yaml:"devices"`
}

// Load reads and parses the configuration file at path. Unknown fields are
// rejected so a typo in a key fails loudly instead of being ignored. The
// file is read once at startup; there is no hot reload.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := &Config{
		HealthAddr: DefaultHealthAddr,
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		// An empty file is a valid, if useless, configuration.
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, nil
}
