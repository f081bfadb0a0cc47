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

package registry

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/dpiccone/wolbot/internal/wol"
)

// DefaultWakeTimeout is how long a woken device is given to come online
// before the follow-up liveness check, when the registry entry does not
// override it.
const DefaultWakeTimeout = 30 * time.Second

// Device is a single registry entry: the name users wake the machine by,
// the NIC hardware address the magic packet targets, and the network
// address probed afterwards.
type Device struct {
	Name         string
	HardwareAddr net.HardwareAddr
	Addr         string
	WakeTimeout  time.Duration
}

// Registry maps device names to their wake parameters. It is built once at
// startup and never mutated afterwards, so concurrent lookups need no
// locking.
type Registry struct {
	devices map[string]Device
}

// Build constructs a registry from raw config entries. Each entry value is
// a 2 or 3 element tuple: [mac, address] or [mac, address, timeoutSeconds].
// Malformed entries are logged and skipped so one bad line cannot take
// every other device offline.
func Build(entries map[string][]string, log logr.Logger) *Registry {
	r := &Registry{
		devices: make(map[string]Device, len(entries)),
	}

	for name, fields := range entries {
		dev, err := parseEntry(name, fields)
		if err != nil {
			log.Error(err, "Skipping malformed device entry", "device", name)
			continue
		}
		r.devices[name] = dev
		log.V(1).Info("Registered device",
			"device", name,
			"mac", dev.HardwareAddr.String(),
			"addr", dev.Addr,
			"wakeTimeout", dev.WakeTimeout.String())
	}

	log.Info("Device registry built",
		"devices", len(r.devices),
		"skipped", len(entries)-len(r.devices))

	return r
}

// parseEntry validates one raw config tuple into a Device.
func parseEntry(name string, fields []string) (Device, error) {
	if len(fields) < 2 || len(fields) > 3 {
		return Device{}, fmt.Errorf("want 2 or 3 fields [mac, address, timeoutSeconds], got %d", len(fields))
	}

	hw, err := wol.ParseHardwareAddr(fields[0])
	if err != nil {
		return Device{}, err
	}

	addr := strings.TrimSpace(fields[1])
	if addr == "" {
		return Device{}, fmt.Errorf("empty probe address")
	}

	dev := Device{
		Name:         name,
		HardwareAddr: hw,
		Addr:         addr,
		WakeTimeout:  DefaultWakeTimeout,
	}

	if len(fields) == 3 {
		// An unparsable or zero timeout falls back to the default rather
		// than dropping the device.
		if secs, err := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 32); err == nil && secs > 0 {
			dev.WakeTimeout = time.Duration(secs) * time.Second
		}
	}

	return dev, nil
}

// Lookup returns the device registered under name. Matching is exact and
// case-sensitive; there is no fuzzy matching.
func (r *Registry) Lookup(name string) (Device, bool) {
	dev, found := r.devices[name]
	return dev, found
}

// Names returns every registered device name in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.devices))
	for name := range r.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Devices returns every registered device sorted by name.
func (r *Registry) Devices() []Device {
	devices := make([]Device, 0, len(r.devices))
	for _, name := range r.Names() {
		devices = append(devices, r.devices[name])
	}
	return devices
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	return len(r.devices)
}
