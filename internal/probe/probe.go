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

package probe

import (
	"context"
	"os/exec"
	"strconv"
	"time"

	"github.com/go-logr/logr"
)

// Prober answers whether a host currently responds to a liveness check.
// Implementations return false for both "host is down" and "the check
// itself failed"; callers cannot tell the two apart.
type Prober interface {
	Probe(ctx context.Context, addr string, wait time.Duration) bool
}

// Pinger probes hosts with a single ICMP echo through the system ping
// binary. Shelling out instead of opening a raw socket keeps the process
// unprivileged.
type Pinger struct {
	log    logr.Logger
	binary string
}

// NewPinger creates a Pinger that uses the ping binary from PATH.
func NewPinger(log logr.Logger) *Pinger {
	return &Pinger{
		log:    log,
		binary: "ping",
	}
}

// Probe sends one echo request and waits up to the given duration for the
// reply. No retries; a lost reply, an unresolvable address, a missing ping
// binary or a cancelled context all read as offline.
func (p *Pinger) Probe(ctx context.Context, addr string, wait time.Duration) bool {
	waitSec := int(wait / time.Second)
	if waitSec < 1 {
		waitSec = 1
	}

	cmd := exec.CommandContext(ctx, p.binary, "-c", "1", "-W", strconv.Itoa(waitSec), addr)
	if err := cmd.Run(); err != nil {
		p.log.V(1).Info("Probe failed", "addr", addr, "reason", err.Error())
		return false
	}

	p.log.V(1).Info("Probe succeeded", "addr", addr)
	return true
}
