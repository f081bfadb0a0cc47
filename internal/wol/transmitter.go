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

package wol

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"

	"github.com/go-logr/logr"
	"golang.org/x/sys/unix"
)

// ErrPayloadSize reports a payload that is not a complete magic packet.
var ErrPayloadSize = errors.New("payload is not a magic packet")

// Transmitter sends magic packets as UDP broadcast datagrams to the limited
// broadcast address on the WOL port. Each Send opens its own socket; nothing
// is pooled between wakes.
type Transmitter struct {
	iface string
	dest  string
	log   logr.Logger
}

// NewTransmitter creates a broadcast transmitter. iface optionally names the
// network interface to send from; empty lets the kernel route via the
// default interface.
func NewTransmitter(iface string, log logr.Logger) *Transmitter {
	return &Transmitter{
		iface: iface,
		dest:  net.JoinHostPort(net.IPv4bcast.String(), strconv.Itoa(DefaultWOLPort)),
		log:   log,
	}
}

// Send broadcasts a single magic packet. UDP gives no delivery confirmation,
// so a nil return means the local stack accepted the datagram, not that the
// device received it.
func (t *Transmitter) Send(payload []byte) error {
	if len(payload) != MagicPacketSize {
		return fmt.Errorf("%w: %d bytes, want %d", ErrPayloadSize, len(payload), MagicPacketSize)
	}

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return fmt.Errorf("failed to open UDP socket: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			t.log.Error(err, "Failed to close UDP socket")
		}
	}()

	if err := t.configureSocket(conn.(*net.UDPConn)); err != nil {
		return err
	}

	dst, err := net.ResolveUDPAddr("udp4", t.dest)
	if err != nil {
		return fmt.Errorf("failed to resolve destination %s: %w", t.dest, err)
	}

	n, err := conn.WriteTo(payload, dst)
	if err != nil {
		return fmt.Errorf("failed to send magic packet: %w", err)
	}
	if n != MagicPacketSize {
		return fmt.Errorf("short write: sent %d of %d bytes", n, MagicPacketSize)
	}

	if mac, ok := parseMagicPacket(payload); ok {
		t.log.V(1).Info("Magic packet sent", "mac", mac, "dest", t.dest, "size", n)
	}

	return nil
}

// configureSocket enables broadcast permission and applies the optional
// interface binding.
func (t *Transmitter) configureSocket(conn *net.UDPConn) error {
	file, err := conn.File()
	if err != nil {
		return fmt.Errorf("failed to get socket descriptor: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			t.log.Error(err, "Failed to close file descriptor")
		}
	}()

	fd := int(file.Fd())

	// Enable SO_BROADCAST (essential for WOL). Without it the kernel
	// rejects sends to 255.255.255.255, which must surface as an error
	// rather than a silent no-op.
	if err := syscall.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
		return fmt.Errorf("SO_BROADCAST: %w", err)
	}
	t.log.V(1).Info("SO_BROADCAST enabled")

	// Bind to the requested interface, if any. Binding keeps broadcast
	// traffic off unintended interfaces on multi-homed hosts but is not
	// required for the packet to go out, so failure only warns.
	if t.iface != "" {
		if err := unix.BindToDevice(fd, t.iface); err != nil {
			t.log.Error(err, "Failed to bind to interface (continuing unbound)", "iface", t.iface)
		} else {
			t.log.V(1).Info("Socket bound to interface", "iface", t.iface)
		}
	}

	return nil
}
