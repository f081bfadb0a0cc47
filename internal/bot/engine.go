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

package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/dpiccone/wolbot/internal/probe"
	"github.com/dpiccone/wolbot/internal/registry"
	"github.com/dpiccone/wolbot/internal/wol"
)

// probeWait bounds a single liveness check. Status replies and wake
// verification both use one attempt with this wait.
const probeWait = 1 * time.Second

const helpText = "🤖 *WOL Bot Menu*\n\n" +
	"`/list` — List configured devices\n" +
	"`/status_all` — Ping all devices\n" +
	"`/status <name>` — Ping specific device\n" +
	"`/wake <name>` — Send Magic Packet"

// Message is one inbound chat command reduced to what the engine needs:
// who sent it, where to reply, and the raw text.
type Message struct {
	UserID int64
	ChatID int64
	Text   string
}

// Responder delivers replies back to the chat.
type Responder interface {
	Send(chatID int64, text string) error
}

// Transmitter sends an encoded magic packet toward the target network.
type Transmitter interface {
	Send(payload []byte) error
}

// Engine dispatches chat commands against the device registry. Handlers run
// on the caller's goroutine one command at a time; wake verification is the
// one piece that detaches, so a 30 second wait never stalls the next
// command.
type Engine struct {
	registry  *registry.Registry
	tx        Transmitter
	prober    probe.Prober
	responder Responder
	allowed   map[int64]struct{}
	log       logr.Logger

	// sleep is swapped out in tests to simulate the verification delay.
	sleep func(ctx context.Context, d time.Duration) bool
	tasks sync.WaitGroup
}

// NewEngine wires the command engine. allowedUsers is the complete
// allow-list; an empty list drops every command.
func NewEngine(reg *registry.Registry, tx Transmitter, prober probe.Prober, responder Responder, allowedUsers []int64, log logr.Logger) *Engine {
	allowed := make(map[int64]struct{}, len(allowedUsers))
	for _, id := range allowedUsers {
		allowed[id] = struct{}{}
	}

	if len(allowed) == 0 {
		log.Info("Allow-list is empty, every command will be dropped")
	}

	ManagedDevices.Set(float64(reg.Len()))

	return &Engine{
		registry:  reg,
		tx:        tx,
		prober:    prober,
		responder: responder,
		allowed:   allowed,
		log:       log,
		sleep:     sleepCtx,
	}
}

// HandleMessage authorizes and dispatches one chat message. Unauthorized
// senders and unknown commands are dropped without any reply, so an
// outsider probing the bot learns nothing; authorized users always get an
// explicit answer, including for their mistakes.
func (e *Engine) HandleMessage(ctx context.Context, msg Message) {
	if _, ok := e.allowed[msg.UserID]; !ok {
		e.log.Info("Access denied", "userID", msg.UserID)
		DeniedTotal.Inc()
		return
	}

	cmd, arg := splitCommand(msg.Text)

	switch cmd {
	case "/start", "/help":
		e.reply(msg.ChatID, helpText)
	case "/list":
		e.handleList(msg)
	case "/status":
		e.handleStatus(ctx, msg, arg)
	case "/status_all":
		e.handleStatusAll(ctx, msg)
	case "/wake":
		e.handleWake(ctx, msg, arg)
	default:
		e.log.V(1).Info("Ignoring unknown command", "userID", msg.UserID, "command", cmd)
	}
}

// splitCommand extracts the command token and its first argument. A
// "@botname" suffix on the command (group chats) is stripped.
func splitCommand(text string) (string, string) {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", ""
	}

	cmd := parts[0]
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}

	arg := ""
	if len(parts) > 1 {
		arg = parts[1]
	}
	return cmd, arg
}

func (e *Engine) handleList(msg Message) {
	var b strings.Builder
	b.WriteString("📋 *Configured Devices:*\n")
	for _, name := range e.registry.Names() {
		fmt.Fprintf(&b, "• `%s`\n", name)
	}
	e.reply(msg.ChatID, b.String())
}

func (e *Engine) handleStatus(ctx context.Context, msg Message, name string) {
	if name == "" {
		e.reply(msg.ChatID, "Usage: `/status <name>`")
		return
	}

	dev, found := e.registry.Lookup(name)
	if !found {
		e.reply(msg.ChatID, "❌ Device not found in config.")
		return
	}

	e.reply(msg.ChatID, fmt.Sprintf("Device `%s` is %s", dev.Name, e.statusOf(ctx, dev.Addr)))
}

func (e *Engine) handleStatusAll(ctx context.Context, msg Message) {
	e.log.Info("Bulk status check requested", "userID", msg.UserID)

	var b strings.Builder
	b.WriteString("🔍 *Network Status:*\n")
	for _, dev := range e.registry.Devices() {
		fmt.Fprintf(&b, "• `%s`: %s\n", dev.Name, e.statusOf(ctx, dev.Addr))
	}
	e.reply(msg.ChatID, b.String())
}

func (e *Engine) statusOf(ctx context.Context, addr string) string {
	if e.prober.Probe(ctx, addr, probeWait) {
		return "✅ ONLINE"
	}
	return "🔴 OFFLINE"
}

// handleWake runs the wake sequence for one request: lookup, encode, send,
// acknowledge, then detach the verification. Any failure stops the sequence
// with an explicit reply and schedules nothing.
func (e *Engine) handleWake(ctx context.Context, msg Message, name string) {
	if name == "" {
		e.reply(msg.ChatID, "Usage: `/wake <name>`")
		return
	}

	dev, found := e.registry.Lookup(name)
	if !found {
		e.log.Info("Wake requested for unknown device", "userID", msg.UserID, "device", name)
		e.reply(msg.ChatID, "❌ Device not found in config.")
		return
	}

	WakeRequestsTotal.Inc()
	e.log.Info("Waking up device", "device", dev.Name, "mac", dev.HardwareAddr.String(), "userID", msg.UserID)

	packet, err := wol.MagicPacket(dev.HardwareAddr)
	if err != nil {
		// Unreachable for registry-validated addresses; fatal only to this
		// request.
		e.log.Error(err, "Failed to encode magic packet", "device", dev.Name)
		ErrorsTotal.Inc()
		e.reply(msg.ChatID, "❌ Error: Failed to send Magic Packet")
		return
	}

	if err := e.tx.Send(packet); err != nil {
		e.log.Error(err, "Failed to send magic packet", "device", dev.Name)
		ErrorsTotal.Inc()
		e.reply(msg.ChatID, "❌ Error: Failed to send Magic Packet")
		return
	}

	PacketsSentTotal.Inc()

	// L'ack parte subito: la verifica non deve mai bloccare la risposta.
	e.reply(msg.ChatID, fmt.Sprintf("🚀 Magic Packet sent to `%s`. Verifying in %ds...",
		dev.Name, int(dev.WakeTimeout/time.Second)))

	e.tasks.Add(1)
	go e.verifyWake(ctx, dev, msg.ChatID)
}

// verifyWake is the detached tail of a wake request: give the device its
// configured timeout to boot, probe exactly once, report exactly once. The
// device may well come up just after the checkpoint; that stays invisible
// until someone asks /status.
func (e *Engine) verifyWake(ctx context.Context, dev registry.Device, chatID int64) {
	defer e.tasks.Done()

	if !e.sleep(ctx, dev.WakeTimeout) {
		e.log.V(1).Info("Wake verification abandoned on shutdown", "device", dev.Name)
		return
	}

	if e.prober.Probe(ctx, dev.Addr, probeWait) {
		VerificationsTotal.WithLabelValues("online").Inc()
		e.reply(chatID, fmt.Sprintf("✅ `%s` is now ONLINE!", dev.Name))
	} else {
		VerificationsTotal.WithLabelValues("offline").Inc()
		e.reply(chatID, fmt.Sprintf("⚠️ `%s` is still not responding to ping.", dev.Name))
	}

	e.log.Info("Wake verification reported", "device", dev.Name)
}

// reply delivers text to the chat. Delivery failures are logged and
// swallowed; a broken reply never aborts the command flow.
func (e *Engine) reply(chatID int64, text string) {
	if err := e.responder.Send(chatID, text); err != nil {
		e.log.Error(err, "Failed to send reply", "chatID", chatID)
		ErrorsTotal.Inc()
	}
}

// sleepCtx waits for d or until ctx is cancelled, reporting whether the
// full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
