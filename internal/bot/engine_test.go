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
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dpiccone/wolbot/internal/registry"
)

var _ = Describe("Engine", func() {
	const (
		authorizedUser   = int64(42)
		unauthorizedUser = int64(666)
		chatID           = int64(777)

		serverAddr  = "192.168.1.10"
		desktopAddr = "192.168.1.11"
	)

	var (
		ctx       context.Context
		eng       *Engine
		reg       *registry.Registry
		responder *fakeResponder
		prober    *fakeProber
		tx        *fakeTransmitter
		clock     *sleepRecorder
	)

	handle := func(userID int64, text string) {
		eng.HandleMessage(ctx, Message{UserID: userID, ChatID: chatID, Text: text})
	}

	BeforeEach(func() {
		ctx = context.Background()
		responder = &fakeResponder{}
		prober = &fakeProber{online: map[string]bool{}}
		tx = &fakeTransmitter{}
		clock = &sleepRecorder{}

		reg = registry.Build(map[string][]string{
			"server":  {"AA:BB:CC:DD:EE:FF", serverAddr},
			"desktop": {"11:22:33:44:55:66", desktopAddr, "45"},
		}, logr.Discard())

		eng = NewEngine(reg, tx, prober, responder, []int64{authorizedUser}, logr.Discard())
		eng.sleep = clock.sleep
	})

	Context("When the sender is not on the allow-list", func() {
		It("Should drop the command without any reply", func() {
			handle(unauthorizedUser, "/wake server")
			eng.tasks.Wait()

			Expect(responder.messages()).To(BeEmpty())
			Expect(tx.sent()).To(BeEmpty())
			Expect(prober.calls()).To(BeEmpty())
		})

		It("Should drop everyone when the allow-list is empty", func() {
			eng = NewEngine(reg, tx, prober, responder, nil, logr.Discard())

			handle(authorizedUser, "/list")

			Expect(responder.messages()).To(BeEmpty())
		})
	})

	Context("When receiving an unknown command", func() {
		It("Should stay silent for authorized users too", func() {
			handle(authorizedUser, "/frobnicate server")
			handle(authorizedUser, "hello there")

			Expect(responder.messages()).To(BeEmpty())
		})
	})

	Context("When handling /help", func() {
		It("Should send the command menu", func() {
			handle(authorizedUser, "/help")

			msgs := responder.messages()
			Expect(msgs).To(HaveLen(1))
			Expect(msgs[0].text).To(ContainSubstring("/wake"))
			Expect(msgs[0].text).To(ContainSubstring("/status_all"))
		})

		It("Should treat /start as an alias", func() {
			handle(authorizedUser, "/start")
			handle(authorizedUser, "/help")

			msgs := responder.messages()
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[0].text).To(Equal(msgs[1].text))
		})
	})

	Context("When handling /list", func() {
		It("Should list devices sorted by name", func() {
			handle(authorizedUser, "/list")

			msgs := responder.messages()
			Expect(msgs).To(HaveLen(1))
			Expect(msgs[0].text).To(ContainSubstring("`desktop`"))
			Expect(msgs[0].text).To(ContainSubstring("`server`"))
			Expect(strings.Index(msgs[0].text, "desktop")).To(BeNumerically("<", strings.Index(msgs[0].text, "server")))
		})
	})

	Context("When handling /status", func() {
		It("Should reply usage when the name is missing", func() {
			handle(authorizedUser, "/status")

			msgs := responder.messages()
			Expect(msgs).To(HaveLen(1))
			Expect(msgs[0].text).To(ContainSubstring("Usage"))
		})

		It("Should reply not-found for an unknown device", func() {
			handle(authorizedUser, "/status ghost")

			msgs := responder.messages()
			Expect(msgs).To(HaveLen(1))
			Expect(msgs[0].text).To(ContainSubstring("Device not found"))
			Expect(prober.calls()).To(BeEmpty())
		})

		It("Should report an online device", func() {
			prober.setOnline(serverAddr, true)

			handle(authorizedUser, "/status server")

			msgs := responder.messages()
			Expect(msgs).To(HaveLen(1))
			Expect(msgs[0].text).To(ContainSubstring("`server` is ✅ ONLINE"))
		})

		It("Should report an offline device", func() {
			handle(authorizedUser, "/status server")

			msgs := responder.messages()
			Expect(msgs).To(HaveLen(1))
			Expect(msgs[0].text).To(ContainSubstring("`server` is 🔴 OFFLINE"))
		})
	})

	Context("When handling /status_all", func() {
		It("Should probe every device and aggregate one report", func() {
			prober.setOnline(serverAddr, true)

			handle(authorizedUser, "/status_all")

			Expect(prober.calls()).To(ConsistOf(serverAddr, desktopAddr))

			msgs := responder.messages()
			Expect(msgs).To(HaveLen(1))
			Expect(msgs[0].text).To(ContainSubstring("`server`: ✅ ONLINE"))
			Expect(msgs[0].text).To(ContainSubstring("`desktop`: 🔴 OFFLINE"))
		})
	})

	Context("When handling /wake", func() {
		It("Should send the ack before the verification result", func() {
			prober.setOnline(serverAddr, true)

			handle(authorizedUser, "/wake server")
			eng.tasks.Wait()

			msgs := responder.messages()
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[0].text).To(ContainSubstring("Magic Packet sent to `server`"))
			Expect(msgs[0].text).To(ContainSubstring("30s"))
			Expect(msgs[1].text).To(ContainSubstring("`server` is now ONLINE!"))
		})

		It("Should broadcast one valid magic packet", func() {
			handle(authorizedUser, "/wake server")
			eng.tasks.Wait()

			payloads := tx.sent()
			Expect(payloads).To(HaveLen(1))
			Expect(payloads[0]).To(HaveLen(102))
			Expect(payloads[0][:6]).To(Equal(bytes.Repeat([]byte{0xFF}, 6)))
			Expect(payloads[0][6:12]).To(Equal([]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}))
		})

		It("Should wait the device's configured timeout before probing", func() {
			handle(authorizedUser, "/wake desktop")
			eng.tasks.Wait()

			Expect(clock.slept()).To(Equal([]time.Duration{45 * time.Second}))
			Expect(responder.messages()[0].text).To(ContainSubstring("45s"))
		})

		It("Should fall back to the default timeout", func() {
			handle(authorizedUser, "/wake server")
			eng.tasks.Wait()

			Expect(clock.slept()).To(Equal([]time.Duration{30 * time.Second}))
		})

		It("Should report still-offline when the probe fails", func() {
			handle(authorizedUser, "/wake server")
			eng.tasks.Wait()

			msgs := responder.messages()
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[1].text).To(ContainSubstring("`server` is still not responding"))
		})

		It("Should reply not-found without encoding or sending", func() {
			handle(authorizedUser, "/wake ghost")
			eng.tasks.Wait()

			msgs := responder.messages()
			Expect(msgs).To(HaveLen(1))
			Expect(msgs[0].text).To(ContainSubstring("Device not found"))
			Expect(tx.sent()).To(BeEmpty())
			Expect(prober.calls()).To(BeEmpty())
			Expect(clock.slept()).To(BeEmpty())
		})

		It("Should reply usage when the name is missing", func() {
			handle(authorizedUser, "/wake")

			msgs := responder.messages()
			Expect(msgs).To(HaveLen(1))
			Expect(msgs[0].text).To(ContainSubstring("Usage"))
		})

		It("Should not schedule verification when the send fails", func() {
			tx.fail(errors.New("network is down"))

			handle(authorizedUser, "/wake server")
			eng.tasks.Wait()

			msgs := responder.messages()
			Expect(msgs).To(HaveLen(1))
			Expect(msgs[0].text).To(ContainSubstring("Failed to send Magic Packet"))
			Expect(prober.calls()).To(BeEmpty())
			Expect(clock.slept()).To(BeEmpty())
		})

		It("Should keep two concurrent wakes independent", func() {
			prober.setOnline(serverAddr, true)
			prober.setOnline(desktopAddr, false)

			handle(authorizedUser, "/wake server")
			handle(authorizedUser, "/wake desktop")
			eng.tasks.Wait()

			Expect(tx.sent()).To(HaveLen(2))

			var texts []string
			for _, m := range responder.messages() {
				texts = append(texts, m.text)
			}
			Expect(texts).To(ContainElement(ContainSubstring("Magic Packet sent to `server`")))
			Expect(texts).To(ContainElement(ContainSubstring("Magic Packet sent to `desktop`")))
			Expect(texts).To(ContainElement(ContainSubstring("`server` is now ONLINE!")))
			Expect(texts).To(ContainElement(ContainSubstring("`desktop` is still not responding")))
		})

		It("Should abandon verification on shutdown without reporting", func() {
			clock.abortNext()

			handle(authorizedUser, "/wake server")
			eng.tasks.Wait()

			Expect(responder.messages()).To(HaveLen(1))
			Expect(prober.calls()).To(BeEmpty())
		})

		It("Should survive reply delivery failures", func() {
			responder.fail(errors.New("chat unavailable"))

			handle(authorizedUser, "/wake server")
			eng.tasks.Wait()

			Expect(tx.sent()).To(HaveLen(1))
		})
	})

	Context("When commands carry a bot mention", func() {
		It("Should strip the @botname suffix", func() {
			handle(authorizedUser, "/list@wolbot")

			Expect(responder.messages()).To(HaveLen(1))
		})
	})
})

// fakeResponder records every reply in arrival order.
type fakeResponder struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

type sentMessage struct {
	chatID int64
	text   string
}

func (f *fakeResponder) Send(chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (f *fakeResponder) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeResponder) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// fakeProber reports scripted liveness per address and records probes.
type fakeProber struct {
	mu     sync.Mutex
	online map[string]bool
	probed []string
}

func (f *fakeProber) Probe(_ context.Context, addr string, _ time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probed = append(f.probed, addr)
	return f.online[addr]
}

func (f *fakeProber) setOnline(addr string, online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[addr] = online
}

func (f *fakeProber) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.probed...)
}

// fakeTransmitter captures outbound payloads and optionally fails.
type fakeTransmitter struct {
	mu       sync.Mutex
	payloads [][]byte
	err      error
}

func (f *fakeTransmitter) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, append([]byte(nil), payload...))
	return nil
}

func (f *fakeTransmitter) sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.payloads...)
}

func (f *fakeTransmitter) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// sleepRecorder stands in for the verification delay: it returns
// immediately, remembering the durations that would have been slept.
type sleepRecorder struct {
	mu        sync.Mutex
	durations []time.Duration
	abort     bool
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.durations = append(s.durations, d)
	return !s.abort
}

func (s *sleepRecorder) slept() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.durations...)
}

func (s *sleepRecorder) abortNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abort = true
}
