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
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// WakeRequestsTotal counts wake requests accepted for a known device
	WakeRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wolbot_wake_requests_total",
			Help: "Number of wake requests accepted for a known device",
		},
	)

	// PacketsSentTotal counts magic packets handed to the network stack
	PacketsSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wolbot_packets_sent_total",
			Help: "Number of magic packets sent",
		},
	)

	// VerificationsTotal counts post-wake liveness checks by outcome
	VerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wolbot_verifications_total",
			Help: "Number of post-wake liveness checks by outcome",
		},
		[]string{"result"},
	)

	// DeniedTotal counts commands dropped by the allow-list
	DeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wolbot_denied_commands_total",
			Help: "Number of commands dropped by the allow-list",
		},
	)

	// ErrorsTotal counts failures while handling commands
	ErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wolbot_errors_total",
			Help: "Number of errors while handling commands",
		},
	)

	// ManagedDevices is a gauge for the number of registered devices
	ManagedDevices = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wolbot_managed_devices",
			Help: "Number of devices in the registry",
		},
	)
)

func init() {
	prometheus.MustRegister(
		WakeRequestsTotal,
		PacketsSentTotal,
		VerificationsTotal,
		DeniedTotal,
		ErrorsTotal,
		ManagedDevices,
	)
}
