// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"sync/atomic"

	"rtio/internal/events"
	applog "rtio/internal/log"
	"rtio/internal/metrics"
	"rtio/internal/server"
)

type armedHandler struct {
	h FatalErrorHandler
}

// notifier turns server notifications into diagnostics and, for a shutdown,
// a single call to the fatal error handler. The handler is armed at spawn
// and taken with an atomic swap, so it fires at most once.
type notifier struct {
	client string
	armed  atomic.Pointer[armedHandler]
	bus    *events.Bus
	log    applog.Logger
}

func newNotifier(client string, fatal FatalErrorHandler, bus *events.Bus) *notifier {
	n := &notifier{client: client, bus: bus, log: applog.Named("jack")}
	if fatal != nil {
		n.armed.Store(&armedHandler{h: fatal})
	}
	return n
}

// fired reports whether the fatal handler has been consumed.
func (n *notifier) fired() bool {
	return n.armed.Load() == nil
}

func (n *notifier) diagnostic(kind, detail string) {
	metrics.Notification(n.client, kind)
	n.bus.Publish(events.ServerNotification{Client: n.client, Kind: kind, Detail: detail})
}

func (n *notifier) ThreadInit() {
	n.log.Debugf("thread init")
}

func (n *notifier) Shutdown(status, reason string) {
	msg := fmt.Sprintf("shutdown with status %s because %q", status, reason)
	n.log.Infof("%s", msg)
	metrics.Notification(n.client, "shutdown")

	armed := n.armed.Swap(nil)
	if armed == nil {
		n.log.Debugf("shutdown already reported, ignoring")
		return
	}
	n.bus.Publish(events.StreamFatal{Client: n.client, Description: msg})
	armed.h.FatalStreamError(FatalStreamError{Reason: ReasonServerDisconnected, Description: msg})
}

func (n *notifier) Freewheel(enabled bool) {
	mode := "off"
	if enabled {
		mode = "on"
	}
	n.log.Debugf("freewheel mode is %s", mode)
	n.diagnostic("freewheel", mode)
}

func (n *notifier) SampleRate(rate uint32) {
	n.log.Debugf("sample rate changed to %d", rate)
	n.diagnostic("sample_rate", fmt.Sprint(rate))
}

func (n *notifier) ClientRegistration(name string, registered bool) {
	n.log.Debugf("%s client with name %q", registration(registered), name)
	n.diagnostic("client_registration", name)
}

func (n *notifier) PortRegistration(id uint32, registered bool) {
	n.log.Debugf("%s port with id %d", registration(registered), id)
	n.diagnostic("port_registration", fmt.Sprint(id))
}

func (n *notifier) PortRename(id uint32, oldName, newName string) {
	n.log.Debugf("port with id %d renamed from %s to %s", id, oldName, newName)
	n.diagnostic("port_rename", oldName+" -> "+newName)
}

func (n *notifier) PortsConnected(a, b uint32, connected bool) {
	state := "disconnected"
	if connected {
		state = "connected"
	}
	n.log.Debugf("ports with id %d and %d are %s", a, b, state)
	n.diagnostic("ports_connected", state)
}

func (n *notifier) GraphReorder() {
	n.log.Debugf("graph reordered")
	n.diagnostic("graph_reorder", "")
}

func (n *notifier) XRun() {
	n.log.Warnf("xrun occurred")
	n.diagnostic("xrun", "")
}

func (n *notifier) Latency(mode server.LatencyMode) {
	n.log.Debugf("%s latency has changed", mode)
	n.diagnostic("latency", mode.String())
}

func registration(registered bool) string {
	if registered {
		return "registered"
	}
	return "unregistered"
}

var _ server.NotificationHandler = (*notifier)(nil)
