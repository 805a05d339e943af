// Package signal implements a named-event dispatcher: engine lifecycle
// and per-request events delivered synchronously, in registration
// order, to handlers that may not abort the dispatch loop by panicking
// or erroring.
package signal

import "log/slog"

// Name identifies a signal kind.
type Name string

const (
	EngineStarted    Name = "engine_started"
	SpiderOpened     Name = "spider_opened"
	RequestScheduled Name = "request_scheduled"
	RequestDropped   Name = "request_dropped"
	ResponseReceived Name = "response_received"
	ResponseDownload Name = "response_downloaded"
	ItemScraped      Name = "item_scraped"
	ItemDropped      Name = "item_dropped"
	SpiderError      Name = "spider_error"
	SpiderIdle       Name = "spider_idle"
	SpiderClosed     Name = "spider_closed"
	EngineStopped    Name = "engine_stopped"
)

// Handler receives a signal's payload. Returning an error does not
// abort dispatch to the remaining handlers; it is logged and swallowed.
type Handler func(payload any) error

// Dispatcher delivers signals to registered handlers sequentially, in
// the order they were connected, guaranteeing signals for a given
// request are ordered.
type Dispatcher struct {
	logger   *slog.Logger
	handlers map[Name][]Handler
}

// New creates a Dispatcher.
func New(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		logger:   logger.With("component", "signals"),
		handlers: make(map[Name][]Handler),
	}
}

// Connect registers a handler for a signal name.
func (d *Dispatcher) Connect(name Name, h Handler) {
	d.handlers[name] = append(d.handlers[name], h)
}

// Send delivers payload to every handler connected to name, in order.
// A handler panic or returned error is logged and does not propagate.
func (d *Dispatcher) Send(name Name, payload any) {
	for _, h := range d.handlers[name] {
		d.invoke(name, h, payload)
	}
}

func (d *Dispatcher) invoke(name Name, h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("signal handler panicked", "signal", name, "panic", r)
		}
	}()
	if err := h(payload); err != nil {
		d.logger.Warn("signal handler error", "signal", name, "error", err)
	}
}

// HandlerCount returns the number of handlers connected to name.
func (d *Dispatcher) HandlerCount(name Name) int {
	return len(d.handlers[name])
}
