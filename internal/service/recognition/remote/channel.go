// Package remote provides a recognition channel whose actual recognizer
// lives on the other side of a transport, typically a browser holding the
// platform speech capability. Control actions (start/stop/abort) are
// forwarded outward; events are injected back by the transport session.
package remote

import (
	"context"
	"sync"

	"conversation-transcription-service/internal/service/recognition"
)

// Control actions forwarded to the remote recognizer.
const (
	ActionStart = "start"
	ActionStop  = "stop"
	ActionAbort = "abort"
)

// Transport delivers control actions to the remote recognizer.
type Transport interface {
	SendControl(lang, action string) error
}

// Channel implements recognition.Channel over a Transport. The transport
// session injects the remote recognizer's events via the Inject* methods.
type Channel struct {
	lang      string
	transport Transport

	mu sync.Mutex
	cb recognition.Callback
}

// New creates a remote channel for the given language.
func New(lang string, transport Transport) *Channel {
	return &Channel{lang: lang, transport: transport}
}

// Lang returns the language tag of the channel.
func (c *Channel) Lang() string { return c.lang }

// Start asks the remote side to begin recognizing. OnStart arrives later as
// an injected event once the remote recognizer actually started.
func (c *Channel) Start(ctx context.Context, cb recognition.Callback) error {
	c.mu.Lock()
	c.cb = cb
	c.mu.Unlock()
	return c.transport.SendControl(c.lang, ActionStart)
}

// Stop forwards a graceful stop. Delivery is best-effort: a dead transport
// means the remote session is gone anyway.
func (c *Channel) Stop() {
	_ = c.transport.SendControl(c.lang, ActionStop)
}

// Abort forwards an immediate teardown.
func (c *Channel) Abort() {
	_ = c.transport.SendControl(c.lang, ActionAbort)
}

func (c *Channel) callback() recognition.Callback {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cb
}

// InjectStart relays a remote onstart event.
func (c *Channel) InjectStart() {
	if cb := c.callback(); cb != nil {
		cb.OnStart()
	}
}

// InjectEnd relays a remote onend event.
func (c *Channel) InjectEnd() {
	if cb := c.callback(); cb != nil {
		cb.OnEnd()
	}
}

// InjectError relays a remote onerror event.
func (c *Channel) InjectError(code recognition.ErrorCode, message string) {
	if cb := c.callback(); cb != nil {
		cb.OnError(code, message)
	}
}

// InjectResult relays a remote onresult event.
func (c *Channel) InjectResult(ev recognition.ResultEvent) {
	if cb := c.callback(); cb != nil {
		cb.OnResult(ev)
	}
}
