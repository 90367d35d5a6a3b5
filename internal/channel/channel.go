package channel

import (
	"fmt"
	"sync"
)

// ID identifies a channel system-wide.
type ID struct {
	Component string
	Channel   string
}

func (id ID) String() string {
	return fmt.Sprintf("%s/%s", id.Component, id.Channel)
}

// Channel is a typed value cell owned by a component.
//
// Reads set the next value; the cycle driver moves it into the process image.
// Controllers set the next write value; the write phase picks it up until the
// owner clears it. A nil value means "undefined".
type Channel struct {
	id ID

	mu           sync.Mutex
	value        any
	next         any
	nextWrite    any
	hasNextWrite bool
}

// New creates a detached channel. Most callers go through Store.Channel.
func New(id ID) *Channel {
	return &Channel{id: id}
}

func (c *Channel) ID() ID { return c.id }

// Value returns the process-image value.
func (c *Channel) Value() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// NextValue returns the value that becomes current on the next process-image swap.
func (c *Channel) NextValue() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// SetNextValue overwrites the next value. Last write wins.
func (c *Channel) SetNextValue(v any) {
	c.mu.Lock()
	c.next = v
	c.mu.Unlock()
}

// NextWriteValue returns the pending write value, if any.
func (c *Channel) NextWriteValue() (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextWrite, c.hasNextWrite
}

// SetNextWriteValue requests a value to be written to the device.
func (c *Channel) SetNextWriteValue(v any) {
	c.mu.Lock()
	c.nextWrite = v
	c.hasNextWrite = true
	c.mu.Unlock()
}

// ClearNextWriteValue drops the pending write value.
func (c *Channel) ClearNextWriteValue() {
	c.mu.Lock()
	c.nextWrite = nil
	c.hasNextWrite = false
	c.mu.Unlock()
}

func (c *Channel) swap() {
	c.mu.Lock()
	c.value = c.next
	c.mu.Unlock()
}
