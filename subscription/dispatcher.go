// Package subscription routes server pushes to the listeners registered for
// their topic.
package subscription

import (
	"encoding/json"
	"sort"
	"sync"
)

// Topics pushed by Electrum servers. A push's topic is the method name of the
// call that subscribed to it.
const (
	PeersTopic      = "server.peers.subscribe"
	ScriptHashTopic = "blockchain.scripthash.subscribe"
	HeadersTopic    = "blockchain.headers.subscribe"
)

// Listener receives the params of a push, as sent by the server.
type Listener func(params json.RawMessage)

// Handle identifies a registered listener.
type Handle struct {
	Topic string
	id    uint64
}

type entry struct {
	id       uint64
	listener Listener
}

// Dispatcher is a topic-keyed listener registry. Listeners of a topic are
// invoked synchronously in registration order. The zero value is ready to
// use.
type Dispatcher struct {
	mu     sync.Mutex
	nextID uint64
	topics map[string][]entry
}

// Register adds a listener to the end of the topic's listeners.
func (d *Dispatcher) Register(topic string, listener Listener) Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.topics == nil {
		d.topics = map[string][]entry{}
	}
	d.nextID++
	d.topics[topic] = append(d.topics[topic], entry{d.nextID, listener})
	return Handle{Topic: topic, id: d.nextID}
}

// Unregister removes a single listener. It returns false if the listener was
// already gone.
func (d *Dispatcher) Unregister(h Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := d.topics[h.Topic]
	for i, e := range entries {
		if e.id != h.id {
			continue
		}
		remaining := make([]entry, 0, len(entries)-1)
		remaining = append(remaining, entries[:i]...)
		remaining = append(remaining, entries[i+1:]...)
		if len(remaining) == 0 {
			delete(d.topics, h.Topic)
		} else {
			d.topics[h.Topic] = remaining
		}
		return true
	}
	return false
}

// ClearAll removes every listener of topic.
func (d *Dispatcher) ClearAll(topic string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.topics, topic)
}

// Clear removes every listener of every topic.
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.topics) > 0 {
		logger.Printf("Clearing listeners of %d topics", len(d.topics))
	}
	d.topics = nil
}

// Len returns the number of listeners registered for topic.
func (d *Dispatcher) Len(topic string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.topics[topic])
}

// Topics returns the topics that have listeners, sorted.
func (d *Dispatcher) Topics() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	topics := make([]string, 0, len(d.topics))
	for topic := range d.topics {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Dispatch invokes the topic's listeners in registration order. Listeners
// run without the registry lock held, so they may register or unregister;
// such changes apply from the next dispatch.
func (d *Dispatcher) Dispatch(topic string, params json.RawMessage) {
	d.mu.Lock()
	entries := d.topics[topic]
	d.mu.Unlock()

	if len(entries) == 0 {
		logger.Printf("Dropping push without listeners: %s", topic)
		return
	}
	for _, e := range entries {
		e.listener(params)
	}
}
