package server

import (
	"context"
	"sync"
	"time"
)

const (
	// RealtimeEventPresence carries join/leave/typing transitions.
	RealtimeEventPresence = "presence"
	// RealtimeEventNoteEdited carries applied edits.
	RealtimeEventNoteEdited = "note-edit"
	// RealtimeEventCursor carries cursor/selection updates.
	RealtimeEventCursor    = "cursor"
	realtimeEventHeartbeat = "heartbeat"
)

// NoteEvent is one broadcast-worthy message scoped to a note. Actor names
// the identity that caused the event; their own subscriptions are skipped
// during fan-out.
type NoteEvent struct {
	NoteID    string
	EventType string
	Actor     string
	Payload   interface{}
	Timestamp time.Time
}

// NoteEventDispatcher fans note events out to the note's subscribed
// collaborators. Slow subscribers lose events rather than blocking the
// publisher.
type NoteEventDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*noteSubscriber
	nextID      int64
	bufferSize  int
}

type noteSubscriber struct {
	id       int64
	identity string
	stream   chan NoteEvent
}

// NewNoteEventDispatcher constructs an empty dispatcher.
func NewNoteEventDispatcher() *NoteEventDispatcher {
	return &NoteEventDispatcher{
		subscribers: make(map[string]map[int64]*noteSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers the identity for the note's event stream. The stream
// closes with the returned cleanup or when the context ends.
func (d *NoteEventDispatcher) Subscribe(ctx context.Context, noteID, identity string) (<-chan NoteEvent, func()) {
	if noteID == "" {
		ch := make(chan NoteEvent)
		close(ch)
		return ch, func() {}
	}
	subscriber := &noteSubscriber{
		id:       d.nextSequence(),
		identity: identity,
		stream:   make(chan NoteEvent, d.bufferSize),
	}
	d.register(noteID, subscriber)
	cleanup := func() {
		d.unregister(noteID, subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the event to every subscriber of the note except the
// actor.
func (d *NoteEventDispatcher) Publish(event NoteEvent) {
	if event.NoteID == "" || event.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[event.NoteID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	targets := make([]*noteSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		if subscriber.identity != "" && subscriber.identity == event.Actor {
			continue
		}
		targets = append(targets, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range targets {
		select {
		case subscriber.stream <- event:
		default:
		}
	}
}

func (d *NoteEventDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *NoteEventDispatcher) register(noteID string, subscriber *noteSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[noteID]; !ok {
		d.subscribers[noteID] = make(map[int64]*noteSubscriber)
	}
	d.subscribers[noteID][subscriber.id] = subscriber
}

func (d *NoteEventDispatcher) unregister(noteID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[noteID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, noteID)
		}
	}
	d.mu.Unlock()
}
