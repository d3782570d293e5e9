package server

import (
	"context"
	"sync"
	"time"
)

const (
	// RealtimeEventSyncEvents announces that new events were committed to a user's log.
	RealtimeEventSyncEvents = "sync-events"
	realtimeEventHeartbeat  = "heartbeat"
	realtimeSourceBackend   = "vendor-sync"

	realtimeBufferSize = 16
)

// RealtimeMessage is a committed-push notification. Cursor is the highest accepted event id.
type RealtimeMessage struct {
	UserID    string
	DeviceID  string
	EventType string
	Cursor    int64
	EntityIDs []string
	Timestamp time.Time
}

// RealtimeDispatcher fans out notifications to the open streams of a user. Slow subscribers
// miss messages instead of blocking publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id       int64
	deviceID string
	stream   chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  realtimeBufferSize,
	}
}

// Subscribe registers a stream until ctx is done or the returned cleanup runs. Messages that
// originate from deviceID are not delivered to this subscriber.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, userID, deviceID string) (<-chan RealtimeMessage, func()) {
	if userID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		deviceID: deviceID,
		stream:   make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(userID, subscriber)

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(userID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.UserID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, subscriber := range d.subscribers[message.UserID] {
		if message.DeviceID != "" && subscriber.deviceID == message.DeviceID {
			continue
		}
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports the open streams of a user.
func (d *RealtimeDispatcher) SubscriberCount(userID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[userID])
}

func (d *RealtimeDispatcher) registerSubscriber(userID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	subscriber.id = d.nextID
	if _, ok := d.subscribers[userID]; !ok {
		d.subscribers[userID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[userID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(userID string, subscriberID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subscribers := d.subscribers[userID]
	if subscribers == nil {
		return
	}
	if subscriber, ok := subscribers[subscriberID]; ok {
		close(subscriber.stream)
		delete(subscribers, subscriberID)
	}
	if len(subscribers) == 0 {
		delete(d.subscribers, userID)
	}
}
