// Package events implements the event bus: per-channel publish/subscribe
// with soft and hard back-pressure limits (spec.md §4.M). Subscribers are
// delivered events in publication order; a subscriber that runs past a
// configurable threshold increments a slow-handler counter but is never
// killed mid-dispatch.
package events

import (
	"sync"
	"time"
)

// PublishState classifies how Publish handled an event.
type PublishState string

const (
	StateAccepted    PublishState = "accepted"
	StateSoftLimited PublishState = "soft-limited"
	StateOverflowed  PublishState = "overflowed"
)

// Published is one event delivered to subscribers.
type Published struct {
	Channel string
	Data    any
	// DispatchOrder is this event's monotonically increasing sequence
	// number within Channel, the order subscribers are guaranteed to see
	// events in.
	DispatchOrder int64
}

// PublishResult is Publish's return value.
type PublishResult struct {
	Accepted          bool
	State             PublishState
	Channel           string
	BufferSize        int
	RemainingCapacity int
	DispatchOrder     int64
	SoftLimitActive   bool
}

// Subscriber receives published events for a channel, in dispatch order.
type Subscriber func(Published)

// Limits configures one channel's soft/hard back-pressure thresholds.
type Limits struct {
	SoftLimit int
	HardLimit int
}

// Config configures a Bus.
type Config struct {
	DefaultLimits        Limits
	SlowHandlerThreshold time.Duration
}

type channelState struct {
	mu           sync.Mutex
	pending      int // events accepted but not yet fully dispatched to all subscribers
	nextOrder    int64
	subscribers  []Subscriber
	softActive   bool
	softWarnings int64
	overflows    int64
	slowHandlers int64
	limits       Limits
}

// Bus is the process-wide event publish/subscribe hub.
type Bus struct {
	mu                   sync.Mutex
	channels             map[string]*channelState
	defaultLimits        Limits
	slowHandlerThreshold time.Duration
}

// New constructs a Bus from cfg.
func New(cfg Config) *Bus {
	threshold := cfg.SlowHandlerThreshold
	if threshold <= 0 {
		threshold = 50 * time.Millisecond
	}
	return &Bus{
		channels:             make(map[string]*channelState),
		defaultLimits:        cfg.DefaultLimits,
		slowHandlerThreshold: threshold,
	}
}

func (b *Bus) channel(name string) *channelState {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.channels[name]
	if !ok {
		ch = &channelState{limits: b.defaultLimits}
		b.channels[name] = ch
	}
	return ch
}

// SetChannelLimits overrides the soft/hard limits for one channel.
func (b *Bus) SetChannelLimits(name string, limits Limits) {
	b.channel(name).limits = limits
}

// Subscribe registers sub to receive every event published to channel,
// in publication order, from the moment of registration onward.
func (b *Bus) Subscribe(channel string, sub Subscriber) {
	ch := b.channel(channel)
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.subscribers = append(ch.subscribers, sub)
}

// Publish delivers data to channel's subscribers, classifying the outcome
// by the channel's soft/hard limits. A hard-limited channel drops the
// event and increments its overflow counter; a soft-limited channel still
// delivers but records a warning.
func (b *Bus) Publish(channel string, data any) PublishResult {
	ch := b.channel(channel)

	ch.mu.Lock()
	order := ch.nextOrder
	ch.nextOrder++

	bufSize := ch.pending
	if ch.limits.HardLimit > 0 && bufSize >= ch.limits.HardLimit {
		ch.overflows++
		ch.mu.Unlock()
		return PublishResult{
			Accepted:          false,
			State:             StateOverflowed,
			Channel:           channel,
			BufferSize:        bufSize,
			RemainingCapacity: 0,
			DispatchOrder:     order,
			SoftLimitActive:   ch.softActive,
		}
	}

	state := StateAccepted
	if ch.limits.SoftLimit > 0 && bufSize >= ch.limits.SoftLimit {
		ch.softActive = true
		ch.softWarnings++
		state = StateSoftLimited
	}

	ch.pending++
	subs := append([]Subscriber(nil), ch.subscribers...)
	remaining := 0
	if ch.limits.HardLimit > 0 {
		remaining = ch.limits.HardLimit - ch.pending
	}
	threshold := b.slowHandlerThreshold
	ch.mu.Unlock()

	published := Published{Channel: channel, Data: data, DispatchOrder: order}
	for _, sub := range subs {
		start := time.Now()
		sub(published)
		if time.Since(start) > threshold {
			ch.mu.Lock()
			ch.slowHandlers++
			ch.mu.Unlock()
		}
	}

	ch.mu.Lock()
	ch.pending--
	ch.mu.Unlock()

	return PublishResult{
		Accepted:          true,
		State:             state,
		Channel:           channel,
		BufferSize:        bufSize + 1,
		RemainingCapacity: remaining,
		DispatchOrder:     order,
		SoftLimitActive:   ch.softActive,
	}
}

// Stats is a snapshot of one channel's counters.
type Stats struct {
	SoftWarnings int64
	Overflows    int64
	SlowHandlers int64
}

// ChannelStats returns a snapshot of channel's counters.
func (b *Bus) ChannelStats(channel string) Stats {
	ch := b.channel(channel)
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return Stats{SoftWarnings: ch.softWarnings, Overflows: ch.overflows, SlowHandlers: ch.slowHandlers}
}
