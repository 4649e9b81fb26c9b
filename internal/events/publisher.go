package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Sink receives every published event. The websocket hub is the primary
// sink; tests register capture sinks.
type Sink interface {
	Deliver(Event)
}

// Publisher is what the session core needs for notifications.
type Publisher interface {
	Publish(Event)
}

// Bus fans events out to in-process sinks and, when connected, mirrors
// them onto NATS subjects for external observer consumers such as the
// Game-Master dashboard.
type Bus struct {
	mu    sync.RWMutex
	sinks []Sink

	nc            *nats.Conn
	subjectPrefix string
}

// NewBus creates a bus with no sinks attached.
func NewBus() *Bus {
	return &Bus{}
}

// AddSink registers an in-process event sink.
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// ConnectNATS attaches a NATS mirror. Events are published to
// "<prefix>.<event type>".
func (b *Bus) ConnectNATS(url, subjectPrefix string) error {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	b.mu.Lock()
	b.nc = nc
	b.subjectPrefix = subjectPrefix
	b.mu.Unlock()

	log.Info().Str("url", url).Str("subject_prefix", subjectPrefix).Msg("NATS event mirror connected")
	return nil
}

// Publish delivers the event to every sink and to the NATS mirror.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	sinks := b.sinks
	nc := b.nc
	prefix := b.subjectPrefix
	b.mu.RUnlock()

	for _, s := range sinks {
		s.Deliver(ev)
	}

	if nc == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("failed to marshal event for NATS")
		return
	}
	subject := fmt.Sprintf("%s.%s", prefix, ev.Type)
	if err := nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to publish event to NATS")
	}
}

// Close shuts down the NATS mirror, if any.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nc != nil {
		b.nc.Close()
		b.nc = nil
	}
}
