package events

import (
	"sync/atomic"
	"time"

	"github.com/cuemby/burrow/pkg/producer"
	"github.com/cuemby/burrow/pkg/version"
)

// EventType represents the type of event
type EventType string

const (
	EventCycleStart       EventType = "cycle.start"
	EventCycleComplete    EventType = "cycle.complete"
	EventCycleNoDelta     EventType = "cycle.nodelta"
	EventNewDeltaChain    EventType = "chain.new"
	EventPopulateComplete EventType = "populate.complete"
	EventBlobPublished    EventType = "blob.published"
	EventIntegrityChecked EventType = "integrity.checked"
	EventValidated        EventType = "validation.complete"
	EventAnnounced        EventType = "announcement.complete"
	EventRestoreComplete  EventType = "restore.complete"
)

// Event represents one producer lifecycle occurrence
type Event struct {
	Type      EventType
	Version   version.Version
	Timestamp time.Time
	Elapsed   time.Duration
	Success   bool
	Message   string
}

// Stream turns the producer's callback listener into a single buffered
// channel of events, for tailing a producer's progress without writing
// a bespoke Listener. It is registered like any other listener:
//
//	stream := events.NewStream(0)
//	p, err := producer.New(producer.WithListeners(stream), ...)
//	go func() {
//		for ev := range stream.C() {
//			fmt.Println(ev.Type, ev.Version)
//		}
//	}()
//
// Delivery must never stall a cycle, so a full channel drops the event
// and counts it instead of blocking the producer.
type Stream struct {
	producer.NoopListener

	ch      chan Event
	dropped atomic.Uint64
}

// NewStream creates a stream. A non-positive buffer gets the default of
// 128 events.
func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = 128
	}
	return &Stream{ch: make(chan Event, buffer)}
}

// C is the receive side of the stream. The channel is never closed;
// drop the Stream (and its producer) to stop reading.
func (s *Stream) C() <-chan Event {
	return s.ch
}

// Dropped reports how many events were discarded because the channel
// was full.
func (s *Stream) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Stream) emit(ev Event) {
	ev.Timestamp = time.Now()
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

func (s *Stream) emitStatus(typ EventType, st producer.Status, elapsed time.Duration) {
	ev := Event{Type: typ, Version: st.Version, Elapsed: elapsed, Success: st.Success}
	if st.Err != nil {
		ev.Message = st.Err.Error()
	}
	s.emit(ev)
}

func (s *Stream) OnCycleStart(toVersion version.Version) {
	s.emit(Event{Type: EventCycleStart, Version: toVersion, Success: true})
}

func (s *Stream) OnCycleComplete(st producer.Status, elapsed time.Duration) {
	s.emitStatus(EventCycleComplete, st, elapsed)
}

func (s *Stream) OnNewDeltaChain(toVersion version.Version) {
	s.emit(Event{Type: EventNewDeltaChain, Version: toVersion, Success: true})
}

func (s *Stream) OnNoDeltaAvailable(toVersion version.Version) {
	s.emit(Event{Type: EventCycleNoDelta, Version: toVersion, Success: true})
}

func (s *Stream) OnPopulateComplete(st producer.Status, elapsed time.Duration) {
	s.emitStatus(EventPopulateComplete, st, elapsed)
}

func (s *Stream) OnArtifactPublish(st producer.ArtifactStatus, elapsed time.Duration) {
	s.emit(Event{
		Type:    EventBlobPublished,
		Version: st.To,
		Elapsed: elapsed,
		Success: st.Success,
		Message: st.Kind.String(),
	})
}

func (s *Stream) OnIntegrityCheckComplete(st producer.Status, elapsed time.Duration) {
	s.emitStatus(EventIntegrityChecked, st, elapsed)
}

func (s *Stream) OnValidationComplete(st producer.Status, elapsed time.Duration) {
	s.emitStatus(EventValidated, st, elapsed)
}

func (s *Stream) OnAnnouncementComplete(st producer.Status, elapsed time.Duration) {
	s.emitStatus(EventAnnounced, st, elapsed)
}

func (s *Stream) OnRestoreComplete(st producer.RestoreStatus, elapsed time.Duration) {
	ev := Event{Type: EventRestoreComplete, Version: st.Reached, Elapsed: elapsed, Success: st.Success}
	if st.Err != nil {
		ev.Message = st.Err.Error()
	}
	s.emit(ev)
}
