// Package pairing is the matchmaking core: it owns the wait pool, the
// participant records, partner links and room associations, and drives every
// admission, match, leave, next, retry and timeout transition.
//
// All state lives on the goroutine running Engine.Run. Public methods hand a
// closure to that goroutine and wait for it, and timer expiries are funneled
// through the same channel, so no two transitions ever interleave.
package pairing

import (
	"context"
	"errors"
	"time"

	"github.com/Kunalchandra007/SuddenConnect/internal/ban"
	"go.uber.org/zap"
)

// DefaultQueueTimeout bounds how long a participant waits in the pool.
const DefaultQueueTimeout = 5 * time.Minute

// TimeoutMessage is shown to participants whose wait ran out.
const TimeoutMessage = "We couldn't find a match right now. Please try again later."

// PeerLeftText is posted into a room right before "next" tears it down.
const PeerLeftText = "Peer left the chat"

// ErrStopped is returned by calls made after Run has returned.
var ErrStopped = errors.New("pairing: engine stopped")

// Reason says why a pairing ended. It is sent to the remaining partner.
type Reason string

const (
	ReasonLeaveButton    Reason = "leave-button"
	ReasonNext           Reason = "next"
	ReasonDisconnect     Reason = "disconnect"
	ReasonExplicitRemove Reason = "explicit-remove"
	ReasonLeave          Reason = "leave"
)

// State is where a participant sits in the pairing lifecycle.
type State string

const (
	StateIdle   State = "idle"
	StateQueued State = "queued"
	StatePaired State = "paired"
)

// Participant is one connected user.
type Participant struct {
	ID          string
	Name        string
	Meta        map[string]string
	Preferences *Preferences
	JoinedAt    time.Time
}

// Notifier delivers named events to participants and rooms. Implementations
// must not block on network I/O.
type Notifier interface {
	Notify(participantID, event string, payload any) error
	NotifyRoom(roomID, event string, payload any) error
}

// RoomAdapter creates and tears down the session container of a pair.
type RoomAdapter interface {
	CreateRoom(a, b *Participant) (string, error)
	TeardownRoom(roomID string)
	TeardownParticipant(roomID, participantID string)
}

// EventSink receives lifecycle events. Publish must not block.
type EventSink interface {
	Publish(Event)
}

// Config tunes an Engine.
type Config struct {
	QueueTimeout time.Duration
	// Sink is optional.
	Sink EventSink
	// Now defaults to time.Now.
	Now func() time.Time
}

// Snapshot is a point-in-time copy of the engine state.
type Snapshot struct {
	Pool         []string
	Partners     map[string]string
	Rooms        map[string]string
	States       map[string]State
	Participants int
	Timeouts     int
}

// Engine is the single owner of all matching state.
type Engine struct {
	log      *zap.Logger
	notifier Notifier
	rooms    RoomAdapter
	bans     *ban.Registry
	sink     EventSink
	now      func() time.Time

	ops  chan func()
	done chan struct{}

	// Owned by the Run goroutine.
	participants map[string]*Participant
	pool         []string
	partners     map[string]string
	roomOf       map[string]string
	timeouts     *timeoutTracker
}

// New creates an Engine. Nothing happens until Run is called.
func New(cfg Config, notifier Notifier, rooms RoomAdapter, bans *ban.Registry, logger *zap.Logger) *Engine {
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = DefaultQueueTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if bans == nil {
		bans = ban.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		log:          logger,
		notifier:     notifier,
		rooms:        rooms,
		bans:         bans,
		sink:         cfg.Sink,
		now:          cfg.Now,
		ops:          make(chan func()),
		done:         make(chan struct{}),
		participants: make(map[string]*Participant),
		partners:     make(map[string]string),
		roomOf:       make(map[string]string),
	}
	e.timeouts = newTimeoutTracker(cfg.QueueTimeout, e.postTimeout)
	return e
}

// Run processes operations until ctx is cancelled. It must be called once.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("engine started")
	defer func() {
		e.timeouts.stopAll()
		close(e.done)
		e.log.Info("engine stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case op := <-e.ops:
			op()
		}
	}
}

// do runs fn on the engine goroutine and waits for it to finish.
func (e *Engine) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	op := func() {
		defer close(finished)
		fn()
	}
	select {
	case e.ops <- op:
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// postTimeout is called from timer goroutines.
func (e *Engine) postTimeout(id string, gen uint64) {
	select {
	case e.ops <- func() { e.onTimeout(id, gen) }:
	case <-e.done:
	}
}

// Admit registers a participant, puts it in the pool and runs a drain pass.
func (e *Engine) Admit(ctx context.Context, p Participant) error {
	return e.do(ctx, func() { e.admit(p) })
}

// Remove evicts a participant for good. An empty reason means
// ReasonExplicitRemove.
func (e *Engine) Remove(ctx context.Context, id string, reason Reason) error {
	if reason == "" {
		reason = ReasonExplicitRemove
	}
	return e.do(ctx, func() { e.remove(id, reason) })
}

// SetProfile replaces the stored name (when non-empty) and preference
// snapshot. The change is seen by the next selection pass.
func (e *Engine) SetProfile(ctx context.Context, id, name string, prefs *Preferences) error {
	return e.do(ctx, func() { e.setProfile(id, name, prefs) })
}

// Next ends the caller's current pairing, if any, and requeues both sides.
func (e *Engine) Next(ctx context.Context, id string) error {
	return e.do(ctx, func() { e.next(id) })
}

// Leave takes the caller out of the pool or its pairing. The record stays.
func (e *Engine) Leave(ctx context.Context, id string) error {
	return e.do(ctx, func() { e.leave(id) })
}

// Retry puts an idle participant back in the pool.
func (e *Engine) Retry(ctx context.Context, id string) error {
	return e.do(ctx, func() { e.retry(id) })
}

// Disconnect ends whatever the participant was doing and forgets it.
func (e *Engine) Disconnect(ctx context.Context, id string) error {
	return e.do(ctx, func() { e.disconnect(id) })
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := e.do(ctx, func() { s = e.snapshot() })
	return s, err
}

// StateOf reports the participant's state; ok is false for unknown ids.
func (e *Engine) StateOf(ctx context.Context, id string) (state State, ok bool, err error) {
	err = e.do(ctx, func() {
		if _, ok = e.participants[id]; ok {
			state = e.stateOf(id)
		}
	})
	return state, ok, err
}

// RoomOf returns the participant's active room id.
func (e *Engine) RoomOf(ctx context.Context, id string) (roomID string, ok bool, err error) {
	err = e.do(ctx, func() { roomID, ok = e.roomOf[id] })
	return roomID, ok, err
}

func (e *Engine) stateOf(id string) State {
	if _, paired := e.partners[id]; paired {
		return StatePaired
	}
	if e.poolIndex(id) >= 0 {
		return StateQueued
	}
	return StateIdle
}

func (e *Engine) snapshot() Snapshot {
	s := Snapshot{
		Pool:         append([]string(nil), e.pool...),
		Partners:     make(map[string]string, len(e.partners)),
		Rooms:        make(map[string]string, len(e.roomOf)),
		States:       make(map[string]State, len(e.participants)),
		Participants: len(e.participants),
		Timeouts:     e.timeouts.size(),
	}
	for k, v := range e.partners {
		s.Partners[k] = v
	}
	for k, v := range e.roomOf {
		s.Rooms[k] = v
	}
	for id := range e.participants {
		s.States[id] = e.stateOf(id)
	}
	return s
}

func (e *Engine) notify(id, event string, payload any) {
	if err := e.notifier.Notify(id, event, payload); err != nil {
		e.log.Warn("notify failed",
			zap.String("participant", id),
			zap.String("event", event),
			zap.Error(err))
	}
}

func (e *Engine) notifyRoom(roomID, event string, payload any) {
	if err := e.notifier.NotifyRoom(roomID, event, payload); err != nil {
		e.log.Warn("room notify failed",
			zap.String("room", roomID),
			zap.String("event", event),
			zap.Error(err))
	}
}

func (e *Engine) publish(ev Event) {
	if e.sink == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	e.sink.Publish(ev)
}
