package pairing

import (
	"fmt"

	"github.com/Kunalchandra007/SuddenConnect/internal/metrics"
	"github.com/Kunalchandra007/SuddenConnect/internal/protocol"
	"go.uber.org/zap"
)

// Everything in this file runs on the engine goroutine.

func (e *Engine) admit(p Participant) {
	if p.ID == "" {
		return
	}
	p.Preferences = NormalizePreferences(p.Preferences)
	if existing, ok := e.participants[p.ID]; ok {
		existing.Name = p.Name
		existing.Meta = p.Meta
		existing.Preferences = p.Preferences
		e.log.Debug("participant re-admitted", zap.String("participant", p.ID))
	} else {
		if p.JoinedAt.IsZero() {
			p.JoinedAt = e.now()
		}
		e.participants[p.ID] = &p
		e.publish(Event{Kind: EventConnected, ParticipantID: p.ID, Name: p.Name})
		e.log.Debug("participant admitted",
			zap.String("participant", p.ID),
			zap.Bool("preferences", p.Preferences != nil))
	}

	e.enqueue(p.ID)
	e.notify(p.ID, protocol.EventLobby, protocol.LobbyMsg{})
	e.drain()
}

func (e *Engine) remove(id string, reason Reason) {
	p, ok := e.participants[id]
	if !ok {
		return
	}
	e.handleLeave(id, reason)
	delete(e.participants, id)
	e.publish(Event{Kind: EventDisconnected, ParticipantID: id, Name: p.Name, Reason: reason})
	e.log.Debug("participant removed", zap.String("participant", id), zap.String("reason", string(reason)))
}

func (e *Engine) disconnect(id string) {
	e.remove(id, ReasonDisconnect)
}

func (e *Engine) setProfile(id, name string, prefs *Preferences) {
	p, ok := e.participants[id]
	if !ok {
		return
	}
	if name != "" {
		p.Name = name
	}
	p.Preferences = NormalizePreferences(prefs)
}

func (e *Engine) leave(id string) {
	if _, ok := e.participants[id]; !ok {
		return
	}
	e.handleLeave(id, ReasonLeaveButton)
	e.publish(Event{Kind: EventLeft, ParticipantID: id, Reason: ReasonLeaveButton})
}

func (e *Engine) retry(id string) {
	if _, ok := e.participants[id]; !ok {
		return
	}
	if !e.enqueue(id) {
		return
	}
	e.notify(id, protocol.EventQueueWaiting, protocol.QueueWaitingMsg{})
	e.drain()
}

func (e *Engine) next(id string) {
	if _, ok := e.participants[id]; !ok {
		return
	}
	partnerID, paired := e.partners[id]
	if !paired {
		e.enqueue(id)
		e.drain()
		return
	}

	roomID := e.roomOf[id]
	if roomID != "" {
		// Sent while the room still exists so both sides see it.
		e.notifyRoom(roomID, protocol.EventChatSystem, protocol.ChatSystemMsg{
			Text: PeerLeftText,
			Ts:   e.now().UnixMilli(),
		})
	}

	e.bans.Ban(id, partnerID)
	if roomID != "" {
		e.rooms.TeardownRoom(roomID)
	}
	e.unlink(id, partnerID)
	e.recordUnpaired(id, partnerID, roomID, ReasonNext)

	e.enqueue(id)
	if _, ok := e.participants[partnerID]; ok {
		e.notify(partnerID, protocol.EventPartnerLeft, protocol.PartnerLeftMsg{Reason: string(ReasonNext)})
		e.enqueue(partnerID)
	}
	e.drain()
}

// handleLeave is the unified exit path. The leaver ends up out of the pool
// with no partner or room. A former partner is banned against the leaver,
// told why, and put back in the pool.
func (e *Engine) handleLeave(id string, reason Reason) {
	if reason == "" {
		reason = ReasonLeave
	}
	e.dequeue(id)

	partnerID, paired := e.partners[id]
	roomID := e.roomOf[id]
	if roomID != "" {
		e.rooms.TeardownParticipant(roomID, id)
	}
	delete(e.partners, id)
	delete(e.roomOf, id)
	if !paired {
		return
	}

	e.bans.Ban(id, partnerID)
	if partnerRoom := e.roomOf[partnerID]; partnerRoom != "" {
		e.rooms.TeardownParticipant(partnerRoom, partnerID)
	}
	e.unlink(id, partnerID)
	e.recordUnpaired(id, partnerID, roomID, reason)

	if _, ok := e.participants[partnerID]; !ok {
		return
	}
	e.notify(partnerID, protocol.EventPartnerLeft, protocol.PartnerLeftMsg{Reason: string(reason)})
	e.enqueue(partnerID)
	e.drain()
}

func (e *Engine) onTimeout(id string, gen uint64) {
	since, ok := e.timeouts.expire(id, gen)
	if !ok {
		return
	}
	if _, exists := e.participants[id]; !exists {
		return
	}
	if !e.removeFromPool(id) {
		return
	}

	wait := e.now().Sub(since)
	e.notify(id, protocol.EventQueueTimeout, protocol.QueueTimeoutMsg{
		Message:  TimeoutMessage,
		WaitTime: wait.Milliseconds(),
	})
	metrics.QueueTimeouts.Inc()
	e.publish(Event{Kind: EventTimeout, ParticipantID: id, Wait: wait})
	e.log.Info("queue timeout", zap.String("participant", id), zap.Duration("wait", wait))
}

// enqueue adds a known, unpaired participant to the pool and arms its
// timeout. It reports whether the participant was newly added.
func (e *Engine) enqueue(id string) bool {
	if _, ok := e.participants[id]; !ok {
		return false
	}
	if _, paired := e.partners[id]; paired {
		return false
	}
	if e.poolIndex(id) >= 0 {
		return false
	}
	e.pool = append(e.pool, id)
	e.timeouts.arm(id, e.now())
	metrics.QueueSize.Set(float64(len(e.pool)))
	e.publish(Event{Kind: EventQueued, ParticipantID: id})
	return true
}

// dequeue takes id out of the pool and cancels its timeout.
func (e *Engine) dequeue(id string) {
	e.removeFromPool(id)
	e.timeouts.cancel(id)
}

func (e *Engine) removeFromPool(id string) bool {
	i := e.poolIndex(id)
	if i < 0 {
		return false
	}
	e.pool = append(e.pool[:i], e.pool[i+1:]...)
	metrics.QueueSize.Set(float64(len(e.pool)))
	return true
}

func (e *Engine) poolIndex(id string) int {
	for i, pid := range e.pool {
		if pid == id {
			return i
		}
	}
	return -1
}

// drain pairs pool members until the selector finds nothing more.
func (e *Engine) drain() {
	for len(e.pool) >= 2 {
		p, ok := SelectBestPair(e.candidates(), e.bans.IsBanned)
		if !ok {
			return
		}
		if err := e.pair(p); err != nil {
			e.log.Error("pairing failed", zap.Error(err))
			return
		}
	}
}

func (e *Engine) candidates() []Candidate {
	out := make([]Candidate, 0, len(e.pool))
	for _, id := range e.pool {
		if p, ok := e.participants[id]; ok {
			out = append(out, Candidate{ID: id, Preferences: p.Preferences})
		}
	}
	return out
}

// pair creates the room first and only then touches engine state, so a
// failed room leaves both participants pooled with their timers running.
func (e *Engine) pair(p Pair) error {
	a, b := e.participants[p.A], e.participants[p.B]
	roomID, err := e.rooms.CreateRoom(a, b)
	if err != nil {
		return fmt.Errorf("pairing: create room for %s and %s: %w", p.A, p.B, err)
	}

	now := e.now()
	for _, id := range []string{p.A, p.B} {
		if since, ok := e.timeouts.since(id); ok {
			metrics.MatchWait.Observe(now.Sub(since).Seconds())
		}
		e.dequeue(id)
	}

	e.partners[p.A] = p.B
	e.partners[p.B] = p.A
	e.roomOf[p.A] = roomID
	e.roomOf[p.B] = roomID

	strategy := "scored"
	if p.Fallback {
		strategy = "fallback"
	}
	metrics.MatchesTotal.WithLabelValues(strategy).Inc()
	metrics.MatchScore.Observe(float64(p.Score))
	metrics.ActivePairs.Inc()

	e.publish(Event{
		Kind:          EventMatched,
		ParticipantID: p.A,
		PartnerID:     p.B,
		RoomID:        roomID,
		Name:          a.Name,
		PartnerName:   b.Name,
		Score:         p.Score,
		Fallback:      p.Fallback,
	})
	e.log.Info("paired",
		zap.String("a", p.A),
		zap.String("b", p.B),
		zap.String("room", roomID),
		zap.Int("score", p.Score),
		zap.Bool("fallback", p.Fallback))
	return nil
}

// unlink drops the partner links and room associations of both sides.
func (e *Engine) unlink(a, b string) {
	delete(e.partners, a)
	delete(e.partners, b)
	delete(e.roomOf, a)
	delete(e.roomOf, b)
}

func (e *Engine) recordUnpaired(leaver, partner, roomID string, reason Reason) {
	metrics.ActivePairs.Dec()
	metrics.PartnerLeftTotal.WithLabelValues(string(reason)).Inc()
	e.publish(Event{
		Kind:          EventUnpaired,
		ParticipantID: leaver,
		PartnerID:     partner,
		RoomID:        roomID,
		Reason:        reason,
	})
	e.log.Info("unpaired",
		zap.String("leaver", leaver),
		zap.String("partner", partner),
		zap.String("room", roomID),
		zap.String("reason", string(reason)))
}
