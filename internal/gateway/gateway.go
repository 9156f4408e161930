// Package gateway binds the WebSocket transport to the pairing engine: it
// turns connections and client events into engine operations and relays,
// and turns engine notifications into frames.
package gateway

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Kunalchandra007/SuddenConnect/internal/chat"
	"github.com/Kunalchandra007/SuddenConnect/internal/lifecycle"
	"github.com/Kunalchandra007/SuddenConnect/internal/moderation"
	"github.com/Kunalchandra007/SuddenConnect/internal/pairing"
	"github.com/Kunalchandra007/SuddenConnect/internal/protocol"
	"github.com/Kunalchandra007/SuddenConnect/internal/ratelimit"
	"github.com/Kunalchandra007/SuddenConnect/internal/report"
	"github.com/Kunalchandra007/SuddenConnect/internal/room"
	"github.com/Kunalchandra007/SuddenConnect/internal/ws"
	"go.uber.org/zap"
)

var (
	// ErrRateLimited rejects an upgrade from an address that connects too often.
	ErrRateLimited = errors.New("gateway: too many connections")
	// ErrConnectionGone is returned by OnConnect when the connection was
	// removed before its participant could be admitted.
	ErrConnectionGone = errors.New("gateway: connection gone")
)

// connState tracks a connection between OnConnect and OnDisconnect, which
// the transport may call in either order.
type connState int

const (
	connAdmitting connState = iota
	connAdmitted
	connRejected
	connGone
)

// DefaultOpTimeout bounds every engine call and store write made on behalf
// of a client.
const DefaultOpTimeout = 5 * time.Second

// Limiter decides whether an identifier may perform an action.
// *ratelimit.Limiter implements it.
type Limiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (ratelimit.Result, error)
}

// Reporter stores abuse reports. *report.Store implements it.
type Reporter interface {
	Create(ctx context.Context, r *report.Report) error
}

// Options carries the optional collaborators of a Gateway.
type Options struct {
	// Limiter is nil when rate limiting is disabled.
	Limiter Limiter
	// Reporter is nil when reports cannot be stored.
	Reporter Reporter
	// Filter defaults to moderation.NewFilter().
	Filter    *moderation.Filter
	OpTimeout time.Duration
	Now       func() time.Time
}

// Gateway implements ws.Handler.
type Gateway struct {
	engine     *pairing.Engine
	rooms      *room.Manager
	notifier   *Notifier
	limiter    Limiter
	reporter   Reporter
	filter     *moderation.Filter
	transcript *chat.Transcript
	dispatcher *ws.MessageDispatcher
	timeout    time.Duration
	now        func() time.Time
	log        *zap.Logger

	connMu sync.Mutex
	conns  map[string]connState
}

var (
	_ ws.Handler     = (*Gateway)(nil)
	_ lifecycle.Sink = (*Gateway)(nil)
)

// New creates a Gateway and registers its client event handlers.
func New(engine *pairing.Engine, rooms *room.Manager, notifier *Notifier, opts Options, logger *zap.Logger) *Gateway {
	if opts.Filter == nil {
		opts.Filter = moderation.NewFilter()
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = DefaultOpTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	g := &Gateway{
		engine:     engine,
		rooms:      rooms,
		notifier:   notifier,
		limiter:    opts.Limiter,
		reporter:   opts.Reporter,
		filter:     opts.Filter,
		transcript: chat.NewTranscript(),
		dispatcher: ws.NewMessageDispatcher(logger),
		timeout:    opts.OpTimeout,
		now:        opts.Now,
		log:        logger,
		conns:      make(map[string]connState),
	}
	g.registerHandlers()
	return g
}

func (g *Gateway) registerHandlers() {
	d := g.dispatcher

	d.Register(protocol.EventQueueJoin, func(c *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.QueueJoinMsg); ok {
			g.queueJoin(c.ID, m)
		}
	})
	d.Register(protocol.EventQueueNext, func(c *ws.Connection, _ interface{}) {
		g.next(c.ID)
	})
	d.Register(protocol.EventQueueLeave, func(c *ws.Connection, _ interface{}) {
		g.leave(c.ID)
	})
	d.Register(protocol.EventQueueRetry, func(c *ws.Connection, _ interface{}) {
		g.retry(c.ID)
	})
	d.Register(protocol.EventOffer, func(c *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.OfferMsg); ok {
			g.relay(c.ID, protocol.EventOffer, m.RoomID, g.rooms.Offer(m.RoomID, c.ID, m.SDP))
		}
	})
	d.Register(protocol.EventAnswer, func(c *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.AnswerMsg); ok {
			g.relay(c.ID, protocol.EventAnswer, m.RoomID, g.rooms.Answer(m.RoomID, c.ID, m.SDP))
		}
	})
	d.Register(protocol.EventAddIceCandidate, func(c *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.IceCandidateMsg); ok {
			g.relay(c.ID, protocol.EventAddIceCandidate, m.RoomID,
				g.rooms.IceCandidate(m.RoomID, c.ID, m.Candidate, m.Type))
		}
	})
	d.Register(protocol.EventChatMessage, func(c *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.ChatMessageMsg); ok {
			g.chatMessage(c.ID, m)
		}
	})
	d.Register(protocol.EventReport, func(c *ws.Connection, msg interface{}) {
		if m, ok := msg.(protocol.ReportMsg); ok {
			g.report(c.ID, m)
		}
	})
}

// ---------------------------------------------------------------------------
// ws.Handler
// ---------------------------------------------------------------------------

// Accept applies the per-address connection rate limit.
func (g *Gateway) Accept(r *http.Request) error {
	if !g.allow(ws.ClientIP(r), ratelimit.RuleConnect, "") {
		return ErrRateLimited
	}
	return nil
}

// OnConnect admits the participant described by the upgrade query.
func (g *Gateway) OnConnect(c *ws.Connection) error {
	return g.connect(c.ID, c.Query, c.RemoteAddr)
}

// OnMessage dispatches one client frame.
func (g *Gateway) OnMessage(c *ws.Connection, data []byte) {
	g.dispatcher.Dispatch(c, data)
}

// OnDisconnect removes the participant from the engine.
func (g *Gateway) OnDisconnect(c *ws.Connection) {
	g.disconnect(c.ID)
}

// ---------------------------------------------------------------------------
// lifecycle.Sink
// ---------------------------------------------------------------------------

// Name identifies the gateway in lifecycle logs.
func (g *Gateway) Name() string { return "gateway" }

// Handle drops the chat transcript of rooms that have ended.
func (g *Gateway) Handle(_ context.Context, ev pairing.Event) error {
	if ev.Kind == pairing.EventUnpaired && ev.RoomID != "" {
		g.transcript.Remove(ev.RoomID)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

func (g *Gateway) connect(id string, query url.Values, remoteAddr string) error {
	g.connMu.Lock()
	if g.conns[id] == connGone {
		delete(g.conns, id)
		g.connMu.Unlock()
		return ErrConnectionGone
	}
	g.conns[id] = connAdmitting
	g.connMu.Unlock()

	p := pairing.Participant{
		ID:          id,
		Name:        g.filter.ScreenName(query.Get("name")),
		Preferences: g.preferences(queryPreferences(query)),
		JoinedAt:    g.now(),
	}
	if remoteAddr != "" {
		p.Meta = map[string]string{"remoteAddr": remoteAddr}
	}

	g.notify(id, protocol.EventSessionCreated, protocol.SessionCreatedMsg{ID: id})

	ctx, cancel := g.opContext()
	defer cancel()
	if err := g.engine.Admit(ctx, p); err != nil {
		g.connMu.Lock()
		if g.conns[id] == connGone {
			delete(g.conns, id)
		} else {
			g.conns[id] = connRejected
		}
		g.connMu.Unlock()
		return err
	}

	// A disconnect that arrived while admitting found nothing to remove.
	g.connMu.Lock()
	gone := g.conns[id] == connGone
	if gone {
		delete(g.conns, id)
	} else {
		g.conns[id] = connAdmitted
	}
	g.connMu.Unlock()
	if gone {
		if err := g.engine.Disconnect(ctx, id); err != nil {
			g.log.Warn("disconnect failed", zap.String("participant", id), zap.Error(err))
		}
		return ErrConnectionGone
	}

	g.log.Debug("participant connected", zap.String("participant", id), zap.String("name", p.Name))
	return nil
}

func (g *Gateway) disconnect(id string) {
	g.connMu.Lock()
	state, known := g.conns[id]
	switch {
	case !known || state == connAdmitting:
		g.conns[id] = connGone
	default:
		delete(g.conns, id)
	}
	g.connMu.Unlock()
	if state != connAdmitted {
		return
	}

	ctx, cancel := g.opContext()
	defer cancel()
	if err := g.engine.Disconnect(ctx, id); err != nil {
		g.log.Warn("disconnect failed", zap.String("participant", id), zap.Error(err))
	}
}

// queueJoin stores the submitted profile. It takes effect on the next
// matching pass; an idle participant stays idle until queue:retry.
func (g *Gateway) queueJoin(id string, m protocol.QueueJoinMsg) {
	name := ""
	if strings.TrimSpace(m.Name) != "" {
		name = g.filter.ScreenName(m.Name)
	}

	ctx, cancel := g.opContext()
	defer cancel()
	if err := g.engine.SetProfile(ctx, id, name, g.preferences(m.Preferences)); err != nil {
		g.log.Warn("set profile failed", zap.String("participant", id), zap.Error(err))
	}
}

func (g *Gateway) next(id string) {
	if !g.allow(id, ratelimit.RuleNext, id) {
		return
	}
	ctx, cancel := g.opContext()
	defer cancel()
	if err := g.engine.Next(ctx, id); err != nil {
		g.log.Warn("next failed", zap.String("participant", id), zap.Error(err))
	}
}

func (g *Gateway) leave(id string) {
	ctx, cancel := g.opContext()
	defer cancel()
	if err := g.engine.Leave(ctx, id); err != nil {
		g.log.Warn("leave failed", zap.String("participant", id), zap.Error(err))
	}
}

func (g *Gateway) retry(id string) {
	if !g.allow(id, ratelimit.RuleRetry, id) {
		return
	}
	ctx, cancel := g.opContext()
	defer cancel()
	if err := g.engine.Retry(ctx, id); err != nil {
		g.log.Warn("retry failed", zap.String("participant", id), zap.Error(err))
	}
}

// relay logs signaling that could not be forwarded. Stale room ids are
// normal after a partner leaves, so nothing is sent back.
func (g *Gateway) relay(id, event, roomID string, err error) {
	if err != nil {
		g.log.Debug("signal not relayed",
			zap.String("participant", id),
			zap.String("event", event),
			zap.String("room", roomID),
			zap.Error(err))
	}
}

func (g *Gateway) chatMessage(id string, m protocol.ChatMessageMsg) {
	if !g.allow(id, ratelimit.RuleChat, id) {
		return
	}
	if err := chat.ValidateMessage(m.Text); err != nil {
		g.sendError(id, "invalid_message", err.Error())
		return
	}
	if result := g.filter.Check(m.Text); result.Blocked {
		g.log.Info("chat message blocked",
			zap.String("participant", id),
			zap.String("reason", result.Reason),
			zap.String("term", result.Term))
		g.sendError(id, "message_blocked", result.Message)
		return
	}
	if !g.rooms.IsMember(m.RoomID, id) {
		g.sendError(id, "not_in_room", "you are not in this room")
		return
	}

	msg := chat.NewMessage(id, m.Text, g.now())
	g.transcript.Add(m.RoomID, msg)
	if err := g.notifier.NotifyRoom(m.RoomID, protocol.EventChatMessage, msg); err != nil {
		g.log.Warn("chat broadcast failed", zap.String("room", m.RoomID), zap.Error(err))
	}
}

func (g *Gateway) report(id string, m protocol.ReportMsg) {
	peer, ok := g.rooms.Peer(m.RoomID, id)
	if !ok {
		g.sendError(id, "not_in_room", "you are not in this room")
		return
	}
	if !report.ValidReason(m.Reason) {
		g.sendError(id, "invalid_reason", "reason must be harassment, spam, explicit or other")
		return
	}
	if g.reporter == nil {
		g.sendError(id, "reports_unavailable", "reports are not being accepted right now")
		return
	}

	lines := g.transcript.Get(m.RoomID)
	entries := make([]report.MessageEntry, 0, len(lines))
	for _, l := range lines {
		from := "reported"
		if l.From == id {
			from = "reporter"
		}
		entries = append(entries, report.MessageEntry{From: from, Text: l.Text, Ts: l.Ts})
	}

	ctx, cancel := g.opContext()
	defer cancel()
	err := g.reporter.Create(ctx, &report.Report{
		ReporterID: id,
		ReportedID: peer,
		RoomID:     m.RoomID,
		Reason:     m.Reason,
		Messages:   entries,
	})
	if err != nil {
		g.log.Error("store report failed", zap.String("room", m.RoomID), zap.Error(err))
		g.sendError(id, "report_failed", "could not store the report")
		return
	}
	g.log.Info("report filed",
		zap.String("room", m.RoomID),
		zap.String("reporter", id),
		zap.String("reported", peer),
		zap.String("reason", m.Reason))
	g.notify(id, protocol.EventReportReceived, protocol.ReportReceivedMsg{})
}

// Stats summarizes the engine state for the health endpoint.
func (g *Gateway) Stats(ctx context.Context) any {
	snap, err := g.engine.Snapshot(ctx)
	if err != nil {
		return map[string]string{"engine": err.Error()}
	}
	return map[string]int{
		"participants": snap.Participants,
		"queued":       len(snap.Pool),
		"paired":       len(snap.Partners),
		"rooms":        g.rooms.Count(),
		"timeouts":     snap.Timeouts,
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// allow applies rule to identifier. A rejected participant (notifyID set) is
// told when to try again. Limiter failures let the action through.
func (g *Gateway) allow(identifier string, rule ratelimit.Rule, notifyID string) bool {
	if g.limiter == nil {
		return true
	}
	ctx, cancel := g.opContext()
	defer cancel()

	res, err := g.limiter.Allow(ctx, identifier, rule)
	if err != nil || res.Allowed {
		return true
	}
	g.log.Info("rate limited", zap.String("identifier", identifier), zap.String("action", rule.Action))
	if notifyID != "" {
		g.notify(notifyID, protocol.EventRateLimited, protocol.RateLimitedMsg{
			Action:     rule.Action,
			RetryAfter: int(math.Ceil(res.RetryAfter.Seconds())),
		})
	}
	return false
}

// preferences screens the interests of a submitted profile and converts it
// for the engine, which normalizes it.
func (g *Gateway) preferences(p *protocol.Preferences) *pairing.Preferences {
	if p == nil {
		return nil
	}
	return &pairing.Preferences{
		Industry:  p.Industry,
		Language:  p.Language,
		Level:     p.SkillLevel,
		Interests: g.filter.CheckInterests(p.Interests),
	}
}

// queryPreferences reads a profile from the connect URL. It returns nil when
// no profile field is present.
func queryPreferences(q url.Values) *protocol.Preferences {
	p := &protocol.Preferences{
		Industry:   q.Get("industry"),
		Language:   q.Get("language"),
		SkillLevel: q.Get("level"),
	}
	if raw := q.Get("interests"); raw != "" {
		p.Interests = strings.Split(raw, ",")
	}
	if p.Industry == "" && p.Language == "" && p.SkillLevel == "" && len(p.Interests) == 0 {
		return nil
	}
	return p
}

func (g *Gateway) notify(id, event string, payload any) {
	if err := g.notifier.Notify(id, event, payload); err != nil {
		g.log.Debug("notify failed", zap.String("participant", id), zap.String("event", event), zap.Error(err))
	}
}

func (g *Gateway) sendError(id, code, message string) {
	g.notify(id, protocol.EventError, protocol.ErrorMsg{Code: code, Message: message})
}

func (g *Gateway) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), g.timeout)
}
