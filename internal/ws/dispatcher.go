package ws

import (
	"github.com/Kunalchandra007/SuddenConnect/internal/protocol"
	"go.uber.org/zap"
)

// MessageHandler handles one parsed client message. msg is the concrete
// struct returned by protocol.ParseClientMessage (e.g. protocol.OfferMsg).
type MessageHandler func(conn *Connection, msg interface{})

// MessageDispatcher routes incoming frames to registered handlers by event
// name. It answers ping itself and replies with a structured error to
// malformed or unsupported frames.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	log      *zap.Logger
}

// NewMessageDispatcher creates an empty dispatcher.
func NewMessageDispatcher(logger *zap.Logger) *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		log:      logger,
	}
}

// Register associates a handler with an event, replacing any earlier one.
func (d *MessageDispatcher) Register(event string, handler MessageHandler) {
	d.handlers[event] = handler
}

// Dispatch parses data and calls the matching handler.
func (d *MessageDispatcher) Dispatch(conn *Connection, data []byte) {
	event, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		d.log.Debug("dispatch parse error", zap.String("conn", conn.ID), zap.Error(err))
		d.sendError(conn, "parse_error", "invalid message format")
		return
	}

	if event == protocol.EventPing {
		d.reply(conn, protocol.EventPong, protocol.PongMsg{})
		return
	}

	handler, ok := d.handlers[event]
	if !ok {
		d.log.Debug("unsupported event", zap.String("event", event), zap.String("conn", conn.ID))
		d.sendError(conn, "unsupported_event", "unsupported event")
		return
	}

	handler(conn, msg)
}

func (d *MessageDispatcher) sendError(conn *Connection, code, message string) {
	d.reply(conn, protocol.EventError, protocol.ErrorMsg{Code: code, Message: message})
}

func (d *MessageDispatcher) reply(conn *Connection, event string, payload interface{}) {
	data, err := protocol.NewServerMessage(event, payload)
	if err != nil {
		d.log.Error("failed to build reply", zap.String("event", event), zap.Error(err))
		return
	}
	if err := conn.Send(data); err != nil {
		d.log.Debug("failed to send reply", zap.String("conn", conn.ID), zap.String("event", event), zap.Error(err))
	}
}
