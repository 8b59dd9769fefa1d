package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/wytcherly/foreman/pkg/core"
	"github.com/wytcherly/foreman/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams session data over WebSocket to a collector.
// It implements storage.Backend but not storage.Exporter.
type Backend struct {
	link *link
	cfg  Config
}

// New creates a new WebSocket storage backend.
func New(cfg Config) *Backend {
	return &Backend{
		link: newLink(cfg.URL, cfg.Secret, slog.Default().With("component", "collector")),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.link.open()
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.link.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and queues it on the
// link without waiting for delivery.
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.link.send(data)
	return nil
}

// StartSession sends the session and waits for server ack.
func (b *Backend) StartSession(s *core.Session) error {
	data, err := marshalEnvelope(streaming.TypeStartSession, streaming.StartSessionPayload{Session: s})
	if err != nil {
		return err
	}

	b.link.setGreeting(data)
	return b.link.await(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession sends end_session and waits for server ack.
func (b *Backend) EndSession() error {
	data, err := marshalEnvelope(streaming.TypeEndSession, nil)
	if err != nil {
		return err
	}
	err = b.link.await(data, streaming.TypeEndSession, ackTimeout)
	b.link.setGreeting(nil)
	return err
}

func (b *Backend) RecordPowerChange(e *core.PowerStateChange) error {
	return b.sendEnvelope(streaming.TypePowerChange, e)
}

func (b *Backend) RecordSubsystemChange(e *core.SubsystemChange) error {
	return b.sendEnvelope(streaming.TypeSubsystemChange, e)
}

func (b *Backend) RecordCapabilityChange(e *core.CapabilityChange) error {
	return b.sendEnvelope(streaming.TypeCapabilityChange, e)
}

func (b *Backend) RecordAssignment(e *core.AssignmentEvent) error {
	return b.sendEnvelope(streaming.TypeAssignment, e)
}

func (b *Backend) RecordStateTransition(e *core.StateTransition) error {
	return b.sendEnvelope(streaming.TypeStateTransition, e)
}

func (b *Backend) RecordStatusReport(r *core.StatusReport) error {
	return b.sendEnvelope(streaming.TypeStatusReport, r)
}

func (b *Backend) RecordDecision(r *core.DecisionRecord) error {
	return b.sendEnvelope(streaming.TypeDecision, r)
}
