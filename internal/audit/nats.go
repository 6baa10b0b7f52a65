package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	auditStreamName   = "AUDIT"
	auditEventSubject = "audit.events"
	auditStreamMaxAge = 30 * 24 * time.Hour
)

// Event is the wire form of one audit record published to the event stream
type Event struct {
	Content   string    `json:"content"`
	ServerID  string    `json:"server_id,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NATSRecorder publishes audit records to a JetStream stream so other
// services (analytics, alerting) can consume them.
type NATSRecorder struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

// NewNATSRecorder creates the audit stream if needed and returns a recorder
// publishing to it.
func NewNATSRecorder(js nats.JetStreamContext, logger *zap.Logger) (*NATSRecorder, error) {
	_, err := js.AddStream(&nats.StreamConfig{
		Name:     auditStreamName,
		Subjects: []string{"audit.*"},
		Storage:  nats.FileStorage,
		MaxAge:   auditStreamMaxAge,
		MaxMsgs:  -1,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		return nil, fmt.Errorf("failed to create audit stream: %w", err)
	}

	return &NATSRecorder{
		js:     js,
		logger: logger.Named("audit"),
	}, nil
}

// Record implements Recorder by publishing the record as a JSON event
func (r *NATSRecorder) Record(ctx context.Context, content, serverID string, tags []string) bool {
	event := Event{
		Content:   content,
		ServerID:  serverID,
		Tags:      tags,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		r.logger.Warn("Failed to marshal audit event", zap.Error(err))
		return false
	}

	if _, err := r.js.Publish(auditEventSubject, data, nats.Context(ctx)); err != nil {
		r.logger.Warn("Failed to publish audit event",
			zap.String("server_id", serverID),
			zap.Error(err))
		return false
	}
	return true
}
