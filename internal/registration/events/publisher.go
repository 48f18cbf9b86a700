// Package events delivers committed domain events to the process engine
// and the officer search index.
package events

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"registration-workers/internal/common/logger"
	"registration-workers/internal/common/metrics"
	"registration-workers/internal/models"
)

// Sink is one destination for domain events.
type Sink interface {
	Name() string
	Publish(ctx context.Context, event models.Event) error
}

// Fanout delivers every event to all sinks. A failing sink does not stop
// the others.
type Fanout struct {
	sinks  []Sink
	logger logger.Logger
}

func NewFanout(log logger.Logger, sinks ...Sink) *Fanout {
	return &Fanout{
		sinks:  sinks,
		logger: log.WithFields(map[string]interface{}{"component": "events"}),
	}
}

func (f *Fanout) Publish(ctx context.Context, event models.Event) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, event); err != nil {
			metrics.EventsPublishFailed.WithLabelValues(s.Name(), string(event.Type)).Inc()
			f.logger.Warn("Event sink failed", map[string]interface{}{
				"sink":          s.Name(),
				"event":         event.Type,
				"applicationId": event.ApplicationID,
				"error":         err.Error(),
			})
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return stderrors.Join(errs...)
}

// MessagePublisher is satisfied by camunda.Client.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, name, correlationKey, messageID string, ttl time.Duration, vars map[string]interface{}) error
}

// MessagePrefix namespaces the BPMN message names, e.g. registration.approved.
const MessagePrefix = "registration."

// ZeebeSink correlates events with the application's process instance by
// application id. The event id doubles as the message id so a redelivered
// event is dropped by the broker.
type ZeebeSink struct {
	publisher MessagePublisher
	ttl       time.Duration
}

func NewZeebeSink(publisher MessagePublisher, ttl time.Duration) *ZeebeSink {
	return &ZeebeSink{publisher: publisher, ttl: ttl}
}

func (z *ZeebeSink) Name() string { return "zeebe" }

func (z *ZeebeSink) Publish(ctx context.Context, event models.Event) error {
	vars, err := eventVariables(event)
	if err != nil {
		return err
	}
	return z.publisher.PublishMessage(ctx, MessagePrefix+string(event.Type), event.ApplicationID, event.ID, z.ttl, vars)
}

func eventVariables(event models.Event) (map[string]interface{}, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	var vars map[string]interface{}
	if err := json.Unmarshal(raw, &vars); err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	vars["eventType"] = string(event.Type)
	return vars, nil
}
