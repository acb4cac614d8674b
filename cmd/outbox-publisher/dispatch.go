package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmgate-checkout/pkg/db/models"
	"github.com/angelmondragon/farmgate-checkout/pkg/enums"
	"github.com/angelmondragon/farmgate-checkout/pkg/instance"
	"github.com/angelmondragon/farmgate-checkout/pkg/outbox"
)

type outcomeKind int

const (
	outcomePublished outcomeKind = iota
	outcomeAlreadyPublished
	outcomeRetry
	outcomeDeadLetter
)

type outcome struct {
	kind   outcomeKind
	reason enums.OutboxDLQErrorReason
	err    error
	fields map[string]any
}

// nonRetryableError marks failures that retrying the same row cannot fix.
type nonRetryableError struct {
	err error
}

func (e nonRetryableError) Error() string { return e.err.Error() }
func (e nonRetryableError) Unwrap() error { return e.err }

// dispatch tries to publish one row. It never touches the database.
func (s *Service) dispatch(ctx context.Context, event models.OutboxEvent) outcome {
	envelope, topic, err := s.resolve(event)
	fields := s.eventFields(event, envelope, topic)
	if err != nil {
		return outcome{kind: outcomeDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err, fields: fields}
	}

	if s.guard != nil {
		claimed, err := s.guard.Claim(ctx, publisherName, event.ID)
		switch {
		case err != nil:
			s.logg.Warn(s.logg.WithFields(ctx, withError(fields, err)), "outbox claim failed, publishing anyway")
		case !claimed:
			return outcome{kind: outcomeAlreadyPublished, fields: fields}
		}
	}

	err = s.publish(ctx, event, envelope, topic)
	if err == nil {
		return outcome{kind: outcomePublished, fields: fields}
	}
	s.release(ctx, event.ID)

	if errors.As(err, new(nonRetryableError)) {
		return outcome{kind: outcomeDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err, fields: fields}
	}
	attempts := event.AttemptCount + 1
	fields["attempt_count"] = attempts
	if attempts >= s.maxAttempts {
		fields["terminal_reason"] = "max_attempts"
		return outcome{kind: outcomeDeadLetter, reason: enums.OutboxDLQReasonMaxAttempts, err: fmt.Errorf("max publish attempts reached: %w", err), fields: fields}
	}
	return outcome{kind: outcomeRetry, err: err, fields: fields}
}

// record writes the bookkeeping for a dispatched row. Its error aborts the batch.
func (s *Service) record(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, out outcome) error {
	logCtx := s.logg.WithFields(ctx, out.fields)
	switch out.kind {
	case outcomePublished, outcomeAlreadyPublished:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		if out.kind == outcomeAlreadyPublished {
			s.logg.Info(logCtx, "outbox event already published")
		} else {
			s.logg.Info(logCtx, "outbox event published")
		}
	case outcomeRetry:
		s.logg.Warn(s.logg.WithFields(ctx, withError(out.fields, out.err)), "outbox publish failed")
		if err := s.repo.MarkFailedTx(tx, event.ID, out.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
	case outcomeDeadLetter:
		return s.deadLetter(ctx, tx, event, out)
	}
	return nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, out outcome) error {
	fields := withError(out.fields, out.err)
	fields["error_reason"] = out.reason
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox event will not be retried")

	msg := out.err.Error()
	if err := s.dlq.InsertTx(tx, models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   out.reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      s.now().UTC(),
	}); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, out.err, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) release(ctx context.Context, id string) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Release(ctx, publisherName, id); err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"outbox_id": id, "error": err.Error()}), "outbox claim release failed")
	}
}

func (s *Service) resolve(event models.OutboxEvent) (outbox.PayloadEnvelope, string, error) {
	if !event.EventType.IsValid() {
		return outbox.PayloadEnvelope{}, "", nonRetryableError{fmt.Errorf("unknown event type %q", event.EventType)}
	}
	topic, ok := s.topics[event.AggregateType]
	if !ok || topic == "" {
		return outbox.PayloadEnvelope{}, "", nonRetryableError{fmt.Errorf("no topic configured for aggregate %q", event.AggregateType)}
	}
	envelope, err := outbox.DecodeEnvelope(event.Payload, event.ID)
	if err != nil {
		return envelope, topic, nonRetryableError{err}
	}
	return envelope, topic, nil
}

// publish sends the envelope's data unchanged; routing metadata rides in attributes.
func (s *Service) publish(ctx context.Context, event models.OutboxEvent, envelope outbox.PayloadEnvelope, topic string) error {
	pub := s.publisherFor(topic)
	if pub == nil {
		return nonRetryableError{fmt.Errorf("%w for topic %s", errNoPublisher, topic)}
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(ctx, &gcppubsub.Message{
		Data: envelope.Data,
		Attributes: map[string]string{
			"event_id":       envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"checkout_id":    event.AggregateID,
			"instance_id":    instance.GetID(),
			"occurred_at":    envelope.OccurredAt.Format(time.RFC3339Nano),
		},
	})
	if result == nil {
		return nonRetryableError{fmt.Errorf("publisher returned nil for topic %s", topic)}
	}
	_, err := result.Get(ctx)
	return err
}

func (s *Service) eventFields(event models.OutboxEvent, envelope outbox.PayloadEnvelope, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID,
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"checkout_id":    event.AggregateID,
		"attempt_count":  event.AttemptCount,
	}
	if envelope.EventID != "" {
		fields["event_id"] = envelope.EventID
		fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func withError(fields map[string]any, err error) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	if err != nil {
		out["error"] = err.Error()
	}
	return out
}
