// Package notify delivers workflow decision notifications to Slack.
// Delivery is best-effort and asynchronous: the workflow result never
// depends on a notification landing, and exhausted retries park the
// message in the dead-letter table for the sweeper.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	perrors "github.com/gophygital/permit-agent/internal/errors"
	"github.com/gophygital/permit-agent/internal/permit"
	"github.com/gophygital/permit-agent/internal/retry"
	"github.com/gophygital/permit-agent/internal/store"
)

// SlackAPI is the minimal Slack API surface needed by the notifier.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// DeadLetterSink persists undeliverable notifications and feeds the
// redelivery sweep. *store.Store satisfies it.
type DeadLetterSink interface {
	SaveDeadLetter(dl *store.DeadLetter) error
	ListRetryable(limit int) ([]*store.DeadLetter, error)
	IncrementRetry(id string, nextRetryAt int64) error
	ResolveDeadLetter(id string) error
}

// Notifier posts workflow events to Slack channels chosen by the routing
// rules. It implements permit.Notifier.
type Notifier struct {
	api        SlackAPI
	routing    *Routing
	deadLetter DeadLetterSink
	logger     zerolog.Logger
	retryCfg   retry.Config

	events chan permit.WorkflowEvent
	done   chan struct{}
}

// New creates a Notifier. deadLetter may be nil when no store is
// configured; dropped messages are then only logged.
func New(api SlackAPI, routing *Routing, deadLetter DeadLetterSink, logger zerolog.Logger) *Notifier {
	return &Notifier{
		api:        api,
		routing:    routing,
		deadLetter: deadLetter,
		logger:     logger.With().Str("component", "notifier").Logger(),
		retryCfg:   retry.DefaultConfig(),
		events:     make(chan permit.WorkflowEvent, 64),
		done:       make(chan struct{}),
	}
}

// Start launches the delivery loop. It returns when ctx is cancelled and
// the queue has drained.
func (n *Notifier) Start(ctx context.Context) {
	go func() {
		defer close(n.done)
		for {
			select {
			case ev := <-n.events:
				n.deliver(ctx, ev)
			case <-ctx.Done():
				// Drain what is already queued before exiting.
				for {
					select {
					case ev := <-n.events:
						n.deliver(context.Background(), ev)
					default:
						return
					}
				}
			}
		}
	}()
}

// Wait blocks until the delivery loop has exited.
func (n *Notifier) Wait() {
	<-n.done
}

// NotifyWorkflow enqueues an event for delivery. A full queue drops the
// event rather than blocking the workflow path.
func (n *Notifier) NotifyWorkflow(ctx context.Context, ev permit.WorkflowEvent) {
	select {
	case n.events <- ev:
	default:
		n.logger.Warn().Str("action", ev.Action).Str("permit_id", ev.PermitID).Msg("notification queue full, event dropped")
	}
}

func (n *Notifier) deliver(ctx context.Context, ev permit.WorkflowEvent) {
	channel := n.routing.ChannelFor(ev.PermitType, ev.Action)
	if channel == "" {
		return
	}

	text := formatEvent(ev)
	err := retry.Do(ctx, n.retryCfg, func(ctx context.Context) error {
		postCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		_, _, err := n.api.PostMessageContext(postCtx, channel, slack.MsgOptionText(text, false))
		return classifySlackErr(err)
	})
	if err == nil {
		return
	}

	n.logger.Error().Err(err).Str("channel", channel).Str("action", ev.Action).Msg("notification delivery failed")
	if n.deadLetter == nil {
		return
	}
	dl := &store.DeadLetter{
		ID:            uuid.New().String(),
		TargetChannel: channel,
		Message:       text,
		Error:         err.Error(),
		NextRetryAt:   time.Now().Add(5 * time.Minute).UnixMilli(),
	}
	if saveErr := n.deadLetter.SaveDeadLetter(dl); saveErr != nil {
		n.logger.Error().Err(saveErr).Msg("dead letter save failed")
	}
}

// RedeliverDeadLetters attempts one delivery pass over due dead letters.
// Called periodically by the sweeper in main. No-op without a sink.
func (n *Notifier) RedeliverDeadLetters(ctx context.Context) {
	if n.deadLetter == nil {
		return
	}
	dls, err := n.deadLetter.ListRetryable(20)
	if err != nil {
		n.logger.Error().Err(err).Msg("dead letter listing failed")
		return
	}
	for _, dl := range dls {
		postCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, _, postErr := n.api.PostMessageContext(postCtx, dl.TargetChannel, slack.MsgOptionText(dl.Message, false))
		cancel()
		if postErr != nil {
			// Back off further; give up after five attempts.
			next := int64(0)
			if dl.RetryCount < 5 {
				next = time.Now().Add(time.Duration(dl.RetryCount+1) * 10 * time.Minute).UnixMilli()
			}
			if err := n.deadLetter.IncrementRetry(dl.ID, next); err != nil {
				n.logger.Error().Err(err).Str("id", dl.ID).Msg("dead letter retry bump failed")
			}
			continue
		}
		if err := n.deadLetter.ResolveDeadLetter(dl.ID); err != nil {
			n.logger.Error().Err(err).Str("id", dl.ID).Msg("dead letter resolve failed")
		}
	}
}

// classifySlackErr maps Slack client errors onto the retryable sentinels
// so retry.Do backs off on rate limits and transient failures.
func classifySlackErr(err error) error {
	if err == nil {
		return nil
	}
	var rle *slack.RateLimitedError
	if errors.As(err, &rle) {
		return fmt.Errorf("%w: %v", perrors.ErrRateLimit, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", perrors.ErrTimeout, err)
	}
	return err
}

func formatEvent(ev permit.WorkflowEvent) string {
	ref := ev.Reference
	if ref == "" {
		ref = "permit " + ev.PermitID
	}
	icon := ":white_check_mark:"
	if ev.Result != "ok" {
		icon = ":x:"
	}
	msg := fmt.Sprintf("%s *%s* on %s", icon, ev.Action, ref)
	if ev.Actor != "" {
		msg += " by user " + ev.Actor
	}
	if ev.Result != "ok" && ev.Detail != "" {
		msg += "\n> " + ev.Detail
	}
	return msg
}
