// Package engine implements the reminder lifecycle: the due-scan with
// per-reminder failure isolation, the 24h follow-up cadence, and the audit
// trail of delivery outcomes. The engine is stateless between invocations;
// an external periodic trigger drives it and all state lives in the store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"voicenote-api/domain"
	"voicenote-api/notify"
)

// Store is the persistence surface the engine needs.
type Store interface {
	DueReminders(ctx context.Context, now time.Time) ([]domain.Reminder, error)
	FollowupEligible(ctx context.Context, cutoff time.Time) ([]domain.Reminder, error)
	UpdateReminder(ctx context.Context, r domain.Reminder) error
	EnqueueDeliveryEvents(ctx context.Context, events []domain.DeliveryEvent) error
}

// Mailer is the email channel.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) (string, error)
}

// Texter is the SMS channel.
type Texter interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// Claimer grants short-lived per-reminder dispatch claims so overlapping
// scan triggers do not double-send. Optional; without one the engine
// provides at-least-once delivery.
type Claimer interface {
	// Claim records the reminder id and returns true if it was newly claimed.
	Claim(ctx context.Context, id string) (bool, error)
	// Release frees a claim after a failed dispatch so the next scan retries.
	Release(ctx context.Context, id string) error
}

// Links builds the signed action URLs embedded in follow-up emails.
// Optional; without one follow-ups carry no links.
type Links interface {
	CompleteURL(id string) (string, error)
	RescheduleURL(id string) (string, error)
}

// Options wires an Engine. Store and Logger are required; every other
// collaborator is an optional capability.
type Options struct {
	Store       Store
	Mailer      Mailer
	Texter      Texter
	Claims      Claimer
	Links       Links
	CallTimeout time.Duration
	Logger      *log.Logger
}

// Engine executes one processing run per invocation.
type Engine struct {
	store       Store
	mailer      Mailer
	texter      Texter
	claims      Claimer
	links       Links
	callTimeout time.Duration
	logger      *log.Logger
}

func New(opts Options) *Engine {
	if opts.Store == nil {
		panic("engine: store is required")
	}
	if opts.Logger == nil {
		panic("engine: logger is required")
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	return &Engine{
		store:       opts.Store,
		mailer:      opts.Mailer,
		texter:      opts.Texter,
		claims:      opts.Claims,
		links:       opts.Links,
		callTimeout: opts.CallTimeout,
		logger:      opts.Logger,
	}
}

// ProcessDue runs one complete cycle: first deliveries for due reminders,
// then follow-ups for reminders past the 24h cutoff. Per-reminder failures
// are caught and reported in the result list; only a store failure aborts
// the run as a whole.
func (e *Engine) ProcessDue(ctx context.Context, now time.Time) (report domain.RunReport, err error) {
	metrics, ctx := newRunMetrics(ctx, e.logger)
	defer func() {
		metrics.Observe(report)
		metrics.Log(err)
	}()

	due, err := e.store.DueReminders(ctx, now)
	if err != nil {
		err = fmt.Errorf("scan due reminders: %w", err)
		return report, err
	}
	metrics.SetDueSelected(len(due))

	results := make([]domain.RunResult, 0, len(due))
	events := make([]domain.DeliveryEvent, 0, len(due))
	for _, r := range due {
		res, claimed := e.deliverDue(ctx, r)
		if !claimed {
			continue
		}
		results = append(results, res)
		events = append(events, deliveryEvent(res, domain.EventDue, now))
	}

	cutoff := now.Add(-domain.FollowupInterval)
	eligible, err := e.store.FollowupEligible(ctx, cutoff)
	if err != nil {
		err = fmt.Errorf("scan follow-up reminders: %w", err)
		return report, err
	}
	metrics.SetFollowupSelected(len(eligible))

	for _, r := range eligible {
		res := e.deliverFollowup(ctx, r, now)
		results = append(results, res)
		events = append(events, deliveryEvent(res, domain.EventFollowup, now))
	}

	report = domain.RunReport{Processed: len(results), Results: results}
	e.emitEvents(ctx, events)
	return report, nil
}

// deliverDue handles the first delivery of one reminder. The second return
// value is false when another run holds the dispatch claim and the reminder
// was skipped entirely.
func (e *Engine) deliverDue(ctx context.Context, r domain.Reminder) (domain.RunResult, bool) {
	if e.claims != nil {
		ok, err := e.claims.Claim(ctx, r.ID)
		if err != nil {
			e.logger.WithError(err).WithField("reminder", r.ID).Warn("dispatch claim unavailable, proceeding unclaimed")
		} else if !ok {
			e.logger.WithField("reminder", r.ID).Debug("reminder claimed by another run, skipping")
			return domain.RunResult{}, false
		}
	}

	var attempted, succeeded int
	var failures []string

	if r.WantsMethod(domain.MethodEmail) && r.Email != "" {
		attempted++
		if err := e.sendEmail(ctx, r); err != nil {
			failures = append(failures, "email: "+err.Error())
		} else {
			succeeded++
		}
	}

	if r.WantsMethod(domain.MethodSMS) && r.PhoneNumber != "" {
		switch err := e.sendSMS(ctx, r); {
		case err == nil:
			attempted++
			succeeded++
		case isChannelUnavailable(err):
			// No SMS channel configured: the reminder simply gets no text.
		default:
			attempted++
			failures = append(failures, "sms: "+err.Error())
		}
	}

	if attempted > 0 && succeeded == 0 {
		e.releaseClaim(ctx, r.ID)
		return failedResult(r.ID, strings.Join(failures, "; ")), true
	}

	r.MarkSent()
	if err := e.store.UpdateReminder(ctx, r); err != nil {
		e.releaseClaim(ctx, r.ID)
		return failedResult(r.ID, "persist sent flag: "+err.Error()), true
	}

	res := domain.RunResult{ID: r.ID, Status: domain.ResultSent}
	// Partial channel failures do not block the sent transition but are
	// surfaced in the per-item report.
	if len(failures) > 0 {
		res.Error = strings.Join(failures, "; ")
	}
	return res, true
}

func (e *Engine) deliverFollowup(ctx context.Context, r domain.Reminder, now time.Time) domain.RunResult {
	completeURL, rescheduleURL := e.actionURLs(r.ID)
	subject, body := notify.RenderFollowupEmail(r, completeURL, rescheduleURL)

	if e.mailer == nil {
		return failedResult(r.ID, "email: channel is not configured")
	}
	cctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	_, err := e.mailer.Send(cctx, r.Email, subject, body)
	cancel()
	if err != nil {
		return failedResult(r.ID, "email: "+err.Error())
	}

	r.RecordFollowup(now)
	if err := e.store.UpdateReminder(ctx, r); err != nil {
		// Counters untouched in the store; the next cycle retries.
		return failedResult(r.ID, "persist follow-up: "+err.Error())
	}
	return domain.RunResult{ID: r.ID, Status: domain.ResultSent}
}

func (e *Engine) sendEmail(ctx context.Context, r domain.Reminder) error {
	if e.mailer == nil {
		return &notify.ChannelUnavailableError{Channel: "email"}
	}
	subject, body := notify.RenderReminderEmail(r)
	cctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	_, err := e.mailer.Send(cctx, r.Email, subject, body)
	return err
}

func (e *Engine) sendSMS(ctx context.Context, r domain.Reminder) error {
	if e.texter == nil {
		return &notify.ChannelUnavailableError{Channel: "sms"}
	}
	cctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	_, err := e.texter.Send(cctx, r.PhoneNumber, notify.RenderReminderSMS(r))
	return err
}

func (e *Engine) actionURLs(id string) (complete, reschedule string) {
	if e.links == nil {
		return "", ""
	}
	var err error
	if complete, err = e.links.CompleteURL(id); err != nil {
		e.logger.WithError(err).WithField("reminder", id).Warn("building complete link failed")
		return "", ""
	}
	if reschedule, err = e.links.RescheduleURL(id); err != nil {
		e.logger.WithError(err).WithField("reminder", id).Warn("building reschedule link failed")
		return "", ""
	}
	return complete, reschedule
}

func (e *Engine) releaseClaim(ctx context.Context, id string) {
	if e.claims == nil {
		return
	}
	if err := e.claims.Release(ctx, id); err != nil {
		e.logger.WithError(err).WithField("reminder", id).Warn("releasing dispatch claim failed")
	}
}

// emitEvents records the run's outcomes on the audit queue. Best effort: the
// run report is already complete and must not fail over audit trouble.
func (e *Engine) emitEvents(ctx context.Context, events []domain.DeliveryEvent) {
	if len(events) == 0 {
		return
	}
	if err := e.store.EnqueueDeliveryEvents(ctx, events); err != nil {
		e.logger.WithError(err).Warn("recording delivery events failed")
	}
}

func deliveryEvent(res domain.RunResult, kind string, now time.Time) domain.DeliveryEvent {
	return domain.DeliveryEvent{
		ReminderID: res.ID,
		Kind:       kind,
		Status:     res.Status,
		Error:      res.Error,
		Time:       now.UTC(),
	}
}

func failedResult(id, msg string) domain.RunResult {
	return domain.RunResult{ID: id, Status: domain.ResultFailed, Error: msg}
}

func isChannelUnavailable(err error) bool {
	var cerr *notify.ChannelUnavailableError
	return errors.As(err, &cerr)
}
