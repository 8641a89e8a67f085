/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package herald

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/blnkfinance/herald/internal/apierror"
	"github.com/blnkfinance/herald/internal/metrics"
	"github.com/blnkfinance/herald/internal/notification"
	"github.com/blnkfinance/herald/model"
	"github.com/blnkfinance/herald/provider"
)

var tracer = otel.Tracer("herald.scheduler")

// Outcome is what a pass did with one queue entry.
type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Reasons an entry is skipped for the current pass.
const (
	SkipMissingID       = "missing id"
	SkipMissingAccount  = "missing account"
	SkipTerminal        = "already dispatched"
	SkipLocked          = "locked by another pass"
	SkipLockUnavailable = "lock unavailable"
	SkipVanished        = "no longer queued"
	SkipInvalidSchedule = "invalid schedule"
	SkipNotDue          = "not due"
	SkipInterrupted     = "pass interrupted"
)

// EntryResult records the outcome of one entry in a pass.
type EntryResult struct {
	ID         string
	Outcome    Outcome
	Reason     string
	Action     model.Action
	ExternalID string
	Err        error
}

// PassReport summarises a dispatch pass.
type PassReport struct {
	StartedAt       time.Time
	FinishedAt      time.Time
	IntervalMinutes int
	Succeeded       int
	Failed          int
	Skipped         int
	Disarmed        bool
	Results         []EntryResult
}

func (r *PassReport) add(result EntryResult) {
	switch result.Outcome {
	case OutcomeSucceeded:
		r.Succeeded++
	case OutcomeFailed:
		r.Failed++
	default:
		r.Skipped++
	}
	r.Results = append(r.Results, result)
}

func skipped(id, reason string) EntryResult {
	return EntryResult{ID: id, Outcome: OutcomeSkipped, Reason: reason}
}

// RunPass dispatches every due, pending entry in queue order.
// A failure to list the queue aborts the pass. Everything that goes wrong with a single
// entry is recorded against that entry and the pass moves on.
// The pass has no deadline unless PassTimeout is set. When ctx ends mid-pass the
// unfinished entries stay pending for the next pass.
func (h *Herald) RunPass(ctx context.Context) (*PassReport, error) {
	if h.cfg.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.PassTimeout)
		defer cancel()
	}
	ctx, span := tracer.Start(ctx, "Run Dispatch Pass")
	defer span.End()

	report := &PassReport{StartedAt: h.now()}
	defer func() {
		report.FinishedAt = h.now()
		metrics.PassDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	}()

	entries, err := h.store.ListQueue(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list queue")
		return report, fmt.Errorf("list queue: %w", err)
	}

	report.IntervalMinutes = h.intervalMinutes(ctx)
	lookahead := time.Duration(report.IntervalMinutes) * time.Minute

	for _, entry := range entries {
		if ctx.Err() != nil {
			report.add(skipped(strings.TrimSpace(entry.ID), SkipInterrupted))
			continue
		}
		report.add(h.processEntry(ctx, entry, lookahead))
	}

	if report.Succeeded > 0 {
		report.Disarmed = h.disarmIfIdle(ctx)
		if err := h.store.SortArchive(ctx); err != nil {
			logrus.WithError(err).Warn("failed to sort archive")
		}
	}

	span.SetAttributes(
		attribute.Int("pass.succeeded", report.Succeeded),
		attribute.Int("pass.failed", report.Failed),
		attribute.Int("pass.skipped", report.Skipped),
	)
	logrus.WithFields(logrus.Fields{
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
		"skipped":   report.Skipped,
		"disarmed":  report.Disarmed,
	}).Info("dispatch pass complete")
	return report, nil
}

func (h *Herald) intervalMinutes(ctx context.Context) int {
	minutes := 0
	if h.trigger != nil {
		minutes = h.trigger.CurrentIntervalMinutes(ctx)
	}
	if minutes <= 0 {
		minutes = h.cfg.DefaultIntervalMinutes
	}
	return minutes
}

func lockKey(id string) string {
	return "herald:dispatch-lock:" + id
}

func (h *Herald) processEntry(ctx context.Context, listed model.PostEntry, lookahead time.Duration) EntryResult {
	id := strings.TrimSpace(listed.ID)
	if id == "" {
		return skipped("", SkipMissingID)
	}
	if strings.TrimSpace(listed.PostTo) == "" {
		return skipped(id, SkipMissingAccount)
	}
	if listed.IsTerminal() {
		return skipped(id, SkipTerminal)
	}

	key := lockKey(id)
	acquired, err := h.lock.TryAcquire(ctx, key, h.cfg.LockTTL)
	if err != nil {
		logrus.WithError(err).WithField("entry", id).Warn("failed to acquire dispatch lock")
		return skipped(id, SkipLockUnavailable)
	}
	if !acquired {
		return skipped(id, SkipLocked)
	}
	defer func() {
		if err := h.lock.Release(context.WithoutCancel(ctx), key); err != nil {
			logrus.WithError(err).WithField("entry", id).Warn("failed to release dispatch lock")
		}
	}()

	// Another pass may have finished this entry after the queue was listed.
	entry, err := h.store.GetQueueEntry(ctx, id)
	if err != nil {
		if apierror.IsNotFound(err) {
			return skipped(id, SkipVanished)
		}
		logrus.WithError(err).WithField("entry", id).Warn("failed to re-read queue entry")
		return skipped(id, SkipLockUnavailable)
	}
	if entry.IsTerminal() {
		return skipped(id, SkipTerminal)
	}

	scheduledAt, ok := entry.ScheduledAt()
	if !ok {
		return skipped(id, SkipInvalidSchedule)
	}
	if scheduledAt.After(h.now().Add(lookahead)) {
		return skipped(id, SkipNotDue)
	}

	return h.dispatch(ctx, *entry)
}

func (h *Herald) dispatch(ctx context.Context, entry model.PostEntry) EntryResult {
	action := selectAction(entry)
	ctx, span := tracer.Start(ctx, "Dispatch Entry", trace.WithAttributes(
		attribute.String("entry.id", entry.ID),
		attribute.String("entry.action", string(action)),
	))
	defer span.End()

	externalID, err := h.publish(ctx, entry, action)
	if err != nil && ctx.Err() != nil {
		// cancelled while waiting on the provider, e.g. during a rate-limit wait
		span.RecordError(err)
		logrus.WithError(err).WithFields(logrus.Fields{"entry": entry.ID, "action": action}).Warn("dispatch interrupted, entry left pending")
		return EntryResult{ID: entry.ID, Outcome: OutcomeSkipped, Reason: SkipInterrupted, Action: action, Err: err}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		h.recordFailure(ctx, entry, action, err)
		metrics.Dispatches.WithLabelValues(string(action), "failed").Inc()
		return EntryResult{ID: entry.ID, Outcome: OutcomeFailed, Action: action, ExternalID: model.ExternalIDError, Err: err}
	}

	h.recordSuccess(ctx, entry, action, externalID)
	return EntryResult{ID: entry.ID, Outcome: OutcomeSucceeded, Action: action, ExternalID: externalID}
}

// selectAction picks the provider operation for entry. A well-formed repost target wins
// over any contents.
func selectAction(entry model.PostEntry) model.Action {
	switch {
	case model.IsProviderID(entry.RepostTargetID):
		return model.ActionRepost
	case strings.TrimSpace(entry.InReplyToExternal) != "" || strings.TrimSpace(entry.InReplyToInternal) != "":
		return model.ActionReply
	case strings.TrimSpace(entry.QuoteID) != "":
		return model.ActionQuote
	default:
		return model.ActionPost
	}
}

// publish performs action at the provider and returns the external id to record.
func (h *Herald) publish(ctx context.Context, entry model.PostEntry, action model.Action) (string, error) {
	creds, err := h.credentials.GetCredentials(ctx, entry.PostTo)
	if err != nil {
		return "", fmt.Errorf("load credentials for %s: %w", entry.PostTo, err)
	}

	if action == model.ActionRepost {
		targetID := strings.TrimSpace(entry.RepostTargetID)
		reposted, err := h.provider.Repost(ctx, *creds, targetID)
		if err != nil {
			return "", err
		}
		if !reposted {
			return "", fmt.Errorf("provider did not confirm repost of %s", targetID)
		}
		return model.RepostMarker(targetID), nil
	}

	params := provider.CreatePostParams{
		Text:      entry.Contents,
		InReplyTo: h.replyTarget(ctx, entry),
		QuoteID:   strings.TrimSpace(entry.QuoteID),
	}
	if len(entry.MediaAttachments) > 0 {
		params.MediaIDs, err = h.media.ResolveMediaIDs(ctx, entry.MediaAttachments, *creds)
		if err != nil {
			return "", err
		}
	}

	postID, err := h.provider.CreatePost(ctx, *creds, params)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(postID) == "" {
		return "", errors.New("provider response did not include a post id")
	}
	return postID, nil
}

// replyTarget returns the provider id to reply to. An unresolved reference is not fatal:
// the entry is posted without the reply link.
func (h *Herald) replyTarget(ctx context.Context, entry model.PostEntry) string {
	if model.IsProviderID(entry.InReplyToExternal) {
		return strings.TrimSpace(entry.InReplyToExternal)
	}
	if strings.TrimSpace(entry.InReplyToInternal) == "" {
		return ""
	}

	fields := logrus.Fields{"entry": entry.ID, "in_reply_to": entry.InReplyToInternal}
	externalID, found, err := h.resolver.ResolveExternalID(ctx, entry.InReplyToInternal)
	if err != nil {
		logrus.WithError(err).WithFields(fields).Warn("failed to resolve reply target, posting without it")
		return ""
	}
	if !found {
		logrus.WithFields(fields).Warn("reply target not found, posting without it")
		return ""
	}
	return externalID
}

func (h *Herald) recordFailure(ctx context.Context, entry model.PostEntry, action model.Action, cause error) {
	ctx = context.WithoutCancel(ctx)
	wrapped := errors.Wrapf(cause, "%s %s", action, entry.ID)
	fields := logrus.Fields{"entry": entry.ID, "action": action}
	logrus.WithError(cause).WithFields(fields).Error("dispatch failed")

	if err := h.store.UpdateQueueEntry(ctx, entry.ID, model.FailedUpdate(cause.Error())); err != nil {
		logrus.WithError(err).WithFields(fields).Error("failed to mark entry as failed")
	}

	record := model.ErrorRecord{
		Timestamp: h.now().UTC(),
		Context:   fmt.Sprintf("%s %s", action, entry.ID),
		Message:   cause.Error(),
		Stack:     fmt.Sprintf("%+v", wrapped),
	}
	if err := h.store.AppendErrorRecord(ctx, record); err != nil {
		logrus.WithError(err).WithFields(fields).Error("failed to append error record")
	}
}

// recordSuccess migrates entry to the archive. The provider has already accepted the
// action, so a storage failure here must not let the entry be dispatched again.
func (h *Herald) recordSuccess(ctx context.Context, entry model.PostEntry, action model.Action, externalID string) {
	ctx = context.WithoutCancel(ctx)
	archived := model.NewArchiveEntry(entry, externalID, h.now().UTC(), action)

	err := h.migrate(ctx, archived)
	if err == nil {
		metrics.Dispatches.WithLabelValues(string(action), "posted").Inc()
		logrus.WithFields(logrus.Fields{"entry": entry.ID, "action": action, "external_id": externalID}).Info("entry dispatched")
		return
	}

	metrics.Dispatches.WithLabelValues(string(action), "reconcile").Inc()
	notification.NotifyError(errors.Wrapf(err,
		"reconciliation required: %s %s succeeded at the provider as %s but could not be archived", action, entry.ID, externalID))

	if updateErr := h.store.UpdateQueueEntry(ctx, entry.ID, model.PostedUpdate(externalID)); updateErr != nil {
		logrus.WithError(updateErr).WithFields(logrus.Fields{
			"entry":       entry.ID,
			"external_id": externalID,
		}).Error("failed to record external id after archive failure")
	}
}

func (h *Herald) migrate(ctx context.Context, archived model.ArchiveEntry) error {
	if mover, ok := h.store.(archiveMover); ok {
		return mover.MoveToArchive(ctx, archived)
	}
	if err := h.store.AppendToArchive(ctx, archived); err != nil {
		return err
	}
	return h.store.DeleteFromQueue(ctx, archived.ID)
}

// disarmIfIdle stops recurring passes when no pending entry is scheduled in the future.
func (h *Herald) disarmIfIdle(ctx context.Context) bool {
	if h.trigger == nil {
		return false
	}
	entries, err := h.store.ListQueue(ctx)
	if err != nil {
		logrus.WithError(err).Warn("failed to re-read queue, keeping trigger armed")
		return false
	}

	now := h.now()
	for _, entry := range entries {
		if entry.IsTerminal() {
			continue
		}
		if at, ok := entry.ScheduledAt(); ok && at.After(now) {
			return false
		}
	}

	if err := h.trigger.Disarm(ctx); err != nil {
		logrus.WithError(err).Error("failed to disarm trigger")
		return false
	}
	logrus.Info("queue drained, trigger disarmed")
	return true
}
