package session

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesession/internal/device"
	"github.com/srg/blesession/internal/groutine"
)

// supervisor owns the physical link of one session: dial attempts, link-loss
// monitoring and the backoff timer. Its methods are called from the session
// worker only; the goroutines it starts report back through post.
type supervisor struct {
	info      device.Info
	transport device.Transport
	policy    ReconnectPolicy
	timeout   time.Duration
	logger    *logrus.Logger
	post      func(ctx context.Context, ev event) error

	ctx context.Context // session lifetime

	attemptCancel context.CancelFunc
	timer         *time.Timer

	link       device.Link
	linkCtx    context.Context
	linkCancel context.CancelCauseFunc
}

// dial starts one connection attempt tagged with epoch.
func (sv *supervisor) dial(epoch uint64) {
	sv.stopAttempt()
	ctx, cancel := context.WithTimeout(sv.ctx, sv.timeout)
	sv.attemptCancel = cancel

	sv.logger.WithFields(logrus.Fields{
		"device_id": sv.info.ID,
		"epoch":     epoch,
		"timeout":   sv.timeout,
	}).Debug("Dialing device...")

	groutine.Go(ctx, "session-dial", func(ctx context.Context) {
		defer cancel()
		link, err := sv.transport.Dial(ctx, sv.info)
		if err == nil && link == nil {
			err = errors.New("transport returned no link")
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = device.ErrTimeout
		}
		if perr := sv.post(sv.ctx, evAttempt{epoch: epoch, link: link, err: err}); perr != nil && link != nil {
			_ = link.Close()
		}
	}, "device_id", sv.info.ID)
}

// attach adopts link as the current link and watches it for loss.
// Returns the link context, cancelled when the link is released.
func (sv *supervisor) attach(link device.Link, epoch uint64) context.Context {
	sv.releaseLink(nil)
	sv.link = link
	sv.linkCtx, sv.linkCancel = context.WithCancelCause(sv.ctx)

	linkCtx := sv.linkCtx
	groutine.Go(linkCtx, "session-link-monitor", func(ctx context.Context) {
		select {
		case <-link.Disconnected():
			sv.logger.WithFields(logrus.Fields{
				"device_id": sv.info.ID,
				"epoch":     epoch,
			}).Info("Link lost")
			_ = sv.post(ctx, evLinkLost{epoch: epoch})
		case <-ctx.Done():
		}
	}, "device_id", sv.info.ID)

	return linkCtx
}

// scheduleRetry arms the backoff timer for retry number attempt.
// Returns false when the policy allows no further retries.
func (sv *supervisor) scheduleRetry(attempt int, epoch uint64) (time.Duration, bool) {
	sv.stopTimer()
	delay, ok := sv.policy.Delay(attempt)
	if !ok {
		return 0, false
	}

	sv.logger.WithFields(logrus.Fields{
		"device_id": sv.info.ID,
		"attempt":   attempt,
		"delay":     delay,
	}).Debug("Reconnect scheduled")

	ctx := sv.ctx
	sv.timer = time.AfterFunc(delay, func() {
		_ = sv.post(ctx, evRetry{epoch: epoch})
	})
	return delay, true
}

// releaseLink cancels link-scoped goroutines and closes the current link.
func (sv *supervisor) releaseLink(cause error) {
	if sv.linkCancel != nil {
		if cause == nil {
			cause = context.Canceled
		}
		sv.linkCancel(cause)
		sv.linkCancel = nil
		sv.linkCtx = nil
	}
	if sv.link != nil {
		if err := sv.link.Close(); err != nil {
			sv.logger.WithFields(logrus.Fields{
				"device_id": sv.info.ID,
				"error":     err,
			}).Debug("Link close failed")
		}
		sv.link = nil
	}
}

// stopAll cancels the attempt in flight, the backoff timer and the link.
func (sv *supervisor) stopAll(cause error) {
	sv.stopAttempt()
	sv.stopTimer()
	sv.releaseLink(cause)
}

func (sv *supervisor) stopAttempt() {
	if sv.attemptCancel != nil {
		sv.attemptCancel()
		sv.attemptCancel = nil
	}
}

func (sv *supervisor) stopTimer() {
	if sv.timer != nil {
		sv.timer.Stop()
		sv.timer = nil
	}
}
