// Package relay drives the poll, filter, notify, mark-seen cycle and absorbs
// transient feed failures with an indefinite backoff-and-retry loop.
package relay

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/JoyBoy1995/cfc-transfer-bot/internal/feed"
	"github.com/JoyBoy1995/cfc-transfer-bot/internal/filter"
)

// Poller retrieves submissions from the monitored community.
type Poller interface {
	// Recent returns a bounded window of the most recent posts, oldest
	// first. Called once per process start.
	Recent(ctx context.Context, limit int) ([]feed.Post, error)

	// Poll returns posts newer than the poller's cursor, oldest first. A
	// failed poll must leave the cursor untouched so the retry repeats
	// the same read.
	Poll(ctx context.Context) ([]feed.Post, error)
}

// Notifier performs a single delivery attempt for an accepted post.
type Notifier interface {
	Notify(ctx context.Context, p feed.Post) error
}

// SeenStore records which posts were already notified.
type SeenStore interface {
	Contains(id string) bool
	Add(id string)
	Save() error
}

// Config carries the loop's timing knobs. Values are taken verbatim; the
// config package supplies defaults.
type Config struct {
	PollInterval time.Duration // steady-state delay between polls
	CatchupLimit int           // startup window size
	BackoffBase  time.Duration // first retry delay after a poll failure
	BackoffCap   time.Duration // retry delay ceiling
	SendDelay    time.Duration // pause between deliveries in one batch
	FlushEvery   int           // flush the seen set after this many notifications
}

// Relay owns the loop, the poller's cursor, and the seen set. Everything runs
// on the goroutine that calls Run, so no locking is needed.
type Relay struct {
	poller   Poller
	filter   filter.FlairFilter
	notifier Notifier
	seen     SeenStore
	cfg      Config
	log      *logrus.Logger

	sinceFlush int
}

func New(poller Poller, f filter.FlairFilter, notifier Notifier, seen SeenStore, cfg Config, log *logrus.Logger) *Relay {
	return &Relay{
		poller:   poller,
		filter:   f,
		notifier: notifier,
		seen:     seen,
		cfg:      cfg,
		log:      log,
	}
}

// Run executes one catch-up pass and then polls until ctx is cancelled. Poll
// failures only stretch the delay before the next attempt; the loop never
// gives up. The seen set is flushed before returning. Returns nil on clean
// shutdown.
func (r *Relay) Run(ctx context.Context) error {
	r.catchUp(ctx)

	backoff := r.cfg.BackoffBase
	delay := r.cfg.PollInterval
	for r.wait(ctx, delay) {
		posts, err := r.poller.Poll(ctx)
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			r.log.WithError(err).Warnf("poll failed, retrying in %s", backoff)
			delay = backoff
			backoff = nextBackoff(backoff, r.cfg.BackoffCap)
			continue
		}

		backoff = r.cfg.BackoffBase
		delay = r.cfg.PollInterval
		if len(posts) > 0 {
			r.log.Debugf("poll returned %d new posts", len(posts))
		}
		r.processBatch(ctx, posts)
	}

	r.log.Info("shutting down, flushing seen set")
	if err := r.seen.Save(); err != nil {
		r.log.WithError(err).Error("final seen-set flush failed")
		return err
	}
	return nil
}

// catchUp runs the one startup pass over the recent window. A failure here is
// logged and skipped; steady-state polling covers the gap on its own
// schedule.
func (r *Relay) catchUp(ctx context.Context) {
	posts, err := r.poller.Recent(ctx, r.cfg.CatchupLimit)
	if err != nil {
		r.log.WithError(err).Warn("startup catch-up failed, continuing to steady-state polling")
		return
	}

	r.log.Infof("catch-up window: %d recent posts", len(posts))
	r.processBatch(ctx, posts)

	if err := r.seen.Save(); err != nil {
		r.log.WithError(err).Warn("seen-set flush after catch-up failed")
		return
	}
	r.sinceFlush = 0
}

// processBatch walks posts in feed order: older submissions are notified
// before newer ones. A post joins the seen set only after its notification
// was delivered, so rejected posts stay cheap re-checks and failed
// deliveries are retried on the next encounter.
func (r *Relay) processBatch(ctx context.Context, posts []feed.Post) {
	for _, p := range posts {
		if ctx.Err() != nil {
			return
		}
		if r.seen.Contains(p.ID) {
			continue
		}
		if !r.filter.Accept(p) {
			continue
		}

		if err := r.notifier.Notify(ctx, p); err != nil {
			r.log.WithError(err).WithField("id", p.ID).Warn("delivery failed, will retry on next encounter")
			continue
		}

		r.log.WithFields(logrus.Fields{"id": p.ID, "flair": p.Flair}).Infof("notified: %s", p.Title)
		r.seen.Add(p.ID)
		r.sinceFlush++

		if r.cfg.FlushEvery > 0 && r.sinceFlush >= r.cfg.FlushEvery {
			if err := r.seen.Save(); err != nil {
				r.log.WithError(err).Warn("periodic seen-set flush failed")
			} else {
				r.sinceFlush = 0
			}
		}

		if r.cfg.SendDelay > 0 && !r.wait(ctx, r.cfg.SendDelay) {
			return
		}
	}
}

// wait sleeps for d or until ctx is cancelled, whichever comes first. It
// reports false on cancellation.
func (r *Relay) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(current, limit time.Duration) time.Duration {
	next := current * 2
	if next > limit {
		next = limit
	}
	return next
}
