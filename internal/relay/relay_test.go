package relay

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/JoyBoy1995/cfc-transfer-bot/internal/feed"
	"github.com/JoyBoy1995/cfc-transfer-bot/internal/filter"
)

type pollResult struct {
	posts []feed.Post
	err   error
}

type fakePoller struct {
	recent      []feed.Post
	recentErr   error
	recentCalls int

	results []pollResult
	calls   int
	onPoll  func(call int)
}

func (f *fakePoller) Recent(_ context.Context, _ int) ([]feed.Post, error) {
	f.recentCalls++
	return f.recent, f.recentErr
}

func (f *fakePoller) Poll(_ context.Context) ([]feed.Post, error) {
	f.calls++
	if f.onPoll != nil {
		f.onPoll(f.calls)
	}
	if f.calls <= len(f.results) {
		res := f.results[f.calls-1]
		return res.posts, res.err
	}
	return nil, nil
}

type fakeNotifier struct {
	delivered []feed.Post
	fail      map[string]bool
}

func (n *fakeNotifier) Notify(_ context.Context, p feed.Post) error {
	if n.fail[p.ID] {
		return errors.New("webhook: status 400")
	}
	n.delivered = append(n.delivered, p)
	return nil
}

type fakeSeen struct {
	ids   map[string]struct{}
	saves int
}

func newFakeSeen() *fakeSeen {
	return &fakeSeen{ids: make(map[string]struct{})}
}

func (s *fakeSeen) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *fakeSeen) Add(id string) { s.ids[id] = struct{}{} }

func (s *fakeSeen) Save() error {
	s.saves++
	return nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testConfig() Config {
	return Config{
		PollInterval: time.Millisecond,
		CatchupLimit: 25,
		BackoffBase:  time.Millisecond,
		BackoffCap:   4 * time.Millisecond,
		FlushEvery:   1000,
	}
}

func newTestRelay(t *testing.T, poller *fakePoller, notifier *fakeNotifier, seen *fakeSeen, cfg Config) *Relay {
	t.Helper()
	f, err := filter.New("Tier 1", "Tier 2")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	return New(poller, f, notifier, seen, cfg, quietLogger())
}

func post(id, flair string, created time.Time) feed.Post {
	return feed.Post{
		ID:        id,
		Fullname:  "t3_" + id,
		Title:     "Post " + id,
		Flair:     flair,
		CreatedAt: created,
	}
}

func TestCatchup_AcceptedPostIsNotifiedAndMarkedSeen(t *testing.T) {
	now := time.Now()
	poller := &fakePoller{recent: []feed.Post{post("abc123", "Tier 1", now)}}
	notifier := &fakeNotifier{}
	seen := newFakeSeen()
	r := newTestRelay(t, poller, notifier, seen, testConfig())

	r.catchUp(context.Background())

	if len(notifier.delivered) != 1 || notifier.delivered[0].ID != "abc123" {
		t.Fatalf("delivered = %v, want [abc123]", notifier.delivered)
	}
	if !seen.Contains("abc123") {
		t.Error("abc123 should be marked seen after delivery")
	}
	if seen.saves == 0 {
		t.Error("catch-up must flush the seen set")
	}
}

func TestCatchup_RejectedFlairLeavesSeenUnchanged(t *testing.T) {
	poller := &fakePoller{recent: []feed.Post{post("xyz789", "Tier 3", time.Now())}}
	notifier := &fakeNotifier{}
	seen := newFakeSeen()
	r := newTestRelay(t, poller, notifier, seen, testConfig())

	r.catchUp(context.Background())

	if len(notifier.delivered) != 0 {
		t.Errorf("delivered = %v, want none", notifier.delivered)
	}
	if len(seen.ids) != 0 {
		t.Errorf("seen set has %d ids, want 0", len(seen.ids))
	}
}

func TestCatchup_SecondPassIsIdempotent(t *testing.T) {
	now := time.Now()
	poller := &fakePoller{recent: []feed.Post{
		post("a1", "Tier 1", now.Add(-time.Hour)),
		post("a2", "Tier 2", now),
	}}
	notifier := &fakeNotifier{}
	seen := newFakeSeen()
	r := newTestRelay(t, poller, notifier, seen, testConfig())

	r.catchUp(context.Background())
	r.catchUp(context.Background())

	if len(notifier.delivered) != 2 {
		t.Errorf("delivered %d notifications, want 2 (zero on the second pass)", len(notifier.delivered))
	}
	if poller.recentCalls != 2 {
		t.Errorf("recent calls = %d, want 2", poller.recentCalls)
	}
}

func TestCatchup_PollerFailureIsNonFatal(t *testing.T) {
	poller := &fakePoller{recentErr: errors.New("r/chelseafc: status 503")}
	notifier := &fakeNotifier{}
	seen := newFakeSeen()
	r := newTestRelay(t, poller, notifier, seen, testConfig())

	r.catchUp(context.Background())

	if len(notifier.delivered) != 0 {
		t.Error("no deliveries expected on catch-up failure")
	}
}

func TestProcessBatch_NotifiesInFeedOrder(t *testing.T) {
	now := time.Now()
	notifier := &fakeNotifier{}
	seen := newFakeSeen()
	r := newTestRelay(t, &fakePoller{}, notifier, seen, testConfig())

	r.processBatch(context.Background(), []feed.Post{
		post("older", "Tier 1", now.Add(-time.Hour)),
		post("newer", "Tier 2", now),
	})

	if len(notifier.delivered) != 2 {
		t.Fatalf("delivered %d, want 2", len(notifier.delivered))
	}
	if notifier.delivered[0].ID != "older" || notifier.delivered[1].ID != "newer" {
		t.Errorf("order = [%s %s], want older before newer",
			notifier.delivered[0].ID, notifier.delivered[1].ID)
	}
}

func TestProcessBatch_SkipsAlreadySeen(t *testing.T) {
	notifier := &fakeNotifier{}
	seen := newFakeSeen()
	seen.Add("dup1")
	r := newTestRelay(t, &fakePoller{}, notifier, seen, testConfig())

	r.processBatch(context.Background(), []feed.Post{post("dup1", "Tier 1", time.Now())})

	if len(notifier.delivered) != 0 {
		t.Errorf("delivered = %v, want none for a seen id", notifier.delivered)
	}
}

func TestProcessBatch_FailedDeliveryIsRetriedOnNextEncounter(t *testing.T) {
	p := post("flaky", "Tier 1", time.Now())
	notifier := &fakeNotifier{fail: map[string]bool{"flaky": true}}
	seen := newFakeSeen()
	r := newTestRelay(t, &fakePoller{}, notifier, seen, testConfig())

	r.processBatch(context.Background(), []feed.Post{p})
	if seen.Contains("flaky") {
		t.Fatal("failed delivery must not mark the post seen")
	}

	// Post re-enters on a later pass once the webhook recovers.
	notifier.fail = nil
	r.processBatch(context.Background(), []feed.Post{p})

	if len(notifier.delivered) != 1 {
		t.Fatalf("delivered %d, want 1", len(notifier.delivered))
	}
	if !seen.Contains("flaky") {
		t.Error("successful retry must mark the post seen")
	}
}

func TestProcessBatch_PeriodicFlushCadence(t *testing.T) {
	now := time.Now()
	notifier := &fakeNotifier{}
	seen := newFakeSeen()
	cfg := testConfig()
	cfg.FlushEvery = 2
	r := newTestRelay(t, &fakePoller{}, notifier, seen, cfg)

	r.processBatch(context.Background(), []feed.Post{
		post("p1", "Tier 1", now),
		post("p2", "Tier 1", now),
		post("p3", "Tier 1", now),
	})

	if seen.saves != 1 {
		t.Errorf("saves = %d, want 1 (after the second notification)", seen.saves)
	}
}

func TestRun_PollFailureBacksOffAndRetries(t *testing.T) {
	now := time.Now()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller := &fakePoller{
		results: []pollResult{
			{err: errors.New("r/chelseafc: status 429")},
			{err: errors.New("fetch r/chelseafc: connection reset")},
			{posts: []feed.Post{post("late1", "Tier 1", now)}},
		},
	}
	poller.onPoll = func(call int) {
		if call == 4 {
			cancel()
		}
	}
	notifier := &fakeNotifier{}
	seen := newFakeSeen()
	r := newTestRelay(t, poller, notifier, seen, testConfig())

	if err := r.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if poller.calls < 3 {
		t.Fatalf("poll calls = %d, want at least 3 (loop must not give up)", poller.calls)
	}
	if len(notifier.delivered) != 1 || notifier.delivered[0].ID != "late1" {
		t.Errorf("delivered = %v, want [late1] after recovery", notifier.delivered)
	}
}

func TestRun_CancelFlushesSeenAndReturnsNil(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller := &fakePoller{}
	poller.onPoll = func(call int) {
		if call == 2 {
			cancel()
		}
	}
	seen := newFakeSeen()
	r := newTestRelay(t, poller, &fakeNotifier{}, seen, testConfig())

	if err := r.Run(ctx); err != nil {
		t.Fatalf("run returned %v, want nil on interrupt", err)
	}
	if seen.saves == 0 {
		t.Error("seen set must be flushed on shutdown")
	}
}

func TestNextBackoff_DoublesUpToCap(t *testing.T) {
	limit := 5 * time.Minute
	got := nextBackoff(30*time.Second, limit)
	if got != time.Minute {
		t.Errorf("nextBackoff(30s) = %s, want 1m", got)
	}
	got = nextBackoff(4*time.Minute, limit)
	if got != limit {
		t.Errorf("nextBackoff(4m) = %s, want cap %s", got, limit)
	}
	got = nextBackoff(limit, limit)
	if got != limit {
		t.Errorf("nextBackoff(cap) = %s, want cap", got)
	}
}
