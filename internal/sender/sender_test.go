package sender

import (
	"context"
	"strings"
	"testing"

	"github.com/TouhouGleaners/danmaku-sender/internal/errcode"
	"github.com/TouhouGleaners/danmaku-sender/internal/model"
	logx "github.com/TouhouGleaners/danmaku-sender/pkg/logx"
)

// scriptedClient returns one scripted response per call, in order. Calls past
// the script succeed.
type scriptedClient struct {
	script []model.SendResult
	errs   []error
	calls  []string
	nextID int
}

func (c *scriptedClient) PostDanmaku(ctx context.Context, target model.VideoTarget, dm model.Danmaku) (model.SendResult, error) {
	i := len(c.calls)
	c.calls = append(c.calls, dm.Msg)
	if i < len(c.errs) && c.errs[i] != nil {
		return model.SendResult{}, c.errs[i]
	}
	if i < len(c.script) {
		return c.script[i], nil
	}
	c.nextID++
	return model.SendResult{Code: errcode.CodeSuccess, Success: true, DMID: newID(c.nextID), Visible: true}, nil
}

func newID(n int) string {
	return "dmid-" + string(rune('a'+n-1))
}

type memStore struct {
	accepted []model.Danmaku
	counts   map[model.Fingerprint]int
	countErr error
}

func (s *memStore) RecordAccepted(ctx context.Context, target model.VideoTarget, dm model.Danmaku, visible bool) error {
	s.accepted = append(s.accepted, dm)
	return nil
}

func (s *memStore) CountMatching(ctx context.Context, target model.VideoTarget, fp model.Fingerprint) (int, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	return s.counts[fp], nil
}

type memNotifier struct {
	titles   []string
	messages []string
}

func (n *memNotifier) Notify(title, message string) {
	n.titles = append(n.titles, title)
	n.messages = append(n.messages, message)
}

func batch(msgs ...string) []model.Danmaku {
	out := make([]model.Danmaku, len(msgs))
	for i, m := range msgs {
		out[i] = model.NewDanmaku(m, int64(i)*1000)
	}
	return out
}

func fastConfig() Config {
	return Config{} // zero pacing: no waits between items
}

func TestRunAllSuccess(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{}
	store := &memStore{counts: map[model.Fingerprint]int{}}
	notifier := &memNotifier{}
	s := New(client, store, notifier, logx.Nop())

	items := batch("one", "two", "three")
	sum := s.Run(context.Background(), model.VideoTarget{BVID: "BV1", CID: 1}, items, fastConfig(), Callbacks{})

	if sum.Stop != StopCompleted {
		t.Fatalf("Stop = %v, want %v", sum.Stop, StopCompleted)
	}
	if sum.Success != 3 || sum.Attempted != 3 || sum.Skipped != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(store.accepted) != 3 {
		t.Fatalf("store recorded %d items, want 3", len(store.accepted))
	}
	for i := range items {
		if items[i].DMID == "" {
			t.Fatalf("item %d missing backfilled dmid", i)
		}
	}
	if len(notifier.titles) != 1 {
		t.Fatalf("notifier fired %d times, want 1", len(notifier.titles))
	}
}

func TestRunFatalShortCircuits(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{
		script: []model.SendResult{
			{Code: errcode.CodeSuccess, Success: true, DMID: "d1", Visible: true},
			{Code: errcode.CodeSuccess, Success: true, DMID: "d2", Visible: true},
			{Code: errcode.CodeUnauthorized, RawMessage: "账号未登录"},
		},
	}
	store := &memStore{counts: map[model.Fingerprint]int{}}
	s := New(client, store, nil, logx.Nop())

	items := batch("1", "2", "3", "4", "5", "6", "7", "8", "9", "10")
	sum := s.Run(context.Background(), model.VideoTarget{CID: 1}, items, fastConfig(), Callbacks{})

	if sum.Stop != StopFatal {
		t.Fatalf("Stop = %v, want %v", sum.Stop, StopFatal)
	}
	if len(client.calls) != 3 {
		t.Fatalf("client called %d times after a fatal on item 3, want 3", len(client.calls))
	}
	if sum.Attempted != 3 || sum.Success != 2 {
		t.Fatalf("summary = %+v, want attempted 3 / success 2", sum)
	}
	// The fatal item plus every unattempted item land in the unsent list.
	if len(sum.Unsent) != 8 {
		t.Fatalf("unsent = %d entries, want 8", len(sum.Unsent))
	}
	if !strings.HasPrefix(sum.Unsent[0].Reason, "fatal error:") {
		t.Fatalf("fatal item reason = %q", sum.Unsent[0].Reason)
	}
	for _, u := range sum.Unsent[1:] {
		if u.Reason != reasonAfterFatal {
			t.Fatalf("trailing item reason = %q, want %q", u.Reason, reasonAfterFatal)
		}
	}
}

func TestRunRetryableContinues(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{
		script: []model.SendResult{
			{Code: errcode.CodeContentForbidden, RawMessage: "msg protect"},
		},
	}
	s := New(client, nil, nil, logx.Nop())

	items := batch("blocked", "fine")
	sum := s.Run(context.Background(), model.VideoTarget{CID: 1}, items, fastConfig(), Callbacks{})

	if sum.Stop != StopCompleted {
		t.Fatalf("Stop = %v, want %v", sum.Stop, StopCompleted)
	}
	if len(client.calls) != 2 {
		t.Fatalf("client called %d times, want 2", len(client.calls))
	}
	if sum.Success != 1 || sum.Attempted != 2 || len(sum.Unsent) != 1 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestRunAutoStopByCount(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{}
	s := New(client, nil, nil, logx.Nop())

	cfg := fastConfig()
	cfg.StopAfterCount = 2
	items := batch("1", "2", "3", "4", "5")
	sum := s.Run(context.Background(), model.VideoTarget{CID: 1}, items, cfg, Callbacks{})

	if sum.Stop != StopAuto {
		t.Fatalf("Stop = %v, want %v", sum.Stop, StopAuto)
	}
	if sum.Success != 2 || len(client.calls) != 2 {
		t.Fatalf("success = %d, calls = %d, want 2 each", sum.Success, len(client.calls))
	}
	if sum.AutoStopReason == "" {
		t.Fatal("missing auto-stop reason")
	}
	if len(sum.Unsent) != 3 {
		t.Fatalf("unsent = %d entries, want 3", len(sum.Unsent))
	}
	for _, u := range sum.Unsent {
		if u.Reason != reasonAutoStop {
			t.Fatalf("unsent reason = %q, want %q", u.Reason, reasonAutoStop)
		}
	}
}

func TestRunSkipsAlreadySent(t *testing.T) {
	t.Parallel()
	// All three share one fingerprint; two copies are already on file, so the
	// first two occurrences skip and the third is submitted.
	dup := model.NewDanmaku("dup", 5000)
	items := []model.Danmaku{dup, dup, dup}
	counts := map[model.Fingerprint]int{dup.Fingerprint(): 2}

	client := &scriptedClient{}
	store := &memStore{counts: counts}
	s := New(client, store, nil, logx.Nop())

	cfg := fastConfig()
	cfg.SkipAlreadySent = true
	sum := s.Run(context.Background(), model.VideoTarget{CID: 1}, items, cfg, Callbacks{})

	if sum.Skipped != 2 || sum.Attempted != 1 || sum.Success != 1 {
		t.Fatalf("summary = %+v, want skipped 2 / attempted 1 / success 1", sum)
	}
	if len(client.calls) != 1 {
		t.Fatalf("client called %d times, want 1", len(client.calls))
	}
}

func TestRunSkipCheckFailureSendsAnyway(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{}
	store := &memStore{countErr: context.DeadlineExceeded}
	s := New(client, store, nil, logx.Nop())

	cfg := fastConfig()
	cfg.SkipAlreadySent = true
	sum := s.Run(context.Background(), model.VideoTarget{CID: 1}, batch("x"), cfg, Callbacks{})

	if sum.Attempted != 1 || sum.Skipped != 0 {
		t.Fatalf("summary = %+v, want the item sent despite the failed check", sum)
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{}
	s := New(client, nil, nil, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	items := batch("1", "2")
	sum := s.Run(ctx, model.VideoTarget{CID: 1}, items, fastConfig(), Callbacks{})

	if sum.Stop != StopCancelled {
		t.Fatalf("Stop = %v, want %v", sum.Stop, StopCancelled)
	}
	if len(client.calls) != 0 {
		t.Fatalf("client called %d times on a dead context, want 0", len(client.calls))
	}
	if len(sum.Unsent) != 2 {
		t.Fatalf("unsent = %d entries, want 2", len(sum.Unsent))
	}
	for _, u := range sum.Unsent {
		if u.Reason != reasonManualStop {
			t.Fatalf("unsent reason = %q, want %q", u.Reason, reasonManualStop)
		}
	}
}

func TestRunEmptyBatch(t *testing.T) {
	t.Parallel()
	s := New(&scriptedClient{}, nil, nil, logx.Nop())
	sum := s.Run(context.Background(), model.VideoTarget{CID: 1}, nil, fastConfig(), Callbacks{})
	if sum.Stop != StopCompleted || sum.Total != 0 || sum.Attempted != 0 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestRunCallbacks(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{}
	s := New(client, nil, nil, logx.Nop())

	var progress []int
	var results int
	cb := Callbacks{
		OnProgress: func(processed, total int) { progress = append(progress, processed) },
		OnResult:   func(dm model.Danmaku, res model.SendResult) { results++ },
	}
	sum := s.Run(context.Background(), model.VideoTarget{CID: 1}, batch("a", "b"), fastConfig(), cb)

	if sum.Success != 2 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(progress) != 3 || progress[0] != 0 || progress[2] != 2 {
		t.Fatalf("progress callbacks = %v, want [0 1 2]", progress)
	}
	if results != 2 {
		t.Fatalf("result callbacks = %d, want 2", results)
	}
}

func TestRunCallbackPanicRecovered(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{}
	s := New(client, nil, nil, logx.Nop())

	cb := Callbacks{
		OnProgress: func(processed, total int) { panic("observer bug") },
	}
	sum := s.Run(context.Background(), model.VideoTarget{CID: 1}, batch("a", "b"), fastConfig(), cb)
	if sum.Success != 2 {
		t.Fatalf("panicking callback disturbed the run: %+v", sum)
	}
}

func TestUnknownCodeIsFatal(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{
		script: []model.SendResult{{Code: 424242, RawMessage: "???"}},
	}
	s := New(client, nil, nil, logx.Nop())

	sum := s.Run(context.Background(), model.VideoTarget{CID: 1}, batch("a", "b"), fastConfig(), Callbacks{})
	if sum.Stop != StopFatal {
		t.Fatalf("Stop = %v, want %v for an unrecognized code", sum.Stop, StopFatal)
	}
	if len(client.calls) != 1 {
		t.Fatalf("client called %d times, want 1", len(client.calls))
	}
}

func TestReasonTally(t *testing.T) {
	t.Parallel()
	sum := &Summary{Unsent: []Unsent{
		{Reason: "a"}, {Reason: "b"}, {Reason: "b"}, {Reason: "c"}, {Reason: "b"},
	}}
	tally := sum.ReasonTally()
	if len(tally) != 3 {
		t.Fatalf("tally has %d groups, want 3", len(tally))
	}
	if tally[0].Reason != "b" || tally[0].Count != 3 {
		t.Fatalf("tally[0] = %+v, want b x3 first", tally[0])
	}
}
