package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hikaary/gitnotify/internal/event"
	"github.com/hikaary/gitnotify/internal/transport"
	"github.com/hikaary/gitnotify/pkg/logx"
)

// fakeAdapter records sent messages.
type fakeAdapter struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return transport.MessageRef{}, f.err
	}
	f.sent = append(f.sent, text)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func newTestPipeline(t *testing.T, mentions Mentions) (*Dispatcher, *fakeAdapter, func()) {
	t.Helper()
	adapter := &fakeAdapter{}
	svc := NewService(Config{RatePerSec: 1000}, adapter, logx.Nop())
	svc.Start(context.Background())

	r, err := NewRenderer("https://gitlab.example.com", Templates{})
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	d := NewDispatcher(svc, transport.ChatTarget{ChatID: -100}, r, mentions, logx.Nop())

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		svc.Stop(ctx)
	}
	return d, adapter, stop
}

func TestDispatcherSendsMentionForMappedProject(t *testing.T) {
	t.Parallel()
	d, adapter, stop := newTestPipeline(t, Mentions{"project_123456": {"@telegram_nick1"}})

	d.Handle(event.Event{
		Kind:        event.KindPipeline,
		ProjectID:   42,
		ProjectName: "project_123456",
		Timestamp:   time.Now(),
		Pipeline:    &event.PipelineChange{PipelineID: 7, Status: "success", PrevStatus: "running"},
	})
	stop()

	msgs := adapter.messages()
	if len(msgs) != 2 {
		t.Fatalf("sent %d messages, want 2 (notification + mention)", len(msgs))
	}
	if msgs[1] != "@telegram_nick1" {
		t.Fatalf("mention message = %q, want %q", msgs[1], "@telegram_nick1")
	}
}

func TestDispatcherNoMentionForUnmappedProject(t *testing.T) {
	t.Parallel()
	d, adapter, stop := newTestPipeline(t, Mentions{"other": {"@dev"}})

	d.Handle(event.Event{
		Kind:        event.KindPipeline,
		ProjectID:   1,
		ProjectName: "unmapped",
		Timestamp:   time.Now(),
		Pipeline:    &event.PipelineChange{PipelineID: 1, Status: "failed"},
	})
	stop()

	msgs := adapter.messages()
	if len(msgs) != 1 {
		t.Fatalf("sent %d messages, want exactly 1", len(msgs))
	}
}

func TestDispatcherApplySwapsMapping(t *testing.T) {
	t.Parallel()
	d, adapter, stop := newTestPipeline(t, Mentions{})

	r, err := NewRenderer("https://gitlab.example.com", Templates{Pipeline: "{project_name}: {status}"})
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	d.Apply(r, Mentions{"proj": {"@oncall"}})

	d.Handle(event.Event{
		Kind:        event.KindPipeline,
		ProjectID:   1,
		ProjectName: "proj",
		Timestamp:   time.Now(),
		Pipeline:    &event.PipelineChange{PipelineID: 1, Status: "failed"},
	})
	stop()

	msgs := adapter.messages()
	if len(msgs) != 2 {
		t.Fatalf("sent %d messages, want 2", len(msgs))
	}
	if msgs[0] != "proj: failed" {
		t.Fatalf("notification = %q", msgs[0])
	}
	if msgs[1] != "@oncall" {
		t.Fatalf("mention = %q", msgs[1])
	}
}

func TestServiceRejectsAfterStop(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{}
	svc := NewService(Config{RatePerSec: 1000}, adapter, logx.Nop())
	svc.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	svc.Stop(ctx)

	if err := svc.Notify(Notification{Target: transport.ChatTarget{ChatID: 1}, Text: "late"}); err != ErrStopped {
		t.Fatalf("Notify after Stop = %v, want ErrStopped", err)
	}
}

// blockingAdapter parks every send until released.
type blockingAdapter struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	b.entered <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return transport.MessageRef{}, nil
}

func TestServiceQueueFull(t *testing.T) {
	t.Parallel()
	adapter := &blockingAdapter{entered: make(chan struct{}, 8), release: make(chan struct{})}
	svc := NewService(Config{QueueSize: 1, RatePerSec: 1000}, adapter, logx.Nop())
	svc.Start(context.Background())
	defer func() {
		close(adapter.release)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		svc.Stop(ctx)
	}()

	// First notification is in flight (worker parked in SendText), the
	// second fills the queue, the third must be rejected.
	if err := svc.Notify(Notification{Text: "a"}); err != nil {
		t.Fatalf("first Notify: %v", err)
	}
	<-adapter.entered
	if err := svc.Notify(Notification{Text: "b"}); err != nil {
		t.Fatalf("second Notify: %v", err)
	}
	if err := svc.Notify(Notification{Text: "c"}); err != ErrQueueFull {
		t.Fatalf("third Notify = %v, want ErrQueueFull", err)
	}
}
