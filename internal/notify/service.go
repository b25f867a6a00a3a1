package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hikaary/gitnotify/internal/transport"
	"github.com/hikaary/gitnotify/pkg/logx"
)

var (
	ErrQueueFull = errors.New("notify queue full")
	ErrStopped   = errors.New("notifier stopped")
)

type Config struct {
	QueueSize  int
	RatePerSec int
	RetryMax   int
	RetryBase  time.Duration
	SendGrace  time.Duration // per-send timeout
}

type Notification struct {
	Target  transport.ChatTarget
	Text    string
	Options *transport.SendOptions
}

// Service is the delivery half of the notifier: a bounded queue drained
// by one worker that rate-limits and retries Telegram sends. Delivery
// failures are logged and dropped after the retry budget; they never
// stop the worker.
type Service struct {
	cfg     Config
	adapter transport.Adapter
	log     logx.Logger
	limiter *rate.Limiter

	mu        sync.Mutex
	queue     chan Notification
	accepting bool
	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup
}

func NewService(cfg Config, adapter transport.Adapter, log logx.Logger) *Service {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.SendGrace <= 0 {
		cfg.SendGrace = 10 * time.Second
	}
	return &Service{
		cfg:     cfg,
		adapter: adapter,
		log:     log,
		// Burst = rate per sec, so short spikes don't block too hard.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.queue != nil {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan Notification, s.cfg.QueueSize)
	s.accepting = true
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	q, runCtx := s.queue, s.runCtx
	s.mu.Unlock()

	s.workerWG.Add(1)
	go func() {
		defer s.workerWG.Done()
		s.workerLoop(runCtx, q)
	}()
}

// Stop blocks intake and drains the queue best-effort until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q := s.queue
	cancel := s.runCancel
	if q == nil {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.queue = nil
	s.runCancel = nil
	s.runCtx = nil
	// Closed under mu so Notify can never send on a closed channel.
	close(q)
	s.mu.Unlock()
	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		cancel()
		<-done
		return
	}
	cancel()
}

func (s *Service) Notify(n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accepting || s.queue == nil {
		return ErrStopped
	}
	select {
	case s.queue <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Service) workerLoop(runCtx context.Context, q <-chan Notification) {
	for n := range q {
		select {
		case <-runCtx.Done():
			return
		default:
		}
		s.sendWithRetry(runCtx, n)
	}
}

func (s *Service) sendWithRetry(runCtx context.Context, n Notification) {
	if n.Text == "" {
		return
	}
	opt := n.Options
	if opt == nil {
		opt = &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}
	}

	maxAttempts := 1 + s.cfg.RetryMax
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := s.limiter.Wait(runCtx); err != nil {
			return
		}

		callCtx, cancel := context.WithTimeout(runCtx, s.cfg.SendGrace)
		_, err := s.adapter.SendText(callCtx, n.Target, n.Text, opt)
		cancel()
		if err == nil {
			s.log.Debug("notification sent",
				logx.Int64("chat_id", n.Target.ChatID),
				logx.Int("thread_id", n.Target.ThreadID))
			return
		}

		if attempt >= maxAttempts {
			s.log.Warn("notification dropped after retries",
				logx.Int64("chat_id", n.Target.ChatID),
				logx.Int("attempts", attempt),
				logx.Err(err))
			return
		}
		s.log.Debug("notification send failed; retrying",
			logx.Int("attempt", attempt), logx.Err(err))

		delay := s.cfg.RetryBase << (attempt - 1)
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-runCtx.Done():
			t.Stop()
			return
		}
	}
}
