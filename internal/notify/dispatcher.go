package notify

import (
	"sync"

	"github.com/hikaary/gitnotify/internal/event"
	"github.com/hikaary/gitnotify/internal/transport"
	"github.com/hikaary/gitnotify/pkg/logx"
)

// Dispatcher connects the poll loops to delivery: it renders each change
// event through the kind's template, resolves mentions, and enqueues the
// messages. Renderer and mentions are swappable at runtime for config
// hot reload.
type Dispatcher struct {
	svc    *Service
	target transport.ChatTarget
	log    logx.Logger

	mu       sync.RWMutex
	renderer *Renderer
	mentions Mentions
}

func NewDispatcher(svc *Service, target transport.ChatTarget, renderer *Renderer, mentions Mentions, log logx.Logger) *Dispatcher {
	return &Dispatcher{
		svc:      svc,
		target:   target,
		log:      log,
		renderer: renderer,
		mentions: mentions,
	}
}

// Apply swaps the renderer and mention mapping. Safe to call while
// events are being handled.
func (d *Dispatcher) Apply(renderer *Renderer, mentions Mentions) {
	d.mu.Lock()
	if renderer != nil {
		d.renderer = renderer
	}
	d.mentions = mentions
	d.mu.Unlock()
}

// Handle renders and enqueues one event. Template errors skip the
// message; queue errors drop it. Neither is fatal.
func (d *Dispatcher) Handle(ev event.Event) {
	d.mu.RLock()
	r := d.renderer
	ping := d.mentions.For(ev.ProjectName)
	d.mu.RUnlock()

	text, err := r.Render(ev, ping)
	if err != nil {
		d.log.Error("message render failed; skipping",
			logx.String("kind", string(ev.Kind)),
			logx.String("project", ev.ProjectName),
			logx.Err(err))
		return
	}

	opts := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if err := d.svc.Notify(Notification{Target: d.target, Text: text, Options: opts}); err != nil {
		d.log.Warn("notification not queued",
			logx.String("kind", string(ev.Kind)),
			logx.String("project", ev.ProjectName),
			logx.Err(err))
		return
	}

	// Mapped projects get a follow-up message pinging the mapped tags.
	if ping != "" {
		if err := d.svc.Notify(Notification{Target: d.target, Text: ping, Options: opts}); err != nil {
			d.log.Warn("mention not queued",
				logx.String("project", ev.ProjectName),
				logx.Err(err))
		}
	}
}
