package hook

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ayusman/nidra/internal/alert"
)

// queueSize bounds alerts waiting for hooks. Further alerts are dropped.
const queueSize = 8

// Dispatcher runs every discovered hook for each alert, off the capture goroutine.
type Dispatcher struct {
	manager  *Manager
	executor *Executor

	queue  chan alert.Event
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewDispatcher starts a dispatcher worker. Call Close to stop it.
func NewDispatcher(manager *Manager, executor *Executor) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		manager:  manager,
		executor: executor,
		queue:    make(chan alert.Event, queueSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// AlertRaised queues e for the hooks. It never blocks.
func (d *Dispatcher) AlertRaised(e alert.Event) {
	select {
	case <-d.ctx.Done():
		return
	default:
	}

	select {
	case d.queue <- e:
	default:
		log.Warn().Time("triggered_at", e.TriggeredAt).Msg("Hook queue full, dropping alert")
	}
}

// Close cancels running hooks and waits for the worker to exit.
func (d *Dispatcher) Close() error {
	d.once.Do(func() {
		d.cancel()
		<-d.done
	})
	return nil
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for {
		select {
		case <-d.ctx.Done():
			return
		case e := <-d.queue:
			d.dispatch(e)
		}
	}
}

func (d *Dispatcher) dispatch(e alert.Event) {
	for _, h := range d.manager.List() {
		resp, err := d.executor.Execute(d.ctx, h, NewRequest(e, h.Manifest.Config))
		if err != nil {
			log.Warn().Err(err).Str("hook", h.Manifest.Name).Msg("Hook failed")
			continue
		}
		if !resp.Success {
			log.Warn().Str("hook", h.Manifest.Name).Str("error", resp.Error).Msg("Hook reported failure")
			continue
		}
		log.Debug().Str("hook", h.Manifest.Name).Msg("Hook ran")
	}
}
