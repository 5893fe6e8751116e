package supportclient

import (
	"sync"
	"time"
)

// Poller drives a refresh callback on an adaptive cadence: a short interval
// while the consumer is visible, a long one while hidden. A hidden→visible
// transition fires one immediate catch-up refresh before re-arming the
// short cadence.
//
// A single goroutine owns the timer; Start, Stop, SetVisible and Destroy
// only post commands to it, so there are no timer races.
type Poller struct {
	refresh  func()
	active   time.Duration
	inactive time.Duration

	commands chan pollerCommand
	done     chan struct{}
	destroy  sync.Once
}

type pollerCommand struct {
	kind    commandKind
	visible bool
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdVisibility
)

// NewPoller builds a stopped poller. The callback runs on the poller's
// goroutine and must handle its own failures.
func NewPoller(refresh func(), active, inactive time.Duration) *Poller {
	p := &Poller{
		refresh:  refresh,
		active:   active,
		inactive: inactive,
		commands: make(chan pollerCommand),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

// Start begins polling at the visible cadence with an immediate first
// refresh. Calling Start on a running poller restarts the cycle.
func (p *Poller) Start() {
	p.send(pollerCommand{kind: cmdStart})
}

// Stop pauses polling without releasing the poller.
func (p *Poller) Stop() {
	p.send(pollerCommand{kind: cmdStop})
}

// SetVisible feeds visibility transitions. Becoming visible triggers a
// catch-up refresh; becoming hidden stretches the cadence.
func (p *Poller) SetVisible(v bool) {
	p.send(pollerCommand{kind: cmdVisibility, visible: v})
}

// Destroy stops the poller and releases its goroutine. Safe to call more
// than once; the poller is unusable afterwards.
func (p *Poller) Destroy() {
	p.destroy.Do(func() { close(p.done) })
}

func (p *Poller) send(cmd pollerCommand) {
	select {
	case p.commands <- cmd:
	case <-p.done:
	}
}

func (p *Poller) run() {
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	running := false
	visible := true

	rearm := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if running {
			timer.Reset(p.interval(visible))
		}
	}

	for {
		select {
		case <-p.done:
			timer.Stop()
			return
		case <-timer.C:
			if running {
				p.refresh()
				timer.Reset(p.interval(visible))
			}
		case cmd := <-p.commands:
			switch cmd.kind {
			case cmdStart:
				running = true
				p.refresh()
				rearm()
			case cmdStop:
				running = false
				rearm()
			case cmdVisibility:
				wasVisible := visible
				visible = cmd.visible
				if running && visible && !wasVisible {
					// Catch up after returning to the foreground.
					p.refresh()
				}
				rearm()
			}
		}
	}
}

func (p *Poller) interval(visible bool) time.Duration {
	if visible {
		return p.active
	}
	return p.inactive
}
