package motor

import (
	"log"
	"sync"
	"time"
)

// Sink receives outgoing command messages. The app layer composes the MQTT
// client and the command journal behind this interface; tests use a recorder.
type Sink interface {
	Publish(Command) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Command) error

func (f SinkFunc) Publish(c Command) error { return f(c) }

// Publisher emits one command message per tick. Shaped commands arriving
// between ticks are averaged in the window; when the window is empty the
// watchdog decides between re-emitting the last command and forcing zero.
// Sequence numbers increase strictly for the life of the session, forced
// zeros included.
type Publisher struct {
	mu       sync.Mutex
	seq      int64
	last     Command
	haveLast bool

	// sendMu is held across the sink call so commands reach the bus in seq
	// order; a forced zero must never be overtaken by an older held command.
	sendMu sync.Mutex

	window *Window
	dog    *Watchdog
	sink   Sink

	unit      string
	deadmanMS int
	// maxSpeed is the wheel velocity at full normalized scale (1000); a
	// boosted command can reach twice this.
	maxSpeed float64

	now func() time.Time
}

// NewPublisher wires a publisher to its sink and watchdog.
func NewPublisher(sink Sink, dog *Watchdog, unit string, deadmanMS int, maxSpeed float64) *Publisher {
	return &Publisher{
		window:    &Window{},
		dog:       dog,
		sink:      sink,
		unit:      unit,
		deadmanMS: deadmanMS,
		maxSpeed:  maxSpeed,
		now:       time.Now,
	}
}

// Offer accumulates one shaped command pair and marks the input source live.
// Called from the input goroutine; never blocks the tick path.
func (p *Publisher) Offer(left, right int) {
	p.window.Add(left, right)
	p.dog.Touch()
}

// Tick runs one publish cycle: drain-and-average when fresh input arrived,
// otherwise hold the last command or defer to the watchdog's zero.
func (p *Publisher) Tick() error {
	if l, r, ok := p.window.Drain(); ok {
		return p.emit(p.scale(l), p.scale(r))
	}
	if p.dog.Expired() {
		return p.emit(0, 0)
	}
	p.mu.Lock()
	last, have := p.last, p.haveLast
	p.mu.Unlock()
	if !have {
		return nil
	}
	return p.emit(last.VL, last.VR)
}

// ForceZeroIfStale is the watchdog's preemption path, run on its own timer
// between publish ticks. It emits a zero as soon as input goes stale while a
// nonzero command is standing.
func (p *Publisher) ForceZeroIfStale() error {
	if !p.dog.Expired() {
		return nil
	}
	p.mu.Lock()
	standing := !p.haveLast || !p.last.Zero()
	p.mu.Unlock()
	if !standing {
		return nil
	}
	return p.emit(0, 0)
}

// Stop emits a single zero command immediately, outside the cadence.
func (p *Publisher) Stop() error {
	return p.emit(0, 0)
}

// FinalStop is the shutdown path: a short burst of zero commands so the stop
// survives a lossy link. Delivery failures are logged and the remaining
// attempts still run; there is no one left to escalate to.
func (p *Publisher) FinalStop(repeat int, gap time.Duration) {
	for i := 0; i < repeat; i++ {
		if err := p.emit(0, 0); err != nil {
			log.Printf("motor: final stop delivery failed (attempt %d/%d): %v", i+1, repeat, err)
		}
		time.Sleep(gap)
	}
}

// Last returns the most recently emitted command, for status display.
func (p *Publisher) Last() (Command, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.haveLast
}

// scale maps a shaped normalized value ([-2000,2000] boosted) to a wheel
// velocity.
func (p *Publisher) scale(shaped int) float64 {
	return float64(shaped) / 1000.0 * p.maxSpeed
}

func (p *Publisher) emit(vl, vr float64) error {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	p.mu.Lock()
	cmd := Command{
		VL:        vl,
		VR:        vr,
		Unit:      p.unit,
		DeadmanMS: p.deadmanMS,
		Seq:       p.seq,
		TsMS:      p.now().UnixMilli(),
	}
	p.seq++
	p.last = cmd
	p.haveLast = true
	p.mu.Unlock()
	return p.sink.Publish(cmd)
}
