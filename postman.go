package auth

import (
	"context"
	"sync"
)

const (
	defaultPostmanWorkers = 2
	defaultPostmanBuffer  = 64
)

// Postman renders lifecycle messages and hands them to a Transport, either
// inline or through a bounded background queue.
type Postman struct {
	renderer  *Renderer
	transport Transport
	logger    Logger

	deliverLater bool
	workers      int
	buffer       int

	queue     chan queuedMessage
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	startOnce sync.Once
}

type queuedMessage struct {
	ctx context.Context
	msg Message
}

// PostmanOption customizes a Postman.
type PostmanOption func(*Postman)

// WithDeliverLater toggles deferred delivery.
func WithDeliverLater(enabled bool) PostmanOption {
	return func(p *Postman) {
		p.deliverLater = enabled
	}
}

// WithPostmanWorkers sets the number of delivery goroutines.
func WithPostmanWorkers(n int) PostmanOption {
	return func(p *Postman) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithPostmanBuffer sets the queue capacity.
func WithPostmanBuffer(n int) PostmanOption {
	return func(p *Postman) {
		if n > 0 {
			p.buffer = n
		}
	}
}

// WithPostmanLogger overrides the postman logger.
func WithPostmanLogger(logger Logger) PostmanOption {
	return func(p *Postman) {
		if logger != nil {
			p.logger = logger
		}
	}
}

var _ Mailer = (*Postman)(nil)

// NewPostman creates a Postman. A nil transport logs messages.
func NewPostman(renderer *Renderer, transport Transport, opts ...PostmanOption) *Postman {
	p := &Postman{
		renderer:  renderer,
		transport: transport,
		workers:   defaultPostmanWorkers,
		buffer:    defaultPostmanBuffer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.logger == nil {
		p.logger = defaultLogger()
	}
	if p.transport == nil {
		p.transport = LogTransport{Logger: p.logger}
	}
	return p
}

// Send delivers msg. With deferred delivery enabled the message is queued
// and errors are only logged.
func (p *Postman) Send(ctx context.Context, msg Message) error {
	if !p.deliverLater {
		return p.deliver(ctx, msg)
	}

	p.startOnce.Do(p.start)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return p.deliver(ctx, msg)
	}

	select {
	case p.queue <- queuedMessage{ctx: context.WithoutCancel(ctx), msg: msg}:
		return nil
	default:
		loggerFor(ctx, p.logger).Warn("mail queue full", "kind", msg.Kind, "to", msg.To)
		return ErrMailQueueFull
	}
}

// Close stops accepting deferred messages and waits for the queue to drain
// or ctx to end.
func (p *Postman) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.queue != nil {
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Postman) start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.queue = make(chan queuedMessage, p.buffer)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
}

func (p *Postman) work() {
	defer p.wg.Done()
	for item := range p.queue {
		if err := p.deliver(item.ctx, item.msg); err != nil {
			loggerFor(item.ctx, p.logger).Error("deferred mail delivery failed",
				"kind", item.msg.Kind,
				"to", item.msg.To,
				"error", err,
			)
		}
	}
}

func (p *Postman) deliver(ctx context.Context, msg Message) error {
	env, err := p.render(msg)
	if err != nil {
		return err
	}
	if err := p.transport.Deliver(ctx, env); err != nil {
		return err
	}
	loggerFor(ctx, p.logger).Debug("mail sent", "kind", msg.Kind, "account_id", msg.AccountID)
	return nil
}

func (p *Postman) render(msg Message) (Envelope, error) {
	if p.renderer == nil {
		return Envelope{To: msg.To, Subject: string(msg.Kind), Body: msg.Token, Kind: msg.Kind}, nil
	}
	return p.renderer.Render(msg)
}
