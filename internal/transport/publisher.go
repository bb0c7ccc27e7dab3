// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"sync"
	"time"

	applog "rtio/internal/log"
)

var pubLog = applog.Named("publisher")

// DefaultInterval is used when a Publisher is given a non-positive interval.
const DefaultInterval = 33 * time.Millisecond // ~30Hz

// Publisher periodically takes a value from a source and sends it to every
// sink. It runs in a separate goroutine managed by Start and Stop.
type Publisher struct {
	source   func() any
	sinks    []Transport
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// NewPublisher creates a publisher. Sinks are closed by Close.
func NewPublisher(interval time.Duration, source func() any, sinks ...Transport) *Publisher {
	if interval <= 0 {
		pubLog.Warnf("Invalid interval provided, defaulting to %s", DefaultInterval)
		interval = DefaultInterval
	}
	return &Publisher{source: source, sinks: sinks, interval: interval}
}

// Start begins publishing. Calling Start on a running publisher is a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		pubLog.Warnf("Start called but already running.")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Captured so the goroutine never reads p.ticker or p.doneChan.
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		pubLog.Debugf("Publishing every %s to %d sinks", p.interval, len(p.sinks))
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-doneChan:
				return
			}
		}
	}()
}

func (p *Publisher) publish() {
	data := p.source()
	for _, s := range p.sinks {
		if err := s.Send(data); err != nil {
			pubLog.Debugf("send failed: %v", err)
		}
	}
}

// Stop signals the publisher goroutine to terminate and waits for it. It is
// safe to call more than once.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()
	p.wg.Wait()
}

// Close stops publishing and closes every sink.
func (p *Publisher) Close() error {
	p.Stop()
	var errs []error
	for _, s := range p.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
