package service

import "time"

// Timeout is either a Fixed deadline or a Refreshable watchdog. A nil
// Timeout means "no deadline".
type Timeout interface {
	isTimeout()
}

// Fixed describes a one-shot deadline measured from the moment Wait is
// entered. ComputeAsync arms only a Refreshable watchdog; a Fixed passed to
// it sets no deadline.
type Fixed struct {
	Deadline time.Duration
	Callback func()
}

func (Fixed) isTimeout() {}

// Refreshable describes a watchdog whose deadline is measured from the most
// recent resetTimeout() call, not from computation start. CheckPeriod is
// how often the watchdog polls lastResetMillis.
type Refreshable struct {
	Deadline    time.Duration
	CheckPeriod time.Duration
	Callback    func()
}

func (Refreshable) isTimeout() {}
