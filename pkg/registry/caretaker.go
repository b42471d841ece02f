package registry

import (
	"time"
)

// caretaker is the standby holder of the entry store across an actor crash.
// One caretaker is designated per actor incarnation; if the actor dies, the
// store is entrusted to it and it holds the reference, bounded by the hold
// timeout, until the restarted actor reclaims it. Entries are therefore
// never lost to a single actor crash, only to loss of the whole supervising
// tree.
type caretaker struct {
	hold    time.Duration
	entrust chan *entryStore
	reclaim chan *entryStore
	done    chan struct{}
	log     actorLogger
}

// newCaretaker spawns a caretaker that immediately begins waiting for a
// possible ownership transfer.
func newCaretaker(hold time.Duration, log actorLogger) *caretaker {
	c := &caretaker{
		hold:    hold,
		entrust: make(chan *entryStore),
		reclaim: make(chan *entryStore),
		done:    make(chan struct{}),
		log:     log,
	}
	go c.wait()
	return c
}

// wait blocks until the store is entrusted, then holds it for reclaiming.
// If the hold expires first the reclaim channel is closed and the store
// reference is dropped.
func (c *caretaker) wait() {
	var store *entryStore
	select {
	case store = <-c.entrust:
		c.log.Debugf("caretaker took ownership of entry store (%d entries)", store.size())
	case <-c.done:
		return
	}

	timer := time.NewTimer(c.hold)
	defer timer.Stop()

	select {
	case c.reclaim <- store:
		c.log.Debugf("entry store reclaimed from caretaker")
	case <-timer.C:
		c.log.Warnf("caretaker hold expired after %s; dropping entry store", c.hold)
		close(c.reclaim)
	case <-c.done:
	}
}

// cancel releases a caretaker that was never needed (clean shutdown).
func (c *caretaker) cancel() {
	close(c.done)
}

// supervisor owns the shared region and keeps exactly one actor alive,
// routing store ownership through a caretaker across crashes.
type supervisor struct {
	shared   *shared
	opts     Options
	commands chan command
	log      actorLogger
	exited   chan struct{}
}

// run is the supervision loop. It terminates only on a clean stop command.
func (s *supervisor) run() {
	defer close(s.exited)

	var store *entryStore
	for {
		if store == nil {
			store = newEntryStore()
			s.log.Debugf("created fresh entry store")
		}
		s.shared.store.Store(store)

		ct := newCaretaker(s.opts.CaretakerHold, s.log)
		a := &actor{
			shared:   s.shared,
			opts:     s.opts,
			commands: s.commands,
			log:      s.log,
		}

		err := a.run()
		if err == nil {
			ct.cancel()
			return
		}
		s.log.Warnf("restarting registry actor: %v", err)

		ct.entrust <- store
		reclaimed, ok := <-ct.reclaim
		if !ok {
			// Hold expired before restart completed; entries are gone.
			store = nil
			continue
		}
		store = reclaimed
	}
}
