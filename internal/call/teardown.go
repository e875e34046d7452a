package call

// teardown releases everything the session acquired and leaves it Closed,
// or Failed when cause is non-nil. Only the first call does anything.
//
// The final state is published only after every resource has been let go.
func (s *Session) teardown(cause error) {
	s.teardownOnce.Do(func() {
		close(s.stopped)
		// Wait out posts already in flight so the drain below sees them.
		s.postMu.Lock()
		s.postMu.Unlock()

		s.cancel()
		s.coord.Cancel()

		if s.stream != nil {
			s.stream.Release()
		}
		if s.transport != nil {
			if err := s.transport.Close(); err != nil {
				s.log.Debug("closing peer transport", "err", err)
			}
		}
		if s.channel != nil {
			s.channel.Disconnect()
		}
		s.drain()

		s.pending = nil
		s.heldOffer = ""

		if cause != nil {
			s.transition(StateFailed, cause)
		} else {
			s.transition(StateClosed, nil)
		}
	})
}

// drain disposes of events that were queued but never handled.
func (s *Session) drain() {
	for {
		select {
		case ev := <-s.inbox:
			switch ev := ev.(type) {
			case mediaResult:
				if ev.stream != nil {
					ev.stream.Release()
				}
			case toggleRequest:
				ev.reply <- toggleReply{err: ErrSessionClosed}
			}
		default:
			return
		}
	}
}

// finish runs when the loop exits.
func (s *Session) finish() {
	s.teardown(nil)
	s.pub.close()
	close(s.done)
}
