package workflow

import (
	"notaflow/internal"
)

// Session is the per-user state of one in-flight invoice. The front-end
// serializes updates per user, so a session is never mutated
// concurrently and carries no locking.
type Session struct {
	State   State
	Invoice *internal.Invoice

	editIndex   int
	pendingUnit string
	history     [][]internal.InvoiceLine
}

// EditIndex is the line currently being corrected, -1 when none.
func (s *Session) EditIndex() int {
	return s.editIndex
}

func (s *Session) snapshot() {
	if s.Invoice == nil {
		return
	}
	s.history = append(s.history, internal.CloneLines(s.Invoice.Lines))
}

func (s *Session) popSnapshot() ([]internal.InvoiceLine, bool) {
	if len(s.history) == 0 {
		return nil, false
	}
	last := s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	return last, true
}

func (s *Session) reset() {
	s.State = StateAwaitingPhoto
	s.Invoice = nil
	s.editIndex = -1
	s.pendingUnit = ""
	s.history = nil
}
