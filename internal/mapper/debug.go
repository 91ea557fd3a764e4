package mapper

import (
	"io"
	"log"
	"sync/atomic"
)

// logStream is one of the package's three log destinations. A stream with
// no writer discards everything.
type logStream struct {
	l atomic.Pointer[log.Logger]
}

func (s *logStream) set(w io.Writer) {
	if w == nil {
		s.l.Store(nil)
		return
	}
	s.l.Store(log.New(w, "[mapper] ", log.LstdFlags|log.Lmicroseconds))
}

func (s *logStream) printf(format string, args ...any) {
	if l := s.l.Load(); l != nil {
		l.Printf(format, args...)
	}
}

var opsLog, diagLog, traceLog logStream

// SetLogWriters routes the mapper's ops, diag and trace streams. A nil
// writer silences that stream; all three start silenced.
//
// ops carries actionable problems such as encode failures. diag carries
// dropped scans, mapping toggles and flush results. trace carries per-scan
// detail.
func SetLogWriters(ops, diag, trace io.Writer) {
	opsLog.set(ops)
	diagLog.set(diag)
	traceLog.set(trace)
}

func opsf(format string, args ...any)   { opsLog.printf(format, args...) }
func diagf(format string, args ...any)  { diagLog.printf(format, args...) }
func tracef(format string, args ...any) { traceLog.printf(format, args...) }
