package flow

import "log/slog"

// Diagnostics receives human-readable messages about flow decisions. It is
// observability only; nothing it does can change a flow's result.
type Diagnostics interface {
	Diagnostic(msg string)
}

// SlogDiagnostics writes diagnostics to a slog.Logger at debug level.
type SlogDiagnostics struct {
	Logger *slog.Logger
}

// Diagnostic implements Diagnostics.
func (s SlogDiagnostics) Diagnostic(msg string) {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Debug("flow diagnostic", "msg", msg)
}

// diagnose forwards msg to the sink, dropping it if the sink panics.
func (e *Engine) diagnose(msg string) {
	if e.diagnostics == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	e.diagnostics.Diagnostic(msg)
}
