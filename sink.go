package hxbind

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// ErrorSink receives every codec, transport and script failure.
// Implementations must be safe for concurrent use.
type ErrorSink interface {
	Report(err error)
}

// SinkFunc adapts a function to ErrorSink.
type SinkFunc func(err error)

// Report implements ErrorSink.
func (f SinkFunc) Report(err error) {
	f(err)
}

// Discard drops every report.
var Discard ErrorSink = SinkFunc(func(error) {})

type logSink struct {
	log logrus.FieldLogger
}

// LogSink returns a sink that writes reports to log, at warn level for
// unset reads and error level for everything else.
func LogSink(log logrus.FieldLogger) ErrorSink {
	return &logSink{log: log}
}

func (s *logSink) Report(err error) {
	if err == nil {
		return
	}
	entry := s.log.WithError(err)

	var de *DeliveryError
	if errors.As(err, &de) {
		entry = entry.WithFields(logrus.Fields{"kind": de.Kind, "name": de.Name})
	}
	if IsUnset(err) {
		entry.Warn("hxbind: computation abstained")
		return
	}
	entry.Error("hxbind: bridge error")
}
