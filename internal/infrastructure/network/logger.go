package network

import (
	"github.com/ThreeDotsLabs/watermill"
	log "github.com/sirupsen/logrus"
)

// wmLogger bridges watermill's logging to logrus so transport internals show
// up in the same structured stream as the protocol.
type wmLogger struct {
	fields log.Fields
}

// NewWatermillLogger returns a watermill.LoggerAdapter backed by the global
// logrus logger.
func NewWatermillLogger() watermill.LoggerAdapter {
	return wmLogger{fields: log.Fields{}}
}

func (l wmLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.entry(fields).WithError(err).Error(msg)
}

func (l wmLogger) Info(msg string, fields watermill.LogFields) {
	l.entry(fields).Info(msg)
}

func (l wmLogger) Debug(msg string, fields watermill.LogFields) {
	l.entry(fields).Debug(msg)
}

func (l wmLogger) Trace(msg string, fields watermill.LogFields) {
	l.entry(fields).Trace(msg)
}

func (l wmLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	merged := make(log.Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return wmLogger{fields: merged}
}

func (l wmLogger) entry(fields watermill.LogFields) *log.Entry {
	entry := log.WithFields(l.fields)
	for k, v := range fields {
		entry = entry.WithField(k, v)
	}
	return entry
}
