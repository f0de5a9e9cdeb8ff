// Package telemetry emits anonymous product events for integration
// activity. A noop sink is used when telemetry is disabled.
package telemetry

import (
	"context"

	"github.com/google/uuid"
)

type Event struct {
	DistinctID string
	Name       string
	Properties map[string]any
}

func NewEvent(name string, props map[string]any) Event {
	ev := Event{
		DistinctID: instanceID(),
		Name:       name,
		Properties: make(map[string]any, len(props)),
	}

	for k, v := range props {
		ev.Properties[k] = v
	}

	return ev
}

type Telemetry interface {
	Send(ctx context.Context, event Event) error
	Close() error
}

var processID = uuid.New().String()

// instanceID identifies this process anonymously. Events are never
// keyed by organization or user.
func instanceID() string {
	return processID
}

type noop struct{}

// Noop returns a telemetry sink that drops everything.
func Noop() Telemetry {
	return noop{}
}

func (noop) Send(context.Context, Event) error { return nil }
func (noop) Close() error                      { return nil }
