// Package alerts carries internal outcome events to operators. The wire
// acknowledgement to webhook providers is always success; this channel is
// where processing failures actually surface.
package alerts

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type Event struct {
	Severity Severity  `json:"severity"`
	Kind     string    `json:"kind"`
	Key      string    `json:"key,omitempty"`
	Detail   string    `json:"detail"`
	At       time.Time `json:"at,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// LogPublisher is the fallback when no broker is configured.
type LogPublisher struct {
	logger *log.Logger
}

func NewLogPublisher(logger *log.Logger) *LogPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	p.logger.Printf("ALERT severity=%s kind=%s %s", ev.Severity, ev.Kind, payload)
	return nil
}
