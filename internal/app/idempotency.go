package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/timothylidede/vendai-credit/internal/clock"
	"github.com/timothylidede/vendai-credit/internal/domain"
)

type EventRepository interface {
	Admit(ctx context.Context, source domain.EventSource, eventKey string, receivedAt time.Time) (bool, error)
}

// IdempotencyGuard gives every inbound external event at-most-once effect.
// Admission is a single conditional insert in storage, so duplicate
// deliveries racing on two connections still admit exactly one.
type IdempotencyGuard struct {
	repo  EventRepository
	clock clock.Clock
}

func NewIdempotencyGuard(repo EventRepository, clk clock.Clock) *IdempotencyGuard {
	return &IdempotencyGuard{repo: repo, clock: clk}
}

// Admit returns true when the event is new. A false result is not an error:
// the caller short-circuits and replays the original success acknowledgement.
func (g *IdempotencyGuard) Admit(ctx context.Context, source domain.EventSource, eventKey string) (bool, error) {
	if eventKey == "" {
		return false, errors.New("empty event key")
	}
	return g.repo.Admit(ctx, source, eventKey, g.clock.Now())
}

// EventKey builds the deduplication key for an inbound payload: the
// provider-supplied event identifier when one exists, otherwise a hash of
// the raw body. Keys are namespaced by source so two providers can never
// collide.
func EventKey(source domain.EventSource, providerEventID string, raw []byte) string {
	if providerEventID != "" {
		return string(source) + ":" + providerEventID
	}
	sum := sha256.Sum256(raw)
	return string(source) + ":" + hex.EncodeToString(sum[:])
}
