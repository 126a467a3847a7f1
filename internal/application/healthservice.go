package application

import (
	"context"
	"fmt"
	"time"

	"github.com/ericfisherdev/passvault/internal/domain/port/driven"
)

// HealthStatus is the rolled-up state of a component or of the whole service.
type HealthStatus string

// Health states, from best to worst.
const (
	HealthOK       HealthStatus = "ok"
	HealthDegraded HealthStatus = "degraded"
	HealthFailing  HealthStatus = "failing"
)

// ComponentHealth is the result of probing one dependency.
type ComponentHealth struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail string       `json:"detail,omitempty"`
}

// HealthSummary is the service health view served by the HTTP API.
type HealthSummary struct {
	Status       HealthStatus      `json:"status"`
	StorageBytes uint64            `json:"storage_bytes"`
	Components   []ComponentHealth `json:"components"`
	CheckedAt    time.Time         `json:"checked_at"`
}

// QueueProbe reports the backlog of an asynchronous worker.
type QueueProbe interface {
	Backlog() (pending, capacity int)
}

// HealthService probes the state store and the refund queue. It depends only
// on port interfaces.
type HealthService struct {
	kv    driven.KVStore
	queue QueueProbe
}

// NewHealthService creates a HealthService. queue may be nil when refunds are
// paid synchronously.
func NewHealthService(kv driven.KVStore, queue QueueProbe) *HealthService {
	return &HealthService{kv: kv, queue: queue}
}

// Check probes every component and combines their states.
func (s *HealthService) Check(ctx context.Context) HealthSummary {
	summary := HealthSummary{CheckedAt: time.Now().UTC()}

	store := ComponentHealth{Name: "store", Status: HealthOK}
	usage, err := s.kv.Usage(ctx)
	if err != nil {
		store.Status = HealthFailing
		store.Detail = err.Error()
	} else {
		summary.StorageBytes = usage
	}
	summary.Components = append(summary.Components, store)

	if s.queue != nil {
		summary.Components = append(summary.Components, queueHealth(s.queue))
	}

	summary.Status = combineHealth(summary.Components)
	return summary
}

// queueHealth reports a refund queue that is at least three quarters full
// as degraded: refunds are then paid inline on request goroutines.
func queueHealth(q QueueProbe) ComponentHealth {
	pending, capacity := q.Backlog()
	c := ComponentHealth{Name: "refunds", Status: HealthOK, Detail: fmt.Sprintf("%d/%d queued", pending, capacity)}
	if capacity > 0 && pending*4 >= capacity*3 {
		c.Status = HealthDegraded
	}
	return c
}

// combineHealth rolls component states into one.
// Priority: failing > degraded > ok.
func combineHealth(components []ComponentHealth) HealthStatus {
	var hasFailing, hasDegraded bool
	for _, c := range components {
		switch c.Status {
		case HealthFailing:
			hasFailing = true
		case HealthDegraded:
			hasDegraded = true
		case HealthOK:
			// nothing to flag
		}
	}

	if hasFailing {
		return HealthFailing
	}
	if hasDegraded {
		return HealthDegraded
	}
	return HealthOK
}
