package monitor

import (
	"sort"
	"sync"

	"github.com/workforcelab/intraday/internal/domain"
)

// alertQueue is the bounded buffer between detection and delivery. Pushes
// beyond capacity are rejected and counted; the drain always hands out the
// most severe alerts first.
type alertQueue struct {
	mu       sync.Mutex
	items    []domain.Alert
	capacity int
	dropped  int64
}

func newAlertQueue(capacity int) *alertQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &alertQueue{capacity: capacity}
}

// Push enqueues one alert. Returns false when the queue is full; the alert
// is then dropped and counted, never blocking the detector.
func (q *alertQueue) Push(a domain.Alert) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		q.dropped++
		return false
	}
	q.items = append(q.items, a)
	return true
}

// DrainBatch removes and returns up to n alerts ordered critical first;
// equal severities leave in detection order.
func (q *alertQueue) DrainBatch(n int) []domain.Alert {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 || n <= 0 {
		return nil
	}

	sort.SliceStable(q.items, func(i, j int) bool {
		ri, rj := q.items[i].Severity.Rank(), q.items[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return q.items[i].DetectedAt.Before(q.items[j].DetectedAt)
	})

	if n > len(q.items) {
		n = len(q.items)
	}
	batch := make([]domain.Alert, n)
	copy(batch, q.items[:n])
	q.items = q.items[:copy(q.items, q.items[n:])]
	return batch
}

// DrainAll empties the queue in severity order. Used during shutdown.
func (q *alertQueue) DrainAll() []domain.Alert {
	q.mu.Lock()
	n := len(q.items)
	q.mu.Unlock()
	return q.DrainBatch(n)
}

func (q *alertQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *alertQueue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
