package bulkvalidation

import (
	"time"

	"github.com/workforcelab/intraday/internal/domain"
	"github.com/workforcelab/intraday/internal/modules/compliance"
)

// Adaptive sizing table: larger workforces get bigger batches and more
// concurrent batches, bounded by the host's core count.
const (
	smallWorkforce  = 100
	mediumWorkforce = 1000

	smallBatchSize  = 25
	mediumBatchSize = 50
	largeBatchSize  = 100

	smallConcurrency  = 4
	mediumConcurrency = 8
	largeConcurrency  = 12
)

// memoryBudgetCap bounds the working-set budget regardless of host RAM.
const memoryBudgetCap = 2 << 30 // 2 GB

// blockBytes is the coarse per-block working-set estimate used when
// projecting a batch's preload footprint.
const blockBytes = 256

// BatchPlan sizes one bulk validation run.
type BatchPlan struct {
	Employees     int    `json:"employees"`
	BatchSize     int    `json:"batch_size"`
	MaxConcurrent int    `json:"max_concurrent"`
	Batches       int    `json:"batches"`
	MemoryBudget  uint64 `json:"memory_budget_bytes"`
}

// PlanBatches applies the adaptive sizing table for a workforce of the given
// size on a host with the given core count and total RAM. The memory budget
// is a quarter of host RAM, capped at 2 GB.
func PlanBatches(employees, cores int, hostRAM uint64) BatchPlan {
	p := BatchPlan{Employees: employees}
	switch {
	case employees <= smallWorkforce:
		p.BatchSize, p.MaxConcurrent = smallBatchSize, min(smallConcurrency, cores)
	case employees <= mediumWorkforce:
		p.BatchSize, p.MaxConcurrent = mediumBatchSize, min(mediumConcurrency, cores)
	default:
		p.BatchSize, p.MaxConcurrent = largeBatchSize, min(largeConcurrency, cores)
	}
	if p.MaxConcurrent < 1 {
		p.MaxConcurrent = 1
	}
	p.MemoryBudget = hostRAM / 4
	if p.MemoryBudget > memoryBudgetCap {
		p.MemoryBudget = memoryBudgetCap
	}
	if employees > 0 {
		p.Batches = (employees + p.BatchSize - 1) / p.BatchSize
	}
	return p
}

// ClampToMemory lowers batch concurrency until the projected working set of
// concurrently preloaded batches fits the budget. The projection is coarse:
// preloaded timetable blocks dominate, at blockBytes per 15-minute slot per
// day in the validated range.
func (p BatchPlan) ClampToMemory(days int) BatchPlan {
	if days < 1 {
		days = 1
	}
	perEmployee := uint64(days) * domain.IntervalsPerDay * blockBytes
	for p.MaxConcurrent > 1 && uint64(p.BatchSize)*perEmployee*uint64(p.MaxConcurrent) > p.MemoryBudget {
		p.MaxConcurrent--
	}
	return p
}

// Progress is the externally visible state of one validation run. Snapshots
// are consistent: every read sees counts from whole completed batches.
type Progress struct {
	ValidationID string    `json:"validation_id"`
	Total        int       `json:"total"`
	Processed    int       `json:"processed"`
	Compliant    int       `json:"compliant"`
	Violations   int       `json:"violations"`
	Failed       int       `json:"failed"`
	ElapsedSec   float64   `json:"elapsed_sec"`
	ETASec       float64   `json:"eta_sec"`
	Cancelled    bool      `json:"cancelled"`
	Done         bool      `json:"done"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Options tunes one validation run.
type Options struct {
	// ValidationID names the run; a uuid is assigned when empty.
	ValidationID string
	// UseCache consults and fills the compliance result cache.
	UseCache bool
	// Progress, when non-nil, receives a snapshot after every completed
	// batch and a final Done snapshot, then is closed when the run
	// finishes. A run that fails to start leaves the channel untouched.
	// Sends block until the consumer keeps up or the run is cancelled.
	Progress chan<- Progress
}

// Report is the aggregated outcome of one validation run. When the run was
// cancelled the aggregate covers the batches that completed; employees in
// never-scheduled batches are counted in Skipped, not Failed.
type Report struct {
	ValidationID string                `json:"validation_id"`
	Range        domain.DateRange      `json:"range"`
	Plan         BatchPlan             `json:"plan"`
	Cancelled    bool                  `json:"cancelled"`
	Skipped      int                   `json:"skipped"`
	Result       compliance.BulkResult `json:"result"`
}
