package bulkvalidation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanBatches(t *testing.T) {
	tests := []struct {
		name          string
		employees     int
		cores         int
		hostRAM       uint64
		batchSize     int
		maxConcurrent int
		batches       int
		budget        uint64
	}{
		{
			name:          "small workforce",
			employees:     40,
			cores:         16,
			hostRAM:       16 << 30,
			batchSize:     25,
			maxConcurrent: 4,
			batches:       2,
			budget:        2 << 30,
		},
		{
			name:          "small boundary at one hundred",
			employees:     100,
			cores:         16,
			hostRAM:       16 << 30,
			batchSize:     25,
			maxConcurrent: 4,
			batches:       4,
			budget:        2 << 30,
		},
		{
			name:          "medium starts above one hundred",
			employees:     101,
			cores:         16,
			hostRAM:       16 << 30,
			batchSize:     50,
			maxConcurrent: 8,
			batches:       3,
			budget:        2 << 30,
		},
		{
			name:          "medium upper bound",
			employees:     1000,
			cores:         16,
			hostRAM:       16 << 30,
			batchSize:     50,
			maxConcurrent: 8,
			batches:       20,
			budget:        2 << 30,
		},
		{
			name:          "large workforce",
			employees:     1001,
			cores:         16,
			hostRAM:       16 << 30,
			batchSize:     100,
			maxConcurrent: 12,
			batches:       11,
			budget:        2 << 30,
		},
		{
			name:          "few cores clamp concurrency",
			employees:     500,
			cores:         2,
			hostRAM:       16 << 30,
			batchSize:     50,
			maxConcurrent: 2,
			batches:       10,
			budget:        2 << 30,
		},
		{
			name:          "small host keeps quarter of ram",
			employees:     5000,
			cores:         32,
			hostRAM:       4 << 30,
			batchSize:     100,
			maxConcurrent: 12,
			batches:       50,
			budget:        1 << 30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanBatches(tt.employees, tt.cores, tt.hostRAM)

			assert.Equal(t, tt.employees, plan.Employees)
			assert.Equal(t, tt.batchSize, plan.BatchSize)
			assert.Equal(t, tt.maxConcurrent, plan.MaxConcurrent)
			assert.Equal(t, tt.batches, plan.Batches)
			assert.Equal(t, tt.budget, plan.MemoryBudget)
		})
	}
}

func TestPlanBatches_ConcurrencyNeverBelowOne(t *testing.T) {
	plan := PlanBatches(10, 0, 8<<30)

	assert.Equal(t, 1, plan.MaxConcurrent)
}

func TestClampToMemory(t *testing.T) {
	t.Run("generous budget is untouched", func(t *testing.T) {
		plan := PlanBatches(1000, 16, 16<<30)

		clamped := plan.ClampToMemory(7)

		assert.Equal(t, plan, clamped)
	})

	t.Run("tight budget lowers concurrency", func(t *testing.T) {
		plan := BatchPlan{
			Employees:     1200,
			BatchSize:     100,
			MaxConcurrent: 12,
			Batches:       12,
			MemoryBudget:  256 << 20,
		}

		// 30 days x 96 intervals x 256 bytes = ~70 MiB per batch, so a
		// 256 MiB budget holds three batches at a time.
		clamped := plan.ClampToMemory(30)

		assert.Equal(t, 3, clamped.MaxConcurrent)
		assert.Equal(t, plan.BatchSize, clamped.BatchSize)
	})

	t.Run("never drops below one batch in flight", func(t *testing.T) {
		plan := BatchPlan{
			Employees:     200,
			BatchSize:     100,
			MaxConcurrent: 12,
			Batches:       2,
			MemoryBudget:  64 << 20,
		}

		clamped := plan.ClampToMemory(30)

		assert.Equal(t, 1, clamped.MaxConcurrent)
	})
}
