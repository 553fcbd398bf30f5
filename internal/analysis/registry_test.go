package analysis_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/collinmckay/vulnsuite/internal/analysis"
)

func TestRegistrySetGet(t *testing.T) {
	reg := analysis.NewRegistry()

	_, ok := reg.Get("missing")
	assert.False(t, ok)

	reg.Set("p1", analysis.Job{Status: analysis.StatusProcessing})
	job, ok := reg.Get("p1")
	assert.True(t, ok)
	assert.Equal(t, analysis.StatusProcessing, job.Status)
}

func TestRegistryLastWriteWins(t *testing.T) {
	reg := analysis.NewRegistry()

	reg.Set("p1", analysis.Job{Status: analysis.StatusProcessing})
	reg.Set("p1", analysis.Job{Status: analysis.StatusFailed, Error: "boom"})
	reg.Set("p1", analysis.Job{Status: analysis.StatusCompleted})

	job, ok := reg.Get("p1")
	assert.True(t, ok)
	assert.Equal(t, analysis.StatusCompleted, job.Status)
	assert.Empty(t, job.Error)
}

func TestRegistryBeginProcessing(t *testing.T) {
	reg := analysis.NewRegistry()

	assert.True(t, reg.BeginProcessing("p1"))

	// A processing entry blocks further claims.
	assert.False(t, reg.BeginProcessing("p1"))
	job, ok := reg.Get("p1")
	assert.True(t, ok)
	assert.Equal(t, analysis.StatusProcessing, job.Status)

	// Any terminal outcome frees the slot again.
	reg.Set("p1", analysis.Job{Status: analysis.StatusFailed, Error: "boom"})
	assert.True(t, reg.BeginProcessing("p1"))
}

func TestRegistryBeginProcessingSingleWinner(t *testing.T) {
	reg := analysis.NewRegistry()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if reg.BeginProcessing("p1") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := analysis.NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		id := fmt.Sprintf("p%d", i%10)
		go func() {
			defer wg.Done()
			reg.Set(id, analysis.Job{Status: analysis.StatusProcessing})
			reg.Set(id, analysis.Job{Status: analysis.StatusCompleted})
		}()
		go func() {
			defer wg.Done()
			if job, ok := reg.Get(id); ok {
				assert.Contains(t, []analysis.Status{
					analysis.StatusProcessing,
					analysis.StatusCompleted,
				}, job.Status)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		job, ok := reg.Get(fmt.Sprintf("p%d", i))
		assert.True(t, ok)
		assert.Equal(t, analysis.StatusCompleted, job.Status)
	}
}
