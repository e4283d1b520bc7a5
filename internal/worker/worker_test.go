package worker

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
)

func TestStop(t *testing.T) {
	defer leaktest.Check(t)()

	var w Workers
	var finished atomic.Int32
	started := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		w.StartWithOnFinishHandler(WorkerFunc(func(ctx context.Context) {
			started <- struct{}{}
			<-ctx.Done()
		}), func() { finished.Add(1) })
	}
	<-started
	<-started
	w.Stop()
	assert.Equal(t, int32(2), finished.Load())
}

func TestStopWithoutStart(t *testing.T) {
	var w Workers
	w.Stop()
}
