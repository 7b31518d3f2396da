package engine

import (
	"runtime"
	"sync"

	"github.com/pthm-cable/murmur/geom"
	"github.com/pthm-cable/murmur/systems"
)

// parallelThreshold is the minimum agent count to use parallel evaluation.
// Below this, single-threaded is faster due to goroutine overhead.
const parallelThreshold = 64

// workerScratch holds per-worker reusable buffers.
type workerScratch struct {
	Neighbors []systems.Neighbor
}

// workChunk represents a range of agents for a worker to evaluate.
type workChunk struct {
	start, end int
}

// parallelState holds resources for parallel steering evaluation. Workers
// read only the snapshot slice and the frozen spatial index; each output
// slot is written by exactly one worker, so no synchronization is needed
// beyond the chunk dispatch channels.
type parallelState struct {
	snapshots      []systems.AgentState
	forces         []geom.Vec3
	saturated      []bool
	neighborCounts []int32
	scratches      []workerScratch
	numWorkers     int

	workChan chan workChunk // sends work to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool           // true if workers are running
}

func newParallelState() *parallelState {
	numWorkers := runtime.GOMAXPROCS(0)
	scratches := make([]workerScratch, numWorkers)
	for i := range scratches {
		scratches[i].Neighbors = make([]systems.Neighbor, 0, 64)
	}
	return &parallelState{
		numWorkers: numWorkers,
		scratches:  scratches,
		snapshots:  make([]systems.AgentState, 0, 512),
	}
}

// resize grows the output buffers to hold n results.
func (p *parallelState) resize(n int) {
	if cap(p.forces) < n {
		p.forces = make([]geom.Vec3, n)
		p.saturated = make([]bool, n)
		p.neighborCounts = make([]int32, n)
	}
	p.forces = p.forces[:n]
	p.saturated = p.saturated[:n]
	p.neighborCounts = p.neighborCounts[:n]
}

// startWorkers launches persistent worker goroutines.
func (p *parallelState) startWorkers(e *Engine) {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(e, i)
	}
}

// stopWorkers signals all workers to exit and waits for them.
func (p *parallelState) stopWorkers() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

// worker runs in a goroutine, evaluating chunks until stopped.
func (p *parallelState) worker(e *Engine, workerID int) {
	defer p.wg.Done()
	scratch := &p.scratches[workerID]

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			e.evaluateChunk(chunk.start, chunk.end, scratch)
			p.doneChan <- struct{}{}
		}
	}
}

// evaluate runs the steering pipeline over every snapshot, single-threaded
// for small populations and chunked across the worker pool otherwise.
func (e *Engine) evaluate() {
	n := len(e.parallel.snapshots)
	if n == 0 {
		return
	}
	e.parallel.resize(n)

	if n < parallelThreshold {
		e.evaluateChunk(0, n, &e.parallel.scratches[0])
		return
	}
	e.evaluateParallel(n)
}

// evaluateParallel dispatches chunks to the worker pool and waits for all
// of them, forming the barrier before integration.
func (e *Engine) evaluateParallel(n int) {
	if !e.parallel.running {
		e.parallel.startWorkers(e)
	}

	numWorkers := e.parallel.numWorkers
	chunkSize := (n + numWorkers - 1) / numWorkers

	chunksDispatched := 0
	for w := 0; w < numWorkers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}

		e.parallel.workChan <- workChunk{start: start, end: end}
		chunksDispatched++
	}

	for i := 0; i < chunksDispatched; i++ {
		<-e.parallel.doneChan
	}
}

// evaluateChunk computes steering forces for a range of agents. It reads
// only snapshots and the frozen index, and writes only its own slots.
func (e *Engine) evaluateChunk(i0, i1 int, scratch *workerScratch) {
	for i := i0; i < i1; i++ {
		snap := &e.parallel.snapshots[i]

		scratch.Neighbors = e.index.QueryInto(
			scratch.Neighbors[:0],
			snap.Pos, snap.Limits.PerceptionRadius, snap.Entity,
		)

		force, saturated := e.pipeline.Force(snap, scratch.Neighbors, e.parallel.snapshots, e.tick)

		e.parallel.forces[i] = force
		e.parallel.saturated[i] = saturated
		e.parallel.neighborCounts[i] = int32(len(scratch.Neighbors))
	}
}
