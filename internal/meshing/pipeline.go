package meshing

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"voxelforge/internal/world"
)

// JobKind distinguishes the two task types the worker pool executes.
type JobKind uint8

const (
	JobPopulate JobKind = iota
	JobMeshBuild
)

// Job is one unit of worker-pool work for a single chunk.
type Job struct {
	Chunk    *world.Chunk
	Kind     JobKind
	Priority world.BuildPriority
}

// Result is a completed mesh handed to the upload stage. The buffer is owned
// by the building worker until it lands on the ready queue.
type Result struct {
	Chunk *world.Chunk
	Mesh  *Mesh
}

// Pipeline is the asynchronous mesh-build stage: a fixed worker pool fed by
// three priority queues, a pending set enforcing at-most-one in-flight build
// per chunk, and bounded retry tracking keyed by packed chunk coordinates.
// It implements world.BuildScheduler.
type Pipeline struct {
	store *world.ChunkStore
	gen   world.TerrainGenerator
	log   *zap.Logger

	playerQ   chan Job
	neighborQ chan Job
	normalQ   chan Job
	ready     chan Result

	mu      sync.Mutex
	pending map[int64]struct{}
	retries map[int64]int
	failed  map[int64]world.BuildPriority

	maxRetries int
	workers    int

	// Swappable in tests to inject build failures.
	buildFunc func(pos world.ChunkPos, blocks []world.BlockType, neighbor NeighborFunc) (*Mesh, error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// DefaultWorkers returns the worker-pool size: half the cores, at least one.
func DefaultWorkers() int {
	return max(1, runtime.NumCPU()/2)
}

// NewPipeline creates a pipeline; call Start to launch the workers.
func NewPipeline(store *world.ChunkStore, gen world.TerrainGenerator, workers, queueSize, maxRetries int, log *zap.Logger) *Pipeline {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		store:      store,
		gen:        gen,
		log:        log,
		playerQ:    make(chan Job, 256),
		neighborQ:  make(chan Job, 512),
		normalQ:    make(chan Job, queueSize),
		ready:      make(chan Result, 256),
		pending:    make(map[int64]struct{}),
		retries:    make(map[int64]int),
		failed:     make(map[int64]world.BuildPriority),
		maxRetries: maxRetries,
		workers:    workers,
		buildFunc:  BuildChunkMesh,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the worker goroutines.
func (p *Pipeline) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Shutdown stops the workers and waits for them to exit.
func (p *Pipeline) Shutdown() {
	p.cancel()
	p.wg.Wait()
}

// Ready is the queue the upload stage drains on the render thread.
func (p *Pipeline) Ready() <-chan Result { return p.ready }

// ReadyLen returns the current ready-queue depth.
func (p *Pipeline) ReadyLen() int { return len(p.ready) }

// QueueDepth returns the summed depth of the three priority queues.
func (p *Pipeline) QueueDepth() int {
	return len(p.playerQ) + len(p.neighborQ) + len(p.normalQ)
}

// Retries returns the recorded build attempts for a position.
func (p *Pipeline) Retries(pos world.ChunkPos) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retries[pos.Key()]
}

// PendingCount returns the number of chunks currently Scheduled/Building.
func (p *Pipeline) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// FailedCount returns the number of retry-eligible failed chunks.
func (p *Pipeline) FailedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.failed)
}

func (p *Pipeline) queueFor(prio world.BuildPriority) chan Job {
	switch prio {
	case world.PriorityPlayer:
		return p.playerQ
	case world.PriorityNeighbor:
		return p.neighborQ
	}
	return p.normalQ
}

// ScheduleBuild queues a mesh build for the chunk. The pending set plus the
// chunk state machine guarantee at most one Scheduled/Building holder per
// chunk. A saturated queue rolls the transition back and returns false.
func (p *Pipeline) ScheduleBuild(c *world.Chunk, prio world.BuildPriority) bool {
	key := c.Pos.Key()
	p.mu.Lock()
	if _, inFlight := p.pending[key]; inFlight {
		p.mu.Unlock()
		return false
	}
	p.mu.Unlock()

	if !c.MarkScheduled() {
		return false
	}
	p.mu.Lock()
	p.pending[key] = struct{}{}
	p.mu.Unlock()

	select {
	case p.queueFor(prio) <- Job{Chunk: c, Kind: JobMeshBuild, Priority: prio}:
		return true
	default:
		p.mu.Lock()
		delete(p.pending, key)
		p.mu.Unlock()
		c.Unschedule()
		return false
	}
}

// SchedulePopulate queues the feature pass for a chunk; population runs on
// the same pool at normal priority and chains into a mesh build.
func (p *Pipeline) SchedulePopulate(c *world.Chunk) bool {
	if !c.TryBeginPopulate() {
		return false
	}
	select {
	case p.normalQ <- Job{Chunk: c, Kind: JobPopulate, Priority: world.PriorityNormal}:
		return true
	default:
		c.FinishPopulate(false)
		return false
	}
}

// RetryFailed reschedules every retry-eligible failed chunk once, preserving
// the priority it failed at. Called once per scheduling pass.
func (p *Pipeline) RetryFailed() {
	p.mu.Lock()
	eligible := make(map[int64]world.BuildPriority, len(p.failed))
	for k, prio := range p.failed {
		eligible[k] = prio
	}
	p.mu.Unlock()

	for key, prio := range eligible {
		x, z := world.UnpackPos(key)
		c := p.store.Get(x, z)
		if c == nil {
			p.Cancel(world.ChunkPos{X: x, Z: z})
			continue
		}
		if p.ScheduleBuild(c, prio) {
			p.mu.Lock()
			delete(p.failed, key)
			p.mu.Unlock()
		}
	}
}

// Cancel drops pending membership and retry tracking for a position; used
// by the store on unload.
func (p *Pipeline) Cancel(pos world.ChunkPos) {
	key := pos.Key()
	p.mu.Lock()
	delete(p.pending, key)
	delete(p.retries, key)
	delete(p.failed, key)
	p.mu.Unlock()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()
	for {
		job, ok := p.nextJob()
		if !ok {
			return
		}
		switch job.Kind {
		case JobPopulate:
			p.populate(job)
		case JobMeshBuild:
			p.build(job)
		}
	}
}

// nextJob drains higher tiers first via staged non-blocking receives, then
// blocks across all tiers.
func (p *Pipeline) nextJob() (Job, bool) {
	select {
	case j := <-p.playerQ:
		return j, true
	default:
	}
	select {
	case j := <-p.playerQ:
		return j, true
	case j := <-p.neighborQ:
		return j, true
	default:
	}
	select {
	case j := <-p.playerQ:
		return j, true
	case j := <-p.neighborQ:
		return j, true
	case j := <-p.normalQ:
		return j, true
	default:
	}
	select {
	case j := <-p.playerQ:
		return j, true
	case j := <-p.neighborQ:
		return j, true
	case j := <-p.normalQ:
		return j, true
	case <-p.ctx.Done():
		return Job{}, false
	}
}

func (p *Pipeline) populate(job Job) {
	c := job.Chunk
	if !p.store.Exists(c.Pos.X, c.Pos.Z) {
		c.FinishPopulate(false)
		return
	}
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("feature population panicked: %v", r)
			}
		}()
		p.gen.PopulateFeatures(c)
		return nil
	}()
	if err != nil {
		c.FinishPopulate(false)
		p.log.Error("feature population failed",
			zap.Int("cx", c.Pos.X), zap.Int("cz", c.Pos.Z), zap.Error(err))
		return
	}
	c.FinishPopulate(true)
	p.ScheduleBuild(c, job.Priority)
}

func (p *Pipeline) build(job Job) {
	c := job.Chunk
	key := c.Pos.Key()

	// Unloaded while queued: the store cancelled this membership.
	if !p.store.Exists(c.Pos.X, c.Pos.Z) {
		p.removePending(key)
		return
	}
	if !c.BeginBuild() {
		p.removePending(key)
		return
	}

	snapshot := c.Snapshot()
	mesh, err := p.buildSafe(c.Pos, snapshot)
	p.removePending(key)

	if err != nil {
		c.FinishBuild(false)
		p.recordFailure(c, job.Priority, err)
		return
	}

	reschedule := c.FinishBuild(true)
	p.mu.Lock()
	delete(p.retries, key)
	delete(p.failed, key)
	p.mu.Unlock()

	select {
	case p.ready <- Result{Chunk: c, Mesh: mesh}:
	case <-p.ctx.Done():
		return
	}
	if reschedule {
		p.ScheduleBuild(c, job.Priority)
	}
}

// buildSafe runs the mesher with panics converted to errors.
func (p *Pipeline) buildSafe(pos world.ChunkPos, blocks []world.BlockType) (mesh *Mesh, err error) {
	defer func() {
		if r := recover(); r != nil {
			mesh = nil
			err = fmt.Errorf("mesh build panicked: %v", r)
		}
	}()
	return p.buildFunc(pos, blocks, p.store.BlockAt)
}

func (p *Pipeline) removePending(key int64) {
	p.mu.Lock()
	delete(p.pending, key)
	p.mu.Unlock()
}

// recordFailure tracks a failed build. Below the retry cap the chunk stays
// retry-eligible at its original priority; at the cap it is dropped from
// tracking and stays invisible until an external event resets it.
func (p *Pipeline) recordFailure(c *world.Chunk, prio world.BuildPriority, buildErr error) {
	key := c.Pos.Key()
	p.mu.Lock()
	n := p.retries[key] + 1
	p.retries[key] = n
	abandoned := n >= p.maxRetries
	if abandoned {
		delete(p.retries, key)
		delete(p.failed, key)
	} else {
		p.failed[key] = prio
	}
	p.mu.Unlock()

	if abandoned {
		p.log.Warn("mesh build abandoned after retry cap",
			zap.Int("cx", c.Pos.X), zap.Int("cz", c.Pos.Z),
			zap.Int("attempts", n),
			zap.Int("queue_depth", p.QueueDepth()),
			zap.Error(buildErr))
		return
	}
	p.log.Debug("mesh build failed, will retry",
		zap.Int("cx", c.Pos.X), zap.Int("cz", c.Pos.Z),
		zap.Int("attempt", n),
		zap.String("priority", prio.String()),
		zap.Error(buildErr))
}
