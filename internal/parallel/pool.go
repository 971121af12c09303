// Package parallel executes compute dispatches on a pool of goroutines.
//
// The software device emulates a GPU: a dispatch is a grid of thread
// groups, groups are independent, and the dispatch completes before the
// next command in the stream starts. [Pool.Dispatch] provides exactly that
// contract on the CPU.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gogpu/fsr/gpucore"
)

// Pool is a fixed set of worker goroutines.
//
// Each worker owns a queue and steals from its neighbours when the queue is
// empty, which keeps all workers busy when groups near image borders finish
// early.
//
// Thread safety: Pool is safe for concurrent use.
type Pool struct {
	workers int
	queues  []chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := &Pool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan func(), max(workers*4, 8))
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	own := p.queues[id]

	for {
		select {
		case <-p.done:
			drain(own)
			return
		case fn := <-own:
			fn()
			continue
		default:
		}

		if fn := p.steal(id); fn != nil {
			fn()
			continue
		}

		select {
		case <-p.done:
			drain(own)
			return
		case fn := <-own:
			fn()
		}
	}
}

func drain(q chan func()) {
	for {
		select {
		case fn := <-q:
			fn()
		default:
			return
		}
	}
}

func (p *Pool) steal(id int) func() {
	for i := 1; i < p.workers; i++ {
		select {
		case fn := <-p.queues[(id+i)%p.workers]:
			return fn
		default:
		}
	}
	return nil
}

// Run executes all work items and waits for them to finish.
// After Close, work runs on the calling goroutine.
func (p *Pool) Run(work []func()) {
	if len(work) == 0 {
		return
	}
	if !p.running.Load() {
		for _, fn := range work {
			fn()
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(work))
	for i, fn := range work {
		item := func() {
			defer wg.Done()
			fn()
		}
		select {
		case p.queues[i%p.workers] <- item:
		case <-p.done:
			item()
		}
	}
	wg.Wait()
}

// Dispatch invokes fn once per thread group of the grid and returns when
// every group has finished. Groups along X are batched into one work item
// per (y, z) row.
func (p *Pool) Dispatch(groups gpucore.Groups, fn func(x, y, z uint32)) {
	if groups.Total() == 0 {
		return
	}
	work := make([]func(), 0, int(groups.Y)*int(groups.Z))
	for z := uint32(0); z < groups.Z; z++ {
		for y := uint32(0); y < groups.Y; y++ {
			work = append(work, func() {
				for x := uint32(0); x < groups.X; x++ {
					fn(x, y, z)
				}
			})
		}
	}
	p.Run(work)
}

// Close stops the workers after queued work completes.
// Close is safe to call multiple times.
func (p *Pool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *Pool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool still accepts work.
func (p *Pool) IsRunning() bool {
	return p.running.Load()
}
