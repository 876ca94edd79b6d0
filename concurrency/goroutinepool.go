/******************************************************************************
 *
 *  Description :
 *    A very basic and naive implementation of a goroutine pool used for
 *    background transfers.
 *
 *****************************************************************************/

package concurrency

import "sync"

// Task represents a work task to be run on the specified pool.
type Task func()

// GoRoutinePool runs tasks on a bounded number of goroutines. Workers are started
// lazily and stay alive until Stop is called.
type GoRoutinePool struct {
	// Work queue.
	work chan Task
	// Counter to control the number of already allocated/running goroutines.
	sem chan struct{}
	// Exit knob.
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewGoRoutinePool allocates a new pool with up to `numWorkers` goroutines.
func NewGoRoutinePool(numWorkers int) *GoRoutinePool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &GoRoutinePool{
		work: make(chan Task),
		sem:  make(chan struct{}, numWorkers),
		stop: make(chan struct{}),
	}
}

// Schedule enqueues a closure to run on the pool's goroutines. It blocks until a
// worker is available. Returns false if the pool is stopped.
func (p *GoRoutinePool) Schedule(task Task) bool {
	select {
	case <-p.stop:
		return false
	default:
	}

	select {
	case p.work <- task:
	case p.sem <- struct{}{}:
		p.wg.Add(1)
		go p.worker(task)
	case <-p.stop:
		return false
	}
	return true
}

// Stop signals all workers to exit once their current task completes and waits
// for them to finish. Safe to call more than once.
func (p *GoRoutinePool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
	p.wg.Wait()
}

// Pool worker goroutine.
func (p *GoRoutinePool) worker(task Task) {
	defer func() {
		<-p.sem
		p.wg.Done()
	}()
	for {
		task()
		select {
		case task = <-p.work:
		case <-p.stop:
			return
		}
	}
}
