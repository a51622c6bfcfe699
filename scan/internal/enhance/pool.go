package enhance

import (
	"context"
	"image"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Job is one frame queued for preprocessing.
type Job struct {
	Seq int64
	Img image.Image
}

// Result is a preprocessed frame.
type Result struct {
	Seq int64
	Img *image.RGBA
}

// Pool preprocesses frames on a bounded set of workers. Submitting is
// non-blocking: when all workers are busy and the queue is full the frame
// is dropped, since the camera will deliver another one shortly.
type Pool struct {
	jobs    chan Job
	results chan Result
	g       *errgroup.Group
	cancel  context.CancelFunc
}

// NewPool starts workers goroutines. workers <= 0 means GOMAXPROCS.
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	p := &Pool{
		jobs:    make(chan Job, workers*2),
		results: make(chan Result, workers*2),
		g:       g,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case job, ok := <-p.jobs:
					if !ok {
						return nil
					}
					out := Apply(job.Img)
					select {
					case p.results <- Result{Seq: job.Seq, Img: out}:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
		})
	}
	return p
}

// Submit queues a frame. Reports false when the queue is full and the
// frame was dropped.
func (p *Pool) Submit(j Job) bool {
	select {
	case p.jobs <- j:
		return true
	default:
		return false
	}
}

// Results delivers preprocessed frames. The channel closes after Close.
func (p *Pool) Results() <-chan Result { return p.results }

// Close stops accepting jobs, drains the workers and closes Results.
func (p *Pool) Close() {
	close(p.jobs)
	p.g.Wait()
	p.cancel()
	close(p.results)
}
