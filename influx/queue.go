package influx

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/smartmail/helpers"
	"github.com/temoto/smartmail/log2"
	"github.com/temoto/spq"
)

type PointWriter interface {
	WritePoint(ctx context.Context, p *Point) error
}

// Queue contract:
// - Write blocks at most for disk write, returns only storage errors
// - points are delivered at least once, in order, retried with backoff until Close()
// - failed point stays at queue head, later points wait behind it
// - undecodable queue items are dropped with error log
type Queue struct {
	alive   *alive.Alive
	backoff helpers.Backoff
	log     *log2.Log
	q       *spq.Queue
	timeout time.Duration
	w       PointWriter
}

type QueueOptions struct {
	// spq.OnlyForTesting keeps queue in memory
	Path     string
	Writer   PointWriter
	Timeout  time.Duration
	RetryMin time.Duration
	RetryMax time.Duration
	Log      *log2.Log
}

func OpenQueue(opt QueueOptions) (*Queue, error) {
	if opt.Writer == nil {
		return nil, errors.NotValidf("code error influx.QueueOptions.Writer=nil")
	}
	q, err := spq.Open(opt.Path)
	if err != nil {
		return nil, errors.Annotatef(err, "influx queue path=%s", opt.Path)
	}
	if opt.Timeout == 0 {
		opt.Timeout = DefaultTimeout
	}
	if opt.RetryMin == 0 {
		opt.RetryMin = 1 * time.Second
	}
	if opt.RetryMax == 0 {
		opt.RetryMax = 5 * time.Minute
	}
	self := &Queue{
		alive: alive.NewAlive(),
		backoff: helpers.Backoff{
			Min: opt.RetryMin,
			Max: opt.RetryMax,
			K:   2,
		},
		log:     opt.Log,
		q:       q,
		timeout: opt.Timeout,
		w:       opt.Writer,
	}
	self.alive.Add(1)
	go self.worker()
	return self, nil
}

func (self *Queue) Write(ctx context.Context, name string, tags string, value float64) error {
	p := &Point{Name: name, Tags: tags, Value: value, Time: time.Now().UnixNano()}
	return errors.Annotatef(self.q.MarshalPush(p), "influx queue push %s", name)
}

func (self *Queue) Close() error {
	self.alive.Stop()
	err := self.q.Close()
	self.alive.Wait()
	return err
}

func (self *Queue) worker() {
	defer self.alive.Done()
	stopch := self.alive.StopChan()
	for {
		box, err := self.q.Peek()
		switch err {
		case nil:
			// success path
			del := self.handle(&box)
			if del {
				err = self.q.Delete(box)
				if err != nil && err != spq.ErrClosed {
					self.log.Errorf("influx queue Delete b=%x err=%v", box.Bytes(), err)
				}
				continue
			}
			// box stays at head, Peek returns it again after delay
			select {
			case <-time.After(self.backoff.DelayBefore()):
			case <-stopch:
				return
			}

		case spq.ErrClosed:
			if self.alive.IsRunning() {
				self.log.Errorf("CRITICAL influx queue closed unexpectedly")
			}
			return

		default:
			self.log.Errorf("CRITICAL influx queue err=%v", err)
			select {
			case <-time.After(self.backoff.DelayAfter(false)):
			case <-stopch:
				return
			}
		}
	}
}

// handle returns true when item should be removed from queue.
func (self *Queue) handle(box *spq.Box) bool {
	var p Point
	if err := box.Unmarshal(&p); err != nil {
		self.log.Errorf("influx queue drop b=%x err=%v", box.Bytes(), err)
		return true // retry will not help
	}
	ctx, cancel := context.WithTimeout(context.Background(), self.timeout)
	defer cancel()
	err := self.w.WritePoint(ctx, &p)
	self.backoff.Update(err == nil)
	if err != nil {
		self.log.Errorf("influx queue retry %s err=%v", p.Name, err)
		return false
	}
	return true
}
