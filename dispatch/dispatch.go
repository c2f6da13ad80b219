// Package dispatch implements the Dispatcher/Workers: a pool
// of N persistent TCP connections, each pulling ready TransferTasks off the
// shared queue and streaming them with the wire protocol. Grounded on the
// send.Sender worker-pool shape (WaitGroup-fanned goroutines over
// a start() helper, retry-with-backoff on failed sends), simplified since
// this protocol has no bin-packing across files to manage.
package dispatch

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harsh-quidich/camxfer"
	"github.com/harsh-quidich/camxfer/log"
	"github.com/harsh-quidich/camxfer/payload"
	"github.com/harsh-quidich/camxfer/queue"
)

// Dispatcher owns the pool of Workers and the shared queue they drain.
// Completion is published over done rather than a callback, since Workers
// run on their own goroutines and done's receiver (the Scanner) is the
// only one allowed to mutate its in_flight/completed bookkeeping.
type Dispatcher struct {
	conf  *camxfer.SendConf
	q     *queue.Queue
	stats *camxfer.Stats
	done  chan<- string // success or terminal failure, one send per task
}

// New creates a Dispatcher. done receives one name per task, success or
// terminal failure, so the Scanner can drop it from in_flight; Run closes
// done once every Worker has exited.
func New(conf *camxfer.SendConf, q *queue.Queue, stats *camxfer.Stats, done chan<- string) *Dispatcher {
	return &Dispatcher{conf: conf, q: q, stats: stats, done: done}
}

// Run starts conf.Conns Workers and blocks until the queue is closed and
// drained and every Worker has exited, then closes done.
func (d *Dispatcher) Run() {
	var wg sync.WaitGroup
	wg.Add(d.conf.Conns)
	for i := 0; i < d.conf.Conns; i++ {
		id := i
		go func() {
			defer wg.Done()
			w := &worker{id: id, conf: d.conf, q: d.q, stats: d.stats, done: d.done}
			w.run()
		}()
	}
	wg.Wait()
	close(d.done)
	log.Info("DISPATCH all workers exited")
}

// worker owns one persistent socket across its lifetime; sockets are
// never shared across workers.
type worker struct {
	id    int
	conf  *camxfer.SendConf
	q     *queue.Queue
	stats *camxfer.Stats
	done  chan<- string

	conn  net.Conn
	state camxfer.ConnectionState
}

func (w *worker) run() {
	for {
		task, ok := w.q.Pop()
		if !ok {
			if w.conn != nil {
				w.conn.Close()
			}
			return
		}
		w.handle(task)
	}
}

func (w *worker) handle(task camxfer.TransferTask) {
	if err := w.ensureConn(); err != nil {
		w.retryOrFail(task, err)
		return
	}
	if err := w.sendOne(task); err != nil {
		w.state.SetError(err)
		w.conn.Close()
		w.conn = nil
		w.retryOrFail(task, err)
		return
	}
	w.stats.AddSent(task.Entry.SizeAtProbe, time.Since(task.Entry.FirstSeen))
	w.done <- task.Entry.Name
	if w.conf.Verbose {
		log.Info(fmt.Sprintf("DISPATCH worker %d sent %s", w.id, task.Entry.Name))
	}
}

// retryOrFail re-enqueues task with backoff, or surfaces a terminal failure
// once the queue's attempt cap (its maxAttempts) is exceeded.
func (w *worker) retryOrFail(task camxfer.TransferTask, err error) {
	log.Error(fmt.Sprintf("DISPATCH worker %d send failed for %s: %s", w.id, task.Entry.Name, err.Error()))
	attempt := task.Attempts + 1
	time.Sleep(queue.Backoff(attempt))
	if w.q.Retry(task) {
		return
	}
	log.Error("DISPATCH terminal failure:", task.Entry.Name)
	w.stats.AddFailed(task.Entry.Name, err)
	w.done <- task.Entry.Name
}

func (w *worker) ensureConn() error {
	if w.conn != nil {
		return nil
	}
	addr := fmt.Sprintf("%s:%d", w.conf.Host, w.conf.Port)
	conn, err := net.DialTimeout("tcp", addr, w.conf.ConnectTimeoutMs.Duration)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}
	w.conn = conn
	w.state = camxfer.ConnectionState{PeerAddr: addr}
	return nil
}

// sendOne streams one file: wire name is the destination's basename, wire
// dest is its directory, letting the receiver rebuild DestinationPath as
// filepath.Join(dest, name). The with-destination protocol is used when
// dest is non-empty; a flat destination (empty dest) goes out as a legacy
// frame.
func (w *worker) sendOne(task camxfer.TransferTask) error {
	f, err := os.Open(task.Entry.AbsolutePath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", task.Entry.AbsolutePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", task.Entry.AbsolutePath, err)
	}

	name := filepath.Base(task.DestinationPath)
	dest := strings.TrimSuffix(filepath.Dir(task.DestinationPath), "/")
	if dest == "." {
		dest = ""
	}

	enc := payload.NewEncoder(w.conn, w.conf.ChunkBytes, w.conf.WriteTimeoutMs.Duration)
	if err := enc.WriteFrame(name, dest, info.Size(), f); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	w.state.AddSent(info.Size())
	return nil
}
