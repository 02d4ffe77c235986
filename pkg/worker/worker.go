/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

// Package worker owns an open transport and performs every transfer on
// it from a single goroutine.
package worker

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oscdroid/go-oscbridge/pkg/config"
	"github.com/oscdroid/go-oscbridge/pkg/layers"
	"github.com/oscdroid/go-oscbridge/pkg/log"
	"github.com/oscdroid/go-oscbridge/pkg/reg"
	"github.com/oscdroid/go-oscbridge/pkg/transport"
)

var (
	ErrSuperseded     = errors.New("superseded by a newer write")
	ErrStopped        = errors.New("worker stopped")
	ErrAlreadyStarted = errors.New("worker can only be started once")
)

// TransferError is returned when a transfer failed on every attempt
type TransferError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %s", e.Op, e.Attempts, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// Policy bounds transfers. ReadAttempts equal to 0 keeps a pending read
// until it succeeds.
type Policy struct {
	WriteAttempts   int
	ReadAttempts    int
	TransferTimeout time.Duration
	RetryInterval   time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		WriteAttempts:   config.DefaultWriteAttempts,
		ReadAttempts:    config.DefaultReadAttempts,
		TransferTimeout: config.DefaultTransferTimeout * time.Millisecond,
		RetryInterval:   config.DefaultRetryInterval * time.Millisecond,
	}
}

func NewPolicy(cfg *config.WorkerConfig) Policy {
	return Policy{
		WriteAttempts:   cfg.WriteAttempts,
		ReadAttempts:    cfg.ReadAttempts,
		TransferTimeout: cfg.TransferTimeout(),
		RetryInterval:   cfg.RetryInterval(),
	}
}

// Completion reports the outcome of a write
type Completion func(attempts int, err error)

type WriteCommand struct {
	Frame      []byte
	Completion Completion
}

// ReadRequest asks for one response of Length bytes to a read of Addr
type ReadRequest struct {
	Addr   reg.Addr
	Length int
}

// Handler receives every decoded response. It runs on the worker
// goroutine and must not block on the worker's owner.
type Handler func(req ReadRequest, resp *layers.ResponseLayer)

type Options struct {
	Name    string
	Policy  Policy
	Handler Handler
	// Greeting is written once before any posted write
	Greeting []byte
	// Farewell is written once, best effort, before the transport is closed
	Farewell []byte
	// Attached stops the worker once it returns false
	Attached func() bool
}

type Stats struct {
	Writes        uint64 `json:"writes"`
	WriteAttempts uint64 `json:"writeAttempts"`
	WriteFailures uint64 `json:"writeFailures"`
	Superseded    uint64 `json:"superseded"`
	Reads         uint64 `json:"reads"`
	ReadFailures  uint64 `json:"readFailures"`
	Malformed     uint64 `json:"malformed"`
}

type counters struct {
	writes        atomic.Uint64
	writeAttempts atomic.Uint64
	writeFailures atomic.Uint64
	superseded    atomic.Uint64
	reads         atomic.Uint64
	readFailures  atomic.Uint64
	malformed     atomic.Uint64
}

type Worker struct {
	opts      Options
	transport transport.Transport
	wake      chan struct{}
	writes    *Cell[WriteCommand]
	reads     *Cell[ReadRequest]
	stop      chan struct{}
	stopOnce  sync.Once
	ready     chan struct{}
	done      chan struct{}
	started   atomic.Bool
	exiting   atomic.Bool
	stats     counters

	// owned by the worker goroutine
	failedRead *ReadRequest
	readStreak int
}

// New creates a worker that takes ownership of t
func New(t transport.Transport, opts Options) *Worker {
	if opts.Name == "" {
		opts.Name = "worker"
	}
	if opts.Policy.WriteAttempts <= 0 {
		opts.Policy.WriteAttempts = 1
	}
	if opts.Policy.TransferTimeout <= 0 {
		opts.Policy.TransferTimeout = DefaultPolicy().TransferTimeout
	}
	wake := make(chan struct{}, 1)
	return &Worker{
		opts:      opts,
		transport: t,
		wake:      wake,
		writes:    NewCell[WriteCommand](wake),
		reads:     NewCell[ReadRequest](wake),
		stop:      make(chan struct{}),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the worker goroutine. A worker runs once; stopped
// workers are replaced, not restarted.
func (w *Worker) Start() error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	go w.run()
	return nil
}

// Ready is closed once the worker goroutine is running
func (w *Worker) Ready() <-chan struct{} {
	return w.ready
}

// Done is closed after the worker released the transport
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// PostWrite replaces any write that has not been taken yet
func (w *Worker) PostWrite(cmd WriteCommand) {
	if old, displaced := w.writes.Post(cmd); displaced {
		w.stats.superseded.Add(1)
		log.Debug("%s: write % x superseded", w.opts.Name, old.Frame)
		if old.Completion != nil {
			old.Completion(0, ErrSuperseded)
		}
	}
	if w.exiting.Load() {
		w.drain()
	}
}

// PostRead replaces any pending read
func (w *Worker) PostRead(req ReadRequest) {
	w.reads.Post(req)
}

// PostReadCommand writes frame and then expects the response described by
// req. The read is dropped if the frame is superseded or never delivered.
func (w *Worker) PostReadCommand(frame []byte, req ReadRequest) {
	rc := &readCommand{w: w, req: &req}
	w.PostWrite(WriteCommand{Frame: frame, Completion: rc.complete})
	rc.store()
}

// TryPostReadCommand is PostReadCommand that gives up, returning false,
// while a write is queued or a read is outstanding
func (w *Worker) TryPostReadCommand(frame []byte, req ReadRequest) bool {
	if w.exiting.Load() || w.ReadPending() {
		return false
	}
	rc := &readCommand{w: w, req: &req}
	if !w.writes.PostIfEmpty(WriteCommand{Frame: frame, Completion: rc.complete}) {
		return false
	}
	rc.store()
	return true
}

// readCommand ties a pending read to the write that triggers it
type readCommand struct {
	w      *Worker
	req    *ReadRequest
	failed atomic.Bool
}

func (rc *readCommand) complete(attempts int, err error) {
	if err == nil {
		return
	}
	rc.failed.Store(true)
	if rc.w.reads.Clear(rc.req) {
		log.Debug("%s: read of %s dropped: %s", rc.w.opts.Name, rc.req.Addr, err)
	}
}

// store publishes the read. A command that already failed clears it again.
func (rc *readCommand) store() {
	rc.w.reads.put(rc.req)
	if rc.failed.Load() {
		rc.w.reads.Clear(rc.req)
	}
}

// WritePending reports a write that the worker has not taken yet
func (w *Worker) WritePending() bool {
	_, ok := w.writes.Peek()
	return ok
}

// ReadPending reports a read that is waiting for its response
func (w *Worker) ReadPending() bool {
	_, ok := w.reads.Peek()
	return ok
}

// Stop asks the worker to exit after the transfer in progress
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
}

// Wait blocks until the worker exited. It returns at once for a worker
// that was never started.
func (w *Worker) Wait() {
	if !w.started.Load() {
		return
	}
	<-w.done
}

func (w *Worker) Stats() Stats {
	return Stats{
		Writes:        w.stats.writes.Load(),
		WriteAttempts: w.stats.writeAttempts.Load(),
		WriteFailures: w.stats.writeFailures.Load(),
		Superseded:    w.stats.superseded.Load(),
		Reads:         w.stats.reads.Load(),
		ReadFailures:  w.stats.readFailures.Load(),
		Malformed:     w.stats.malformed.Load(),
	}
}

func (w *Worker) stopping() bool {
	select {
	case <-w.stop:
		return true
	default:
	}
	return w.opts.Attached != nil && !w.opts.Attached()
}

// pause waits d or until Stop, reporting whether to go on
func (w *Worker) pause(d time.Duration) bool {
	if d <= 0 {
		return !w.stopping()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-w.stop:
		return false
	case <-timer.C:
		return true
	}
}

func (w *Worker) run() {
	defer close(w.done)
	defer w.release()

	close(w.ready)
	log.Debug("%s: started", w.opts.Name)

	if len(w.opts.Greeting) > 0 {
		w.transmit(WriteCommand{Frame: w.opts.Greeting})
	}

	for {
		if w.stopping() {
			return
		}
		busy := false
		// writes go first so a read command and its response read can
		// be serviced in the same iteration
		if cmd, ok := w.writes.Take(); ok {
			w.transmit(*cmd)
			busy = true
		}
		if req, ok := w.reads.Peek(); ok {
			busy = true
			if req.Length <= 0 {
				if w.reads.Clear(req) {
					log.Warning("%s: dropping read of %s with length %d", w.opts.Name, req.Addr, req.Length)
				}
				continue
			}
			if !w.receive(req) && !w.pause(w.opts.Policy.RetryInterval) {
				return
			}
		}
		if busy {
			continue
		}
		select {
		case <-w.stop:
			return
		case <-w.wake:
		}
	}
}

func (w *Worker) transmit(cmd WriteCommand) {
	var err error
	attempts := 0
	for attempts < w.opts.Policy.WriteAttempts {
		if attempts > 0 && w.stopping() {
			break
		}
		attempts++
		w.stats.writeAttempts.Add(1)
		var n int
		n, err = w.transport.Write(cmd.Frame, w.opts.Policy.TransferTimeout)
		if err == nil && n != len(cmd.Frame) {
			err = io.ErrShortWrite
		}
		if err == nil {
			break
		}
		log.Debug("%s: write attempt %d/%d of % x: %s", w.opts.Name, attempts, w.opts.Policy.WriteAttempts, cmd.Frame, err)
	}
	if err != nil {
		err = &TransferError{Op: "write", Attempts: attempts, Err: err}
		log.Error("%s: %s", w.opts.Name, err)
		w.stats.writeFailures.Add(1)
	} else {
		w.stats.writes.Add(1)
	}
	if cmd.Completion != nil {
		cmd.Completion(attempts, err)
	}
}

// receive performs one read transfer for req and reports success
func (w *Worker) receive(req *ReadRequest) bool {
	data, err := w.transport.Read(req.Length, w.opts.Policy.TransferTimeout)
	if err == nil && len(data) == 0 {
		err = transport.ErrTimeout
	}
	if err != nil {
		w.stats.readFailures.Add(1)
		if w.failedRead != req {
			w.failedRead = req
			w.readStreak = 0
		}
		w.readStreak++
		log.Debug("%s: read attempt %d of %d bytes at %s: %s", w.opts.Name, w.readStreak, req.Length, req.Addr, err)
		if max := w.opts.Policy.ReadAttempts; max > 0 && w.readStreak >= max {
			if w.reads.Clear(req) {
				log.Error("%s: %s", w.opts.Name, &TransferError{Op: "read", Attempts: w.readStreak, Err: err})
			}
			w.failedRead = nil
		}
		return false
	}

	w.failedRead = nil
	w.readStreak = 0
	w.reads.Clear(req)
	w.stats.reads.Add(1)

	resp, err := layers.DecodeResponse(data)
	if err != nil {
		w.stats.malformed.Add(1)
		log.Warning("%s: dropping response to %s: %s", w.opts.Name, req.Addr, err)
		return true
	}
	if w.opts.Handler != nil {
		w.opts.Handler(*req, resp)
	}
	return true
}

// drain completes writes that will never be transmitted
func (w *Worker) drain() {
	if cmd, ok := w.writes.Take(); ok && cmd.Completion != nil {
		cmd.Completion(0, ErrStopped)
	}
}

func (w *Worker) release() {
	w.exiting.Store(true)
	w.drain()
	if len(w.opts.Farewell) > 0 {
		if _, err := w.transport.Write(w.opts.Farewell, w.opts.Policy.TransferTimeout); err != nil {
			log.Debug("%s: shutdown command not delivered: %s", w.opts.Name, err)
		}
	}
	if err := w.transport.Close(); err != nil {
		log.Warning("%s: closing transport: %s", w.opts.Name, err)
	}
	log.Debug("%s: stopped", w.opts.Name)
}
