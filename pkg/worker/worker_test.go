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

package worker

import (
	"bytes"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oscdroid/go-oscbridge/pkg/layers"
	"github.com/oscdroid/go-oscbridge/pkg/reg"
	"github.com/oscdroid/go-oscbridge/pkg/transport"
	"github.com/oscdroid/go-oscbridge/pkg/transport/mock"
)

type result struct {
	attempts int
	err      error
}

func testPolicy() Policy {
	return Policy{
		WriteAttempts:   3,
		TransferTimeout: 10 * time.Millisecond,
		RetryInterval:   time.Millisecond,
	}
}

func startWorker(t *testing.T, tr transport.Transport, opts Options) *Worker {
	t.Helper()
	if opts.Policy == (Policy{}) {
		opts.Policy = testPolicy()
	}
	w := New(tr, opts)
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-w.Ready()
	t.Cleanup(func() {
		w.Stop()
		w.Wait()
	})
	return w
}

func postAndWait(t *testing.T, w *Worker, frame []byte) result {
	t.Helper()
	done := make(chan result, 1)
	w.PostWrite(WriteCommand{
		Frame: frame,
		Completion: func(attempts int, err error) {
			done <- result{attempts, err}
		},
	})
	select {
	case r := <-done:
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("write did not complete")
	}
	return result{}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWriteRetrySucceeds(t *testing.T) {
	tr := mock.NewTransport(mock.NewDevice())
	tr.FailWrites(2)
	w := startWorker(t, tr, Options{})

	r := postAndWait(t, w, layers.EncodeWrite(reg.AddrCh1Ctrl, 0x01))
	if r.err != nil || r.attempts != 3 {
		t.Fatalf("write = %d attempts, %v, want 3, nil", r.attempts, r.err)
	}
	if tr.WriteAttempts() != 3 {
		t.Fatalf("transport saw %d attempts, want 3", tr.WriteAttempts())
	}
	if s := w.Stats(); s.Writes != 1 || s.WriteFailures != 0 || s.WriteAttempts != 3 {
		t.Fatalf("Stats() = %+v", s)
	}
}

func TestWriteRetryExhausted(t *testing.T) {
	tr := mock.NewTransport(mock.NewDevice())
	tr.FailWrites(3)
	w := startWorker(t, tr, Options{})

	r := postAndWait(t, w, layers.EncodeWrite(reg.AddrCh1Ctrl, 0x01))
	var terr *TransferError
	if !errors.As(r.err, &terr) || terr.Attempts != 3 || !errors.Is(r.err, transport.ErrTimeout) {
		t.Fatalf("write error = %v, want TransferError after 3 attempts", r.err)
	}

	// the worker keeps running
	r = postAndWait(t, w, layers.EncodeWrite(reg.AddrCh1Ctrl, 0x01))
	if r.err != nil || r.attempts != 1 {
		t.Fatalf("next write = %d attempts, %v", r.attempts, r.err)
	}
}

func TestWriteSuperseded(t *testing.T) {
	tr := mock.NewTransport(mock.NewDevice())
	w := New(tr, Options{Policy: testPolicy()})

	first := make(chan result, 1)
	w.PostWrite(WriteCommand{
		Frame:      layers.EncodeWrite(reg.AddrCh1Ctrl, 0x01),
		Completion: func(attempts int, err error) { first <- result{attempts, err} },
	})
	w.PostWrite(WriteCommand{Frame: layers.EncodeWrite(reg.AddrCh1Ctrl, 0x00)})

	r := <-first
	if !errors.Is(r.err, ErrSuperseded) || r.attempts != 0 {
		t.Fatalf("superseded write = %d, %v", r.attempts, r.err)
	}
	if w.Stats().Superseded != 1 {
		t.Fatalf("Stats().Superseded = %d, want 1", w.Stats().Superseded)
	}
}

func TestReadServicedAfterWrite(t *testing.T) {
	tr := mock.NewTransport(mock.NewDevice())
	got := make(chan *layers.ResponseLayer, 1)
	w := New(tr, Options{
		Policy: testPolicy(),
		Handler: func(req ReadRequest, resp *layers.ResponseLayer) {
			got <- resp
		},
	})
	// both queued before the first iteration
	w.PostWrite(WriteCommand{Frame: layers.EncodeRead(reg.AddrDeviceRev)})
	w.PostRead(ReadRequest{Addr: reg.AddrDeviceRev, Length: 2})
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { w.Stop(); w.Wait() }()

	select {
	case resp := <-got:
		if v, ok := resp.Value(); !ok || v != mock.Revision {
			t.Fatalf("Value() = %#02x, %v", v, ok)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no response")
	}
	if s := w.Stats(); s.ReadFailures != 0 || s.Reads != 1 {
		t.Fatalf("Stats() = %+v, want one read without failures", s)
	}
}

func TestReadRetriedUntilSuccess(t *testing.T) {
	tr := mock.NewTransport(mock.NewDevice())
	tr.FailReads(2)
	var responses atomic.Int32
	w := startWorker(t, tr, Options{
		Handler: func(req ReadRequest, resp *layers.ResponseLayer) {
			responses.Add(1)
		},
	})
	w.PostWrite(WriteCommand{Frame: layers.EncodeRead(reg.AddrDeviceRev)})
	w.PostRead(ReadRequest{Addr: reg.AddrDeviceRev, Length: 2})

	waitFor(t, "response", func() bool { return responses.Load() == 1 })
	if s := w.Stats(); s.ReadFailures != 2 || s.Reads != 1 {
		t.Fatalf("Stats() = %+v, want 2 failures then 1 read", s)
	}
}

func TestReadAttemptsBounded(t *testing.T) {
	tr := mock.NewTransport(mock.NewDevice())
	tr.FailReads(1000)
	policy := testPolicy()
	policy.ReadAttempts = 2
	w := startWorker(t, tr, Options{Policy: policy})
	w.PostRead(ReadRequest{Addr: reg.AddrDeviceRev, Length: 2})

	waitFor(t, "read to be abandoned", func() bool { return w.Stats().ReadFailures >= 2 })
	time.Sleep(20 * time.Millisecond)
	if s := w.Stats(); s.ReadFailures != 2 {
		t.Fatalf("Stats().ReadFailures = %d, want 2", s.ReadFailures)
	}
}

func TestEmptyReadIsFailure(t *testing.T) {
	w := startWorker(t, emptyReader{}, Options{
		Handler: func(req ReadRequest, resp *layers.ResponseLayer) {
			t.Errorf("handler called for empty read")
		},
	})
	w.PostRead(ReadRequest{Addr: reg.AddrDeviceRev, Length: 2})
	waitFor(t, "failed read", func() bool { return w.Stats().ReadFailures > 0 })
}

func TestGreetingAndFarewell(t *testing.T) {
	tr := mock.NewTransport(mock.NewDevice())
	w := New(tr, Options{
		Policy:   testPolicy(),
		Greeting: layers.EncodeSession(layers.SessionStart),
		Farewell: layers.EncodeSession(layers.SessionStop),
	})
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-w.Ready()
	postAndWait(t, w, layers.EncodeWrite(reg.AddrCh1Ctrl, 0x01))
	w.Stop()
	w.Wait()

	frames := tr.Frames()
	if len(frames) != 3 {
		t.Fatalf("frames = % x", frames)
	}
	if !bytes.Equal(frames[0], []byte{0xfe, 0x00}) || !bytes.Equal(frames[2], []byte{0xff, 0x00}) {
		t.Fatalf("frames = % x, want start first and stop last", frames)
	}
	if tr.Closes() != 1 {
		t.Fatalf("transport closed %d times, want 1", tr.Closes())
	}
	if err := w.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start() error = %v, want ErrAlreadyStarted", err)
	}

	r := postAndWait(t, w, layers.EncodeWrite(reg.AddrCh1Ctrl, 0x00))
	if !errors.Is(r.err, ErrStopped) {
		t.Fatalf("write after stop error = %v, want ErrStopped", r.err)
	}
}

func TestStopsWhenDetached(t *testing.T) {
	tr := mock.NewTransport(mock.NewDevice())
	var attached atomic.Bool
	attached.Store(true)
	w := New(tr, Options{Policy: testPolicy(), Attached: attached.Load})
	w.Start()

	attached.Store(false)
	w.PostRead(ReadRequest{Addr: reg.AddrDeviceRev, Length: 2})
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not exit after detach")
	}
}

func TestWaitWithoutStart(t *testing.T) {
	w := New(mock.NewTransport(mock.NewDevice()), Options{})
	w.Stop()
	w.Wait()
}

type emptyReader struct{}

func (emptyReader) Write(p []byte, timeout time.Duration) (int, error) { return len(p), nil }
func (emptyReader) Read(n int, timeout time.Duration) ([]byte, error) {
	time.Sleep(time.Millisecond)
	return []byte{}, nil
}
func (emptyReader) Close() error { return nil }

func TestNonPositiveReadDropped(t *testing.T) {
	tr := mock.NewTransport(mock.NewDevice())
	w := startWorker(t, tr, Options{
		Handler: func(req ReadRequest, resp *layers.ResponseLayer) {
			t.Errorf("handler called for read of length %d", req.Length)
		},
	})

	for _, n := range []int{0, -3} {
		w.PostRead(ReadRequest{Addr: reg.AddrDeviceRev, Length: n})
		waitFor(t, "read to be dropped", func() bool { return !w.ReadPending() })
	}
	time.Sleep(20 * time.Millisecond)
	if tr.ReadAttempts() != 0 {
		t.Fatalf("transport saw %d reads, want 0", tr.ReadAttempts())
	}
}

func TestReadCommandDroppedWithItsWrite(t *testing.T) {
	w := New(mock.NewTransport(mock.NewDevice()), Options{Policy: testPolicy()})
	acquire := ReadRequest{Addr: reg.AddrCh1Ctrl, Length: 3 + 16}

	if !w.TryPostReadCommand(layers.EncodeRead(reg.AddrCh1Ctrl), acquire) {
		t.Fatalf("TryPostReadCommand() on an idle worker = false")
	}
	if !w.WritePending() || !w.ReadPending() {
		t.Fatalf("read command not queued")
	}
	if w.TryPostReadCommand(layers.EncodeRead(reg.AddrCh2Ctrl), acquire) {
		t.Fatalf("TryPostReadCommand() displaced a pending read")
	}

	// a settings write wins and takes the read with it
	w.PostWrite(WriteCommand{Frame: layers.EncodeWrite(reg.AddrCh1Ctrl, 0x03)})
	if w.ReadPending() {
		t.Fatalf("read survived its superseded command")
	}
	if w.TryPostReadCommand(layers.EncodeRead(reg.AddrCh1Ctrl), acquire) {
		t.Fatalf("TryPostReadCommand() displaced a queued write")
	}
	if s := w.Stats(); s.Superseded != 1 {
		t.Fatalf("Stats().Superseded = %d, want 1", s.Superseded)
	}
}

// A write posted while a slow read holds the worker is transmitted once
// the read returns, and only ticks that find the worker idle acquire.
func TestSlowReadKeepsQueuedWrite(t *testing.T) {
	tr := mock.NewTransport(mock.NewDevice())
	tr.SlowReads(50 * time.Millisecond)
	policy := testPolicy()
	policy.TransferTimeout = 100 * time.Millisecond
	w := startWorker(t, tr, Options{Policy: policy})

	acquire := ReadRequest{Addr: reg.AddrCh1Ctrl, Length: 3 + 16}
	if !w.TryPostReadCommand(layers.EncodeRead(reg.AddrCh1Ctrl), acquire) {
		t.Fatalf("TryPostReadCommand() on an idle worker = false")
	}
	waitFor(t, "read command to be taken", func() bool { return !w.WritePending() })

	done := make(chan result, 1)
	w.PostWrite(WriteCommand{
		Frame:      layers.EncodeWrite(reg.AddrCh1Ctrl, 0x03),
		Completion: func(attempts int, err error) { done <- result{attempts, err} },
	})
	for i := 0; i < 5; i++ {
		w.TryPostReadCommand(layers.EncodeRead(reg.AddrCh1Ctrl), acquire)
		time.Sleep(10 * time.Millisecond)
	}
	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("settings write error = %v", r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("settings write did not complete")
	}
	if w.Stats().Superseded != 0 {
		t.Fatalf("Stats().Superseded = %d, want 0", w.Stats().Superseded)
	}
}
