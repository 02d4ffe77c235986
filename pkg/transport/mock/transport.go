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

package mock

import (
	"sync"
	"time"

	"github.com/oscdroid/go-oscbridge/pkg/log"
	"github.com/oscdroid/go-oscbridge/pkg/transport"
)

// idle read wait, bounded by the caller's timeout
const idleRead = 2 * time.Millisecond

// Transport feeds frames to an emulated Device. Failures can be injected
// per direction.
type Transport struct {
	mu            sync.Mutex
	device        *Device
	writeFailures int
	readFailures  int
	writeAttempts int
	readAttempts  int
	readDelay     time.Duration
	frames        [][]byte
	detached      bool
	closes        int
}

var _ transport.Transport = &Transport{}

func NewTransport(d *Device) *Transport {
	return &Transport{device: d}
}

func (t *Transport) Device() *Device {
	return t.device
}

// FailWrites makes the next n writes time out
func (t *Transport) FailWrites(n int) {
	t.mu.Lock()
	t.writeFailures = n
	t.mu.Unlock()
}

// FailReads makes the next n reads time out
func (t *Transport) FailReads(n int) {
	t.mu.Lock()
	t.readFailures = n
	t.mu.Unlock()
}

// SlowReads delays every read by d, as a device busy sampling would
func (t *Transport) SlowReads(d time.Duration) {
	t.mu.Lock()
	t.readDelay = d
	t.mu.Unlock()
}

func (t *Transport) detach() {
	t.mu.Lock()
	t.detached = true
	t.mu.Unlock()
}

func (t *Transport) WriteAttempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeAttempts
}

func (t *Transport) ReadAttempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readAttempts
}

// Frames returns the frames written successfully
func (t *Transport) Frames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.frames...)
}

// Closes counts Close calls
func (t *Transport) Closes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

func (t *Transport) Write(p []byte, timeout time.Duration) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeAttempts++
	switch {
	case t.closes > 0:
		return 0, transport.ErrClosed
	case t.detached:
		return 0, transport.ErrNoDevice
	case t.writeFailures > 0:
		t.writeFailures--
		return 0, transport.ErrTimeout
	}
	frame := append([]byte(nil), p...)
	t.frames = append(t.frames, frame)
	if err := t.device.Handle(frame); err != nil {
		log.Debug("Mock device rejected frame % x: %s", frame, err)
	}
	return len(p), nil
}

func (t *Transport) Read(n int, timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	delay := t.readDelay
	t.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	t.mu.Lock()
	t.readAttempts++
	switch {
	case t.closes > 0:
		t.mu.Unlock()
		return nil, transport.ErrClosed
	case t.detached:
		t.mu.Unlock()
		return nil, transport.ErrNoDevice
	case t.readFailures > 0:
		t.readFailures--
		t.mu.Unlock()
		return nil, transport.ErrTimeout
	}
	data := t.device.Respond(n)
	t.mu.Unlock()

	if data == nil {
		wait := idleRead
		if timeout < wait {
			wait = timeout
		}
		time.Sleep(wait)
		return nil, transport.ErrTimeout
	}
	return data, nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	return nil
}
