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

// Package buffer keeps the latest acquisition of a channel and selects
// display windows out of it.
package buffer

import (
	"sync/atomic"
	"time"
)

const (
	DefaultCapacity = 1024
)

// Snapshot is one complete acquisition. It is never modified after
// creation, so readers may hold it while a newer one is published.
type Snapshot struct {
	samples    []uint8
	trigger    int
	head       int
	generation uint64
	acquired   time.Time
}

func (s *Snapshot) Len() int {
	return len(s.samples)
}

func (s *Snapshot) At(i int) uint8 {
	return s.samples[i]
}

// Trigger is the trigger address, always inside [0, Len())
func (s *Snapshot) Trigger() int {
	return s.trigger
}

// Head is the index one past the newest sample
func (s *Snapshot) Head() int {
	return s.head
}

// Generation increases by one with every published snapshot of a ring
func (s *Snapshot) Generation() uint64 {
	return s.generation
}

func (s *Snapshot) Acquired() time.Time {
	return s.acquired
}

// Samples returns a copy of the samples
func (s *Snapshot) Samples() []uint8 {
	out := make([]uint8, len(s.samples))
	copy(out, s.samples)
	return out
}

// Ring holds the current snapshot of a channel. Samples and trigger
// address are published together so a reader never sees one without
// the other.
type Ring struct {
	capacity   int
	current    atomic.Pointer[Snapshot]
	generation atomic.Uint64
}

// NewRing creates a ring of zero samples with the trigger in the middle
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	r := &Ring{capacity: capacity}
	r.Reset()
	return r
}

func (r *Ring) Capacity() int {
	return r.capacity
}

// Load returns the current snapshot
func (r *Ring) Load() *Snapshot {
	return r.current.Load()
}

// Replace publishes a new acquisition. At most Capacity samples are kept;
// a shorter acquisition leaves the tail zero filled. The trigger address
// is reduced modulo Capacity.
func (r *Ring) Replace(samples []uint8, trigger int) *Snapshot {
	buf := make([]uint8, r.capacity)
	n := copy(buf, samples)
	trigger %= r.capacity
	if trigger < 0 {
		trigger += r.capacity
	}
	s := &Snapshot{
		samples:    buf,
		trigger:    trigger,
		head:       n % r.capacity,
		generation: r.generation.Add(1),
		acquired:   time.Now(),
	}
	r.current.Store(s)
	return s
}

// Reset publishes the initial empty snapshot and restarts generations
func (r *Ring) Reset() {
	r.generation.Store(0)
	r.current.Store(&Snapshot{
		samples:  make([]uint8, r.capacity),
		trigger:  r.capacity / 2,
		acquired: time.Now(),
	})
}
