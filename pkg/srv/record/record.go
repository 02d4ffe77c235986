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

// Package record stores completed acquisitions in per channel files
package record

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/oscdroid/go-oscbridge/pkg/buffer"
	"github.com/oscdroid/go-oscbridge/pkg/log"
)

const (
	QueueSize = 64
)

var ErrNotRecording = errors.New("not recording")

// Persist names the files of a recording
type Persist struct {
	Dir        string `json:"dir"`
	FilePrefix string `json:"filePrefix"`
}

// Filename is <dir>/<prefix>_ch<N>.dat
func (p Persist) Filename(ch int) string {
	return filepath.Join(p.Dir, fmt.Sprintf("%s_ch%d.dat", p.FilePrefix, ch))
}

type item struct {
	ch       int
	snapshot *buffer.Snapshot
}

type Recorder struct {
	mu      sync.Mutex
	persist *Persist
	writers map[int]*Writer
	queue   chan item
}

func NewRecorder() *Recorder {
	return &Recorder{
		writers: make(map[int]*Writer),
		queue:   make(chan item, QueueSize),
	}
}

// Start opens a new recording, finishing the current one
func (r *Recorder) Start(p Persist) error {
	if p.FilePrefix == "" {
		return errors.New("file prefix must not be empty")
	}
	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked()
	r.persist = &p
	log.Info("Recording to %s", filepath.Join(p.Dir, p.FilePrefix+"_ch*.dat"))
	return nil
}

// Stop finishes the current recording
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.persist == nil {
		return ErrNotRecording
	}
	r.flushLocked()
	r.persist = nil
	log.Info("Recording stopped")
	return nil
}

func (r *Recorder) Recording() (Persist, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.persist == nil {
		return Persist{}, false
	}
	return *r.persist, true
}

func (r *Recorder) flushLocked() {
	for ch, w := range r.writers {
		w.Flush()
		delete(r.writers, ch)
	}
}

// Handle queues an acquisition. It does not block; acquisitions are
// dropped while the writer falls behind.
func (r *Recorder) Handle(ch int, s *buffer.Snapshot) {
	if _, ok := r.Recording(); !ok {
		return
	}
	select {
	case r.queue <- item{ch: ch, snapshot: s}:
	default:
		log.Warning("Recorder queue full, dropping acquisition %d of channel %d", s.Generation(), ch)
	}
}

func (r *Recorder) write(it item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.persist == nil {
		return nil
	}
	w, ok := r.writers[it.ch]
	if !ok {
		var err error
		w, err = NewWriter(r.persist.Filename(it.ch))
		if err != nil {
			return err
		}
		r.writers[it.ch] = w
	}
	return w.WriteSnapshot(it.snapshot)
}

// Run writes queued acquisitions until ctx is done, then flushes all files
func (r *Recorder) Run(ctx context.Context) error {
	defer func() {
		r.mu.Lock()
		r.flushLocked()
		r.mu.Unlock()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case it := <-r.queue:
			if err := r.write(it); err != nil {
				log.Error("Error while writing to file: %s", err)
			}
		}
	}
}
