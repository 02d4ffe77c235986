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

package control

import (
	"sync"

	"github.com/oscdroid/go-oscbridge/pkg/buffer"
)

// Hub hands the newest acquisition of a channel to its subscribers. A
// slow subscriber only ever sees the latest snapshot.
type Hub struct {
	mu   sync.Mutex
	subs map[chan *buffer.Snapshot]int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan *buffer.Snapshot]int)}
}

func (h *Hub) Subscribe(ch int) <-chan *buffer.Snapshot {
	sub := make(chan *buffer.Snapshot, 1)
	h.mu.Lock()
	h.subs[sub] = ch
	h.mu.Unlock()
	return sub
}

func (h *Hub) Unsubscribe(sub <-chan *buffer.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.subs {
		if c == sub {
			delete(h.subs, c)
			return
		}
	}
}

func (h *Hub) Notify(ch int, s *buffer.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c, want := range h.subs {
		if want != ch {
			continue
		}
		// replace an unread snapshot
		select {
		case <-c:
		default:
		}
		select {
		case c <- s:
		default:
		}
	}
}

func (h *Hub) subscribers(ch int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, want := range h.subs {
		if want == ch {
			n++
		}
	}
	return n
}
