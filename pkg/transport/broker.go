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

package transport

import (
	"sync"

	"github.com/oscdroid/go-oscbridge/pkg/log"
)

// BaseBroker implements subscriptions and permission bookkeeping for
// the drivers.
type BaseBroker struct {
	mu          sync.RWMutex
	subscribers map[chan<- Event]struct{}
	granted     map[string]bool
}

func (b *BaseBroker) Subscribe(ch chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers == nil {
		b.subscribers = make(map[chan<- Event]struct{})
	}
	b.subscribers[ch] = struct{}{}
}

func (b *BaseBroker) Unsubscribe(ch chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, ch)
}

// Subscribers returns the number of registered channels
func (b *BaseBroker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Publish delivers ev to every subscriber without blocking. A subscriber
// whose channel is full misses the event.
func (b *BaseBroker) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			log.Warning("Dropping %s event for %s: subscriber is not keeping up", ev.Kind, ev.Device)
		}
	}
}

func (b *BaseBroker) HasPermission(dev Identity) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.granted[dev.Key()]
}

// SetPermission records the outcome of a permission request
func (b *BaseBroker) SetPermission(dev Identity, granted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.granted == nil {
		b.granted = make(map[string]bool)
	}
	if granted {
		b.granted[dev.Key()] = true
	} else {
		delete(b.granted, dev.Key())
	}
}

// RequestWith resolves a permission request in the background with probe
// and publishes the result.
func (b *BaseBroker) RequestWith(dev Identity, probe func(Identity) bool) {
	go func() {
		granted := probe(dev)
		b.SetPermission(dev, granted)
		log.Debug("Permission for %s granted: %v", dev, granted)
		b.Publish(Event{Kind: EventPermission, Device: dev, Granted: granted})
	}()
}
