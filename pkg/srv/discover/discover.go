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

package discover

import (
	"context"
	"sync"
	"time"

	"github.com/oscdroid/go-oscbridge/pkg/config"
	"github.com/oscdroid/go-oscbridge/pkg/log"
	"github.com/oscdroid/go-oscbridge/pkg/srv"
	"github.com/oscdroid/go-oscbridge/pkg/transport"
)

const (
	// OfflineAfter is how long a device stays online after it was last seen
	OfflineAfter = 3000 * time.Millisecond
)

// Watcher polls the broker for attached devices and turns changes into
// attach and detach notifications.
type Watcher struct {
	broker    transport.Broker
	publisher transport.Publisher
	state     *State
	interval  time.Duration

	mu   sync.Mutex
	seen map[string]transport.Identity
}

// NewWatcher creates a watcher. State may be nil, then nothing is stored.
func NewWatcher(broker transport.Broker, state *State, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = config.DefaultPollMs * time.Millisecond
	}
	w := &Watcher{
		broker:   broker,
		state:    state,
		interval: interval,
		seen:     make(map[string]transport.Identity),
	}
	if p, ok := broker.(transport.Publisher); ok {
		w.publisher = p
	}
	return w
}

// Scan lists attached devices once and publishes the difference to the
// previous scan.
func (w *Watcher) Scan() ([]transport.Identity, error) {
	devices, err := w.broker.ListAttachedDevices()
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	current := make(map[string]transport.Identity, len(devices))
	var events []transport.Event
	for _, dev := range devices {
		current[dev.Key()] = dev
		if _, ok := w.seen[dev.Key()]; !ok {
			events = append(events, transport.Event{Kind: transport.EventAttached, Device: dev})
		}
	}
	for key, dev := range w.seen {
		if _, ok := current[key]; !ok {
			events = append(events, transport.Event{Kind: transport.EventDetached, Device: dev})
		}
	}
	w.seen = current
	w.mu.Unlock()

	for _, ev := range events {
		log.Info("Device %s: %s", ev.Kind, ev.Device)
		if w.publisher != nil {
			w.publisher.Publish(ev)
		}
	}

	if w.state != nil {
		for _, dev := range devices {
			dd := NewDeviceDescription(dev)
			dd.SetTimestamp()
			if err := w.state.SetDeviceDescription(dd); err != nil {
				log.Error("Error while updating device description: device: %s error: %s", dd.Key, err)
			}
		}
	}
	return devices, nil
}

// Run scans every interval until ctx is done
func (w *Watcher) Run(ctx context.Context) error {
	log.Info("Starting discovery, polling every %s", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.Scan(); err != nil {
			log.Warning("Error while listing devices: %s", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Devices returns every device ever seen, marking the ones not seen
// within OfflineAfter as offline.
func (w *Watcher) Devices() ([]*DeviceDescription, error) {
	if w.state == nil {
		w.mu.Lock()
		defer w.mu.Unlock()
		var devices []*DeviceDescription
		for _, dev := range w.seen {
			dd := NewDeviceDescription(dev)
			dd.SetTimestamp()
			dd.Online = true
			devices = append(devices, dd)
		}
		return devices, nil
	}
	devices, err := w.state.GetAllDeviceDescriptions()
	if err != nil {
		return nil, err
	}
	MarkOnline(devices, srv.Now())
	return devices, nil
}

// MarkOnline sets Online for devices seen within OfflineAfter of now (ms)
func MarkOnline(devices []*DeviceDescription, now uint64) {
	limit := uint64(OfflineAfter / time.Millisecond)
	for _, dd := range devices {
		dd.Online = now >= dd.LastSeen && now-dd.LastSeen <= limit
	}
}
