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

// Package mock is an in-process transport driver with an emulated scope.
// It backs the tests and the demo mode of the bridge.
package mock

import (
	"sync"

	"github.com/oscdroid/go-oscbridge/pkg/config"
	"github.com/oscdroid/go-oscbridge/pkg/transport"
)

const (
	DriverName = "mock"
)

// Policy decides how permission requests are answered
type Policy int

const (
	// PermissionAuto grants every request
	PermissionAuto Policy = iota
	// PermissionDeny denies every request
	PermissionDeny
	// PermissionManual leaves requests pending until Resolve
	PermissionManual
)

var DefaultIdentity = transport.Identity{
	Driver:      DriverName,
	ID:          "001:001",
	VendorID:    0x04d8,
	ProductID:   0x003f,
	Serial:      "MOCK0001",
	Description: "OscDroid emulated scope",
}

type Driver struct{}

func init() {
	transport.Register(DriverName, &Driver{})
}

func (d *Driver) NewBroker(cfg *config.DeviceConfig) (transport.Broker, error) {
	return NewBroker(DefaultIdentity), nil
}

type Broker struct {
	transport.BaseBroker
	mu         sync.Mutex
	devices    []transport.Identity
	policy     Policy
	requests   int
	pending    []transport.Identity
	transports []*Transport
	onOpen     func(*Transport)
	openErr    error
}

var _ transport.Broker = &Broker{}

func NewBroker(devs ...transport.Identity) *Broker {
	return &Broker{devices: devs}
}

func (b *Broker) SetPolicy(p Policy) {
	b.mu.Lock()
	b.policy = p
	b.mu.Unlock()
}

// OnOpen is called with every transport before it is handed out
func (b *Broker) OnOpen(f func(*Transport)) {
	b.mu.Lock()
	b.onOpen = f
	b.mu.Unlock()
}

// FailOpen makes OpenTransport return err; nil restores normal opening
func (b *Broker) FailOpen(err error) {
	b.mu.Lock()
	b.openErr = err
	b.mu.Unlock()
}

// Attach adds a device and notifies subscribers
func (b *Broker) Attach(dev transport.Identity) {
	b.mu.Lock()
	b.devices = append(b.devices, dev)
	b.mu.Unlock()
	b.Publish(transport.Event{Kind: transport.EventAttached, Device: dev})
}

// Detach removes a device, breaks its open transports and notifies
// subscribers.
func (b *Broker) Detach(dev transport.Identity) {
	b.mu.Lock()
	for i, d := range b.devices {
		if d.Key() == dev.Key() {
			b.devices = append(b.devices[:i], b.devices[i+1:]...)
			break
		}
	}
	for _, t := range b.transports {
		t.detach()
	}
	b.mu.Unlock()
	b.Publish(transport.Event{Kind: transport.EventDetached, Device: dev})
}

// Resolve answers a pending manual permission request
func (b *Broker) Resolve(dev transport.Identity, granted bool) {
	b.mu.Lock()
	for i, d := range b.pending {
		if d.Key() == dev.Key() {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	b.SetPermission(dev, granted)
	b.Publish(transport.Event{Kind: transport.EventPermission, Device: dev, Granted: granted})
}

// Requests counts RequestPermission calls
func (b *Broker) Requests() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests
}

// Transports returns every transport opened so far
func (b *Broker) Transports() []*Transport {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Transport(nil), b.transports...)
}

func (b *Broker) ListAttachedDevices() ([]transport.Identity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]transport.Identity(nil), b.devices...), nil
}

func (b *Broker) RequestPermission(dev transport.Identity) {
	b.mu.Lock()
	b.requests++
	policy := b.policy
	if policy == PermissionManual {
		b.pending = append(b.pending, dev)
	}
	b.mu.Unlock()

	switch policy {
	case PermissionAuto:
		b.RequestWith(dev, func(transport.Identity) bool { return true })
	case PermissionDeny:
		b.RequestWith(dev, func(transport.Identity) bool { return false })
	}
}

func (b *Broker) OpenTransport(dev transport.Identity) (transport.Transport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	attached := false
	for _, d := range b.devices {
		if d.Key() == dev.Key() {
			attached = true
		}
	}
	if !attached {
		return nil, transport.ErrNoDevice
	}
	t := NewTransport(NewDevice())
	if b.onOpen != nil {
		b.onOpen(t)
	}
	b.transports = append(b.transports, t)
	return t, nil
}

func (b *Broker) Close() error {
	return nil
}
