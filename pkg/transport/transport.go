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

// Package transport abstracts the host platform side of the scope link:
// device listing, access permission, hot plug notifications and the
// byte pipe to an opened device.
package transport

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrTimeout  = errors.New("transfer timed out")
	ErrClosed   = errors.New("transport closed")
	ErrNoDevice = errors.New("device not attached")
)

// Identity describes an attached device
type Identity struct {
	Driver      string `json:"driver"`
	ID          string `json:"id"`
	VendorID    uint16 `json:"vendorId"`
	ProductID   uint16 `json:"productId"`
	Serial      string `json:"serial,omitempty"`
	Description string `json:"description,omitempty"`
}

func (i Identity) String() string {
	return fmt.Sprintf("%s:%s [%04x:%04x] %s", i.Driver, i.ID, i.VendorID, i.ProductID, i.Description)
}

// Key identifies the device across plug events
func (i Identity) Key() string {
	return i.Driver + ":" + i.ID
}

// Transport is an opened device. Write and Read each perform one
// transfer bounded by timeout. A transport is used by one goroutine
// at a time.
type Transport interface {
	Write(p []byte, timeout time.Duration) (int, error)
	// Read returns at most n bytes
	Read(n int, timeout time.Duration) ([]byte, error)
	Close() error
}

type EventKind int

const (
	EventAttached EventKind = iota
	EventDetached
	EventPermission
)

func (k EventKind) String() string {
	switch k {
	case EventAttached:
		return "attached"
	case EventDetached:
		return "detached"
	case EventPermission:
		return "permission"
	}
	return "unknown"
}

// Event is a platform notification. Granted is only meaningful for
// EventPermission.
type Event struct {
	Kind    EventKind
	Device  Identity
	Granted bool
}

// Broker is the platform collaborator that owns devices
type Broker interface {
	ListAttachedDevices() ([]Identity, error)
	HasPermission(dev Identity) bool
	// RequestPermission returns immediately; the outcome arrives as an
	// EventPermission notification.
	RequestPermission(dev Identity)
	OpenTransport(dev Identity) (Transport, error)
	Subscribe(ch chan<- Event)
	Unsubscribe(ch chan<- Event)
	Close() error
}

// Publisher is implemented by brokers that let a watcher inject
// attach and detach notifications.
type Publisher interface {
	Publish(ev Event)
}
