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

// Package serial reaches scopes whose firmware enumerates as a CDC-ACM
// serial port.
package serial

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/oscdroid/go-oscbridge/pkg/config"
	"github.com/oscdroid/go-oscbridge/pkg/log"
	"github.com/oscdroid/go-oscbridge/pkg/transport"
)

const (
	DriverName = "serial"
)

type Driver struct{}

func init() {
	transport.Register(DriverName, &Driver{})
}

func (d *Driver) NewBroker(cfg *config.DeviceConfig) (transport.Broker, error) {
	vid, pid, err := cfg.USBIDs()
	if err != nil {
		return nil, err
	}
	return &Broker{cfg: cfg, vid: vid, pid: pid}, nil
}

type Broker struct {
	transport.BaseBroker
	cfg *config.DeviceConfig
	vid uint16
	pid uint16
}

var _ transport.Broker = &Broker{}

func (b *Broker) matches(port *enumerator.PortDetails) bool {
	if b.cfg.Port != "" {
		return port.Name == b.cfg.Port
	}
	if !port.IsUSB {
		return false
	}
	if b.cfg.Serial != "" && port.SerialNumber != b.cfg.Serial {
		return false
	}
	return strings.EqualFold(port.VID, fmt.Sprintf("%04x", b.vid)) &&
		strings.EqualFold(port.PID, fmt.Sprintf("%04x", b.pid))
}

func (b *Broker) ListAttachedDevices() ([]transport.Identity, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	var devices []transport.Identity
	for _, port := range ports {
		if !b.matches(port) {
			continue
		}
		devices = append(devices, transport.Identity{
			Driver:      DriverName,
			ID:          port.Name,
			VendorID:    b.vid,
			ProductID:   b.pid,
			Serial:      port.SerialNumber,
			Description: port.Product,
		})
	}
	return devices, nil
}

func (b *Broker) open(dev transport.Identity) (serial.Port, error) {
	return serial.Open(dev.ID, &serial.Mode{BaudRate: b.cfg.BaudRate})
}

func (b *Broker) RequestPermission(dev transport.Identity) {
	b.RequestWith(dev, func(dev transport.Identity) bool {
		port, err := b.open(dev)
		if err != nil {
			var portErr *serial.PortError
			if errors.As(err, &portErr) && portErr.Code() == serial.PermissionDenied {
				log.Error("Access to %s denied, check the dialout group", dev)
			} else {
				log.Warning("Probing %s: %s", dev, err)
			}
			return false
		}
		port.Close()
		return true
	})
}

func (b *Broker) OpenTransport(dev transport.Identity) (transport.Transport, error) {
	port, err := b.open(dev)
	if err != nil {
		var portErr *serial.PortError
		if errors.As(err, &portErr) && portErr.Code() == serial.PortNotFound {
			return nil, fmt.Errorf("%w: %v", transport.ErrNoDevice, err)
		}
		return nil, err
	}
	log.Info("Opened %s at %d baud", dev, b.cfg.BaudRate)
	return &Transport{port: port}, nil
}

func (b *Broker) Close() error {
	return nil
}

type Transport struct {
	port serial.Port
	once sync.Once
}

var _ transport.Transport = &Transport{}

type writeResult struct {
	n   int
	err error
}

// Write gives up after timeout. The port itself has no write deadline,
// so a timed out write may still complete later.
func (t *Transport) Write(p []byte, timeout time.Duration) (int, error) {
	done := make(chan writeResult, 1)
	go func() {
		n, err := t.port.Write(p)
		done <- writeResult{n: n, err: err}
	}()
	select {
	case r := <-done:
		return r.n, r.err
	case <-time.After(timeout):
		return 0, transport.ErrTimeout
	}
}

func (t *Transport) Read(n int, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, n)
	got := 0
	for got < n {
		left := time.Until(deadline)
		if left <= 0 {
			break
		}
		if err := t.port.SetReadTimeout(left); err != nil {
			return nil, err
		}
		m, err := t.port.Read(buf[got:])
		if err != nil {
			return nil, err
		}
		if m == 0 {
			break
		}
		got += m
	}
	if got == 0 {
		return nil, transport.ErrTimeout
	}
	return buf[:got], nil
}

func (t *Transport) Close() error {
	var err error
	t.once.Do(func() {
		err = t.port.Close()
	})
	return err
}
