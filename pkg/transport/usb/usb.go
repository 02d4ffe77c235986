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

// Package usb talks to the scope over its vendor bulk interface with libusb.
package usb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/oscdroid/go-oscbridge/pkg/config"
	"github.com/oscdroid/go-oscbridge/pkg/log"
	"github.com/oscdroid/go-oscbridge/pkg/transport"
)

const (
	DriverName = "usb"
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
	return &Broker{
		cfg: cfg,
		vid: gousb.ID(vid),
		pid: gousb.ID(pid),
		ctx: gousb.NewContext(),
	}, nil
}

type Broker struct {
	transport.BaseBroker
	mu  sync.Mutex
	cfg *config.DeviceConfig
	vid gousb.ID
	pid gousb.ID
	ctx *gousb.Context
}

var _ transport.Broker = &Broker{}

func (b *Broker) identity(desc *gousb.DeviceDesc) transport.Identity {
	return transport.Identity{
		Driver:      DriverName,
		ID:          fmt.Sprintf("%03d:%03d", desc.Bus, desc.Address),
		VendorID:    uint16(desc.Vendor),
		ProductID:   uint16(desc.Product),
		Description: fmt.Sprintf("bus %d address %d speed %s", desc.Bus, desc.Address, desc.Speed),
	}
}

func (b *Broker) matches(desc *gousb.DeviceDesc) bool {
	return desc.Vendor == b.vid && desc.Product == b.pid
}

// ListAttachedDevices walks the bus without opening anything
func (b *Broker) ListAttachedDevices() ([]transport.Identity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var devices []transport.Identity
	_, err := b.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if b.matches(desc) {
			devices = append(devices, b.identity(desc))
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	return devices, nil
}

func (b *Broker) open(dev transport.Identity) (*gousb.Device, error) {
	var bus, address int
	if _, err := fmt.Sscanf(dev.ID, "%d:%d", &bus, &address); err != nil {
		return nil, fmt.Errorf("bad usb device id %q: %w", dev.ID, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	devs, err := b.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return b.matches(desc) && desc.Bus == bus && desc.Address == address
	})
	if err != nil {
		for _, d := range devs {
			d.Close()
		}
		return nil, err
	}
	if len(devs) == 0 {
		return nil, transport.ErrNoDevice
	}
	for _, d := range devs[1:] {
		d.Close()
	}
	return devs[0], nil
}

// RequestPermission probes whether the device can be opened. Access on
// desktop hosts is granted by udev rules, not interactively.
func (b *Broker) RequestPermission(dev transport.Identity) {
	b.RequestWith(dev, func(dev transport.Identity) bool {
		d, err := b.open(dev)
		if err != nil {
			if errors.Is(err, gousb.ErrorAccess) {
				log.Error("Access to %s denied, check udev rules", dev)
			} else {
				log.Warning("Probing %s: %s", dev, err)
			}
			return false
		}
		d.Close()
		return true
	})
}

func (b *Broker) OpenTransport(dev transport.Identity) (transport.Transport, error) {
	d, err := b.open(dev)
	if err != nil {
		return nil, err
	}
	if b.cfg.Serial != "" {
		serial, err := d.SerialNumber()
		if err != nil || serial != b.cfg.Serial {
			d.Close()
			return nil, fmt.Errorf("%s: serial number %q does not match %q", dev, serial, b.cfg.Serial)
		}
	}
	if err := d.SetAutoDetach(true); err != nil {
		log.Debug("Auto detach of kernel driver not supported: %s", err)
	}

	cfg, err := d.Config(b.cfg.Config)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to get config %d: %w", b.cfg.Config, err)
	}
	intf, err := cfg.Interface(b.cfg.Interface, 0)
	if err != nil {
		cfg.Close()
		d.Close()
		return nil, fmt.Errorf("failed to claim interface %d: %w", b.cfg.Interface, err)
	}
	done := func() {
		intf.Close()
		cfg.Close()
	}
	out, err := intf.OutEndpoint(b.cfg.EndpointOut)
	if err != nil {
		done()
		d.Close()
		return nil, fmt.Errorf("failed to open out endpoint %#02x: %w", b.cfg.EndpointOut, err)
	}
	in, err := intf.InEndpoint(b.cfg.EndpointIn & 0x0f)
	if err != nil {
		done()
		d.Close()
		return nil, fmt.Errorf("failed to open in endpoint %#02x: %w", b.cfg.EndpointIn, err)
	}
	log.Info("Opened %s, endpoints out %s in %s", dev, out, in)
	return &Transport{dev: d, done: done, out: out, in: in}, nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctx.Close()
}

// Transport is a claimed interface with one bulk endpoint per direction
type Transport struct {
	dev  *gousb.Device
	done func()
	out  *gousb.OutEndpoint
	in   *gousb.InEndpoint
	once sync.Once
}

var _ transport.Transport = &Transport{}

func (t *Transport) Write(p []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	n, err := t.out.WriteContext(ctx, p)
	return n, transferError(ctx, err)
}

func (t *Transport) Read(n int, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	buf := make([]byte, n)
	got, err := t.in.ReadContext(ctx, buf)
	if err != nil {
		return nil, transferError(ctx, err)
	}
	return buf[:got], nil
}

func (t *Transport) Close() error {
	var err error
	t.once.Do(func() {
		t.done()
		err = t.dev.Close()
	})
	return err
}

func transferError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", transport.ErrTimeout, err)
	}
	if errors.Is(err, gousb.ErrorNoDevice) {
		return fmt.Errorf("%w: %v", transport.ErrNoDevice, err)
	}
	return err
}
