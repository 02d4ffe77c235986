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

// Package connection drives the scope link through discovery, permission,
// the active session and teardown.
package connection

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/oscdroid/go-oscbridge/pkg/buffer"
	"github.com/oscdroid/go-oscbridge/pkg/layers"
	"github.com/oscdroid/go-oscbridge/pkg/log"
	"github.com/oscdroid/go-oscbridge/pkg/reg"
	"github.com/oscdroid/go-oscbridge/pkg/transport"
	"github.com/oscdroid/go-oscbridge/pkg/worker"
)

const (
	// NumChannels is the number of analog channels
	NumChannels = 2
	eventQueue  = 16
)

// Options configures a Connection. Hooks run on internal goroutines and
// must not call Setup, Close or HandleEvent.
type Options struct {
	Policy        worker.Policy
	Capacity      int
	OnRegister    func(dev transport.Identity, r reg.Reg)
	OnAcquisition func(dev transport.Identity, ch int, s *buffer.Snapshot)
	OnStateChange func(s State)
}

type Connection struct {
	mu         sync.Mutex
	broker     transport.Broker
	opts       Options
	state      atomic.Int32
	id         atomic.Pointer[string]
	device     atomic.Pointer[transport.Identity]
	worker     atomic.Pointer[worker.Worker]
	permission bool
	regs       *reg.Map
	rings      [NumChannels]*buffer.Ring

	activated bool
	events    chan transport.Event
	quit      chan struct{}
	loopDone  chan struct{}
}

func New(broker transport.Broker, opts Options) *Connection {
	if opts.Capacity <= 0 {
		opts.Capacity = buffer.DefaultCapacity
	}
	c := &Connection{
		broker: broker,
		opts:   opts,
		regs:   reg.NewMap(),
	}
	for i := range c.rings {
		c.rings[i] = buffer.NewRing(opts.Capacity)
	}
	return c
}

// Activate subscribes to platform notifications and starts handling them
func (c *Connection) Activate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activated {
		return
	}
	c.activated = true
	c.events = make(chan transport.Event, eventQueue)
	c.quit = make(chan struct{})
	c.loopDone = make(chan struct{})
	c.broker.Subscribe(c.events)
	go c.loop(c.events, c.quit, c.loopDone)
}

// Deactivate unsubscribes and tears the connection down. Calling it
// again is a no-op.
func (c *Connection) Deactivate() {
	c.mu.Lock()
	if !c.activated {
		c.mu.Unlock()
		return
	}
	c.activated = false
	c.broker.Unsubscribe(c.events)
	close(c.quit)
	loopDone := c.loopDone
	c.mu.Unlock()

	<-loopDone
	c.Close()
}

func (c *Connection) loop(events <-chan transport.Event, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-quit:
			return
		case ev := <-events:
			c.HandleEvent(ev)
		}
	}
}

func (c *Connection) State() State {
	return State(c.state.Load())
}

func (c *Connection) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old == s {
		return
	}
	log.Debug("Connection state %s -> %s", old, s)
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}

// ID identifies the current or last session
func (c *Connection) ID() string {
	if id := c.id.Load(); id != nil {
		return *id
	}
	return ""
}

// Device returns the device the connection is bound to
func (c *Connection) Device() (transport.Identity, bool) {
	if dev := c.device.Load(); dev != nil {
		return *dev, true
	}
	return transport.Identity{}, false
}

// Setup discovers a device and connects to it, asking for permission
// first when needed. It does nothing while a permission request is
// outstanding and restarts an established session.
func (c *Connection) Setup() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.State() {
	case StateAwaitingPermission:
		log.Debug("Setup ignored: waiting for permission")
		return nil
	case StateConnected:
		log.Info("Restarting connection %s", c.ID())
		c.teardownLocked()
	}
	return c.connectLocked(nil)
}

func (c *Connection) connectLocked(dev *transport.Identity) error {
	c.setState(StateConnecting)
	if dev == nil {
		devices, err := c.broker.ListAttachedDevices()
		if err == nil && len(devices) == 0 {
			err = transport.ErrNoDevice
		}
		if err != nil {
			log.Info("No device to connect to: %s", err)
			c.setState(StateDisconnected)
			return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
		}
		dev = &devices[0]
	}
	c.device.Store(dev)

	if !c.broker.HasPermission(*dev) {
		c.setState(StateAwaitingPermission)
		log.Info("Requesting permission for %s", dev)
		c.broker.RequestPermission(*dev)
		return nil
	}
	c.permission = true
	return c.spawnLocked(*dev)
}

func (c *Connection) spawnLocked(dev transport.Identity) error {
	t, err := c.broker.OpenTransport(dev)
	if err != nil {
		log.Error("Opening %s: %s", dev, err)
		c.device.Store(nil)
		c.permission = false
		c.setState(StateDisconnected)
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}

	id := uuid.NewString()
	c.id.Store(&id)
	c.regs.Reset()
	for _, r := range c.rings {
		r.Reset()
	}

	w := worker.New(t, worker.Options{
		Name:     "conn-" + id[:8],
		Policy:   c.opts.Policy,
		Handler:  c.dispatch,
		Greeting: layers.EncodeSession(layers.SessionStart),
		Farewell: layers.EncodeSession(layers.SessionStop),
		Attached: func() bool { return c.device.Load() != nil },
	})
	if err := w.Start(); err != nil {
		t.Close()
		c.device.Store(nil)
		c.setState(StateDisconnected)
		return err
	}
	<-w.Ready()
	c.worker.Store(w)
	c.setState(StateConnected)
	log.Info("Connected to %s, session %s", dev, id)
	return nil
}

// Close stops the session and releases the device. Closing a
// disconnected connection does nothing.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() == StateDisconnected {
		return nil
	}
	c.teardownLocked()
	return nil
}

// teardownLocked joins the worker, which sends the stop command and
// closes the transport on its way out.
func (c *Connection) teardownLocked() {
	c.setState(StateDisconnecting)
	if w := c.worker.Swap(nil); w != nil {
		w.Stop()
		w.Wait()
	}
	if dev := c.device.Swap(nil); dev != nil {
		log.Info("Disconnected from %s", dev)
	}
	c.permission = false
	c.setState(StateDisconnected)
}

// HandleEvent reacts to a platform notification
func (c *Connection) HandleEvent(ev transport.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.device.Load()
	switch ev.Kind {
	case transport.EventAttached:
		if c.State() != StateDisconnected {
			log.Debug("Ignoring attach of %s in state %s", ev.Device, c.State())
			return
		}
		log.Info("Device attached: %s", ev.Device)
		dev := ev.Device
		if err := c.connectLocked(&dev); err != nil {
			log.Warning("Connecting to %s: %s", dev, err)
		}
	case transport.EventDetached:
		if current == nil || current.Key() != ev.Device.Key() {
			return
		}
		log.Warning("Device %s detached", ev.Device)
		c.teardownLocked()
	case transport.EventPermission:
		if c.State() != StateAwaitingPermission || current == nil || current.Key() != ev.Device.Key() {
			log.Debug("Ignoring stale permission result for %s", ev.Device)
			return
		}
		if !ev.Granted {
			log.Error("%s: %s", ErrPermissionDenied, ev.Device)
			c.device.Store(nil)
			c.setState(StateDisconnected)
			return
		}
		c.permission = true
		c.setState(StateConnecting)
		if err := c.spawnLocked(*current); err != nil {
			log.Warning("Connecting to %s: %s", current, err)
		}
	}
}

func (c *Connection) activeWorker() (*worker.Worker, error) {
	w := c.worker.Load()
	if w == nil || c.State() != StateConnected {
		return nil, ErrNotConnected
	}
	return w, nil
}

func (c *Connection) notifyRegister(addr reg.Addr) {
	if c.opts.OnRegister == nil {
		return
	}
	if dev := c.device.Load(); dev != nil {
		c.opts.OnRegister(*dev, reg.Reg{Addr: addr, Value: c.regs.Get(addr)})
	}
}

func (c *Connection) write(addr reg.Addr, update func() uint8, done worker.Completion) error {
	if addr.ReadOnly() || !addr.Valid() {
		return fmt.Errorf("%w: %s", ErrReadOnly, addr)
	}
	w, err := c.activeWorker()
	if err != nil {
		return err
	}
	value := update()
	c.notifyRegister(addr)
	w.PostWrite(worker.WriteCommand{Frame: layers.EncodeWrite(addr, value), Completion: done})
	return nil
}

// WriteRegister stores value and sends it to the device
func (c *Connection) WriteRegister(addr reg.Addr, value uint8) error {
	return c.write(addr, func() uint8 {
		c.regs.Set(addr, value)
		return value
	}, nil)
}

// WriteRegisterWait is WriteRegister that waits for the transfer outcome
func (c *Connection) WriteRegisterWait(ctx context.Context, addr reg.Addr, value uint8) error {
	done := make(chan error, 1)
	err := c.write(addr, func() uint8 {
		c.regs.Set(addr, value)
		return value
	}, func(attempts int, err error) {
		done <- err
	})
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetBit changes one bit of a register and sends the new value
func (c *Connection) SetBit(addr reg.Addr, bit uint, on bool) error {
	return c.write(addr, func() uint8 {
		return c.regs.SetBit(addr, bit, on)
	}, nil)
}

// SetField changes the masked bits of a register and sends the new value
func (c *Connection) SetField(addr reg.Addr, shift uint, mask uint8, value uint8) error {
	return c.write(addr, func() uint8 {
		return c.regs.SetField(addr, shift, mask, value)
	}, nil)
}

// RequestRead sends a read command for addr and expects a response of
// length bytes. The reply is applied when it arrives.
func (c *Connection) RequestRead(addr reg.Addr, length int) error {
	if length <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}
	w, err := c.activeWorker()
	if err != nil {
		return err
	}
	w.PostReadCommand(layers.EncodeRead(addr), worker.ReadRequest{Addr: addr, Length: length})
	return nil
}

// Acquire requests a full buffer of channel ch
func (c *Connection) Acquire(ch int) error {
	addr, err := reg.ChannelCtrl(ch)
	if err != nil {
		return err
	}
	return c.RequestRead(addr, c.acquireLength())
}

// TryAcquire is Acquire that never displaces a queued write or an
// outstanding read. It returns ErrBusy instead.
func (c *Connection) TryAcquire(ch int) error {
	addr, err := reg.ChannelCtrl(ch)
	if err != nil {
		return err
	}
	w, err := c.activeWorker()
	if err != nil {
		return err
	}
	req := worker.ReadRequest{Addr: addr, Length: c.acquireLength()}
	if !w.TryPostReadCommand(layers.EncodeRead(addr), req) {
		return ErrBusy
	}
	return nil
}

func (c *Connection) acquireLength() int {
	return layers.DataHeaderLen + c.opts.Capacity
}

// Pending reports a queued write or an outstanding read
func (c *Connection) Pending() bool {
	w := c.worker.Load()
	return w != nil && (w.WritePending() || w.ReadPending())
}

func (c *Connection) dispatch(req worker.ReadRequest, resp *layers.ResponseLayer) {
	switch resp.Marker {
	case layers.MarkerOK:
		if v, ok := resp.Value(); ok {
			c.regs.Set(req.Addr, v)
			c.notifyRegister(req.Addr)
		}
	case layers.MarkerError, layers.MarkerCancel:
		log.Warning("Device answered %s to read of %s", resp.Marker, req.Addr)
	case layers.MarkerCh1Data, layers.MarkerCh2Data:
		trigger, samples, err := resp.Samples()
		if err != nil {
			log.Warning("Dropping %s: %s", resp.Marker, err)
			return
		}
		ch := resp.Channel()
		s := c.rings[ch-1].Replace(samples, trigger)
		log.Debug("Channel %d acquisition %d: %d samples, trigger %d", ch, s.Generation(), len(samples), s.Trigger())
		if dev := c.device.Load(); dev != nil && c.opts.OnAcquisition != nil {
			c.opts.OnAcquisition(*dev, ch, s)
		}
	default:
		log.Debug("Ignoring response with %s", resp.Marker)
	}
}

func (c *Connection) Register(addr reg.Addr) uint8 {
	return c.regs.Get(addr)
}

func (c *Connection) Registers() []*reg.Reg {
	return c.regs.All()
}

// Ring returns the sample ring of channel 1 or 2
func (c *Connection) Ring(ch int) (*buffer.Ring, error) {
	if ch < 1 || ch > NumChannels {
		return nil, fmt.Errorf("unknown channel %d", ch)
	}
	return c.rings[ch-1], nil
}

func (c *Connection) Capacity() int {
	return c.opts.Capacity
}

// Stats of the current worker
func (c *Connection) Stats() worker.Stats {
	if w := c.worker.Load(); w != nil {
		return w.Stats()
	}
	return worker.Stats{}
}
