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

package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/oscdroid/go-oscbridge/pkg/buffer"
	"github.com/oscdroid/go-oscbridge/pkg/connection"
	deviceifc "github.com/oscdroid/go-oscbridge/pkg/device/ifc"
	"github.com/oscdroid/go-oscbridge/pkg/log"
	"github.com/oscdroid/go-oscbridge/pkg/reg"
)

// Conn is the part of a connection.Connection a Scope writes through
type Conn interface {
	SetBit(addr reg.Addr, bit uint, on bool) error
	SetField(addr reg.Addr, shift uint, mask uint8, value uint8) error
	WriteRegisterWait(ctx context.Context, addr reg.Addr, value uint8) error
	RequestRead(addr reg.Addr, length int) error
	Acquire(ch int) error
	TryAcquire(ch int) error
	Ring(ch int) (*buffer.Ring, error)
}

// Scope keeps the user facing settings of the oscilloscope and mirrors
// them into device registers. Settings survive disconnects and are pushed
// again by Apply.
type Scope struct {
	mu         sync.Mutex
	conn       Conn
	ChSettings [Nch]*ChannelSettings
	Trigger    *TriggerSettings
	timeDiv    int
}

var _ deviceifc.Scope = &Scope{}

func NewScope(conn Conn) *Scope {
	s := &Scope{
		conn:    conn,
		Trigger: NewTriggerSettings(),
	}
	for i := range s.ChSettings {
		s.ChSettings[i] = NewChannelSettings()
	}
	s.ChSettings[0].Enabled = true
	return s
}

func (s *Scope) channel(ch int) (*ChannelSettings, error) {
	if ch < 1 || ch > Nch {
		return nil, fmt.Errorf("unknown channel %d", ch)
	}
	return s.ChSettings[ch-1], nil
}

// writeThrough ignores a missing connection, the value is sent by the
// next Apply.
func writeThrough(err error) error {
	if errors.Is(err, connection.ErrNotConnected) {
		log.Debug("Scope not connected, setting kept locally")
		return nil
	}
	return err
}

// Channel returns a copy of the settings of channel ch
func (s *Scope) Channel(ch int) (ChannelSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.channel(ch)
	if err != nil {
		return ChannelSettings{}, err
	}
	return *c, nil
}

// TriggerSettings returns a copy of the trigger settings
func (s *Scope) TriggerSettings() TriggerSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.Trigger
}

func (s *Scope) SetEnabled(ch int, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.channel(ch)
	if err != nil {
		return err
	}
	c.Enabled = on
	addr, _ := reg.ChannelCtrl(ch)
	return writeThrough(s.conn.SetBit(addr, reg.BitChEnabled, on))
}

func (s *Scope) SetVoltDiv(ch int, div int) error {
	if div < 0 || div > reg.MaxVoltDiv {
		return fmt.Errorf("volt/div %d out of range 0..%d", div, reg.MaxVoltDiv)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.channel(ch)
	if err != nil {
		return err
	}
	c.VoltDiv = div
	addr, _ := reg.ChannelCtrl(ch)
	return writeThrough(s.conn.SetField(addr, reg.ShiftVoltDiv, reg.MaskVoltDiv, uint8(div)))
}

// SetTimeDiv clamps div to the time/div table
func (s *Scope) SetTimeDiv(div int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeDiv = buffer.ClampTimeDiv(div)
	return writeThrough(s.conn.SetField(reg.AddrAnalogTimeCtrl, reg.ShiftTimeDiv, reg.MaskTimeDiv, uint8(s.timeDiv)))
}

func (s *Scope) TimeDiv() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeDiv
}

// SetOffset moves the channel trace by half the given distance
func (s *Scope) SetOffset(ch int, dx, dy float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.channel(ch)
	if err != nil {
		return err
	}
	c.addOffset(dx, dy)
	return nil
}

// SetZoom sets the zoom relative to the last released zoom
func (s *Scope) SetZoom(ch int, zx, zy float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.channel(ch)
	if err != nil {
		return err
	}
	c.setZoom(zx, zy)
	return nil
}

// ReleaseZoom keeps the current zoom as base for the next SetZoom
func (s *Scope) ReleaseZoom(ch int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.channel(ch)
	if err != nil {
		return err
	}
	c.releaseZoom()
	return nil
}

// ResetZoom clears zoom and offsets
func (s *Scope) ResetZoom(ch int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.channel(ch)
	if err != nil {
		return err
	}
	c.resetZoom()
	return nil
}

func (s *Scope) SetTriggerEnabled(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Trigger.Enabled = on
	return writeThrough(s.conn.SetBit(reg.AddrAnalogTrigCtrl, reg.BitTrigEnabled, on))
}

func (s *Scope) SetTriggerPosition(pos reg.TriggerPosition) error {
	if pos > reg.TrigPosCenter {
		return fmt.Errorf("invalid trigger position %d", pos)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Trigger.Position = pos
	return writeThrough(s.conn.SetField(reg.AddrAnalogTrigCtrl, reg.ShiftTrigPos, reg.MaskTrigPos, uint8(pos)))
}

func (s *Scope) SetTriggerSource(ch int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.channel(ch); err != nil {
		return err
	}
	s.Trigger.Source = ch
	return writeThrough(s.conn.SetBit(reg.AddrAnalogTrigCtrl, reg.BitTrigSource, ch == 2))
}

func (s *Scope) SetTriggerEdge(falling bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Trigger.Falling = falling
	return writeThrough(s.conn.SetBit(reg.AddrAnalogTrigCtrl, reg.BitTrigEdge, falling))
}

func (s *Scope) SetRunMode(single bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Trigger.Single = single
	return writeThrough(s.conn.SetBit(reg.AddrAnalogTrigCtrl, reg.BitRunMode, single))
}

func (s *Scope) SetTriggerLevel(level uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Trigger.Level = level
	return writeThrough(s.conn.SetField(reg.AddrAnalogTrigLevel, 0, 0xff, level))
}

// Acquire requests a buffer of channel ch; disabled channels are skipped
func (s *Scope) Acquire(ch int) error {
	return s.acquire(ch, s.conn.Acquire)
}

// TryAcquire is Acquire that leaves a pending transfer alone
func (s *Scope) TryAcquire(ch int) error {
	return s.acquire(ch, s.conn.TryAcquire)
}

func (s *Scope) acquire(ch int, request func(ch int) error) error {
	s.mu.Lock()
	c, err := s.channel(ch)
	enabled := err == nil && c.Enabled
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if !enabled {
		return nil
	}
	return request(ch)
}

// PollRevision reads the device revision register
func (s *Scope) PollRevision() error {
	return s.conn.RequestRead(reg.AddrDeviceRev, 2)
}

// Apply writes every setting to the device, one confirmed write at a time
func (s *Scope) Apply(ctx context.Context) error {
	s.mu.Lock()
	regs := []reg.Reg{
		{Addr: reg.AddrCh1Ctrl, Value: s.ChSettings[0].CtrlValue()},
		{Addr: reg.AddrCh2Ctrl, Value: s.ChSettings[1].CtrlValue()},
		{Addr: reg.AddrAnalogTimeCtrl, Value: uint8(s.timeDiv) & reg.MaskTimeDiv},
		{Addr: reg.AddrAnalogTrigLevel, Value: s.Trigger.Level},
		{Addr: reg.AddrAnalogTrigCtrl, Value: s.Trigger.CtrlValue()},
	}
	s.mu.Unlock()

	for _, r := range regs {
		if err := s.conn.WriteRegisterWait(ctx, r.Addr, r.Value); err != nil {
			return fmt.Errorf("applying %s: %w", r.String(), err)
		}
	}
	log.Info("Applied scope settings")
	return nil
}

// GetWindow selects the display window of channel ch. A negative div
// uses the current time/div.
func (s *Scope) GetWindow(ch int, align buffer.Alignment, div int) (*buffer.Window, error) {
	ring, err := s.conn.Ring(ch)
	if err != nil {
		return nil, err
	}
	if div < 0 {
		div = s.TimeDiv()
	}
	w := buffer.Select(ring.Load(), buffer.WindowLength(div), align)
	return &w, nil
}

// Window is GetWindow with the alignment of the current trigger position
func (s *Scope) Window(ch int) (*buffer.Window, error) {
	s.mu.Lock()
	align := s.Trigger.Alignment()
	s.mu.Unlock()
	return s.GetWindow(ch, align, -1)
}
