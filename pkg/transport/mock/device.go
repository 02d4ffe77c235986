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

package mock

import (
	"math"
	"sync"

	gplayers "github.com/google/gopacket/layers"

	"github.com/oscdroid/go-oscbridge/pkg/layers"
	"github.com/oscdroid/go-oscbridge/pkg/reg"
)

const (
	Revision = 0x2a
	// period of the emulated channel 1 sine in samples
	sinePeriod = 128
)

// Device emulates the scope FPGA behind a transport. Channel 1 carries a
// sine, channel 2 a square wave of the same period.
type Device struct {
	mu       sync.Mutex
	regs     *reg.Map
	pending  *reg.Addr
	running  bool
	sessions []layers.SessionOp
	phase    int
}

func NewDevice() *Device {
	d := &Device{regs: reg.NewMap()}
	d.regs.Set(reg.AddrDeviceRev, Revision)
	return d
}

// Registers is the device side register file
func (d *Device) Registers() *reg.Map {
	return d.regs
}

func (d *Device) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Sessions lists received session commands in order
func (d *Device) Sessions() []layers.SessionOp {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]layers.SessionOp(nil), d.sessions...)
}

// Handle applies a host frame
func (d *Device) Handle(frame []byte) error {
	l, err := layers.DecodeCommand(frame)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	switch cmd := l.(type) {
	case *layers.RegWriteLayer:
		if !cmd.Addr.ReadOnly() {
			d.regs.Set(cmd.Addr, cmd.Value)
		}
	case *layers.RegReadLayer:
		addr := cmd.Addr
		d.pending = &addr
	case *layers.SessionLayer:
		d.running = cmd.Op == layers.SessionStart
		d.sessions = append(d.sessions, cmd.Op)
	}
	return nil
}

// Respond answers the last read command with at most n bytes. It returns
// nil when no read is outstanding.
func (d *Device) Respond(n int) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil || n <= 0 {
		return nil
	}
	addr := *d.pending
	d.pending = nil

	var resp *layers.ResponseLayer
	switch {
	case !addr.Valid():
		resp = &layers.ResponseLayer{Marker: layers.MarkerError}
	case (addr == reg.AddrCh1Ctrl || addr == reg.AddrCh2Ctrl) && n > layers.DataHeaderLen:
		ch := int(addr-reg.AddrCh1Ctrl) + 1
		samples, trigger := d.acquire(ch, n-layers.DataHeaderLen)
		resp = layers.NewDataResponse(ch, trigger, samples)
	default:
		resp = &layers.ResponseLayer{
			BaseLayer: gplayers.BaseLayer{Payload: []byte{d.regs.Get(addr)}},
			Marker:    layers.MarkerOK,
		}
	}
	frame := layers.EncodeResponse(resp)
	if len(frame) > n {
		frame = frame[:n]
	}
	return frame
}

func (d *Device) acquire(ch int, n int) ([]byte, int) {
	d.phase = (d.phase + 7) % sinePeriod
	samples := make([]byte, n)
	for i := range samples {
		x := float64(i+d.phase) / sinePeriod
		v := math.Sin(2 * math.Pi * x)
		if ch == 2 {
			v = math.Copysign(0.8, v)
		}
		samples[i] = uint8(128 + 100*v)
	}

	level := d.regs.Get(reg.AddrAnalogTrigLevel)
	if level == 0 {
		level = 128
	}
	trigger := n / 2
	for i := 1; i < n; i++ {
		if samples[i-1] < level && samples[i] >= level {
			trigger = i
			break
		}
	}
	return samples, trigger
}
