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

// Package reg describes the FPGA register file of the scope and keeps
// the host side copy of it.
package reg

import (
	"fmt"
	"strconv"
)

// Addr is an 8-bit FPGA register address
type Addr uint8

const (
	AddrCh1Ctrl         Addr = 0x00
	AddrCh2Ctrl         Addr = 0x01
	AddrAnalogTrigLevel Addr = 0x02
	AddrAnalogTimeCtrl  Addr = 0x03
	AddrAnalogTrigCtrl  Addr = 0x04
	AddrLogicTrigLevel  Addr = 0x05
	AddrLogicTimeCtrl   Addr = 0x06
	AddrDeviceRev       Addr = 0x07

	// NumRegs is the size of the register file
	NumRegs = 8
)

var Names = map[Addr]string{
	AddrCh1Ctrl:         "ch1_ctrl",
	AddrCh2Ctrl:         "ch2_ctrl",
	AddrAnalogTrigLevel: "analog_trig_level",
	AddrAnalogTimeCtrl:  "analog_time_ctrl",
	AddrAnalogTrigCtrl:  "analog_trig_ctrl",
	AddrLogicTrigLevel:  "logic_trig_level",
	AddrLogicTimeCtrl:   "logic_time_ctrl",
	AddrDeviceRev:       "device_rev",
}

// Channel control register
const (
	BitChEnabled = 0
	ShiftVoltDiv = 1
	MaskVoltDiv  = 0x1e
	MaxVoltDiv   = 10
)

// Analog time control register
const (
	ShiftTimeDiv = 0
	MaskTimeDiv  = 0x1f
)

// Analog trigger control register
const (
	BitTrigEnabled = 1
	BitTrigSource  = 3
	BitTrigEdge    = 4
	BitRunMode     = 5
	ShiftTrigPos   = 6
	MaskTrigPos    = 0xc0
)

// TriggerPosition is the two-bit trigger position field
type TriggerPosition uint8

const (
	TrigPosOff    TriggerPosition = 0b00
	TrigPosRight  TriggerPosition = 0b01
	TrigPosLeft   TriggerPosition = 0b10
	TrigPosCenter TriggerPosition = 0b11
)

var trigPosNames = map[TriggerPosition]string{
	TrigPosOff:    "off",
	TrigPosRight:  "right",
	TrigPosLeft:   "left",
	TrigPosCenter: "center",
}

func (p TriggerPosition) String() string {
	if name, ok := trigPosNames[p]; ok {
		return name
	}
	return fmt.Sprintf("TriggerPosition(%d)", uint8(p))
}

// ParseTriggerPosition accepts off, right, left and center
func ParseTriggerPosition(s string) (TriggerPosition, error) {
	for p, name := range trigPosNames {
		if name == s {
			return p, nil
		}
	}
	return TrigPosOff, fmt.Errorf("unknown trigger position %q", s)
}

func (a Addr) Valid() bool {
	return a < NumRegs
}

// ReadOnly reports whether the host must not write the register
func (a Addr) ReadOnly() bool {
	return a == AddrDeviceRev
}

func (a Addr) String() string {
	if name, ok := Names[a]; ok {
		return name
	}
	return fmt.Sprintf("reg(0x%02x)", uint8(a))
}

// ChannelCtrl returns the control register of channel 1 or 2
func ChannelCtrl(ch int) (Addr, error) {
	switch ch {
	case 1:
		return AddrCh1Ctrl, nil
	case 2:
		return AddrCh2Ctrl, nil
	}
	return 0, fmt.Errorf("unknown channel %d", ch)
}

// ParseAddr parses hexadecimal (0x07) or decimal register address
func ParseAddr(s string) (Addr, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, err
	}
	a := Addr(v)
	if !a.Valid() {
		return 0, fmt.Errorf("register address out of range: %s", s)
	}
	return a, nil
}

type Reg struct {
	Addr  Addr
	Value uint8
}

func (r *Reg) Hex() (string, string) {
	return fmt.Sprintf("0x%02x", uint8(r.Addr)), fmt.Sprintf("0x%02x", r.Value)
}

func (r *Reg) String() string {
	return fmt.Sprintf("%s(0x%02x)=0x%02x", r.Addr, uint8(r.Addr), r.Value)
}

// NewRegFromHex is the inverse of Reg.Hex
func NewRegFromHex(addr, value string) (*Reg, error) {
	a, err := ParseAddr(addr)
	if err != nil {
		return nil, err
	}
	v, err := strconv.ParseUint(value, 0, 8)
	if err != nil {
		return nil, err
	}
	return &Reg{Addr: a, Value: uint8(v)}, nil
}
