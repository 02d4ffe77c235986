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

package reg

import (
	"testing"
)

func TestSetBitRoundTrip(t *testing.T) {
	m := NewMap()
	for v := 0; v < 256; v++ {
		for bit := uint(0); bit < 8; bit++ {
			m.Set(AddrAnalogTrigCtrl, uint8(v))
			set := m.SetBit(AddrAnalogTrigCtrl, bit, true)
			cleared := m.SetBit(AddrAnalogTrigCtrl, bit, false)

			others := ^uint8(1 << bit)
			if set&others != uint8(v)&others || cleared&others != uint8(v)&others {
				t.Fatalf("SetBit(%d) on %#08b changed other bits: set %#08b cleared %#08b", bit, v, set, cleared)
			}
			if set&(1<<bit) == 0 {
				t.Fatalf("SetBit(%d, true) on %#08b = %#08b, bit not set", bit, v, set)
			}
			if cleared&(1<<bit) != 0 {
				t.Fatalf("SetBit(%d, false) on %#08b = %#08b, bit not cleared", bit, v, cleared)
			}
		}
	}
}

func TestSetBitClearsSetBit(t *testing.T) {
	m := NewMap()
	m.Set(AddrCh1Ctrl, 0xff)
	if got := m.SetBit(AddrCh1Ctrl, BitChEnabled, false); got != 0xfe {
		t.Fatalf("SetBit(enabled, false) = %#02x, want 0xfe", got)
	}
	if m.Bit(AddrCh1Ctrl, BitChEnabled) {
		t.Fatalf("Bit(enabled) = true after clearing")
	}
}

func TestSetFieldTriggerPosition(t *testing.T) {
	tests := []struct {
		pos  TriggerPosition
		want uint8
	}{
		{TrigPosOff, 0b0011_1010},
		{TrigPosRight, 0b0111_1010},
		{TrigPosLeft, 0b1011_1010},
		{TrigPosCenter, 0b1111_1010},
	}
	m := NewMap()
	for _, tt := range tests {
		m.Set(AddrAnalogTrigCtrl, 0b1111_1010)
		got := m.SetField(AddrAnalogTrigCtrl, ShiftTrigPos, MaskTrigPos, uint8(tt.pos))
		if got != tt.want {
			t.Fatalf("SetField(%s) = %#08b, want %#08b", tt.pos, got, tt.want)
		}
		if f := TriggerPosition(m.Field(AddrAnalogTrigCtrl, ShiftTrigPos, MaskTrigPos)); f != tt.pos {
			t.Fatalf("Field() = %s, want %s", f, tt.pos)
		}
	}
}

func TestSetFieldDropsOverflow(t *testing.T) {
	m := NewMap()
	m.Set(AddrCh2Ctrl, 0x01)
	got := m.SetField(AddrCh2Ctrl, ShiftVoltDiv, MaskVoltDiv, 0xff)
	if got != 0x1f {
		t.Fatalf("SetField(volt div, 0xff) = %#02x, want 0x1f", got)
	}
}

func TestInvalidAddrIgnored(t *testing.T) {
	m := NewMap()
	m.Set(Addr(0x20), 0x55)
	if got := m.Get(Addr(0x20)); got != 0 {
		t.Fatalf("Get(0x20) = %#02x, want 0", got)
	}
	for _, r := range m.All() {
		if r.Value != 0 {
			t.Fatalf("register %s = %#02x after invalid write", r.Addr, r.Value)
		}
	}
}

func TestRegHex(t *testing.T) {
	r := &Reg{Addr: AddrDeviceRev, Value: 0x2a}
	addr, value := r.Hex()
	back, err := NewRegFromHex(addr, value)
	if err != nil {
		t.Fatalf("NewRegFromHex(%s, %s) error = %v", addr, value, err)
	}
	if *back != *r {
		t.Fatalf("NewRegFromHex() = %v, want %v", back, r)
	}
	if _, err := ParseAddr("0x08"); err == nil {
		t.Fatalf("ParseAddr(0x08) error = nil, want out of range")
	}
}
