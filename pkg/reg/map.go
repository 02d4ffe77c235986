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
	"sync"
)

// Map is the host copy of the register file. It only reflects what the
// host last wrote or read back; it is never a live view of the device.
// Addresses outside the register file are ignored.
type Map struct {
	mu   sync.RWMutex
	regs [NumRegs]uint8
}

func NewMap() *Map {
	return &Map{}
}

func (m *Map) Get(addr Addr) uint8 {
	if !addr.Valid() {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.regs[addr]
}

func (m *Map) Set(addr Addr, value uint8) {
	if !addr.Valid() {
		return
	}
	m.mu.Lock()
	m.regs[addr] = value
	m.mu.Unlock()
}

// SetBit sets or clears one bit and returns the new register value.
func (m *Map) SetBit(addr Addr, bit uint, on bool) uint8 {
	return m.update(addr, func(v uint8) uint8 {
		return setBit(v, bit, on)
	})
}

// SetField replaces the bits selected by mask with value<<shift and
// returns the new register value. Bits of value outside the mask are dropped.
func (m *Map) SetField(addr Addr, shift uint, mask uint8, value uint8) uint8 {
	return m.update(addr, func(v uint8) uint8 {
		return (v &^ mask) | ((value << shift) & mask)
	})
}

// Field extracts the bits selected by mask
func (m *Map) Field(addr Addr, shift uint, mask uint8) uint8 {
	return (m.Get(addr) & mask) >> shift
}

func (m *Map) Bit(addr Addr, bit uint) bool {
	return m.Get(addr)&(1<<bit) != 0
}

func (m *Map) update(addr Addr, f func(uint8) uint8) uint8 {
	if !addr.Valid() {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[addr] = f(m.regs[addr])
	return m.regs[addr]
}

// Reset zeroes all registers
func (m *Map) Reset() {
	m.mu.Lock()
	m.regs = [NumRegs]uint8{}
	m.mu.Unlock()
}

// All returns registers in address order
func (m *Map) All() []*Reg {
	m.mu.RLock()
	defer m.mu.RUnlock()
	regs := make([]*Reg, 0, NumRegs)
	for addr, value := range m.regs {
		regs = append(regs, &Reg{Addr: Addr(addr), Value: value})
	}
	return regs
}

func setBit(v uint8, bit uint, on bool) uint8 {
	if on {
		return v | (1 << bit)
	}
	return v &^ (1 << bit)
}
