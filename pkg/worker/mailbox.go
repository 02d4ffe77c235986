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

package worker

import (
	"sync/atomic"
)

// Cell is a single slot mailbox. A newer Post replaces a value that was
// not taken yet. Every Post signals wake without blocking.
type Cell[T any] struct {
	v    atomic.Pointer[T]
	wake chan struct{}
}

func NewCell[T any](wake chan struct{}) *Cell[T] {
	return &Cell[T]{wake: wake}
}

// Post stores v and returns the value it displaced, if any
func (c *Cell[T]) Post(v T) (*T, bool) {
	return c.put(&v)
}

// PostIfEmpty stores v only if the cell holds nothing
func (c *Cell[T]) PostIfEmpty(v T) bool {
	if !c.v.CompareAndSwap(nil, &v) {
		return false
	}
	c.signal()
	return true
}

func (c *Cell[T]) put(p *T) (*T, bool) {
	old := c.v.Swap(p)
	c.signal()
	return old, old != nil
}

func (c *Cell[T]) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Take empties the cell
func (c *Cell[T]) Take() (*T, bool) {
	v := c.v.Swap(nil)
	return v, v != nil
}

// Peek returns the current value and leaves it in place
func (c *Cell[T]) Peek() (*T, bool) {
	v := c.v.Load()
	return v, v != nil
}

// Clear empties the cell only if it still holds v. A value posted after
// v was peeked survives.
func (c *Cell[T]) Clear(v *T) bool {
	return c.v.CompareAndSwap(v, nil)
}
