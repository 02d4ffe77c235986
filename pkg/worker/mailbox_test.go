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
	"testing"
)

func TestCellLastWriteWins(t *testing.T) {
	wake := make(chan struct{}, 1)
	c := NewCell[int](wake)

	if _, ok := c.Take(); ok {
		t.Fatalf("Take() ok = true on empty cell")
	}
	if _, displaced := c.Post(1); displaced {
		t.Fatalf("Post(1) displaced = true on empty cell")
	}
	old, displaced := c.Post(2)
	if !displaced || *old != 1 {
		t.Fatalf("Post(2) = %v, %v, want 1, true", old, displaced)
	}
	v, ok := c.Take()
	if !ok || *v != 2 {
		t.Fatalf("Take() = %v, %v, want 2, true", v, ok)
	}
	if _, ok := c.Take(); ok {
		t.Fatalf("Take() ok = true after take")
	}

	select {
	case <-wake:
	default:
		t.Fatalf("Post() did not signal wake")
	}
}

func TestCellClearKeepsNewerValue(t *testing.T) {
	c := NewCell[string](make(chan struct{}, 1))
	c.Post("a")
	peeked, _ := c.Peek()
	c.Post("b")

	if c.Clear(peeked) {
		t.Fatalf("Clear(a) = true with b posted")
	}
	v, ok := c.Peek()
	if !ok || *v != "b" {
		t.Fatalf("Peek() = %v, %v, want b", v, ok)
	}
	if !c.Clear(v) {
		t.Fatalf("Clear(b) = false")
	}
	if _, ok := c.Peek(); ok {
		t.Fatalf("Peek() ok = true after Clear")
	}
}

func TestCellPostDoesNotBlock(t *testing.T) {
	c := NewCell[int](make(chan struct{}, 1))
	for i := 0; i < 100; i++ {
		c.Post(i)
	}
	if v, _ := c.Take(); *v != 99 {
		t.Fatalf("Take() = %d, want 99", *v)
	}
}
