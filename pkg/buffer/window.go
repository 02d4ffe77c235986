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

package buffer

import (
	"fmt"
)

// Alignment places the trigger inside the display window
type Alignment int

const (
	// AlignOff ignores the trigger and starts at the middle of the ring
	AlignOff Alignment = iota
	// AlignRight ends the window at the trigger
	AlignRight
	// AlignLeft puts the trigger at one fifth of the window
	AlignLeft
	AlignCenter
)

var alignmentNames = map[Alignment]string{
	AlignOff:    "off",
	AlignRight:  "right",
	AlignLeft:   "left",
	AlignCenter: "center",
}

func (a Alignment) String() string {
	if name, ok := alignmentNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Alignment(%d)", int(a))
}

func ParseAlignment(s string) (Alignment, error) {
	for a, name := range alignmentNames {
		if name == s {
			return a, nil
		}
	}
	return AlignOff, fmt.Errorf("unknown alignment %q", s)
}

// Segment is a half open index range [From, To) of the ring
type Segment struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Window is a contiguous, possibly wrapping, range of a snapshot with
// the statistics of its samples.
type Window struct {
	// Generation of the snapshot the window was taken from
	Generation uint64  `json:"generation"`
	Start      int     `json:"start"`
	Stop       int     `json:"stop"`
	Length     int     `json:"length"`
	Capacity   int     `json:"capacity"`
	Wraps      bool    `json:"wraps"`
	Trigger    int     `json:"trigger"`
	Min        uint8   `json:"min"`
	Max        uint8   `json:"max"`
	PeakPeak   uint8   `json:"peakPeak"`
	Samples    []uint8 `json:"samples"`
}

// Index returns the ring index of the i-th window sample
func (w *Window) Index(i int) int {
	idx := w.Start + i
	if idx >= w.Capacity {
		idx -= w.Capacity
	}
	return idx
}

// Segments returns one range, or two when the window wraps
func (w *Window) Segments() []Segment {
	if w.Length == 0 {
		return nil
	}
	if !w.Wraps {
		return []Segment{{From: w.Start, To: w.Start + w.Length}}
	}
	return []Segment{{From: w.Start, To: w.Capacity}, {From: 0, To: w.Stop}}
}

// CenteredMin is Min relative to mid-scale
func (w *Window) CenteredMin() int {
	return int(w.Min) - 128
}

// CenteredMax is Max relative to mid-scale
func (w *Window) CenteredMax() int {
	return int(w.Max) - 128
}

// Select returns length samples of s placed around the trigger address
// according to align. A window longer than the snapshot, or one that
// would start outside it, shows the whole snapshot from index 0.
func Select(s *Snapshot, length int, align Alignment) Window {
	n := s.Len()
	w := Window{Generation: s.Generation(), Capacity: n, Trigger: s.Trigger()}
	if n == 0 || length <= 0 {
		return w
	}

	t := s.Trigger()
	var start int
	switch align {
	case AlignRight:
		start = mod(t-length, n)
	case AlignCenter:
		start = mod(t-length/2, n)
	case AlignLeft:
		start = mod(t-length/5, n)
	default:
		start = n / 2
	}
	if length > n || start < 0 || start >= n {
		length = n
		start = 0
	}

	w.Start = start
	w.Stop = (start + length) % n
	w.Length = length
	w.Wraps = start+length > n
	w.Samples = make([]uint8, length)

	// samples and statistics in one pass
	w.Min, w.Max = 0xff, 0x00
	idx := start
	for i := 0; i < length; i++ {
		v := s.samples[idx]
		w.Samples[i] = v
		if v < w.Min {
			w.Min = v
		}
		if v > w.Max {
			w.Max = v
		}
		idx++
		if idx == n {
			idx = 0
		}
	}
	w.PeakPeak = w.Max - w.Min
	return w
}

func mod(a, n int) int {
	a %= n
	if a < 0 {
		a += n
	}
	return a
}
