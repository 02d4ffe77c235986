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
	"github.com/oscdroid/go-oscbridge/pkg/buffer"
	"github.com/oscdroid/go-oscbridge/pkg/reg"
)

const (
	Nch = 2
	// MidScale is the sample value of 0 V
	MidScale = 128
)

type ChannelSettings struct {
	Enabled bool    `json:"enabled"`
	VoltDiv int     `json:"voltDiv"`
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
	ZoomX   float64 `json:"zoomX"`
	ZoomY   float64 `json:"zoomY"`

	// zoom at the end of the last gesture
	zoomBaseX float64
	zoomBaseY float64
}

func NewChannelSettings() *ChannelSettings {
	return &ChannelSettings{}
}

// CtrlValue encodes the channel control register
func (c *ChannelSettings) CtrlValue() uint8 {
	var v uint8
	if c.Enabled {
		v |= 1 << reg.BitChEnabled
	}
	v |= (uint8(c.VoltDiv) << reg.ShiftVoltDiv) & reg.MaskVoltDiv
	return v
}

// offsets accumulate at half the gesture distance
func (c *ChannelSettings) addOffset(dx, dy float64) {
	c.OffsetX += dx / 2
	c.OffsetY += dy / 2
}

func (c *ChannelSettings) setZoom(zx, zy float64) {
	c.ZoomX = c.zoomBaseX + zx
	c.ZoomY = c.zoomBaseY + zy
}

func (c *ChannelSettings) releaseZoom() {
	c.zoomBaseX = c.ZoomX
	c.zoomBaseY = c.ZoomY
}

func (c *ChannelSettings) resetZoom() {
	*c = ChannelSettings{Enabled: c.Enabled, VoltDiv: c.VoltDiv}
}

type TriggerSettings struct {
	Enabled  bool                `json:"enabled"`
	Position reg.TriggerPosition `json:"position"`
	// Source is the triggering channel, 1 or 2
	Source  int   `json:"source"`
	Falling bool  `json:"falling"`
	Single  bool  `json:"single"`
	Level   uint8 `json:"level"`
}

func NewTriggerSettings() *TriggerSettings {
	return &TriggerSettings{
		Enabled:  true,
		Position: reg.TrigPosCenter,
		Source:   1,
		Level:    MidScale,
	}
}

// CtrlValue encodes the analog trigger control register
func (t *TriggerSettings) CtrlValue() uint8 {
	var v uint8
	if t.Enabled {
		v |= 1 << reg.BitTrigEnabled
	}
	if t.Source == 2 {
		v |= 1 << reg.BitTrigSource
	}
	if t.Falling {
		v |= 1 << reg.BitTrigEdge
	}
	if t.Single {
		v |= 1 << reg.BitRunMode
	}
	v |= (uint8(t.Position) << reg.ShiftTrigPos) & reg.MaskTrigPos
	return v
}

// Alignment is the window alignment matching the trigger position
func (t *TriggerSettings) Alignment() buffer.Alignment {
	return AlignmentFor(t.Position)
}

func AlignmentFor(pos reg.TriggerPosition) buffer.Alignment {
	switch pos {
	case reg.TrigPosRight:
		return buffer.AlignRight
	case reg.TrigPosLeft:
		return buffer.AlignLeft
	case reg.TrigPosCenter:
		return buffer.AlignCenter
	}
	return buffer.AlignOff
}
