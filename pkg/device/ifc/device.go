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

package ifc

import (
	"context"

	"github.com/oscdroid/go-oscbridge/pkg/buffer"
	"github.com/oscdroid/go-oscbridge/pkg/reg"
)

// Scope is what the bridge server needs from a scope front end
type Scope interface {
	SetEnabled(ch int, on bool) error
	SetVoltDiv(ch int, div int) error
	SetTimeDiv(div int) error
	SetOffset(ch int, dx, dy float64) error
	SetZoom(ch int, zx, zy float64) error
	ReleaseZoom(ch int) error
	ResetZoom(ch int) error

	SetTriggerEnabled(on bool) error
	SetTriggerPosition(pos reg.TriggerPosition) error
	SetTriggerSource(ch int) error
	SetTriggerEdge(falling bool) error
	SetRunMode(single bool) error
	SetTriggerLevel(level uint8) error

	Acquire(ch int) error
	TryAcquire(ch int) error
	PollRevision() error
	Apply(ctx context.Context) error

	GetWindow(ch int, align buffer.Alignment, div int) (*buffer.Window, error)
	TimeDiv() int
}
