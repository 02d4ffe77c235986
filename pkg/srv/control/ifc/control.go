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
	"net/http"

	"github.com/oscdroid/go-oscbridge/pkg/buffer"
	"github.com/oscdroid/go-oscbridge/pkg/connection"
	"github.com/oscdroid/go-oscbridge/pkg/device"
	"github.com/oscdroid/go-oscbridge/pkg/reg"
	"github.com/oscdroid/go-oscbridge/pkg/srv/discover"
	"github.com/oscdroid/go-oscbridge/pkg/srv/record"
)

type ControlServer interface {
	Run() error

	Connection() *connection.Connection
	Scope() *device.Scope
	Watcher() *discover.Watcher
	Recorder() *record.Recorder

	// LastRegs returns the registers last seen on a device, by device key
	LastRegs(device string) ([]*reg.Reg, error)
	// Subscribe returns a channel signalled after every acquisition of ch
	Subscribe(ch int) <-chan *buffer.Snapshot
	Unsubscribe(sub <-chan *buffer.Snapshot)
}

type ApiServer interface {
	Run(ctx context.Context) error
	Handler() http.Handler
}
