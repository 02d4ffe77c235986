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
	"github.com/oscdroid/go-oscbridge/pkg/device"
	"github.com/oscdroid/go-oscbridge/pkg/srv/control"
	"github.com/oscdroid/go-oscbridge/pkg/srv/discover"
)

type ApiClient interface {
	State() (*control.SessionState, error)
	Connect() (*control.SessionState, error)
	Disconnect() error

	Devices() ([]*discover.DeviceDescription, error)
	Scan() ([]*discover.DeviceDescription, error)

	RegRead(addr string) (string, error)
	RegReadAll() (map[string]string, error)
	RegLast(device string) (map[string]string, error)
	RegWrite(addr, value string) error
	RegPoll(addr string) error

	Channel(ch int, setup *control.ChannelSetup) (*device.ChannelSettings, error)
	Trigger(setup *control.TrigSetup) (*device.TriggerSettings, error)
	TimeDiv(div int) (int, error)
	// Window returns the window of ch; empty align and negative div
	// follow the scope settings
	Window(ch int, align string, div int) (*control.WindowResp, error)

	RecordStart(dir, filePrefix string) error
	RecordStop() error
}
