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

package connection

import (
	"errors"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingPermission
	StateConnected
	StateDisconnecting
)

var stateNames = map[State]string{
	StateDisconnected:       "disconnected",
	StateConnecting:         "connecting",
	StateAwaitingPermission: "awaiting_permission",
	StateConnected:          "connected",
	StateDisconnecting:      "disconnecting",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

var (
	// ErrTransportUnavailable means there is no device or it could not
	// be opened. The connection is back in StateDisconnected.
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrNotConnected         = errors.New("not connected")
	ErrReadOnly             = errors.New("register is read-only")
	ErrInvalidLength        = errors.New("read length must be positive")
	// ErrBusy means a transfer is still queued or outstanding
	ErrBusy = errors.New("transfer in progress")
)
