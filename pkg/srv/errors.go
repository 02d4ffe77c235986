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

package srv

import (
	"fmt"
)

// ErrUnknownOperation returned when a request names an action the server does not have
type ErrUnknownOperation struct {
	What string
}

func (e ErrUnknownOperation) Error() string {
	return fmt.Sprintf("Unknown operation: %s", e.What)
}

// ErrDeviceNotFound returned when there is no stored state for a device
type ErrDeviceNotFound struct {
	Device string
}

func (e ErrDeviceNotFound) Error() string {
	return fmt.Sprintf("Device not found: %s", e.Device)
}
