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

package config

import (
	"fmt"
)

// ErrConfigFileExists returned when Persist is asked not to overwrite an existing file
type ErrConfigFileExists struct {
	Path string
}

func (e ErrConfigFileExists) Error() string {
	return fmt.Sprintf("Config file already exists: %s", e.Path)
}

// ErrBadHexID returned when a USB vendor or product id can not be parsed
type ErrBadHexID struct {
	Field string
	Value string
}

func (e ErrBadHexID) Error() string {
	return fmt.Sprintf("Wrong %s: %q. Must be a hexadecimal like 0x04d8", e.Field, e.Value)
}
