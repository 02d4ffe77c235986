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

package control

import (
	"time"
)

const (
	ApiPrefix    = "/api"
	StreamPrefix = "/ws"

	// ApplyTimeout bounds pushing all settings after a connect
	ApplyTimeout = 5 * time.Second
	// ShutdownTimeout bounds draining HTTP requests on exit
	ShutdownTimeout = 5 * time.Second
	// RegWriteTimeout bounds a register write requested over the API
	RegWriteTimeout = 3 * time.Second
)
