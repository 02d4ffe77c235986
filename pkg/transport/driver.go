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

package transport

import (
	"fmt"
	"sort"
	"sync"

	"github.com/oscdroid/go-oscbridge/pkg/config"
)

type Driver interface {
	NewBroker(cfg *config.DeviceConfig) (Broker, error)
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a transport driver available by the provided name.
// It panics if called twice with the same name or with a nil driver.
func Register(name string, driver Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if driver == nil {
		panic("transport: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("transport: Register called twice for driver " + name)
	}
	drivers[name] = driver
}

// Drivers returns the sorted names of registered drivers
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	list := make([]string, 0, len(drivers))
	for name := range drivers {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}

func NewBroker(cfg *config.DeviceConfig) (Broker, error) {
	driversMu.RLock()
	driver, ok := drivers[cfg.Driver]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("transport: unknown driver %q (forgotten import?)", cfg.Driver)
	}
	return driver.NewBroker(cfg)
}
