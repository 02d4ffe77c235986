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

package discover

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/oscdroid/go-oscbridge/pkg/log"
	"github.com/oscdroid/go-oscbridge/pkg/srv"
)

// AddRoutes mounts the discovery endpoints on an API subrouter
func (w *Watcher) AddRoutes(subRouter *mux.Router) {
	// swagger:operation GET /devices devices getDevices
	// ---
	// summary: Return a list of discovered devices
	// description: Devices not seen for 3 seconds are reported offline.
	subRouter.HandleFunc("/devices", w.handleDevices()).Methods("GET")
	subRouter.HandleFunc("/devices/scan", w.handleScan()).Methods("POST")
}

func (w *Watcher) handleDevices() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		log.Debug("Handling devices request")
		devices, err := w.Devices()
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadGateway)
			return
		}
		if devices == nil {
			devices = []*DeviceDescription{}
		}
		srv.WriteJSON(rw, devices)
	}
}

func (w *Watcher) handleScan() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		log.Debug("Handling scan request")
		devices, err := w.Scan()
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadGateway)
			return
		}
		result := make([]*DeviceDescription, 0, len(devices))
		for _, dev := range devices {
			dd := NewDeviceDescription(dev)
			dd.SetTimestamp()
			dd.Online = true
			result = append(result, dd)
		}
		srv.WriteJSON(rw, result)
	}
}
