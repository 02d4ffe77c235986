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
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/gorilla/mux"

	"github.com/oscdroid/go-oscbridge/pkg/log"
)

// handleStream pushes the window of a channel over a websocket after
// every acquisition. Query parameters are those of GET /api/window.
func (s *ApiServer) handleStream() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ch, _ := strconv.Atoi(mux.Vars(r)["ch"])
		q := r.URL.Query()
		align, div := q.Get("align"), q.Get("div")
		if _, err := s.window(ch, align, div); err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		select {
		case <-s.closing:
			http.Error(rw, "server is shutting down", http.StatusServiceUnavailable)
			return
		default:
		}

		conn, _, _, err := ws.UpgradeHTTP(r, rw)
		if err != nil {
			log.Error("Error while upgrading stream: %s", err)
			return
		}
		log.Debug("Streaming channel %d to %s", ch, conn.RemoteAddr())
		go s.stream(conn, ch, align, div)
	}
}

func (s *ApiServer) stream(conn net.Conn, ch int, align, div string) {
	defer conn.Close()
	sub := s.ctrl.Subscribe(ch)
	defer s.ctrl.Unsubscribe(sub)

	// client messages are ignored, a read error ends the stream
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := wsutil.ReadClientData(conn); err != nil {
				return
			}
		}
	}()

	var (
		w       = wsutil.NewWriter(conn, ws.StateServerSide, ws.OpText)
		encoder = json.NewEncoder(w)
	)
	send := func() error {
		resp, err := s.window(ch, align, div)
		if err != nil {
			return err
		}
		if err := encoder.Encode(resp); err != nil {
			return err
		}
		return w.Flush()
	}

	if err := send(); err != nil {
		log.Debug("Stream of channel %d ended: %s", ch, err)
		return
	}
	for {
		select {
		case <-closed:
			log.Debug("Stream of channel %d closed by client", ch)
			return
		case <-s.closing:
			log.Debug("Stream of channel %d closed on shutdown", ch)
			return
		case <-sub:
			if err := send(); err != nil {
				log.Debug("Stream of channel %d ended: %s", ch, err)
				return
			}
		}
	}
}
