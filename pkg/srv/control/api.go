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

// go-oscbridge API
//
// # RESTful APIs to interact with the oscilloscope bridge
//
// Schemes: http
// Host: localhost:8000
// Version: 1.0.0
//
//	Consumes:
//	- application/json
//
//	Produces:
//	- application/json
//
// swagger:meta
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/oscdroid/go-oscbridge/pkg/buffer"
	"github.com/oscdroid/go-oscbridge/pkg/config"
	"github.com/oscdroid/go-oscbridge/pkg/connection"
	"github.com/oscdroid/go-oscbridge/pkg/log"
	"github.com/oscdroid/go-oscbridge/pkg/reg"
	"github.com/oscdroid/go-oscbridge/pkg/srv"
	"github.com/oscdroid/go-oscbridge/pkg/srv/control/ifc"
	"github.com/oscdroid/go-oscbridge/pkg/srv/record"
	"github.com/oscdroid/go-oscbridge/pkg/worker"
)

// RegHex ...
type RegHex struct {
	Addr  string // hexadecimal
	Value string // hexadecimal
}

// SessionState is the state of the device session
type SessionState struct {
	State  string       `json:"state"`
	ID     string       `json:"id,omitempty"`
	Device string       `json:"device,omitempty"`
	Stats  worker.Stats `json:"stats"`
}

// ChannelSetup changes the fields that are set
type ChannelSetup struct {
	Enabled *bool `json:"enabled,omitempty"`
	VoltDiv *int  `json:"voltDiv,omitempty"`
}

type TrigSetup struct {
	Enabled  *bool  `json:"enabled,omitempty"`
	Position string `json:"position,omitempty"` // off|right|left|center
	Edge     string `json:"edge,omitempty"`     // rising|falling
	Mode     string `json:"mode,omitempty"`     // continuous|single
	Source   *int   `json:"source,omitempty"`
	Level    *int   `json:"level,omitempty"`
}

type TimeDivSetup struct {
	TimeDiv int `json:"timeDiv"`
}

// WindowResp is a display window of a channel
type WindowResp struct {
	buffer.Window
	Channel     int `json:"channel"`
	CenteredMin int `json:"centeredMin"`
	CenteredMax int `json:"centeredMax"`
}

type ApiServer struct {
	*config.Config
	*mux.Router
	ctrl ifc.ControlServer
	// closed when the server stops; hijacked streams are not closed by
	// http.Server.Shutdown
	closing   chan struct{}
	closeOnce sync.Once
}

var _ ifc.ApiServer = &ApiServer{}

func NewApiServer(cfg *config.Config, ctrl ifc.ControlServer) *ApiServer {
	log.Info("Initializing API server with address: %s port: %d", cfg.Address, cfg.ApiPort)
	s := &ApiServer{
		Config:  cfg,
		ctrl:    ctrl,
		closing: make(chan struct{}),
	}
	s.configureRouter()
	return s
}

func (s *ApiServer) Handler() http.Handler {
	return handlers.RecoveryHandler()(
		handlers.CORS(
			handlers.AllowedMethods([]string{"GET", "POST"}),
			handlers.AllowedHeaders([]string{"Content-Type"}),
		)(handlers.LoggingHandler(log.Writer(), s.Router)))
}

// Run serves until ctx is done
func (s *ApiServer) Run(ctx context.Context) error {
	log.Info("Starting API server: address: %s port: %d", s.Config.Address, s.Config.ApiPort)
	httpServer := &http.Server{
		Handler: s.Handler(),
		Addr:    fmt.Sprintf("%s:%d", s.Config.Address, s.Config.ApiPort),
	}
	go func() {
		<-ctx.Done()
		s.closeStreams()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *ApiServer) closeStreams() {
	s.closeOnce.Do(func() {
		close(s.closing)
	})
}

func (s *ApiServer) configureRouter() {
	s.Router = mux.NewRouter()
	subRouter := s.Router.PathPrefix(ApiPrefix).Subrouter()
	// swagger:operation GET /state session getState
	// ---
	// summary: Return the session state
	subRouter.HandleFunc("/state", s.handleState()).Methods("GET")
	subRouter.HandleFunc("/connect", s.handleConnect()).Methods("POST")
	subRouter.HandleFunc("/disconnect", s.handleDisconnect()).Methods("POST")
	s.ctrl.Watcher().AddRoutes(subRouter)

	// swagger:operation GET /reg/r/{addr} registers regRead
	// ---
	// summary: Return the local copy of a register
	subRouter.HandleFunc("/reg/r/{addr}", s.handleRegRead()).Methods("GET")
	subRouter.HandleFunc("/reg/r", s.handleRegReadAll()).Methods("GET")
	subRouter.HandleFunc("/reg/last/{device}", s.handleRegLast()).Methods("GET")
	// swagger:operation POST /reg/w registers regWrite
	// ---
	// summary: Write a register and wait for the device to accept it
	subRouter.HandleFunc("/reg/w", s.handleRegWrite()).Methods("POST")
	subRouter.HandleFunc("/reg/read/{addr}", s.handleRegPoll()).Methods("POST")

	subRouter.HandleFunc("/channel/{ch:[12]}", s.handleChannel()).Methods("POST")
	subRouter.HandleFunc("/trigger", s.handleTrigger()).Methods("POST")
	subRouter.HandleFunc("/timediv", s.handleTimeDiv()).Methods("POST")
	// swagger:operation GET /window/{ch} scope getWindow
	// ---
	// summary: Return the display window of a channel
	subRouter.HandleFunc("/window/{ch:[12]}", s.handleWindow()).Methods("GET")

	subRouter.HandleFunc("/record/{action}", s.handleRecordAction()).Methods("POST")

	s.Router.HandleFunc(StreamPrefix+"/window/{ch:[12]}", s.handleStream()).Methods("GET")
	s.addDocRoutes()
}

func (s *ApiServer) handleState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn := s.ctrl.Connection()
		state := &SessionState{
			State: conn.State().String(),
			ID:    conn.ID(),
			Stats: conn.Stats(),
		}
		if dev, ok := conn.Device(); ok {
			state.Device = dev.Key()
		}
		srv.WriteJSON(w, state)
	}
}

func (s *ApiServer) handleConnect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Debug("Handling connect request")
		conn := s.ctrl.Connection()
		if err := conn.Setup(); err != nil {
			if errors.Is(err, connection.ErrTransportUnavailable) {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		srv.WriteJSON(w, &SessionState{State: conn.State().String(), ID: conn.ID()})
	}
}

func (s *ApiServer) handleDisconnect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Debug("Handling disconnect request")
		if err := s.ctrl.Connection().Close(); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
		}
	}
}

func regHex(r *reg.Reg) *RegHex {
	hexAddr, hexValue := r.Hex()
	return &RegHex{Addr: hexAddr, Value: hexValue}
}

func (s *ApiServer) handleRegRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		log.Debug("Handling reg read request: addr: %s", vars["addr"])
		addr, err := reg.ParseAddr(vars["addr"])
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		value := s.ctrl.Connection().Register(addr)
		srv.WriteJSON(w, regHex(&reg.Reg{Addr: addr, Value: value}))
	}
}

func (s *ApiServer) handleRegReadAll() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Debug("Handling reg read all request")
		regsHex := []*RegHex{}
		for _, rg := range s.ctrl.Connection().Registers() {
			regsHex = append(regsHex, regHex(rg))
		}
		srv.WriteJSON(w, regsHex)
	}
}

func (s *ApiServer) handleRegLast() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		log.Debug("Handling last regs request: device: %s", vars["device"])
		regs, err := s.ctrl.LastRegs(vars["device"])
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		regsHex := []*RegHex{}
		for _, rg := range regs {
			regsHex = append(regsHex, regHex(rg))
		}
		srv.WriteJSON(w, regsHex)
	}
}

// writeStatus maps a session error to an HTTP status
func writeStatus(err error) int {
	switch {
	case errors.Is(err, connection.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, connection.ErrReadOnly):
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func (s *ApiServer) handleRegWrite() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := &RegHex{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Debug("Handling reg write request: addr: %s value: %s", req.Addr, req.Value)

		rg, err := reg.NewRegFromHex(req.Addr, req.Value)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), RegWriteTimeout)
		defer cancel()
		if err := s.ctrl.Connection().WriteRegisterWait(ctx, rg.Addr, rg.Value); err != nil {
			http.Error(w, err.Error(), writeStatus(err))
			return
		}
	}
}

func (s *ApiServer) handleRegPoll() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		addr, err := reg.ParseAddr(vars["addr"])
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.ctrl.Connection().RequestRead(addr, 2); err != nil {
			http.Error(w, err.Error(), writeStatus(err))
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func (s *ApiServer) handleChannel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, _ := strconv.Atoi(mux.Vars(r)["ch"])
		setup := &ChannelSetup{}
		if err := json.NewDecoder(r.Body).Decode(setup); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		scope := s.ctrl.Scope()
		if setup.VoltDiv != nil {
			if err := scope.SetVoltDiv(ch, *setup.VoltDiv); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		if setup.Enabled != nil {
			if err := scope.SetEnabled(ch, *setup.Enabled); err != nil {
				http.Error(w, err.Error(), writeStatus(err))
				return
			}
		}
		settings, _ := scope.Channel(ch)
		srv.WriteJSON(w, settings)
	}
}

func (s *ApiServer) handleTrigger() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setup := &TrigSetup{}
		if err := json.NewDecoder(r.Body).Decode(setup); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.applyTrigger(setup); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		srv.WriteJSON(w, s.ctrl.Scope().TriggerSettings())
	}
}

func (s *ApiServer) applyTrigger(setup *TrigSetup) error {
	scope := s.ctrl.Scope()
	if setup.Position != "" {
		pos, err := reg.ParseTriggerPosition(setup.Position)
		if err != nil {
			return err
		}
		if err := scope.SetTriggerPosition(pos); err != nil {
			return err
		}
	}
	switch setup.Edge {
	case "":
	case "rising", "falling":
		if err := scope.SetTriggerEdge(setup.Edge == "falling"); err != nil {
			return err
		}
	default:
		return srv.ErrUnknownOperation{What: "edge must be one of rising/falling"}
	}
	switch setup.Mode {
	case "":
	case "continuous", "single":
		if err := scope.SetRunMode(setup.Mode == "single"); err != nil {
			return err
		}
	default:
		return srv.ErrUnknownOperation{What: "mode must be one of continuous/single"}
	}
	if setup.Source != nil {
		if err := scope.SetTriggerSource(*setup.Source); err != nil {
			return err
		}
	}
	if setup.Level != nil {
		if *setup.Level < 0 || *setup.Level > 0xff {
			return fmt.Errorf("trigger level out of range: %d", *setup.Level)
		}
		if err := scope.SetTriggerLevel(uint8(*setup.Level)); err != nil {
			return err
		}
	}
	if setup.Enabled != nil {
		if err := scope.SetTriggerEnabled(*setup.Enabled); err != nil {
			return err
		}
	}
	return nil
}

func (s *ApiServer) handleTimeDiv() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setup := &TimeDivSetup{}
		if err := json.NewDecoder(r.Body).Decode(setup); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		scope := s.ctrl.Scope()
		if err := scope.SetTimeDiv(setup.TimeDiv); err != nil {
			http.Error(w, err.Error(), writeStatus(err))
			return
		}
		srv.WriteJSON(w, &TimeDivSetup{TimeDiv: scope.TimeDiv()})
	}
}

// window selects the window of ch. Empty align and div follow the scope.
func (s *ApiServer) window(ch int, align string, div string) (*WindowResp, error) {
	scope := s.ctrl.Scope()
	trig := scope.TriggerSettings()
	a := trig.Alignment()
	if align != "" {
		var err error
		if a, err = buffer.ParseAlignment(align); err != nil {
			return nil, err
		}
	}
	d := -1
	if div != "" {
		var err error
		if d, err = strconv.Atoi(div); err != nil {
			return nil, err
		}
		d = buffer.ClampTimeDiv(d)
	}
	win, err := scope.GetWindow(ch, a, d)
	if err != nil {
		return nil, err
	}
	return &WindowResp{
		Window:      *win,
		Channel:     ch,
		CenteredMin: win.CenteredMin(),
		CenteredMax: win.CenteredMax(),
	}, nil
}

func (s *ApiServer) handleWindow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, _ := strconv.Atoi(mux.Vars(r)["ch"])
		q := r.URL.Query()
		resp, err := s.window(ch, q.Get("align"), q.Get("div"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		srv.WriteJSON(w, resp)
	}
}

func (s *ApiServer) handleRecordAction() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		log.Debug("Handling record action request: action: %s", vars["action"])
		recorder := s.ctrl.Recorder()
		switch vars["action"] {
		case "start":
			persist := record.Persist{}
			if err := json.NewDecoder(r.Body).Decode(&persist); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := recorder.Start(persist); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		case "stop":
			if err := recorder.Stop(); err != nil {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
		default:
			err := srv.ErrUnknownOperation{
				What: "Wrong record action. Must be one of start/stop",
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
}
