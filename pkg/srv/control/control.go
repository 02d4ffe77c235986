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
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oscdroid/go-oscbridge/pkg/buffer"
	"github.com/oscdroid/go-oscbridge/pkg/config"
	"github.com/oscdroid/go-oscbridge/pkg/connection"
	"github.com/oscdroid/go-oscbridge/pkg/device"
	"github.com/oscdroid/go-oscbridge/pkg/log"
	"github.com/oscdroid/go-oscbridge/pkg/reg"
	"github.com/oscdroid/go-oscbridge/pkg/srv/control/ifc"
	"github.com/oscdroid/go-oscbridge/pkg/srv/discover"
	"github.com/oscdroid/go-oscbridge/pkg/srv/record"
	"github.com/oscdroid/go-oscbridge/pkg/transport"
	"github.com/oscdroid/go-oscbridge/pkg/worker"
)

type ControlServer struct {
	context.Context
	*config.Config
	broker        transport.Broker
	conn          *connection.Connection
	scope         *device.Scope
	state         *RegState
	discoverState *discover.State
	watcher       *discover.Watcher
	recorder      *record.Recorder
	hub           *Hub
	api           ifc.ApiServer
}

var _ ifc.ControlServer = &ControlServer{}

// NewControlServer creates a server for the broker of the configured driver
func NewControlServer(ctx context.Context, cfg *config.Config) (*ControlServer, error) {
	broker, err := transport.NewBroker(cfg.Device)
	if err != nil {
		return nil, err
	}
	return NewControlServerWithBroker(ctx, cfg, broker)
}

func NewControlServerWithBroker(ctx context.Context, cfg *config.Config, broker transport.Broker) (*ControlServer, error) {
	log.Debug("Initializing control server with driver %s", cfg.Device.Driver)

	regState, err := NewRegState(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	discoverState, err := discover.NewState(cfg.DiscoverDBPath)
	if err != nil {
		regState.Close()
		return nil, err
	}

	s := &ControlServer{
		Context:       ctx,
		Config:        cfg,
		broker:        broker,
		state:         regState,
		discoverState: discoverState,
		recorder:      record.NewRecorder(),
		hub:           NewHub(),
	}
	s.conn = connection.New(broker, connection.Options{
		Policy:        worker.NewPolicy(cfg.Worker),
		Capacity:      cfg.Buffer.Capacity,
		OnRegister:    s.onRegister,
		OnAcquisition: s.onAcquisition,
		OnStateChange: s.onStateChange,
	})
	s.scope = device.NewScope(s.conn)
	s.watcher = discover.NewWatcher(broker, discoverState, cfg.Device.PollInterval())
	s.api = NewApiServer(cfg, s)
	return s, nil
}

func (s *ControlServer) Connection() *connection.Connection {
	return s.conn
}

func (s *ControlServer) Scope() *device.Scope {
	return s.scope
}

func (s *ControlServer) Watcher() *discover.Watcher {
	return s.watcher
}

func (s *ControlServer) Recorder() *record.Recorder {
	return s.recorder
}

func (s *ControlServer) Api() ifc.ApiServer {
	return s.api
}

func (s *ControlServer) LastRegs(device string) ([]*reg.Reg, error) {
	return s.state.GetRegAll(device)
}

func (s *ControlServer) Subscribe(ch int) <-chan *buffer.Snapshot {
	return s.hub.Subscribe(ch)
}

func (s *ControlServer) Unsubscribe(sub <-chan *buffer.Snapshot) {
	s.hub.Unsubscribe(sub)
}

// Run serves until the server context is cancelled or a component fails
func (s *ControlServer) Run() error {
	defer s.discoverState.Close()
	defer s.state.Close()
	defer s.broker.Close()

	s.conn.Activate()
	defer s.conn.Deactivate()
	if err := s.conn.Setup(); err != nil {
		log.Warning("No scope yet: %s", err)
	}

	g, ctx := errgroup.WithContext(s.Context)
	g.Go(func() error {
		return s.watcher.Run(ctx)
	})
	g.Go(func() error {
		return s.acquire(ctx)
	})
	g.Go(func() error {
		return s.recorder.Run(ctx)
	})
	g.Go(func() error {
		return s.api.Run(ctx)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// acquire requests one channel per tick. Reads share a single pending
// slot, so requesting both channels at once would drop the first. A tick
// that finds a write queued or a read outstanding is skipped, so settings
// are never displaced by acquisitions.
func (s *ControlServer) acquire(ctx context.Context) error {
	channels := s.Config.Acquire.Channels
	if len(channels) == 0 {
		log.Info("No channels to acquire")
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(s.Config.Acquire.Interval())
	defer ticker.Stop()
	next := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if s.conn.State() != connection.StateConnected {
			continue
		}
		ch := channels[next%len(channels)]
		err := s.scope.TryAcquire(ch)
		switch {
		case errors.Is(err, connection.ErrBusy):
			continue
		case err != nil && !errors.Is(err, connection.ErrNotConnected):
			log.Warning("Acquiring channel %d: %s", ch, err)
		}
		next++
	}
}

func (s *ControlServer) onRegister(dev transport.Identity, r reg.Reg) {
	if err := s.state.SetReg(dev.Key(), r); err != nil {
		log.Error("Error while storing register %s: %s", r.String(), err)
	}
}

func (s *ControlServer) onAcquisition(dev transport.Identity, ch int, snapshot *buffer.Snapshot) {
	s.recorder.Handle(ch, snapshot)
	s.hub.Notify(ch, snapshot)
}

func (s *ControlServer) onStateChange(state connection.State) {
	if state != connection.StateConnected {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(s.Context, ApplyTimeout)
		defer cancel()
		if err := s.scope.Apply(ctx); err != nil {
			log.Warning("Error while applying settings: %s", err)
		}
		if err := s.scope.PollRevision(); err != nil {
			log.Warning("Error while reading revision: %s", err)
		}
	}()
}
