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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/oscdroid/go-oscbridge/pkg/buffer"
	"github.com/oscdroid/go-oscbridge/pkg/config"
	"github.com/oscdroid/go-oscbridge/pkg/connection"
	"github.com/oscdroid/go-oscbridge/pkg/reg"
	"github.com/oscdroid/go-oscbridge/pkg/srv"
	"github.com/oscdroid/go-oscbridge/pkg/transport/mock"
)

const testCapacity = 256

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewDefaultConfig()
	cfg.Device.Driver = mock.DriverName
	cfg.DBPath = filepath.Join(dir, "reg.db")
	cfg.DiscoverDBPath = filepath.Join(dir, "discover.db")
	cfg.Buffer.Capacity = testCapacity
	cfg.Worker.WriteAttempts = 3
	cfg.Worker.TransferTimeoutMs = 5
	cfg.Worker.RetryIntervalMs = 1
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

type fixture struct {
	ctrl   *ControlServer
	broker *mock.Broker
	http   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, mock.NewBroker(mock.DefaultIdentity))
}

func newFixtureWith(t *testing.T, b *mock.Broker) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ctrl, err := NewControlServerWithBroker(ctx, testConfig(t), b)
	if err != nil {
		cancel()
		t.Fatalf("NewControlServerWithBroker() error = %v", err)
	}
	ctrl.Connection().Activate()
	hs := httptest.NewServer(ctrl.Api().Handler())
	t.Cleanup(func() {
		hs.Close()
		ctrl.Connection().Deactivate()
		cancel()
		ctrl.state.Close()
		ctrl.discoverState.Close()
	})
	return &fixture{ctrl: ctrl, broker: b, http: hs}
}

// connect opens a session and waits until the settings pushed on connect
// and the revision poll are through.
func (f *fixture) connect(t *testing.T) {
	t.Helper()
	f.broker.SetPermission(mock.DefaultIdentity, true)
	resp := f.post(t, "/api/connect", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/connect status = %d", resp.StatusCode)
	}
	waitFor(t, "revision", func() bool {
		return f.ctrl.Connection().Register(reg.AddrDeviceRev) == mock.Revision
	})
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.http.URL + path)
	if err != nil {
		t.Fatalf("GET %s error = %v", path, err)
	}
	return resp
}

func (f *fixture) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(f.http.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s error = %v", path, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d body = %s", resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	resp.Body.Close()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d", resp.StatusCode, want)
	}
}

func TestStateDisconnected(t *testing.T) {
	f := newFixture(t)
	state := &SessionState{}
	decode(t, f.get(t, "/api/state"), state)
	if state.State != connection.StateDisconnected.String() {
		t.Fatalf("state = %s, want disconnected", state.State)
	}
	if state.Device != "" {
		t.Fatalf("device = %s, want none", state.Device)
	}
}

func TestConnectWithoutDevice(t *testing.T) {
	f := newFixtureWith(t, mock.NewBroker())
	expectStatus(t, f.post(t, "/api/connect", ""), http.StatusServiceUnavailable)
}

func TestConnectAndDisconnect(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	state := &SessionState{}
	decode(t, f.get(t, "/api/state"), state)
	if state.State != "connected" || state.Device != mock.DefaultIdentity.Key() || state.ID == "" {
		t.Fatalf("state = %+v", state)
	}

	expectStatus(t, f.post(t, "/api/disconnect", ""), http.StatusOK)
	if s := f.ctrl.Connection().State(); s != connection.StateDisconnected {
		t.Fatalf("State() = %s after disconnect", s)
	}
}

func TestSettingsAppliedOnConnect(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	dev := f.broker.Transports()[0].Device()
	// channel 1 is enabled by default
	if v := dev.Registers().Get(reg.AddrCh1Ctrl); v&(1<<reg.BitChEnabled) == 0 {
		t.Fatalf("ch1 ctrl = 0x%02x, want enabled", v)
	}
	trig := f.ctrl.Scope().TriggerSettings()
	if v := dev.Registers().Get(reg.AddrAnalogTrigCtrl); v != trig.CtrlValue() {
		t.Fatalf("trig ctrl = 0x%02x, want 0x%02x", v, trig.CtrlValue())
	}
}

func TestRegWrite(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	expectStatus(t, f.post(t, "/api/reg/w", `{"Addr":"0x05","Value":"0x5a"}`), http.StatusOK)
	if v := f.broker.Transports()[0].Device().Registers().Get(reg.AddrLogicTrigLevel); v != 0x5a {
		t.Fatalf("device register = 0x%02x, want 0x5a", v)
	}

	rh := &RegHex{}
	decode(t, f.get(t, "/api/reg/r/0x05"), rh)
	if rh.Addr != "0x05" || rh.Value != "0x5a" {
		t.Fatalf("reg read = %+v", rh)
	}

	var all []*RegHex
	decode(t, f.get(t, "/api/reg/r"), &all)
	if len(all) != reg.NumRegs {
		t.Fatalf("reg read all returned %d registers, want %d", len(all), reg.NumRegs)
	}

	var last []*RegHex
	decode(t, f.get(t, "/api/reg/last/"+mock.DefaultIdentity.Key()), &last)
	found := false
	for _, r := range last {
		if r.Addr == "0x05" && r.Value == "0x5a" {
			found = true
		}
	}
	if !found {
		t.Fatalf("last registers %+v miss the write", last)
	}
}

func TestRegWriteErrors(t *testing.T) {
	f := newFixture(t)
	expectStatus(t, f.post(t, "/api/reg/w", `{"Addr":"0x05","Value":"0x01"}`), http.StatusConflict)
	expectStatus(t, f.post(t, "/api/reg/w", `{"Addr":"0x09","Value":"0x01"}`), http.StatusBadRequest)
	expectStatus(t, f.post(t, "/api/reg/w", `not json`), http.StatusBadRequest)

	f.connect(t)
	expectStatus(t, f.post(t, "/api/reg/w", `{"Addr":"0x07","Value":"0x01"}`), http.StatusBadRequest)
	expectStatus(t, f.get(t, "/api/reg/last/unknown"), http.StatusNotFound)
}

func TestRegPoll(t *testing.T) {
	f := newFixture(t)
	expectStatus(t, f.post(t, "/api/reg/read/0x07", ""), http.StatusConflict)
	f.connect(t)
	expectStatus(t, f.post(t, "/api/reg/read/0x07", ""), http.StatusAccepted)
}

func TestChannelAndTrigger(t *testing.T) {
	f := newFixture(t)

	settings := map[string]interface{}{}
	decode(t, f.post(t, "/api/channel/2", `{"enabled":true,"voltDiv":3}`), &settings)
	if settings["enabled"] != true || settings["voltDiv"] != float64(3) {
		t.Fatalf("channel settings = %v", settings)
	}
	expectStatus(t, f.post(t, "/api/channel/2", `{"voltDiv":11}`), http.StatusBadRequest)
	expectStatus(t, f.post(t, "/api/channel/3", `{}`), http.StatusNotFound)

	decode(t, f.post(t, "/api/trigger", `{"position":"left","edge":"falling","mode":"single","level":100}`), &settings)
	trig := f.ctrl.Scope().TriggerSettings()
	if trig.Position != reg.TrigPosLeft || !trig.Falling || !trig.Single || trig.Level != 100 {
		t.Fatalf("trigger = %+v", trig)
	}
	expectStatus(t, f.post(t, "/api/trigger", `{"edge":"both"}`), http.StatusBadRequest)
	expectStatus(t, f.post(t, "/api/trigger", `{"level":300}`), http.StatusBadRequest)

	td := &TimeDivSetup{}
	decode(t, f.post(t, "/api/timediv", `{"timeDiv":99}`), td)
	if td.TimeDiv != buffer.MaxTimeDiv {
		t.Fatalf("time div = %d, want %d", td.TimeDiv, buffer.MaxTimeDiv)
	}
}

func TestWindow(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	ring, _ := f.ctrl.Connection().Ring(1)
	if err := f.ctrl.Scope().Acquire(1); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	waitFor(t, "acquisition", func() bool { return ring.Load().Generation() == 1 })

	win := &WindowResp{}
	decode(t, f.get(t, "/api/window/1?align=center&div=0"), win)
	if win.Channel != 1 || win.Generation != 1 {
		t.Fatalf("window channel %d generation %d", win.Channel, win.Generation)
	}
	if win.Length != buffer.WindowLength(0) || len(win.Samples) != win.Length {
		t.Fatalf("window length %d with %d samples", win.Length, len(win.Samples))
	}
	if win.Capacity != testCapacity {
		t.Fatalf("window capacity = %d, want %d", win.Capacity, testCapacity)
	}
	if win.CenteredMax != int(win.Max)-128 {
		t.Fatalf("centered max = %d for max %d", win.CenteredMax, win.Max)
	}

	// longer than the ring shows the whole ring
	decode(t, f.get(t, "/api/window/1?div=23"), win)
	if win.Length != testCapacity || win.Start != 0 {
		t.Fatalf("oversized window start %d length %d", win.Start, win.Length)
	}

	expectStatus(t, f.get(t, "/api/window/1?align=top"), http.StatusBadRequest)
}

func TestRecordActions(t *testing.T) {
	f := newFixture(t)
	expectStatus(t, f.post(t, "/api/record/stop", ""), http.StatusConflict)
	expectStatus(t, f.post(t, "/api/record/pause", ""), http.StatusBadRequest)
	expectStatus(t, f.post(t, "/api/record/start", `{"dir":"`+t.TempDir()+`"}`), http.StatusBadRequest)

	expectStatus(t, f.post(t, "/api/record/start", `{"dir":"`+t.TempDir()+`","filePrefix":"run"}`), http.StatusOK)
	if _, ok := f.ctrl.Recorder().Recording(); !ok {
		t.Fatalf("Recording() = false after start")
	}
	expectStatus(t, f.post(t, "/api/record/stop", ""), http.StatusOK)
}

func TestDevicesRoute(t *testing.T) {
	f := newFixture(t)
	var devices []map[string]interface{}
	decode(t, f.post(t, "/api/devices/scan", ""), &devices)
	if len(devices) != 1 || devices[0]["key"] != mock.DefaultIdentity.Key() {
		t.Fatalf("scan = %v", devices)
	}
}

func TestStream(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + StreamPrefix + "/window/1?div=0"
	conn, br, _, err := ws.Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	rw := struct {
		io.Reader
		io.Writer
	}{conn, conn}
	if br != nil {
		rw.Reader = br
	}

	read := func() *WindowResp {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		data, op, err := wsutil.ReadServerData(rw)
		if err != nil {
			t.Fatalf("ReadServerData() error = %v", err)
		}
		if op != ws.OpText {
			t.Fatalf("op = %v, want text", op)
		}
		win := &WindowResp{}
		if err := json.Unmarshal(data, win); err != nil {
			t.Fatalf("decoding window: %v", err)
		}
		return win
	}

	if win := read(); win.Generation != 0 || win.Channel != 1 {
		t.Fatalf("first window = generation %d channel %d", win.Generation, win.Channel)
	}
	waitFor(t, "subscription", func() bool { return f.ctrl.hub.subscribers(1) == 1 })
	if err := f.ctrl.Scope().Acquire(1); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if win := read(); win.Generation != 1 || win.Length != buffer.WindowLength(0) {
		t.Fatalf("pushed window = generation %d length %d", win.Generation, win.Length)
	}
}

func TestStreamBadChannel(t *testing.T) {
	f := newFixture(t)
	expectStatus(t, f.get(t, StreamPrefix+"/window/1?align=top"), http.StatusBadRequest)
}

func TestDocs(t *testing.T) {
	doc, err := LoadSpec()
	if err != nil {
		t.Fatalf("LoadSpec() error = %v", err)
	}
	if doc.Spec().BasePath != ApiPrefix {
		t.Fatalf("base path = %s, want %s", doc.Spec().BasePath, ApiPrefix)
	}

	f := newFixture(t)
	resp := f.get(t, "/swagger.json")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "getWindow") {
		t.Fatalf("swagger.json status %d", resp.StatusCode)
	}
	expectStatus(t, f.get(t, "/docs"), http.StatusOK)
}

func TestRegState(t *testing.T) {
	s, err := NewRegState(filepath.Join(t.TempDir(), "reg.db"))
	if err != nil {
		t.Fatalf("NewRegState() error = %v", err)
	}
	defer s.Close()

	if _, err := s.GetRegAll("dev"); err == nil {
		t.Fatalf("GetRegAll() of unknown device succeeded")
	} else if _, ok := err.(srv.ErrDeviceNotFound); !ok {
		t.Fatalf("GetRegAll() error = %v, want ErrDeviceNotFound", err)
	}

	for _, r := range []reg.Reg{{Addr: 0x04, Value: 0xc3}, {Addr: 0x00, Value: 0x01}, {Addr: 0x04, Value: 0xc2}} {
		if err := s.SetReg("dev", r); err != nil {
			t.Fatalf("SetReg() error = %v", err)
		}
	}
	r, err := s.GetReg("dev", 0x04)
	if err != nil || r.Value != 0xc2 {
		t.Fatalf("GetReg() = %v, %v", r, err)
	}
	if _, err := s.GetReg("dev", 0x06); err == nil {
		t.Fatalf("GetReg() of unset register succeeded")
	}
	all, err := s.GetRegAll("dev")
	if err != nil {
		t.Fatalf("GetRegAll() error = %v", err)
	}
	if len(all) != 2 || all[0].Addr != 0x00 || all[1].Addr != 0x04 {
		t.Fatalf("GetRegAll() = %v", all)
	}
}

func TestHubKeepsNewest(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe(1)
	other := h.Subscribe(2)

	r := buffer.NewRing(8)
	first := r.Replace(make([]uint8, 8), 0)
	second := r.Replace(make([]uint8, 8), 1)
	h.Notify(1, first)
	h.Notify(1, second)

	select {
	case s := <-sub:
		if s.Generation() != second.Generation() {
			t.Fatalf("got generation %d, want %d", s.Generation(), second.Generation())
		}
	default:
		t.Fatalf("no snapshot delivered")
	}
	select {
	case <-other:
		t.Fatalf("channel 2 subscriber notified for channel 1")
	default:
	}

	h.Unsubscribe(sub)
	h.Notify(1, first)
	select {
	case <-sub:
		t.Fatalf("notified after unsubscribe")
	default:
	}
}

func TestAcquisitionKeepsSettingsWrites(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	tr := f.broker.Transports()[0]
	tr.SlowReads(30 * time.Millisecond)

	f.ctrl.Config.Acquire.IntervalMs = 2
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() {
		stopped <- f.ctrl.acquire(ctx)
	}()
	defer func() {
		cancel()
		<-stopped
	}()

	for i := 1; i <= 8; i++ {
		body := fmt.Sprintf(`{"Addr":"0x05","Value":"0x%02x"}`, i)
		expectStatus(t, f.post(t, "/api/reg/w", body), http.StatusOK)
	}
	if v := tr.Device().Registers().Get(reg.AddrLogicTrigLevel); v != 8 {
		t.Fatalf("device register = 0x%02x, want 0x08", v)
	}
	ring, _ := f.ctrl.Connection().Ring(1)
	waitFor(t, "acquisition", func() bool { return ring.Load().Generation() > 0 })
}

func TestStreamClosedOnShutdown(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Config.Address = "127.0.0.1"
	f.ctrl.Config.ApiPort = 0
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan error, 1)
	go func() {
		stopped <- f.ctrl.Api().Run(ctx)
	}()

	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + StreamPrefix + "/window/1"
	conn, br, _, err := ws.Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	var r io.Reader = conn
	if br != nil {
		r = br
	}
	rw := struct {
		io.Reader
		io.Writer
	}{r, conn}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := wsutil.ReadServerData(rw); err != nil {
		t.Fatalf("ReadServerData() error = %v", err)
	}
	waitFor(t, "subscription", func() bool { return f.ctrl.hub.subscribers(1) == 1 })

	cancel()
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run() did not return")
	}
	waitFor(t, "stream to end", func() bool { return f.ctrl.hub.subscribers(1) == 0 })
	if _, _, err := wsutil.ReadServerData(rw); err == nil {
		t.Fatalf("stream still open after shutdown")
	}
	expectStatus(t, f.get(t, StreamPrefix+"/window/1"), http.StatusServiceUnavailable)
}
