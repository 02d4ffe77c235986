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

package command

import (
	"fmt"
	"strings"

	"github.com/imroc/req"

	"github.com/oscdroid/go-oscbridge/pkg/command/ifc"
	"github.com/oscdroid/go-oscbridge/pkg/config"
	"github.com/oscdroid/go-oscbridge/pkg/device"
	"github.com/oscdroid/go-oscbridge/pkg/srv/control"
	"github.com/oscdroid/go-oscbridge/pkg/srv/discover"
	"github.com/oscdroid/go-oscbridge/pkg/srv/record"
)

type ApiClient struct {
	*config.Config
	ApiPrefix string
}

var _ ifc.ApiClient = &ApiClient{}

func NewApiClient(cfg *config.Config) *ApiClient {
	address := cfg.Address
	if address == "" || address == "0.0.0.0" {
		address = "127.0.0.1"
	}
	return &ApiClient{
		Config:    cfg,
		ApiPrefix: fmt.Sprintf("http://%s:%d%s", address, cfg.ApiPort, control.ApiPrefix),
	}
}

func (c *ApiClient) url(format string, v ...interface{}) string {
	return c.ApiPrefix + fmt.Sprintf(format, v...)
}

// check turns a non 2xx response into an error carrying the server message
func check(r *req.Resp, err error) (*req.Resp, error) {
	if err != nil {
		return nil, err
	}
	code := r.Response().StatusCode
	if code < 200 || code > 299 {
		msg := strings.TrimSpace(r.String())
		if msg == "" {
			return nil, fmt.Errorf("%s", r.Response().Status)
		}
		return nil, fmt.Errorf("%s: %s", r.Response().Status, msg)
	}
	return r, nil
}

func (c *ApiClient) getJSON(url string, v interface{}, params ...interface{}) error {
	r, err := check(req.Get(url, params...))
	if err != nil {
		return err
	}
	return r.ToJSON(v)
}

func (c *ApiClient) postJSON(url string, body, v interface{}) error {
	var params []interface{}
	if body != nil {
		params = append(params, req.BodyJSON(body))
	}
	r, err := check(req.Post(url, params...))
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return r.ToJSON(v)
}

// State returns the session state of the server
func (c *ApiClient) State() (*control.SessionState, error) {
	state := &control.SessionState{}
	if err := c.getJSON(c.url("/state"), state); err != nil {
		return nil, err
	}
	return state, nil
}

// Connect asks the server to open a session with the first attached device
func (c *ApiClient) Connect() (*control.SessionState, error) {
	state := &control.SessionState{}
	if err := c.postJSON(c.url("/connect"), nil, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (c *ApiClient) Disconnect() error {
	return c.postJSON(c.url("/disconnect"), nil, nil)
}

// Devices returns known devices with their online status
func (c *ApiClient) Devices() ([]*discover.DeviceDescription, error) {
	var devices []*discover.DeviceDescription
	if err := c.getJSON(c.url("/devices"), &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// Scan makes the server enumerate attached devices now
func (c *ApiClient) Scan() ([]*discover.DeviceDescription, error) {
	var devices []*discover.DeviceDescription
	if err := c.postJSON(c.url("/devices/scan"), nil, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// RegRead returns the value of a register as the server last saw it
func (c *ApiClient) RegRead(addr string) (string, error) {
	reg := &control.RegHex{}
	if err := c.getJSON(c.url("/reg/r/%s", addr), reg); err != nil {
		return "", err
	}
	return reg.Value, nil
}

func regMap(regs []*control.RegHex) map[string]string {
	result := make(map[string]string)
	for _, reg := range regs {
		result[reg.Addr] = reg.Value
	}
	return result
}

// RegReadAll returns all registers of the current session
func (c *ApiClient) RegReadAll() (map[string]string, error) {
	var regs []*control.RegHex
	if err := c.getJSON(c.url("/reg/r"), &regs); err != nil {
		return nil, err
	}
	return regMap(regs), nil
}

// RegLast returns the registers stored for a device key
func (c *ApiClient) RegLast(device string) (map[string]string, error) {
	var regs []*control.RegHex
	if err := c.getJSON(c.url("/reg/last/%s", device), &regs); err != nil {
		return nil, err
	}
	return regMap(regs), nil
}

// RegWrite writes a register and returns once the device accepted it
func (c *ApiClient) RegWrite(addr, value string) error {
	reg := &control.RegHex{
		Addr:  addr,
		Value: value,
	}
	return c.postJSON(c.url("/reg/w"), reg, nil)
}

// RegPoll asks the server to refresh a register from the device
func (c *ApiClient) RegPoll(addr string) error {
	return c.postJSON(c.url("/reg/read/%s", addr), nil, nil)
}

func (c *ApiClient) Channel(ch int, setup *control.ChannelSetup) (*device.ChannelSettings, error) {
	settings := &device.ChannelSettings{}
	if err := c.postJSON(c.url("/channel/%d", ch), setup, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func (c *ApiClient) Trigger(setup *control.TrigSetup) (*device.TriggerSettings, error) {
	settings := &device.TriggerSettings{}
	if err := c.postJSON(c.url("/trigger"), setup, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// TimeDiv sets the time division and returns the one in effect
func (c *ApiClient) TimeDiv(div int) (int, error) {
	setup := &control.TimeDivSetup{}
	if err := c.postJSON(c.url("/timediv"), &control.TimeDivSetup{TimeDiv: div}, setup); err != nil {
		return 0, err
	}
	return setup.TimeDiv, nil
}

func (c *ApiClient) Window(ch int, align string, div int) (*control.WindowResp, error) {
	query := req.QueryParam{}
	if align != "" {
		query["align"] = align
	}
	if div >= 0 {
		query["div"] = div
	}
	win := &control.WindowResp{}
	if err := c.getJSON(c.url("/window/%d", ch), win, query); err != nil {
		return nil, err
	}
	return win, nil
}

func (c *ApiClient) RecordStart(dir, filePrefix string) error {
	persist := &record.Persist{
		Dir:        dir,
		FilePrefix: filePrefix,
	}
	return c.postJSON(c.url("/record/start"), persist, nil)
}

func (c *ApiClient) RecordStop() error {
	return c.postJSON(c.url("/record/stop"), nil, nil)
}
