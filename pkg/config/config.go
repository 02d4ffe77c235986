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
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"sigs.k8s.io/yaml"
)

// keys that can be overridden from the environment, e.g. OSCBRIDGE_DEVICE_DRIVER
var envKeys = []string{
	"logLevel",
	"address",
	"apiPort",
	"dbPath",
	"discoverDBPath",
	"device.driver",
	"device.vendorId",
	"device.productId",
	"device.serial",
	"device.port",
	"worker.writeAttempts",
	"worker.readAttempts",
	"worker.transferTimeoutMs",
	"buffer.capacity",
}

type DeviceConfig struct {
	// Driver is one of the registered transport drivers: usb, serial, mock
	Driver    string `json:"driver"`
	VendorID  string `json:"vendorId"`
	ProductID string `json:"productId"`
	// Serial limits discovery to the device with the given serial number
	Serial      string `json:"serial,omitempty"`
	Config      int    `json:"config"`
	Interface   int    `json:"interface"`
	EndpointOut int    `json:"endpointOut"`
	EndpointIn  int    `json:"endpointIn"`
	// Port is a serial port name, e.g. /dev/ttyACM0. Empty means any port
	// with matching vendor and product ids.
	Port           string `json:"port,omitempty"`
	BaudRate       int    `json:"baudRate"`
	PollIntervalMs int    `json:"pollIntervalMs"`
}

type WorkerConfig struct {
	WriteAttempts int `json:"writeAttempts"`
	// ReadAttempts equal to 0 retries a pending read until it succeeds
	ReadAttempts      int `json:"readAttempts"`
	TransferTimeoutMs int `json:"transferTimeoutMs"`
	RetryIntervalMs   int `json:"retryIntervalMs"`
}

type BufferConfig struct {
	Capacity int `json:"capacity"`
}

type AcquireConfig struct {
	IntervalMs int   `json:"intervalMs"`
	Channels   []int `json:"channels"`
}

type Config struct {
	LogLevel       string         `json:"logLevel"`
	Address        string         `json:"address"`
	ApiPort        int            `json:"apiPort"`
	DBPath         string         `json:"dbPath"`
	DiscoverDBPath string         `json:"discoverDBPath"`
	Device         *DeviceConfig  `json:"device"`
	Worker         *WorkerConfig  `json:"worker"`
	Buffer         *BufferConfig  `json:"buffer"`
	Acquire        *AcquireConfig `json:"acquire"`
	filepath       string
}

func (c *Config) Persist(overwrite bool) error {
	if _, err := os.Stat(c.filepath); err == nil && !overwrite {
		return ErrConfigFileExists{Path: c.filepath}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.filepath)
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return err
	}

	return os.WriteFile(c.filepath, data, 0644)
}

// Load reads the config file and applies OSCBRIDGE_* environment overrides
// on top of the current values.
func (c *Config) Load() error {
	v := viper.New()
	v.SetConfigFile(c.filepath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}
	readErr := v.ReadInConfig()
	if err := v.Unmarshal(c); err != nil {
		return err
	}
	return readErr
}

func (c *Config) Path() string {
	return c.filepath
}

func (c *Config) SetPath(path string) {
	c.filepath = path
}

// USBIDs parses vendor and product ids
func (d *DeviceConfig) USBIDs() (uint16, uint16, error) {
	vid, err := strconv.ParseUint(d.VendorID, 0, 16)
	if err != nil {
		return 0, 0, ErrBadHexID{Field: "vendorId", Value: d.VendorID}
	}
	pid, err := strconv.ParseUint(d.ProductID, 0, 16)
	if err != nil {
		return 0, 0, ErrBadHexID{Field: "productId", Value: d.ProductID}
	}
	return uint16(vid), uint16(pid), nil
}

func (d *DeviceConfig) PollInterval() time.Duration {
	return time.Duration(d.PollIntervalMs) * time.Millisecond
}

func (w *WorkerConfig) TransferTimeout() time.Duration {
	return time.Duration(w.TransferTimeoutMs) * time.Millisecond
}

func (w *WorkerConfig) RetryInterval() time.Duration {
	return time.Duration(w.RetryIntervalMs) * time.Millisecond
}

func (a *AcquireConfig) Interval() time.Duration {
	return time.Duration(a.IntervalMs) * time.Millisecond
}

func DefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), ConfigFile)
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return filepath.Join(home, ConfigDir)
}

func NewDefaultConfig() *Config {
	return &Config{
		LogLevel:       DefaultLogLevel,
		Address:        DefaultAddress,
		ApiPort:        DefaultApiPort,
		DBPath:         filepath.Join(defaultConfigDir(), DBFile),
		DiscoverDBPath: filepath.Join(defaultConfigDir(), DiscoverDBFile),
		Device: &DeviceConfig{
			Driver:         DefaultDriver,
			VendorID:       DefaultVendorID,
			ProductID:      DefaultProductID,
			Config:         DefaultUSBConfig,
			Interface:      DefaultInterface,
			EndpointOut:    DefaultEndpointOut,
			EndpointIn:     DefaultEndpointIn,
			BaudRate:       DefaultBaudRate,
			PollIntervalMs: DefaultPollMs,
		},
		Worker: &WorkerConfig{
			WriteAttempts:     DefaultWriteAttempts,
			ReadAttempts:      DefaultReadAttempts,
			TransferTimeoutMs: DefaultTransferTimeout,
			RetryIntervalMs:   DefaultRetryInterval,
		},
		Buffer: &BufferConfig{
			Capacity: DefaultCapacity,
		},
		Acquire: &AcquireConfig{
			IntervalMs: DefaultAcquireInterval,
			Channels:   []int{1},
		},
		filepath: DefaultConfigPath(),
	}
}
