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
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestPersistLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFile)

	cfg := NewDefaultConfig()
	cfg.SetPath(path)
	cfg.Device.Driver = "serial"
	cfg.Worker.WriteAttempts = 5
	cfg.Acquire.Channels = []int{1, 2}
	if err := cfg.Persist(false); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	var exists ErrConfigFileExists
	if err := cfg.Persist(false); !errors.As(err, &exists) {
		t.Fatalf("Persist(false) error = %v, want ErrConfigFileExists", err)
	}
	if err := cfg.Persist(true); err != nil {
		t.Fatalf("Persist(true) error = %v", err)
	}

	loaded := NewDefaultConfig()
	loaded.SetPath(path)
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Device.Driver != "serial" {
		t.Fatalf("Device.Driver = %q, want serial", loaded.Device.Driver)
	}
	if loaded.Worker.WriteAttempts != 5 {
		t.Fatalf("Worker.WriteAttempts = %d, want 5", loaded.Worker.WriteAttempts)
	}
	if len(loaded.Acquire.Channels) != 2 {
		t.Fatalf("Acquire.Channels = %v, want [1 2]", loaded.Acquire.Channels)
	}
	if loaded.Buffer.Capacity != DefaultCapacity {
		t.Fatalf("Buffer.Capacity = %d, want %d", loaded.Buffer.Capacity, DefaultCapacity)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFile)
	cfg := NewDefaultConfig()
	cfg.SetPath(path)
	if err := cfg.Persist(false); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	t.Setenv("OSCBRIDGE_DEVICE_DRIVER", "mock")
	t.Setenv("OSCBRIDGE_APIPORT", "9001")

	loaded := NewDefaultConfig()
	loaded.SetPath(path)
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Device.Driver != "mock" {
		t.Fatalf("Device.Driver = %q, want mock", loaded.Device.Driver)
	}
	if loaded.ApiPort != 9001 {
		t.Fatalf("ApiPort = %d, want 9001", loaded.ApiPort)
	}
}

func TestDeviceConfig(t *testing.T) {
	d := NewDefaultConfig().Device
	vid, pid, err := d.USBIDs()
	if err != nil {
		t.Fatalf("USBIDs() error = %v", err)
	}
	if vid != 0x04d8 || pid != 0x003f {
		t.Fatalf("USBIDs() = %#04x, %#04x", vid, pid)
	}

	d.VendorID = "zz"
	if _, _, err := d.USBIDs(); err == nil {
		t.Fatalf("USBIDs() error = nil, want ErrBadHexID")
	}

	w := NewDefaultConfig().Worker
	if got := w.TransferTimeout(); got != 500*time.Millisecond {
		t.Fatalf("TransferTimeout() = %v", got)
	}
}
