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
	"fmt"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"
	"sigs.k8s.io/yaml"

	"github.com/oscdroid/go-oscbridge/pkg/log"
	"github.com/oscdroid/go-oscbridge/pkg/srv"
	"github.com/oscdroid/go-oscbridge/pkg/transport"
)

const (
	BucketPrefix         = "discover_"
	DeviceDescriptionKey = "device_description"
)

// DeviceDescription is what is remembered about a device seen on the bus
type DeviceDescription struct {
	Key         string `json:"key"`
	Driver      string `json:"driver"`
	ID          string `json:"id"`
	VendorID    string `json:"vendorId"`
	ProductID   string `json:"productId"`
	Serial      string `json:"serial,omitempty"`
	Description string `json:"description,omitempty"`
	// LastSeen is in milliseconds since the epoch
	LastSeen uint64 `json:"lastSeen"`
	Online   bool   `json:"online"`
}

func NewDeviceDescription(dev transport.Identity) *DeviceDescription {
	return &DeviceDescription{
		Key:         dev.Key(),
		Driver:      dev.Driver,
		ID:          dev.ID,
		VendorID:    fmt.Sprintf("0x%04x", dev.VendorID),
		ProductID:   fmt.Sprintf("0x%04x", dev.ProductID),
		Serial:      dev.Serial,
		Description: dev.Description,
	}
}

func (dd *DeviceDescription) SetTimestamp() {
	dd.LastSeen = srv.Now()
}

type State struct {
	DB *bbolt.DB
}

func NewState(path string) (*State, error) {
	// open discover database
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	return &State{
		DB: db,
	}, nil
}

// Close ...
func (s *State) Close() {
	s.DB.Close()
}

func BucketName(key string) string {
	return fmt.Sprintf("%s%s", BucketPrefix, key)
}

// SetDeviceDescription ...
func (s *State) SetDeviceDescription(dd *DeviceDescription) error {
	log.Debug("Setting device description: device: %s", dd.Key)
	return s.DB.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(BucketName(dd.Key)))
		if err != nil {
			return err
		}
		ddBytes, err := yaml.Marshal(dd)
		if err != nil {
			return err
		}
		return b.Put([]byte(DeviceDescriptionKey), ddBytes)
	})
}

// GetDeviceDescription ...
func (s *State) GetDeviceDescription(key string) (*DeviceDescription, error) {
	dd := &DeviceDescription{}
	if err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketName(key)))
		if b == nil {
			return srv.ErrDeviceNotFound{Device: key}
		}
		ddBytes := b.Get([]byte(DeviceDescriptionKey))
		if ddBytes == nil {
			return fmt.Errorf("description not found: %s", key)
		}
		return yaml.Unmarshal(ddBytes, dd)
	}); err != nil {
		return nil, err
	}
	return dd, nil
}

// GetAllDeviceDescriptions returns stored descriptions ordered by key
func (s *State) GetAllDeviceDescriptions() ([]*DeviceDescription, error) {
	var devices []*DeviceDescription
	if err := s.DB.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bbolt.Bucket) error {
			if !strings.HasPrefix(string(name), BucketPrefix) {
				return nil
			}
			ddBytes := b.Get([]byte(DeviceDescriptionKey))
			if ddBytes == nil {
				return nil
			}
			dd := &DeviceDescription{}
			if err := yaml.Unmarshal(ddBytes, dd); err != nil {
				log.Error("Error while unmarshalling DeviceDescription %s", err)
				return err
			}
			devices = append(devices, dd)
			return nil
		})
	}); err != nil {
		return nil, err
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Key < devices[j].Key })
	return devices, nil
}
