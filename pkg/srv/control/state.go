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
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/oscdroid/go-oscbridge/pkg/log"
	"github.com/oscdroid/go-oscbridge/pkg/reg"
	"github.com/oscdroid/go-oscbridge/pkg/srv"
)

const (
	BucketNamePrefix = "reg_"
)

// RegState mirrors the last known register values of every device
type RegState struct {
	DB *bbolt.DB
}

func NewRegState(path string) (*RegState, error) {
	// open register database
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	return &RegState{
		DB: db,
	}, nil
}

func bucketName(device string) string {
	return fmt.Sprintf("%s%s", BucketNamePrefix, device)
}

// Close ...
func (s *RegState) Close() {
	s.DB.Close()
}

// SetReg stores the value of a register of device
func (s *RegState) SetReg(device string, r reg.Reg) error {
	log.Debug("Setting register: device: %s %s", device, r.String())
	return s.DB.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucketName(device)))
		if err != nil {
			return err
		}
		return b.Put([]byte{byte(r.Addr)}, []byte{r.Value})
	})
}

// GetReg ...
func (s *RegState) GetReg(device string, addr reg.Addr) (*reg.Reg, error) {
	var value uint8
	if err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName(device)))
		if b == nil {
			return srv.ErrDeviceNotFound{Device: device}
		}
		valueBytes := b.Get([]byte{byte(addr)})
		if len(valueBytes) != 1 {
			return fmt.Errorf("register %s of %s not stored", addr, device)
		}
		value = valueBytes[0]
		return nil
	}); err != nil {
		return nil, err
	}
	return &reg.Reg{Addr: addr, Value: value}, nil
}

// GetRegAll returns the stored registers of device in address order
func (s *RegState) GetRegAll(device string) ([]*reg.Reg, error) {
	var regs []*reg.Reg
	if err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName(device)))
		if b == nil {
			return srv.ErrDeviceNotFound{Device: device}
		}
		return b.ForEach(func(k, v []byte) error {
			if len(k) != 1 || len(v) != 1 {
				return nil
			}
			regs = append(regs, &reg.Reg{Addr: reg.Addr(k[0]), Value: v[0]})
			return nil
		})
	}); err != nil {
		return nil, err
	}
	return regs, nil
}
