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

package mock

import (
	"errors"
	"testing"
	"time"

	"github.com/oscdroid/go-oscbridge/pkg/layers"
	"github.com/oscdroid/go-oscbridge/pkg/reg"
	"github.com/oscdroid/go-oscbridge/pkg/transport"
)

func TestTransportRegisterRead(t *testing.T) {
	tr := NewTransport(NewDevice())

	if _, err := tr.Write(layers.EncodeWrite(reg.AddrAnalogTrigLevel, 0x90), time.Second); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := tr.Write(layers.EncodeRead(reg.AddrAnalogTrigLevel), time.Second); err != nil {
		t.Fatalf("Write(read) error = %v", err)
	}
	data, err := tr.Read(2, time.Second)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	r, err := layers.DecodeResponse(data)
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if v, ok := r.Value(); !ok || v != 0x90 {
		t.Fatalf("Value() = %#02x, %v, want 0x90", v, ok)
	}

	// nothing outstanding
	if _, err := tr.Read(2, time.Millisecond); !errors.Is(err, transport.ErrTimeout) {
		t.Fatalf("Read() error = %v, want ErrTimeout", err)
	}
}

func TestRevisionIsReadOnly(t *testing.T) {
	d := NewDevice()
	if err := d.Handle(layers.EncodeWrite(reg.AddrDeviceRev, 0x00)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if got := d.Registers().Get(reg.AddrDeviceRev); got != Revision {
		t.Fatalf("revision = %#02x, want %#02x", got, Revision)
	}
}

func TestTransportAcquisition(t *testing.T) {
	tr := NewTransport(NewDevice())
	tr.Write(layers.EncodeRead(reg.AddrCh2Ctrl), time.Second)

	data, err := tr.Read(layers.DataHeaderLen+256, time.Second)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	r, _ := layers.DecodeResponse(data)
	trigger, samples, err := r.Samples()
	if err != nil {
		t.Fatalf("Samples() error = %v", err)
	}
	if r.Channel() != 2 || len(samples) != 256 || trigger < 0 || trigger >= 256 {
		t.Fatalf("acquisition = ch%d %d samples trigger %d", r.Channel(), len(samples), trigger)
	}
}

func TestTransportFailures(t *testing.T) {
	tr := NewTransport(NewDevice())
	tr.FailWrites(2)
	frame := layers.EncodeSession(layers.SessionStart)
	for i := 0; i < 2; i++ {
		if _, err := tr.Write(frame, time.Millisecond); !errors.Is(err, transport.ErrTimeout) {
			t.Fatalf("Write() #%d error = %v, want ErrTimeout", i, err)
		}
	}
	if _, err := tr.Write(frame, time.Millisecond); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if tr.WriteAttempts() != 3 || len(tr.Frames()) != 1 || !tr.Device().Running() {
		t.Fatalf("attempts %d frames %d running %v", tr.WriteAttempts(), len(tr.Frames()), tr.Device().Running())
	}

	tr.Close()
	if _, err := tr.Write(frame, time.Millisecond); !errors.Is(err, transport.ErrClosed) {
		t.Fatalf("Write() after Close error = %v, want ErrClosed", err)
	}
}

func TestBrokerDetach(t *testing.T) {
	b := NewBroker(DefaultIdentity)
	ch := make(chan transport.Event, 4)
	b.Subscribe(ch)

	tr, err := b.OpenTransport(DefaultIdentity)
	if err != nil {
		t.Fatalf("OpenTransport() error = %v", err)
	}
	b.Detach(DefaultIdentity)
	if ev := <-ch; ev.Kind != transport.EventDetached {
		t.Fatalf("event = %v, want detached", ev.Kind)
	}
	if _, err := tr.Write([]byte{0xff, 0x00}, time.Millisecond); !errors.Is(err, transport.ErrNoDevice) {
		t.Fatalf("Write() after detach error = %v, want ErrNoDevice", err)
	}
	if _, err := b.OpenTransport(DefaultIdentity); !errors.Is(err, transport.ErrNoDevice) {
		t.Fatalf("OpenTransport() after detach error = %v", err)
	}
}
