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

package layers

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	// SessionLayerNum identifies the layer
	SessionLayerNum = 2003

	SessionLen = 2
)

// SessionOp starts or stops the acquisition session of the device
type SessionOp uint8

const (
	SessionStart SessionOp = 0xfe
	SessionStop  SessionOp = 0xff
)

func (op SessionOp) String() string {
	switch op {
	case SessionStart:
		return "start"
	case SessionStop:
		return "stop"
	}
	return "unknown"
}

// SessionLayer is the 2 byte session command: op 0x00
type SessionLayer struct {
	layers.BaseLayer
	Op SessionOp
}

var SessionLayerType = gopacket.RegisterLayerType(SessionLayerNum,
	gopacket.LayerTypeMetadata{Name: "SessionLayerType", Decoder: gopacket.DecodeFunc(DecodeSessionLayer)})

func (s *SessionLayer) LayerType() gopacket.LayerType {
	return SessionLayerType
}

func (s *SessionLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	bytes, err := b.AppendBytes(SessionLen)
	if err != nil {
		return err
	}
	bytes[0] = uint8(s.Op)
	bytes[1] = 0x00
	return nil
}

func (s *SessionLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < SessionLen {
		df.SetTruncated()
		return ErrMalformedFrame
	}
	op := SessionOp(data[0])
	if op != SessionStart && op != SessionStop {
		return ErrUnknownCommand
	}
	s.BaseLayer = layers.BaseLayer{
		Contents: data[:SessionLen],
		Payload:  data[SessionLen:],
	}
	s.Op = op
	return nil
}

func DecodeSessionLayer(data []byte, p gopacket.PacketBuilder) error {
	s := &SessionLayer{}
	err := s.DecodeFromBytes(data, p)
	if err != nil {
		return err
	}
	p.AddLayer(s)
	return nil
}
