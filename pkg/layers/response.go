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
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	// ResponseLayerNum identifies the layer
	ResponseLayerNum = 2004

	// DataHeaderLen is marker plus 16-bit trigger address
	DataHeaderLen = 3
)

// Marker is the first byte of every device response
type Marker uint8

const (
	MarkerOK      Marker = 0x10
	MarkerError   Marker = 0x11
	MarkerCancel  Marker = 0x12
	MarkerCh1Data Marker = 0x41
	MarkerCh2Data Marker = 0x42
)

var markerNames = map[Marker]string{
	MarkerOK:      "ok",
	MarkerError:   "error",
	MarkerCancel:  "cancel",
	MarkerCh1Data: "ch1_data",
	MarkerCh2Data: "ch2_data",
}

func (m Marker) String() string {
	if name, ok := markerNames[m]; ok {
		return name
	}
	return fmt.Sprintf("marker(0x%02x)", uint8(m))
}

// Known reports whether the marker belongs to the protocol. Unknown
// markers are not an error; callers skip them.
func (m Marker) Known() bool {
	_, ok := markerNames[m]
	return ok
}

// ResponseLayer is a device response: a marker byte followed by
// marker specific payload.
//
// Register read reply: [0x10, value]
// Channel data:        [0x41|0x42, trigHi, trigLo, samples...]
type ResponseLayer struct {
	layers.BaseLayer
	Marker Marker
}

var ResponseLayerType = gopacket.RegisterLayerType(ResponseLayerNum,
	gopacket.LayerTypeMetadata{Name: "ResponseLayerType", Decoder: gopacket.DecodeFunc(DecodeResponseLayer)})

func (r *ResponseLayer) LayerType() gopacket.LayerType {
	return ResponseLayerType
}

func (r *ResponseLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	bytes, err := b.AppendBytes(1 + len(r.Payload))
	if err != nil {
		return err
	}
	bytes[0] = uint8(r.Marker)
	copy(bytes[1:], r.Payload)
	return nil
}

func (r *ResponseLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) == 0 {
		df.SetTruncated()
		return ErrMalformedFrame
	}
	r.BaseLayer = layers.BaseLayer{
		Contents: data[:1],
		Payload:  data[1:],
	}
	r.Marker = Marker(data[0])
	return nil
}

func DecodeResponseLayer(data []byte, p gopacket.PacketBuilder) error {
	r := &ResponseLayer{}
	err := r.DecodeFromBytes(data, p)
	if err != nil {
		return err
	}
	p.AddLayer(r)
	return nil
}

// Value returns the register value carried by an OK reply
func (r *ResponseLayer) Value() (uint8, bool) {
	if r.Marker != MarkerOK || len(r.Payload) == 0 {
		return 0, false
	}
	return r.Payload[0], true
}

// Channel returns 1 or 2 for channel data and 0 for anything else
func (r *ResponseLayer) Channel() int {
	switch r.Marker {
	case MarkerCh1Data:
		return 1
	case MarkerCh2Data:
		return 2
	}
	return 0
}

// Samples splits channel data into trigger address and samples. The
// samples alias the decoded frame.
func (r *ResponseLayer) Samples() (int, []byte, error) {
	if r.Channel() == 0 {
		return 0, nil, fmt.Errorf("%s response carries no samples", r.Marker)
	}
	if len(r.Payload) < DataHeaderLen-1 {
		return 0, nil, ErrShortDataFrame
	}
	trigger := int(binary.BigEndian.Uint16(r.Payload[0:2]))
	return trigger, r.Payload[2:], nil
}

// NewDataResponse builds a channel data response
func NewDataResponse(ch int, trigger int, samples []byte) *ResponseLayer {
	marker := MarkerCh1Data
	if ch == 2 {
		marker = MarkerCh2Data
	}
	payload := make([]byte, 2+len(samples))
	binary.BigEndian.PutUint16(payload[0:2], uint16(trigger))
	copy(payload[2:], samples)
	return &ResponseLayer{
		BaseLayer: layers.BaseLayer{Payload: payload},
		Marker:    marker,
	}
}
