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

	"github.com/oscdroid/go-oscbridge/pkg/reg"
)

const (
	// RegWriteLayerNum identifies the layer
	RegWriteLayerNum = 2001
	// RegReadLayerNum identifies the layer
	RegReadLayerNum = 2002

	FrameSync   = '/'
	WriteMarker = '\\'
	ReadMarker  = '?'

	RegWriteLen = 4
	RegReadLen  = 3
)

// RegWriteLayer is the 4 byte register write command: '/' '\' addr value
type RegWriteLayer struct {
	layers.BaseLayer
	Addr  reg.Addr
	Value uint8
}

// RegReadLayer is the 3 byte read command: '/' '?' addr.
// Length is the size of the expected response. It is not part of the
// frame and travels to the I/O worker next to it.
type RegReadLayer struct {
	layers.BaseLayer
	Addr   reg.Addr
	Length int
}

var RegWriteLayerType = gopacket.RegisterLayerType(RegWriteLayerNum,
	gopacket.LayerTypeMetadata{Name: "RegWriteLayerType", Decoder: gopacket.DecodeFunc(DecodeRegWriteLayer)})

var RegReadLayerType = gopacket.RegisterLayerType(RegReadLayerNum,
	gopacket.LayerTypeMetadata{Name: "RegReadLayerType", Decoder: gopacket.DecodeFunc(DecodeRegReadLayer)})

func (w *RegWriteLayer) LayerType() gopacket.LayerType {
	return RegWriteLayerType
}

func (w *RegWriteLayer) Serialize(buf []byte) {
	buf[0] = FrameSync
	buf[1] = WriteMarker
	buf[2] = uint8(w.Addr)
	buf[3] = w.Value
}

// SerializeTo writes the command into the SerializeBuffer
func (w *RegWriteLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	bytes, err := b.AppendBytes(RegWriteLen)
	if err != nil {
		return err
	}
	w.Serialize(bytes)
	return nil
}

func (w *RegWriteLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < RegWriteLen || data[0] != FrameSync || data[1] != WriteMarker {
		df.SetTruncated()
		return ErrMalformedFrame
	}
	w.BaseLayer = layers.BaseLayer{
		Contents: data[:RegWriteLen],
		Payload:  data[RegWriteLen:],
	}
	w.Addr = reg.Addr(data[2])
	w.Value = data[3]
	return nil
}

func DecodeRegWriteLayer(data []byte, p gopacket.PacketBuilder) error {
	w := &RegWriteLayer{}
	err := w.DecodeFromBytes(data, p)
	if err != nil {
		return err
	}
	p.AddLayer(w)
	return nil
}

func (r *RegReadLayer) LayerType() gopacket.LayerType {
	return RegReadLayerType
}

func (r *RegReadLayer) Serialize(buf []byte) {
	buf[0] = FrameSync
	buf[1] = ReadMarker
	buf[2] = uint8(r.Addr)
}

func (r *RegReadLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	bytes, err := b.AppendBytes(RegReadLen)
	if err != nil {
		return err
	}
	r.Serialize(bytes)
	return nil
}

func (r *RegReadLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < RegReadLen || data[0] != FrameSync || data[1] != ReadMarker {
		df.SetTruncated()
		return ErrMalformedFrame
	}
	r.BaseLayer = layers.BaseLayer{
		Contents: data[:RegReadLen],
		Payload:  data[RegReadLen:],
	}
	r.Addr = reg.Addr(data[2])
	return nil
}

func DecodeRegReadLayer(data []byte, p gopacket.PacketBuilder) error {
	r := &RegReadLayer{}
	err := r.DecodeFromBytes(data, p)
	if err != nil {
		return err
	}
	p.AddLayer(r)
	return nil
}
