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
	"errors"

	"github.com/google/gopacket"

	"github.com/oscdroid/go-oscbridge/pkg/reg"
)

const (
	// CommandLayerNum identifies host to device frames of any kind
	CommandLayerNum = 2005
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrShortDataFrame = errors.New("data frame shorter than its header")
	ErrUnknownCommand = errors.New("unknown command")
)

// CommandLayerType decodes any host to device frame into the matching
// command layer. The device emulator uses it.
var CommandLayerType = gopacket.RegisterLayerType(CommandLayerNum,
	gopacket.LayerTypeMetadata{Name: "CommandLayerType", Decoder: gopacket.DecodeFunc(decodeCommand)})

func decodeCommand(data []byte, p gopacket.PacketBuilder) error {
	if len(data) < 2 {
		return ErrMalformedFrame
	}
	if data[0] == FrameSync {
		switch data[1] {
		case WriteMarker:
			return DecodeRegWriteLayer(data, p)
		case ReadMarker:
			return DecodeRegReadLayer(data, p)
		}
		return ErrUnknownCommand
	}
	return DecodeSessionLayer(data, p)
}

var serializeOptions = gopacket.SerializeOptions{}

func serialize(l gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	// command layers only append to a fresh buffer, this never fails
	if err := gopacket.SerializeLayers(buf, serializeOptions, l); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// EncodeWrite builds the register write frame
func EncodeWrite(addr reg.Addr, value uint8) []byte {
	return serialize(&RegWriteLayer{Addr: addr, Value: value})
}

// EncodeRead builds the read frame. The expected response length is not
// part of the frame.
func EncodeRead(addr reg.Addr) []byte {
	return serialize(&RegReadLayer{Addr: addr})
}

func EncodeSession(op SessionOp) []byte {
	return serialize(&SessionLayer{Op: op})
}

// EncodeResponse is used by device emulation to build replies
func EncodeResponse(r *ResponseLayer) []byte {
	return serialize(r)
}

// DecodeResponse classifies a device response by its first byte. Only an
// empty input is malformed; unknown markers are returned as is.
func DecodeResponse(data []byte) (*ResponseLayer, error) {
	packet := gopacket.NewPacket(data, ResponseLayerType, gopacket.NoCopy)
	if errLayer := packet.ErrorLayer(); errLayer != nil {
		return nil, errLayer.Error()
	}
	layer := packet.Layer(ResponseLayerType)
	if layer == nil {
		return nil, ErrMalformedFrame
	}
	return layer.(*ResponseLayer), nil
}

// DecodeCommand returns a RegWriteLayer, RegReadLayer or SessionLayer
func DecodeCommand(data []byte) (gopacket.Layer, error) {
	packet := gopacket.NewPacket(data, CommandLayerType, gopacket.NoCopy)
	if errLayer := packet.ErrorLayer(); errLayer != nil {
		return nil, errLayer.Error()
	}
	layers := packet.Layers()
	if len(layers) == 0 {
		return nil, ErrMalformedFrame
	}
	return layers[0], nil
}
