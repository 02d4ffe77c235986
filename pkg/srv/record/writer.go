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

package record

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/oscdroid/go-oscbridge/pkg/buffer"
	"github.com/oscdroid/go-oscbridge/pkg/log"
)

// HeaderLen is the size of a record header: generation, trigger and
// sample count, all big endian.
const HeaderLen = 8 + 2 + 2

var ErrShortRecord = errors.New("short record")

// Record is one stored acquisition
type Record struct {
	Generation uint64
	Trigger    uint16
	Samples    []uint8
}

type Writer struct {
	file *os.File
	buf  *bufio.Writer
}

func NewWriter(filename string) (*Writer, error) {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Error("Error while creating file: %s", filename)
		return nil, err
	}
	return &Writer{
		file: file,
		buf:  bufio.NewWriter(file),
	}, nil
}

// WriteSnapshot appends s as one record
func (w *Writer) WriteSnapshot(s *buffer.Snapshot) error {
	samples := s.Samples()
	header := make([]byte, HeaderLen)
	binary.BigEndian.PutUint64(header[0:8], s.Generation())
	binary.BigEndian.PutUint16(header[8:10], uint16(s.Trigger()))
	binary.BigEndian.PutUint16(header[10:12], uint16(len(samples)))
	if _, err := w.buf.Write(header); err != nil {
		return err
	}
	_, err := w.buf.Write(samples)
	return err
}

func (w *Writer) Flush() {
	if err := w.buf.Flush(); err != nil {
		log.Error("Error while flushing %s: %s", w.file.Name(), err)
	}
	w.file.Sync()
	w.file.Close()
}

// ReadRecord reads the next record from r. It returns io.EOF at a clean
// end of input.
func ReadRecord(r io.Reader) (*Record, error) {
	header := make([]byte, HeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, ErrShortRecord
		}
		return nil, err
	}
	rec := &Record{
		Generation: binary.BigEndian.Uint64(header[0:8]),
		Trigger:    binary.BigEndian.Uint16(header[8:10]),
		Samples:    make([]uint8, binary.BigEndian.Uint16(header[10:12])),
	}
	if _, err := io.ReadFull(r, rec.Samples); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShortRecord, err)
	}
	return rec, nil
}
