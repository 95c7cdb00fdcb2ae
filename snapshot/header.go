// Package snapshot implements the record-based binary snapshot format of
// spec §6: a 256-byte HEAD block followed by labeled data blocks, each
// wrapped in Fortran-style record markers. Endianness is autodetected from
// the first record marker; every block additionally carries an xxhash
// checksum so a truncated or byte-shuffled file fails fast instead of
// silently decoding garbage.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/gravsim/gravsim/particle"
)

// headerSize is the fixed size of the HEAD block in bytes, per spec §6.
const headerSize = 256

// swapMarker is the big-endian reading of an 8-byte little-endian record
// marker (the HEAD label block is always 8 bytes: 4-char label + int32
// size), used to autodetect a byte-swapped file.
const swapMarker = 134217728

// headerLabel is the fixed 4-character label of the header block.
const headerLabel = "HEAD"

// Header holds the HEAD block's fields, named after the original
// implementation's header struct (npart, mass_per_type, time, redshift,
// flags, nall, num_files, boxsize, cosmological parameters,
// nall_highword).
type Header struct {
	NPart        [particle.NumTypes]int32
	MassPerType  [particle.NumTypes]float64
	Time         float64
	Redshift     float64
	FlagSfr      int32
	FlagFeedback int32
	FlagCooling  int32
	Nall         [particle.NumTypes]int32
	NumFiles     int32
	BoxSize      float64
	Omega0       float64
	OmegaLambda  float64
	HubbleParam  float64
	NallHighword [particle.NumTypes]uint32
}

// totalParticles sums NPart across species.
func (h Header) totalParticles() int {
	n := 0
	for _, v := range h.NPart {
		n += int(v)
	}
	return n
}

// byteOrder is the endianness in effect for one snapshot file, resolved
// once from the first record marker and then threaded through every
// subsequent read.
type byteOrder struct {
	binary.ByteOrder
	swapped bool
}

func nativeOrder() byteOrder  { return byteOrder{binary.LittleEndian, false} }
func swappedOrder() byteOrder { return byteOrder{binary.BigEndian, true} }

// errWriter accumulates the first error across a sequence of
// binary.Write calls so encodeHeader can write every field in a flat
// sequence without checking an error after each one.
type errWriter struct {
	w   *bytes.Buffer
	err error
}

func (ew *errWriter) write(order binary.ByteOrder, v interface{}) {
	if ew.err != nil {
		return
	}
	ew.err = binary.Write(ew.w, order, v)
}

// errReader is errWriter's read-side counterpart.
type errReader struct {
	r   *bytes.Reader
	err error
}

func (er *errReader) read(order binary.ByteOrder, v interface{}) {
	if er.err != nil {
		return
	}
	er.err = binary.Read(er.r, order, v)
}

// encodeHeader serializes h into a fixed headerSize-byte block, matching
// the field order spec §6 lists. Unused tail bytes are left zero.
func encodeHeader(h Header) []byte {
	ew := &errWriter{w: bytes.NewBuffer(make([]byte, 0, headerSize))}
	for _, v := range h.NPart {
		ew.write(binary.LittleEndian, v)
	}
	for _, v := range h.MassPerType {
		ew.write(binary.LittleEndian, v)
	}
	ew.write(binary.LittleEndian, h.Time)
	ew.write(binary.LittleEndian, h.Redshift)
	ew.write(binary.LittleEndian, h.FlagSfr)
	ew.write(binary.LittleEndian, h.FlagFeedback)
	ew.write(binary.LittleEndian, h.FlagCooling)
	for _, v := range h.Nall {
		ew.write(binary.LittleEndian, v)
	}
	ew.write(binary.LittleEndian, h.NumFiles)
	ew.write(binary.LittleEndian, h.BoxSize)
	ew.write(binary.LittleEndian, h.Omega0)
	ew.write(binary.LittleEndian, h.OmegaLambda)
	ew.write(binary.LittleEndian, h.HubbleParam)
	for _, v := range h.NallHighword {
		ew.write(binary.LittleEndian, v)
	}
	// encoding to an in-memory bytes.Buffer never fails; the error is
	// discarded here and the buffer is always padded to headerSize.
	buf := make([]byte, headerSize)
	copy(buf, ew.w.Bytes())
	return buf
}

func decodeHeader(buf []byte, order byteOrder) (Header, error) {
	if len(buf) != headerSize {
		return Header{}, fmt.Errorf("snapshot: HEAD block is %d bytes, want %d", len(buf), headerSize)
	}
	er := &errReader{r: bytes.NewReader(buf)}
	var h Header
	for i := range h.NPart {
		er.read(order.ByteOrder, &h.NPart[i])
	}
	for i := range h.MassPerType {
		er.read(order.ByteOrder, &h.MassPerType[i])
	}
	er.read(order.ByteOrder, &h.Time)
	er.read(order.ByteOrder, &h.Redshift)
	er.read(order.ByteOrder, &h.FlagSfr)
	er.read(order.ByteOrder, &h.FlagFeedback)
	er.read(order.ByteOrder, &h.FlagCooling)
	for i := range h.Nall {
		er.read(order.ByteOrder, &h.Nall[i])
	}
	er.read(order.ByteOrder, &h.NumFiles)
	er.read(order.ByteOrder, &h.BoxSize)
	er.read(order.ByteOrder, &h.Omega0)
	er.read(order.ByteOrder, &h.OmegaLambda)
	er.read(order.ByteOrder, &h.HubbleParam)
	for i := range h.NallHighword {
		er.read(order.ByteOrder, &h.NallHighword[i])
	}
	if er.err != nil {
		return Header{}, fmt.Errorf("snapshot: decoding HEAD block: %w", er.err)
	}
	return h, nil
}

// Fingerprint returns a blake2b-256 digest of the header's encoded bytes,
// used to detect two runs resuming from different initial conditions
// whose output files happen to collide in name.
func Fingerprint(h Header) [32]byte {
	return blake2b.Sum256(encodeHeader(h))
}
