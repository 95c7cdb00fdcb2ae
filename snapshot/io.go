package snapshot

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"

	"github.com/gravsim/gravsim/metrics"
	"github.com/gravsim/gravsim/particle"
	"github.com/gravsim/gravsim/simcontext"
)

// orderedSlots groups store slot indices by particle.Type, ascending,
// preserving each type's relative slot order -- the canonical on-disk
// particle order the header's NPart/Nall counts describe.
func orderedSlots(store *particle.Store) []int {
	order := make([]int, 0, store.N)
	for t := 0; t < int(particle.NumTypes); t++ {
		for i := 0; i < store.N; i++ {
			if int(store.Type[i]) == t {
				order = append(order, i)
			}
		}
	}
	return order
}

func countByType(store *particle.Store) [particle.NumTypes]int32 {
	var counts [particle.NumTypes]int32
	for i := 0; i < store.N; i++ {
		counts[store.Type[i]]++
	}
	return counts
}

// WriteSnapshot writes store to w in the record-based binary format of
// spec §6. meta supplies the header fields NPart/Nall do not derive from
// the store itself (Time, Redshift, BoxSize, cosmological parameters,
// NumFiles); NPart and Nall are always overwritten from the store's own
// type counts so a snapshot can never disagree with the particles it
// carries. restart additionally writes the TBIN/IDPS/IKPS blocks needed
// to resume mid-integration (start-flag 1); a plain initial-conditions
// write omits them.
func WriteSnapshot(w io.Writer, store *particle.Store, meta Header, restart bool) error {
	meta.NPart = countByType(store)
	meta.Nall = meta.NPart
	if meta.NumFiles == 0 {
		meta.NumFiles = 1
	}

	if err := writeLabeledBlock(w, headerLabel, int32(headerSize)+8); err != nil {
		return err
	}
	headerBytes := encodeHeader(meta)
	if err := writeRecord(w, headerBytes); err != nil {
		return err
	}
	if err := writeChecksum(w, headerBytes); err != nil {
		return err
	}

	order := orderedSlots(store)
	labels := allBlocks
	if !restart {
		labels = allBlocks[:4] // POS, VEL, ID, MASS only
	}

	for _, label := range labels {
		mask := typeMask(label, meta)
		var slots []int
		for _, i := range order {
			if mask.Test(uint(store.Type[i])) {
				slots = append(slots, i)
			}
		}
		payload, err := encodeBlock(label, store, slots)
		if err != nil {
			return err
		}
		if err := writeLabeledBlock(w, string(label), int32(len(payload))+8); err != nil {
			return err
		}
		if err := writeRecord(w, payload); err != nil {
			return err
		}
		if err := writeChecksum(w, payload); err != nil {
			return err
		}
	}
	metrics.SnapshotsWritten.Inc()
	return nil
}

// ReadSnapshot reads a snapshot written by WriteSnapshot, autodetecting
// endianness from the first record marker, and returns the reconstructed
// particle store together with its header.
func ReadSnapshot(r io.Reader) (*particle.Store, Header, error) {
	br := newByteReader(r)

	label, _, order, err := readLabeledBlock(br, nil)
	if err != nil {
		return nil, Header{}, err
	}
	if label != headerLabel {
		return nil, Header{}, simcontext.Snapshot(fmt.Sprintf("expected HEAD label, got %q", label))
	}
	headerBytes, err := readRecord(br, order)
	if err != nil {
		return nil, Header{}, err
	}
	if err := verifyChecksum(br, headerBytes); err != nil {
		return nil, Header{}, err
	}
	header, err := decodeHeader(headerBytes, order)
	if err != nil {
		return nil, Header{}, err
	}

	store := particle.New(header.totalParticles())
	cum := 0
	for t := 0; t < int(particle.NumTypes); t++ {
		for j := 0; j < int(header.NPart[t]); j++ {
			store.Type[cum+j] = particle.Type(t)
			if header.MassPerType[t] != 0 {
				store.Mass[cum+j] = header.MassPerType[t]
			}
		}
		cum += int(header.NPart[t])
	}
	order2 := make([]int, store.N)
	for i := range order2 {
		order2[i] = i
	}

	for {
		label, blockSize, readOrder, err := readLabeledBlock(br, &order)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, Header{}, err
		}
		payload, err := readRecord(br, readOrder)
		if err != nil {
			return nil, Header{}, err
		}
		wantSize := int32(len(payload)) + 8
		if blockSize != wantSize {
			return nil, Header{}, simcontext.Snapshot(fmt.Sprintf(
				"block %q: header size %d disagrees with payload size %d", label, blockSize, wantSize))
		}
		if err := verifyChecksum(br, payload); err != nil {
			return nil, Header{}, err
		}

		mask := typeMask(blockLabel(label), header)
		var slots []int
		for _, i := range order2 {
			if mask.Test(uint(store.Type[i])) {
				slots = append(slots, i)
			}
		}
		if err := decodeBlock(blockLabel(label), readOrder, payload, store, slots); err != nil {
			return nil, Header{}, err
		}
	}

	metrics.SnapshotsRead.Inc()
	return store, header, nil
}

// --- record-level plumbing -------------------------------------------------

// byteReader wraps an io.Reader with the resolved endianness, set once the
// first record marker is read.
type byteReader struct {
	r       io.Reader
	order   byteOrder
	resolved bool
}

func newByteReader(r io.Reader) *byteReader { return &byteReader{r: r} }

func (br *byteReader) readMarker() (int32, byteOrder, error) {
	var raw [4]byte
	if _, err := io.ReadFull(br.r, raw[:]); err != nil {
		return 0, br.order, err
	}
	if !br.resolved {
		asLE := int32(binary.LittleEndian.Uint32(raw[:]))
		switch asLE {
		case 8:
			br.order = nativeOrder()
		case swapMarker:
			br.order = swappedOrder()
		default:
			return 0, br.order, simcontext.Snapshot("first record marker is neither 8 nor a byte-swapped 8: Fortran record inconsistent")
		}
		br.resolved = true
	}
	return int32(br.order.ByteOrder.Uint32(raw[:])), br.order, nil
}

func writeMarker(w io.Writer, v int32) error {
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], uint32(v))
	_, err := w.Write(raw[:])
	return err
}

// writeLabeledBlock writes the small 8-byte "which block comes next"
// record: marker(8) + 4-char label + int32 nextBlockSize + marker(8).
func writeLabeledBlock(w io.Writer, label string, nextBlockSize int32) error {
	if len(label) != 4 {
		return fmt.Errorf("snapshot: block label %q must be 4 characters", label)
	}
	if err := writeMarker(w, 8); err != nil {
		return err
	}
	if _, err := io.WriteString(w, label); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, nextBlockSize); err != nil {
		return err
	}
	return writeMarker(w, 8)
}

// readLabeledBlock reads the label-block record and returns the label,
// the announced next-block size, and the resolved byte order. When
// knownOrder is non-nil, the marker is validated against it instead of
// re-running autodetection (every block after the header uses the order
// the header already resolved).
func readLabeledBlock(br *byteReader, knownOrder *byteOrder) (string, int32, byteOrder, error) {
	marker, order, err := br.readMarker()
	if err == io.EOF {
		return "", 0, order, io.EOF
	}
	if err != nil {
		return "", 0, order, fmt.Errorf("snapshot: reading label block marker: %w", err)
	}
	if knownOrder != nil {
		order = *knownOrder
	}
	if marker != 8 {
		return "", 0, order, simcontext.Snapshot(fmt.Sprintf("label block marker = %d, want 8", marker))
	}
	var raw [8]byte
	if _, err := io.ReadFull(br.r, raw[:]); err != nil {
		return "", 0, order, fmt.Errorf("snapshot: reading label block body: %w", err)
	}
	label := string(raw[:4])
	size := int32(order.ByteOrder.Uint32(raw[4:8]))
	var trailer [4]byte
	if _, err := io.ReadFull(br.r, trailer[:]); err != nil {
		return "", 0, order, fmt.Errorf("snapshot: reading label block trailer: %w", err)
	}
	if int32(order.ByteOrder.Uint32(trailer[:])) != 8 {
		return "", 0, order, simcontext.Snapshot(fmt.Sprintf("label block %q trailing marker != 8: Fortran record inconsistent", label))
	}
	return label, size, order, nil
}

func writeRecord(w io.Writer, payload []byte) error {
	if err := writeMarker(w, int32(len(payload))); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return writeMarker(w, int32(len(payload)))
}

func readRecord(br *byteReader, order byteOrder) ([]byte, error) {
	var lead [4]byte
	if _, err := io.ReadFull(br.r, lead[:]); err != nil {
		return nil, fmt.Errorf("snapshot: reading data record marker: %w", err)
	}
	size := int32(order.ByteOrder.Uint32(lead[:]))
	payload := make([]byte, size)
	if _, err := io.ReadFull(br.r, payload); err != nil {
		return nil, fmt.Errorf("snapshot: reading data record body: %w", err)
	}
	var trail [4]byte
	if _, err := io.ReadFull(br.r, trail[:]); err != nil {
		return nil, fmt.Errorf("snapshot: reading data record trailer: %w", err)
	}
	if int32(order.ByteOrder.Uint32(trail[:])) != size {
		return nil, simcontext.Snapshot("data record leading/trailing marker mismatch: Fortran record inconsistent")
	}
	return payload, nil
}

func writeChecksum(w io.Writer, payload []byte) error {
	sum := xxhash.Sum64(payload)
	return binary.Write(w, binary.LittleEndian, sum)
}

func verifyChecksum(br *byteReader, payload []byte) error {
	var raw [8]byte
	if _, err := io.ReadFull(br.r, raw[:]); err != nil {
		return fmt.Errorf("snapshot: reading block checksum: %w", err)
	}
	want := binary.LittleEndian.Uint64(raw[:])
	got := xxhash.Sum64(payload)
	if want != got {
		return simcontext.Snapshot("block checksum mismatch")
	}
	return nil
}
