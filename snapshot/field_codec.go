package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/gravsim/gravsim/particle"
)

// encodeBlock serializes the field label names for the particle slots in
// slots (already filtered to the block's type mask, in on-disk order)
// into one payload, little-endian.
func encodeBlock(label blockLabel, store *particle.Store, slots []int) ([]byte, error) {
	ew := &errWriter{w: &bytes.Buffer{}}
	switch label {
	case labelPos:
		for _, i := range slots {
			ew.write(binary.LittleEndian, store.Pos[i])
		}
	case labelVel:
		for _, i := range slots {
			ew.write(binary.LittleEndian, store.Vel[i])
		}
	case labelID:
		for _, i := range slots {
			ew.write(binary.LittleEndian, store.ID[i])
		}
	case labelMass:
		for _, i := range slots {
			ew.write(binary.LittleEndian, store.Mass[i])
		}
	case labelTBin:
		for _, i := range slots {
			ew.write(binary.LittleEndian, int32(store.TimeBin[i]))
		}
	case labelIDPos:
		for _, i := range slots {
			ew.write(binary.LittleEndian, store.ItDriftPos[i])
		}
	case labelIKPos:
		for _, i := range slots {
			ew.write(binary.LittleEndian, store.ItKickPos[i])
		}
	default:
		return nil, fmt.Errorf("snapshot: unknown block label %q", label)
	}
	if ew.err != nil {
		return nil, fmt.Errorf("snapshot: encoding block %q: %w", label, ew.err)
	}
	return ew.w.Bytes(), nil
}

// decodeBlock is encodeBlock's inverse: it reads payload's fields in the
// same slots order and writes them into store.
func decodeBlock(label blockLabel, order byteOrder, payload []byte, store *particle.Store, slots []int) error {
	er := &errReader{r: bytes.NewReader(payload)}
	switch label {
	case labelPos:
		for _, i := range slots {
			er.read(order.ByteOrder, &store.Pos[i])
		}
	case labelVel:
		for _, i := range slots {
			er.read(order.ByteOrder, &store.Vel[i])
		}
	case labelID:
		for _, i := range slots {
			er.read(order.ByteOrder, &store.ID[i])
		}
	case labelMass:
		for _, i := range slots {
			er.read(order.ByteOrder, &store.Mass[i])
		}
	case labelTBin:
		var v int32
		for _, i := range slots {
			er.read(order.ByteOrder, &v)
			store.TimeBin[i] = int(v)
		}
	case labelIDPos:
		for _, i := range slots {
			er.read(order.ByteOrder, &store.ItDriftPos[i])
		}
	case labelIKPos:
		for _, i := range slots {
			er.read(order.ByteOrder, &store.ItKickPos[i])
		}
	default:
		return fmt.Errorf("snapshot: unknown block label %q", label)
	}
	if er.err != nil {
		return fmt.Errorf("snapshot: decoding block %q: %w", label, er.err)
	}
	return nil
}
