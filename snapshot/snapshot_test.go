package snapshot

import (
	"bytes"
	"testing"

	"github.com/gravsim/gravsim/particle"
)

func buildTestStore() *particle.Store {
	store := particle.New(4)
	types := []particle.Type{particle.TypeHalo, particle.TypeHalo, particle.TypeDisk, particle.TypeGas}
	for i, t := range types {
		store.Type[i] = t
		store.ID[i] = uint64(100 + i)
		store.Mass[i] = 1.5 + float64(i)
		store.Pos[i] = particle.Vec3{float64(i), float64(i) * 2, float64(i) * 3}
		store.Vel[i] = particle.Vec3{0.1 * float64(i), 0, 0}
		store.TimeBin[i] = i % 3
		store.ItDriftPos[i] = int64(i)
		store.ItKickPos[i] = int64(i) * 2
	}
	return store
}

func TestWriteReadSnapshot_RoundTrip(t *testing.T) {
	store := buildTestStore()
	meta := Header{Time: 0.5, Redshift: 2.0, BoxSize: 10, Omega0: 0.3, OmegaLambda: 0.7, HubbleParam: 0.7}

	var buf bytes.Buffer
	if err := WriteSnapshot(&buf, store, meta, false); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	got, header, err := ReadSnapshot(&buf)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if got.N != store.N {
		t.Fatalf("N = %d, want %d", got.N, store.N)
	}
	if header.Time != meta.Time || header.BoxSize != meta.BoxSize {
		t.Fatalf("header mismatch: %+v", header)
	}

	// Particles are reordered by type on disk (Gas=0 first, then Halo,
	// Disk, ...); verify every original particle reappears with its
	// fields intact by matching on ID rather than assuming slot order.
	byID := make(map[uint64]int)
	for i := 0; i < got.N; i++ {
		byID[got.ID[i]] = i
	}
	for i := 0; i < store.N; i++ {
		j, ok := byID[store.ID[i]]
		if !ok {
			t.Fatalf("ID %d missing from round-tripped store", store.ID[i])
		}
		if got.Type[j] != store.Type[i] {
			t.Errorf("ID %d: type = %v, want %v", store.ID[i], got.Type[j], store.Type[i])
		}
		if got.Mass[j] != store.Mass[i] {
			t.Errorf("ID %d: mass = %v, want %v", store.ID[i], got.Mass[j], store.Mass[i])
		}
		if got.Pos[j] != store.Pos[i] {
			t.Errorf("ID %d: pos = %v, want %v", store.ID[i], got.Pos[j], store.Pos[i])
		}
		if got.Vel[j] != store.Vel[i] {
			t.Errorf("ID %d: vel = %v, want %v", store.ID[i], got.Vel[j], store.Vel[i])
		}
	}
}

func TestWriteReadSnapshot_Restart(t *testing.T) {
	store := buildTestStore()
	meta := Header{Time: 1.0}

	var buf bytes.Buffer
	if err := WriteSnapshot(&buf, store, meta, true); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	got, _, err := ReadSnapshot(&buf)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}

	byID := make(map[uint64]int)
	for i := 0; i < got.N; i++ {
		byID[got.ID[i]] = i
	}
	for i := 0; i < store.N; i++ {
		j := byID[store.ID[i]]
		if got.TimeBin[j] != store.TimeBin[i] {
			t.Errorf("ID %d: TimeBin = %d, want %d", store.ID[i], got.TimeBin[j], store.TimeBin[i])
		}
		if got.ItDriftPos[j] != store.ItDriftPos[i] {
			t.Errorf("ID %d: ItDriftPos = %d, want %d", store.ID[i], got.ItDriftPos[j], store.ItDriftPos[i])
		}
		if got.ItKickPos[j] != store.ItKickPos[i] {
			t.Errorf("ID %d: ItKickPos = %d, want %d", store.ID[i], got.ItKickPos[j], store.ItKickPos[i])
		}
	}
}

func TestReadSnapshot_ChecksumMismatch(t *testing.T) {
	store := buildTestStore()
	var buf bytes.Buffer
	if err := WriteSnapshot(&buf, store, Header{}, false); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	raw := buf.Bytes()
	// Flip a byte inside the last (MASS) block's payload region (well past
	// the header) to trigger a checksum mismatch on read.
	raw[len(raw)-20] ^= 0xFF

	_, _, err := ReadSnapshot(bytes.NewReader(raw))
	if err == nil {
		t.Fatal("expected an error for a corrupted block")
	}
}

func TestReadSnapshot_BadMarker(t *testing.T) {
	_, _, err := ReadSnapshot(bytes.NewReader([]byte{1, 2, 3, 4}))
	if err == nil {
		t.Fatal("expected an error for a marker that is neither 8 nor byte-swapped 8")
	}
}

func TestFingerprint_DiffersOnDifferentHeaders(t *testing.T) {
	a := Header{Time: 0, BoxSize: 10}
	b := Header{Time: 1, BoxSize: 10}
	if Fingerprint(a) == Fingerprint(b) {
		t.Fatal("expected different fingerprints for different headers")
	}
	if Fingerprint(a) != Fingerprint(a) {
		t.Fatal("fingerprint should be deterministic")
	}
}
