package store

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	lerrors "github.com/Aman-CERP/lorerank/internal/errors"
)

// FAISS flat index headers, as written by faiss.write_index.
const (
	faissFlatL2   = "IxF2"
	faissFlatIP   = "IxFI"
	faissFlatBase = "IxFl"

	faissMetricL2 = 1
)

// LoadFaissFlat reads a FAISS IndexFlatL2 file from path.
func LoadFaissFlat(path string) (*FlatL2Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, lerrors.New(lerrors.ErrCodeFileNotFound, "vector index not found: "+path, err)
		}
		return nil, lerrors.New(lerrors.ErrCodeFilePermission, "cannot open vector index: "+path, err)
	}
	defer f.Close()

	idx, err := ReadFaissFlat(bufio.NewReaderSize(f, 1<<20))
	if err != nil {
		if le, ok := err.(*lerrors.LoreError); ok {
			return nil, le.WithDetail("path", path)
		}
		return nil, err
	}
	return idx, nil
}

// ReadFaissFlat decodes a serialized flat L2 index. Rows keep their file
// order, so row i is doc_id i. Inner-product and non-flat indices are rejected.
func ReadFaissFlat(r io.Reader) (*FlatL2Index, error) {
	var fourcc [4]byte
	if _, err := io.ReadFull(r, fourcc[:]); err != nil {
		return nil, corrupt("read header", err)
	}

	switch string(fourcc[:]) {
	case faissFlatL2, faissFlatBase:
	case faissFlatIP:
		return nil, lerrors.New(lerrors.ErrCodeCorruptIndex,
			"inner-product FAISS index is not supported, rebuild with IndexFlatL2", nil)
	default:
		return nil, lerrors.New(lerrors.ErrCodeCorruptIndex,
			fmt.Sprintf("unsupported FAISS index type %q", fourcc[:]), nil)
	}

	var hdr struct {
		Dim       int32
		NTotal    int64
		Dummy1    int64
		Dummy2    int64
		IsTrained uint8
		Metric    int32
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, corrupt("read index header", err)
	}
	if hdr.Metric > 1 {
		var metricArg float32
		if err := binary.Read(r, binary.LittleEndian, &metricArg); err != nil {
			return nil, corrupt("read metric argument", err)
		}
	}
	if hdr.Metric != faissMetricL2 {
		return nil, lerrors.New(lerrors.ErrCodeCorruptIndex,
			fmt.Sprintf("FAISS index uses metric %d, expected L2", hdr.Metric), nil)
	}
	if hdr.Dim <= 0 || hdr.NTotal < 0 {
		return nil, corrupt(fmt.Sprintf("invalid shape d=%d ntotal=%d", hdr.Dim, hdr.NTotal), nil)
	}

	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, corrupt("read vector count", err)
	}
	if count != uint64(hdr.NTotal)*uint64(hdr.Dim) {
		return nil, corrupt(fmt.Sprintf("expected %d floats, header says %d", hdr.NTotal*int64(hdr.Dim), count), nil)
	}
	if count > math.MaxInt32*8 {
		return nil, corrupt("vector data too large", nil)
	}

	data := make([]float32, count)
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return nil, corrupt("read vectors", err)
	}
	return NewFlatL2IndexFromRows(int(hdr.Dim), data)
}

// WriteFaissFlat serializes x in the IndexFlatL2 layout read by ReadFaissFlat.
func WriteFaissFlat(w io.Writer, x *FlatL2Index) error {
	if _, err := io.WriteString(w, faissFlatL2); err != nil {
		return err
	}
	hdr := struct {
		Dim       int32
		NTotal    int64
		Dummy1    int64
		Dummy2    int64
		IsTrained uint8
		Metric    int32
	}{
		Dim:       int32(x.dim),
		NTotal:    int64(x.n),
		Dummy1:    1 << 20,
		Dummy2:    1 << 20,
		IsTrained: 1,
		Metric:    faissMetricL2,
	}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(x.data))); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, x.data)
}

func corrupt(what string, cause error) *lerrors.LoreError {
	return lerrors.New(lerrors.ErrCodeCorruptIndex, "corrupt FAISS index: "+what, cause)
}
