package features

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Stored vector blobs start with a small header so a corrupt or truncated
// object fails loudly instead of decoding into garbage.
var vectorMagic = [4]byte{'S', 'G', 'V', '1'}

// EncodeVectors serializes a list of equal-dimension vectors as little-endian
// float32 with a count+dimension header.
func EncodeVectors(vectors [][]float32, dim int) ([]byte, error) {
	for i, vec := range vectors {
		if len(vec) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(vec), dim)
		}
	}
	buf := bytes.NewBuffer(make([]byte, 0, 12+len(vectors)*dim*4))
	buf.Write(vectorMagic[:])
	var header [8]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(vectors)))
	binary.LittleEndian.PutUint32(header[4:8], uint32(dim))
	buf.Write(header[:])
	for _, vec := range vectors {
		for _, v := range vec {
			var cell [4]byte
			binary.LittleEndian.PutUint32(cell[:], math.Float32bits(v))
			buf.Write(cell[:])
		}
	}
	return buf.Bytes(), nil
}

// DecodeVectors reverses EncodeVectors, enforcing the expected dimension.
func DecodeVectors(data []byte, wantDim int) ([][]float32, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("vector blob too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:4], vectorMagic[:]) {
		return nil, fmt.Errorf("vector blob has bad magic %q", data[:4])
	}
	count := int(binary.LittleEndian.Uint32(data[4:8]))
	dim := int(binary.LittleEndian.Uint32(data[8:12]))
	if dim != wantDim {
		return nil, fmt.Errorf("vector blob dimension %d, want %d", dim, wantDim)
	}
	payload := data[12:]
	if len(payload) != count*dim*4 {
		return nil, fmt.Errorf("vector blob payload %d bytes, want %d", len(payload), count*dim*4)
	}
	vectors := make([][]float32, count)
	offset := 0
	for i := range vectors {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(payload[offset : offset+4]))
			offset += 4
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// EncodeWaveform serializes the envelope as a single-row vector blob.
func EncodeWaveform(waveform []float32) ([]byte, error) {
	return EncodeVectors([][]float32{waveform}, len(waveform))
}

// DecodeWaveform reverses EncodeWaveform.
func DecodeWaveform(data []byte, wantLen int) ([]float32, error) {
	rows, err := DecodeVectors(data, wantLen)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, fmt.Errorf("waveform blob has %d rows, want 1", len(rows))
	}
	return rows[0], nil
}
