// Package compression encodes JSON payloads stored in redis and etcd. Every
// payload starts with one byte naming the algorithm so readers can decode
// values written with a different setting.
package compression

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang/snappy"
)

// Algorithm defines compression types
type Algorithm uint8

const (
	None   Algorithm = 0
	Snappy Algorithm = 1
)

func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case Snappy:
		return "snappy"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// ErrEmptyPayload is returned when decoding a zero-length value
var ErrEmptyPayload = errors.New("empty payload")

// Compressor compresses and decompresses raw bytes
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Algorithm() Algorithm
}

// GetCompressor returns a compressor for the given algorithm
func GetCompressor(algo Algorithm) (Compressor, error) {
	switch algo {
	case None:
		return noneCompressor{}, nil
	case Snappy:
		return snappyCompressor{}, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %d", algo)
	}
}

type noneCompressor struct{}

func (noneCompressor) Compress(data []byte) ([]byte, error)   { return data, nil }
func (noneCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }
func (noneCompressor) Algorithm() Algorithm                   { return None }

type snappyCompressor struct{}

func (snappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (snappyCompressor) Decompress(data []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress failed: %w", err)
	}
	return out, nil
}

func (snappyCompressor) Algorithm() Algorithm { return Snappy }

// Codec marshals values to JSON and compresses them with one algorithm
type Codec struct {
	c Compressor
}

// NewCodec creates a codec writing payloads with algo
func NewCodec(algo Algorithm) (*Codec, error) {
	c, err := GetCompressor(algo)
	if err != nil {
		return nil, err
	}
	return &Codec{c: c}, nil
}

// SnappyCodec returns the codec used by default for stored payloads
func SnappyCodec() *Codec {
	return &Codec{c: snappyCompressor{}}
}

// Marshal encodes v as header byte + compressed JSON
func (c *Codec) Marshal(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	body, err := c.c.Compress(raw)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, byte(c.c.Algorithm()))
	return append(out, body...), nil
}

// Unmarshal decodes a payload written by any codec into v
func (c *Codec) Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return ErrEmptyPayload
	}
	dc, err := GetCompressor(Algorithm(data[0]))
	if err != nil {
		return err
	}
	raw, err := dc.Decompress(data[1:])
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", dc.Algorithm(), err)
	}
	return nil
}
