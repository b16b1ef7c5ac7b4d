package protocol

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

const DiscriminatorSize = 8

var (
	ErrInvalidDiscriminator = errors.New("invalid account discriminator")
	ErrMalformedAccount     = errors.New("malformed account")
	ErrFieldType            = errors.New("record field has wrong type")
)

type Discriminator [DiscriminatorSize]byte

type FieldKind uint8

const (
	FieldU8 FieldKind = iota + 1
	FieldU64
	FieldI64
	FieldBool
	FieldBytes32
)

func (k FieldKind) size() int {
	switch k {
	case FieldU8, FieldBool:
		return 1
	case FieldU64, FieldI64:
		return 8
	case FieldBytes32:
		return 32
	default:
		return 0
	}
}

type Field struct {
	Name string
	Kind FieldKind
}

// Layout describes a fixed-size account: an 8-byte discriminator followed by
// Fields in declaration order, little-endian, no padding.
type Layout struct {
	Name          string
	Discriminator Discriminator
	Fields        []Field
}

// Size is the exact account data length, discriminator included.
func (l Layout) Size() int {
	n := DiscriminatorSize
	for _, f := range l.Fields {
		n += f.Kind.size()
	}
	return n
}

// Record holds decoded field values keyed by field name. Values are uint8,
// uint64, int64, bool or [32]byte according to the field kind.
type Record map[string]any

func (r Record) Uint8(name string) uint8      { v, _ := r[name].(uint8); return v }
func (r Record) Uint64(name string) uint64    { v, _ := r[name].(uint64); return v }
func (r Record) Int64(name string) int64      { v, _ := r[name].(int64); return v }
func (r Record) Bool(name string) bool        { v, _ := r[name].(bool); return v }
func (r Record) Bytes32(name string) [32]byte { v, _ := r[name].([32]byte); return v }

// Decode parses data strictly according to layout. A discriminator mismatch is
// reported before any length check.
func Decode(data []byte, layout Layout) (Record, error) {
	if len(data) < DiscriminatorSize {
		return nil, fmt.Errorf("%w: %s: %d bytes", ErrMalformedAccount, layout.Name, len(data))
	}
	if !bytes.Equal(data[:DiscriminatorSize], layout.Discriminator[:]) {
		return nil, fmt.Errorf("%w: %s: got %x", ErrInvalidDiscriminator, layout.Name, data[:DiscriminatorSize])
	}
	if want := layout.Size(); len(data) != want {
		return nil, fmt.Errorf("%w: %s: got %d bytes, want %d", ErrMalformedAccount, layout.Name, len(data), want)
	}

	dec := bin.NewBorshDecoder(data[DiscriminatorSize:])
	rec := make(Record, len(layout.Fields))
	for _, f := range layout.Fields {
		v, err := decodeField(dec, f.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrMalformedAccount, layout.Name, f.Name, err)
		}
		rec[f.Name] = v
	}
	if dec.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %s: %d trailing bytes", ErrMalformedAccount, layout.Name, dec.Remaining())
	}
	return rec, nil
}

func decodeField(dec *bin.Decoder, kind FieldKind) (any, error) {
	switch kind {
	case FieldU8:
		return dec.ReadUint8()
	case FieldU64:
		return dec.ReadUint64(bin.LE)
	case FieldI64:
		return dec.ReadInt64(bin.LE)
	case FieldBool:
		b, err := dec.ReadUint8()
		if err != nil {
			return nil, err
		}
		switch b {
		case 0:
			return false, nil
		case 1:
			return true, nil
		default:
			return nil, fmt.Errorf("invalid bool byte %#x", b)
		}
	case FieldBytes32:
		raw, err := dec.ReadNBytes(32)
		if err != nil {
			return nil, err
		}
		var out [32]byte
		copy(out[:], raw)
		return out, nil
	default:
		return nil, fmt.Errorf("unknown field kind %d", kind)
	}
}

// Encode is the inverse of Decode. Every layout field must be present in rec
// with the matching Go type.
func Encode(rec Record, layout Layout) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, layout.Size()))
	buf.Write(layout.Discriminator[:])
	enc := bin.NewBorshEncoder(buf)
	for _, f := range layout.Fields {
		if err := encodeField(enc, f.Kind, rec[f.Name]); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", layout.Name, f.Name, err)
		}
	}
	return buf.Bytes(), nil
}

func encodeField(enc *bin.Encoder, kind FieldKind, v any) error {
	switch kind {
	case FieldU8:
		x, ok := v.(uint8)
		if !ok {
			return ErrFieldType
		}
		return enc.WriteUint8(x)
	case FieldU64:
		x, ok := v.(uint64)
		if !ok {
			return ErrFieldType
		}
		return enc.WriteUint64(x, bin.LE)
	case FieldI64:
		x, ok := v.(int64)
		if !ok {
			return ErrFieldType
		}
		return enc.WriteInt64(x, bin.LE)
	case FieldBool:
		x, ok := v.(bool)
		if !ok {
			return ErrFieldType
		}
		return enc.WriteBool(x)
	case FieldBytes32:
		x, ok := v.([32]byte)
		if !ok {
			return ErrFieldType
		}
		return enc.WriteBytes(x[:], false)
	default:
		return fmt.Errorf("unknown field kind %d", kind)
	}
}
