// Package wire implements the cross-node serialization format and the
// length-prefixed TCP framing used by the distribution layer (§4.13,
// §6 of SPEC_FULL.md). It deliberately does not implement full Erlang
// External Term Format; it generalizes the teacher's tagged etf.Term
// model (etf.Atom, etf.Tuple, etf.Pid, ...) into a small closed sum
// type sufficient for the wire messages this framework actually sends.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Term is the wire value type. The dynamic type of a Term is always one
// of: nil, bool, int64, float64, string, []byte, []Term, map[string]Term.
type Term interface{}

type tag byte

const (
	tagNil tag = iota
	tagBool
	tagInt
	tagFloat
	tagString
	tagBytes
	tagList
	tagMap
)

// Encode serializes t into the wire binary format.
func Encode(t Term) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeInto(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeInto(buf *bytes.Buffer, t Term) error {
	switch v := t.(type) {
	case nil:
		buf.WriteByte(byte(tagNil))
	case bool:
		buf.WriteByte(byte(tagBool))
		if v {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case int:
		return encodeInto(buf, int64(v))
	case int64:
		buf.WriteByte(byte(tagInt))
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v))
		buf.Write(b[:])
	case uint32:
		return encodeInto(buf, int64(v))
	case float64:
		buf.WriteByte(byte(tagFloat))
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
		buf.Write(b[:])
	case string:
		buf.WriteByte(byte(tagString))
		writeLenPrefixed(buf, []byte(v))
	case []byte:
		buf.WriteByte(byte(tagBytes))
		writeLenPrefixed(buf, v)
	case []Term:
		buf.WriteByte(byte(tagList))
		writeUint32(buf, uint32(len(v)))
		for _, elem := range v {
			if err := encodeInto(buf, elem); err != nil {
				return err
			}
		}
	case map[string]Term:
		buf.WriteByte(byte(tagMap))
		writeUint32(buf, uint32(len(v)))
		for k, val := range v {
			writeLenPrefixed(buf, []byte(k))
			if err := encodeInto(buf, val); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("wire: unsupported term type %T", t)
	}
	return nil
}

func writeUint32(buf *bytes.Buffer, n uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	buf.Write(b[:])
}

func writeLenPrefixed(buf *bytes.Buffer, data []byte) {
	writeUint32(buf, uint32(len(data)))
	buf.Write(data)
}

// Decode parses a Term from the start of data, returning the term and
// any trailing bytes should the caller want to detect garbage.
func Decode(data []byte) (Term, error) {
	t, rest, err := decodeFrom(data)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("wire: %d trailing bytes after term", len(rest))
	}
	return t, nil
}

func decodeFrom(data []byte) (Term, []byte, error) {
	if len(data) < 1 {
		return nil, nil, fmt.Errorf("wire: empty input")
	}
	t := tag(data[0])
	data = data[1:]

	switch t {
	case tagNil:
		return nil, data, nil
	case tagBool:
		if len(data) < 1 {
			return nil, nil, fmt.Errorf("wire: truncated bool")
		}
		return data[0] != 0, data[1:], nil
	case tagInt:
		if len(data) < 8 {
			return nil, nil, fmt.Errorf("wire: truncated int")
		}
		v := int64(binary.BigEndian.Uint64(data[:8]))
		return v, data[8:], nil
	case tagFloat:
		if len(data) < 8 {
			return nil, nil, fmt.Errorf("wire: truncated float")
		}
		v := math.Float64frombits(binary.BigEndian.Uint64(data[:8]))
		return v, data[8:], nil
	case tagString:
		raw, rest, err := readLenPrefixed(data)
		if err != nil {
			return nil, nil, err
		}
		return string(raw), rest, nil
	case tagBytes:
		raw, rest, err := readLenPrefixed(data)
		if err != nil {
			return nil, nil, err
		}
		return raw, rest, nil
	case tagList:
		n, rest, err := readUint32(data)
		if err != nil {
			return nil, nil, err
		}
		list := make([]Term, 0, n)
		for i := uint32(0); i < n; i++ {
			var elem Term
			elem, rest, err = decodeFrom(rest)
			if err != nil {
				return nil, nil, err
			}
			list = append(list, elem)
		}
		return list, rest, nil
	case tagMap:
		n, rest, err := readUint32(data)
		if err != nil {
			return nil, nil, err
		}
		m := make(map[string]Term, n)
		for i := uint32(0); i < n; i++ {
			var keyRaw []byte
			keyRaw, rest, err = readLenPrefixed(rest)
			if err != nil {
				return nil, nil, err
			}
			var val Term
			val, rest, err = decodeFrom(rest)
			if err != nil {
				return nil, nil, err
			}
			m[string(keyRaw)] = val
		}
		return m, rest, nil
	default:
		return nil, nil, fmt.Errorf("wire: unknown tag %d", t)
	}
}

func readUint32(data []byte) (uint32, []byte, error) {
	if len(data) < 4 {
		return 0, nil, fmt.Errorf("wire: truncated length")
	}
	return binary.BigEndian.Uint32(data[:4]), data[4:], nil
}

func readLenPrefixed(data []byte) ([]byte, []byte, error) {
	n, rest, err := readUint32(data)
	if err != nil {
		return nil, nil, err
	}
	if uint32(len(rest)) < n {
		return nil, nil, fmt.Errorf("wire: truncated payload (want %d, have %d)", n, len(rest))
	}
	return rest[:n], rest[n:], nil
}

// Map is a convenience constructor used throughout cluster/ to build
// record-shaped terms without repeating map[string]Term{...} literals.
func Map(pairs ...interface{}) map[string]Term {
	if len(pairs)%2 != 0 {
		panic("wire.Map: odd number of arguments")
	}
	m := make(map[string]Term, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key := pairs[i].(string)
		m[key] = pairs[i+1]
	}
	return m
}

// GetString, GetInt64 and GetList fetch typed fields out of a decoded
// map term, returning the zero value (and false) when absent or of the
// wrong dynamic type -- wire messages are trusted-but-verify, never
// assumed well-formed from a remote peer.
func GetString(m map[string]Term, key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

func GetInt64(m map[string]Term, key string) (int64, bool) {
	v, ok := m[key].(int64)
	return v, ok
}

func GetBytes(m map[string]Term, key string) ([]byte, bool) {
	v, ok := m[key].([]byte)
	return v, ok
}

func GetList(m map[string]Term, key string) ([]Term, bool) {
	v, ok := m[key].([]Term)
	return v, ok
}
