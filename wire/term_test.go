package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Term{
		nil,
		true,
		false,
		int64(-42),
		int64(1 << 40),
		3.14159,
		"hello",
		[]byte("raw-bytes"),
		[]Term{int64(1), "two", []Term{true, nil}},
		map[string]Term{
			"name":     "node1@127.0.0.1:4369",
			"priority": int64(7),
			"tags":     []Term{"a", "b"},
		},
	}

	for _, c := range cases {
		encoded, err := Encode(c)
		require.NoError(t, err)
		decoded, err := Decode(encoded)
		require.NoError(t, err)
		require.Equal(t, c, decoded)
	}
}

func TestDecodeTruncatedFails(t *testing.T) {
	encoded, err := Encode("a reasonably long string payload")
	require.NoError(t, err)
	_, err = Decode(encoded[:len(encoded)-3])
	require.Error(t, err)
}

func TestMapHelpers(t *testing.T) {
	m := Map("name", "x", "count", int64(3))
	name, ok := GetString(m, "name")
	require.True(t, ok)
	require.Equal(t, "x", name)

	count, ok := GetInt64(m, "count")
	require.True(t, ok)
	require.EqualValues(t, 3, count)

	_, ok = GetString(m, "missing")
	require.False(t, ok)
}

// TestFrameSplitMerge exercises testable property 7: for any injected
// byte split/merge, the receiver decodes the same sequence of frames
// the sender encoded.
func TestFrameSplitMerge(t *testing.T) {
	messages := [][]byte{
		[]byte("first"),
		[]byte(""),
		bytes.Repeat([]byte{0xAB}, 5000),
		[]byte("last"),
	}

	var encoded bytes.Buffer
	for _, m := range messages {
		require.NoError(t, WriteFrame(&encoded, m))
	}

	full := encoded.Bytes()

	// Split the byte stream into oddly-sized chunks to simulate TCP
	// fragmentation, then feed it through a reader that serves at most
	// chunkSize bytes per Read call -- merging some writes and
	// splitting others relative to the original frame boundaries.
	for _, chunkSize := range []int{1, 3, 7, 64, 4096} {
		r := &chunkedReader{data: full, chunk: chunkSize}
		var got [][]byte
		for {
			payload, err := ReadFrame(r)
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			got = append(got, payload)
		}
		require.Len(t, got, len(messages))
		for i := range messages {
			require.Equal(t, messages[i], got[i], "chunkSize=%d index=%d", chunkSize, i)
		}
	}
}

type chunkedReader struct {
	data  []byte
	chunk int
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	n := c.chunk
	if n > len(p) {
		n = len(p)
	}
	if n > len(c.data) {
		n = len(c.data)
	}
	copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}
