package framer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	payload := []byte("hello symbol")
	buf := Marshal(0x1234, 0x5678, payload)
	assert.Equal(t, HeaderLen+len(payload), len(buf))

	f, err := Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), f.Tag)
	assert.Equal(t, uint16(0x5678), f.ESI)
	assert.Equal(t, payload, f.Payload)
}

func TestUnmarshalRejectsShortPayload(t *testing.T) {
	_, err := Unmarshal([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestUnmarshalEmptySymbol(t *testing.T) {
	buf := Marshal(1, 2, nil)
	f, err := Unmarshal(buf)
	require.NoError(t, err)
	assert.Empty(t, f.Payload)
}
