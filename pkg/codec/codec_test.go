package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytesToHex(t *testing.T) {
	assert.Equal(t, "68656c6c6f", BytesToHex([]byte("hello")))
	assert.Equal(t, "00ff10", BytesToHex([]byte{0x00, 0xff, 0x10}))
	assert.Equal(t, "", BytesToHex(nil))
}

func TestHexRoundTrip(t *testing.T) {
	inputs := [][]byte{
		[]byte("hello"),
		{0x00},
		{0xff, 0x00, 0xff},
		make([]byte, 256),
	}
	for _, in := range inputs {
		out, err := HexToBytes(BytesToHex(in))
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestBase64ToHex_Decodes(t *testing.T) {
	// "hello" in base64
	assert.Equal(t, "68656c6c6f", Base64ToHex("aGVsbG8="))
}

func TestBase64ToHex_AlreadyHexShortCircuits(t *testing.T) {
	// Even-length hex strings must pass through untouched, upper or lower
	// case, so an already-normalized payload is never decoded twice.
	for _, h := range []string{"68656c6c6f", "00", "DEADBEEF", "0a0B0c0D"} {
		assert.Equal(t, h, Base64ToHex(h))
	}
}

func TestBase64ToHex_OddLengthHexIsTreatedAsBase64(t *testing.T) {
	// "aaa" has odd length, so it is not hex; it also fails base64
	// decoding (bad padding) and falls back to the original input.
	assert.Equal(t, "aaa", Base64ToHex("aaa"))
}

func TestBase64ToHex_StripsDataURIPrefix(t *testing.T) {
	assert.Equal(t, "68656c6c6f", Base64ToHex("data:application/octet-stream;base64,aGVsbG8="))
}

func TestBase64ToHex_StripsWhitespace(t *testing.T) {
	assert.Equal(t, "68656c6c6f", Base64ToHex("aGVs\nbG8=\n"))
}

func TestBase64ToHex_InvalidInputFallsBack(t *testing.T) {
	for _, in := range []string{"!!!not-base64!!!", "a", ""} {
		assert.Equal(t, in, Base64ToHex(in))
	}
}

func TestIsHex(t *testing.T) {
	assert.True(t, IsHex("00ff"))
	assert.True(t, IsHex("DEADBEEF"))
	assert.False(t, IsHex(""))
	assert.False(t, IsHex("0"))
	assert.False(t, IsHex("zz"))
}
