package eth

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// Checksummed forms from https://eips.ethereum.org/EIPS/eip-55
//
//nolint:gochecknoglobals // Test data
var eip55Vectors = []string{
	"0x52908400098527886E0F7030069857D2E4169EE7",
	"0x8617E340B3D01FA5F11F306F4090FD50E238070D",
	"0xde709f2102306220921060314715629080e2fb77",
	"0x27b1fdb04752bbc536007a920d24acb045561c26",
	"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
	"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
	"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
	"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
}

func TestChecksum(t *testing.T) {
	t.Parallel()

	for _, v := range eip55Vectors {
		addr := common.HexToAddress(v)
		assert.Equal(t, v, Checksum(addr))
		assert.Equal(t, addr.Hex(), Checksum(addr), "agrees with go-ethereum")
	}
	assert.Equal(t, "0x0000000000000000000000000000000000000000", Checksum(common.Address{}))
}

func TestParseAddress(t *testing.T) {
	t.Parallel()

	t.Run("checksummed", func(t *testing.T) {
		t.Parallel()
		for _, v := range eip55Vectors {
			addr, err := ParseAddress(v)
			require.NoError(t, err, v)
			assert.Equal(t, common.HexToAddress(v), addr)
		}
	})

	t.Run("single case skips the checksum", func(t *testing.T) {
		t.Parallel()
		const v = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
		want := common.HexToAddress(v)

		lower, err := ParseAddress(strings.ToLower(v))
		require.NoError(t, err)
		assert.Equal(t, want, lower)

		upper, err := ParseAddress("0x" + strings.ToUpper(v[2:]))
		require.NoError(t, err)
		assert.Equal(t, want, upper)
	})

	t.Run("surrounding space", func(t *testing.T) {
		t.Parallel()
		addr, err := ParseAddress("  0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359\n")
		require.NoError(t, err)
		assert.Equal(t, "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359", addr.Hex())
	})

	t.Run("bad checksum", func(t *testing.T) {
		t.Parallel()
		// last letter's case flipped
		_, err := ParseAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAeD")
		require.Error(t, err)
		require.ErrorIs(t, err, suberr.ErrInvalidChecksum)

		var se *suberr.SubpassError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", se.Details["expected"])
		assert.NotEmpty(t, se.Suggestion)
	})

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()
		for _, bad := range []string{
			"",
			"0x",
			"0x1234",
			"5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
			"0X5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
			"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed00",
			"0xzzAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		} {
			_, err := ParseAddress(bad)
			require.ErrorIs(t, err, suberr.ErrInvalidAddress, bad)
		}
	})
}
