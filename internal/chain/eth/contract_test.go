package eth

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelector_KnownERC20(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "70a08231", hex.EncodeToString(Selector(SigBalanceOf)))
	assert.Equal(t, "dd62ed3e", hex.EncodeToString(Selector(SigAllowance)))
	assert.Equal(t, "095ea7b3", hex.EncodeToString(Selector(SigApprove)))
	assert.Equal(t, "a9059cbb", hex.EncodeToString(Selector("transfer(address,uint256)")))
}

func TestSelector_Distinct(t *testing.T) {
	t.Parallel()

	sigs := []string{
		SigBalanceOf, SigAllowance, SigApprove,
		SigIsSubscriberActive, SigSubscriptionFee, SigSubscribe, SigPaymentToken,
	}
	seen := make(map[string]string, len(sigs))
	for _, sig := range sigs {
		sel := hex.EncodeToString(Selector(sig))
		require.NotContains(t, seen, sel, "%s collides with %s", sig, seen[sel])
		seen[sel] = sig
	}
}

func TestEncodeCalls(t *testing.T) {
	t.Parallel()

	owner := common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	spender := common.HexToAddress("0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359")

	t.Run("balanceOf", func(t *testing.T) {
		t.Parallel()
		data := EncodeBalanceOf(owner)
		require.Len(t, data, 36)
		assert.Equal(t, Selector(SigBalanceOf), data[:4])
		assert.Equal(t, make([]byte, 12), data[4:16])
		assert.Equal(t, owner.Bytes(), data[16:36])
	})

	t.Run("allowance", func(t *testing.T) {
		t.Parallel()
		data := EncodeAllowance(owner, spender)
		require.Len(t, data, 68)
		assert.Equal(t, owner.Bytes(), data[16:36])
		assert.Equal(t, spender.Bytes(), data[48:68])
	})

	t.Run("approve", func(t *testing.T) {
		t.Parallel()
		fee := big.NewInt(10_000_000)
		data := EncodeApprove(spender, fee)
		require.Len(t, data, 68)
		assert.Equal(t, Selector(SigApprove), data[:4])
		assert.Equal(t, spender.Bytes(), data[16:36])
		assert.Equal(t, 0, fee.Cmp(new(big.Int).SetBytes(data[36:68])))
	})

	t.Run("approve nil amount is zero", func(t *testing.T) {
		t.Parallel()
		data := EncodeApprove(spender, nil)
		assert.True(t, bytes.Equal(make([]byte, 32), data[36:68]))
	})

	t.Run("argument-free calls", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, Selector(SigSubscribe), EncodeSubscribe())
		assert.Equal(t, Selector(SigSubscriptionFee), EncodeSubscriptionFee())
		assert.Equal(t, Selector(SigPaymentToken), EncodePaymentToken())
		assert.Len(t, EncodeIsSubscriberActive(owner), 36)
	})
}

func TestDecodeUint256(t *testing.T) {
	t.Parallel()

	huge := new(big.Int).Lsh(big.NewInt(1), 255)
	v, err := DecodeUint256(common.LeftPadBytes(huge.Bytes(), 32))
	require.NoError(t, err)
	assert.Equal(t, 0, huge.Cmp(v))

	// Trailing bytes beyond the first word are ignored
	v, err = DecodeUint256(append(common.LeftPadBytes([]byte{5}, 32), 0xff))
	require.NoError(t, err)
	assert.Equal(t, int64(5), v.Int64())

	_, err = DecodeUint256(make([]byte, 31))
	require.ErrorIs(t, err, ErrMalformedResult)
}

func TestDecodeBool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      []byte
		want    bool
		wantErr bool
	}{
		{name: "true", in: common.LeftPadBytes([]byte{1}, 32), want: true},
		{name: "false", in: make([]byte, 32)},
		{name: "two", in: common.LeftPadBytes([]byte{2}, 32), wantErr: true},
		{name: "dirty high bytes", in: append([]byte{1}, make([]byte, 31)...), wantErr: true},
		{name: "short", in: []byte{1}, wantErr: true},
		{name: "nil", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := DecodeBool(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedResult)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeAddress(t *testing.T) {
	t.Parallel()

	addr := common.HexToAddress("0xcac524bca292aaade2df8a05cc58f0a65b1b3bb9")
	got, err := DecodeAddress(common.LeftPadBytes(addr.Bytes(), 32))
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	_, err = DecodeAddress(addr.Bytes())
	require.ErrorIs(t, err, ErrMalformedResult)
}
