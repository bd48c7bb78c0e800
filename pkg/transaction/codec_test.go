package transaction

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quill-wallet/quill-wallet/pkg/types"
)

func TestEncodeAction_VerifyIdentity(t *testing.T) {
	data, err := BorshCodec{}.EncodeAction(types.VerifyIdentity{
		Account: "a@wallet",
		Nonce:   7,
	})
	require.NoError(t, err)

	expected := []byte{
		1,          // enum tag
		8, 0, 0, 0, // account length
		'a', '@', 'w', 'a', 'l', 'l', 'e', 't',
		7, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // nonce u128 LE
	}
	assert.Equal(t, expected, data)
}

func TestEncodeAction_UseSessionKey(t *testing.T) {
	data, err := BorshCodec{}.EncodeAction(types.UseSessionKey{
		Account: "a@wallet",
		Nonce:   0x0102,
	})
	require.NoError(t, err)

	require.Len(t, data, 1+4+8+16)
	assert.Equal(t, byte(4), data[0])
	// nonce is little-endian
	assert.Equal(t, byte(0x02), data[13])
	assert.Equal(t, byte(0x01), data[14])
	assert.Equal(t, byte(0x00), data[15])
}

func TestEncodeAction_AddSessionKey(t *testing.T) {
	t.Run("without whitelist and lane", func(t *testing.T) {
		data, err := BorshCodec{}.EncodeAction(types.AddSessionKey{
			Account:    "a@w",
			Key:        "02ab",
			Expiration: 16,
			Nonce:      3,
		})
		require.NoError(t, err)

		expected := []byte{
			2,          // enum tag
			3, 0, 0, 0, // account
			'a', '@', 'w',
			4, 0, 0, 0, // key
			'0', '2', 'a', 'b',
			16, 0, 0, 0, 0, 0, 0, 0, // expiration u64 LE
			0, // whitelist absent
			0, // lane absent
			3, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, // nonce
		}
		assert.Equal(t, expected, data)
	})

	t.Run("with whitelist and lane", func(t *testing.T) {
		data, err := BorshCodec{}.EncodeAction(types.AddSessionKey{
			Account:    "a@w",
			Key:        "02ab",
			Expiration: 16,
			Whitelist:  []string{"x", "yz"},
			LaneID:     "l1",
			Nonce:      3,
		})
		require.NoError(t, err)

		expected := []byte{
			2,
			3, 0, 0, 0, 'a', '@', 'w',
			4, 0, 0, 0, '0', '2', 'a', 'b',
			16, 0, 0, 0, 0, 0, 0, 0,
			1,          // whitelist present
			2, 0, 0, 0, // two entries
			1, 0, 0, 0, 'x',
			2, 0, 0, 0, 'y', 'z',
			1, // lane present
			2, 0, 0, 0, 'l', '1',
			3, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		}
		assert.Equal(t, expected, data)
	})
}

func TestEncodeAction_RemoveSessionKey(t *testing.T) {
	data, err := BorshCodec{}.EncodeAction(types.RemoveSessionKey{
		Account: "a@w",
		Key:     "02ab",
		Nonce:   9,
	})
	require.NoError(t, err)

	expected := []byte{
		3,
		3, 0, 0, 0, 'a', '@', 'w',
		4, 0, 0, 0, '0', '2', 'a', 'b',
		9, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
	assert.Equal(t, expected, data)
}

func TestEncodeAction_RegisterIdentity(t *testing.T) {
	t.Run("password auth layout", func(t *testing.T) {
		data, err := BorshCodec{}.EncodeAction(types.RegisterIdentity{
			Account:    "a@w",
			Nonce:      1,
			Salt:       "s",
			Auth:       types.AuthMethod{Password: &types.PasswordAuth{Hash: "hh"}},
			InviteCode: "inv",
		})
		require.NoError(t, err)

		expected := []byte{
			0,
			3, 0, 0, 0, 'a', '@', 'w',
			1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
			1, 0, 0, 0, 's',
			0,          // auth tag: password
			2, 0, 0, 0, 'h', 'h',
			3, 0, 0, 0, 'i', 'n', 'v',
		}
		assert.Equal(t, expected, data)
	})

	t.Run("jwt auth writes fixed 32-byte hash", func(t *testing.T) {
		hash := make([]byte, 32)
		hash[0] = 0xaa
		hash[31] = 0xbb

		data, err := BorshCodec{}.EncodeAction(types.RegisterIdentity{
			Account: "a@w",
			Auth:    types.AuthMethod{Jwt: &types.JwtAuth{Hash: hash}},
		})
		require.NoError(t, err)

		// tag + account + nonce + empty salt + auth tag precede the hash
		offset := 1 + (4 + 3) + 16 + 4 + 1
		require.GreaterOrEqual(t, len(data), offset+32)
		assert.Equal(t, byte(1), data[offset-1], "auth enum tag")
		assert.Equal(t, hash, data[offset:offset+32])
	})

	t.Run("ethereum auth encodes address string", func(t *testing.T) {
		data, err := BorshCodec{}.EncodeAction(types.RegisterIdentity{
			Account: "a@w",
			Auth:    types.AuthMethod{Ethereum: &types.EthereumAuth{Address: "0xab"}},
		})
		require.NoError(t, err)

		offset := 1 + (4 + 3) + 16 + 4
		assert.Equal(t, byte(2), data[offset], "auth enum tag")
		assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(data[offset+1:offset+5]))
	})

	t.Run("rejects jwt hash with wrong length", func(t *testing.T) {
		_, err := BorshCodec{}.EncodeAction(types.RegisterIdentity{
			Account: "a@w",
			Auth:    types.AuthMethod{Jwt: &types.JwtAuth{Hash: []byte{1, 2}}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "32 bytes")
	})

	t.Run("rejects empty auth method", func(t *testing.T) {
		_, err := BorshCodec{}.EncodeAction(types.RegisterIdentity{Account: "a@w"})
		assert.Error(t, err)
	})

	t.Run("rejects ambiguous auth method", func(t *testing.T) {
		_, err := BorshCodec{}.EncodeAction(types.RegisterIdentity{
			Account: "a@w",
			Auth: types.AuthMethod{
				Password: &types.PasswordAuth{Hash: "x"},
				Ethereum: &types.EthereumAuth{Address: "0x"},
			},
		})
		assert.Error(t, err)
	})
}

func TestEncodeAction_NilAction(t *testing.T) {
	_, err := BorshCodec{}.EncodeAction(nil)
	assert.Error(t, err)
}

func TestEncodeSecpBlob(t *testing.T) {
	t.Run("layout", func(t *testing.T) {
		blob := SecpBlob{Identity: "a@w"}
		blob.Data[0] = 0x11
		blob.PublicKey[0] = 0x02
		blob.Signature[63] = 0x44

		data, err := BorshCodec{}.EncodeSecpBlob(blob)
		require.NoError(t, err)

		require.Len(t, data, 4+3+32+33+64)
		assert.Equal(t, []byte{3, 0, 0, 0, 'a', '@', 'w'}, data[:7])
		assert.Equal(t, byte(0x11), data[7])
		assert.Equal(t, byte(0x02), data[7+32])
		assert.Equal(t, byte(0x44), data[len(data)-1])
	})

	t.Run("requires identity", func(t *testing.T) {
		_, err := BorshCodec{}.EncodeSecpBlob(SecpBlob{})
		assert.Error(t, err)
	})
}
