// Package transaction builds the order-sensitive blob payloads submitted
// to the identity contract and its companion verifiers. Encoding follows
// Borsh conventions: little-endian integers, u32 length-prefixed strings,
// u8 enum tags, fixed byte arrays written raw.
package transaction

import (
	"encoding/binary"
	"fmt"

	"github.com/quill-wallet/quill-wallet/pkg/types"
)

// Identity action enum tags. Stable wire contract; never reorder.
const (
	tagRegisterIdentity = 0
	tagVerifyIdentity   = 1
	tagAddSessionKey    = 2
	tagRemoveSessionKey = 3
	tagUseSessionKey    = 4
)

// Auth method enum tags.
const (
	tagAuthPassword = 0
	tagAuthJwt      = 1
	tagAuthEthereum = 2
)

// SecpBlob is the payload of a secp256k1 verification blob: the identity
// it vouches for, the signed 32-byte digest, and the signature material.
type SecpBlob struct {
	Identity  string
	Data      [32]byte
	PublicKey [33]byte
	Signature [64]byte
}

// Codec serializes identity actions and verification payloads. The
// default is BorshCodec; alternative codecs can be injected for chains
// with a different blob encoding.
type Codec interface {
	EncodeAction(action types.IdentityAction) ([]byte, error)
	EncodeSecpBlob(blob SecpBlob) ([]byte, error)
}

// BorshCodec is the default Codec.
type BorshCodec struct{}

var _ Codec = BorshCodec{}

type encoder struct {
	buf []byte
}

func (e *encoder) u8(v byte) {
	e.buf = append(e.buf, v)
}

func (e *encoder) u32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *encoder) u64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

// u128 writes a 16-byte little-endian integer. Values never exceed 64
// bits here (millisecond timestamps), so the high half is zero.
func (e *encoder) u128(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
	e.buf = append(e.buf, make([]byte, 8)...)
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) raw(b []byte) {
	e.buf = append(e.buf, b...)
}

func (e *encoder) option(present bool, write func()) {
	if !present {
		e.u8(0)
		return
	}
	e.u8(1)
	write()
}

func (e *encoder) strSlice(values []string) {
	e.u32(uint32(len(values)))
	for _, v := range values {
		e.str(v)
	}
}

// EncodeAction serializes one identity action with its leading enum tag.
func (BorshCodec) EncodeAction(action types.IdentityAction) ([]byte, error) {
	e := &encoder{}
	switch a := action.(type) {
	case types.RegisterIdentity:
		e.u8(tagRegisterIdentity)
		e.str(a.Account)
		e.u128(a.Nonce)
		e.str(a.Salt)
		if err := encodeAuthMethod(e, a.Auth); err != nil {
			return nil, err
		}
		e.str(a.InviteCode)
	case types.VerifyIdentity:
		e.u8(tagVerifyIdentity)
		e.str(a.Account)
		e.u128(a.Nonce)
	case types.AddSessionKey:
		e.u8(tagAddSessionKey)
		e.str(a.Account)
		e.str(a.Key)
		e.u64(uint64(a.Expiration))
		e.option(len(a.Whitelist) > 0, func() { e.strSlice(a.Whitelist) })
		e.option(a.LaneID != "", func() { e.str(a.LaneID) })
		e.u128(a.Nonce)
	case types.RemoveSessionKey:
		e.u8(tagRemoveSessionKey)
		e.str(a.Account)
		e.str(a.Key)
		e.u128(a.Nonce)
	case types.UseSessionKey:
		e.u8(tagUseSessionKey)
		e.str(a.Account)
		e.u128(a.Nonce)
	default:
		return nil, fmt.Errorf("unknown identity action %T", action)
	}
	return e.buf, nil
}

// EncodeSecpBlob serializes the secp256k1 verification payload.
func (BorshCodec) EncodeSecpBlob(blob SecpBlob) ([]byte, error) {
	if blob.Identity == "" {
		return nil, fmt.Errorf("secp blob requires an identity")
	}
	e := &encoder{}
	e.str(blob.Identity)
	e.raw(blob.Data[:])
	e.raw(blob.PublicKey[:])
	e.raw(blob.Signature[:])
	return e.buf, nil
}

func encodeAuthMethod(e *encoder, auth types.AuthMethod) error {
	set := 0
	if auth.Password != nil {
		set++
	}
	if auth.Jwt != nil {
		set++
	}
	if auth.Ethereum != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("auth method must have exactly one variant, got %d", set)
	}

	switch {
	case auth.Password != nil:
		e.u8(tagAuthPassword)
		e.str(auth.Password.Hash)
	case auth.Jwt != nil:
		if len(auth.Jwt.Hash) != 32 {
			return fmt.Errorf("jwt auth hash must be 32 bytes, got %d", len(auth.Jwt.Hash))
		}
		e.u8(tagAuthJwt)
		e.raw(auth.Jwt.Hash)
	case auth.Ethereum != nil:
		e.u8(tagAuthEthereum)
		e.str(auth.Ethereum.Address)
	}
	return nil
}
