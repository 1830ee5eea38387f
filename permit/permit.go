// Package permit implements signature-based transfer authorization: an
// EIP-712-style typed-data digest over (owner, spender, value, nonce,
// deadline), domain-separated per token and chain, verified by secp256k1
// public-key recovery. A signature stands in for a direct approval call and
// is consumed exactly once because the owner's nonce is part of the digest.
package permit

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrExpired is returned when the ledger clock has passed the credential's deadline.
	ErrExpired = errors.New("permit expired")
	// ErrInvalidSignature is returned when the signature is malformed or does not recover to the owner.
	ErrInvalidSignature = errors.New("invalid permit signature")
)

// Typehashes fixed by the wire format; any verifier must reproduce these
// byte-exactly.
var (
	domainTypehash = crypto.Keccak256Hash(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	permitTypehash = crypto.Keccak256Hash(
		[]byte("Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)"))
	versionHash = crypto.Keccak256Hash([]byte("1"))
)

// PermitTypehash returns the structured hash identifier of the credential tuple.
func PermitTypehash() common.Hash { return permitTypehash }

// DomainSeparator binds signatures to one token on one chain: it hashes the
// token name, the fixed version string "1", the chain identifier, and the
// token's own address.
func DomainSeparator(name string, chainID *big.Int, token common.Address) common.Hash {
	return crypto.Keccak256Hash(
		domainTypehash.Bytes(),
		crypto.Keccak256([]byte(name)),
		versionHash.Bytes(),
		word(chainID),
		addressWord(token),
	)
}

// ApprovalDigest builds the signable digest for one credential tuple:
// keccak256(0x19 ‖ 0x01 ‖ domainSeparator ‖ keccak256(typehash ‖ owner ‖
// spender ‖ value ‖ nonce ‖ deadline)).
func ApprovalDigest(domainSeparator common.Hash, owner, spender common.Address, value *big.Int, nonce uint64, deadline uint64) common.Hash {
	structHash := crypto.Keccak256(
		permitTypehash.Bytes(),
		addressWord(owner),
		addressWord(spender),
		word(value),
		word(new(big.Int).SetUint64(nonce)),
		word(new(big.Int).SetUint64(deadline)),
	)
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domainSeparator.Bytes(), structHash)
}

// Sign produces a 65-byte [R ‖ S ‖ V] signature over the digest. Test and
// client-side helper; verification never needs the private key.
func Sign(digest common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	return crypto.Sign(digest.Bytes(), key)
}

// Recover returns the address that signed the digest. It fails with
// ErrInvalidSignature for malformed signatures and for the zero address,
// which secp256k1 recovery can yield for garbage inputs.
func Recover(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: signature must be %d bytes, got %d",
			ErrInvalidSignature, crypto.SignatureLength, len(sig))
	}
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	signer := crypto.PubkeyToAddress(*pub)
	if signer == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: recovered zero address", ErrInvalidSignature)
	}
	return signer, nil
}

// word left-pads a big integer to a 32-byte ABI word.
func word(v *big.Int) []byte {
	if v == nil {
		v = new(big.Int)
	}
	return common.LeftPadBytes(v.Bytes(), 32)
}

// addressWord left-pads an address to a 32-byte ABI word.
func addressWord(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}
