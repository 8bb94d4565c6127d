// Package blssig provides BLS12-381 signing and aggregation for HotStuff
// votes and quorum certificates.
//
// A replica signs its Vote with its BLS private key; the leader aggregates
// 2f+1 matching vote signatures into a single aggregate signature that is
// stored on the QuorumCertificate. Aggregate verification checks the
// aggregate signature against the aggregate of the voting committee's
// public keys, so a QC's validity can be checked without replaying every
// individual vote.
package blssig

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

var (
	initOnce sync.Once
	g1Gen    bls12381.G1Affine
	g2Gen    bls12381.G2Affine
)

// Domain separation tags, one per HotStuff message kind that carries a
// signature, so a signature produced for one purpose can never be replayed
// as another.
const (
	DomainVote    = "DAN_HOTSTUFF_VOTE_V1"
	DomainNewView = "DAN_HOTSTUFF_NEWVIEW_V1"
	DomainQC      = "DAN_HOTSTUFF_QC_V1"
)

const (
	PrivateKeySize = 32
	PublicKeySize  = 96
	SignatureSize  = 48
)

func initialize() {
	initOnce.Do(func() {
		_, _, g1, g2 := bls12381.Generators()
		g1Gen, g2Gen = g1, g2
	})
}

// PrivateKey is a BLS12-381 scalar in Fr.
type PrivateKey struct{ scalar fr.Element }

// PublicKey is a point on G2.
type PublicKey struct{ point bls12381.G2Affine }

// Signature is a point on G1.
type Signature struct{ point bls12381.G1Affine }

// GenerateKeyPair produces a fresh random key pair.
func GenerateKeyPair() (*PrivateKey, *PublicKey, error) {
	initialize()
	var sk fr.Element
	if _, err := sk.SetRandom(); err != nil {
		return nil, nil, fmt.Errorf("generate random scalar: %w", err)
	}
	priv := &PrivateKey{scalar: sk}
	return priv, priv.PublicKey(), nil
}

// KeyPairFromSeed derives a deterministic key pair, used by tests and by
// local-network bootstrap where committee keys must be reproducible.
func KeyPairFromSeed(seed []byte) (*PrivateKey, *PublicKey, error) {
	initialize()
	if len(seed) == 0 {
		return nil, nil, errors.New("seed must not be empty")
	}
	hash := sha256.Sum256(seed)
	var sk fr.Element
	sk.SetBytes(hash[:])
	priv := &PrivateKey{scalar: sk}
	return priv, priv.PublicKey(), nil
}

func PrivateKeyFromBytes(data []byte) (*PrivateKey, error) {
	initialize()
	if len(data) != PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size: got %d, want %d", len(data), PrivateKeySize)
	}
	var sk fr.Element
	sk.SetBytes(data)
	return &PrivateKey{scalar: sk}, nil
}

func PublicKeyFromBytes(data []byte) (*PublicKey, error) {
	initialize()
	var pk bls12381.G2Affine
	if _, err := pk.SetBytes(data); err != nil {
		return nil, fmt.Errorf("deserialize public key: %w", err)
	}
	return &PublicKey{point: pk}, nil
}

func SignatureFromBytes(data []byte) (*Signature, error) {
	initialize()
	var sig bls12381.G1Affine
	if _, err := sig.SetBytes(data); err != nil {
		return nil, fmt.Errorf("deserialize signature: %w", err)
	}
	return &Signature{point: sig}, nil
}

func (sk *PrivateKey) Bytes() []byte { b := sk.scalar.Bytes(); return b[:] }
func (sk *PrivateKey) Hex() string   { return hex.EncodeToString(sk.Bytes()) }

// PublicKey derives pk = sk * G2.
func (sk *PrivateKey) PublicKey() *PublicKey {
	initialize()
	var pk bls12381.G2Affine
	var skBig big.Int
	sk.scalar.BigInt(&skBig)
	pk.ScalarMultiplication(&g2Gen, &skBig)
	return &PublicKey{point: pk}
}

// SignWithDomain signs H(domain || message) and returns sig = sk * H(msg).
func (sk *PrivateKey) SignWithDomain(domain string, message []byte) *Signature {
	initialize()
	h := hashToG1(domainMessage(domain, message))
	var sig bls12381.G1Affine
	var skBig big.Int
	sk.scalar.BigInt(&skBig)
	sig.ScalarMultiplication(&h, &skBig)
	return &Signature{point: sig}
}

func (pk *PublicKey) Bytes() []byte { b := pk.point.Bytes(); return b[:] }
func (pk *PublicKey) Hex() string   { return hex.EncodeToString(pk.Bytes()) }

func (pk *PublicKey) Equal(other *PublicKey) bool {
	if pk == nil || other == nil {
		return pk == other
	}
	return pk.point.Equal(&other.point)
}

// VerifyWithDomain checks e(sig, G2) == e(H(domain||msg), pk).
func (pk *PublicKey) VerifyWithDomain(sig *Signature, domain string, message []byte) bool {
	initialize()
	h := hashToG1(domainMessage(domain, message))
	var negPk bls12381.G2Affine
	negPk.Neg(&pk.point)
	ok, err := bls12381.PairingCheck(
		[]bls12381.G1Affine{sig.point, h},
		[]bls12381.G2Affine{g2Gen, negPk},
	)
	return err == nil && ok
}

func (sig *Signature) Bytes() []byte { b := sig.point.Bytes(); return b[:] }
func (sig *Signature) Hex() string   { return hex.EncodeToString(sig.Bytes()) }

// AggregateSignatures sums signatures on G1. Used by the leader once it has
// collected 2f+1 votes for the same block/decision.
func AggregateSignatures(sigs []*Signature) (*Signature, error) {
	initialize()
	if len(sigs) == 0 {
		return nil, errors.New("no signatures to aggregate")
	}
	var agg bls12381.G1Jac
	agg.FromAffine(&sigs[0].point)
	for _, s := range sigs[1:] {
		var jac bls12381.G1Jac
		jac.FromAffine(&s.point)
		agg.AddAssign(&jac)
	}
	var result bls12381.G1Affine
	result.FromJacobian(&agg)
	return &Signature{point: result}, nil
}

// AggregatePublicKeys sums public keys on G2.
func AggregatePublicKeys(pks []*PublicKey) (*PublicKey, error) {
	initialize()
	if len(pks) == 0 {
		return nil, errors.New("no public keys to aggregate")
	}
	var agg bls12381.G2Jac
	agg.FromAffine(&pks[0].point)
	for _, p := range pks[1:] {
		var jac bls12381.G2Jac
		jac.FromAffine(&p.point)
		agg.AddAssign(&jac)
	}
	var result bls12381.G2Affine
	result.FromJacobian(&agg)
	return &PublicKey{point: result}, nil
}

// VerifyQuorum verifies a QC's aggregate signature: all signers in pks
// must have signed the same (domain, message) pair.
func VerifyQuorum(aggSig *Signature, pks []*PublicKey, domain string, message []byte) bool {
	if len(pks) == 0 || aggSig == nil {
		return false
	}
	aggPk, err := AggregatePublicKeys(pks)
	if err != nil {
		return false
	}
	return aggPk.VerifyWithDomain(aggSig, domain, message)
}

func hashToG1(message []byte) bls12381.G1Affine {
	h := sha256.New()
	h.Write([]byte("DAN_BLS_SIG_BLS12381G1_XMD:SHA-256_SSWU_RO_"))
	h.Write(message)
	var counter uint64
	for {
		h2 := sha256.New()
		h2.Write(h.Sum(nil))
		_ = binary.Write(h2, binary.BigEndian, counter)
		hash := h2.Sum(nil)

		var point bls12381.G1Affine
		if _, err := point.SetBytes(hash); err == nil && !point.IsInfinity() {
			return point
		}

		var scalar fr.Element
		scalar.SetBytes(hash)
		var scalarBig big.Int
		scalar.BigInt(&scalarBig)
		var result bls12381.G1Affine
		result.ScalarMultiplication(&g1Gen, &scalarBig)
		if !result.IsInfinity() {
			return result
		}
		counter++
		if counter > 1000 {
			return g1Gen
		}
	}
}

func domainMessage(domain string, message []byte) []byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write(message)
	return h.Sum(nil)
}

// RandomBytes returns n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}
