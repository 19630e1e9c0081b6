package account

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"

	nymerrors "go.nymvpn.network/core/internal/errors"
)

const (
	accountHKDFInfo = "nymvpn-account-identity-v1"
	deviceHKDFInfo  = "nymvpn-device-identity-v1"
)

// KeyPair is an ed25519 identity plus its base58-encoded public key, the
// identity format named throughout spec §3 ("base58 of the account/device
// public key").
type KeyPair struct {
	Public    ed25519.PublicKey
	Private   ed25519.PrivateKey
	Identity  string
}

// deriveKeyPair derives a deterministic ed25519 keypair from the mnemonic
// entropy via HKDF-SHA256, domain-separated by info so the account and
// device keys never collide (SPEC_FULL §3).
func deriveKeyPair(entropy []byte, info string) (KeyPair, error) {
	reader := hkdf.New(sha256.New, entropy, nil, []byte(info))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(reader, seed); err != nil {
		return KeyPair{}, nymerrors.Wrap(err, nymerrors.KindInternal, "derive ed25519 seed")
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return KeyPair{
		Public:   pub,
		Private:  priv,
		Identity: base58.Encode(pub),
	}, nil
}

// DeriveAccountKeyPair derives the account identity keypair from mnemonic
// entropy.
func DeriveAccountKeyPair(entropy []byte) (KeyPair, error) {
	return deriveKeyPair(entropy, accountHKDFInfo)
}

// DeriveDeviceKeyPair derives the device identity keypair from mnemonic
// entropy.
func DeriveDeviceKeyPair(entropy []byte) (KeyPair, error) {
	return deriveKeyPair(entropy, deviceHKDFInfo)
}

// EncryptedMnemonic is the on-disk representation of the stored mnemonic
// (SPEC_FULL §3: "a NaCl secretbox around the mnemonic plaintext").
type EncryptedMnemonic struct {
	Nonce      [24]byte
	Ciphertext []byte
}

// SealMnemonic encrypts the mnemonic under key for on-disk storage.
func SealMnemonic(mnemonic string, key *[32]byte) (*EncryptedMnemonic, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, nymerrors.Wrap(err, nymerrors.KindInternal, "generate mnemonic seal nonce")
	}
	ciphertext := secretbox.Seal(nil, []byte(mnemonic), &nonce, key)
	return &EncryptedMnemonic{Nonce: nonce, Ciphertext: ciphertext}, nil
}

// OpenMnemonic decrypts a previously sealed mnemonic.
func OpenMnemonic(e *EncryptedMnemonic, key *[32]byte) (string, error) {
	plain, ok := secretbox.Open(nil, e.Ciphertext, &e.Nonce, key)
	if !ok {
		return "", nymerrors.Errorf(nymerrors.KindPermission, "mnemonic seal authentication failed")
	}
	return string(plain), nil
}
