// Package wallet manages the solo miner's Bitcoin keypair: secp256k1 key
// generation, mainnet address and WIF derivation, and persistence to a
// restrictive-permission wallet file.
package wallet

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/mkrell/gosolo/pkg/errors"
	"github.com/mkrell/gosolo/pkg/log"
)

const (
	// FileName is the wallet file inside the wallet directory.
	FileName = "wallet.json"

	// mainnetVersion is the version byte for P2PKH mainnet addresses.
	mainnetVersion = 0x00

	// minDistinctBytes is the entropy sanity floor for a private scalar.
	// A healthy 32-byte random scalar has far more distinct byte values;
	// near-constant scalars indicate a broken entropy source.
	minDistinctBytes = 8

	// maxGenerateAttempts bounds regeneration when the sanity check trips.
	maxGenerateAttempts = 5
)

// Source values recorded on a wallet.
const (
	SourceGenerated = "generated"
	SourceLoaded    = "loaded"
)

// Wallet holds the miner's keypair and its derived encodings. The private
// scalar never leaves this package except in WIF form via Export.
type Wallet struct {
	Address    string    `json:"address"`
	PublicKey  string    `json:"publicKey"`
	WIF        string    `json:"wif"`
	PrivateKey string    `json:"privateKeyDer"`
	CreatedAt  time.Time `json:"createdAt"`
	Source     string    `json:"source"`
}

// Export is the outward-facing view of a wallet: everything except the raw
// private scalar.
type Export struct {
	Address   string    `json:"address"`
	WIF       string    `json:"wif"`
	PublicKey string    `json:"publicKey"`
	CreatedAt time.Time `json:"createdAt"`
}

// Manager owns the wallet file and all key derivation.
type Manager struct {
	dir    string
	path   string
	logger *log.Logger
}

// NewManager creates a wallet manager rooted at dir.
func NewManager(dir string, logger *log.Logger) *Manager {
	return &Manager{
		dir:    dir,
		path:   filepath.Join(dir, FileName),
		logger: logger.WithComponent("wallet"),
	}
}

// Path returns the wallet file location.
func (m *Manager) Path() string {
	return m.path
}

// Generate produces a fresh secp256k1 keypair and derives the compressed
// public key, the base58check mainnet address, and the WIF private key
// encoding. The raw scalar is checked for entropy before being accepted.
func (m *Manager) Generate() (*Wallet, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		priv, err := btcec.NewPrivateKey()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeWallet, "generate_key",
				"failed to generate secp256k1 keypair")
		}

		scalar := priv.Serialize()
		if !scalarHasEntropy(scalar) {
			m.logger.Warn("generated scalar failed entropy check, regenerating",
				"attempt", attempt+1)
			continue
		}

		pubKey := priv.PubKey().SerializeCompressed()
		address := base58.CheckEncode(btcutil.Hash160(pubKey), mainnetVersion)

		wif, err := btcutil.NewWIF(priv, &chaincfg.MainNetParams, true)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeWallet, "encode_wif",
				"failed to encode private key as WIF")
		}

		return &Wallet{
			Address:    address,
			PublicKey:  hex.EncodeToString(pubKey),
			WIF:        wif.String(),
			PrivateKey: hex.EncodeToString(scalar),
			CreatedAt:  time.Now().UTC(),
			Source:     SourceGenerated,
		}, nil
	}

	return nil, errors.New(errors.ErrorTypeWallet, "generate_key",
		"entropy check failed repeatedly").
		WithContext("attempts", maxGenerateAttempts)
}

// Load reads the wallet file. A missing or malformed file yields (nil, nil):
// load failures are treated as "no wallet", never as a fatal condition.
func (m *Manager) Load() (*Wallet, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.WithError(err).Warn("wallet file unreadable, treating as absent")
		}
		return nil, nil
	}

	var w Wallet
	if err := json.Unmarshal(data, &w); err != nil {
		m.logger.WithError(err).Warn("wallet file malformed, treating as absent")
		return nil, nil
	}

	if w.Address == "" || w.WIF == "" {
		m.logger.Warn("wallet file missing required fields, treating as absent")
		return nil, nil
	}

	w.Source = SourceLoaded
	return &w, nil
}

// Save writes the wallet file with owner-only permissions. Failures are
// recoverable: the caller may keep mining with the in-memory wallet.
func (m *Manager) Save(w *Wallet) error {
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return errors.Wrap(err, errors.ErrorTypeWallet, "save_wallet",
			"failed to create wallet directory").
			WithContext("dir", m.dir)
	}

	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeWallet, "save_wallet",
			"failed to encode wallet")
	}

	if err := os.WriteFile(m.path, data, 0o600); err != nil {
		return errors.Wrap(err, errors.ErrorTypeWallet, "save_wallet",
			"failed to write wallet file").
			WithContext("path", m.path)
	}

	return nil
}

// GetOrCreate loads the existing wallet or generates and saves a new one.
// Idempotent within a process: repeated calls return the same wallet. A save
// failure is logged but does not prevent mining with the in-memory wallet.
func (m *Manager) GetOrCreate() (*Wallet, error) {
	if w, _ := m.Load(); w != nil {
		m.logger.Info("wallet loaded", "address", w.Address)
		return w, nil
	}

	w, err := m.Generate()
	if err != nil {
		return nil, err
	}

	if err := m.Save(w); err != nil {
		m.logger.WithError(err).Warn("wallet save failed, continuing with in-memory wallet")
	} else {
		m.logger.Info("wallet generated", "address", w.Address, "path", m.path)
	}

	return w, nil
}

// ExportWallet returns the outward-facing view of a wallet.
func ExportWallet(w *Wallet) Export {
	return Export{
		Address:   w.Address,
		WIF:       w.WIF,
		PublicKey: w.PublicKey,
		CreatedAt: w.CreatedAt,
	}
}

// VerifyAddress checks that an address decodes under base58check with the
// mainnet version byte and a 20-byte payload.
func VerifyAddress(address string) error {
	payload, version, err := base58.CheckDecode(address)
	if err != nil {
		return fmt.Errorf("address checksum invalid: %w", err)
	}
	if version != mainnetVersion {
		return fmt.Errorf("unexpected address version byte %#x", version)
	}
	if len(payload) != 20 {
		return fmt.Errorf("address payload is %d bytes, want 20", len(payload))
	}
	return nil
}

// scalarHasEntropy rejects near-constant private scalars. btcec cannot
// produce a zero scalar, but the check guards against a degenerate entropy
// source all the same.
func scalarHasEntropy(scalar []byte) bool {
	if len(scalar) != 32 {
		return false
	}

	var distinct [256]bool
	count := 0
	allZero := true
	for _, b := range scalar {
		if b != 0 {
			allZero = false
		}
		if !distinct[b] {
			distinct[b] = true
			count++
		}
	}

	return !allZero && count >= minDistinctBytes
}
