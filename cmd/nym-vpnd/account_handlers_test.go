package main

import (
	"path/filepath"
	"testing"

	"go.nymvpn.network/core/internal/account"
	credstore "go.nymvpn.network/core/internal/credential/store"
	"go.nymvpn.network/core/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: "error"})
}

func TestLoadOrGenerateSealKeyPersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	logger := testLogger()

	key1, err := loadOrGenerateSealKey(dir, logger)
	if err != nil {
		t.Fatalf("loadOrGenerateSealKey: %v", err)
	}
	key2, err := loadOrGenerateSealKey(dir, logger)
	if err != nil {
		t.Fatalf("loadOrGenerateSealKey (reload): %v", err)
	}
	if *key1 != *key2 {
		t.Error("seal key changed across reloads, want the same key persisted on disk")
	}
}

func TestWriteAndReadSealedMnemonicRoundTrips(t *testing.T) {
	dir := t.TempDir()
	logger := testLogger()
	key, err := loadOrGenerateSealKey(dir, logger)
	if err != nil {
		t.Fatalf("loadOrGenerateSealKey: %v", err)
	}

	sealed, err := account.SealMnemonic("abandon abandon about", key)
	if err != nil {
		t.Fatalf("SealMnemonic: %v", err)
	}

	path := filepath.Join(dir, mnemonicFilename)
	if err := writeSealedMnemonic(path, sealed); err != nil {
		t.Fatalf("writeSealedMnemonic: %v", err)
	}

	loaded, err := readSealedMnemonic(path)
	if err != nil {
		t.Fatalf("readSealedMnemonic: %v", err)
	}
	if loaded == nil {
		t.Fatal("readSealedMnemonic returned nil for an existing file")
	}

	mnemonic, err := account.OpenMnemonic(loaded, key)
	if err != nil {
		t.Fatalf("OpenMnemonic: %v", err)
	}
	if mnemonic != "abandon abandon about" {
		t.Errorf("OpenMnemonic = %q, want %q", mnemonic, "abandon abandon about")
	}
}

func TestReadSealedMnemonicMissingFileReturnsNil(t *testing.T) {
	dir := t.TempDir()
	loaded, err := readSealedMnemonic(filepath.Join(dir, "does-not-exist"))
	if err != nil {
		t.Fatalf("readSealedMnemonic: %v", err)
	}
	if loaded != nil {
		t.Errorf("readSealedMnemonic missing file = %+v, want nil", loaded)
	}
}

func TestAccountHandlersWithoutIdentityReturnError(t *testing.T) {
	h := &accountHandlers{}
	if _, err := h.identityOrErr(); err == nil {
		t.Error("identityOrErr with no stored identity should error")
	}
}

func TestBelowSoftThresholdTrueWhenTicketCountsMissing(t *testing.T) {
	store, err := credstore.Open(filepath.Join(t.TempDir(), "credentials.db"))
	if err != nil {
		t.Fatalf("credstore.Open: %v", err)
	}
	defer store.Close()

	h := &accountHandlers{credStore: store, zkNymSoftThreshold: 10}
	if !h.belowSoftThreshold() {
		t.Error("belowSoftThreshold should be true with an empty ticket store")
	}
}
