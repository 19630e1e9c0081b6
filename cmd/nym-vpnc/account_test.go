package main

import "testing"

func TestReadMnemonicFromArgsTrimsWhitespace(t *testing.T) {
	got, err := readMnemonic([]string{"  abandon abandon about  "})
	if err != nil {
		t.Fatalf("readMnemonic: %v", err)
	}
	if want := "abandon abandon about"; got != want {
		t.Errorf("readMnemonic args = %q, want %q", got, want)
	}
}
