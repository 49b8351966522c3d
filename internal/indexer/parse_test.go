package indexer

import (
	"reflect"
	"testing"
)

func TestParseNetworks(t *testing.T) {
	got, err := ParseNetworks([]string{"1", " 137 ", "", "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []uint64{1, 137}; !reflect.DeepEqual(got, want) {
		t.Fatalf("networks mismatch: %v != %v", got, want)
	}
	if _, err := ParseNetworks([]string{"mainnet"}); err == nil {
		t.Fatalf("expected error for non-numeric network")
	}
}

func TestParseAddress(t *testing.T) {
	if _, err := ParseAddress("0x1111111111111111111111111111111111111111"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseAddress("0x123"); err == nil {
		t.Fatalf("expected error for short address")
	}
}
