package symbols

import (
	"errors"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		in       string
		contract string
		code     string
	}{
		{"BTCUSDT_PERP.A", "BTCUSDT_PERP", "A"},
		{"BTCUSD.6", "BTCUSD", "6"},
		{"BTC.USD.3", "BTC.USD", "3"},
		{".0", "", "0"},
	}
	for _, tt := range tests {
		contract, code, err := Split(tt.in)
		if err != nil {
			t.Fatalf("Split(%s): %v", tt.in, err)
		}
		if contract != tt.contract || code != tt.code {
			t.Errorf("Split(%s)=%s,%s want %s,%s", tt.in, contract, code, tt.contract, tt.code)
		}
	}
	if _, _, err := Split("BTCUSDT"); !errors.Is(err, ErrMalformedSymbol) {
		t.Fatalf("expected ErrMalformedSymbol, got %v", err)
	}
}

func TestRegistryResolve(t *testing.T) {
	reg, err := NewRegistry(DefaultExchanges())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	name, contract, err := reg.Resolve("BTCUSDT_PERP.A")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if name != "Binance" || contract != "BTCUSDT_PERP" {
		t.Errorf("unexpected resolve result %s %s", name, contract)
	}
	if _, _, err := reg.Resolve("BTCUSDT.Z"); !errors.Is(err, ErrUnknownExchange) {
		t.Fatalf("expected ErrUnknownExchange, got %v", err)
	}
}

func TestRegistrySymbols(t *testing.T) {
	reg, err := NewRegistry([]Exchange{
		{Name: "Bybit", Code: "6", Contracts: []string{"BTCUSD.", "BTCUSDT."}},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	got := reg.Symbols()
	want := []string{"BTCUSD.6", "BTCUSDT.6"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Symbols()=%v want %v", got, want)
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry([]Exchange{
		{Name: "Binance", Code: "A", Contracts: []string{"BTCUSDT"}},
		{Name: "Other", Code: "A", Contracts: []string{"BTCUSDT"}},
	})
	if err == nil {
		t.Fatal("expected error for duplicate code")
	}
	if _, err := NewRegistry(nil); err == nil {
		t.Fatal("expected error for empty table")
	}
}
