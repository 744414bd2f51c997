package symbols

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownExchange is returned when a symbol carries an exchange code that
	// is not in the registry. It means the configured exchange table is out of
	// sync with the upstream source and must not be ignored.
	ErrUnknownExchange = errors.New("unknown exchange code")
	// ErrMalformedSymbol is returned for symbols without a "<contract>.<code>" shape.
	ErrMalformedSymbol = errors.New("malformed symbol")
)

// Exchange describes one upstream exchange: its display name, its Coinalyze
// code and the contract variants requested for it.
type Exchange struct {
	Name      string
	Code      string
	Contracts []string
}

// DefaultExchanges is the BTC exchange table the job ships with.
func DefaultExchanges() []Exchange {
	return []Exchange{
		{Name: "Binance", Code: "A", Contracts: []string{"BTCUSD_PERP", "BTCUSDT_PERP", "BTCUSD", "BTCUSDT"}},
		{Name: "Bybit", Code: "6", Contracts: []string{"BTCUSD", "BTCUSDT"}},
		{Name: "OKX", Code: "3", Contracts: []string{"BTCUSD_PERP", "BTCUSDT_PERP", "BTCUSD", "BTCUSDT"}},
		{Name: "BitMEX", Code: "0", Contracts: []string{"BTCUSD_PERP", "BTCUSDT_PERP", "BTCUSD", "BTCUSDT"}},
	}
}

// Registry is an immutable lookup over the configured exchanges.
type Registry struct {
	exchanges []Exchange
	byCode    map[string]string
}

// NewRegistry validates the exchange table and builds a registry from a copy of it.
func NewRegistry(exchanges []Exchange) (*Registry, error) {
	if len(exchanges) == 0 {
		return nil, fmt.Errorf("no exchanges configured")
	}
	r := &Registry{
		exchanges: make([]Exchange, 0, len(exchanges)),
		byCode:    make(map[string]string, len(exchanges)),
	}
	names := make(map[string]struct{}, len(exchanges))
	for _, ex := range exchanges {
		name := strings.TrimSpace(ex.Name)
		code := strings.TrimSpace(ex.Code)
		if name == "" || code == "" {
			return nil, fmt.Errorf("exchange entry requires name and code (got %q/%q)", ex.Name, ex.Code)
		}
		if strings.Contains(code, ".") {
			return nil, fmt.Errorf("exchange %s: code %q must not contain '.'", name, code)
		}
		if _, dup := names[name]; dup {
			return nil, fmt.Errorf("duplicate exchange name %q", name)
		}
		if other, dup := r.byCode[code]; dup {
			return nil, fmt.Errorf("exchange code %q used by both %s and %s", code, other, name)
		}
		if len(ex.Contracts) == 0 {
			return nil, fmt.Errorf("exchange %s has no contracts", name)
		}
		contracts := make([]string, 0, len(ex.Contracts))
		for _, c := range ex.Contracts {
			// Accept the "BTCUSDT." prefix form used in some configs.
			c = strings.TrimSuffix(strings.TrimSpace(c), ".")
			if c == "" {
				return nil, fmt.Errorf("exchange %s has an empty contract", name)
			}
			contracts = append(contracts, c)
		}
		names[name] = struct{}{}
		r.byCode[code] = name
		r.exchanges = append(r.exchanges, Exchange{Name: name, Code: code, Contracts: contracts})
	}
	return r, nil
}

// Names returns the exchange names in configuration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.exchanges))
	for i, ex := range r.exchanges {
		out[i] = ex.Name
	}
	return out
}

// Symbols returns every "<contract>.<code>" pair to request upstream.
func (r *Registry) Symbols() []string {
	var out []string
	for _, ex := range r.exchanges {
		for _, c := range ex.Contracts {
			out = append(out, c+"."+ex.Code)
		}
	}
	return out
}

// Resolve splits symbol on its last '.' and maps the code to an exchange name.
func (r *Registry) Resolve(symbol string) (exchange, contract string, err error) {
	contract, code, err := Split(symbol)
	if err != nil {
		return "", "", err
	}
	name, ok := r.byCode[code]
	if !ok {
		return "", "", fmt.Errorf("%w: %q in symbol %q", ErrUnknownExchange, code, symbol)
	}
	return name, contract, nil
}

// Split separates "<contract>.<code>" on the last '.'.
func Split(symbol string) (contract, code string, err error) {
	i := strings.LastIndex(symbol, ".")
	if i < 0 {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedSymbol, symbol)
	}
	return symbol[:i], symbol[i+1:], nil
}
