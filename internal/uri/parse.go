package uri

import (
	"math/big"
	"net/url"
	"sort"
	"strings"

	bridgeerr "github.com/mrz1836/sigil-bridge/pkg/errors"
)

// PaymentURI is a parsed cryptocurrency payment link.
type PaymentURI struct {
	Raw      string            `json:"raw"`
	Scheme   string            `json:"scheme"`
	Web      bool              `json:"web,omitempty"`
	Address  string            `json:"address"`
	Amount   string            `json:"amount,omitempty"`
	Units    *big.Int          `json:"units,omitempty"`
	Label    string            `json:"label,omitempty"`
	Message  string            `json:"message,omitempty"`
	ChainID  string            `json:"chainId,omitempty"`
	Function string            `json:"function,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
}

// bitcoinFamily schemes follow BIP21.
//
//nolint:gochecknoglobals // Static lookup table
var bitcoinFamily = map[string]bool{
	SchemeBitcoin:     true,
	SchemeBitcoinCash: true,
	SchemeBitcoinSV:   true,
	SchemeLitecoin:    true,
	SchemeDogecoin:    true,
	SchemeDash:        true,
}

// Parse parses raw using the recognized schemes. Address validity is not
// checked; call Validate for that.
func Parse(raw string, schemes *Schemes) (*PaymentURI, error) {
	if schemes == nil {
		schemes = DefaultSchemes()
	}

	full, ok := SchemeOf(raw)
	if !ok {
		return nil, bridgeerr.WithDetails(bridgeerr.ErrInvalidURI, map[string]string{"uri": raw})
	}

	base, ok := schemes.Match(raw)
	if !ok {
		err := bridgeerr.WithDetails(bridgeerr.ErrUnsupportedScheme, map[string]string{"scheme": full})
		if s := schemes.Suggest(full); s != "" {
			err = bridgeerr.WithSuggestion(err, "did you mean "+s+":?")
		}
		return nil, err
	}

	raw = strings.TrimSpace(raw)
	body := strings.TrimPrefix(raw[len(full)+1:], "//")
	path, rawQuery, _ := strings.Cut(body, "?")

	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, bridgeerr.WithDetails(bridgeerr.ErrInvalidURI, map[string]string{
			"uri":    raw,
			"reason": err.Error(),
		})
	}

	p := &PaymentURI{
		Raw:    raw,
		Scheme: base,
		Web:    strings.HasPrefix(full, WebPrefix),
		Params: make(map[string]string),
	}

	switch {
	case base == SchemeEthereum:
		err = p.parseEthereum(path, query)
	case bitcoinFamily[base]:
		err = p.parseBIP21(path, query)
	default:
		err = p.parseGeneric(path, query)
	}
	if err != nil {
		return nil, err
	}

	if len(p.Params) == 0 {
		p.Params = nil
	}
	return p, nil
}

// Validate checks the address for the URI's scheme.
func (p *PaymentURI) Validate() error {
	return ValidateAddress(p.Scheme, p.Address)
}

// ParamKeys returns the extra parameter names in sorted order.
func (p *PaymentURI) ParamKeys() []string {
	keys := make([]string, 0, len(p.Params))
	for k := range p.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *PaymentURI) parseBIP21(path string, query url.Values) error {
	addr, err := url.PathUnescape(path)
	if err != nil {
		return bridgeerr.WithDetails(bridgeerr.ErrInvalidURI, map[string]string{"address": path})
	}
	p.Address = addr

	for key, values := range query {
		v := values[0]
		switch key {
		case "amount":
			units, err := ParseDecimalAmount(v, bitcoinDecimals, bridgeerr.ErrInvalidAmount)
			if err != nil {
				return bridgeerr.WithDetails(err, map[string]string{"amount": v})
			}
			p.Units = units
			p.Amount = FormatDecimalAmount(units, bitcoinDecimals)
		case "label":
			p.Label = v
		case "message":
			p.Message = v
		default:
			// Unknown required parameters make the URI unusable.
			if strings.HasPrefix(key, "req-") {
				return bridgeerr.WithDetails(bridgeerr.ErrInvalidURI, map[string]string{
					"parameter": key,
				})
			}
			p.Params[key] = v
		}
	}
	return nil
}

// parseEthereum handles the EIP-681 form
// ethereum:[pay-]<address>[@<chain_id>][/<function>][?<params>].
func (p *PaymentURI) parseEthereum(path string, query url.Values) error {
	path = strings.TrimPrefix(path, "pay-")
	target, function, _ := strings.Cut(path, "/")
	addr, chainID, _ := strings.Cut(target, "@")

	p.Address = addr
	p.ChainID = chainID
	p.Function = function

	for key, values := range query {
		v := values[0]
		switch key {
		case "value":
			units, err := parseScientific(v, bridgeerr.ErrInvalidAmount)
			if err != nil {
				return bridgeerr.WithDetails(err, map[string]string{"value": v})
			}
			p.Units = units
			p.Amount = FormatDecimalAmount(units, etherDecimals)
		case "label":
			p.Label = v
		case "message":
			p.Message = v
		default:
			p.Params[key] = v
		}
	}
	return nil
}

func (p *PaymentURI) parseGeneric(path string, query url.Values) error {
	addr, err := url.PathUnescape(path)
	if err != nil {
		return bridgeerr.WithDetails(bridgeerr.ErrInvalidURI, map[string]string{"address": path})
	}
	p.Address = addr

	for key, values := range query {
		v := values[0]
		switch key {
		case "amount":
			p.Amount = v
		case "label":
			p.Label = v
		case "message":
			p.Message = v
		default:
			p.Params[key] = v
		}
	}
	return nil
}
