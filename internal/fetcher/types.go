package fetcher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// FeeToken is an entry of the fee dataset. Amounts are raw lamports.
// Fields of the wrong JSON type decode as their zero value.
type FeeToken struct {
	TokenMint    string          `json:"tokenMint"`
	Mint         string          `json:"mint"`
	Name         string          `json:"name"`
	Symbol       string          `json:"symbol"`
	LifetimeFees decimal.Decimal `json:"lifetimeFees"`
	Creators     []FeeCreator    `json:"creators"`
}

type feeTokenWire struct {
	TokenMint    FlexString      `json:"tokenMint"`
	Mint         FlexString      `json:"mint"`
	Name         FlexString      `json:"name"`
	Symbol       FlexString      `json:"symbol"`
	LifetimeFees FlexDecimal     `json:"lifetimeFees"`
	Creators     json.RawMessage `json:"creators"`
}

func (t *FeeToken) UnmarshalJSON(data []byte) error {
	var w feeTokenWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*t = FeeToken{
		TokenMint:    string(w.TokenMint),
		Mint:         string(w.Mint),
		Name:         string(w.Name),
		Symbol:       string(w.Symbol),
		LifetimeFees: decimal.Decimal(w.LifetimeFees),
		Creators:     decodeArray[FeeCreator](w.Creators),
	}
	return nil
}

// Identifier returns the token mint, whichever key carried it.
func (t FeeToken) Identifier() string {
	if t.TokenMint != "" {
		return t.TokenMint
	}
	return t.Mint
}

// FeeCreator is a fee recipient inside a FeeToken.
type FeeCreator struct {
	Wallet           string          `json:"wallet"`
	Username         string          `json:"username"`
	ProviderUsername string          `json:"providerUsername"`
	RoyaltyBps       int             `json:"royaltyBps"`
	IsCreator        bool            `json:"isCreator"`
	TotalClaimed     decimal.Decimal `json:"totalClaimed"`
}

type feeCreatorWire struct {
	Wallet           FlexString  `json:"wallet"`
	Username         FlexString  `json:"username"`
	ProviderUsername FlexString  `json:"providerUsername"`
	RoyaltyBps       FlexInt     `json:"royaltyBps"`
	IsCreator        FlexBool    `json:"isCreator"`
	TotalClaimed     FlexDecimal `json:"totalClaimed"`
}

func (c *FeeCreator) UnmarshalJSON(data []byte) error {
	var w feeCreatorWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = FeeCreator{
		Wallet:           string(w.Wallet),
		Username:         string(w.Username),
		ProviderUsername: string(w.ProviderUsername),
		RoyaltyBps:       int(w.RoyaltyBps),
		IsCreator:        bool(w.IsCreator),
		TotalClaimed:     decimal.Decimal(w.TotalClaimed),
	}
	return nil
}

// StatsToken is an entry of the trading stats dataset.
type StatsToken struct {
	TokenAddress string    `json:"tokenAddress"`
	Mint         string    `json:"mint"`
	Name         string    `json:"name"`
	Symbol       string    `json:"symbol"`
	PriceUSD     FlexFloat `json:"priceUsd"`
	MarketCap    FlexFloat `json:"marketCap"`
	Volume24h    FlexFloat `json:"volume24h"`
	Liquidity    FlexFloat `json:"liquidity"`
}

type statsTokenWire struct {
	TokenAddress FlexString `json:"tokenAddress"`
	Mint         FlexString `json:"mint"`
	Name         FlexString `json:"name"`
	Symbol       FlexString `json:"symbol"`
	PriceUSD     FlexFloat  `json:"priceUsd"`
	MarketCap    FlexFloat  `json:"marketCap"`
	Volume24h    FlexFloat  `json:"volume24h"`
	Liquidity    FlexFloat  `json:"liquidity"`
}

func (t *StatsToken) UnmarshalJSON(data []byte) error {
	var w statsTokenWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*t = StatsToken{
		TokenAddress: string(w.TokenAddress),
		Mint:         string(w.Mint),
		Name:         string(w.Name),
		Symbol:       string(w.Symbol),
		PriceUSD:     w.PriceUSD,
		MarketCap:    w.MarketCap,
		Volume24h:    w.Volume24h,
		Liquidity:    w.Liquidity,
	}
	return nil
}

// Identifier returns the token mint, whichever key carried it.
func (t StatsToken) Identifier() string {
	if t.TokenAddress != "" {
		return t.TokenAddress
	}
	return t.Mint
}

// scalarText returns the text of a JSON number or string, and false for
// null, booleans, objects and arrays.
func scalarText(data []byte) (string, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", false
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", false
		}
		return strings.TrimSpace(s), true
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return string(data), true
	default:
		return "", false
	}
}

// FlexFloat decodes a JSON number or numeric string into a float64.
// Anything else decodes as zero.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	*f = 0
	s, ok := scalarText(data)
	if !ok {
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		*f = FlexFloat(v)
	}
	return nil
}

// FlexDecimal decodes a JSON number or numeric string exactly.
// Anything else decodes as zero.
type FlexDecimal decimal.Decimal

func (d *FlexDecimal) UnmarshalJSON(data []byte) error {
	*d = FlexDecimal(decimal.Zero)
	s, ok := scalarText(data)
	if !ok {
		return nil
	}
	if v, err := decimal.NewFromString(s); err == nil {
		*d = FlexDecimal(v)
	}
	return nil
}

// FlexInt decodes a JSON number or numeric string, truncating any fraction.
// Anything else decodes as zero.
type FlexInt int

func (i *FlexInt) UnmarshalJSON(data []byte) error {
	*i = 0
	s, ok := scalarText(data)
	if !ok {
		return nil
	}
	if v, err := decimal.NewFromString(s); err == nil {
		*i = FlexInt(v.IntPart())
	}
	return nil
}

// FlexBool decodes true/false, "true"/"false" and numbers (nonzero is true).
// Anything else decodes as false.
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	*b = false
	switch string(bytes.TrimSpace(data)) {
	case "true":
		*b = true
		return nil
	case "false", "null":
		return nil
	}
	s, ok := scalarText(data)
	if !ok {
		return nil
	}
	if v, err := strconv.ParseBool(s); err == nil {
		*b = FlexBool(v)
		return nil
	}
	if v, err := decimal.NewFromString(s); err == nil {
		*b = FlexBool(!v.IsZero())
	}
	return nil
}

// FlexString decodes a JSON string, or the literal text of a number.
// Anything else decodes as empty.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	*s = ""
	if text, ok := scalarText(data); ok {
		*s = FlexString(text)
	}
	return nil
}

// wrapperKeys are the object keys under which an upstream may nest its list.
var wrapperKeys = []string{"response", "data", "tokens"}

// decodeList decodes either a bare JSON array or an object wrapping the
// array under one of wrapperKeys. Entries that are not objects are
// skipped and counted.
func decodeList[T any](body []byte) ([]T, int, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, 0, fmt.Errorf("empty response body")
	}

	var raw json.RawMessage
	switch trimmed[0] {
	case '[':
		raw = trimmed
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, 0, err
		}
		if v, ok := obj["success"]; ok && string(v) == "false" {
			return nil, 0, fmt.Errorf("upstream reported failure")
		}
		for _, key := range wrapperKeys {
			v, ok := obj[key]
			if !ok || string(v) == "null" {
				continue
			}
			raw = v
			break
		}
		if raw == nil {
			return nil, 0, fmt.Errorf("no token list in response object")
		}
	default:
		return nil, 0, fmt.Errorf("unexpected JSON value starting with %q", trimmed[0])
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, 0, fmt.Errorf("token list is not an array: %w", err)
	}
	items, skipped := decodeEach[T](entries)
	return items, skipped, nil
}

// decodeArray decodes the entries of a JSON array. Null or any other
// non-array value yields nothing.
func decodeArray[T any](raw json.RawMessage) []T {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	items, _ := decodeEach[T](entries)
	return items
}

// decodeEach decodes every object entry and reports how many were skipped.
func decodeEach[T any](entries []json.RawMessage) ([]T, int) {
	var out []T
	skipped := 0
	for _, e := range entries {
		var v T
		if !isObject(e) || json.Unmarshal(e, &v) != nil {
			skipped++
			continue
		}
		out = append(out, v)
	}
	return out, skipped
}

func isObject(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
