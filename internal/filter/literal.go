/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package filter

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

// parseInteger converts integer literal text to a value of type t. Bits
// bounds the magnitude of integer values.
func parseInteger(text string, t Type, bits int) (Value, error) {
	switch t {
	case TypeUint:
		v, err := strconv.ParseUint(text, 0, bits)
		if err != nil {
			if strings.HasPrefix(text, "-") {
				return nil, fmt.Errorf("%s is negative, expected %s", text, t.indefinite())
			}
			return nil, rangeError(text, t, bits, err)
		}
		return Uint(v), nil
	case TypeInt:
		v, err := strconv.ParseInt(text, 0, bits)
		if err != nil {
			return nil, rangeError(text, t, bits, err)
		}
		return Int(v), nil
	case TypeBool:
		switch text {
		case "0":
			return Bool(false), nil
		case "1":
			return Bool(true), nil
		}
		return nil, fmt.Errorf("%s is not a valid boolean, expected true, false, 1 or 0", text)
	case TypeBytes, TypeProtocol:
		return integerBytes(text)
	case TypeDuration:
		v, err := strconv.ParseInt(text, 0, 64)
		if err != nil || v > math.MaxInt64/int64(time.Second) || v < math.MinInt64/int64(time.Second) {
			return nil, fmt.Errorf("%s is not a valid %s", text, t)
		}
		return Duration(time.Duration(v) * time.Second), nil
	}
	return nil, fmt.Errorf("integer %s cannot be compared with %s", text, t.indefinite())
}

func rangeError(text string, t Type, bits int, err error) error {
	if errors.Is(err, strconv.ErrRange) {
		return fmt.Errorf("%s is out of range for a %d-bit %s", text, bits, t)
	}
	return fmt.Errorf("%s is not a valid %s", text, t)
}

// integerBytes converts hexadecimal integer text to its bytes and a
// decimal byte value to a single byte.
func integerBytes(text string) (Value, error) {
	if len(text) > 2 && (text[:2] == "0x" || text[:2] == "0X") {
		digits := text[2:]
		if len(digits)%2 == 1 {
			digits = "0" + digits
		}
		b, err := hex.DecodeString(digits)
		if err != nil {
			return nil, fmt.Errorf("%s is not a valid %s", text, TypeBytes)
		}
		return Bytes(b), nil
	}
	v, err := strconv.ParseUint(text, 0, 8)
	if err != nil {
		return nil, fmt.Errorf("%s does not fit in a byte", text)
	}
	return Bytes{byte(v)}, nil
}

func parseString(s string, t Type) (Value, error) {
	switch t {
	case TypeString:
		return String(s), nil
	case TypeBytes, TypeProtocol:
		return Bytes(s), nil
	case TypeEther:
		return parseEther(s)
	case TypeIPv4, TypeIPv6:
		return parseAddr(s, t)
	}
	return nil, fmt.Errorf("string %s cannot be compared with %s", quote(s), t.indefinite())
}

func parseChar(r rune, t Type, bits int) (Value, error) {
	switch t {
	case TypeUint, TypeInt:
		return parseInteger(strconv.Itoa(int(r)), t, bits)
	case TypeString:
		return String(string(r)), nil
	case TypeBytes, TypeProtocol:
		if r > 0xff {
			return nil, fmt.Errorf("character %q does not fit in a byte", r)
		}
		return Bytes{byte(r)}, nil
	}
	return nil, fmt.Errorf("character %q cannot be compared with %s", r, t.indefinite())
}

// parseUnparsed converts a bareword to a value of type t. The second
// result is a deprecation notice for accepted but outdated forms.
func parseUnparsed(text string, t Type, bits int) (Value, string, error) {
	switch t {
	case TypeUint, TypeInt:
		v, err := parseInteger(text, t, bits)
		return v, "", err
	case TypeBool:
		switch strings.ToLower(text) {
		case "true", "1":
			return Bool(true), "", nil
		case "false", "0":
			return Bool(false), "", nil
		}
		return nil, "", fmt.Errorf("%q is not a valid boolean, expected true, false, 1 or 0", text)
	case TypeString:
		return String(text), fmt.Sprintf("unquoted string %q, use %s", text, quote(text)), nil
	case TypeBytes, TypeProtocol:
		v, err := parseByteString(text)
		return v, "", err
	case TypeEther:
		v, err := parseEther(text)
		return v, "", err
	case TypeIPv4, TypeIPv6:
		v, err := parseAddr(text, t)
		return v, "", err
	case TypeDuration:
		v, err := parseDuration(text)
		return v, "", err
	}
	return nil, "", fmt.Errorf("%q cannot be compared with %s", text, t.indefinite())
}

// parseByteString accepts hex bytes separated by ':', '.' or '-' as well
// as an unseparated even number of hex digits.
func parseByteString(text string) (Value, error) {
	invalid := fmt.Errorf("%q is not a valid %s", text, TypeBytes)
	if isInteger(text) && (strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X")) {
		return integerBytes(text)
	}

	sep := strings.IndexAny(text, ":.-")
	if sep < 0 {
		if len(text)%2 == 1 && len(text) != 1 {
			return nil, invalid
		}
		digits := text
		if len(digits) == 1 {
			digits = "0" + digits
		}
		b, err := hex.DecodeString(digits)
		if err != nil {
			return nil, invalid
		}
		return Bytes(b), nil
	}

	groups := strings.Split(text, text[sep:sep+1])
	b := make(Bytes, 0, len(groups))
	for _, g := range groups {
		if len(g) == 0 || len(g) > 2 {
			return nil, invalid
		}
		v, err := strconv.ParseUint(g, 16, 8)
		if err != nil {
			return nil, invalid
		}
		b = append(b, byte(v))
	}
	return b, nil
}

func parseEther(text string) (Value, error) {
	mac, err := net.ParseMAC(text)
	if err != nil || len(mac) != 6 {
		return nil, fmt.Errorf("%q is not a valid %s", text, TypeEther)
	}
	return Ether(mac), nil
}

// parseAddr accepts addresses and networks in CIDR notation of the family
// given by t.
func parseAddr(text string, t Type) (Value, error) {
	var p netip.Prefix
	if strings.Contains(text, "/") {
		pfx, err := netip.ParsePrefix(text)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid %s or network", text, t)
		}
		p = pfx.Masked()
	} else {
		a, err := netip.ParseAddr(text)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid %s", text, t)
		}
		p = netip.PrefixFrom(a.Unmap(), a.Unmap().BitLen())
		if t == TypeIPv6 {
			p = netip.PrefixFrom(a, a.BitLen())
		}
	}

	if (t == TypeIPv4) != p.Addr().Is4() {
		return nil, fmt.Errorf("%q is not a valid %s", text, t)
	}
	return Addr(p), nil
}

// parseDuration accepts seconds with an optional fraction or a Go duration
// such as 150ms.
func parseDuration(text string) (Value, error) {
	if d, err := time.ParseDuration(text); err == nil {
		return Duration(d), nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64/float64(time.Second) {
		return nil, fmt.Errorf("%q is not a valid %s", text, TypeDuration)
	}
	return Duration(time.Duration(f * float64(time.Second))), nil
}

// naturalType guesses the type of a literal compared with another
// literal.
func naturalType(n Node) Type {
	switch x := n.(type) {
	case *IntegerNode:
		return TypeInt
	case *StringNode:
		return TypeString
	case *CharNode:
		return TypeUint
	case *UnparsedNode:
		switch strings.ToLower(x.Text) {
		case "true", "false":
			return TypeBool
		}
		if strings.Contains(x.Text, ":") || strings.Contains(x.Text, ".") {
			if _, err := parseAddr(x.Text, TypeIPv4); err == nil {
				return TypeIPv4
			}
			if _, err := parseAddr(x.Text, TypeIPv6); err == nil {
				return TypeIPv6
			}
		}
	}
	return TypeNone
}
