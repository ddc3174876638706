// Package dnsname validates and qualifies the names and contents this bot
// accepts as free-text input.
package dnsname

import (
	"net/netip"
	"strings"
)

// Apex selects the zone's root domain instead of a subdomain label.
const Apex = "@"

// Types are the record types offered to users. A and AAAA take an IP
// address, CNAME takes a target hostname.
var Types = []string{"A", "AAAA", "CNAME"}

func ValidType(t string) bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// ValidLabel accepts a single subdomain label or "@" for the apex.
func ValidLabel(s string) bool {
	if s == Apex {
		return true
	}
	if len(s) == 0 || len(s) > 63 {
		return false
	}
	if s[0] == '-' || s[len(s)-1] == '-' {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-':
		default:
			return false
		}
	}
	return true
}

// ValidContent checks the record value against the selected type.
func ValidContent(recordType, content string) bool {
	switch recordType {
	case "A":
		addr, err := netip.ParseAddr(content)
		return err == nil && addr.Is4()
	case "AAAA":
		addr, err := netip.ParseAddr(content)
		return err == nil && addr.Is6() && !addr.Is4In6()
	case "CNAME":
		return ValidHostname(content)
	default:
		return false
	}
}

// ValidHostname accepts a dotted sequence of labels, with an optional
// trailing dot.
func ValidHostname(s string) bool {
	s = strings.TrimSuffix(s, ".")
	if s == "" || len(s) > 253 {
		return false
	}
	for _, label := range strings.Split(s, ".") {
		if label == Apex || !ValidLabel(label) {
			return false
		}
	}
	return true
}

// Qualify joins a label with its zone into a fully-qualified name. The
// apex label yields the zone itself.
func Qualify(label, zone string) string {
	zone = strings.TrimSuffix(zone, ".")
	if label == Apex || label == "" {
		return zone
	}
	return label + "." + zone
}
