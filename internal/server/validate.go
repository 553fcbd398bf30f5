package server

import (
	"fmt"
	"net"
	"regexp"
	"strings"
)

var dangerousChars = regexp.MustCompile("[;|&`$(){}\\[\\]!<>\\\\\"']")

// validateAddress checks that a scope entry is a plain IP or CIDR.
// These strings end up comma-joined on the analyzer's command line, so
// shell metacharacters are rejected outright.
func validateAddress(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if dangerousChars.MatchString(addr) {
		return fmt.Errorf("address contains invalid characters")
	}
	if strings.Contains(addr, ",") {
		return fmt.Errorf("address cannot contain commas")
	}

	if ip := net.ParseIP(addr); ip != nil {
		return nil
	}
	if _, _, err := net.ParseCIDR(addr); err == nil {
		return nil
	}
	return fmt.Errorf("invalid IP address or CIDR: %s", addr)
}

func validateAddresses(entries []ipEntry) ([]string, error) {
	values := make([]string, 0, len(entries))
	for _, entry := range entries {
		if err := validateAddress(entry.Value); err != nil {
			return nil, err
		}
		values = append(values, strings.TrimSpace(entry.Value))
	}
	return values, nil
}
