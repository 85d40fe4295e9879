package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// GenerateCode returns an uppercase hex string built from n random
// bytes.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// TicketSerial returns a printable serial for a single ticket row.
func TicketSerial() (string, error) {
	code, err := GenerateCode(6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("TKT-%s", code), nil
}
