package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	temporaryCredentialLength = 16
	lowerSet                  = "abcdefghijkmnopqrstuvwxyz"
	upperSet                  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	digitSet                  = "23456789"
	symbolSet                 = "!@#$%&*"
)

// GenerateTemporaryCredential returns a random password holding at least one
// lowercase letter, uppercase letter, digit and symbol.
func GenerateTemporaryCredential() (string, error) {
	all := lowerSet + upperSet + digitSet + symbolSet
	out := make([]byte, 0, temporaryCredentialLength)
	for _, set := range []string{lowerSet, upperSet, digitSet, symbolSet} {
		ch, err := pick(set)
		if err != nil {
			return "", err
		}
		out = append(out, ch)
	}
	for len(out) < temporaryCredentialLength {
		ch, err := pick(all)
		if err != nil {
			return "", err
		}
		out = append(out, ch)
	}
	// Fisher-Yates so the guaranteed classes are not always first.
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", fmt.Errorf("identity: shuffle credential: %w", err)
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}
	return string(out), nil
}

func pick(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, fmt.Errorf("identity: generate credential: %w", err)
	}
	return set[n.Int64()], nil
}
