package identity

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

const (
	upperChars   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars   = "abcdefghijklmnopqrstuvwxyz"
	digitChars   = "0123456789"
	symbolChars  = "!@#$%&*"
	defaultLocal = "estudiante"
)

var (
	accentFolder = strings.NewReplacer(
		"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
		"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u", "Ü", "u", "Ñ", "n",
	)
	separatorsRegex = regexp.MustCompile(`[\s\-]+`)
	invalidRegex    = regexp.MustCompile(`[^a-z0-9.]`)
	dotsRegex       = regexp.MustCompile(`\.+`)
)

// normalizeForEmail folds accents, lowers and turns separators into dots, keeping only
// [a-z0-9.] without leading, trailing or repeated dots.
func normalizeForEmail(s string) string {
	s = strings.TrimSpace(strings.ToLower(accentFolder.Replace(s)))
	s = separatorsRegex.ReplaceAllString(s, ".")
	s = invalidRegex.ReplaceAllString(s, "")
	s = dotsRegex.ReplaceAllString(s, ".")
	return strings.Trim(s, ".")
}

// InstitutionalEmail builds "first.lastname1.lastname2@domain". The middle name stands in
// for a missing last name.
func InstitutionalEmail(first, middle, last, domain string) string {
	name := normalizeForEmail(first)
	surnames := normalizeForEmail(last)
	if surnames == "" {
		surnames = normalizeForEmail(middle)
	}
	if name == "" {
		name = defaultLocal
	}

	parts := make([]string, 0, 3)
	for _, p := range strings.Split(surnames, ".") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, name)
	}
	return name + "." + strings.Join(parts, ".") + "@" + domain
}

// TempPassword returns a random password of length (at least 4) holding at least one upper
// case letter, one lower case letter, one digit and one symbol.
func TempPassword(length int) (string, error) {
	if length < 4 {
		length = 4
	}
	all := upperChars + lowerChars + digitChars + symbolChars

	chars := make([]byte, 0, length)
	for _, set := range []string{upperChars, lowerChars, digitChars, symbolChars} {
		c, err := randChar(set)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}
	for len(chars) < length {
		c, err := randChar(all)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}

	// Fisher-Yates
	for i := len(chars) - 1; i > 0; i-- {
		j, err := randInt(i + 1)
		if err != nil {
			return "", err
		}
		chars[i], chars[j] = chars[j], chars[i]
	}
	return string(chars), nil
}

func randChar(set string) (byte, error) {
	i, err := randInt(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

func randInt(n int) (int, error) {
	i, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, errors.Wrap(err, "reading random")
	}
	return int(i.Int64()), nil
}
