package sdk

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pborman/uuid"
)

// UUID returns a new random identifier.
func UUID() string {
	return uuid.NewRandom().String()
}

// RandomString returns a random hexadecimal string of length n.
func RandomString(n int) string {
	b := make([]byte, (n+1)/2)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)[:n]
}

// JSONUnmarshal unmarshal data using json.Number for numbers.
func JSONUnmarshal(btes []byte, i interface{}) error {
	d := json.NewDecoder(bytes.NewReader(btes))
	d.UseNumber()
	return WithStack(d.Decode(i))
}

// Exit func display an error message on stderr and exit 1
func Exit(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}

// IsInArray checks if the element is in the array.
func IsInArray[T comparable](elt T, array []T) bool {
	for _, item := range array {
		if item == elt {
			return true
		}
	}
	return false
}
