package utils

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

const (
	sixIDSubtype byte = 0x80
	sixIDChars        = 10

	crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
)

var (
	ErrSixIDLength = errors.New("sixid: must be 10 Crockford base32 characters")
	ErrSixIDChar   = errors.New("sixid: invalid character")
)

// SixIDHookFunc lets tests force the next ids. override=false falls back to random.
type SixIDHookFunc func() (id SixID, override bool)

// NewSixIDHook is consulted by NewSixID when set.
var NewSixIDHook SixIDHookFunc

// SixID identifies invoices, vehicles and clients. Mongo stores it as binary
// subtype 0x80; JSON, URLs and the CLI use 10 Crockford base32 characters.
type SixID [6]byte

func NewSixID() SixID {
	if NewSixIDHook != nil {
		if id, override := NewSixIDHook(); override {
			return id
		}
	}
	var id SixID
	if _, err := rand.Read(id[:]); err != nil {
		panic(fmt.Sprintf("sixid: reading random bytes: %v", err))
	}
	return id
}

// crockfordValue decodes one character, accepting lower case and the
// Crockford aliases O→0 and I/L→1.
func crockfordValue(c byte) (uint64, bool) {
	switch c {
	case 'O', 'o':
		return 0, true
	case 'I', 'i', 'L', 'l':
		return 1, true
	}
	if i := strings.IndexByte(crockford, c); i >= 0 {
		return uint64(i), true
	}
	if c >= 'a' && c <= 'z' {
		if i := strings.IndexByte(crockford, c-'a'+'A'); i >= 0 {
			return uint64(i), true
		}
	}
	return 0, false
}

// ParseSixID reads the String form. Hyphens and spaces are ignored.
func ParseSixID(s string) (SixID, error) {
	s = strings.NewReplacer("-", "", " ", "").Replace(s)
	if len(s) != sixIDChars {
		return SixID{}, ErrSixIDLength
	}
	var n uint64
	for i := 0; i < sixIDChars; i++ {
		v, ok := crockfordValue(s[i])
		if !ok {
			return SixID{}, fmt.Errorf("%w %q", ErrSixIDChar, s[i])
		}
		n |= v << (5 * i)
	}
	if n>>48 != 0 {
		return SixID{}, ErrSixIDLength
	}
	var id SixID
	for i := range id {
		id[i] = byte(n >> (8 * i))
	}
	return id, nil
}

// String packs the 48 bits least significant group first.
func (u SixID) String() string {
	var n uint64
	for i, b := range u {
		n |= uint64(b) << (8 * i)
	}
	out := make([]byte, sixIDChars)
	for i := range out {
		out[i] = crockford[(n>>(5*i))&0x1f]
	}
	return string(out)
}

func (u SixID) IsZero() bool {
	return u == SixID{}
}

func (u SixID) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bsontype.Binary, bsoncore.AppendBinary(nil, sixIDSubtype, u[:]), nil
}

// UnmarshalBSONValue accepts binary subtype 0x80 of length 6. Null decodes to the zero SixID.
func (u *SixID) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	*u = SixID{}
	switch t {
	case bsontype.Null, bsontype.Undefined:
		return nil
	case bsontype.Binary:
		subtype, bin, _, ok := bsoncore.ReadBinary(data)
		if !ok || subtype != sixIDSubtype || len(bin) != len(u) {
			return fmt.Errorf("sixid: unexpected binary subtype %#x or length %d", subtype, len(bin))
		}
		copy(u[:], bin)
		return nil
	default:
		return fmt.Errorf("sixid: cannot decode BSON %s", t)
	}
}

func (u SixID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

func (u *SixID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseSixID(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
