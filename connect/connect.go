package connect

import (
	"bytes"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// ids tag sessions, calls and callbacks in the logs.
// They are never sent to the controller.

// comparable
type Id [16]byte

func NewId() Id {
	return Id(ulid.Make())
}

func ParseId(idStr string) (Id, error) {
	u, err := ulid.ParseStrict(idStr)
	if err != nil {
		return Id{}, err
	}
	return Id(u), nil
}

func (self Id) Bytes() []byte {
	return self[0:16]
}

func (self Id) LessThan(b Id) bool {
	return bytes.Compare(self[:], b[:]) < 0
}

func (self Id) String() string {
	return ulid.ULID(self).String()
}

func (self Id) MarshalJSON() ([]byte, error) {
	var buff bytes.Buffer
	buff.WriteByte('"')
	buff.WriteString(self.String())
	buff.WriteByte('"')
	return buff.Bytes(), nil
}

func (self *Id) UnmarshalJSON(src []byte) error {
	if len(src) != ulid.EncodedSize+2 || src[0] != '"' || src[len(src)-1] != '"' {
		return fmt.Errorf("invalid length for id: %v", len(src))
	}
	id, err := ParseId(string(src[1 : len(src)-1]))
	if err != nil {
		return err
	}
	*self = id
	return nil
}
