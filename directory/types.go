package directory

import (
	"net"
	"strconv"
)

// Address is the UDP endpoint a server advertises in the directory.
type Address struct {
	Host string
	Port int
}

func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Entry is one element of the directory's "servers" array.
// Optional fields are nil when the key is absent or carries an unexpected JSON type.
type Entry struct {
	Address       *Address
	Name          string
	JoinableState *string
	GameType      *string
	Players       *int
	// Error is set when the entry carries an "error" key, whatever its value.
	Error bool
}

// DisplayName returns the sanitized server name, falling back to the address.
func (e Entry) DisplayName() string {
	if name := SanitizeName(e.Name); name != "" {
		return name
	}
	if e.Address != nil {
		return e.Address.String()
	}
	return ""
}
