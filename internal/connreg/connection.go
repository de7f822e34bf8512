// Package connreg holds the domain types of the connection registry.
package connreg

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// MinPort and MaxPort bound the inclusive range of a valid port number.
const (
	MinPort = 0
	MaxPort = 65535
)

// Connection is a named host/port entry. ID is assigned by the store at
// creation time and never changes afterwards.
type Connection struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy that shares no memory with c.
func (c *Connection) Clone() *Connection {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// ConnectionOptions is the input of a create. Port is a pointer so that an
// explicit 0 can be told apart from a missing value.
type ConnectionOptions struct {
	Name string `json:"name"`
	Host string `json:"host"`
	Port *int   `json:"port"`
}

// UpdateRequest carries the fields an update may change. A nil field is
// left unchanged. Anything not listed here is dropped when decoding.
type UpdateRequest struct {
	Name *string `json:"name,omitempty"`
	Host *string `json:"host,omitempty"`
	Port *int    `json:"port,omitempty"`
}

// IsEmpty reports whether the request would change nothing.
func (r UpdateRequest) IsEmpty() bool {
	return r.Name == nil && r.Host == nil && r.Port == nil
}

// Apply copies the non-nil fields of r onto c.
func (r UpdateRequest) Apply(c *Connection) {
	if r.Name != nil {
		c.Name = *r.Name
	}
	if r.Host != nil {
		c.Host = *r.Host
	}
	if r.Port != nil {
		c.Port = *r.Port
	}
}

// PickUpdate projects a loosely typed update, such as a decoded JSON
// object, onto the allow-listed fields. Unknown keys are ignored. A known key
// holding a value of the wrong type, or a port that is not a whole number,
// is an invalid argument.
func PickUpdate(fields map[string]any) (UpdateRequest, error) {
	var req UpdateRequest
	for _, key := range []string{"name", "host"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		v, ok := raw.(string)
		if !ok {
			return UpdateRequest{}, InvalidArgument(fmt.Sprintf(MsgFieldType, key, "a string"))
		}
		if key == "name" {
			req.Name = &v
		} else {
			req.Host = &v
		}
	}
	if raw, ok := fields["port"]; ok {
		p, ok := wholeNumber(raw)
		if !ok {
			return UpdateRequest{}, InvalidArgument(fmt.Sprintf(MsgFieldType, "port", "an integer"))
		}
		req.Port = &p
	}
	return req, nil
}

func wholeNumber(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

// PortInRange reports whether p is a valid TCP/UDP port number.
func PortInRange(p int) bool {
	return p >= MinPort && p <= MaxPort
}

// Ptr returns a pointer to v. Handy for building requests in callers and tests.
func Ptr[T any](v T) *T {
	return &v
}
