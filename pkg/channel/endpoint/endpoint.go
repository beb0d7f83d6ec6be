// Package endpoint models the phone drivers a channel rings: SIP
// registrations, raw SIP/IAX2/H323 addresses and PSTN numbers. A driver is
// owned by exactly one channel; the channel watches the driver's lifetime
// and reacts to its exit according to the state it is in.
package endpoint

import (
	"context"
	"fmt"
)

// Type enumerates the supported drivers.
type Type string

const (
	TypeSIPRegistration Type = "sip_registration"
	TypeSIP             Type = "sip"
	TypeIAX2            Type = "iax2"
	TypeH323            Type = "h323"
	TypePSTN            Type = "pstn"
)

// ParseType normalises a client-supplied endpoint name. The historical
// misspelling "sip_registation" still arrives from old clients and is
// corrected here. An empty name selects the default registration driver.
func ParseType(s string) (Type, error) {
	switch s {
	case "", "sip_registration", "sip_registation":
		return TypeSIPRegistration, nil
	case "sip":
		return TypeSIP, nil
	case "iax2":
		return TypeIAX2, nil
	case "h323":
		return TypeH323, nil
	case "pstn":
		return TypePSTN, nil
	default:
		return "", fmt.Errorf("unknown endpoint type %q", s)
	}
}

// Spec describes how to reach an agent's phone. Data is the
// driver-specific address: a registration name, a SIP/IAX2/H323 address,
// or a PSTN number.
type Spec struct {
	Type Type   `json:"type"`
	Data string `json:"data,omitempty"`
}

// Resolve applies the login-time defaulting rules: an empty type selects
// sip_registration, and a registration with no name falls back to the
// agent's login.
func Resolve(voipType, data, login string) (Spec, error) {
	t, err := ParseType(voipType)
	if err != nil {
		return Spec{}, err
	}
	if data == "" && t == TypeSIPRegistration {
		data = login
	}
	return Spec{Type: t, Data: data}, nil
}

// Endpoint is a live driver handle. Done is closed when the driver exits;
// Err carries the exit reason and is valid once Done is closed.
type Endpoint interface {
	// Ring asks the phone to ring for the given call.
	Ring(ctx context.Context, callID string) error

	// Hangup tears the driver down. Idempotent.
	Hangup()

	Done() <-chan struct{}
	Err() error
}

// Starter spawns a driver for a spec. The PBX integrations implement this;
// LocalStarter provides the in-process variant.
type Starter interface {
	Start(ctx context.Context, spec Spec) (Endpoint, error)
}
