package domain

import (
	"fmt"
	"slices"
)

// Protocol identifies the on-chain venue a pool trades on.
// The set is closed: every switch over Protocol must handle all three values.
type Protocol uint8

const (
	ProtocolRaydiumV4 Protocol = iota + 1
	ProtocolRaydiumCPMM
	ProtocolPumpFun
)

// Protocols lists the supported protocols.
var Protocols = []Protocol{ProtocolRaydiumV4, ProtocolRaydiumCPMM, ProtocolPumpFun}

func (p Protocol) String() string {
	switch p {
	case ProtocolRaydiumV4:
		return "RAYDIUM_V4"
	case ProtocolRaydiumCPMM:
		return "RAYDIUM_CPMM"
	case ProtocolPumpFun:
		return "PUMPFUN"
	}
	return fmt.Sprintf("Protocol(%d)", uint8(p))
}

// IsValid reports whether p is one of the supported protocols.
func (p Protocol) IsValid() bool {
	return slices.Contains(Protocols, p)
}

// ParseProtocol converts the wire name used by the pool API into a Protocol.
func ParseProtocol(s string) (Protocol, error) {
	switch s {
	case "RAYDIUM_V4":
		return ProtocolRaydiumV4, nil
	case "RAYDIUM_CPMM":
		return ProtocolRaydiumCPMM, nil
	case "PUMPFUN":
		return ProtocolPumpFun, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownProtocol, s)
}

// MarshalText encodes the protocol by name.
func (p Protocol) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownProtocol, uint8(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText decodes the protocol from its name.
func (p *Protocol) UnmarshalText(b []byte) error {
	v, err := ParseProtocol(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
