package relaymap

import "net/netip"

// DefaultPlaceholder is the endpoint reported by clients which have not yet learned their public address.
var DefaultPlaceholder = netip.AddrPortFrom(netip.AddrFrom4([4]byte{127, 0, 0, 9}), 9)

// AddrPolicy decides whether an incoming address may replace a stored one.
type AddrPolicy struct {
	Placeholder netip.AddrPort
}

func DefaultPolicy() AddrPolicy {
	return AddrPolicy{Placeholder: DefaultPlaceholder}
}

func (p AddrPolicy) IsPlaceholder(addr netip.AddrPort) bool {
	return addr == p.Placeholder
}

// MayOverwrite returns false when incoming is the placeholder and existing is a learned address.
func (p AddrPolicy) MayOverwrite(existing, incoming netip.AddrPort) bool {
	return !(p.IsPlaceholder(incoming) && !p.IsPlaceholder(existing))
}
