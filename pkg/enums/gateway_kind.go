package enums

// GatewayKind names the card-authorization backend picked for an attempt.
type GatewayKind string

const (
	GatewayKindLive      GatewayKind = "live"
	GatewayKindSimulated GatewayKind = "simulated"
)

// String implements fmt.Stringer.
func (g GatewayKind) String() string {
	return string(g)
}
