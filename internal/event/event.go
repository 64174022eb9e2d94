// Package event defines the canonical token event record produced by the
// relay pipeline.
//
// A TokenEvent is built exactly once, by the transformer, from a matching
// upstream notification. It is immutable after construction and is handed
// between pipeline stages by value; the distribution hub serializes it once
// per publish.
package event

import "time"

// Type discriminators carried in the event_type field.
const (
	// TokenCreated is emitted for a pump.fun token account change.
	TokenCreated = "token_created"

	// ConnectionEstablished is the handshake frame type sent to a
	// downstream consumer right after it registers.
	ConnectionEstablished = "connection_established"
)

// TokenEvent is the canonical record broadcast to downstream consumers.
type TokenEvent struct {
	EventType            string       `json:"event_type"`
	Timestamp            string       `json:"timestamp"`
	TransactionSignature string       `json:"transaction_signature"`
	Token                TokenDetails `json:"token"`
	PumpData             PumpData     `json:"pump_data"`
}

// TokenDetails carries the SPL token mint metadata extracted from the
// account state.
type TokenDetails struct {
	MintAddress string `json:"mint_address"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Creator     string `json:"creator"`
	Supply      uint64 `json:"supply"`
	Decimals    uint8  `json:"decimals"`
}

// PumpData carries the bonding-curve reserve state.
type PumpData struct {
	BondingCurve         string `json:"bonding_curve"`
	VirtualSolReserves   uint64 `json:"virtual_sol_reserves"`
	VirtualTokenReserves uint64 `json:"virtual_token_reserves"`
}

// Welcome is the one-time acknowledgment sent to a consumer when its
// connection is registered, before any broadcast events are queued.
type Welcome struct {
	Type         string `json:"type"`
	ConnectionID uint64 `json:"connection_id"`
	Message      string `json:"message"`
}

// NewTimestamp formats the capture time for the wire. The upstream payload
// carries only chain-relative ordering, so wall-clock time is assigned here.
func NewTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
