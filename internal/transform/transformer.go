// Package transform converts raw upstream notifications into canonical
// token events.
//
// The transformer is a pure function over one frame: it holds no state
// across calls, never blocks, and runs inline on the connector's delivery
// path. Extraction is all-or-nothing; a notification missing any required
// field is rejected in full so that no partial record ever reaches the
// distribution hub.
package transform

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/solanastream/pumprelay/internal/event"
	"github.com/solanastream/pumprelay/pkg/errors"
)

// notificationMethod is the single upstream notification kind the relay
// understands. Everything else is rejected.
const notificationMethod = "programNotification"

// Transformer turns raw programNotification frames into TokenEvents.
type Transformer struct {
	programID string
}

// New creates a Transformer filtering on the given program id.
func New(programID string) *Transformer {
	return &Transformer{programID: programID}
}

// envelope mirrors the JSON-RPC push frame shape emitted by the upstream.
type envelope struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Context struct {
				Slot *uint64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Pubkey  string   `json:"pubkey"`
				Account *account `json:"account"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

type account struct {
	Owner string          `json:"owner"`
	Data  json.RawMessage `json:"data"`
}

// Transform parses one raw frame into a canonical TokenEvent. The returned
// error satisfies errors.Is(err, errors.ErrRejected) whenever the frame is
// malformed, unrecognized, or incomplete; rejections carry the stage that
// failed and are safe to log and skip.
func (t *Transformer) Transform(raw []byte) (event.TokenEvent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return event.TokenEvent{}, errors.NewRejectionError("envelope", "payload is not well-formed JSON")
	}

	if env.Method != notificationMethod {
		return event.TokenEvent{}, errors.NewRejectionError("method",
			fmt.Sprintf("unrecognized notification kind %q", env.Method))
	}

	value := env.Params.Result.Value
	if value.Pubkey == "" {
		return event.TokenEvent{}, errors.NewRejectionError("value", "missing account pubkey")
	}
	if env.Params.Result.Context.Slot == nil {
		return event.TokenEvent{}, errors.NewRejectionError("context", "missing slot")
	}
	if value.Account == nil {
		return event.TokenEvent{}, errors.NewRejectionError("value", "missing account object")
	}

	// The subscription filters on the program, but a frame that names a
	// different owner is not ours to decode.
	if value.Account.Owner != "" && value.Account.Owner != t.programID {
		return event.TokenEvent{}, errors.NewRejectionError("owner",
			fmt.Sprintf("account owned by %s, not the subscribed program", value.Account.Owner))
	}

	data, err := decodeAccountData(value.Account.Data)
	if err != nil {
		return event.TokenEvent{}, err
	}

	state, err := decodeAccountState(data)
	if err != nil {
		return event.TokenEvent{}, err
	}

	slot := *env.Params.Result.Context.Slot
	return event.TokenEvent{
		EventType:            event.TokenCreated,
		Timestamp:            event.NewTimestamp(time.Now()),
		TransactionSignature: syntheticSignature(value.Pubkey, slot),
		Token: event.TokenDetails{
			MintAddress: state.Mint,
			Name:        state.Name,
			Symbol:      state.Symbol,
			Creator:     state.Creator,
			Supply:      state.Supply,
			Decimals:    state.Decimals,
		},
		PumpData: event.PumpData{
			BondingCurve:         state.BondingCurve,
			VirtualSolReserves:   state.VirtualSolReserves,
			VirtualTokenReserves: state.VirtualTokenReserves,
		},
	}, nil
}

// decodeAccountData unpacks the ["<payload>", "base64"] tuple carried in
// account.data and returns the decoded bytes.
func decodeAccountData(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return nil, errors.NewRejectionError("data", "missing account data")
	}

	var tuple []string
	if err := json.Unmarshal(raw, &tuple); err != nil || len(tuple) < 2 {
		return nil, errors.NewRejectionError("data", "account data is not an [payload, encoding] tuple")
	}
	if tuple[1] != "base64" {
		return nil, errors.NewRejectionError("data",
			fmt.Sprintf("unsupported account data encoding %q", tuple[1]))
	}

	decoded, err := base64.StdEncoding.DecodeString(tuple[0])
	if err != nil {
		return nil, errors.NewRejectionError("data", "account data is not valid base64")
	}
	return decoded, nil
}

// syntheticSignature derives a stable identifier for the change from the
// account pubkey and slot; account-change notifications carry no
// transaction signature of their own.
func syntheticSignature(pubkey string, slot uint64) string {
	prefix := pubkey
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("%s_%d", prefix, slot)
}
