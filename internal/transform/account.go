package transform

import (
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/solanastream/pumprelay/pkg/errors"
)

// The account state is a fixed little-endian layout in the Anchor
// convention: an 8-byte account discriminator, then the fields in
// declaration order. Strings are length-prefixed (u32 LE), pubkeys are raw
// 32-byte values encoded to base58 for the wire.
const (
	discriminatorLen = 8
	pubkeyLen        = 32
)

// accountState is the decoded pump.fun token account: mint metadata plus
// bonding-curve reserve figures.
type accountState struct {
	Mint                 string
	Name                 string
	Symbol               string
	Creator              string
	Supply               uint64
	Decimals             uint8
	BondingCurve         string
	VirtualSolReserves   uint64
	VirtualTokenReserves uint64
}

// decodeAccountState decodes the raw account bytes. Any truncated or
// malformed field rejects the whole account.
func decodeAccountState(data []byte) (accountState, error) {
	r := reader{buf: data}

	if err := r.skip(discriminatorLen); err != nil {
		return accountState{}, reject("discriminator", err)
	}

	var (
		state accountState
		err   error
	)
	if state.Mint, err = r.pubkey(); err != nil {
		return accountState{}, reject("mint", err)
	}
	if state.Name, err = r.str(); err != nil {
		return accountState{}, reject("name", err)
	}
	if state.Symbol, err = r.str(); err != nil {
		return accountState{}, reject("symbol", err)
	}
	if state.Creator, err = r.pubkey(); err != nil {
		return accountState{}, reject("creator", err)
	}
	if state.Supply, err = r.u64(); err != nil {
		return accountState{}, reject("supply", err)
	}
	if state.Decimals, err = r.u8(); err != nil {
		return accountState{}, reject("decimals", err)
	}
	if state.BondingCurve, err = r.pubkey(); err != nil {
		return accountState{}, reject("bonding_curve", err)
	}
	if state.VirtualSolReserves, err = r.u64(); err != nil {
		return accountState{}, reject("virtual_sol_reserves", err)
	}
	if state.VirtualTokenReserves, err = r.u64(); err != nil {
		return accountState{}, reject("virtual_token_reserves", err)
	}

	return state, nil
}

func reject(field string, err error) error {
	return errors.NewRejectionError("layout", fmt.Sprintf("field %s: %v", field, err))
}

// reader is a cursor over the account bytes. Every read checks bounds; a
// short buffer surfaces as an error rather than a panic.
type reader struct {
	buf []byte
	off int
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.buf) {
		return nil, fmt.Errorf("need %d bytes at offset %d, have %d", n, r.off, len(r.buf)-r.off)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) skip(n int) error {
	_, err := r.take(n)
	return err
}

func (r *reader) pubkey() (string, error) {
	b, err := r.take(pubkeyLen)
	if err != nil {
		return "", err
	}
	return base58.Encode(b), nil
}

func (r *reader) str() (string, error) {
	lb, err := r.take(4)
	if err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint32(lb)
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) u64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) u8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}
