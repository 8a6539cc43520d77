package testsvm

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/fortiblox/testsvm/pkg/accounts"
	"github.com/fortiblox/testsvm/pkg/types"
)

var (
	// ErrAccountDecode wraps decoder failures in AccountRef loads.
	ErrAccountDecode = errors.New("decode account")

	// ErrDiscriminatorMismatch is returned by AnchorAccount decoders when the
	// first eight bytes do not name the expected account type.
	ErrDiscriminatorMismatch = errors.New("account discriminator mismatch")
)

// Decoder parses raw account data.
type Decoder[T any] func(data []byte) (T, error)

// AnchorAccount wraps decode with the Anchor discriminator check for the
// account type name and strips the discriminator before decoding.
func AnchorAccount[T any](name string, decode Decoder[T]) Decoder[T] {
	sum := sha256.Sum256([]byte("account:" + name))
	disc := sum[:8]
	return func(data []byte) (T, error) {
		if len(data) < len(disc) || !bytes.Equal(data[:len(disc)], disc) {
			var zero T
			return zero, fmt.Errorf("%w: want %s", ErrDiscriminatorMismatch, name)
		}
		return decode(data[len(disc):])
	}
}

// AccountRef is a key bound to the decoder for the account stored under it.
type AccountRef[T any] struct {
	Key    types.Pubkey
	decode Decoder[T]
}

// NewAccountRef returns a reference to key decoded with decode.
func NewAccountRef[T any](key types.Pubkey, decode Decoder[T]) AccountRef[T] {
	return AccountRef[T]{Key: key, decode: decode}
}

// String returns the base58 key.
func (r AccountRef[T]) String() string { return r.Key.String() }

// Bytes returns the key bytes so a reference can be used as a PDA seed.
func (r AccountRef[T]) Bytes() []byte { return r.Key.Bytes() }

// MaybeLoad reads and decodes the account. ok is false when it does not exist.
func (r AccountRef[T]) MaybeLoad(t *TestSVM) (v T, ok bool, err error) {
	acc, err := t.GetAccount(r.Key)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	v, err = r.decode(acc.Data)
	if err != nil {
		return v, false, fmt.Errorf("%w %s: %w", ErrAccountDecode, t.book.GetLabel(r.Key), err)
	}
	return v, true, nil
}

// Load reads and decodes the account, failing with
// accounts.ErrAccountNotFound when it does not exist.
func (r AccountRef[T]) Load(t *TestSVM) (T, error) {
	v, ok, err := r.MaybeLoad(t)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, fmt.Errorf("%s: %w", t.book.GetLabel(r.Key), accounts.ErrAccountNotFound)
	}
	return v, nil
}

// GetPDAKey derives a program derived address, labels it and returns the key.
func (t *TestSVM) GetPDAKey(label string, program types.Pubkey, seeds ...[]byte) (types.Pubkey, error) {
	pda, err := t.FindPDA(label, program, seeds...)
	if err != nil {
		return types.Pubkey{}, err
	}
	return pda.Key, nil
}

// GetPDA derives and labels a program derived address and returns a typed
// reference to it.
func GetPDA[T any](t *TestSVM, label string, program types.Pubkey, decode Decoder[T], seeds ...[]byte) (AccountRef[T], error) {
	key, err := t.GetPDAKey(label, program, seeds...)
	if err != nil {
		return AccountRef[T]{}, err
	}
	return NewAccountRef(key, decode), nil
}
