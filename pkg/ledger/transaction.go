package ledger

import (
	"errors"
	"fmt"

	"github.com/fortiblox/testsvm/pkg/svm"
	"github.com/fortiblox/testsvm/pkg/types"
)

// MaxAccountKeys is the most keys a legacy message can reference.
const MaxAccountKeys = 256

var (
	// ErrNoInstructions is returned when compiling an empty message.
	ErrNoInstructions = errors.New("transaction has no instructions")

	// ErrTooManyAccounts is returned when a message references more than MaxAccountKeys keys.
	ErrTooManyAccounts = errors.New("too many account keys")

	// ErrMissingSigner is returned by Sign when a required signer was not supplied.
	ErrMissingSigner = errors.New("not enough signers")
)

// MessageHeader describes how AccountKeys split into signer/writable groups.
type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction references accounts by index into Message.AccountKeys.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

// Message is a legacy transaction message.
type Message struct {
	Header          MessageHeader
	AccountKeys     []types.Pubkey
	RecentBlockhash types.Hash
	Instructions    []CompiledInstruction
}

type keyMeta struct {
	key      types.Pubkey
	signer   bool
	writable bool
}

// CompileMessage orders keys as writable signers (payer first), readonly
// signers, writable non-signers, readonly non-signers, keeping first-seen
// order inside each group. Flags of a key listed more than once are merged.
func CompileMessage(ixs []svm.Instruction, payer types.Pubkey, blockhash types.Hash) (*Message, error) {
	if len(ixs) == 0 {
		return nil, ErrNoInstructions
	}

	var metas []*keyMeta
	index := make(map[types.Pubkey]*keyMeta)
	add := func(key types.Pubkey, signer, writable bool) {
		m, ok := index[key]
		if !ok {
			m = &keyMeta{key: key}
			index[key] = m
			metas = append(metas, m)
		}
		m.signer = m.signer || signer
		m.writable = m.writable || writable
	}

	add(payer, true, true)
	for _, ix := range ixs {
		for _, am := range ix.Accounts {
			add(am.Pubkey, am.IsSigner, am.IsWritable)
		}
		add(ix.ProgramID, false, false)
	}
	if len(metas) > MaxAccountKeys {
		return nil, fmt.Errorf("%w: %d", ErrTooManyAccounts, len(metas))
	}

	var groups [4][]types.Pubkey
	for _, m := range metas {
		g := 0
		switch {
		case m.signer && m.writable:
			g = 0
		case m.signer:
			g = 1
		case m.writable:
			g = 2
		default:
			g = 3
		}
		groups[g] = append(groups[g], m.key)
	}

	msg := &Message{
		Header: MessageHeader{
			NumRequiredSignatures:       uint8(len(groups[0]) + len(groups[1])),
			NumReadonlySignedAccounts:   uint8(len(groups[1])),
			NumReadonlyUnsignedAccounts: uint8(len(groups[3])),
		},
		RecentBlockhash: blockhash,
	}
	for _, g := range groups {
		msg.AccountKeys = append(msg.AccountKeys, g...)
	}

	pos := make(map[types.Pubkey]uint8, len(msg.AccountKeys))
	for i, k := range msg.AccountKeys {
		pos[k] = uint8(i)
	}
	for _, ix := range ixs {
		ci := CompiledInstruction{
			ProgramIDIndex: pos[ix.ProgramID],
			Accounts:       make([]uint8, len(ix.Accounts)),
			Data:           append([]byte(nil), ix.Data...),
		}
		for i, am := range ix.Accounts {
			ci.Accounts[i] = pos[am.Pubkey]
		}
		msg.Instructions = append(msg.Instructions, ci)
	}
	return msg, nil
}

// IsSigner reports whether the key at index i must sign.
func (m *Message) IsSigner(i int) bool {
	return i < int(m.Header.NumRequiredSignatures)
}

// IsWritable reports whether the key at index i is writable. Sysvars and
// builtin programs are always demoted to read-only.
func (m *Message) IsWritable(i int) bool {
	if i < len(m.AccountKeys) && isReserved(m.AccountKeys[i]) {
		return false
	}
	numSigners := int(m.Header.NumRequiredSignatures)
	if i < numSigners {
		return i < numSigners-int(m.Header.NumReadonlySignedAccounts)
	}
	return i < len(m.AccountKeys)-int(m.Header.NumReadonlyUnsignedAccounts)
}

func isReserved(key types.Pubkey) bool {
	return types.IsSysvar(key) || types.IsNativeProgram(key) || types.IsPrecompile(key)
}

// FeePayer returns the first account key.
func (m *Message) FeePayer() types.Pubkey {
	if len(m.AccountKeys) == 0 {
		return types.Pubkey{}
	}
	return m.AccountKeys[0]
}

// Serialize encodes the message in the wire layout that signatures cover.
func (m *Message) Serialize() []byte {
	buf := []byte{
		m.Header.NumRequiredSignatures,
		m.Header.NumReadonlySignedAccounts,
		m.Header.NumReadonlyUnsignedAccounts,
	}
	buf = appendShortVec(buf, len(m.AccountKeys))
	for _, k := range m.AccountKeys {
		buf = append(buf, k[:]...)
	}
	buf = append(buf, m.RecentBlockhash[:]...)
	buf = appendShortVec(buf, len(m.Instructions))
	for _, ix := range m.Instructions {
		buf = append(buf, ix.ProgramIDIndex)
		buf = appendShortVec(buf, len(ix.Accounts))
		buf = append(buf, ix.Accounts...)
		buf = appendShortVec(buf, len(ix.Data))
		buf = append(buf, ix.Data...)
	}
	return buf
}

// sanitize checks the internal consistency of a message.
func (m *Message) sanitize() bool {
	h := m.Header
	n := len(m.AccountKeys)
	if h.NumRequiredSignatures == 0 || int(h.NumRequiredSignatures)+int(h.NumReadonlyUnsignedAccounts) > n {
		return false
	}
	if h.NumReadonlySignedAccounts >= h.NumRequiredSignatures {
		return false
	}
	if len(m.Instructions) == 0 {
		return false
	}
	for _, ix := range m.Instructions {
		// The fee payer can never be the program.
		if ix.ProgramIDIndex == 0 || int(ix.ProgramIDIndex) >= n {
			return false
		}
		for _, a := range ix.Accounts {
			if int(a) >= n {
				return false
			}
		}
	}
	return true
}

// appendShortVec appends a compact-u16 length.
func appendShortVec(buf []byte, n int) []byte {
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// Transaction is a signed message.
type Transaction struct {
	Signatures []types.Signature
	Message    *Message
}

// NewTransaction compiles instructions into an unsigned transaction.
func NewTransaction(ixs []svm.Instruction, payer types.Pubkey, blockhash types.Hash) (*Transaction, error) {
	msg, err := CompileMessage(ixs, payer, blockhash)
	if err != nil {
		return nil, err
	}
	return &Transaction{
		Signatures: make([]types.Signature, msg.Header.NumRequiredSignatures),
		Message:    msg,
	}, nil
}

// PartialSign signs with every supplied keypair that the message requires.
// Keypairs the message does not need are ignored.
func (tx *Transaction) PartialSign(signers ...types.Keypair) {
	data := tx.Message.Serialize()
	for _, kp := range signers {
		if kp.IsZero() {
			continue
		}
		for i := 0; i < int(tx.Message.Header.NumRequiredSignatures); i++ {
			if tx.Message.AccountKeys[i] == kp.Pubkey() {
				tx.Signatures[i] = kp.Sign(data)
			}
		}
	}
}

// Sign signs the transaction and fails if any required signature is missing.
func (tx *Transaction) Sign(signers ...types.Keypair) error {
	tx.PartialSign(signers...)
	for i, sig := range tx.Signatures {
		if sig.IsZero() {
			return fmt.Errorf("%w: %s", ErrMissingSigner, tx.Message.AccountKeys[i])
		}
	}
	return nil
}

// Signature returns the first signature, which identifies the transaction.
func (tx *Transaction) Signature() types.Signature {
	if len(tx.Signatures) == 0 {
		return types.Signature{}
	}
	return tx.Signatures[0]
}

// verifySignatures checks every required signature against the message.
func (tx *Transaction) verifySignatures() bool {
	if len(tx.Signatures) != int(tx.Message.Header.NumRequiredSignatures) {
		return false
	}
	data := tx.Message.Serialize()
	for i, sig := range tx.Signatures {
		if !sig.Verify(tx.Message.AccountKeys[i], data) {
			return false
		}
	}
	return true
}
