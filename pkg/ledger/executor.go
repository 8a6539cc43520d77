package ledger

import (
	"bytes"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fortiblox/testsvm/pkg/accounts"
	"github.com/fortiblox/testsvm/pkg/svm"
	"github.com/fortiblox/testsvm/pkg/svm/programs/system"
	"github.com/fortiblox/testsvm/pkg/types"
)

// TransactionMetadata describes a processed transaction.
type TransactionMetadata struct {
	Signature            types.Signature
	Slot                 uint64
	Logs                 []string
	ComputeUnitsConsumed uint64
	Fee                  uint64
}

// SendTransaction executes and commits a transaction.
//
// On failure the returned error is a *FailedTransaction carrying the
// classified error and the metadata gathered so far. Failures after the fee
// was charged keep the fee debit and roll back every other change. Any other
// error is an internal storage failure.
func (l *Ledger) SendTransaction(tx *Transaction) (*TransactionMetadata, error) {
	return l.process(tx, true)
}

// SimulateTransaction executes a transaction without committing anything.
func (l *Ledger) SimulateTransaction(tx *Transaction) (*TransactionMetadata, error) {
	return l.process(tx, false)
}

// txAccount is the working copy of one message account.
type txAccount struct {
	info    *svm.AccountInfo
	existed bool
	pre     accounts.Account
}

func (l *Ledger) process(tx *Transaction, commit bool) (*TransactionMetadata, error) {
	meta := &TransactionMetadata{Signature: tx.Signature(), Slot: l.clock.Slot}
	fail := func(err *TransactionError) (*TransactionMetadata, error) {
		l.log.Debug("transaction failed",
			zap.Stringer("signature", meta.Signature),
			zap.String("error", err.Debug()))
		failed := &FailedTransaction{Err: err, Meta: *meta}
		if commit && meta.Fee > 0 {
			l.recordProcessed(meta)
		}
		return nil, failed
	}

	msg := tx.Message
	if msg == nil || !msg.sanitize() {
		return fail(&TransactionError{Kind: SanitizeFailure})
	}
	if len(tx.Signatures) == 0 {
		return fail(&TransactionError{Kind: MissingSignatureForFee})
	}
	if l.cfg.SigVerify && !tx.verifySignatures() {
		return fail(&TransactionError{Kind: SignatureFailure})
	}
	if l.processed.Contains(meta.Signature) {
		return fail(&TransactionError{Kind: AlreadyProcessed})
	}
	if l.cfg.BlockhashCheck && !l.isRecentBlockhash(msg.RecentBlockhash) {
		return fail(&TransactionError{Kind: BlockhashNotFound})
	}

	budget, txErr := l.resolveComputeBudget(msg)
	if txErr != nil {
		return fail(txErr)
	}

	working, err := l.loadAccounts(msg)
	if err != nil {
		return nil, err
	}

	// Fee payer.
	payer := working[0]
	fee := saturatingAdd(uint64(len(tx.Signatures))*l.cfg.LamportsPerSignature, budget.priorityFee())
	switch {
	case !payer.existed:
		return fail(&TransactionError{Kind: AccountNotFound})
	case payer.pre.Owner != system.ProgramID || len(payer.pre.Data) != 0:
		return fail(&TransactionError{Kind: InvalidAccountForFee})
	case payer.pre.Lamports < fee:
		return fail(&TransactionError{Kind: InsufficientFundsForFee})
	}
	if rest := payer.pre.Lamports - fee; rest != 0 && rest < l.MinimumBalanceForRentExemption(0) {
		return fail(&TransactionError{Kind: InsufficientFundsForFee})
	}
	payer.info.Lamports -= fee
	meta.Fee = fee

	// Programs must exist and be executable.
	for _, ix := range msg.Instructions {
		prog := working[ix.ProgramIDIndex]
		if !prog.existed {
			return l.failAfterFee(meta, working, commit, fail, &TransactionError{Kind: ProgramAccountNotFound})
		}
		if !prog.pre.Executable {
			return l.failAfterFee(meta, working, commit, fail, &TransactionError{Kind: InvalidProgramForExecution})
		}
	}

	meter := svm.NewComputeMeter(budget.limit)
	for i, ix := range msg.Instructions {
		if ixErr := l.executeInstruction(msg, ix, working, meter, meta); ixErr != nil {
			meta.ComputeUnitsConsumed = meter.Consumed()
			return l.failAfterFee(meta, working, commit, fail, instructionFailed(i, ixErr))
		}
	}
	meta.ComputeUnitsConsumed = meter.Consumed()

	if idx := l.checkRent(msg, working); idx >= 0 {
		return l.failAfterFee(meta, working, commit, fail, &TransactionError{Kind: InsufficientFundsForRent, Index: idx})
	}

	if commit {
		for i, acc := range working {
			if !msg.IsWritable(i) {
				continue
			}
			if err := l.db.SetAccount(msg.AccountKeys[i], toAccount(acc.info)); err != nil {
				return nil, fmt.Errorf("commit %s: %w", msg.AccountKeys[i], err)
			}
		}
		l.recordProcessed(meta)
	}

	l.log.Debug("transaction processed",
		zap.Stringer("signature", meta.Signature),
		zap.Uint64("compute_units", meta.ComputeUnitsConsumed),
		zap.Uint64("fee", meta.Fee))
	return meta, nil
}

// failAfterFee discards every change except the fee debit.
func (l *Ledger) failAfterFee(
	meta *TransactionMetadata,
	working []*txAccount,
	commit bool,
	fail func(*TransactionError) (*TransactionMetadata, error),
	txErr *TransactionError,
) (*TransactionMetadata, error) {
	if commit {
		payer := working[0].pre
		payer.Lamports -= meta.Fee
		if err := l.db.SetAccount(working[0].info.Key, &payer); err != nil {
			return nil, fmt.Errorf("charge fee: %w", err)
		}
	}
	return fail(txErr)
}

func (l *Ledger) loadAccounts(msg *Message) ([]*txAccount, error) {
	working := make([]*txAccount, len(msg.AccountKeys))
	for i, key := range msg.AccountKeys {
		acc, err := l.db.GetAccount(key)
		existed := true
		switch {
		case errors.Is(err, accounts.ErrAccountNotFound):
			existed = false
			acc = &accounts.Account{Owner: system.ProgramID}
		case err != nil:
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
		working[i] = &txAccount{
			existed: existed,
			pre:     *acc.Clone(),
			info: &svm.AccountInfo{
				Key:        key,
				Owner:      acc.Owner,
				Lamports:   acc.Lamports,
				Data:       acc.Data,
				Executable: acc.Executable,
				RentEpoch:  acc.RentEpoch,
				IsSigner:   msg.IsSigner(i),
				IsWritable: msg.IsWritable(i),
			},
		}
	}
	return working, nil
}

func toAccount(info *svm.AccountInfo) *accounts.Account {
	return &accounts.Account{
		Lamports:   info.Lamports,
		Data:       info.Data,
		Owner:      info.Owner,
		Executable: info.Executable,
		RentEpoch:  info.RentEpoch,
	}
}

// executeInstruction runs one instruction against the working accounts and
// verifies the program only made changes it is allowed to make.
func (l *Ledger) executeInstruction(
	msg *Message,
	ix CompiledInstruction,
	working []*txAccount,
	meter *svm.ComputeMeter,
	meta *TransactionMetadata,
) *svm.InstructionError {
	programID := msg.AccountKeys[ix.ProgramIDIndex]
	meta.Logs = append(meta.Logs, fmt.Sprintf("Program %s invoke [1]", programID))

	prog, native := l.programs[programID]
	builtin := native && prog.builtin

	// Snapshot the accounts this instruction can touch.
	var snaps []accountSnapshot
	seen := make(map[uint8]bool)
	ctx := &instructionContext{
		ledger:    l,
		programID: programID,
		accounts:  make([]*svm.AccountInfo, len(ix.Accounts)),
		meter:     meter,
		meta:      meta,
	}
	for i, idx := range ix.Accounts {
		ctx.accounts[i] = working[idx].info
		if !seen[idx] {
			seen[idx] = true
			snaps = append(snaps, accountSnapshot{index: idx, account: *toAccount(working[idx].info).Clone()})
		}
	}

	startRemaining := meter.Remaining()
	var ixErr *svm.InstructionError
	if !native {
		ixErr = svm.NewInstructionError(svm.UnsupportedProgramId)
	} else if err := prog.impl.Process(ctx, ix.Data); err != nil {
		ixErr = svm.AsInstructionError(err)
		if ixErr.Kind == svm.ProgramFailedToComplete {
			meta.Logs = append(meta.Logs, "Program log: "+err.Error())
		}
	} else {
		ixErr = l.verifyChanges(programID, snaps, working)
	}

	if !builtin {
		meta.Logs = append(meta.Logs, fmt.Sprintf("Program %s consumed %d of %d compute units",
			programID, startRemaining-meter.Remaining(), startRemaining))
	}
	if ixErr != nil {
		meta.Logs = append(meta.Logs, fmt.Sprintf("Program %s failed: %s", programID, ixErr.Error()))
		return ixErr
	}
	meta.Logs = append(meta.Logs, fmt.Sprintf("Program %s success", programID))
	return nil
}

type accountSnapshot struct {
	index   uint8
	account accounts.Account
}

// verifyChanges enforces the runtime's account modification rules.
func (l *Ledger) verifyChanges(programID types.Pubkey, pre []accountSnapshot, working []*txAccount) *svm.InstructionError {
	var before, after uint64
	for _, snap := range pre {
		old, cur := snap.account, working[snap.index].info
		before += old.Lamports
		after += cur.Lamports

		owned := old.Owner == programID
		dataChanged := !bytes.Equal(old.Data, cur.Data)

		if cur.Executable != old.Executable {
			return svm.NewInstructionError(svm.ExecutableModified)
		}
		if !cur.IsWritable {
			if cur.Lamports != old.Lamports {
				return svm.NewInstructionError(svm.ReadonlyLamportChange)
			}
			if dataChanged || cur.Owner != old.Owner {
				return svm.NewInstructionError(svm.ReadonlyDataModified)
			}
			continue
		}
		if cur.Owner != old.Owner && !owned {
			return svm.NewInstructionError(svm.ModifiedProgramId)
		}
		if cur.Lamports < old.Lamports && !owned {
			return svm.NewInstructionError(svm.ExternalAccountLamportSpend)
		}
		if dataChanged && !owned {
			return svm.NewInstructionError(svm.ExternalAccountDataModified)
		}
	}
	if before != after {
		return svm.NewInstructionError(svm.UnbalancedInstruction)
	}
	return nil
}

// checkRent returns the index of the first writable account left with a
// non-zero balance below its rent-exempt minimum, or -1. Accounts that were
// already below the minimum may stay there as long as they do not shrink further.
func (l *Ledger) checkRent(msg *Message, working []*txAccount) int {
	for i, acc := range working {
		if !msg.IsWritable(i) || acc.info.Lamports == 0 {
			continue
		}
		minBalance := l.MinimumBalanceForRentExemption(uint64(len(acc.info.Data)))
		if acc.info.Lamports >= minBalance {
			continue
		}
		preMin := l.MinimumBalanceForRentExemption(uint64(len(acc.pre.Data)))
		wasRentPaying := acc.existed && acc.pre.Lamports > 0 && acc.pre.Lamports < preMin
		if wasRentPaying && len(acc.info.Data) == len(acc.pre.Data) && acc.info.Lamports <= acc.pre.Lamports {
			continue
		}
		return i
	}
	return -1
}

// instructionContext implements svm.InvokeContext for one instruction.
type instructionContext struct {
	ledger    *Ledger
	programID types.Pubkey
	accounts  []*svm.AccountInfo
	meter     *svm.ComputeMeter
	meta      *TransactionMetadata
}

func (c *instructionContext) ProgramID() types.Pubkey { return c.programID }

func (c *instructionContext) NumAccounts() int { return len(c.accounts) }

func (c *instructionContext) Account(index int) (*svm.AccountInfo, error) {
	if index < 0 || index >= len(c.accounts) {
		return nil, svm.ErrAccountIndex
	}
	return c.accounts[index], nil
}

func (c *instructionContext) RentMinimum(dataLen uint64) uint64 {
	return c.ledger.MinimumBalanceForRentExemption(dataLen)
}

func (c *instructionContext) Clock() svm.Clock { return c.ledger.clock }

func (c *instructionContext) Meter() *svm.ComputeMeter { return c.meter }

func (c *instructionContext) Log(format string, args ...any) {
	c.meta.Logs = append(c.meta.Logs, "Program log: "+fmt.Sprintf(format, args...))
}
