package testsvm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fortiblox/testsvm/pkg/ledger"
	"github.com/fortiblox/testsvm/pkg/svm"
	"github.com/fortiblox/testsvm/pkg/svm/programs/system"
	"github.com/fortiblox/testsvm/pkg/txresult"
	"github.com/fortiblox/testsvm/pkg/types"
)

// SendTransaction signs ixs with the default fee payer and signers, submits
// the transaction and classifies the outcome. Failed transactions are
// reported through the result; the error is only set when the transaction
// could not be built or the ledger's storage failed.
//
// A signer the message needs but that was not supplied leaves its signature
// empty, so the ledger rejects the transaction with SignatureFailure.
func (t *TestSVM) SendTransaction(ixs []svm.Instruction, signers ...types.Keypair) (*txresult.TxResult, error) {
	return t.submit(ixs, t.feePayer, signers, true)
}

// SendTransactionWithPayer is SendTransaction with payer paying the fee.
func (t *TestSVM) SendTransactionWithPayer(ixs []svm.Instruction, payer types.Keypair, signers ...types.Keypair) (*txresult.TxResult, error) {
	return t.submit(ixs, payer, signers, true)
}

// Simulate executes ixs like SendTransaction without committing any change.
func (t *TestSVM) Simulate(ixs []svm.Instruction, signers ...types.Keypair) (*txresult.TxResult, error) {
	return t.submit(ixs, t.feePayer, signers, false)
}

// Transfer moves lamports from a keypair to any account through the System
// program. The default fee payer pays the fee.
func (t *TestSVM) Transfer(from types.Keypair, to types.Pubkey, lamports uint64) (*txresult.TxResult, error) {
	return t.SendTransaction([]svm.Instruction{system.Transfer(from.Pubkey(), to, lamports)}, from)
}

func (t *TestSVM) submit(ixs []svm.Instruction, payer types.Keypair, signers []types.Keypair, commit bool) (*txresult.TxResult, error) {
	tx, err := ledger.NewTransaction(ixs, payer.Pubkey(), t.ledger.LatestBlockhash())
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	tx.PartialSign(append([]types.Keypair{payer}, signers...)...)

	t.log.Debug("sending transaction",
		zap.Stringer("signature", tx.Signature()),
		zap.String("fee_payer", t.book.GetLabel(payer.Pubkey())),
		zap.Int("instructions", len(ixs)),
		zap.Bool("simulate", !commit))

	var meta *ledger.TransactionMetadata
	if commit {
		meta, err = t.ledger.SendTransaction(tx)
	} else {
		meta, err = t.ledger.SimulateTransaction(tx)
	}
	res, err := txresult.New(tx, meta, err, t.tables, t.book)
	if err != nil {
		return nil, fmt.Errorf("execute transaction: %w", err)
	}

	if res.IsSuccess() {
		t.log.Debug("transaction succeeded",
			zap.Stringer("signature", res.Signature()),
			zap.Uint64("compute_units", res.ComputeUnits()))
	} else {
		t.log.Info("transaction failed",
			zap.Stringer("signature", res.Signature()),
			zap.String("error", res.Failure.String()))
	}
	return res, nil
}
