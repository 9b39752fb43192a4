package errors

import stderrors "errors"

var (
	ErrChainIDMismatch   = stderrors.New("tx: chain id mismatch")
	ErrNonceMismatch     = stderrors.New("tx: nonce mismatch")
	ErrInvalidPayload    = stderrors.New("tx: invalid payload")
	ErrInvalidSignature  = stderrors.New("tx: invalid signature")
	ErrGenesisMismatch   = stderrors.New("genesis: stored parameters differ from configuration")
	ErrGenesisIncomplete = stderrors.New("genesis: incomplete parameters")
)
