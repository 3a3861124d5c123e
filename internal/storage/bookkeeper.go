package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	vaaLib "github.com/wormhole-foundation/wormhole/sdk/vaa"
	"go.uber.org/zap"
)

const loanRecordTTL = 30 * 24 * time.Hour

// LoanRecord is the auxiliary record kept for a relayed borrow.
type LoanRecord struct {
	LoanID       string `json:"loanId"`
	SourceChain  uint16 `json:"sourceChain"`
	Sequence     uint64 `json:"sequence"`
	SourceTxHash string `json:"sourceTxHash,omitempty"`
	TxID         string `json:"txId"`
	LoanObject   string `json:"loanObject,omitempty"`
}

// Bookkeeper records dispatch progress on whatever Handle was selected. It
// never returns errors: failures are logged and dispatch continues.
type Bookkeeper struct {
	prefix string
	handle atomic.Value // holder
	logger *zap.Logger
}

type holder struct{ h Handle }

func NewBookkeeper(logger *zap.Logger, relayerName string) *Bookkeeper {
	b := &Bookkeeper{
		prefix: relayerName,
		logger: logger.With(zap.String("component", "Bookkeeper")),
	}
	b.handle.Store(holder{Unavailable{}})
	return b
}

// Use swaps in a newly selected handle and returns the previous one.
func (b *Bookkeeper) Use(h Handle) Handle {
	if h == nil {
		h = Unavailable{}
	}
	return b.handle.Swap(holder{h}).(holder).h
}

func (b *Bookkeeper) Handle() Handle {
	return b.handle.Load().(holder).h
}

func (b *Bookkeeper) sequenceKey(chain vaaLib.ChainID) string {
	return fmt.Sprintf("%s:sequence:%d", b.prefix, uint16(chain))
}

func (b *Bookkeeper) loanKey(loanID string) string {
	return fmt.Sprintf("%s:loans:%s", b.prefix, loanID)
}

// RecordSequence stores the last dispatched sequence for chain.
func (b *Bookkeeper) RecordSequence(ctx context.Context, chain vaaLib.ChainID, sequence uint64) {
	store := kv(b.Handle())
	if store == nil {
		return
	}
	if err := store.Set(ctx, b.sequenceKey(chain), strconv.FormatUint(sequence, 10), 0); err != nil {
		b.logger.Warn("Failed to record sequence",
			zap.Stringer("chain", chain),
			zap.Uint64("sequence", sequence),
			zap.Error(err))
	}
}

// LastSequence returns the recorded sequence for chain, if any.
func (b *Bookkeeper) LastSequence(ctx context.Context, chain vaaLib.ChainID) (uint64, bool) {
	store := kv(b.Handle())
	if store == nil {
		return 0, false
	}
	raw, err := store.Get(ctx, b.sequenceKey(chain))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			b.logger.Warn("Failed to read sequence", zap.Stringer("chain", chain), zap.Error(err))
		}
		return 0, false
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		b.logger.Warn("Stored sequence is not a number", zap.String("value", raw))
		return 0, false
	}
	return seq, true
}

// RecordLoan stores an auxiliary loan record keyed by loan id.
func (b *Bookkeeper) RecordLoan(ctx context.Context, rec LoanRecord) {
	store := kv(b.Handle())
	if store == nil {
		return
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		b.logger.Warn("Failed to encode loan record", zap.Error(err))
		return
	}
	if err := store.Set(ctx, b.loanKey(rec.LoanID), string(raw), loanRecordTTL); err != nil {
		b.logger.Warn("Failed to record loan", zap.String("loanId", rec.LoanID), zap.Error(err))
	}
}

// Loan reads back a loan record.
func (b *Bookkeeper) Loan(ctx context.Context, loanID string) (LoanRecord, bool) {
	store := kv(b.Handle())
	if store == nil {
		return LoanRecord{}, false
	}
	raw, err := store.Get(ctx, b.loanKey(loanID))
	if err != nil {
		return LoanRecord{}, false
	}
	var rec LoanRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		b.logger.Warn("Failed to decode loan record", zap.String("loanId", loanID), zap.Error(err))
		return LoanRecord{}, false
	}
	return rec, true
}

// LoanObject returns the Sui loan object recorded for loanID.
func (b *Bookkeeper) LoanObject(ctx context.Context, loanID string) (string, bool) {
	rec, ok := b.Loan(ctx, loanID)
	if !ok || rec.LoanObject == "" {
		return "", false
	}
	return rec.LoanObject, true
}
