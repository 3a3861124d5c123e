package internal

import (
	"context"
	"fmt"
	"time"
)

// vaaID is the chain/emitter/sequence triple Wormhole uses to name a VAA.
func vaaID(att Attestation) string {
	return fmt.Sprintf("%d/%s/%d", uint16(att.EmitterChain), att.EmitterHex(), att.Sequence)
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
