package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(symbol|strike|expiration|kind|proposed_at_unix_ms)
// Returns hex-encoded hash (64 characters). The same proposal always maps
// to the same ID, which doubles as the order idempotency scope.
func ComputeTradeID(symbol string, strike float64, expiration time.Time, kind string, proposedAt time.Time) string {
	data := fmt.Sprintf("%s|%.4f|%s|%s|%d",
		symbol,
		strike,
		expiration.UTC().Format("2006-01-02"),
		kind,
		proposedAt.UnixMilli(),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputePatternID computes a deterministic pattern ID for one dimension
// bucket at one detection time.
func ComputePatternID(dimension, bucket string, detectedAt time.Time) string {
	data := fmt.Sprintf("%s|%s|%d", dimension, bucket, detectedAt.UnixMilli())
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
