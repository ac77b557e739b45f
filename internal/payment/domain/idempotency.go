package domain

import (
	"strconv"
	"strings"
)

// maxIdempotencyKeyLen is the processor's documented key limit.
const maxIdempotencyKeyLen = 255

// BuildIdempotencyKey composes a processor idempotency key as
// {operationType}:{primaryId}:{secondaryId}[:amount], truncated to 255
// ASCII characters. Non-printable and non-ASCII runes are dropped so the
// key survives any transport the processor uses; parts left empty after
// filtering contribute no separator.
func BuildIdempotencyKey(operationType, primaryID, secondaryID string, extra ...string) string {
	parts := []string{operationType, primaryID, secondaryID}
	parts = append(parts, extra...)

	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		var b strings.Builder
		for _, r := range part {
			if r >= 32 && r < 127 {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			filtered = append(filtered, b.String())
		}
	}

	key := strings.Join(filtered, ":")
	if len(key) > maxIdempotencyKeyLen {
		key = key[:maxIdempotencyKeyLen]
	}
	return key
}

// CheckoutIdempotencyKey derives the key for one checkout attempt.
// attemptToken changes per attempt; paymentID and amount pin the key to
// the row and amount it was minted for.
func CheckoutIdempotencyKey(paymentID string, attemptToken string, amount int64) string {
	return BuildIdempotencyKey("checkout", paymentID, attemptToken, strconv.FormatInt(amount, 10))
}

// RefundIdempotencyKey derives the key for a refund from a stable refund
// id so retries of the same refund never double-refund.
func RefundIdempotencyKey(refundID string, paymentID string, amount int64) string {
	return BuildIdempotencyKey("refund", refundID, paymentID, strconv.FormatInt(amount, 10))
}
