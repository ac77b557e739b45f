package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildIdempotencyKey_Format(t *testing.T) {
	key := BuildIdempotencyKey("checkout", "12345", "attempt1", "2000")
	assert.Equal(t, "checkout:12345:attempt1:2000", key)
}

func TestBuildIdempotencyKey_SkipsEmptyParts(t *testing.T) {
	key := BuildIdempotencyKey("refund", "r1", "")
	assert.Equal(t, "refund:r1", key)
}

func TestBuildIdempotencyKey_DropsNonASCII(t *testing.T) {
	key := BuildIdempotencyKey("checkout", "pägé", "tok")
	assert.Equal(t, "checkout:pg:tok", key)
}

func TestBuildIdempotencyKey_NoSeparatorForFilteredOutParts(t *testing.T) {
	// A middle part made entirely of non-ASCII runes filters to nothing
	// and must not leave a dangling separator behind.
	key := BuildIdempotencyKey("checkout", "ніні", "tok")
	assert.Equal(t, "checkout:tok", key)
}

func TestBuildIdempotencyKey_DropsControlCharacters(t *testing.T) {
	key := BuildIdempotencyKey("checkout", "id\n1", "to\tk\x7f")
	assert.Equal(t, "checkout:id1:tok", key)
}

func TestBuildIdempotencyKey_TruncatesTo255(t *testing.T) {
	long := strings.Repeat("x", 300)
	key := BuildIdempotencyKey("checkout", long, "tok")
	assert.Len(t, key, 255)
	assert.True(t, strings.HasPrefix(key, "checkout:"))
}

func TestCheckoutIdempotencyKey_PinsAmount(t *testing.T) {
	a := CheckoutIdempotencyKey("100", "tok", 2000)
	b := CheckoutIdempotencyKey("100", "tok", 2500)
	assert.NotEqual(t, a, b)
	assert.Equal(t, "checkout:100:tok:2000", a)
}

func TestRefundIdempotencyKey_StablePerRefundID(t *testing.T) {
	a := RefundIdempotencyKey("r9", "100", 500)
	b := RefundIdempotencyKey("r9", "100", 500)
	assert.Equal(t, a, b)
	assert.Equal(t, "refund:r9:100:500", a)
}
