package dupefilter

import (
	"context"
	"strconv"
	"testing"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

func TestBloomSeenNeverFalseNegative(t *testing.T) {
	ctx := context.Background()
	b := NewBloom(newMemoryBits(1<<16), 5)

	req, _ := types.NewRequest("https://example.com/already-admitted")
	seen, err := b.Seen(ctx, req)
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if seen {
		t.Fatal("first admission should not be seen")
	}

	seen, err = b.Seen(ctx, req)
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if !seen {
		t.Error("a request already admitted must never report unseen (no false negatives)")
	}
}

func TestBloomReleaseIsNoOp(t *testing.T) {
	b := NewBloom(newMemoryBits(1<<10), 3)
	req, _ := types.NewRequest("https://example.com/x")
	if err := b.Release(context.Background(), req, "retry"); err != nil {
		t.Errorf("release should be a no-op, got error: %v", err)
	}
}

func TestBloomDistinctFingerprintsUsuallyDistinctBits(t *testing.T) {
	ctx := context.Background()
	b := NewBloom(newMemoryBits(1<<20), 7)

	falsePositives := 0
	const n = 200
	for i := 0; i < n; i++ {
		req, _ := types.NewRequest("https://example.com/item/" + strconv.Itoa(i))
		seen, err := b.Seen(ctx, req)
		if err != nil {
			t.Fatalf("seen: %v", err)
		}
		if seen {
			falsePositives++
		}
	}
	if falsePositives > n/10 {
		t.Errorf("unexpectedly high false-positive rate: %d/%d", falsePositives, n)
	}
}
