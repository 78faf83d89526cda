package benchmarks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/guardline/patrolkit/pkg/patrol/record"
	"github.com/guardline/patrolkit/pkg/patrol/syncer"
)

// instantBackend accepts everything with no latency, so the benchmark
// measures engine and store overhead only.
type instantBackend struct{ next int }

func (b *instantBackend) SubmitTimeRecord(context.Context, *record.TimeRecord) (string, error) {
	b.next++
	return fmt.Sprintf("srv-%d", b.next), nil
}

func (b *instantBackend) SubmitVerification(context.Context, *record.Verification) (string, error) {
	b.next++
	return fmt.Sprintf("srv-%d", b.next), nil
}

// BenchmarkSyncAll measures a full drain of batches of increasing size.
func BenchmarkSyncAll(b *testing.B) {
	for _, n := range []int{10, 100} {
		b.Run(fmt.Sprintf("records-%d", n), func(b *testing.B) {
			ctx := context.Background()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				b.StopTimer()
				store := record.NewMemoryStore()
				for j := 0; j < n; j++ {
					if err := store.SaveVerification(ctx, record.NewVerification(j, time.Now(), benchCoordinate())); err != nil {
						b.Fatal(err)
					}
				}
				engine := syncer.New(store, &instantBackend{})
				b.StartTimer()

				if _, err := engine.SyncAll(ctx); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkSyncOne measures the single-record path.
func BenchmarkSyncOne(b *testing.B) {
	ctx := context.Background()
	store := record.NewMemoryStore()
	engine := syncer.New(store, &instantBackend{})

	recs := make([]*record.Verification, b.N)
	for i := 0; i < b.N; i++ {
		recs[i] = record.NewVerification(i, time.Now(), benchCoordinate())
		if err := store.SaveVerification(ctx, recs[i]); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.SyncOne(ctx, recs[i]); err != nil {
			b.Fatal(err)
		}
	}
}
