package bufferpool

import (
	"context"
	"encoding/binary"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novapool/internal/storage"
)

// Each worker owns an 8-byte counter slot in every page and bumps it while
// holding a pin. Pages churn through a pool much smaller than the working
// set, so every increment must survive eviction and reload.
func TestPool_ConcurrentFetchUnpin(t *testing.T) {
	const (
		workers = 4
		ops     = 500
	)
	pool, _ := newTestPool(t, workers)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var wg conc.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Go(func() {
			rng := rand.New(rand.NewPCG(uint64(w), 42))
			off := 64 + w*8
			for i := 0; i < ops; i++ {
				id := storage.PageID(rng.IntN(seededPages))
				page, err := pool.FetchPageWait(ctx, id)
				if err != nil {
					t.Errorf("worker %d fetch %d: %v", w, id, err)
					return
				}
				buf := page.Data()[off : off+8]
				binary.LittleEndian.PutUint64(buf, binary.LittleEndian.Uint64(buf)+1)
				if err := page.Unpin(true); err != nil {
					t.Errorf("worker %d unpin %d: %v", w, id, err)
					return
				}
			}
		})
	}
	wg.Wait()

	failed, err := pool.FlushAll()
	require.NoError(t, err)
	require.Empty(t, failed)

	st := pool.Stats()
	require.Zero(t, st.Pinned)
	require.Equal(t, uint64(workers*ops), st.Hits+st.Misses)

	for w := 0; w < workers; w++ {
		var total uint64
		off := 64 + w*8
		for id := storage.PageID(0); id < seededPages; id++ {
			page, err := pool.FetchPage(id)
			require.NoError(t, err)
			total += binary.LittleEndian.Uint64(page.Data()[off : off+8])
			require.NoError(t, page.Unpin(false))
		}
		require.Equal(t, uint64(ops), total, "worker %d lost updates", w)
	}
}
