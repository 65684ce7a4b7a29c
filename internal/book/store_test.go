package book

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prem-prasad1710/bookd/internal/domain"
)

func storedBook(venue domain.Venue, symbol string, ts int64, bestBid float64) domain.Orderbook {
	return domain.Orderbook{
		Symbol:    symbol,
		Venue:     venue,
		Timestamp: ts,
		Bids:      []domain.BookLevel{{Price: bestBid, Quantity: 1, Total: 1}},
		Asks:      []domain.BookLevel{{Price: bestBid + 1, Quantity: 1, Total: 1}},
	}
}

func TestStorePutGet(t *testing.T) {
	s := NewStore()

	_, err := s.Get(domain.VenueOKX, "BTC-USDT")
	assert.ErrorIs(t, err, domain.ErrNoBookData)

	require.True(t, s.Put(storedBook(domain.VenueOKX, "BTC-USDT", 1000, 100)))

	got, err := s.Get(domain.VenueOKX, "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.Bids[0].Price)
	assert.Equal(t, 1, s.Len())

	// Same symbol on another venue is a distinct key.
	_, err = s.Get(domain.VenueBybit, "BTC-USDT")
	assert.ErrorIs(t, err, domain.ErrNoBookData)
}

func TestStoreLastWriteWins(t *testing.T) {
	s := NewStore()

	require.True(t, s.Put(storedBook(domain.VenueOKX, "BTC-USDT", 2000, 100)))
	// Older timestamp still replaces by default.
	require.True(t, s.Put(storedBook(domain.VenueOKX, "BTC-USDT", 1000, 99)))

	got, err := s.Get(domain.VenueOKX, "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.Timestamp)
	assert.Equal(t, 99.0, got.Bids[0].Price)
}

func TestStoreRejectStale(t *testing.T) {
	s := NewStore()
	s.SetRejectStale(true)

	require.True(t, s.Put(storedBook(domain.VenueOKX, "BTC-USDT", 2000, 100)))
	assert.False(t, s.Put(storedBook(domain.VenueOKX, "BTC-USDT", 1000, 99)))

	got, err := s.Get(domain.VenueOKX, "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), got.Timestamp)

	// Equal timestamps replace (only strictly older writes are rejected).
	assert.True(t, s.Put(storedBook(domain.VenueOKX, "BTC-USDT", 2000, 101)))
	got, err = s.Get(domain.VenueOKX, "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, 101.0, got.Bids[0].Price)
}

func TestStoreDelete(t *testing.T) {
	s := NewStore()
	s.Put(storedBook(domain.VenueDeribit, "BTC-PERPETUAL", 1, 100))

	s.Delete(domain.VenueDeribit, "BTC-PERPETUAL")
	_, err := s.Get(domain.VenueDeribit, "BTC-PERPETUAL")
	assert.ErrorIs(t, err, domain.ErrNoBookData)
	assert.Equal(t, 0, s.Len())

	// Deleting again is harmless.
	s.Delete(domain.VenueDeribit, "BTC-PERPETUAL")
}

func TestStoreKeys(t *testing.T) {
	s := NewStore()
	s.Put(storedBook(domain.VenueOKX, "BTC-USDT", 1, 100))
	s.Put(storedBook(domain.VenueBybit, "ETHUSDT", 1, 3000))

	keys := s.Keys()
	assert.Len(t, keys, 2)
	assert.Contains(t, keys, domain.BookKey{Venue: domain.VenueOKX, Symbol: "BTC-USDT"})
	assert.Contains(t, keys, domain.BookKey{Venue: domain.VenueBybit, Symbol: "ETHUSDT"})
}

// Readers must always observe a fully formed book while a writer is
// replacing it.
func TestStoreConcurrentReadWrite(t *testing.T) {
	s := NewStore()
	s.Put(storedBook(domain.VenueOKX, "BTC-USDT", 0, 100))

	const writes = 500
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := int64(1); i <= writes; i++ {
			s.Put(storedBook(domain.VenueOKX, "BTC-USDT", i, 100+float64(i)))
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < writes; i++ {
				got, err := s.Get(domain.VenueOKX, "BTC-USDT")
				if err != nil {
					t.Errorf("get: %v", err)
					return
				}
				// Bid and ask always come from the same write.
				if got.Asks[0].Price-got.Bids[0].Price != 1 {
					t.Errorf("torn read: bid %v ask %v", got.Bids[0].Price, got.Asks[0].Price)
					return
				}
			}
		}()
	}

	wg.Wait()
}
