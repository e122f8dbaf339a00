package treasury

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBucketCurrency(t *testing.T) {
	tests := []struct {
		bucket Bucket
		want   Currency
	}{
		{BucketRewards, CurrencyToken},
		{BucketLiquidity, CurrencyToken},
		{BucketMarketing, CurrencyStable},
		{BucketTeam, CurrencyStable},
		{BucketOperations, CurrencyStable},
	}

	for _, tt := range tests {
		t.Run(string(tt.bucket), func(t *testing.T) {
			c, ok := BucketCurrency(tt.bucket)
			assert.True(t, ok)
			assert.Equal(t, tt.want, c)
		})
	}

	_, ok := BucketCurrency("staking")
	assert.False(t, ok)

	assert.Len(t, Buckets(), len(bucketCurrency))
}

func TestOutstanding(t *testing.T) {
	b := BucketState{Allocated: big.NewInt(100), Spent: big.NewInt(30)}
	assert.Equal(t, int64(70), b.Outstanding().Int64())

	fresh := BucketState{Allocated: big.NewInt(0), Spent: big.NewInt(0)}
	assert.Equal(t, int64(0), fresh.Outstanding().Int64())
}

func TestUnallocated(t *testing.T) {
	state := State{
		TokenBalance:  big.NewInt(1000),
		StableBalance: big.NewInt(500),
	}
	buckets := []BucketState{
		{Bucket: BucketRewards, Currency: CurrencyToken, Allocated: big.NewInt(300), Spent: big.NewInt(100)},
		{Bucket: BucketLiquidity, Currency: CurrencyToken, Allocated: big.NewInt(50), Spent: big.NewInt(50)},
		{Bucket: BucketTeam, Currency: CurrencyStable, Allocated: big.NewInt(400), Spent: big.NewInt(0)},
	}

	// 1000 - (300-100) - (50-50) = 800; spent allocations free their reservation
	assert.Equal(t, int64(800), Unallocated(state, buckets, CurrencyToken).Int64())
	// 500 - 400 = 100; token buckets never count against stable
	assert.Equal(t, int64(100), Unallocated(state, buckets, CurrencyStable).Int64())
}

func TestStateBalance(t *testing.T) {
	s := State{TokenBalance: big.NewInt(7), StableBalance: big.NewInt(9)}
	assert.Equal(t, int64(7), s.Balance(CurrencyToken).Int64())
	assert.Equal(t, int64(9), s.Balance(CurrencyStable).Int64())
}
