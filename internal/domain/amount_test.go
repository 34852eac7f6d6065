package domain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount("400000000000000")
	require.NoError(t, err)
	assert.Equal(t, "400000000000000", v.String())

	_, err = ParseAmount("-1")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = ParseAmount("abc")
	assert.ErrorIs(t, err, ErrInvalidInput)

	tooBig := new(big.Int).Add(MaxPrice, big.NewInt(1))
	_, err = ParseAmount(tooBig.String())
	assert.ErrorIs(t, err, ErrInvalidInput)

	v, err = ParseAmount(MaxPrice.String())
	require.NoError(t, err)
	assert.Zero(t, v.Cmp(MaxPrice))
}

func TestFeeFor(t *testing.T) {
	assert.Equal(t, "0", FeeFor(big.NewInt(1000), 0).String())
	assert.Equal(t, "25", FeeFor(big.NewInt(1000), 250).String())
	assert.Equal(t, "0", FeeFor(big.NewInt(39), 250).String())
	assert.Equal(t, "0", FeeFor(nil, 250).String())
}

func TestListingFilterMatch(t *testing.T) {
	col := uint64(1)
	yes := true
	l := Listing{CollectionID: 1, Status: ListingStatusForSale}

	assert.True(t, ListingFilter{}.Match(l))
	assert.True(t, ListingFilter{CollectionID: &col, ForSale: &yes}.Match(l))

	other := uint64(2)
	assert.False(t, ListingFilter{CollectionID: &other}.Match(l))

	l.Status = ListingStatusSold
	assert.False(t, ListingFilter{ForSale: &yes}.Match(l))
}

func TestCloneDoesNotAlias(t *testing.T) {
	l := Listing{Price: big.NewInt(5)}
	c := l.Clone()
	c.Price.SetInt64(9)
	assert.Equal(t, int64(5), l.Price.Int64())
}
