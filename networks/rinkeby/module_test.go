package rinkeby_test

import (
	"testing"

	"github.com/XavierBriggs/Tyche/networks/rinkeby"
	"github.com/XavierBriggs/Tyche/pkg/testutil"
	"github.com/stretchr/testify/assert"
)

func TestModule(t *testing.T) {
	m := rinkeby.NewModule(1234)

	assert.Equal(t, "rinkeby", m.GetName())
	assert.Equal(t, int64(4), m.GetChainID())
	assert.False(t, m.IsDevelopment())
	assert.Equal(t, uint16(6), m.GetBlockConfirmations())
	assert.Equal(t, "0x6168499c0cFfCaCD319c818142124B7A15E857ab", m.GetCoordinatorAddress())
	assert.Equal(t, uint64(1234), m.GetSubscriptionID())
	assert.True(t, m.GetEntranceFee().Equal(testutil.Amount("0.01")))

	assert.NoError(t, m.ValidateParticipant(testutil.PlayerD))
	assert.Error(t, m.ValidateParticipant("bob"))
}
