package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChequeTransitions(t *testing.T) {
	assert.True(t, ChequeCreated.CanTransition(ChequeDeposited))
	assert.True(t, ChequeDeposited.CanTransition(ChequeCleared))
	assert.True(t, ChequeBounced.CanTransition(ChequeDeposited))
	assert.False(t, ChequeCreated.CanTransition(ChequeCleared))
	assert.False(t, ChequeCleared.CanTransition(ChequeBounced))
	assert.False(t, ChequeCancelled.CanTransition(ChequeCreated))
}

func TestDirectPairKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, DirectPairKey(3, 9), DirectPairKey(9, 3))
	assert.NotEqual(t, DirectPairKey(3, 9), SelfPairKey(3))
}

func TestAmountsMarshalAsNumbers(t *testing.T) {
	p := Payment{Amount: decimal.NewFromInt(2000)}
	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, float64(2000), out["amount"])
}

func TestRoleIsStaff(t *testing.T) {
	assert.True(t, RoleOwner.IsStaff())
	assert.True(t, RoleSupport.IsStaff())
	assert.False(t, RoleUser.IsStaff())
}
