package opstate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makerpnp/planner/internal/opstate"
	"github.com/makerpnp/planner/internal/planning"
)

func TestEligibleFromPendingReachesComplete(t *testing.T) {
	m := opstate.New(planning.OperationPending)
	status, err := m.Fire(opstate.EventEligible)
	require.NoError(t, err)
	assert.Equal(t, planning.OperationComplete, status)
}

func TestNotEligibleFromPendingStaysPending(t *testing.T) {
	m := opstate.New(planning.OperationPending)
	status, err := m.Fire(opstate.EventNotEligible)
	require.NoError(t, err)
	assert.Equal(t, planning.OperationPending, status)
}

func TestNotEligibleFromCompleteRevertsToPending(t *testing.T) {
	m := opstate.New(planning.OperationComplete)
	status, err := m.Fire(opstate.EventNotEligible)
	require.NoError(t, err)
	assert.Equal(t, planning.OperationPending, status)
}

func TestManualCompleteFromPending(t *testing.T) {
	m := opstate.New(planning.OperationPending)
	status, err := m.Fire(opstate.EventManualComplete)
	require.NoError(t, err)
	assert.Equal(t, planning.OperationComplete, status)
}

func TestResetFromIncompleteReturnsToPending(t *testing.T) {
	m := opstate.New(planning.OperationIncomplete)
	status, err := m.Fire(opstate.EventReset)
	require.NoError(t, err)
	assert.Equal(t, planning.OperationPending, status)
}

func TestResetFromCompleteReturnsToPending(t *testing.T) {
	m := opstate.New(planning.OperationComplete)
	status, err := m.Fire(opstate.EventReset)
	require.NoError(t, err)
	assert.Equal(t, planning.OperationPending, status)
}
