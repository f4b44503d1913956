package vresource

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banyan/banyan/internal/continuation"
)

func TestNormalizeItemLevelWrapsSingleTarget(t *testing.T) {
	updates := NormalizeItemLevel("t1", []string{"c1", "c2"})
	require.Len(t, updates, 1)
	require.Equal(t, []string{"t1"}, updates[0].Targets)
	require.Equal(t, []string{"c1", "c2"}, updates[0].Values)
}

func TestValidateShapeRejectsEmptyTargets(t *testing.T) {
	err := ValidateShape([]continuation.ContinuationUpdate{{Targets: nil, Values: []string{"c1"}}})
	require.Error(t, err)
}

func TestValidateShapeAcceptsWellFormedEntries(t *testing.T) {
	err := ValidateShape([]continuation.ContinuationUpdate{{Targets: []string{"t1"}, Values: []string{"c1"}}})
	require.NoError(t, err)
}

func TestSplitReportsNoVirtualKeysForPurePhysicalPatch(t *testing.T) {
	p := PatchPayload{State: "available", Name: "renamed"}
	physical, hasVirtual := p.Split()
	require.False(t, hasVirtual)
	require.Equal(t, "available", physical.State)
	require.Equal(t, "renamed", physical.Name)
}

func TestSplitDetectsEmbeddedAddContinuations(t *testing.T) {
	p := PatchPayload{AddContinuations: []string{"c1"}}
	_, hasVirtual := p.Split()
	require.True(t, hasVirtual)
}

func TestSplitDetectsEmbeddedExecutionDataUpdate(t *testing.T) {
	p := PatchPayload{State: "terminated", UpdateExecutionData: &ExecutionDataUpdate{Token: "tok", ExitStatus: "success"}}
	physical, hasVirtual := p.Split()
	require.True(t, hasVirtual)
	require.Equal(t, "terminated", physical.State)
	require.Nil(t, physical.UpdateExecutionData)
}
