// Package vresource implements the virtual-resource router of spec.md
// §4.4: normalizing both resource-level and item-level request shapes for
// add_continuations, remove_continuations, and update_execution_data into
// the single bulk form the continuation and execution-record engines
// consume, and splitting embedded virtual-resource keys out of a
// PATCH /tasks/{id} payload before the physical update runs.
package vresource

import (
	"strconv"

	"github.com/banyan/banyan/internal/bnerr"
	"github.com/banyan/banyan/internal/continuation"
)

// Kind identifies one of the three virtual resources rooted at /tasks.
type Kind string

const (
	KindAddContinuations    Kind = "add_continuations"
	KindRemoveContinuations Kind = "remove_continuations"
	KindUpdateExecutionData Kind = "update_execution_data"
)

// ExecutionDataUpdate is the item-level payload of update_execution_data:
// either a claim-time worker id, a terminate-time report, or a resource-
// usage sample — the handler distinguishes by which fields are set.
type ExecutionDataUpdate struct {
	Worker         string  `json:"worker,omitempty" validate:"omitempty"`
	Token          string  `json:"token,omitempty" validate:"omitempty"`
	ExitStatus     string  `json:"exit_status,omitempty" validate:"omitempty,oneof=success failure"`
	TimeTerminated string  `json:"time_terminated,omitempty" validate:"omitempty"`
	MemoryBytes    int64   `json:"memory,omitempty" validate:"omitempty,min=0"`
	CPUUsage       float64 `json:"cpu_usage,omitempty" validate:"omitempty,min=0"`
	GPUUsage       float64 `json:"gpu_usage,omitempty" validate:"omitempty,min=0"`
}

// NormalizeItemLevel treats a single item-level values payload as
// spec.md's `[{targets: [id], values: payload}]` — the one normalization
// rule shared by add_continuations and remove_continuations at the
// /tasks/{id}/<res> and embedded-PATCH granularities.
func NormalizeItemLevel(taskID string, values []string) []continuation.ContinuationUpdate {
	return []continuation.ContinuationUpdate{{Targets: []string{taskID}, Values: values}}
}

// ValidateShape enforces the {targets, values} key set and non-empty
// targets on every outer entry of a resource-level payload, ahead of the
// resource-specific validators in continuation.Engine.
func ValidateShape(updates []continuation.ContinuationUpdate) error {
	for i, u := range updates {
		if len(u.Targets) == 0 {
			return bnerr.Validation(bnerr.SubUnknownField, "update entry has no targets").
				WithIssue("index", strconv.Itoa(i))
		}
	}
	return nil
}

// PatchPayload is the raw decoded body of PATCH /tasks/{id}: physical
// fields plus the three virtual-resource keys it may embed. The validate
// tags are httpapi's struct-tag shape-validation layer (SPEC_FULL.md
// §2.3); cross-field invariants still live in statemachine/continuation.
type PatchPayload struct {
	State               string               `json:"state,omitempty" validate:"omitempty,oneof=inactive available running pending_cancellation cancelled terminated"`
	Name                string               `json:"name,omitempty" validate:"omitempty,max=256"`
	AddContinuations    []string             `json:"add_continuations,omitempty" validate:"omitempty,max=1024,dive,required"`
	RemoveContinuations []string             `json:"remove_continuations,omitempty" validate:"omitempty,max=1024,dive,required"`
	UpdateExecutionData *ExecutionDataUpdate `json:"update_execution_data,omitempty"`
}

// Split separates the physical-field half of a PATCH payload from its
// embedded virtual-resource keys (spec.md §4.4 "Embedding"), so the
// coordinator can apply the physical update first and run the item-level
// virtual handlers against the same task afterward, under the same lock.
func (p PatchPayload) Split() (physical PatchPayload, hasVirtual bool) {
	physical = PatchPayload{State: p.State, Name: p.Name}
	hasVirtual = len(p.AddContinuations) > 0 || len(p.RemoveContinuations) > 0 || p.UpdateExecutionData != nil
	return physical, hasVirtual
}
