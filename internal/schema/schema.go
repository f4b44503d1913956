// Package schema holds the request DTOs every httpapi handler binds into,
// and the struct-tag-driven shape validation layer spec.md's Design Notes
// §9 calls for — "a declarative schema object plus an interpreter applied
// at the store boundary" standing in for the original Eve/MongoEngine
// framework's field-level schema (readonly, createonly,
// mutable_iff_inactive, creatable_iff_inactive, allows_duplicates,
// virtual_resource).
//
// This package only covers the struct-tag-expressible half: required
// fields, string/slice length bounds, enum membership. The cross-field,
// cross-document invariants (I1–I8) have no struct-tag representation and
// stay where they're enforced today — internal/statemachine and
// internal/continuation.
package schema

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/banyan/banyan/internal/bnerr"
)

var v = validator.New()

// Validate runs struct-tag validation over req and translates any failure
// into a bnerr.Error carrying one issue per offending field, the shape
// the {status, issues} envelope expects.
func Validate(req any) error {
	if err := v.Struct(req); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return bnerr.Validation(bnerr.SubUnknownField, err.Error())
		}
		be := bnerr.New(bnerr.KindValidationFailed, "request failed validation")
		for _, fe := range verrs {
			field := strings.ToLower(fe.Field())
			be = be.WithIssue(field, fmt.Sprintf("failed %q constraint", fe.Tag()))
		}
		return be
	}
	return nil
}

// CreateTaskRequest is the POST /tasks body.
type CreateTaskRequest struct {
	Name               string                 `json:"name" validate:"omitempty,max=256"`
	Command            string                 `json:"command" validate:"omitempty,max=65536"`
	State              string                 `json:"state" validate:"omitempty,oneof=inactive available"`
	Continuations      []string               `json:"continuations" validate:"max=1024,dive,required"`
	RequestedResources RequestedResourcesDTO  `json:"requested_resources"`
	EstimatedRuntimeMs int64                  `json:"estimated_runtime_ms" validate:"omitempty,min=0"`
	MaxShutdownTimeMs  int64                  `json:"max_shutdown_time_ms" validate:"omitempty,min=0"`
	MaxAttemptCount    int                    `json:"max_attempt_count" validate:"omitempty,min=0"`
}

// RequestedResourcesDTO mirrors task.RequestedResources for request binding.
type RequestedResourcesDTO struct {
	CPUMemoryBytes            int64   `json:"cpu_memory_bytes" validate:"omitempty,min=0"`
	CPUCoresCount             int     `json:"cpu_cores_count" validate:"omitempty,min=0"`
	CPUCoresPercent           float64 `json:"cpu_cores_percent" validate:"omitempty,min=0"`
	GPUCount                  int     `json:"gpu_count" validate:"omitempty,min=0"`
	GPUMemoryBytes            int64   `json:"gpu_memory_bytes" validate:"omitempty,min=0"`
	GPUComputeCapabilityMajor int     `json:"gpu_compute_capability_major" validate:"omitempty,min=0"`
	GPUComputeCapabilityMinor int     `json:"gpu_compute_capability_minor" validate:"omitempty,min=0"`
}

// ContinuationUpdateRequest is one outer entry of a resource-level bulk
// add/remove_continuations payload.
type ContinuationUpdateRequest struct {
	Targets []string `json:"targets" validate:"required,min=1,dive,required"`
	Values  []string `json:"values" validate:"max=1024,dive,required"`
}

// RegisterWorkerRequest is the POST /registered_workers body.
type RegisterWorkerRequest struct {
	Address struct {
		IP   string `json:"ip" validate:"required"`
		Port int    `json:"port" validate:"required,min=1,max=65535"`
	} `json:"address" validate:"required"`
	Permissions []string `json:"permissions" validate:"omitempty,dive,oneof=claim report"`
}

// CreateUserRequest is banyanctl's add-user payload shape, reused by the
// optional dashboard session endpoint's user-lookup DTOs.
type CreateUserRequest struct {
	Name string `json:"name" validate:"required,max=128"`
	Role string `json:"role" validate:"required,oneof=provider worker"`
}
