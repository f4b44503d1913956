// Package task defines Banyan's task and execution-record domain model
// (spec.md §3) — the entities every other package operates on.
package task

import "time"

// Status is the lifecycle state of a Task (spec.md §3, §4.1).
type Status string

const (
	StatusInactive           Status = "inactive"
	StatusAvailable          Status = "available"
	StatusRunning            Status = "running"
	StatusPendingCancellation Status = "pending_cancellation"
	StatusCancelled          Status = "cancelled"
	StatusTerminated         Status = "terminated"
)

// IsTerminal reports whether the status is one the graph never leaves
// (cancelled/terminated are final; pending_cancellation still awaits a
// worker report or an availability-checker verdict).
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusTerminated:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the six defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusInactive, StatusAvailable, StatusRunning, StatusPendingCancellation, StatusCancelled, StatusTerminated:
		return true
	default:
		return false
	}
}

// CPUCores captures the fractional and whole-core CPU shape of a resource
// request (spec.md §3).
type CPUCores struct {
	Count   int     `json:"count,omitempty"`
	Percent float64 `json:"percent,omitempty"`
}

// RequestedResources is the resource envelope a task asks for.
type RequestedResources struct {
	CPUMemoryBytes          int64    `json:"cpu_memory_bytes,omitempty"`
	CPUCores                CPUCores `json:"cpu_cores,omitempty"`
	GPUCount                int      `json:"gpu_count,omitempty"`
	GPUMemoryBytes          int64    `json:"gpu_memory_bytes,omitempty"`
	GPUComputeCapabilityMajor int    `json:"gpu_compute_capability_major,omitempty"`
	GPUComputeCapabilityMinor int    `json:"gpu_compute_capability_minor,omitempty"`
}

// Task is Banyan's central entity (spec.md §3). A task without a Command is
// a "grouping" task — it exists only to wait on its parents and then release
// its own continuations.
type Task struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`

	// Command is the shell string to execute. Its absence marks a grouping
	// task (spec.md I8).
	Command string `json:"command,omitempty"`

	State Status `json:"state"`

	// Continuations is an ordered, set-semantic (I3) sequence of child task
	// ids, capped at config.MaxContSize entries.
	Continuations []string `json:"continuations,omitempty"`

	// ParentIDs back-links every task that currently lists this task as a
	// continuation. It is not part of spec.md's documented schema; the
	// continuation engine maintains it internally so Cancel's "remove
	// task.id from all parents' continuations lists" step (spec.md §4.2)
	// does not require a store-wide scan.
	ParentIDs []string `json:"parent_ids,omitempty"`

	PendingDependencyCount int `json:"pending_dependency_count"`

	RequestedResources RequestedResources `json:"requested_resources,omitempty"`

	EstimatedRuntimeMs int64 `json:"estimated_runtime_ms,omitempty"`
	MaxShutdownTimeMs  int64 `json:"max_shutdown_time_ms,omitempty"`

	MaxAttemptCount int `json:"max_attempt_count"`
	AttemptCount    int `json:"attempt_count"`

	ExecutionDataID string `json:"execution_data_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExitStatus is the outcome a worker reports for a completed attempt.
type ExitStatus string

const (
	ExitSuccess ExitStatus = "success"
	ExitFailure ExitStatus = "failure"
)

// ResourceUsage is the latest resource-usage snapshot reported by a worker
// mid-attempt (SPEC_FULL.md §4.1).
type ResourceUsage struct {
	MemoryBytes int64     `json:"memory,omitempty"`
	CPUUsage    float64   `json:"cpu_usage,omitempty"`
	GPUUsage    float64   `json:"gpu_usage,omitempty"`
	LastUpdate  time.Time `json:"last_update,omitempty"`
}

// ExecutionRecord is one attempt at running a task's command (spec.md §3).
type ExecutionRecord struct {
	ID            string     `json:"id"`
	TaskID        string     `json:"task_id"`
	AttemptCount  int        `json:"attempt_count"`
	WorkerID      string     `json:"worker_id"`
	Token         string     `json:"token"`
	TimeStarted   time.Time  `json:"time_started"`
	TimeTerminated *time.Time `json:"time_terminated,omitempty"`
	ExitStatus    ExitStatus `json:"exit_status,omitempty"`

	Usage ResourceUsage `json:"usage,omitempty"`
}

// Role identifies which side of the API is issuing a request (spec.md §2
// identity & role store, §4.1 role-scoped transition tables).
type Role string

const (
	RoleProvider Role = "provider"
	RoleWorker   Role = "worker"
)

// String satisfies fmt.Stringer, following the ComponentRole.String()
// pattern from the teacher example's components/common.go.
func (r Role) String() string { return string(r) }

// ParseRole parses a role string, returning "" for anything unrecognized —
// mirroring ParseComponentRole's permissive-but-explicit style.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleProvider, RoleWorker:
		return Role(s)
	default:
		return ""
	}
}

// WorkerPermission is one capability a registered worker may hold.
type WorkerPermission string

const (
	PermissionClaim  WorkerPermission = "claim"
	PermissionReport WorkerPermission = "report"
)

// Address is a worker's control-channel endpoint.
type Address struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// RegisteredWorker is a worker endpoint the notifier can push control
// frames to (spec.md §3, §4.6).
type RegisteredWorker struct {
	WorkerID    string             `json:"worker_id"`
	Address     Address            `json:"address"`
	Permissions []WorkerPermission `json:"permissions,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// HasPermission reports whether w is allowed to perform the given action.
func (w RegisteredWorker) HasPermission(p WorkerPermission) bool {
	for _, got := range w.Permissions {
		if got == p {
			return true
		}
	}
	return false
}

// User is an identity-store entry mapping a request token to a role
// (spec.md §3).
type User struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Role          Role      `json:"role"`
	RequestToken  string    `json:"-"` // hashed at rest; never serialized
	ResponseToken string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}
