// Package runner implements a local process-based distributed job runner.
// It emulates a multi-node training job by spawning one OS process per node
// rank on the local machine, wiring up the distributed-training environment
// each rank expects, and supervising the set until deletion.
package runner

import "time"

// Framework identifies the distributed-training framework a job declares.
type Framework string

const (
	FrameworkTorch     Framework = "torch"
	FrameworkTorchTune Framework = "torchtune"
)

// frameworkSupported reports whether the process runner can launch jobs
// for the given framework.
func frameworkSupported(f Framework) bool {
	return f == FrameworkTorch || f == FrameworkTorchTune
}

// NodeStatus is the state of a single node process, derived by polling.
type NodeStatus string

const (
	NodeRunning NodeStatus = "running"
	NodeExited  NodeStatus = "exited"
	NodeFailed  NodeStatus = "failed"
)

// JobStatus is the aggregate state of a job across its node processes.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is the registry record for one distributed training job. The Nodes
// slice is ordered by rank and its length is fixed at creation.
type Job struct {
	Name              string
	Image             string
	RuntimeName       string
	Framework         Framework
	CreationTimestamp time.Time
	Dir               string
	Nodes             []*NodeProcess
}

// NodeInfo is a point-in-time view of one node process.
type NodeInfo struct {
	Name   string
	Rank   int
	Status NodeStatus
}

// JobInfo is a point-in-time view of a job with freshly derived statuses.
type JobInfo struct {
	Name              string
	RuntimeName       string
	Framework         Framework
	CreationTimestamp time.Time
	Status            JobStatus
	Nodes             []NodeInfo
}

// aggregateStatus derives the job status from per-node statuses.
// Failure dominates running, running dominates success: one failed rank
// fails the whole job, and success requires every rank to have exited
// cleanly. An empty node list reports pending.
func aggregateStatus(statuses []NodeStatus) JobStatus {
	if len(statuses) == 0 {
		return JobPending
	}

	running := false
	allExited := true
	for _, s := range statuses {
		switch s {
		case NodeFailed:
			return JobFailed
		case NodeRunning:
			running = true
			allExited = false
		case NodeExited:
			// keeps allExited true
		default:
			allExited = false
		}
	}

	if running {
		return JobRunning
	}
	if allExited {
		return JobSucceeded
	}
	return JobPending
}
