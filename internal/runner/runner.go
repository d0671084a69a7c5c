package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"localtrainer/internal/logger"
)

const (
	// jobNamePrefix is prepended to every generated job name.
	jobNamePrefix = "local-train-"

	// DefaultWorkDirName is the per-job artifact root created under the
	// current working directory when no work dir is configured.
	DefaultWorkDirName = "localtrainer_jobs"

	// DefaultGracePeriod is the SIGTERM-to-SIGKILL window on delete.
	DefaultGracePeriod = 2 * time.Second

	// DefaultStep is the log map key prefix when none is given.
	DefaultStep = "node"
)

// Config holds the runner's tunables. Zero values select defaults.
type Config struct {
	// WorkDir is the root under which each job gets its own directory.
	WorkDir string
	// Python is the interpreter executable for script and launcher
	// command rewrites.
	Python string
	// GracePeriod is how long delete waits between the graceful signal
	// and the forceful kill.
	GracePeriod time.Duration
}

// Runner launches, supervises, and tears down sets of cooperating OS
// processes that emulate multi-node distributed training jobs on the
// local machine. State lives entirely in memory; jobs do not survive a
// process restart.
type Runner struct {
	cfg      Config
	registry *Registry
	builder  CommandBuilder
	log      *slog.Logger
	tracer   trace.Tracer
	metrics  *runnerMetrics
}

// New creates a Runner and its work-dir root. Multiple runners can coexist
// in one process; each owns its own registry.
func New(cfg Config, log *slog.Logger) (*Runner, error) {
	if cfg.WorkDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		cfg.WorkDir = filepath.Join(cwd, DefaultWorkDirName)
	}
	if cfg.Python == "" {
		cfg.Python = "python"
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if log == nil {
		log = slog.Default()
	}

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir %s: %w", cfg.WorkDir, err)
	}

	metrics, err := newRunnerMetrics(otel.Meter("localtrainer/runner"))
	if err != nil {
		return nil, err
	}

	return &Runner{
		cfg:      cfg,
		registry: NewRegistry(),
		builder:  CommandBuilder{Python: cfg.Python},
		log:      log,
		tracer:   otel.Tracer("localtrainer/runner"),
		metrics:  metrics,
	}, nil
}

// CreateJobOptions are the caller-supplied parameters for a new job.
type CreateJobOptions struct {
	// Image is accepted for interface parity with container-backed
	// runners and is recorded but never used: node processes run directly
	// on the host.
	Image       string
	Entrypoint  []string
	Command     []string
	NumNodes    int
	Framework   Framework
	RuntimeName string
}

// CreateJob validates the framework, generates a job name, creates the job
// directory, and spawns one node process per rank in increasing rank order.
// It returns once every node has been asked to start.
//
// If a rank fails to spawn, earlier ranks are not rolled back: the partial
// job stays registered so its processes remain inspectable and deletable,
// and the spawn error is returned.
func (r *Runner) CreateJob(ctx context.Context, opts CreateJobOptions) (string, error) {
	if !frameworkSupported(opts.Framework) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFramework, opts.Framework)
	}
	if opts.NumNodes <= 0 {
		opts.NumNodes = 1
	}

	name := jobNamePrefix + newJobSuffix()
	ctx = logger.WithJobName(ctx, name)
	log := logger.FromContext(ctx, r.log)

	ctx, span := r.tracer.Start(ctx, "runner.create_job", trace.WithAttributes(
		attribute.String("job.name", name),
		attribute.String("job.framework", string(opts.Framework)),
		attribute.Int("job.num_nodes", opts.NumNodes),
	))
	defer span.End()

	dir := filepath.Join(r.cfg.WorkDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create job dir %s: %w", dir, err)
	}

	job := &Job{
		Name:              name,
		Image:             opts.Image,
		RuntimeName:       opts.RuntimeName,
		Framework:         opts.Framework,
		CreationTimestamp: time.Now(),
		Dir:               dir,
		Nodes:             make([]*NodeProcess, 0, opts.NumNodes),
	}

	for rank := 0; rank < opts.NumNodes; rank++ {
		argv, env := r.builder.Build(NodeCommand{
			JobName:    name,
			Entrypoint: opts.Entrypoint,
			Command:    opts.Command,
			Framework:  opts.Framework,
			NumNodes:   opts.NumNodes,
			Rank:       rank,
		})

		log.Info("starting node process",
			"rank", rank, "command", strings.Join(firstN(argv, 3), " "))

		p, err := SpawnNode(dir, rank, argv, env)
		if err != nil {
			span.RecordError(err)
			// Register what did start so it stays deletable.
			r.registry.Insert(job)
			return "", fmt.Errorf("job %s: %w", name, err)
		}
		job.Nodes = append(job.Nodes, p)
	}

	r.registry.Insert(job)
	r.metrics.recordCreate(ctx, opts.Framework, opts.NumNodes)
	log.Info("job created", "nodes", opts.NumNodes, "dir", dir)

	return name, nil
}

// GetJob returns a view of the named job with freshly derived statuses.
func (r *Runner) GetJob(name string) (JobInfo, error) {
	job, ok := r.registry.Get(name)
	if !ok {
		return JobInfo{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return snapshotJob(job), nil
}

// ListJobs returns views of all jobs, optionally filtered by runtime tag.
// Statuses are re-derived for every listed job.
func (r *Runner) ListJobs(runtimeName string) []JobInfo {
	var infos []JobInfo
	for _, job := range r.registry.List() {
		if runtimeName != "" && job.RuntimeName != runtimeName {
			continue
		}
		infos = append(infos, snapshotJob(job))
	}
	return infos
}

// LogOptions selects what GetJobLogs returns and how.
type LogOptions struct {
	// Follow switches to live tailing: the call blocks until the node
	// process exits and all buffered output has been delivered.
	Follow bool
	// Step is the log map key prefix; defaults to DefaultStep.
	Step string
	// NodeRank selects the node whose streams are read.
	NodeRank int
	// Sink, if set, receives each line as it is emitted in follow mode.
	Sink func(line string)
}

// GetJobLogs returns captured output for one node keyed by "{step}-{rank}".
// Non-follow mode reads both capture files fully; follow mode streams both
// concurrently and blocks until the process is done.
func (r *Runner) GetJobLogs(ctx context.Context, name string, opts LogOptions) (map[string]string, error) {
	job, ok := r.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if opts.NodeRank < 0 || opts.NodeRank >= len(job.Nodes) {
		return nil, fmt.Errorf("%w: rank %d in job %s", ErrNodeRankNotFound, opts.NodeRank, name)
	}
	if opts.Step == "" {
		opts.Step = DefaultStep
	}

	key := fmt.Sprintf("%s-%d", opts.Step, opts.NodeRank)
	node := job.Nodes[opts.NodeRank]

	if !opts.Follow {
		return map[string]string{key: readNodeLogs(node)}, nil
	}

	text, err := followNodeLogs(ctx, node, opts.Sink)
	return map[string]string{key: text}, err
}

// DeleteJob terminates every node process still running (graceful signal
// to the process group, grace window, forceful kill) and removes the job
// from the registry. Log files and the job directory are left on disk.
// Removal happens regardless of how many processes were already dead.
func (r *Runner) DeleteJob(ctx context.Context, name string) error {
	ctx, span := r.tracer.Start(ctx, "runner.delete_job",
		trace.WithAttributes(attribute.String("job.name", name)))
	defer span.End()

	job, ok := r.registry.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	log := logger.FromContext(logger.WithJobName(ctx, name), r.log)

	for _, node := range job.Nodes {
		node.Terminate(r.cfg.GracePeriod)
	}

	r.registry.Remove(name)
	r.metrics.recordDelete(ctx)
	log.Info("job deleted", "nodes", len(job.Nodes))

	return nil
}

// WorkDir returns the resolved artifact root.
func (r *Runner) WorkDir() string {
	return r.cfg.WorkDir
}

// snapshotJob derives a point-in-time view: node statuses are polled and
// the job status aggregated from them on every call.
func snapshotJob(job *Job) JobInfo {
	nodes := make([]NodeInfo, len(job.Nodes))
	statuses := make([]NodeStatus, len(job.Nodes))
	for i, node := range job.Nodes {
		status := node.Status()
		statuses[i] = status
		nodes[i] = NodeInfo{
			Name:   fmt.Sprintf("%s-%d", job.Name, node.Rank),
			Rank:   node.Rank,
			Status: status,
		}
	}

	return JobInfo{
		Name:              job.Name,
		RuntimeName:       job.RuntimeName,
		Framework:         job.Framework,
		CreationTimestamp: job.CreationTimestamp,
		Status:            aggregateStatus(statuses),
		Nodes:             nodes,
	}
}

// newJobSuffix returns a short random identifier for job names.
func newJobSuffix() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

func firstN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
