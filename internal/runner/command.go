package runner

import (
	"strconv"
	"strings"
)

const (
	masterAddr = "localhost"
	masterPort = "29500"

	// torchLaunchBinary is the distributed launcher recognized in job
	// commands; it is rewritten to a module-style interpreter invocation
	// so the local interpreter's install is used.
	torchLaunchBinary = "torchrun"
	torchLaunchModule = "torch.distributed.run"

	// Job-identifying variables, set for every framework.
	envJobName  = "TRAINER_JOB_NAME"
	envNodeRank = "TRAINER_NODE_RANK"
)

// commandShape classifies how a job's entrypoint and command are turned
// into the argv for one node process. Shapes are mutually exclusive and
// checked in declaration order.
type commandShape int

const (
	// shapeWrappedLaunch is a `bash -c` invocation whose embedded script
	// references the distributed launcher binary.
	shapeWrappedLaunch commandShape = iota

	// shapeBareLaunch is a direct launcher invocation.
	shapeBareLaunch

	// shapeScript is a plain script invocation (first command token ends
	// in the interpreter's script suffix).
	shapeScript

	// shapePassthrough runs entrypoint+command unmodified.
	shapePassthrough
)

func classifyCommand(entrypoint, command []string) commandShape {
	switch {
	case len(entrypoint) == 2 && entrypoint[0] == "bash" && entrypoint[1] == "-c" &&
		len(command) > 0 &&
		strings.HasPrefix(strings.TrimSpace(command[0]), "read -r -d") &&
		strings.Contains(command[0], torchLaunchBinary):
		return shapeWrappedLaunch

	case len(entrypoint) > 0 && entrypoint[0] == torchLaunchBinary && len(command) > 0:
		return shapeBareLaunch

	case len(entrypoint) > 0 && len(command) > 0 && strings.HasSuffix(command[0], ".py"):
		return shapeScript

	default:
		return shapePassthrough
	}
}

// CommandBuilder produces the concrete argv and environment for one node
// rank of a job. Build is a pure function: identical inputs always yield
// identical outputs.
type CommandBuilder struct {
	// Python is the interpreter executable used for script and launcher
	// rewrites, e.g. "python" or "python3".
	Python string
}

// NodeCommand describes one rank's slot in a command build.
type NodeCommand struct {
	JobName    string
	Entrypoint []string
	Command    []string
	Framework  Framework
	NumNodes   int
	Rank       int
}

// Build returns the argv and the framework environment for one node rank.
func (b CommandBuilder) Build(nc NodeCommand) ([]string, map[string]string) {
	var argv []string

	switch classifyCommand(nc.Entrypoint, nc.Command) {
	case shapeWrappedLaunch:
		// Swap the launcher binary inside the embedded script for a
		// module-style interpreter invocation; the rest of the script
		// is preserved verbatim.
		script := strings.ReplaceAll(
			nc.Command[0],
			torchLaunchBinary+` "`,
			b.Python+" -m "+torchLaunchModule+` "`,
		)
		argv = []string{"bash", "-c", script}

	case shapeBareLaunch:
		argv = append([]string{
			b.Python, "-m", torchLaunchModule,
			"--nproc_per_node=1",
			"--nnodes=" + strconv.Itoa(nc.NumNodes),
			"--node_rank=" + strconv.Itoa(nc.Rank),
			"--master_addr=" + masterAddr,
			"--master_port=" + masterPort,
		}, nc.Command...)

	case shapeScript:
		argv = append([]string{b.Python}, nc.Command...)

	default:
		argv = append(append([]string{}, nc.Entrypoint...), nc.Command...)
	}

	return argv, b.environment(nc)
}

// environment returns the distributed-training variables for a rank.
// One process runs per node, so the node rank doubles as the global rank
// and the local rank is always 0.
func (b CommandBuilder) environment(nc NodeCommand) map[string]string {
	env := map[string]string{
		envJobName:  nc.JobName,
		envNodeRank: strconv.Itoa(nc.Rank),
	}

	if nc.Framework == FrameworkTorch {
		env["NNODES"] = strconv.Itoa(nc.NumNodes)
		env["NPROC_PER_NODE"] = "1"
		env["NODE_RANK"] = strconv.Itoa(nc.Rank)
		env["MASTER_ADDR"] = masterAddr
		env["MASTER_PORT"] = masterPort
		env["RANK"] = strconv.Itoa(nc.Rank)
		env["LOCAL_RANK"] = "0"
		env["WORLD_SIZE"] = strconv.Itoa(nc.NumNodes)
	}

	return env
}
