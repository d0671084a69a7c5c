package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_PlainScript(t *testing.T) {
	b := CommandBuilder{Python: "python"}

	argv, env := b.Build(NodeCommand{
		JobName:    "local-train-abc",
		Entrypoint: []string{"python"},
		Command:    []string{"train.py"},
		Framework:  FrameworkTorch,
		NumNodes:   1,
		Rank:       0,
	})

	assert.Equal(t, []string{"python", "train.py"}, argv)
	assert.Equal(t, "1", env["WORLD_SIZE"])
	assert.Equal(t, "0", env["RANK"])
	assert.Equal(t, "0", env["LOCAL_RANK"])
	assert.Equal(t, "29500", env["MASTER_PORT"])
	assert.Equal(t, "localhost", env["MASTER_ADDR"])
}

func TestBuild_BareLauncherRewrite(t *testing.T) {
	b := CommandBuilder{Python: "python"}

	argv, _ := b.Build(NodeCommand{
		JobName:    "local-train-abc",
		Entrypoint: []string{"torchrun"},
		Command:    []string{"train.py", "--epochs", "3"},
		Framework:  FrameworkTorch,
		NumNodes:   2,
		Rank:       1,
	})

	require.Equal(t, []string{
		"python", "-m", "torch.distributed.run",
		"--nproc_per_node=1",
		"--nnodes=2",
		"--node_rank=1",
		"--master_addr=localhost",
		"--master_port=29500",
		"train.py", "--epochs", "3",
	}, argv)
}

func TestBuild_WrappedShellRewrite(t *testing.T) {
	b := CommandBuilder{Python: "python3"}

	script := `read -r -d '' SCRIPT <<EOF
torchrun "$PROGRAM_PATH"
EOF
bash -c "$SCRIPT"`

	argv, _ := b.Build(NodeCommand{
		JobName:    "local-train-abc",
		Entrypoint: []string{"bash", "-c"},
		Command:    []string{script},
		Framework:  FrameworkTorch,
		NumNodes:   2,
		Rank:       0,
	})

	require.Len(t, argv, 3)
	assert.Equal(t, "bash", argv[0])
	assert.Equal(t, "-c", argv[1])
	assert.Contains(t, argv[2], `python3 -m torch.distributed.run "$PROGRAM_PATH"`)
	assert.NotContains(t, argv[2], `torchrun "`)
	// Rest of the script is preserved verbatim.
	assert.Contains(t, argv[2], "read -r -d '' SCRIPT")
	assert.Contains(t, argv[2], `bash -c "$SCRIPT"`)
}

func TestBuild_Passthrough(t *testing.T) {
	b := CommandBuilder{Python: "python"}

	argv, env := b.Build(NodeCommand{
		JobName:    "local-train-abc",
		Entrypoint: []string{"sh", "-c"},
		Command:    []string{"echo hello"},
		Framework:  FrameworkTorchTune,
		NumNodes:   1,
		Rank:       0,
	})

	assert.Equal(t, []string{"sh", "-c", "echo hello"}, argv)
	// Torchtune gets no distributed env contract, only the job variables.
	assert.NotContains(t, env, "WORLD_SIZE")
	assert.NotContains(t, env, "RANK")
	assert.Equal(t, "local-train-abc", env[envJobName])
	assert.Equal(t, "0", env[envNodeRank])
}

func TestBuild_JobVariablesAlwaysSet(t *testing.T) {
	b := CommandBuilder{Python: "python"}

	for _, framework := range []Framework{FrameworkTorch, FrameworkTorchTune} {
		_, env := b.Build(NodeCommand{
			JobName:    "local-train-xyz",
			Entrypoint: []string{"python"},
			Command:    []string{"train.py"},
			Framework:  framework,
			NumNodes:   3,
			Rank:       2,
		})

		assert.Equal(t, "local-train-xyz", env[envJobName], "framework %s", framework)
		assert.Equal(t, "2", env[envNodeRank], "framework %s", framework)
	}
}

func TestBuild_TorchEnvContract(t *testing.T) {
	b := CommandBuilder{Python: "python"}

	_, env := b.Build(NodeCommand{
		JobName:    "local-train-abc",
		Entrypoint: []string{"python"},
		Command:    []string{"train.py"},
		Framework:  FrameworkTorch,
		NumNodes:   4,
		Rank:       2,
	})

	want := map[string]string{
		"NNODES":         "4",
		"NPROC_PER_NODE": "1",
		"NODE_RANK":      "2",
		"MASTER_ADDR":    "localhost",
		"MASTER_PORT":    "29500",
		"RANK":           "2",
		"LOCAL_RANK":     "0",
		"WORLD_SIZE":     "4",
	}
	for k, v := range want {
		assert.Equal(t, v, env[k], "env %s", k)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	b := CommandBuilder{Python: "python"}
	nc := NodeCommand{
		JobName:    "local-train-abc",
		Entrypoint: []string{"torchrun"},
		Command:    []string{"train.py"},
		Framework:  FrameworkTorch,
		NumNodes:   2,
		Rank:       1,
	}

	argv1, env1 := b.Build(nc)
	argv2, env2 := b.Build(nc)

	assert.Equal(t, argv1, argv2)
	assert.Equal(t, env1, env2)
}

func TestClassifyCommand_Priority(t *testing.T) {
	wrapped := `read -r -d '' S <<EOF
torchrun "$P"
EOF`

	tests := []struct {
		name       string
		entrypoint []string
		command    []string
		want       commandShape
	}{
		{"wrapped shell", []string{"bash", "-c"}, []string{wrapped}, shapeWrappedLaunch},
		{"bare launcher", []string{"torchrun"}, []string{"train.py"}, shapeBareLaunch},
		{"plain script", []string{"python"}, []string{"train.py"}, shapeScript},
		{"passthrough", []string{"sh", "-c"}, []string{"echo hi"}, shapePassthrough},
		{"empty command", []string{"torchrun"}, nil, shapePassthrough},
		{"bash -c without launcher", []string{"bash", "-c"}, []string{"echo hi"}, shapePassthrough},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyCommand(tt.entrypoint, tt.command))
		})
	}
}
