package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"localtrainer/internal/config"
	"localtrainer/internal/logger"
	"localtrainer/internal/observability"
	"localtrainer/internal/runner"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Create a local training job and stream its logs",
	Long: `Create a job, spawn one node process per rank, and stream the chosen
rank's logs to stdout. The command blocks until the node exits (or Ctrl+C),
prints the final job status, and tears the job down unless --keep is set.

Example:
  trainctl run --command "train.py" --num-nodes 2 --framework torch
  trainctl run --entrypoint torchrun --command "train.py" --num-nodes 2 --node-rank 1`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		entrypoint, _ := flags.GetStringSlice("entrypoint")
		command, _ := flags.GetStringSlice("command")
		numNodes, _ := flags.GetInt("num-nodes")
		framework, _ := flags.GetString("framework")
		runtimeName, _ := flags.GetString("runtime-name")
		image, _ := flags.GetString("image")
		nodeRank, _ := flags.GetInt("node-rank")
		keep, _ := flags.GetBool("keep")

		if len(entrypoint) == 0 && len(command) == 0 {
			cmd.Println("Error: at least one of --entrypoint or --command is required")
			return
		}

		cfg, err := config.Load()
		if err != nil {
			cmd.Printf("Error loading config: %v\n", err)
			return
		}
		if workDir := viper.GetString("work_dir"); workDir != "" {
			cfg.WorkDir = workDir
		}
		if python := viper.GetString("python"); python != "" {
			cfg.Python = python
		}

		log := logger.New()
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		// Tracing (optional)
		if cfg.OTELEndpoint != "" {
			shutdownTracer, err := observability.InitTracer(ctx, "trainctl", cfg.OTELEndpoint)
			if err != nil {
				cmd.Printf("Error initializing tracing: %v\n", err)
				return
			}
			defer shutdownTracer(context.Background())
		}

		// Metrics (optional)
		if cfg.MetricsAddr != "" {
			metricsHandler, shutdownMetrics, err := observability.InitMetrics()
			if err != nil {
				cmd.Printf("Error initializing metrics: %v\n", err)
				return
			}
			defer shutdownMetrics(context.Background())

			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metricsHandler)
				if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
					log.Error("metrics server error", "err", err)
				}
			}()
		}

		r, err := runner.New(runner.Config{
			WorkDir:     cfg.WorkDir,
			Python:      cfg.Python,
			GracePeriod: cfg.GracePeriod,
		}, log)
		if err != nil {
			cmd.Printf("Error creating runner: %v\n", err)
			return
		}

		jobName, err := r.CreateJob(ctx, runner.CreateJobOptions{
			Image:       image,
			Entrypoint:  entrypoint,
			Command:     command,
			NumNodes:    numNodes,
			Framework:   runner.Framework(framework),
			RuntimeName: runtimeName,
		})
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		cmd.Printf("✓ Job created!\nName: %s\nLogs: %s\n", jobName, r.WorkDir())

		// Ctrl+C stops the follow; teardown below still runs.
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		_, err = r.GetJobLogs(ctx, jobName, runner.LogOptions{
			Follow:   true,
			NodeRank: nodeRank,
			Sink: func(line string) {
				cmd.Println(line)
			},
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			cmd.Printf("Error following logs: %v\n", err)
		}

		if info, err := r.GetJob(jobName); err == nil {
			cmd.Printf("Job %s finished with status: %s\n", jobName, info.Status)
		}

		if keep {
			cmd.Printf("Keeping job %s (delete skipped); processes may still be running\n", jobName)
			return
		}
		if err := r.DeleteJob(context.Background(), jobName); err != nil {
			cmd.Printf("Error deleting job: %v\n", err)
		}
	},
}

func init() {
	flags := runCmd.Flags()
	flags.StringSliceP("entrypoint", "e", []string{}, "Entrypoint tokens, e.g. torchrun or bash,-c")
	flags.StringSliceP("command", "c", []string{}, "Command tokens appended to the entrypoint")
	flags.IntP("num-nodes", "n", 1, "Number of node processes (ranks) to spawn")
	flags.String("framework", string(runner.FrameworkTorch), "Training framework (torch, torchtune)")
	flags.String("runtime-name", "process", "Runtime tag recorded on the job")
	flags.String("image", "", "Container image (accepted for parity, ignored by the process runner)")
	flags.Int("node-rank", 0, "Rank whose logs are streamed")
	flags.Bool("keep", false, "Leave the job registered and its processes running on exit")

	rootCmd.AddCommand(runCmd)
}
