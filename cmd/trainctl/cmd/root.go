package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "trainctl",
	Short: "Trainctl runs emulated multi-node training jobs as local processes",
	Long: `trainctl is the command-line interface for the localtrainer process runner.

The process runner emulates a multi-node distributed training job by
spawning one OS process per node rank on the local machine, with the
distributed-training environment (RANK, WORLD_SIZE, MASTER_ADDR, ...)
each rank expects. There is no cluster scheduler and no container
runtime: node processes run directly on the host, with their output
captured to per-rank log files under the job's working directory.

Job state lives only in the trainctl process, so the primary workflow is
a single foreground command:

  Run a training script on 2 emulated nodes and stream rank 0's logs:
    trainctl run --command "train.py" --num-nodes 2

  Run a torchrun invocation (rewritten per rank automatically):
    trainctl run --entrypoint torchrun --command "train.py,--epochs,3" --num-nodes 2

  Keep the job's processes and log files around after the command exits:
    trainctl run --command "train.py" --keep

Configuration:
  Set defaults via environment variables or a config file:
    TRAINER_WORK_DIR       Artifact root (default: ./localtrainer_jobs)
    TRAINER_PYTHON         Interpreter executable (default: python)
    TRAINER_GRACE_PERIOD   Delete grace window (default: 2s)
    TRAINER_METRICS_ADDR   Prometheus listen address (default: disabled)`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".trainctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".trainctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "TRAINER_VARNAME"
	viper.SetEnvPrefix("TRAINER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.trainctl.yaml)")

	rootCmd.PersistentFlags().String("work-dir", "", "artifact root for job directories (default: ./localtrainer_jobs)")
	viper.BindPFlag("work_dir", rootCmd.PersistentFlags().Lookup("work-dir"))

	rootCmd.PersistentFlags().String("python", "python", "interpreter executable for script and launcher rewrites")
	viper.BindPFlag("python", rootCmd.PersistentFlags().Lookup("python"))
}
