package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	architects "github.com/Andrew821667/ai-seo-architects"
	"github.com/Andrew821667/ai-seo-architects/agent"
)

// errRunFailed --strict 模式下运行包含失败记录
var errRunFailed = errors.New("workflow run has failed records")

// taskFile run 命令读取的任务 JSON
type taskFile struct {
	TaskType  string         `json:"task_type"`
	InputData map[string]any `json:"input_data"`
	Context   map[string]any `json:"context"`
}

func (f taskFile) task() agent.Task {
	return agent.Task{TaskType: f.TaskType, InputData: f.InputData, Context: f.Context}
}

type runOptions struct {
	taskType string
	set      map[string]string
	strict   bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [task.json | -]",
		Short: "Execute one workflow task",
		Long: "Reads a task ({\"task_type\", \"input_data\", \"context\"}) from a file or stdin,\n" +
			"runs it through the agent graph and prints the final state as JSON.\n" +
			"With --task-type and no file argument stdin is not read.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd, args, opts)
		},
	}
	cmd.Flags().StringVar(&opts.taskType, "task-type", "", "Task type, overrides the file")
	cmd.Flags().StringToStringVar(&opts.set, "set", nil, "Input data entries (key=value), override the file")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Exit non-zero when any node failed")
	return cmd
}

func runTask(cmd *cobra.Command, args []string, opts *runOptions) error {
	tf, err := readTask(cmd, args, opts)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(configPath(cmd))
	if err != nil {
		return err
	}
	cfg.Log.OutputPaths = stdoutToStderr(cfg.Log.OutputPaths)
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	app, err := architects.New(ctx, cfg, architects.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer func() {
		if err := app.Close(ctx); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()

	state := app.Run(ctx, tf.task())

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(state); err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if opts.strict && !state.Succeeded() {
		return errRunFailed
	}
	return nil
}

func readTask(cmd *cobra.Command, args []string, opts *runOptions) (taskFile, error) {
	var tf taskFile

	var r io.Reader
	switch {
	case len(args) == 1 && args[0] != "-":
		f, err := os.Open(args[0])
		if err != nil {
			return tf, fmt.Errorf("open task: %w", err)
		}
		defer f.Close()
		r = f
	case len(args) == 1 || opts.taskType == "":
		r = cmd.InOrStdin()
	}

	if r != nil {
		if err := json.NewDecoder(r).Decode(&tf); err != nil {
			return tf, fmt.Errorf("decode task: %w", err)
		}
	}

	if opts.taskType != "" {
		tf.TaskType = opts.taskType
	}
	if len(opts.set) > 0 {
		if tf.InputData == nil {
			tf.InputData = make(map[string]any, len(opts.set))
		}
		for k, v := range opts.set {
			tf.InputData[k] = v
		}
	}
	if tf.TaskType == "" {
		return tf, errors.New("task_type is required")
	}
	return tf, nil
}
