package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lingoloop/internal/agent"
)

var traceErrorsOnly bool

var traceCmd = &cobra.Command{
	Use:   "trace [job.json]",
	Short: "Replay the tool execution trace of a persisted job",
	Long: `Reads a persisted job snapshot and prints its tool execution trace
in order: timestamp, tool, outcome, error code, and duration. Useful for
reconstructing what the agent did after the fact.`,
	Args: cobra.ExactArgs(1),
	RunE: runTrace,
}

func init() {
	traceCmd.Flags().BoolVar(&traceErrorsOnly, "errors-only", false, "only show refused or failed calls")
	rootCmd.AddCommand(traceCmd)
}

func runTrace(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var j agent.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return fmt.Errorf("not a job snapshot: %w", err)
	}

	fmt.Printf("Job %s  status=%s  completed=%d/%d  failed=%d\n\n",
		j.ID, j.Status, j.CompletedBlocks, j.TotalBlocks, len(j.FailedBlockIDs))

	if j.Agent == nil || len(j.Agent.ToolExecutionTrace) == 0 {
		fmt.Println("no trace entries")
		return nil
	}

	shown := 0
	for _, e := range j.Agent.ToolExecutionTrace {
		if traceErrorsOnly && e.Status == agent.TraceOK {
			continue
		}
		line := fmt.Sprintf("  %s  %-28s %-5s", e.Ts.Format("15:04:05.000"), e.Tool, e.Status)
		if e.ErrorCode != "" {
			line += "  " + e.ErrorCode
		}
		fmt.Printf("%s  (%dms)\n", line, e.DurationMs)
		shown++
	}
	fmt.Printf("\n%d of %d entries\n", shown, len(j.Agent.ToolExecutionTrace))
	return nil
}
