package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"lingoloop/internal/agent"
	"lingoloop/internal/policy"
	"lingoloop/internal/tools"
)

var policyCmd = &cobra.Command{
	Use:   "policy [stage]",
	Short: "Print the effective tool policy for a stage",
	Long: `Resolves the tool policy the dispatcher would apply in the given
stage (planning, execution, or proofreading) from the loaded config's
profile defaults, user overrides, and capabilities. Agent-layer overrides
only exist on a live job and are not part of this view.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPolicy,
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the tool catalog",
	RunE:  runCatalog,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(catalogCmd)
}

func runPolicy(cmd *cobra.Command, args []string) error {
	stage := agent.StageExecution
	if len(args) == 1 {
		switch args[0] {
		case "planning":
			stage = agent.StagePlanning
		case "execution":
			stage = agent.StageExecution
		case "proofreading":
			stage = agent.StageProofreading
		default:
			return fmt.Errorf("unknown stage %q", args[0])
		}
	}

	pc := tools.PolicyConfigFrom(cfg)
	dec := policy.Resolve(policy.Inputs{
		Stage:              string(stage),
		Tools:              tools.ToolsForStage(stage),
		ProfileDefaults:    pc.ProfileDefaults,
		UserOverrides:      pc.UserOverrides,
		Capabilities:       pc.Capabilities,
		RequiredCapability: tools.RequiredCapabilities(),
	})

	names := make([]string, 0, len(dec.Modes))
	for name := range dec.Modes {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("Stage: %s\n\n", stage)
	for _, name := range names {
		fmt.Printf("  %-32s %-5s (%s)\n", name, dec.Modes[name], dec.Reasons[name])
	}
	for _, hint := range dec.RuntimeHints {
		fmt.Printf("\n  note: %s\n", hint)
	}
	return nil
}

func runCatalog(cmd *cobra.Command, args []string) error {
	for _, t := range tools.Catalog() {
		stages := ""
		for i, s := range t.Stages {
			if i > 0 {
				stages += ","
			}
			stages += string(s)
		}
		fmt.Printf("  %-32s %-40s [%s]", t.Name, t.Description, stages)
		if t.RequiresCapability != "" {
			fmt.Printf(" requires=%s", t.RequiresCapability)
		}
		fmt.Println()
	}
	return nil
}
