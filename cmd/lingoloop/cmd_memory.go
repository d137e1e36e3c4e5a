package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"lingoloop/internal/memory"
)

var memoryDBPath string

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect the translation memory database",
}

var memoryGetCmd = &cobra.Command{
	Use:   "get [lang] [hash]",
	Short: "Fetch one cached translation by target language and content hash",
	Args:  cobra.ExactArgs(2),
	RunE:  runMemoryGet,
}

var memoryPageCmd = &cobra.Command{
	Use:   "page [url]",
	Short: "Show what memory knows about a page",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoryPage,
}

func init() {
	memoryCmd.PersistentFlags().StringVar(&memoryDBPath, "db", "", "database path (defaults to the configured one)")
	memoryCmd.AddCommand(memoryGetCmd)
	memoryCmd.AddCommand(memoryPageCmd)
	rootCmd.AddCommand(memoryCmd)
}

func openStore() (*memory.SQLiteStore, error) {
	path := memoryDBPath
	if path == "" {
		path = cfg.Memory.DatabasePath
	}
	if path == "" {
		return nil, fmt.Errorf("no translation memory database configured")
	}
	return memory.NewSQLiteStore(path)
}

func runMemoryGet(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.GetBlock(cmd.Context(), memory.Key(args[0], args[1]))
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Println("miss")
		return nil
	}
	return printJSON(rec)
}

func runMemoryPage(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.GetPage(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Println("miss")
		return nil
	}
	if err := printJSON(rec); err != nil {
		return err
	}
	fmt.Printf("proofread coverage: %.0f%%\n", rec.ProofreadCoverage()*100)
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
