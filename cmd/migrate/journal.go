package main

import (
	"github.com/spf13/cobra"
)

func newJournalCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Repair journal entries after manual intervention",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "complete <name>",
			Short: "Mark an interrupted migration complete after fixing the database by hand",
			Args:  exactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := openApp(cmd, g)
				if err != nil {
					return err
				}
				defer a.Close()
				if err := a.journal.MarkComplete(cmd.Context(), args[0]); err != nil {
					a.log.Error("journal complete failed", map[string]any{"name": args[0], "error": err.Error()})
					return err
				}
				a.log.Info("journal entry marked complete", map[string]any{"name": args[0]})
				return nil
			},
		},
		&cobra.Command{
			Use:   "forget <name>",
			Short: "Delete a journal entry so it runs again on the next deployment",
			Args:  exactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := openApp(cmd, g)
				if err != nil {
					return err
				}
				defer a.Close()
				if err := a.journal.Forget(cmd.Context(), args[0]); err != nil {
					a.log.Error("journal forget failed", map[string]any{"name": args[0], "error": err.Error()})
					return err
				}
				a.log.Info("journal entry removed", map[string]any{"name": args[0]})
				return nil
			},
		},
	)
	return cmd
}
