package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quill-labs/quill/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage stored conversations",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.Open(cfg.SessionDB)
		if err != nil {
			return err
		}
		defer store.Close()

		sessions, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("no stored sessions")
			return nil
		}
		for _, s := range sessions {
			fmt.Printf("%s  %s  %3d msgs  %s\n",
				s.ID, s.UpdatedAt.Format("2006-01-02 15:04"), s.Messages, s.Title)
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.Open(cfg.SessionDB)
		if err != nil {
			return err
		}
		defer store.Close()

		history, err := store.History(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(history) == 0 {
			return fmt.Errorf("session %s not found or empty", args[0])
		}
		for _, m := range history {
			fmt.Printf("[%s]\n%s\n\n", m.Role, m.Content)
		}
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.Open(cfg.SessionDB)
		if err != nil {
			return err
		}
		defer store.Close()
		return store.Delete(cmd.Context(), args[0])
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}
