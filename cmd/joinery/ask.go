package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askSession string

var askCmd = &cobra.Command{
	Use:   "ask [utterance]",
	Short: "Talk to the assistant as text, one turn per line",
	Long: "Runs the same turn pipeline as a phone call. With an argument, one turn " +
		"is processed; without, lines are read from stdin until EOF.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := buildApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		if len(args) > 0 {
			fmt.Fprintln(out, a.assistant.Process(cmd.Context(), askSession, strings.Join(args, " ")))
			return nil
		}

		fmt.Fprintln(out, a.assistant.Greeting())
		sc := bufio.NewScanner(cmd.InOrStdin())
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			fmt.Fprintln(out, a.assistant.Process(cmd.Context(), askSession, line))
		}
		return sc.Err()
	},
}

func init() {
	askCmd.Flags().StringVarP(&askSession, "session", "s", "cli", "Session key to keep context under")
}
