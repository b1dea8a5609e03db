package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neilberkman/rentcheck/internal/core/apperr"
	"github.com/neilberkman/rentcheck/internal/core/report"
)

var chatShow bool

var chatCmd = &cobra.Command{
	Use:   "chat <analysis-id> [message...]",
	Short: "Ask a follow-up question about a finished report",
	Long: `Ask the analysis service a question about a completed report. Without a
message, or with --show, the conversation so far is printed.

Examples:
  rentcheck chat 3f2a... "Is the security deposit unusual for this area?"
  rentcheck chat 3f2a... --show`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().BoolVar(&chatShow, "show", false, "Print the conversation so far")
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	id := args[0]
	opened, err := a.orch.Open(ctx, id)
	if err != nil {
		return err
	}
	if !opened.CanChat() {
		return apperr.Validation("chat", "analysis %s is %s; chat opens once it has completed", id, strings.ToLower(opened.Status.Label()))
	}

	out := cmd.OutOrStdout()
	message := strings.TrimSpace(strings.Join(args[1:], " "))
	if message == "" || chatShow {
		if synced, err := a.orch.LoadChat(ctx, id); err == nil {
			opened = synced
		} else {
			fmt.Fprintln(cmd.ErrOrStderr(), describeError(err))
		}
		fmt.Fprint(out, report.Transcript(*opened))
		if message == "" {
			return nil
		}
	}

	spinner := NewSpinner("Waiting for a reply...")
	spinner.Start()
	reply, err := a.orch.SendChatMessage(ctx, id, opened.ChatID(), message)
	spinner.Stop()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "assistant: %s\n", reply.Content)
	return nil
}
