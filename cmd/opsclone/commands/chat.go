package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/jholhewres/opsclone/pkg/opsclone/copilot"
	"github.com/jholhewres/opsclone/pkg/opsclone/tasks"
)

// newChatCmd creates the `opsclone chat` command.
func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the assistant",
		Long: `Send one message to the assistant, or start an interactive session
when no message is given.

In request mode the message becomes a task delivered to the automation
webhook. --to, --subject and the message together supply the task fields
directly; otherwise they are inferred.

Interactive commands:
  /request   toggle request mode
  /exit      leave the session

Examples:
  opsclone chat "What is the leave policy?"
  opsclone chat --request --to hr@gtextholdings.com --subject "Onboarding" "Prepare the pack"
  opsclone chat`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChat,
	}

	cmd.Flags().Bool("request", false, "request mode: turn the message into a task")
	cmd.Flags().String("to", "", "task recipient address")
	cmd.Flags().String("subject", "", "task subject")
	cmd.Flags().StringP("user", "u", "", "user id (default: $USER)")
	return cmd
}

type chatOptions struct {
	userID  string
	request bool
	to      string
	subject string
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, _, err := loadRuntime(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	opts := chatOptions{}
	opts.request, _ = cmd.Flags().GetBool("request")
	opts.to, _ = cmd.Flags().GetString("to")
	opts.subject, _ = cmd.Flags().GetString("subject")
	opts.userID, _ = cmd.Flags().GetString("user")
	if opts.userID == "" {
		opts.userID = os.Getenv("USER")
	}
	if opts.userID == "" {
		opts.userID = "cli"
	}
	if opts.to != "" && !tasks.ValidateEmail(opts.to) {
		return fmt.Errorf("invalid --to address %q", opts.to)
	}

	if len(args) > 0 {
		return chatOnce(ctx, cmd.OutOrStdout(), rt.Assistant, args[0], opts)
	}
	return chatREPL(ctx, cmd.OutOrStdout(), rt, opts)
}

func chatOnce(ctx context.Context, out io.Writer, a *copilot.Assistant, message string, opts chatOptions) error {
	req := copilot.ChatRequest{
		Message:     message,
		UserID:      opts.userID,
		RequestMode: opts.request,
	}
	if opts.request && opts.to != "" {
		req.EmailData = &tasks.EmailData{ToEmail: opts.to, Subject: opts.subject, Message: message}
	}

	env, err := a.Respond(ctx, req)
	if err != nil {
		return err
	}
	printEnvelope(out, env)
	return nil
}

func printEnvelope(out io.Writer, env *copilot.ResponseEnvelope) {
	fmt.Fprintln(out, env.Message)
	fmt.Fprintln(out)

	meta := fmt.Sprintf("confidence %.2f", env.Confidence)
	if env.Decision.IsDecision {
		meta += " | decision"
	}
	if env.Decision.ActionRequired {
		meta += " | action required"
	}
	meta += " | urgency " + string(env.Decision.Urgency)
	fmt.Fprintln(out, "  "+meta)

	if len(env.Sources) > 0 {
		titles := make([]string, 0, len(env.Sources))
		for _, s := range env.Sources {
			titles = append(titles, fmt.Sprintf("%s (%s)", s.Title, s.Type))
		}
		fmt.Fprintln(out, "  sources: "+strings.Join(titles, ", "))
	}

	rm := env.RequestMode
	if rm.Enabled && rm.Task != nil {
		fmt.Fprintf(out, "  task: %q to %s\n", rm.Task.Subject, rm.Task.ToEmail)
		if rm.Delivery != nil {
			status := "not sent"
			if rm.WebhookSent {
				status = "sent"
			}
			fmt.Fprintf(out, "  webhook: %s (%s)\n", status, rm.Delivery.Message)
		}
	}
}

func chatREPL(ctx context.Context, out io.Writer, rt *copilot.Runtime, opts chatOptions) error {
	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".opsclone_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          promptFor(opts.request),
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("starting interactive session: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(out, "Chatting with %s. /request toggles request mode, /exit quits.\n\n", rt.Persona.Name)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/request":
			opts.request = !opts.request
			rl.SetPrompt(promptFor(opts.request))
			continue
		}

		// Explicit task fields only apply to the first message.
		if err := chatOnce(ctx, out, rt.Assistant, line, opts); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
		opts.to, opts.subject = "", ""
		fmt.Fprintln(out)
	}
}

func promptFor(request bool) string {
	if request {
		return "request> "
	}
	return "you> "
}
