package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/taxi-assistant/server/internal/agent/model"
	"github.com/taxi-assistant/server/internal/agent/pipeline"
	logx "github.com/taxi-assistant/server/pkg/logger"
)

func newChatCmd(cfg *AppConfig) *cobra.Command {
	var userID, city string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the in-ride assistant from the console",
		Long: `Talk to the in-ride assistant from the console.

Every line is sent as a user message of a fresh session. A line starting
with "/" is sent as a button click, for example "/genre:Jazz". Type "exit"
to quit. No simulator is attached, so reroute and policy frames are dropped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			c := console{p: a.pipeline, sessionID: uuid.NewString(), userID: userID, city: city}
			return c.run(cmd.Context(), os.Stdin, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "Registered passenger id, e.g. U1")
	cmd.Flags().StringVar(&city, "city", "", "City of the ride")
	return cmd
}

type console struct {
	p         *pipeline.Pipeline
	sessionID string
	userID    string
	city      string
}

func (c console) run(ctx context.Context, in io.Reader, out io.Writer) error {
	logx.Info().Str("session_id", c.sessionID).Msg("console session started")
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "exit" || line == "quit":
			return nil
		default:
			printResponse(out, c.send(ctx, line))
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

func (c console) send(ctx context.Context, line string) *model.Response {
	if action, ok := strings.CutPrefix(line, "/"); ok {
		return c.p.HandleUIAction(ctx, model.UIAction{
			Type:      model.TypeUIAction,
			SessionID: c.sessionID,
			ActionID:  action,
		})
	}
	return c.p.HandleUserMessage(ctx, model.UserMessage{
		Type:      model.TypeUserMessage,
		SessionID: c.sessionID,
		UserID:    c.userID,
		City:      c.city,
		Text:      line,
	})
}

func printResponse(out io.Writer, resp *model.Response) {
	if resp.Message != "" {
		fmt.Fprintln(out, resp.Message)
	}
	for _, o := range resp.UIOptions {
		fmt.Fprintf(out, "  [/%s] %s\n", o.ID, o.Label)
	}
	for _, cmd := range resp.Commands {
		fmt.Fprintf(out, "  <%s>\n", cmd.Type)
	}
}
