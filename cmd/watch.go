package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/agentvault/agentvault-go/pkg/a2a"
	"github.com/agentvault/agentvault-go/pkg/client"
	"github.com/agentvault/agentvault-go/pkg/credentials"
)

var watchTaskID string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Subscribe to an existing task's event stream and print it live",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch()
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&sendCardURL, "agent-url", "", "URL to fetch the agent's card from")
	watchCmd.Flags().StringVar(&sendCardFile, "agent-card", "", "path to a local agent card file")
	watchCmd.Flags().StringVar(&watchTaskID, "task-id", "", "task id to subscribe to")
	_ = watchCmd.MarkFlagRequired("task-id")
}

func runWatch() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agentCard, err := resolveCard(ctx)
	if err != nil {
		return fmt.Errorf("resolving agent card: %w", err)
	}

	store := credentials.New(keyFile)
	session := client.New(store, client.WithLogger(log.Default()))

	events, stop, err := session.ReceiveMessages(ctx, agentCard, watchTaskID)
	if err != nil {
		return err
	}
	defer stop()

	exitCode := 0
	for evt := range events {
		switch {
		case evt.Err != nil:
			log.Error("stream ended", "error", evt.Err)
			exitCode = 1

		case evt.Status != nil:
			fmt.Printf("[status] %s %s\n", evt.Status.State, evt.Status.Message)
			switch evt.Status.State {
			case a2a.TaskStateCompleted:
				exitCode = 0
			case a2a.TaskStateFailed:
				exitCode = 1
			case a2a.TaskStateCanceled, a2a.TaskStateInputRequired:
				exitCode = 2
			}

		case evt.Message != nil:
			fmt.Printf("[message] %s\n", evt.Message.Message.String())

		case evt.Artifact != nil:
			fmt.Printf("[artifact] %s (%s)\n", evt.Artifact.Artifact.ID, evt.Artifact.Artifact.Type)
		}
	}

	os.Exit(exitCode)
	return nil
}
