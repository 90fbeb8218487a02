package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentvault/agentvault-go/pkg/a2a"
	"github.com/agentvault/agentvault-go/pkg/card"
	"github.com/agentvault/agentvault-go/pkg/client"
	"github.com/agentvault/agentvault-go/pkg/credentials"
)

var (
	sendCardURL string
	sendCardFile string
	sendTaskID  string
)

var sendCmd = &cobra.Command{
	Use:   "send [message text]",
	Short: "Send a message to an agent, starting a new task or continuing one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSend(args[0])
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVar(&sendCardURL, "agent-url", "", "URL to fetch the agent's card from")
	sendCmd.Flags().StringVar(&sendCardFile, "agent-card", "", "path to a local agent card file")
	sendCmd.Flags().StringVar(&sendTaskID, "task-id", "", "existing task id to append to, instead of starting a new one")
}

func resolveCard(ctx context.Context) (*a2a.AgentCard, error) {
	resolver := card.New(viper.GetString("registry.url"))
	switch {
	case sendCardFile != "":
		return resolver.ResolveFromFile(sendCardFile)
	case sendCardURL != "":
		return resolver.ResolveFromURL(ctx, sendCardURL)
	default:
		return nil, fmt.Errorf("one of --agent-url or --agent-card is required")
	}
}

func runSend(text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), client.DefaultTimeout)
	defer cancel()

	agentCard, err := resolveCard(ctx)
	if err != nil {
		return fmt.Errorf("resolving agent card: %w", err)
	}

	store := credentials.New(keyFile)
	session := client.New(store, client.WithLogger(log.Default()))

	message := a2a.NewTextMessage(a2a.RoleUser, text)

	if sendTaskID != "" {
		if err := session.SendMessage(ctx, agentCard, sendTaskID, message); err != nil {
			return err
		}
		fmt.Println(sendTaskID)
		return nil
	}

	id, err := session.InitiateTask(ctx, agentCard, message, nil)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return waitForTerminal(ctx, session, agentCard, id)
}

// waitForTerminal polls tasks/get until the task reaches a terminal
// state, then exits with the convention 0=COMPLETED, 1=FAILED/error,
// 2=CANCELED/INPUT_REQUIRED.
func waitForTerminal(ctx context.Context, session *client.Session, agentCard *a2a.AgentCard, taskID string) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			os.Exit(1)
		case <-ticker.C:
			task, err := session.GetTaskStatus(ctx, agentCard, taskID)
			if err != nil {
				return err
			}
			switch task.Status.State {
			case a2a.TaskStateCompleted:
				printHistory(task)
				os.Exit(0)
			case a2a.TaskStateFailed:
				printHistory(task)
				os.Exit(1)
			case a2a.TaskStateCanceled, a2a.TaskStateInputRequired:
				printHistory(task)
				os.Exit(2)
			}
		}
	}
}

func printHistory(task *a2a.Task) {
	for _, msg := range task.History {
		fmt.Println(msg.String())
	}
}
