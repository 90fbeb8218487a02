package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentvault/agentvault-go/pkg/a2a"
	"github.com/agentvault/agentvault-go/pkg/server"
	"github.com/agentvault/agentvault-go/pkg/taskstore"
)

var (
	serveHost string
	servePort int
	serveName string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an echo-by-default A2A agent server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveHost, "host", "H", "0.0.0.0", "host to bind to")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 3210, "port to listen on")
	serveCmd.Flags().StringVarP(&serveName, "name", "n", "AgentVault Echo Agent", "agent name advertised in its card")
}

func runServe() error {
	url := fmt.Sprintf("http://%s:%d", serveHost, servePort)

	card := a2a.AgentCard{
		SchemaVersion:   "1.0",
		HumanReadableID: viper.GetString("agent.id"),
		AgentVersion:    viper.GetString("agent.version"),
		Name:            serveName,
		Description:     "Echoes every message it receives back to the sender.",
		URL:             url,
		Provider:        a2a.AgentProvider{Name: "agentvault"},
		Capabilities:    a2a.AgentCapabilities{A2AVersion: "1.0"},
		AuthSchemes:     []a2a.AgentAuthentication{{Scheme: a2a.AuthSchemeNone}},
		Skills: []a2a.AgentSkill{
			{ID: "echo", Name: "Echo", Description: "Returns the message it was sent"},
		},
	}
	if card.HumanReadableID == "" {
		card.HumanReadableID = "agentvault/echo-" + uuid.NewString()[:8]
	}
	if card.AgentVersion == "" {
		card.AgentVersion = "1.0.0"
	}

	store := taskstore.New(log.Default())
	srv := server.New(card, store, server.WithLogger(log.Default()))

	log.Info("starting agent server", "url", url, "id", card.HumanReadableID)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Listen(fmt.Sprintf("%s:%d", serveHost, servePort)); err != nil {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	log.Info("shutting down agent server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
