package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"butler/internal/agent"
	"butler/internal/config"
	"butler/internal/logging"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Starts a REPL against the demo runtime. Each line becomes one
envelope in a single session; direct commands (/time, /echo, /ping)
bypass the planner.`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	// Log level follows the config file while the REPL is running.
	watcher, err := config.NewWatcher(cfgPath, func(fresh *config.Config) {
		if err := logging.SetLevel(fresh.Logging.Level); err != nil {
			logging.ConfigError("ignoring reloaded log level: %v", err)
		}
	})
	if err != nil {
		logging.ConfigError("config watching unavailable: %v", err)
	} else if err := watcher.Start(); err != nil {
		logging.ConfigError("config watching unavailable: %v", err)
	} else {
		defer watcher.Stop()
	}

	sessionID := uuid.NewString()
	fmt.Printf("%s ready. Type a message, /time, /echo <text>, or exit.\n", cfg.Name)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		resp, err := rt.seq.Do(cmd.Context(), agent.NewEnvelope(sessionID, "cli", line))
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		fmt.Println(resp.Text)
		if resp.ImagePath != "" {
			fmt.Printf("[image: %s]\n", resp.ImagePath)
		}
	}
	return scanner.Err()
}
