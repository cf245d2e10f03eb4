package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goforge/internal/bus"
	"github.com/nextlevelbuilder/goforge/internal/loop"
)

func cliCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cli",
		Short: "Run requests from standard input, one loop per line",
		Run: func(cmd *cobra.Command, args []string) {
			runCLI()
		},
	}
}

// runCLI reads requests line by line and drives one loop per non-empty
// line to its terminal state before reading the next. Quiescence detection
// samples global activity, so loops run one at a time.
func runCLI() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		setupLogging().Error("cli.startup_failed", "error", err)
		os.Exit(1)
	}

	a.coord.SetUserListener(func(msg *bus.AgentMessage) {
		switch msg.TaskType {
		case "tool_call":
			fmt.Fprintf(os.Stderr, "  [tool] %s\n", msg.Content)
		case "tool_result":
			fmt.Fprintf(os.Stderr, "  [tool] %s -> %s\n", msg.Content, msg.Data["outcome"])
		default:
			if msg.Content != "" {
				fmt.Printf("\n%s:\n%s\n", msg.FromAgent, msg.Content)
			}
		}
	})

	if err := a.start(ctx); err != nil {
		a.log.Error("cli.startup_failed", "error", err)
		os.Exit(1)
	}
	defer a.close(context.Background())

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		l, err := a.loops.StartLoop(ctx, uuid.NewString(), line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}

		res, ok := <-l.Result()
		if !ok {
			continue
		}
		switch res.Status {
		case loop.StatusCompleted:
			fmt.Fprintf(os.Stderr, "\n[done in %s]\n", res.Duration.Round(time.Millisecond))
		default:
			fmt.Fprintf(os.Stderr, "\n[%s: %s]\n", res.Status, res.Error)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read stdin: %v\n", err)
		os.Exit(1)
	}
}
