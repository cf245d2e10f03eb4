package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goforge/pkg/protocol"
)

var (
	chatAddr    string
	chatProject string
)

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with a running gateway over WebSocket",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			message := ""
			if len(args) > 0 {
				message = args[0]
			}
			runChat(chatAddr, chatProject, message)
		},
	}
	cmd.Flags().StringVar(&chatAddr, "addr", "127.0.0.1:8080", "gateway address")
	cmd.Flags().StringVar(&chatProject, "project", "", "project id (default: server's default project)")
	return cmd
}

// runChat connects to the gateway and either sends one message and waits
// for its completion, or runs an interactive REPL.
func runChat(addr, projectID, message string) {
	wsURL := fmt.Sprintf("ws://%s/ws", addr)
	if projectID != "" {
		wsURL += "?project_id=" + projectID
	}

	ctx := context.Background()
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, wsURL, nil)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "WebSocket connect failed: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	conn.SetReadLimit(1 << 20) // 1MB

	// completions signals each terminal frame so one-shot mode and the REPL
	// prompt know when a request has finished.
	completions := make(chan string, 1)
	go readFrames(ctx, conn, completions)

	if message != "" {
		if err := sendInput(ctx, conn, message); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		<-completions
		return
	}

	fmt.Fprintf(os.Stderr, "GoForge Interactive Chat (%s)\n", addr)
	fmt.Fprintf(os.Stderr, "Type \"exit\" to quit\n\n")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stderr, "You: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Fprintln(os.Stderr, "Goodbye!")
			return
		}

		if err := sendInput(ctx, conn, input); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
			return
		}
		<-completions
		fmt.Fprintln(os.Stderr)
	}
}

func sendInput(ctx context.Context, conn *websocket.Conn, message string) error {
	data, err := json.Marshal(protocol.ClientInput{
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

// readFrames prints server frames as they arrive. Unknown frame types are
// ignored.
func readFrames(ctx context.Context, conn *websocket.Conn, completions chan<- string) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var frame protocol.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		switch frame.Type {
		case protocol.FrameConnection:
			fmt.Fprintf(os.Stderr, "[connected: session %s]\n", frame.SessionID)
		case protocol.FrameAgentResponse, protocol.FrameAgentChunk:
			fmt.Printf("\n%s:\n%s\n", frame.AgentType, frame.Content)
		case protocol.FrameToolCall:
			fmt.Fprintf(os.Stderr, "  [tool] %s\n", frame.Content)
		case protocol.FrameToolResult:
			fmt.Fprintf(os.Stderr, "  [tool] %s -> %v\n", frame.Content, frame.Metadata["outcome"])
		case protocol.FrameProgress, protocol.FrameStatus:
			if frame.Progress != nil {
				fmt.Fprintf(os.Stderr, "  [%d%%]\n", *frame.Progress)
			}
		case protocol.FrameCompletion:
			fmt.Fprintf(os.Stderr, "[done in %v]\n", frame.Metadata["duration"])
		case protocol.FrameResponseComplete:
			notify(completions, "completed")
		case protocol.FrameCancelled:
			fmt.Fprintln(os.Stderr, "[cancelled]")
			notify(completions, "cancelled")
		case protocol.FrameError:
			fmt.Fprintf(os.Stderr, "[error] %s\n", frame.Content)
			notify(completions, "error")
		}
	}
}

func notify(completions chan<- string, status string) {
	select {
	case completions <- status:
	default:
	}
}
