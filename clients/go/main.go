// Command tarschat is a command line client for a tarschat server.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eldtechnologies/tarschat/clients/go/tarschat"
)

var (
	serverURL string
	token     string
	client    *tarschat.Client
)

var rootCmd = &cobra.Command{
	Use:   "tarschat",
	Short: "Command line client for tarschat",
	Long: `tarschat talks to a tarschat server with a bearer token.

Environment:
  TARSCHAT_URL    Server URL (default: http://localhost:8080)
  TARSCHAT_TOKEN  Bearer token (see cmd/devtoken)`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		client = tarschat.NewClient(serverURL, token)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", envOr("TARSCHAT_URL", "http://localhost:8080"), "server URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("TARSCHAT_TOKEN"), "bearer token")

	meCmd.Flags().String("name", "", "display name (defaults to the token's name claim)")
	typingCmd.Flags().Bool("list", false, "list users currently typing")
	typingCmd.Flags().Bool("stop", false, "clear your typing signal")

	rootCmd.AddCommand(meCmd, usersCmd, dmCmd, groupCmd, sendCmd, readCmd, reactCmd, deleteCmd, typingCmd)
}

var meCmd = &cobra.Command{
	Use:   "me",
	Short: "Register or refresh the current user and print it",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		u, err := client.UpsertMe(cmd.Context(), tarschat.Profile{Name: name})
		if err != nil {
			return err
		}
		return printJSON(u)
	},
}

var usersCmd = &cobra.Command{
	Use:   "users [search]",
	Short: "List other users",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		search := ""
		if len(args) == 1 {
			search = args[0]
		}
		users, err := client.ListUsers(cmd.Context(), search)
		if err != nil {
			return err
		}
		for _, u := range users {
			status := "offline"
			if u.IsOnline {
				status = "online"
			}
			fmt.Printf("  %s  %-24s %s\n", u.ID, u.Name, status)
		}
		return nil
	},
}

var dmCmd = &cobra.Command{
	Use:   "dm <user_id>",
	Short: "Open the direct conversation with a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := client.OpenDirect(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var groupCmd = &cobra.Command{
	Use:   "group <name> <user_id>...",
	Short: "Create a group conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := client.CreateGroup(cmd.Context(), args[0], args[1:])
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation_id> <message>...",
	Short: "Send a message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := client.Send(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Printf("Sent: %s\n", msg.ID)
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read <conversation_id>",
	Short: "Print a conversation and mark it read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msgs, err := client.ListMessages(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, m := range msgs {
			ts := time.UnixMilli(m.Timestamp).Format("2006-01-02 15:04:05")
			from := m.SenderID
			if m.Sender != nil {
				from = m.Sender.Name
			}
			content := m.Content
			if m.IsDeleted {
				content = "(deleted)"
			}
			fmt.Printf("[%s] %s: %s%s\n", ts, from, content, formatReactions(m.Reactions))
		}
		_, err = client.MarkRead(cmd.Context(), args[0])
		return err
	},
}

var reactCmd = &cobra.Command{
	Use:   "react <message_id> <emoji>",
	Short: "Toggle a reaction on a message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := client.React(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		state := "removed"
		if res.Active {
			state = "added"
		}
		fmt.Printf("%s %s%s\n", state, res.Emoji, formatReactions(res.Reactions))
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <message_id>",
	Short: "Delete one of your messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return client.DeleteMessage(cmd.Context(), args[0])
	},
}

var typingCmd = &cobra.Command{
	Use:   "typing <conversation_id>",
	Short: "Signal typing, or list who is typing with --list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		list, _ := cmd.Flags().GetBool("list")
		stop, _ := cmd.Flags().GetBool("stop")
		switch {
		case list:
			users, err := client.Typers(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, u := range users {
				fmt.Printf("  %s is typing...\n", u.Name)
			}
			return nil
		case stop:
			return client.ClearTyping(cmd.Context(), args[0])
		default:
			return client.SetTyping(cmd.Context(), args[0])
		}
	},
}

func formatReactions(rs []tarschat.Reaction) string {
	if len(rs) == 0 {
		return ""
	}
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = fmt.Sprintf("%s %d", r.Emoji, len(r.UserIDs))
	}
	return "  [" + strings.Join(parts, ", ") + "]"
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
