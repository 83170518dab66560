// Command chatctl inspects and maintains the chat store outside the server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"sportlink/sportlink/chatstore"
	"sportlink/sportlink/config"
	"sportlink/sportlink/middlewares"
	"sportlink/sportlink/sources"
	"sportlink/sportlink/types"
	"sportlink/sportlink/utils/color"
	"sportlink/sportlink/utils/logging"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg        config.Config
	store      *chatstore.Store
	closeStore = func() {}
	noColor    bool
	exportOut  string
	clearYes   bool
	tokenRole  string
	tokenName  string
	tokenTTL   time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "chatctl",
	Short:         "Inspect and maintain SportLink chats",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			color.Disable()
		}
		var err error
		if cfg, err = config.LoadConfig(); err != nil {
			return err
		}
		logging.InitLogger(cfg.LogDir)
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		store, closeStore, err = sources.OpenChatStore(ctx, cfg)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeStore()
		logging.Sync()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show chat storage usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := store.GetStorageStats(cmd.Context())
		if err != nil {
			return err
		}
		printStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

func printStats(w io.Writer, stats chatstore.StorageStats) {
	fmt.Fprintln(w, color.ColorHeader("Chat storage"))
	fmt.Fprintf(w, "  chats:     %d\n", stats.TotalChats)
	fmt.Fprintf(w, "  messages:  %d\n", stats.TotalMessages)
	used := humanize.IBytes(uint64(stats.EstimatedSizeKB * 1024))
	limit := humanize.IBytes(uint64(stats.MaxStorageKB * 1024))
	pct := fmt.Sprintf("%.2f%%", stats.PercentageUsed)
	fmt.Fprintf(w, "  size:      %s of %s (%s)\n", used, limit, color.Usage(stats.PercentageUsed, pct))
	if stats.DroppedWrites > 0 {
		fmt.Fprintf(w, "  dropped:   %s\n", color.ColorWarning(fmt.Sprint(stats.DroppedWrites)))
	}
	if stats.CorruptChats > 0 {
		fmt.Fprintf(w, "  corrupt:   %s\n", color.ColorError(fmt.Sprint(stats.CorruptChats)))
	}
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove chats idle past the retention window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := store.CleanOldChats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), color.ColorInfo(fmt.Sprintf("removed %d chat(s)", n)))
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Print a chat as indented JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, ok, err := store.ExportChat(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("chat %s not found", args[0])
		}
		if exportOut == "" {
			fmt.Fprintln(cmd.OutOrStdout(), doc)
			return nil
		}
		return os.WriteFile(exportOut, []byte(doc+"\n"), 0o644)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <session-id> <term>",
	Short: "Find messages by content or sender",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		msgs, err := store.SearchMessages(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(msgs) == 0 {
			fmt.Fprintln(w, color.ColorMuted("no matches"))
			return nil
		}
		for _, m := range msgs {
			fmt.Fprintf(w, "%s %s: %s\n",
				color.ColorMuted(humanize.Time(m.Timestamp)),
				color.ColorHeader(m.SenderName),
				m.Preview())
		}
		return nil
	},
}

var debugCmd = &cobra.Command{
	Use:   "debug [session-id]",
	Short: "Dump chat internals to the console",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer log.Sync()
		id := ""
		if len(args) == 1 {
			id = args[0]
		}
		return store.DebugInfo(cmd.Context(), log, id)
	},
}

var errNotConfirmed = errors.New("refusing to clear chats without --yes")

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every chat",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !clearYes {
			return errNotConfirmed
		}
		if err := store.ClearAllChats(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), color.ColorWarning("all chats removed"))
		return nil
	},
}

// tokenCmd only needs the signing secret, so it skips opening the store.
var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Mint a bearer token for manual API and websocket testing",
	Args:  cobra.ExactArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig()
		return err
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		role, ok := types.ParseRole(tokenRole)
		if !ok {
			return fmt.Errorf("unknown role %q", tokenRole)
		}
		if cfg.JWTSecret == "" {
			return errors.New("JWT_SECRET is not set")
		}
		tok, err := middlewares.IssueToken(cfg.JWTSecret, types.Actor{ID: args[0], Role: role, DisplayName: tokenName}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "write to file instead of stdout")
	clearCmd.Flags().BoolVar(&clearYes, "yes", false, "confirm deletion")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "cliente", "cliente or entrenador")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(statsCmd, cleanCmd, exportCmd, searchCmd, debugCmd, clearCmd, tokenCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, color.ColorError("error: "+err.Error()))
		os.Exit(1)
	}
}
