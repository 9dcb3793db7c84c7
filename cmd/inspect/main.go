// inspect is an operator CLI for poking at an archive without running
// the server: list conversations for a day, dump a timeline, test the
// typedstream extractor on a raw blob, and examine the media cache.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"retrospect/pkg/archive"
	"retrospect/pkg/contacts"
	"retrospect/pkg/logger"
	"retrospect/pkg/mediacache"
	"retrospect/pkg/typedstream"
)

var (
	archivePath string
	contactsDir string
	month, day  int
)

func main() {
	_ = logger.InitWithLevel("warn")

	root := &cobra.Command{
		Use:          "inspect",
		Short:        "Inspect an iMessage archive and the retrospect media cache",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&archivePath, "archive", defaultArchive(), "path to chat.db")
	root.PersistentFlags().StringVar(&contactsDir, "contacts", "", "AddressBook sources dir (optional)")
	root.PersistentFlags().IntVar(&month, "month", 0, "month (1-12, defaults to today)")
	root.PersistentFlags().IntVar(&day, "day", 0, "day of month (defaults to today)")

	root.AddCommand(conversationsCmd(), timelineCmd(), extractCmd(), cacheCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultArchive() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "chat.db"
	}
	return home + "/Library/Messages/chat.db"
}

func openArchive() (*archive.Store, *contacts.Resolver, error) {
	st, err := archive.Open(archivePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	return st, contacts.New(contactsDir), nil
}

// resolveMonthDay fills unset flags from today's local date.
func resolveMonthDay() (int, int) {
	now := time.Now()
	m, d := month, day
	if m == 0 {
		m = int(now.Month())
	}
	if d == 0 {
		d = now.Day()
	}
	return m, d
}

func conversationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conversations",
		Short: "List conversations active on a month/day across years",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, res, err := openArchive()
			if err != nil {
				return err
			}
			defer st.Close()

			m, d := resolveMonthDay()
			convs := st.ConversationsOn(context.Background(), m, d)
			if len(convs) == 0 {
				color.Yellow.Printf("no conversations on %02d-%02d\n", m, d)
				return nil
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"ID", "Name", "Group", "Msgs", "Years", "Last"})
			for _, c := range convs {
				name := res.ResolveConversationName(c.Name, c.Handles, c.IsGroup)
				table.Append([]string{
					strconv.FormatInt(c.ID, 10),
					name,
					boolMark(c.IsGroup),
					strconv.Itoa(c.MessageCount),
					fmt.Sprint(c.Years),
					c.LastMessageDate,
				})
			}
			table.Render()
			return nil
		},
	}
}

func timelineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timeline <chat-id>",
		Short: "Print one conversation's day timeline grouped by year",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid chat id %q", args[0])
			}
			st, res, err := openArchive()
			if err != nil {
				return err
			}
			defer st.Close()

			m, d := resolveMonthDay()
			tl, err := st.TimelineOn(context.Background(), id, m, d)
			if err != nil {
				return err
			}
			name := res.ResolveConversationName(tl.DisplayName, tl.Handles, tl.IsGroup)
			color.Bold.Printf("%s — %02d-%02d\n", name, m, d)
			for _, yg := range tl.YearGroups {
				color.Cyan.Printf("\n== %d ==\n", yg.Year)
				for _, msg := range yg.Messages {
					sender := msg.Sender
					if sender == "" {
						if msg.IsFromMe {
							sender = "Me"
						} else {
							sender = res.ResolveName(msg.Handle)
						}
					}
					fmt.Printf("[%s] %s: %s", msg.Date, sender, msg.Text)
					for _, tb := range msg.Tapbacks {
						fmt.Printf(" %s", tb.Emoji)
					}
					if n := len(msg.Attachments); n > 0 {
						color.Gray.Printf(" (%d attachment(s))", n)
					}
					fmt.Println()
				}
			}
			return nil
		},
	}
}

func extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <blob-file>",
		Short: "Run the typedstream text extractor on a raw attributedBody blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blob, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			res := typedstream.Extract(blob)
			fmt.Printf("status:   %s\n", res.Status)
			fmt.Printf("fallback: %v\n", res.FromFallback)
			if res.Text != "" {
				color.Green.Println("text:")
				fmt.Println(res.Text)
			}
			return nil
		},
	}
}

func cacheCmd() *cobra.Command {
	var dataPath string
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Show media cache contents and totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := mediacache.Open(dataPath + "/cache")
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}
			defer c.Close()

			entries := c.Entries()
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Attachment", "Size", "Source", "Created"})
			var total uint64
			for _, e := range entries {
				table.Append([]string{
					strconv.FormatInt(e.ID, 10),
					humanize.Bytes(uint64(e.Meta.Size)),
					e.Meta.Source,
					e.Meta.CreatedAt().Format("2006-01-02 15:04:05"),
				})
				total += uint64(e.Meta.Size)
			}
			table.Render()
			fmt.Printf("%d entries, %s\n", len(entries), humanize.Bytes(total))
			return nil
		},
	}
	cmd.Flags().StringVar(&dataPath, "data", "./.retrospect", "server data path")
	return cmd
}

func boolMark(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
