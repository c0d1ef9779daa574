package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/sapliy/staff-notify/internal/notification"
	"github.com/spf13/cobra"
)

var historyFlags struct {
	query    string
	status   string
	channels []string
	ack      string
	from     string
	to       string
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List sent and scheduled notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		setIf(q, "q", historyFlags.query)
		setIf(q, "status", historyFlags.status)
		setIf(q, "ack", historyFlags.ack)
		setIf(q, "from", historyFlags.from)
		setIf(q, "to", historyFlags.to)
		if len(historyFlags.channels) > 0 {
			q.Set("channel", strings.Join(historyFlags.channels, ","))
		}

		items, err := newClient().History(q)
		if err != nil {
			return err
		}
		printHistory(os.Stdout, items)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one notification and its responses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := newClient().Notification(args[0])
		if err != nil {
			return err
		}
		printNotification(os.Stdout, n)
		return nil
	},
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func printHistory(out io.Writer, items []notification.Notification) {
	if len(items) == 0 {
		fmt.Fprintln(out, "No notifications match the current filters.")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tCHANNELS\tRECIPIENTS\tACK\tDATE")
	for i := range items {
		n := &items[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			n.ID, n.Title, n.Status, channelList(n.Channels), len(n.Recipients), ackSummary(n), displayDate(n))
	}
	tw.Flush()
}

func printNotification(out io.Writer, n *notification.Notification) {
	fmt.Fprintf(out, "%s (%s)\n", n.Title, n.Status)
	fmt.Fprintf(out, "Channels:   %s\n", channelList(n.Channels))
	fmt.Fprintf(out, "Created by: %s\n", n.CreatedBy)
	fmt.Fprintf(out, "Date:       %s\n\n", displayDate(n))
	fmt.Fprintln(out, n.Message)

	if !n.RequiresAcknowledgement {
		return
	}
	fmt.Fprintf(out, "\nAcknowledgements: %s\n", ackSummary(n))
	byRecipient := make(map[string]notification.AcknowledgementResponse, len(n.Responses))
	for _, r := range n.Responses {
		byRecipient[r.Recipient] = r
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, name := range n.Recipients {
		if r, ok := byRecipient[name]; ok {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", name, r.Option, r.Comment)
		} else {
			fmt.Fprintf(tw, "  %s\tpending\t\n", name)
		}
	}
	tw.Flush()
}

func channelList(channels []notification.Channel) string {
	parts := make([]string, len(channels))
	for i, c := range channels {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

func ackSummary(n *notification.Notification) string {
	if !n.RequiresAcknowledgement {
		return "-"
	}
	return fmt.Sprintf("%d/%d", n.AcknowledgedCount(), len(n.Recipients))
}

func displayDate(n *notification.Notification) string {
	switch {
	case !n.SentAt.IsZero():
		return n.SentAt.Local().Format("2006-01-02 15:04")
	case n.ScheduledFor != nil:
		return "scheduled " + n.ScheduledFor.Local().Format("2006-01-02 15:04")
	default:
		return n.CreatedAt.Local().Format("2006-01-02 15:04")
	}
}

func init() {
	f := historyCmd.Flags()
	f.StringVarP(&historyFlags.query, "query", "q", "", "search title and message")
	f.StringVar(&historyFlags.status, "status", "", "sent, pending or failed")
	f.StringSliceVar(&historyFlags.channels, "channel", nil, "email, sms or portal (repeatable)")
	f.StringVar(&historyFlags.ack, "ack", "", "required, not-required, complete, pending or overdue")
	f.StringVar(&historyFlags.from, "from", "", "start date (YYYY-MM-DD)")
	f.StringVar(&historyFlags.to, "to", "", "end date (YYYY-MM-DD)")

	rootCmd.AddCommand(historyCmd, showCmd)
}
