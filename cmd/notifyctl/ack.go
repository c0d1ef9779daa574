package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ackComment string

var ackCmd = &cobra.Command{
	Use:   "ack <id> <option>",
	Short: "Acknowledge a notification as the logged-in user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().Acknowledge(args[0], args[1], ackComment); err != nil {
			return err
		}
		fmt.Println("Response recorded.")
		return nil
	},
}

func init() {
	ackCmd.Flags().StringVar(&ackComment, "comment", "", "optional comment, if the notification allows one")
	rootCmd.AddCommand(ackCmd)
}
