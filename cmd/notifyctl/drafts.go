package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var draftsCmd = &cobra.Command{
	Use:   "drafts",
	Short: "Manage saved compose drafts",
}

var draftsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your drafts, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		drafts, err := newClient().Drafts()
		if err != nil {
			return err
		}
		if len(drafts) == 0 {
			fmt.Println("No drafts saved.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tRECIPIENTS\tSAVED")
		for _, d := range drafts {
			title := d.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", d.ID, title, len(d.Recipients), d.SavedAt.Local().Format("2006-01-02 15:04"))
		}
		return tw.Flush()
	},
}

var draftsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().DeleteDraft(args[0]); err != nil {
			return err
		}
		fmt.Println("Draft deleted.")
		return nil
	},
}

var employeesCmd = &cobra.Command{
	Use:   "employees [query]",
	Short: "Search the staff directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := make(map[string][]string)
		if len(args) == 1 {
			q["q"] = []string{args[0]}
		}
		if dept, _ := cmd.Flags().GetString("department"); dept != "" {
			q["department"] = []string{dept}
		}

		employees, err := newClient().Employees(q)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tDEPARTMENT\tROLE\tEMAIL")
		for _, e := range employees {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Name, e.Department, e.Role, e.Email)
		}
		return tw.Flush()
	},
}

func init() {
	draftsCmd.AddCommand(draftsListCmd, draftsDeleteCmd)
	employeesCmd.Flags().String("department", "", "only show this department")
	rootCmd.AddCommand(draftsCmd, employeesCmd)
}
