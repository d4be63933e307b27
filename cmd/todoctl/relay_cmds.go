package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"smart-todo/internal/calendar"
	"smart-todo/internal/contexts"
)

type suggestion struct {
	Category string `json:"category"`
	Priority string `json:"priority"`
	Deadline string `json:"deadline"`
}

func (a *app) enhance(ctx context.Context, title, description string) (string, error) {
	var out struct {
		EnhancedDescription string `json:"enhanced_description"`
	}
	body := map[string]string{"title": title, "description": description}
	if err := a.relay.Post(ctx, "/enhance", body, &out); err != nil {
		return "", fmt.Errorf("enhance: %w", err)
	}
	if out.EnhancedDescription == "" {
		return description, nil
	}
	return out.EnhancedDescription, nil
}

func (a *app) suggest(ctx context.Context, title, description string) (suggestion, error) {
	var out suggestion
	body := map[string]string{"title": title, "description": description}
	if err := a.relay.Post(ctx, "/suggest-task-details", body, &out); err != nil {
		return suggestion{}, fmt.Errorf("suggest task details: %w", err)
	}
	return out, nil
}

func contextsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "contexts",
		Aliases: []string{"context", "ctx"},
		Short:   "Manage context entries the backend mines for tasks",
	}

	addCmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Add a note, email or message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, _ := cmd.Flags().GetString("source")
			e, err := a.contexts.Create(cmd.Context(), contexts.NewEntry{
				Content:    strings.Join(args, " "),
				SourceType: source,
			})
			if err != nil {
				return err
			}
			a.printf("Added context %s (%s)\n", e.ID, e.SourceType)
			return nil
		},
	}
	addCmd.Flags().String("source", contexts.DefaultSourceType, "source type (Note, Email, Message, ...)")

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List context entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := a.contexts.List(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return json.NewEncoder(a.out).Encode(page.Results)
			}
			if len(page.Results) == 0 {
				a.println("No context entries.")
				return nil
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSOURCE\tCREATED\tCONTENT")
			for _, e := range page.Results {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, e.SourceType, e.CreatedAt.Local().Format("2006-01-02 15:04"), truncate(e.Content, 60))
			}
			return tw.Flush()
		},
	}
	listCmd.Flags().BoolP("json", "j", false, "Output as JSON")

	deleteCmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a context entry",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.contexts.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.printf("Deleted context %s\n", args[0])
			return nil
		},
	}

	processCmd := &cobra.Command{
		Use:   "process",
		Short: "Ask the backend to turn your context into tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.contexts.TriggerTaskCreation(cmd.Context(), a.session)
			if err != nil {
				return err
			}
			a.println(res.Message)
			return nil
		},
	}

	cmd.AddCommand(addCmd, listCmd, deleteCmd, processCmd)
	return cmd
}

func categoriesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Task categories",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := a.categories.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, c := range page.Results {
				a.printf("%s\t%s\n", c.ID, c.Name)
			}
			return nil
		},
	})
	return cmd
}

func calendarCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Google Calendar sync",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Check calendar access",
		RunE: func(cmd *cobra.Command, args []string) error {
			var st calendar.Status
			if err := a.relay.Get(cmd.Context(), "/google-calendar/status", &st); err != nil {
				return err
			}
			a.printf("Connected: %t\nCan sync:  %t\n%s\n", st.Connected, st.CanSync, st.Message)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Push pending and in-progress tasks to the calendar",
		RunE: func(cmd *cobra.Command, args []string) error {
			var sum calendar.SyncSummary
			if err := a.relay.Post(cmd.Context(), "/google-calendar/sync-tasks", nil, &sum); err != nil {
				return err
			}
			a.println(sum.Message)
			for _, e := range sum.Results.Errors {
				a.printf("  %s\n", e)
			}
			return nil
		},
	})
	return cmd
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
