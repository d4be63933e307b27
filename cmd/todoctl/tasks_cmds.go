package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"smart-todo/internal/analytics"
	"smart-todo/internal/csvexport"
	"smart-todo/internal/observability"
	"smart-todo/internal/tasks"
)

var deadlineLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseDeadline(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range deadlineLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid deadline %q: use YYYY-MM-DD or YYYY-MM-DD HH:MM", s)
}

func tasksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task", "t"},
		Short:   "List and manage tasks",
	}
	cmd.AddCommand(tasksListCmd(a))
	cmd.AddCommand(tasksAddCmd(a))
	cmd.AddCommand(tasksUpdateCmd(a))
	cmd.AddCommand(tasksStatusCmd(a))
	cmd.AddCommand(tasksDeleteCmd(a))
	cmd.AddCommand(tasksStatsCmd(a))
	cmd.AddCommand(tasksExportCmd(a))
	cmd.AddCommand(tasksImportCmd(a))
	return cmd
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("search", "s", "", "match title or description")
	cmd.Flags().String("priority", "all", "Low, Medium, High or all")
	cmd.Flags().String("status", "all", "Pending, In Progress, Completed or all")
	cmd.Flags().String("category", "all", "category name, uncategorized or all")
	cmd.Flags().String("tab", string(tasks.TabAll), "all, pending, progress or completed")
}

func filterFromFlags(cmd *cobra.Command) (tasks.Filter, error) {
	search, _ := cmd.Flags().GetString("search")
	priority, _ := cmd.Flags().GetString("priority")
	status, _ := cmd.Flags().GetString("status")
	category, _ := cmd.Flags().GetString("category")
	tab, _ := cmd.Flags().GetString("tab")

	f := tasks.Filter{Search: search, Category: category, Tab: tasks.Tab(strings.ToLower(tab))}
	if priority != "" && priority != "all" {
		p, err := tasks.ParsePriority(priority)
		if err != nil {
			return f, err
		}
		f.Priority = p
	}
	if status != "" && status != "all" {
		s, err := tasks.ParseStatus(status)
		if err != nil {
			return f, err
		}
		f.Status = s
	}
	return f, nil
}

func tasksListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := filterFromFlags(cmd)
			if err != nil {
				return err
			}
			sortKey, _ := cmd.Flags().GetString("sort")

			board := tasks.NewBoard(a.tasks)
			if err := board.Refresh(cmd.Context()); err != nil {
				return err
			}
			list := tasks.SortBy(f.Apply(board.Tasks()), tasks.SortKey(sortKey))

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return json.NewEncoder(a.out).Encode(list)
			}
			if len(list) == 0 {
				a.println("No tasks found.")
				return nil
			}

			now := a.now()
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tPRIORITY\tSTATUS\tDEADLINE\tCATEGORY")
			for _, t := range list {
				deadline := t.Deadline.Local().Format("2006-01-02 15:04")
				if t.IsOverdue(now) {
					deadline += " (overdue)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					t.ID, t.Title, t.PriorityLabel, t.Status, deadline, valueOr(t.CategoryName, "-"))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			a.printf("\n%d of %d tasks, synced at %s\n", len(list), len(board.Tasks()), board.SyncedAt().Local().Format("15:04:05"))
			return nil
		},
	}
	addFilterFlags(cmd)
	cmd.Flags().String("sort", string(tasks.SortDeadline), "deadline, priority or created")
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")
	return cmd
}

// resolveCategory accepts a category id or name. "none" and "" mean no
// category.
func (a *app) resolveCategory(ctx context.Context, nameOrID string) (string, error) {
	nameOrID = strings.TrimSpace(nameOrID)
	if nameOrID == "" || strings.EqualFold(nameOrID, tasks.NoCategory) {
		return "", nil
	}

	page, err := a.categories.List(ctx)
	if err != nil {
		return "", err
	}
	for _, c := range page.Results {
		if c.ID == nameOrID || strings.EqualFold(c.Name, nameOrID) {
			return c.ID, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", nameOrID)
}

func tasksAddCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			title := strings.Join(args, " ")
			description, _ := cmd.Flags().GetString("description")
			priority, _ := cmd.Flags().GetString("priority")
			category, _ := cmd.Flags().GetString("category")
			deadline, _ := cmd.Flags().GetString("deadline")
			status, _ := cmd.Flags().GetString("status")

			log := observability.LoggerFromContext(ctx)

			// model help is optional; the task is created without it
			if enhance, _ := cmd.Flags().GetBool("enhance"); enhance {
				out, err := a.enhance(ctx, title, description)
				if err != nil {
					log.Warn("description enhancement failed", "error", err)
					a.printf("Could not enhance the description (%v); keeping yours.\n", err)
				} else {
					description = out
					a.printf("Description: %s\n", description)
				}
			}

			suggestedCategory := false
			if suggest, _ := cmd.Flags().GetBool("suggest"); suggest {
				s, err := a.suggest(ctx, title, description)
				if err != nil {
					log.Warn("task detail suggestion failed", "error", err)
					a.printf("Could not get suggestions (%v).\n", err)
				} else {
					if category == "" && s.Category != "" {
						category, suggestedCategory = s.Category, true
					}
					if _, err := tasks.ParsePriority(s.Priority); priority == "" && err == nil {
						priority = s.Priority
					}
					if _, err := parseDeadline(s.Deadline, time.Local); deadline == "" && err == nil {
						deadline = s.Deadline
					}
					a.printf("Suggested: category=%s priority=%s deadline=%s\n", s.Category, s.Priority, s.Deadline)
				}
			}

			in := tasks.NewTask{Title: title, Description: description}
			if priority != "" {
				p, err := tasks.ParsePriority(priority)
				if err != nil {
					return err
				}
				in.PriorityLabel = p
			}
			if status != "" {
				s, err := tasks.ParseStatus(status)
				if err != nil {
					return err
				}
				in.Status = s
			}
			if deadline != "" {
				d, err := parseDeadline(deadline, time.Local)
				if err != nil {
					return err
				}
				in.Deadline = d
			}
			categoryID, err := a.resolveCategory(ctx, category)
			if err != nil && suggestedCategory {
				log.Warn("suggested category not found", "category", category)
				categoryID, err = "", nil
			}
			if err != nil {
				return err
			}
			in.Category = categoryID

			created, err := tasks.NewBoard(a.tasks).Add(ctx, in)
			if err != nil {
				return err
			}
			// let the calendar notification finish before the process exits
			a.tasks.Wait()

			a.printf("Created task %s: %s\n", created.ID, created.Title)
			return nil
		},
	}
	cmd.Flags().StringP("description", "d", "", "task description")
	cmd.Flags().StringP("priority", "p", "", "Low, Medium or High")
	cmd.Flags().StringP("category", "c", "", "category name or id")
	cmd.Flags().String("deadline", "", "YYYY-MM-DD or YYYY-MM-DD HH:MM (local time)")
	cmd.Flags().String("status", "", "initial status")
	cmd.Flags().Bool("enhance", false, "rewrite the description with the local model first")
	cmd.Flags().Bool("suggest", false, "fill category, priority and deadline from the local model")
	return cmd
}

func tasksUpdateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var upd tasks.TaskUpdate
			changed := false

			if cmd.Flags().Changed("title") {
				v, _ := cmd.Flags().GetString("title")
				upd.Title = &v
				changed = true
			}
			if cmd.Flags().Changed("description") {
				v, _ := cmd.Flags().GetString("description")
				upd.Description = &v
				changed = true
			}
			if cmd.Flags().Changed("priority") {
				v, _ := cmd.Flags().GetString("priority")
				p, err := tasks.ParsePriority(v)
				if err != nil {
					return err
				}
				upd.PriorityLabel = &p
				changed = true
			}
			if cmd.Flags().Changed("deadline") {
				v, _ := cmd.Flags().GetString("deadline")
				d, err := parseDeadline(v, time.Local)
				if err != nil {
					return err
				}
				upd.Deadline = &d
				changed = true
			}
			if cmd.Flags().Changed("category") {
				v, _ := cmd.Flags().GetString("category")
				id, err := a.resolveCategory(ctx, v)
				if err != nil {
					return err
				}
				upd.Category = &id
				changed = true
			}
			if !changed {
				return errors.New("nothing to update")
			}

			t, err := a.tasks.Update(ctx, args[0], upd)
			if err != nil {
				return err
			}
			a.printf("Updated task %s: %s\n", t.ID, t.Title)
			return nil
		},
	}
	cmd.Flags().String("title", "", "new title")
	cmd.Flags().StringP("description", "d", "", "new description")
	cmd.Flags().StringP("priority", "p", "", "Low, Medium or High")
	cmd.Flags().String("deadline", "", "YYYY-MM-DD or YYYY-MM-DD HH:MM (local time)")
	cmd.Flags().StringP("category", "c", "", "category name or id, none to clear")
	return cmd
}

func tasksStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Move a task to Pending, In Progress or Completed",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := tasks.ParseStatus(strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if err := tasks.NewBoard(a.tasks).SetStatus(cmd.Context(), args[0], status); err != nil {
				return err
			}
			a.printf("Task %s is now %s\n", args[0], status)
			return nil
		},
	}
}

func tasksDeleteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var confirm tasks.Confirmer = tasks.ConfirmFunc(a.confirm)
			if yes, _ := cmd.Flags().GetBool("yes"); yes {
				confirm = tasks.AlwaysConfirm
			}

			err := tasks.NewBoard(a.tasks).Remove(cmd.Context(), args[0], confirm)
			if errors.Is(err, tasks.ErrNotConfirmed) {
				a.println("Cancelled.")
				return nil
			}
			if err != nil {
				return err
			}
			a.printf("Deleted task %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func tasksStatsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := a.tasks.List(cmd.Context())
			if err != nil {
				return err
			}
			stats := tasks.ComputeStats(page.Results, a.now())

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return json.NewEncoder(a.out).Encode(stats)
			}

			a.println("Tasks")
			a.println(strings.Repeat("=", 30))
			a.printf("  %-12s %d\n", "Total:", stats.Total)
			a.printf("  %-12s %d\n", "Pending:", stats.Pending)
			a.printf("  %-12s %d\n", "In progress:", stats.InProgress)
			a.printf("  %-12s %d\n", "Completed:", stats.Completed)
			a.printf("  %-12s %d\n", "Overdue:", stats.Overdue)
			a.printf("  %-12s %d%%\n", "Completion:", stats.CompletionRate)

			if names := tasks.CategoryNames(page.Results); len(names) > 0 {
				a.printf("\nCategories: %s\n", strings.Join(names, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")
	return cmd
}

func tasksExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export tasks as calendar-import CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := filterFromFlags(cmd)
			if err != nil {
				return err
			}
			page, err := a.tasks.List(cmd.Context())
			if err != nil {
				return err
			}
			list := f.Apply(page.Results)
			content := csvexport.TasksToCSV(list, time.Local)

			out, _ := cmd.Flags().GetString("out")
			if out == "" || out == "-" {
				a.println(content)
			} else {
				if err := os.WriteFile(out, []byte(content+"\n"), 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d tasks to %s\n", len(list), out)
			}

			a.recordEvent(cmd.Context(), analytics.EventTasksExported, len(list))
			return nil
		},
	}
	addFilterFlags(cmd)
	cmd.Flags().StringP("out", "o", "", "output file (default stdout)")
	return cmd
}

func tasksImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Create tasks from a CSV export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			parsed, err := csvexport.ParseCSVToTasks(string(raw), time.Local, a.now())
			if err != nil {
				return err
			}
			if len(parsed) == 0 {
				a.println("No tasks found in file.")
				return nil
			}

			categoryIDs := map[string]string{}
			if page, err := a.categories.List(ctx); err == nil {
				for _, c := range page.Results {
					categoryIDs[strings.ToLower(c.Name)] = c.ID
				}
			}

			log := observability.LoggerFromContext(ctx)
			imported := 0
			for _, t := range parsed {
				in := tasks.NewTask{
					Title:         t.Title,
					Description:   t.Description,
					PriorityLabel: t.PriorityLabel,
					Status:        t.Status,
					Deadline:      t.Deadline,
					Category:      categoryIDs[strings.ToLower(t.CategoryName)],
				}
				if _, err := a.tasks.Create(ctx, in); err != nil {
					log.Warn("import row failed", "title", t.Title, "error", err)
					fmt.Fprintf(cmd.ErrOrStderr(), "  skipped %q: %v\n", t.Title, err)
					continue
				}
				imported++
			}
			a.tasks.Wait()

			a.printf("Imported %d of %d tasks.\n", imported, len(parsed))
			if imported > 0 {
				a.recordEvent(ctx, analytics.EventTasksImported, imported)
			}
			return nil
		},
	}
}
