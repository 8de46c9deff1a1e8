package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rahul/autopilot/internal/agent"
	"github.com/rahul/autopilot/internal/catalog"
	"github.com/rahul/autopilot/internal/engine"
	"github.com/rahul/autopilot/internal/input"
	"github.com/rahul/autopilot/internal/observability"
	"github.com/rahul/autopilot/internal/planner"
)

// cliChat is the chat ID recorded for commands given on the command line.
const cliChat = "cli"

// readCommand builds a command from --file, --url or the positional words.
func readCommand(cmd *cobra.Command, args []string, file, pageURL string) (input.UserCommand, error) {
	switch {
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return input.UserCommand{}, err
		}
		return input.FromFile(filepath.Base(file), data)
	case pageURL != "":
		return input.NewFetcher().FromURL(cmd.Context(), pageURL)
	}
	return input.FromText(strings.Join(args, " "))
}

func newRunCmd(a *app) *cobra.Command {
	var file, pageURL string
	var keepOpen bool
	var poll time.Duration

	cmd := &cobra.Command{
		Use:   "run [command]",
		Short: "Match a command to a template and execute it in the browser",
		Example: `  autopilot run send an email to bob@example.com about the report
  autopilot run --file command.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readCommand(cmd, args, file, pageURL)
			if err != nil {
				return err
			}
			s, err := a.catalogStore()
			if err != nil {
				return err
			}
			hist, err := a.history()
			if err != nil {
				return err
			}
			defer hist.Close()

			e := a.engine(s, hist, observability.StatusObserver{})
			defer func() {
				if err := e.Close(); err != nil {
					a.logger.Warn("Failed to release browser.", zap.Error(err))
				}
			}()
			d := agent.NewDispatcher(a.matcher(s), e, agent.WithCommandLog(hist), agent.WithLogger(a.logger))

			reply, err := d.Handle(cmd.Context(), cliChat, in)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if reply.Run == nil {
				return errors.New(reply.Text())
			}
			fmt.Fprintf(out, "Running %s (%.2f) as %s\n", reply.Match.Template.ID, reply.Match.Score, reply.Run.ID())

			st := follow(out, reply.Run, poll)
			fmt.Fprintln(out, agent.Summarize(st))

			if keepOpen {
				fmt.Fprintln(out, "Browser left open; press Ctrl+C to exit.")
				<-cmd.Context().Done()
			}
			if st.State != engine.StateSucceeded {
				return fmt.Errorf("run %s failed", st.RunID)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the command from a text or HTML file")
	cmd.Flags().StringVar(&pageURL, "url", "", "read the command from a web page")
	cmd.Flags().BoolVar(&keepOpen, "keep-open", false, "leave the browser open after the run until interrupted")
	cmd.Flags().DurationVar(&poll, "poll", 250*time.Millisecond, "status poll interval")
	return cmd
}

// follow prints progress whenever it changes and returns the final status.
func follow(w io.Writer, r *engine.Run, every time.Duration) engine.Status {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	var last string
	for {
		select {
		case <-r.Done():
			return r.Status()
		case <-ticker.C:
			st := r.Status()
			if p := observability.Progress(st); p != last {
				last = p
				fmt.Fprintf(w, "  %s\n", p)
			}
		}
	}
}

func newMatchCmd(a *app) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "match <command>",
		Short: "Show how a command scores against the catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := input.FromText(strings.Join(args, " "))
			if err != nil {
				return err
			}
			s, err := a.catalogStore()
			if err != nil {
				return err
			}
			m := a.matcher(s)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TEMPLATE\tNAME\tSCORE")
			for _, r := range m.Rank(in.RawText, k) {
				fmt.Fprintf(tw, "%s\t%s\t%.4f\n", r.Template.ID, r.Template.Name, r.Score)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if best, ok := m.FindBest(in.RawText); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "\nbest: %s (threshold %.2f)\n", best.Template.ID, m.Threshold())
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "\nno template reaches threshold %.2f\n", m.Threshold())
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "top", "k", 5, "number of templates to list")
	return cmd
}

func newPlanCmd(a *app) *cobra.Command {
	var templateID string
	cmd := &cobra.Command{
		Use:   "plan <command>",
		Short: "Print the execution plan for a command as JSON without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := input.FromText(strings.Join(args, " "))
			if err != nil {
				return err
			}
			s, err := a.catalogStore()
			if err != nil {
				return err
			}
			if templateID == "" {
				best, ok := a.matcher(s).FindBest(in.RawText)
				if !ok {
					return fmt.Errorf("no template matches %q", in.RawText)
				}
				templateID = best.Template.ID
			}
			plan, err := planner.NewBuilder(s).BuildFor(in.RawText, templateID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(plan)
		},
	}
	cmd.Flags().StringVarP(&templateID, "template", "t", "", "build for this template instead of the best match")
	return cmd
}

func newCatalogCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect or create the template catalog",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the built-in catalog as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "catalog.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
			if force {
				flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
			}
			f, err := os.OpenFile(path, flags, 0o644)
			if err != nil {
				return err
			}
			if err := catalog.WriteYAML(f, catalog.Default()); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the loaded catalog as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.catalogStore()
			if err != nil {
				return err
			}
			return catalog.WriteYAML(cmd.OutOrStdout(), s.Current())
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	var commands, asJSON bool
	var chatID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs or received commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			hist, err := a.history()
			if err != nil {
				return err
			}
			defer hist.Close()

			out := cmd.OutOrStdout()
			if commands {
				list, err := hist.Commands(cmd.Context(), chatID, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return json.NewEncoder(out).Encode(list)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TIME\tCHAT\tOUTCOME\tTEMPLATE\tTEXT")
				for _, c := range list {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.CreatedAt.Format(time.DateTime), c.ChatID, c.Outcome, c.TemplateID, c.Text)
				}
				return tw.Flush()
			}

			runs, err := hist.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(out).Encode(runs)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ENDED\tRUN\tTEMPLATE\tSTATE\tSTEPS\tERROR")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", r.EndedAt.Format(time.DateTime), r.RunID, r.TemplateID, r.State, len(r.Steps), r.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum entries")
	cmd.Flags().BoolVar(&commands, "commands", false, "list received commands instead of runs")
	cmd.Flags().StringVar(&chatID, "chat", "", "only commands from this chat")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newScheduleCmd(a *app) *cobra.Command {
	var chatID string
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage commands that run on a timer",
	}
	cmd.PersistentFlags().StringVar(&chatID, "chat", cliChat, "chat that receives the output, e.g. tg:12345")

	var every time.Duration
	addCmd := &cobra.Command{
		Use:   "add <command>",
		Short: "Schedule a command; without --every it runs once",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := input.FromText(strings.Join(args, " "))
			if err != nil {
				return err
			}
			hist, err := a.history()
			if err != nil {
				return err
			}
			defer hist.Close()
			id, err := hist.AddSchedule(cmd.Context(), chatID, in.RawText, every)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scheduled #%d\n", id)
			return nil
		},
	}
	addCmd.Flags().DurationVar(&every, "every", 0, "repeat interval (minimum 60s)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			hist, err := a.history()
			if err != nil {
				return err
			}
			defer hist.Close()
			list, err := hist.ListSchedules(cmd.Context(), chatID)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tEVERY\tLAST RUN\tCOMMAND")
			for _, s := range list {
				every, last := "once", "never"
				if !s.OneShot() {
					every = s.Interval.String()
				}
				if !s.LastRun.IsZero() {
					last = s.LastRun.Format(time.DateTime)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.ID, every, last, s.Command)
			}
			return tw.Flush()
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a scheduled command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid schedule id %q", args[0])
			}
			hist, err := a.history()
			if err != nil {
				return err
			}
			defer hist.Close()
			ok, err := hist.DeleteSchedule(cmd.Context(), chatID, id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no schedule #%d for chat %s", id, chatID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed #%d\n", id)
			return nil
		},
	}

	cmd.AddCommand(addCmd, listCmd, rmCmd)
	return cmd
}
