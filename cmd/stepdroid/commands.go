package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/v0xg/stepdroid/internal/action"
	"github.com/v0xg/stepdroid/internal/workflow"
)

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <text|->",
		Short: "Recover an action descriptor from model output and print it",
		Long: `parse runs the action recovery stages over the given text (or stdin
when the argument is "-") and prints the canonical descriptor together with
the stage that recovered it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := args[0]
			if raw == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				raw = string(data)
			}
			desc, stage, err := action.Recover(raw)
			if err != nil {
				var perr *action.ParseError
				if errors.As(err, &perr) {
					logger.Debug("parse failed", zap.String("excerpt", perr.Excerpt))
				}
				return err
			}
			return printJSON(cmd.OutOrStdout(), struct {
				Stage  string             `json:"stage"`
				Action *action.Descriptor `json:"action"`
			}{stage.String(), desc})
		},
	}
}

func newValidateCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "validate <workflow.yaml>",
		Short: "Check a workflow file, optionally re-checking it on every change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !watch {
				wf, err := workflow.Load(args[0])
				if err != nil {
					return err
				}
				printValid(cmd.OutOrStdout(), wf)
				return nil
			}

			loader, err := workflow.NewLoader(args[0], logger.Named("loader"))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printValid(out, loader.Workflow())
			loader.OnChange(func(wf *workflow.Workflow) { printValid(out, wf) })
			loader.OnError(func(err error) {
				fmt.Fprintf(os.Stderr, "✗ %v\n", err)
			})
			stop, err := loader.Watch()
			if err != nil {
				return err
			}
			defer stop()

			fmt.Fprintf(os.Stderr, "→ Watching %s (Ctrl+C to stop)\n", args[0])
			ctx, cancel := signalContext(cmd)
			defer cancel()
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-validate whenever the file changes")
	return cmd
}

func printValid(w io.Writer, wf *workflow.Workflow) {
	fmt.Fprintf(w, "✓ %s: %d steps\n", wf.ID, len(wf.Steps))
}

func newTemplatesCmd() *cobra.Command {
	var category, tag string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "templates [id]",
		Short: "List built-in workflow templates or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				wf, err := workflow.Instantiate(args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), wf)
			}

			templates := workflow.Templates()
			switch {
			case category != "":
				templates = workflow.TemplatesByCategory(category)
			case tag != "":
				templates = workflow.SearchTemplates(tag)
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), templates)
			}
			out := cmd.OutOrStdout()
			for _, t := range templates {
				fmt.Fprintf(out, "%-20s %-16s %2d steps  %s\n", t.ID, t.Category, len(t.Steps), t.Title)
				if verbose && len(t.Tags) > 0 {
					fmt.Fprintf(out, "%-20s tags: %s\n", "", strings.Join(t.Tags, ", "))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Only templates in this category")
	cmd.Flags().StringVar(&tag, "tag", "", "Only templates carrying this tag")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print templates as JSON")
	return cmd
}
