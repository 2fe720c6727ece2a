// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pdiddy/litflow/internal/export"
	"github.com/pdiddy/litflow/internal/progress"
	"github.com/pdiddy/litflow/internal/tui"
	"github.com/pdiddy/litflow/internal/workflow"
	"github.com/pdiddy/litflow/pkg/types"
)

// runOptions selects how a run is shown and saved.
type runOptions struct {
	interactive bool
	format      string
	output      string
	csl         string
	keepEvents  bool
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("tui", false, "show a live terminal view")
	cmd.Flags().String("format", "table", "result format: table, json or csl")
	cmd.Flags().StringP("output", "o", "", "write the result to a YAML file")
	cmd.Flags().String("csl", "", "write the records to a CSL-YAML file")
	cmd.Flags().Bool("keep-events", false, "keep the progress log in the result file")
}

func outputOptions(cmd *cobra.Command) runOptions {
	var o runOptions
	o.interactive, _ = cmd.Flags().GetBool("tui")
	o.format, _ = cmd.Flags().GetString("format")
	o.output, _ = cmd.Flags().GetString("output")
	o.csl, _ = cmd.Flags().GetString("csl")
	o.keepEvents, _ = cmd.Flags().GetBool("keep-events")
	return o
}

// execute runs req to completion while progress streams to stderr, then
// writes the result to stdout and any requested files. Interrupting the
// process aborts the run; the partial result is still reported.
func execute(ctx context.Context, a *app, req workflow.Request, opts runOptions, stdout, stderr io.Writer) error {
	if err := checkFormat(opts.format); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	bus := progress.NewBus()
	sub := bus.Subscribe()

	if a.ledger != nil {
		if err := a.ledger.Begin(ctx, req.RunID, req.Mode, input(req), a.cfg.Redacted()); err != nil {
			a.logger.Warn("history begin failed", "run", req.RunID, "error", err)
		}
	}

	type outcome struct {
		result *types.WorkflowResult
		err    error
	}
	if a.mirror != nil {
		go a.mirror.Follow(context.WithoutCancel(ctx), req.RunID, bus)
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := a.coordinator.Run(ctx, req, bus)
		bus.Close()
		done <- outcome{result, err}
	}()

	var viewErr error
	if opts.interactive {
		_, viewErr = tui.Run(title(req), sub, cancel)
	} else {
		_, viewErr = tui.Stream(stderr, sub)
	}
	out := <-done

	if a.ledger != nil {
		if err := a.ledger.FinishResult(context.WithoutCancel(ctx), req.RunID, out.result, out.err); err != nil {
			a.logger.Warn("history finish failed", "run", req.RunID, "error", err)
		}
	}
	if out.err != nil {
		return out.err
	}
	if out.result == nil {
		return viewErr
	}
	return report(out.result, opts, stdout, stderr)
}

// checkFormat rejects result formats report cannot write.
func checkFormat(format string) error {
	switch format {
	case "table", "json", "csl", "":
		return nil
	}
	return fmt.Errorf("unknown format %q (want table, json or csl)", format)
}

// report prints result to w and writes any requested files, noting each
// file on stderr.
func report(result *types.WorkflowResult, opts runOptions, w, stderr io.Writer) error {
	if err := checkFormat(opts.format); err != nil {
		return err
	}
	switch opts.format {
	case "json":
		if err := export.FormatJSON(result, w); err != nil {
			return err
		}
	case "csl":
		if err := export.FormatCSL(result.Records, w); err != nil {
			return err
		}
	default:
		export.FormatTable(result, w)
	}

	if opts.output != "" {
		if err := export.WriteResultFile(opts.output, result, opts.keepEvents); err != nil {
			return err
		}
		fmt.Fprintf(stderr, "Wrote %s\n", opts.output)
	}
	if opts.csl != "" {
		if err := writeCSLFile(opts.csl, result.Records); err != nil {
			return err
		}
		fmt.Fprintf(stderr, "Wrote %s\n", opts.csl)
	}
	return nil
}

func writeCSLFile(path string, records []types.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := export.FormatCSL(records, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func input(req workflow.Request) string {
	if req.Query != "" {
		return req.Query
	}
	return req.Text
}

func title(req workflow.Request) string {
	in := []rune(strings.TrimSpace(input(req)))
	if len(in) > 60 {
		in = append(in[:57], []rune("...")...)
	}
	return fmt.Sprintf("litflow %s: %s", req.Mode, string(in))
}
