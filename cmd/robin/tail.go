// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/UVuruna/Robin-sub000/internal/config"
	"github.com/UVuruna/Robin-sub000/internal/eventprocessor"
)

var (
	tailTarget string
	tailURL    string
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print round and milestone events published on NATS",
	Args:  cobra.NoArgs,
	RunE:  runTail,
}

func init() {
	tailCmd.Flags().StringVar(&tailTarget, "target", "", "only events of this target")
	tailCmd.Flags().StringVar(&tailURL, "url", "", "NATS URL (default: nats.url from the configuration)")
}

// tailSubject is the NATS subject matching the events of target, or of all
// targets when target is empty.
func tailSubject(prefix, target string) string {
	if target == "" {
		return prefix + ".>"
	}
	return prefix + "." + target + ".>"
}

func runTail(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	initLogging(cfg)

	url := tailURL
	if url == "" {
		url = cfg.NATS.URL
	}
	if url == "" {
		return errors.New("no NATS URL: set nats.url or use --url")
	}

	sub, err := eventprocessor.NewSubscriber(eventprocessor.DefaultSubscriberConfig(url), eventprocessor.NewWatermillLogger("nats-tail"))
	if err != nil {
		return err
	}
	defer sub.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, err := sub.Events(ctx, tailSubject(cfg.NATS.SubjectPrefix, tailTarget))
	if err != nil {
		return err
	}
	return printEvents(ctx, cmd.OutOrStdout(), events)
}

// printEvents writes one line per event until events is closed or ctx ends.
func printEvents(ctx context.Context, w io.Writer, events <-chan *eventprocessor.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintln(w, formatEvent(ev)); err != nil {
				return err
			}
		}
	}
}

func formatEvent(ev *eventprocessor.Event) string {
	ts := ev.Timestamp.Format("15:04:05.000")
	switch {
	case ev.Round != nil:
		line := fmt.Sprintf("%s %s round %d ended at %.2f after %.1fs, %d milestones",
			ts, ev.Target, ev.RoundID, ev.Round.FinalValue, ev.Round.DurationSeconds, len(ev.Round.Milestones))
		if ev.Round.LowConfidence {
			line += " (low confidence)"
		}
		return line
	case ev.Milestone != nil:
		line := fmt.Sprintf("%s %s round %d crossed %.2f at %.2f",
			ts, ev.Target, ev.RoundID, ev.Milestone.Milestone, ev.Milestone.Value)
		if ev.Milestone.OutOfTolerance {
			line += " (out of tolerance)"
		}
		return line
	default:
		return fmt.Sprintf("%s %s %s round %d", ts, ev.Target, ev.Type, ev.RoundID)
	}
}
