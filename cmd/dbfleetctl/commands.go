package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dbfleet/dbfleet/internal/api"
	"github.com/dbfleet/dbfleet/pkg/types"
)

func newHealthCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show fleet-wide node, cluster and alarm counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var h api.HealthResponse
			if err := opts.client().get(cmd.Context(), "/api/v1/health", &h); err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), h)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "state:     %s\n", h.State)
			fmt.Fprintf(out, "nodes:     %d critical, %d warning, %d healthy\n", h.CriticalCount, h.WarningCount, h.HealthyCount)
			fmt.Fprintf(out, "clusters:  %d (%d critical)\n", h.ClusterCount, h.CriticalClusters)
			fmt.Fprintf(out, "sources:   %d\n", h.SourceCount)
			fmt.Fprintf(out, "alarms:    %d firing, %d suppressed\n", h.AlertCount, h.SuppressedCount)
			if len(h.StaleEngines) > 0 {
				fmt.Fprintf(out, "stale:     %s\n", strings.Join(h.StaleEngines, ", "))
			}
			return nil
		},
	}
}

func newSnapshotCmd(opts *globalOptions) *cobra.Command {
	var engine string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "List every cluster and node with its health status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var snap api.SnapshotResponse
			if err := opts.client().get(cmd.Context(), "/api/v1/snapshot", &snap); err != nil {
				return err
			}
			if engine != "" {
				e, err := types.ParseEngine(engine)
				if err != nil {
					return err
				}
				kept := snap.Engines[:0]
				for _, es := range snap.Engines {
					if es.Engine == e {
						kept = append(kept, es)
					}
				}
				snap.Engines = kept
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), snap)
			}

			rows := [][]string{}
			for _, es := range snap.Engines {
				for _, cg := range es.Clusters {
					for _, n := range cg.Members {
						rows = append(rows, []string{
							string(es.Engine), cg.ID, n.Name, n.Status.String(), n.Role, n.Service.String(),
							disk(n.NodeRecord), yesNo(snap.Suppressed[n.Key()]), n.Reason,
						})
					}
				}
			}
			out := cmd.OutOrStdout()
			if err := printTable(out, []string{"ENGINE", "CLUSTER", "NODE", "STATUS", "ROLE", "SERVICE", "FREE DISK", "SILENCED", "REASON"}, rows); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d critical, %d warning, %d healthy (generated %s)\n",
				snap.CriticalCount, snap.WarningCount, snap.HealthyCount, snap.GeneratedAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVarP(&engine, "engine", "e", "", "only show this engine (mongodb, postgresql, cassandra, mssql)")
	return cmd
}

func newSourcesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "Show the poll status of every telemetry source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var srcs []api.SourceResponse
			if err := opts.client().get(cmd.Context(), "/api/v1/sources", &srcs); err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), srcs)
			}
			rows := [][]string{}
			for _, s := range srcs {
				state := string(s.State)
				switch {
				case s.Degraded:
					state += " (degraded)"
				case s.Stale:
					state += " (stale)"
				}
				last := string(s.LastOutcome)
				if last == "" {
					last = "-"
				}
				rows = append(rows, []string{
					s.SourceID, string(s.Engine), state, last, strconv.Itoa(s.NodeCount),
					strconv.Itoa(s.Failures), fmt.Sprintf("%.0f%%", s.UptimePct), s.LastError,
				})
			}
			return printTable(cmd.OutOrStdout(), []string{"SOURCE", "ENGINE", "STATE", "LAST FETCH", "NODES", "FAILURES", "UPTIME", "LAST ERROR"}, rows)
		},
	}
}

func newAlarmsCmd(opts *globalOptions) *cobra.Command {
	var silencedOnly bool

	cmd := &cobra.Command{
		Use:   "alarms",
		Short: "List the alarm state of every known node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var alarms []api.AlarmResponse
			if err := opts.client().get(cmd.Context(), "/api/v1/alarms", &alarms); err != nil {
				return err
			}
			if silencedOnly {
				kept := alarms[:0]
				for _, a := range alarms {
					if a.Suppressed {
						kept = append(kept, a)
					}
				}
				alarms = kept
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), alarms)
			}
			rows := [][]string{}
			for _, a := range alarms {
				rows = append(rows, []string{a.Key, yesNo(a.AlertEnabled), yesNo(a.Suppressed), until(a.SilenceUntil, a.AlertEnabled)})
			}
			return printTable(cmd.OutOrStdout(), []string{"KEY", "ALERTS", "SILENCED", "UNTIL"}, rows)
		},
	}
	cmd.Flags().BoolVar(&silencedOnly, "silenced", false, "only list silenced nodes")
	return cmd
}

func newSilenceCmd(opts *globalOptions) *cobra.Command {
	var (
		forDur   time.Duration
		untilArg string
	)

	cmd := &cobra.Command{
		Use:   "silence <engine/cluster/node>",
		Short: "Silence alarms of a node, indefinitely or for a bounded time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := silenceRequest(forDur, untilArg)
			if err != nil {
				return err
			}
			return setAlarm(cmd, opts, args[0], req)
		},
	}
	cmd.Flags().DurationVar(&forDur, "for", 0, "silence for this long, e.g. 2h")
	cmd.Flags().StringVar(&untilArg, "until", "", "silence until this RFC3339 time")
	cmd.MarkFlagsMutuallyExclusive("for", "until")
	return cmd
}

func newUnsilenceCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unsilence <engine/cluster/node>",
		Short: "Re-enable alarms of a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled := true
			return setAlarm(cmd, opts, args[0], api.AlarmRequest{AlertEnabled: &enabled})
		},
	}
}

// silenceRequest builds the PUT body for the silence command.
func silenceRequest(forDur time.Duration, untilArg string) (api.AlarmRequest, error) {
	disabled := false
	req := api.AlarmRequest{AlertEnabled: &disabled}
	switch {
	case forDur < 0:
		return req, errors.New("--for must be positive")
	case forDur > 0:
		req.SilenceFor = forDur.String()
	case untilArg != "":
		t, err := time.Parse(time.RFC3339, untilArg)
		if err != nil {
			return req, fmt.Errorf("--until: %w", err)
		}
		req.SilenceUntil = &t
	}
	return req, nil
}

func setAlarm(cmd *cobra.Command, opts *globalOptions, key string, req api.AlarmRequest) error {
	var resp api.AlarmResponse
	if err := opts.client().put(cmd.Context(), alarmPath(key), req, &resp); err != nil {
		return err
	}
	if opts.json {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	out := cmd.OutOrStdout()
	switch {
	case resp.AlertEnabled:
		fmt.Fprintf(out, "%s: alerts enabled\n", resp.Key)
	case resp.SilenceUntil != nil:
		fmt.Fprintf(out, "%s: silenced until %s\n", resp.Key, resp.SilenceUntil.Format(time.RFC3339))
	default:
		fmt.Fprintf(out, "%s: silenced indefinitely\n", resp.Key)
	}
	return nil
}

// --- output helpers ---------------------------------------------------------

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTable(w io.Writer, headers []string, rows [][]string) error {
	if len(rows) == 0 {
		fmt.Fprintln(w, "(none)")
		return nil
	}
	data := pterm.TableData{headers}
	data = append(data, rows...)
	s, err := pterm.DefaultTable.
		WithHasHeader(true).
		WithBoxed(false).
		WithData(data).
		Srender()
	if err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	fmt.Fprintln(w, s)
	return nil
}

func disk(n types.NodeRecord) string {
	if !n.DiskReported {
		return "-"
	}
	return fmt.Sprintf("%.1f%% / %.0f GB", n.FreeDiskPercent, n.FreeDiskGB)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func until(t *time.Time, enabled bool) string {
	switch {
	case enabled:
		return ""
	case t == nil:
		return "indefinitely"
	default:
		return t.Format(time.RFC3339)
	}
}
