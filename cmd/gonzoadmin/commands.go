package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MarkoPoloResearchLab/gonzofleet/internal/adminserver"
	"github.com/MarkoPoloResearchLab/gonzofleet/internal/backoffice"
	"github.com/MarkoPoloResearchLab/gonzofleet/internal/digest"
	"github.com/MarkoPoloResearchLab/gonzofleet/internal/fleetapi"
	"github.com/MarkoPoloResearchLab/gonzofleet/pkg/fleet"
	"github.com/spf13/cobra"
)

const (
	flagListenAddr     = "listen-addr"
	flagAllowedOrigins = "allowed-origins"
	flagRequestTimeout = "request-timeout"
	flagStatus         = "status"
	flagSort           = "sort"
	flagDescending     = "desc"
	flagToggleBilling  = "toggle-billing"
	flagBody           = "body"
	flagDryRun         = "dry-run"
	flagSchedule       = "schedule"
	flagOnce           = "once"
)

func (state *app) apiClient() (*fleetapi.Client, error) {
	if err := state.cfg.Validate(); err != nil {
		return nil, err
	}
	return state.cfg.NewAPIClient()
}

func (state *app) viewOptions() []backoffice.Option {
	return []backoffice.Option{backoffice.WithLogger(state.logger)}
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

func newServeCommand(state *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin console JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := state.cfg
			cfg.ListenAddr = strings.TrimSpace(state.v.GetString(flagListenAddr))
			cfg.AllowedOrigins = adminserver.ParseAllowedOrigins(state.v.GetString(flagAllowedOrigins))
			cfg.RequestTimeout = state.v.GetDuration(flagRequestTimeout)
			if err := cfg.Validate(); err != nil {
				return err
			}
			client, err := cfg.NewAPIClient()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()
			return adminserver.Run(ctx, cfg, client, state.logger)
		},
	}
	cmd.Flags().String(flagListenAddr, ":8080", "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().Duration(flagRequestTimeout, 0, "upper bound for one console request (e.g. 15s)")
	return cmd
}

func newApplicationsCommand(state *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "applications",
		Short: "List driver applications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := state.apiClient()
			if err != nil {
				return err
			}
			var status fleet.ApplicationStatus
			if raw := strings.TrimSpace(state.v.GetString(flagStatus)); raw != "" {
				if status, err = fleet.ParseApplicationStatus(raw); err != nil {
					return err
				}
			}
			list, err := backoffice.NewApplicationList(client, state.viewOptions()...)
			if err != nil {
				return err
			}
			defer list.Close()
			if err := list.SetFilter(cmd.Context(), status); err != nil {
				return err
			}
			snapshot := list.Snapshot()
			if column := state.v.GetString(flagSort); column != "" {
				rows, err := list.SortedRows(column, state.v.GetBool(flagDescending))
				if err != nil {
					return err
				}
				snapshot.Rows = rows
			}
			return writeJSON(cmd.OutOrStdout(), snapshot)
		},
	}
	cmd.Flags().String(flagStatus, "", "filter: pending, approved or declined; empty lists all")
	cmd.Flags().String(flagSort, "", "sort column: name, email, submitted or status")
	cmd.Flags().Bool(flagDescending, false, "sort descending")
	return cmd
}

func newDriverCommand(state *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "driver <driver-id>",
		Short: "Show a driver with their ledger and payment aliases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := state.apiClient()
			if err != nil {
				return err
			}
			detail, err := backoffice.NewDriverDetail(client, state.viewOptions()...)
			if err != nil {
				return err
			}
			defer detail.Close()
			if err := detail.Load(cmd.Context(), args[0]); err != nil {
				return err
			}
			if state.v.GetBool(flagToggleBilling) {
				if err := detail.ToggleBilling(cmd.Context()); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), detail.Snapshot())
		},
	}
	cmd.Flags().Bool(flagToggleBilling, false, "pause or resume billing before printing")
	return cmd
}

func newPaymentsCommand(state *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payments",
		Short: "List unrecognized payments with stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := state.reconciliation(cmd.Context())
			if err != nil {
				return err
			}
			defer view.Close()
			return writeJSON(cmd.OutOrStdout(), view.Snapshot())
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "assign <payment-id> <driver-id>",
		Short: "Assign an unrecognized payment to a driver",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := state.reconciliation(cmd.Context())
			if err != nil {
				return err
			}
			defer view.Close()
			if err := view.BeginAssign(args[0]); err != nil {
				return err
			}
			if err := view.SelectDriver(args[1]); err != nil {
				return err
			}
			if err := view.ConfirmAssign(cmd.Context()); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), view.Snapshot())
		},
	})
	return cmd
}

func (state *app) reconciliation(ctx context.Context) (*backoffice.Reconciliation, error) {
	client, err := state.apiClient()
	if err != nil {
		return nil, err
	}
	view, err := backoffice.NewReconciliation(client, state.viewOptions()...)
	if err != nil {
		return nil, err
	}
	if err := view.Load(ctx); err != nil {
		view.Close()
		return nil, err
	}
	return view, nil
}

func newMessageCommand(state *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message <application-id>",
		Short: "Send an SMS to an applicant, seeded with the status template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := state.apiClient()
			if err != nil {
				return err
			}
			outreach, err := backoffice.NewOutreach(client, state.viewOptions()...)
			if err != nil {
				return err
			}
			if err := outreach.OpenApplication(cmd.Context(), args[0]); err != nil {
				return err
			}
			if cmd.Flags().Changed(flagBody) {
				outreach.Edit(state.v.GetString(flagBody))
			}
			if state.v.GetBool(flagDryRun) {
				return writeJSON(cmd.OutOrStdout(), outreach.Snapshot())
			}
			result, err := outreach.Confirm(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().String(flagBody, "", "message body; defaults to the template for the application status")
	cmd.Flags().Bool(flagDryRun, false, "print the composed message without sending")
	return cmd
}

func newDigestCommand(state *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Log a summary of unrecognized payments on a schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := state.apiClient()
			if err != nil {
				return err
			}
			runner, err := digest.NewRunner(client, digest.Config{Schedule: state.v.GetString(flagSchedule)}, state.logger)
			if err != nil {
				return err
			}
			if state.v.GetBool(flagOnce) {
				summary, err := runner.RunOnce(cmd.Context())
				if err != nil {
					return fmt.Errorf("digest: %w", err)
				}
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			ctx, stop := signalContext(cmd)
			defer stop()
			return runner.Run(ctx)
		},
	}
	cmd.Flags().String(flagSchedule, "", "cron schedule (default @every 15m)")
	cmd.Flags().Bool(flagOnce, false, "print one digest and exit")
	return cmd
}
