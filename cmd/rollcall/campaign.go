package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/rollcall/internal/campaign"
	"github.com/foxzi/rollcall/internal/config"
	"github.com/foxzi/rollcall/internal/scheduler"
	"github.com/foxzi/rollcall/internal/store"
	"github.com/foxzi/rollcall/internal/transport"
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Campaign management commands",
}

var campaignListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known communities and their campaign state",
	RunE:  runCampaignList,
}

var campaignStatusCmd = &cobra.Command{
	Use:   "status <community>",
	Short: "Show campaign details for a community",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignStatus,
}

var campaignCloseCmd = &cobra.Command{
	Use:   "close <community>",
	Short: "Deactivate a community's campaign",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignClose,
}

var campaignResendCmd = &cobra.Command{
	Use:   "resend <community>",
	Short: "Run one forced delivery pass for pending recipients",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignResend,
}

func init() {
	campaignCmd.AddCommand(campaignListCmd, campaignStatusCmd, campaignCloseCmd, campaignResendCmd)
	rootCmd.AddCommand(campaignCmd)
}

// openStore opens the bolt store directly. The admin commands are meant
// for a stopped service; bolt takes an exclusive file lock.
func openStore() (*store.Store, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	return st, nil
}

func runCampaignList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()

	communities, err := st.Communities(ctx)
	if err != nil {
		return fmt.Errorf("failed to list communities: %w", err)
	}

	if len(communities) == 0 {
		fmt.Println("No communities recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COMMUNITY\tACTIVE\tPAUSED\tCAMPAIGN\tDEADLINE\tRECIPIENTS")
	fmt.Fprintln(w, "---------\t------\t------\t--------\t--------\t----------")

	for _, community := range communities {
		rec, err := st.Get(ctx, community)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", community, err)
		}

		deadline := "-"
		if rec.Deadline != nil {
			deadline = rec.Deadline.UTC().Format("2006-01-02 15:04")
		}

		fmt.Fprintf(w, "%s\t%v\t%v\t%s\t%s\t%d\n",
			community,
			rec.Active,
			rec.Paused,
			truncateID(rec.CampaignID),
			deadline,
			len(rec.Recipients),
		)
	}

	w.Flush()
	fmt.Printf("\nTotal: %d communities\n", len(communities))

	return nil
}

func runCampaignStatus(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	community := args[0]

	rec, err := st.Get(ctx, community)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", community, err)
	}

	s := campaign.Project(rec, campaign.DefaultRecentAnswers)

	fmt.Printf("Community: %s\n\n", community)
	fmt.Printf("Active:       %v\n", s.Active)
	fmt.Printf("Paused:       %v\n", s.Paused)
	fmt.Printf("Campaign:     %s\n", orDash(s.CampaignID))
	if s.Deadline != nil {
		fmt.Printf("Deadline:     %s\n", s.Deadline.Format(time.RFC3339))
	}
	fmt.Printf("Max attempts: %d\n", s.AttemptsMax)
	fmt.Printf("Target role:  %s\n", orDash(s.TargetRoleID))
	fmt.Printf("Former role:  %s\n", orDash(s.FormerRoleID))
	fmt.Printf("Pending role: %s\n", orDash(s.PendingRoleID))
	fmt.Printf("Log channel:  %s\n", orDash(s.LogChannelID))

	if len(s.Counts) > 0 {
		fmt.Println("\nRecipients")
		for _, status := range []store.Status{
			store.StatusPending, store.StatusYes, store.StatusNo,
			store.StatusDMFailed, store.StatusExpired,
		} {
			if n := s.Counts[status]; n > 0 {
				fmt.Printf("  %-10s %d\n", status, n)
			}
		}
	}

	if len(s.RecentAnswers) > 0 {
		fmt.Println("\nRecent answers")
		for _, ev := range s.RecentAnswers {
			fmt.Printf("  %s (%s)  %s  %s\n",
				ev.Timestamp.UTC().Format("2006-01-02 15:04"), ago(ev.Timestamp.Time),
				ev.UserID, ev.Answer)
		}
	}

	return nil
}

func runCampaignResend(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	gateway := transport.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.Token, cfg.Gateway.Timeout,
		logger.With("component", "gateway"))
	pacer := scheduler.NewPacer(cfg.Pacing.PerSecond, cfg.Pacing.Burst,
		cfg.Pacing.MinDelay, cfg.Pacing.MaxDelay)
	sched := scheduler.New(st, gateway, pacer, scheduler.Config{
		Interval: cfg.Scheduler.Interval,
		Backoff:  cfg.Scheduler.Backoff,
	}, logger.With("component", "scheduler"))

	sent, err := sched.Run(context.Background(), args[0], true)
	if err != nil {
		return fmt.Errorf("delivery pass failed: %w", err)
	}

	fmt.Printf("Delivery pass complete, %d DMs sent\n", sent)
	return nil
}

// ago renders a timestamp relative to now, coarsely.
func ago(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func runCampaignClose(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	community := args[0]

	err = st.Update(ctx, community, func(rec *store.Record) error {
		rec.Active = false
		rec.Paused = false
		rec.Locked = false
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to close campaign: %w", err)
	}

	fmt.Printf("Campaign for %s closed\n", community)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncateID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) <= 24 {
		return id
	}
	return id[:24] + "..."
}
