package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/voxen-api/internal/repository"
	"github.com/noah-isme/voxen-api/internal/service"
	"github.com/noah-isme/voxen-api/pkg/notify"
)

type dueDispatcher interface {
	DispatchDueToday(ctx context.Context) (*service.NotificationReport, error)
}

var newDispatcherFunc = buildDispatcher // mockable

func newNotifyDueCmd(cli *commandLine) *cobra.Command {
	return &cobra.Command{
		Use:   "notify-due",
		Short: "Send reminders to every student whose monthly fee is due today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dispatcher, err := newDispatcherFunc(cmd.Context(), cli)
			if err != nil {
				return err
			}
			report, err := dispatcher.DispatchDueToday(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s via %s: %d due, %d sent, %d failed\n",
				report.Date.Format("2006-01-02"), report.Channel, report.Total, report.Sent, report.Failed)
			if report.Failed > 0 {
				return fmt.Errorf("%d reminder(s) not delivered", report.Failed)
			}
			return nil
		},
	}
}

func buildDispatcher(ctx context.Context, cli *commandLine) (dueDispatcher, error) {
	db, err := cli.database(ctx)
	if err != nil {
		return nil, err
	}
	notifier, err := notify.New(cli.cfg.Notifications, cli.logger)
	if err != nil {
		return nil, err
	}
	clock := service.Clock{Location: cli.cfg.Location()}
	billing := service.NewBillingService(
		repository.NewStudentRepository(db),
		repository.NewEnrollmentRepository(db),
		repository.NewPaymentRepository(db),
		clock,
		cli.logger,
	)
	return service.NewNotificationService(billing, notifier, nil, clock, service.NotificationServiceConfig{
		Workers:     cli.cfg.Notifications.Workers,
		MaxRetries:  cli.cfg.Notifications.MaxRetries,
		RetryDelay:  cli.cfg.Notifications.RetryDelay,
		SendTimeout: cli.cfg.Notifications.SendTimeout,
	}, cli.logger), nil
}
