package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/voxen-api/internal/models"
	"github.com/noah-isme/voxen-api/pkg/jobs"
	"github.com/noah-isme/voxen-api/pkg/notify"
)

const dueReminderJob = "due_reminder"

type dueFeed interface {
	dueOn(ctx context.Context, today time.Time) ([]models.DueStudent, error)
}

// NotificationServiceConfig sizes the reminder worker pool.
type NotificationServiceConfig struct {
	Workers     int
	MaxRetries  int
	RetryDelay  time.Duration
	SendTimeout time.Duration
}

// NotificationReport summarises one dispatch run.
type NotificationReport struct {
	Date    time.Time `json:"date"`
	Channel string    `json:"channel"`
	Total   int       `json:"total"`
	Sent    int       `json:"sent"`
	Failed  int       `json:"failed"`
}

// NotificationService sends the daily due-date reminders.
type NotificationService struct {
	feed     dueFeed
	notifier notify.Notifier
	metrics  *MetricsService
	clock    Clock
	cfg      NotificationServiceConfig
	logger   *zap.Logger
}

// NewNotificationService wires the dispatcher to the due-today feed.
func NewNotificationService(billing *BillingService, notifier notify.Notifier, metrics *MetricsService, clock Clock, cfg NotificationServiceConfig, logger *zap.Logger) *NotificationService {
	return newNotificationService(billing, notifier, metrics, clock, cfg, logger)
}

func newNotificationService(feed dueFeed, notifier notify.Notifier, metrics *MetricsService, clock Clock, cfg NotificationServiceConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	return &NotificationService{feed: feed, notifier: notifier, metrics: metrics, clock: clock, cfg: cfg, logger: logger}
}

// DispatchDueToday reminds every student due today. Each student is a separate
// job, so one failed delivery is retried on its own and never aborts the batch.
func (s *NotificationService) DispatchDueToday(ctx context.Context) (*NotificationReport, error) {
	today := s.clock.Today()
	due, err := s.feed.dueOn(ctx, today)
	if err != nil {
		return nil, err
	}

	channel := s.notifier.Channel()
	report := &NotificationReport{Date: today, Channel: channel, Total: len(due)}
	if len(due) == 0 {
		s.logger.Info("no students due today", zap.Time("date", today))
		return report, nil
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	record := func(studentID string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.Failed++
			s.logger.Warn("due reminder not delivered", zap.String("student_id", studentID), zap.Error(err))
		} else {
			report.Sent++
		}
		s.metrics.RecordNotification(channel, err)
	}

	queue := jobs.NewQueue("due-reminders", func(ctx context.Context, job jobs.Job) error {
		msg, ok := job.Payload.(notify.Message)
		if !ok {
			return fmt.Errorf("unexpected payload %T", job.Payload)
		}
		err := s.notifier.Send(ctx, msg)
		if errors.Is(err, notify.ErrNoContact) {
			return jobs.Permanent(err)
		}
		return err
	}, jobs.QueueConfig{
		Workers:        s.cfg.Workers,
		BufferSize:     len(due),
		MaxRetries:     s.cfg.MaxRetries,
		RetryDelay:     s.cfg.RetryDelay,
		AttemptTimeout: s.cfg.SendTimeout,
		Logger:         s.logger,
		OnDone: func(job jobs.Job, err error) {
			record(job.ID, err)
			wg.Done()
		},
	})
	queue.Start(ctx)

	for _, item := range due {
		wg.Add(1)
		job := jobs.Job{ID: item.Student.ID, Type: dueReminderJob, Payload: reminderMessage(item)}
		if err := queue.Enqueue(job); err != nil {
			record(item.Student.ID, err)
			wg.Done()
		}
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		queue.Stop()
	case <-ctx.Done():
		queue.Stop()
		<-finished
	}

	s.logger.Info("due reminders dispatched",
		zap.Time("date", today),
		zap.String("channel", channel),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
	)
	return report, ctx.Err()
}

func reminderMessage(item models.DueStudent) notify.Message {
	modalities := modalityLabels(item.Modalities)
	if modalities == "" {
		modalities = "seus cursos"
	}
	var body strings.Builder
	fmt.Fprintf(&body, "Olá, %s!\n\n", item.Student.FullName)
	fmt.Fprintf(&body, "Lembrete: sua mensalidade vence hoje (%s).\n\n", item.DueDate.Format("02/01/2006"))
	fmt.Fprintf(&body, "Valor: %s\n", formatBRL(item.TotalMonthlyAmount.StringFixed(2)))
	fmt.Fprintf(&body, "Modalidades: %s\n\n", modalities)
	body.WriteString("Para enviar o comprovante de pagamento, acesse o sistema.")

	to := notify.Recipient{Name: item.Student.FullName, Phone: item.Student.ContactPhone()}
	if item.Student.Email != nil {
		to.Email = *item.Student.Email
	}
	return notify.Message{
		To:      to,
		Subject: "Lembrete de mensalidade",
		Body:    body.String(),
	}
}

func formatBRL(amount string) string {
	return "R$ " + strings.Replace(amount, ".", ",", 1)
}
