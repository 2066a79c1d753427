package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/adamwilson22/Velaa-Backend/internal/config"
)

// Task types handled by the billing worker.
const (
	TypeInvoiceGenerate     = "billing:invoice:generate"
	TypeInvoiceCheckOverdue = "billing:invoice:check_overdue"
	TypeReminderDelivery    = "billing:reminder:deliver"
	TypeExportMonthly       = "billing:export:monthly"
)

// Queues and their priorities.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// InvoiceGeneratePayload selects the period to generate. An empty period
// means the current period at the time the task runs.
type InvoiceGeneratePayload struct {
	Period     string `json:"period,omitempty"`
	ActingUser string `json:"acting_user,omitempty"`
}

// ReminderPayload asks the worker to email a reminder for one invoice.
type ReminderPayload struct {
	InvoiceID  string `json:"invoice_id"`
	TemplateID string `json:"template_id,omitempty"`
	Locale     string `json:"locale,omitempty"`
	SentBy     string `json:"sent_by"`
}

type ExportPayload struct {
	Period string `json:"period"`
}

func newTask(typ string, payload any, opts ...asynq.Option) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	return asynq.NewTask(typ, data, opts...), nil
}

func NewInvoiceGenerateTask(p InvoiceGeneratePayload) (*asynq.Task, error) {
	return newTask(TypeInvoiceGenerate, p, asynq.Queue(QueueCritical))
}

func NewInvoiceCheckOverdueTask() (*asynq.Task, error) {
	return newTask(TypeInvoiceCheckOverdue, struct{}{}, asynq.Queue(QueueDefault))
}

func NewReminderTask(p ReminderPayload) (*asynq.Task, error) {
	return newTask(TypeReminderDelivery, p, asynq.Queue(QueueDefault), asynq.MaxRetry(5))
}

func NewExportTask(p ExportPayload) (*asynq.Task, error) {
	return newTask(TypeExportMonthly, p, asynq.Queue(QueueLow))
}

// RedisOpt builds the asynq connection options from configuration.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// IEnqueuer submits billing tasks.
type IEnqueuer interface {
	EnqueueGenerate(ctx context.Context, p InvoiceGeneratePayload) (*asynq.TaskInfo, error)
	EnqueueReminder(ctx context.Context, p ReminderPayload) (*asynq.TaskInfo, error)
	EnqueueExport(ctx context.Context, p ExportPayload) (*asynq.TaskInfo, error)
}

// Client submits tasks to the queue.
type Client struct {
	client *asynq.Client
}

func NewClient(opt asynq.RedisConnOpt) *Client {
	return &Client{client: asynq.NewClient(opt)}
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, err error) (*asynq.TaskInfo, error) {
	if err != nil {
		return nil, err
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue %s: %w", task.Type(), err)
	}
	return info, nil
}

func (c *Client) EnqueueGenerate(ctx context.Context, p InvoiceGeneratePayload) (*asynq.TaskInfo, error) {
	task, err := NewInvoiceGenerateTask(p)
	return c.enqueue(ctx, task, err)
}

func (c *Client) EnqueueReminder(ctx context.Context, p ReminderPayload) (*asynq.TaskInfo, error) {
	task, err := NewReminderTask(p)
	return c.enqueue(ctx, task, err)
}

func (c *Client) EnqueueExport(ctx context.Context, p ExportPayload) (*asynq.TaskInfo, error) {
	task, err := NewExportTask(p)
	return c.enqueue(ctx, task, err)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
