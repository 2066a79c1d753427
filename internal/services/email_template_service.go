package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/adamwilson22/Velaa-Backend/internal/db"
	"github.com/adamwilson22/Velaa-Backend/internal/models"
	"github.com/adamwilson22/Velaa-Backend/internal/utils"
)

const DefaultLocale = "en-US"

// ErrTemplateNotFound is returned when neither the database nor the defaults have a template.
var ErrTemplateNotFound = errors.New("email template not found")

// Default email templates used as fallback when not found in database
var defaultEmailTemplates = map[string]models.EmailTemplate{
	"invoice_reminder": {
		TemplateID: "invoice_reminder",
		Locale:     DefaultLocale,
		Subject:    "Invoice {{.InvoiceNumber}} for {{.BillingPeriod}}",
		Body: "Dear {{.ClientName}},\n\n" +
			"This is a reminder that invoice {{.InvoiceNumber}} for vehicle {{.Vehicle}} " +
			"({{.BillingPeriod}}) is due on {{.DueDate}}.\n" +
			"Outstanding balance: {{.Currency}} {{printf \"%.2f\" .BalanceAmount}}.\n\n" +
			"{{.AppName}} Billing",
	},
	"invoice_overdue": {
		TemplateID: "invoice_overdue",
		Locale:     DefaultLocale,
		Subject:    "Overdue: invoice {{.InvoiceNumber}}",
		Body: "Dear {{.ClientName}},\n\n" +
			"Invoice {{.InvoiceNumber}} for vehicle {{.Vehicle}} was due on {{.DueDate}} " +
			"and is {{.DaysOverdue}} day(s) overdue.\n" +
			"Outstanding balance: {{.Currency}} {{printf \"%.2f\" .BalanceAmount}}.\n\n" +
			"{{.AppName}} Billing",
	},
}

// IEmailTemplateService defines the interface for email template operations.
type IEmailTemplateService interface {
	GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error)
	// Render executes the subject and body of a template against data.
	Render(ctx context.Context, templateID, locale string, data any) (subject, body string, err error)
}

// EmailTemplateService handles operations related to email templates
type EmailTemplateService struct {
	db *mongo.Database
}

// NewEmailTemplateService creates a new instance of EmailTemplateService.
// A nil database serves the built-in templates only.
func NewEmailTemplateService(database *mongo.Database) *EmailTemplateService {
	return &EmailTemplateService{db: database}
}

// GetTemplate retrieves an email template by ID and locale
func (s *EmailTemplateService) GetTemplate(ctx context.Context, templateID string, locale string) (*models.EmailTemplate, error) {
	if locale == "" {
		locale = DefaultLocale
	}
	if s.db != nil {
		var tmpl models.EmailTemplate
		err := s.db.Collection(db.EmailTemplatesCollection).
			FindOne(ctx, bson.M{"template_id": templateID, "locale": locale}).
			Decode(&tmpl)
		if err == nil {
			return &tmpl, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("error retrieving template: %w", err)
		}
	}
	if tmpl, ok := defaultEmailTemplates[templateID]; ok {
		return &tmpl, nil
	}
	return nil, fmt.Errorf("%w: %s (locale: %s)", ErrTemplateNotFound, templateID, locale)
}

func (s *EmailTemplateService) Render(ctx context.Context, templateID, locale string, data any) (string, string, error) {
	tmpl, err := s.GetTemplate(ctx, templateID, locale)
	if err != nil {
		return "", "", err
	}
	subject, err := execute(templateID+":subject", tmpl.Subject, data)
	if err != nil {
		return "", "", err
	}
	body, err := execute(templateID+":body", tmpl.Body, data)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

func execute(name, text string, data any) (string, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}

// SaveTemplate saves an email template to the database
func (s *EmailTemplateService) SaveTemplate(ctx context.Context, tmpl *models.EmailTemplate) error {
	if s.db == nil {
		return errors.New("email templates are read-only without a database")
	}
	for _, text := range []string{tmpl.Subject, tmpl.Body} {
		if _, err := template.New(tmpl.TemplateID).Parse(text); err != nil {
			return fmt.Errorf("invalid template %s: %w", tmpl.TemplateID, err)
		}
	}
	filter := bson.M{"template_id": tmpl.TemplateID, "locale": tmpl.Locale}
	update := bson.M{
		"$set": bson.M{
			"template_id": tmpl.TemplateID,
			"locale":      tmpl.Locale,
			"subject":     tmpl.Subject,
			"body":        tmpl.Body,
		},
		"$setOnInsert": bson.M{"_id": utils.NewSixID()},
	}
	if _, err := s.db.Collection(db.EmailTemplatesCollection).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("error saving template: %w", err)
	}
	return nil
}

// DeleteTemplate deletes an email template from the database
func (s *EmailTemplateService) DeleteTemplate(ctx context.Context, templateID string, locale string) error {
	if s.db == nil {
		return errors.New("email templates are read-only without a database")
	}
	filter := bson.M{"template_id": templateID, "locale": locale}
	if _, err := s.db.Collection(db.EmailTemplatesCollection).DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("error deleting template: %w", err)
	}
	return nil
}
