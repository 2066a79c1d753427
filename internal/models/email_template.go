package models

// EmailTemplate is a subject/body pair rendered with text/template.
type EmailTemplate struct {
	Base       `bson:",inline"`
	TemplateID string `bson:"template_id" json:"template_id"` // e.g. "invoice_reminder"
	Locale     string `bson:"locale" json:"locale"`
	Subject    string `bson:"subject" json:"subject"`
	Body       string `bson:"body" json:"body"`
}
