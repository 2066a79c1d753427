package models

type ClientType string

const (
	ClientIndividual ClientType = "Individual"
	ClientBusiness   ClientType = "Business"
	ClientDealer     ClientType = "Dealer"
)

type Client struct {
	Base     `bson:",inline"`
	Name     string     `bson:"name" json:"name"`
	Phone    string     `bson:"phone" json:"phone"`
	Email    string     `bson:"email,omitempty" json:"email,omitempty"`
	Type     ClientType `bson:"type" json:"type"`
	IsActive bool       `bson:"is_active" json:"is_active"`

	Timestamps `bson:",inline"`
}

func (c *Client) Summary() *ClientSummary {
	return &ClientSummary{ID: c.ID, Name: c.Name, Phone: c.Phone, Email: c.Email}
}
