package dispatch

import "reviewflow/internal/gateway"

// Recipient is the slice of a customer row the engine needs.
type Recipient struct {
	ID    string
	Name  string
	Phone string
}

// Connection is the persisted session state the engine trusts. The engine
// never polls the bridge itself; the connection tracker keeps this current.
type Connection struct {
	InstanceName string
	Status       string
}

// Settings is the slice of business settings the engine needs.
type Settings struct {
	ReviewURL       string
	MessageTemplate string
}

// Store is the persistence seam for one dispatch invocation.
type Store interface {
	// Connection returns the session row for a business, or nil if none exists.
	Connection(businessID string) (*Connection, error)
	// Settings returns the settings row for a business, or nil if none exists.
	Settings(businessID string) (*Settings, error)
	// ResolveRecipients returns the customers owned by the business whose ids
	// appear in the list, in the order the ids were given. Unknown ids are
	// silently dropped.
	ResolveRecipients(businessID string, ids []string) ([]Recipient, error)
	// TemplateBody returns the body of the template with the given id, or of
	// the business's default template when id is empty. Returns "" when no
	// such template exists.
	TemplateBody(businessID, templateID string) (string, error)
	// AppendLog appends one immutable delivery record.
	AppendLog(businessID, customerID, status, errorMessage string) error
	// MarkContacted stamps the customer's last_message_at with the current time.
	MarkContacted(customerID string) error
}

// Gateway is the single bridge operation the engine uses.
type Gateway interface {
	SendText(sessionID, number, text string) (*gateway.DeliveryAck, error)
}
