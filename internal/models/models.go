package models

import "time"

// Collection names in the document store.
const (
	CollectionUsers      = "users"
	CollectionComplaints = "TenancyComplaints"
	CollectionVendors    = "vendors"
	CollectionMessages   = "messages"
)

// Identity is the authenticated principal of a session. Exactly one Identity
// (or none) is current at any time; it is owned by the session manager and
// read-only everywhere else.
type Identity struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	PhotoURL string `json:"photo_url,omitempty"`
}

// UserProfile is the per-identity profile record, keyed 1:1 by identity id
// in the users collection.
type UserProfile struct {
	ID               string `json:"id,omitempty"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	ContactNumber    string `json:"contactNumber"`
	Photo            string `json:"photo"`
	ProfileImagePath string `json:"profileImagePath,omitempty"`
	PushToken        string `json:"pushToken,omitempty"`
}

// Complaint is a tenancy complaint. Immutable once created; owned by the
// creating identity but readable through the unscoped all-complaints view.
type Complaint struct {
	ID      string `json:"id,omitempty"`
	Subject string `json:"subject"`
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

// Vendor is a per-user vendor contact.
type Vendor struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Phone  string `json:"phone"`
	UserID string `json:"userId"`
}

// Message is a stored outbound message. Write-only: no read path is exposed.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Recipient string    `json:"recipient"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	SenderID  string    `json:"senderId"`
}

// SetDocID attaches the store-assigned document id after decoding.
func (p *UserProfile) SetDocID(id string) { p.ID = id }

// SetDocID attaches the store-assigned document id after decoding.
func (c *Complaint) SetDocID(id string) { c.ID = id }

// SetDocID attaches the store-assigned document id after decoding.
func (v *Vendor) SetDocID(id string) { v.ID = id }

// SetDocID attaches the store-assigned document id after decoding.
func (m *Message) SetDocID(id string) { m.ID = id }
