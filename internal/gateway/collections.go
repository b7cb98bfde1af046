package gateway

import (
	"tenancy-backend/internal/docstore"
	"tenancy-backend/internal/models"
)

// Collection bindings for the record types of this app. The users collection
// is keyed by identity id; the rest carry a userId owner field.
var (
	UsersCollection      = Collection{Name: models.CollectionUsers, OwnerScoped: true}
	ComplaintsCollection = Collection{Name: models.CollectionComplaints, OwnerScoped: true}
	VendorsCollection    = Collection{Name: models.CollectionVendors, OwnerScoped: true}
	MessagesCollection   = Collection{Name: models.CollectionMessages, OwnerScoped: true}
)

// Typed gateways over the app collections.
type (
	Profiles   = Gateway[models.UserProfile, *models.UserProfile]
	Complaints = Gateway[models.Complaint, *models.Complaint]
	Vendors    = Gateway[models.Vendor, *models.Vendor]
	Messages   = Gateway[models.Message, *models.Message]
)

// NewProfiles creates the users collection gateway.
func NewProfiles(store docstore.Store, sessions IdentitySource) *Profiles {
	return New[models.UserProfile, *models.UserProfile](store, sessions, UsersCollection)
}

// NewComplaints creates the complaints collection gateway.
func NewComplaints(store docstore.Store, sessions IdentitySource) *Complaints {
	return New[models.Complaint, *models.Complaint](store, sessions, ComplaintsCollection)
}

// NewVendors creates the vendors collection gateway.
func NewVendors(store docstore.Store, sessions IdentitySource) *Vendors {
	return New[models.Vendor, *models.Vendor](store, sessions, VendorsCollection)
}

// NewMessages creates the messages collection gateway.
func NewMessages(store docstore.Store, sessions IdentitySource) *Messages {
	return New[models.Message, *models.Message](store, sessions, MessagesCollection)
}
