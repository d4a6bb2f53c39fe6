// Package domain contains core concepts of the messaging system.
// This file defines the identity types shared by presence and delivery.
// No runtime, network, or UI logic should be added here.
package domain

// UserID is the stable identifier of a user. It is issued by the identity
// layer after authentication and is never generated by the presence or
// delivery code. A UserID must not contain ':', which the storage layer
// reserves as its key separator; transports reject identifiers carrying it.
type UserID string

// ConnectionID identifies one live bidirectional channel to one client
// process. A single UserID may hold zero, one, or several ConnectionIDs at
// the same time (multiple tabs or devices).
type ConnectionID string
