package domain

// DeliveryStatus reports whether a live channel was available at route time.
// It says nothing about whether the recipient has read the message.
type DeliveryStatus string

const (
	StatusDelivered DeliveryStatus = "delivered"
	StatusPending   DeliveryStatus = "pending"
)

// DeliveryReceipt is returned to the originating connection only, never
// broadcast. Pending is the sender's only recovery signal: backfill happens
// through the persisted store when the recipient reconnects.
type DeliveryReceipt struct {
	DeliveryID uint64         `json:"deliveryId"`
	Status     DeliveryStatus `json:"status"`
}
