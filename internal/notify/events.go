package notify

// Event types emitted by the marketplace. Operators list the types they
// want forwarded in the notify configuration.
const (
	EventItemListed    = "item_listed"
	EventItemPurchased = "item_purchased"
	EventError         = "error"
)
