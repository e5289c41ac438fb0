package orders

const (
	TopicOrderPlaced = "order.placed"
	TopicOrderPaid   = "order.paid"
)

// Partition key = order_id, so all events of one order stay ordered.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
