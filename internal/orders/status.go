package orders

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusFailed    Status = "failed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCanceled  Status = "canceled"
)

// Placement only ever creates orders as pending; every transition below
// is driven by downstream payment/shipment collaborators.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPaid: true, StatusFailed: true, StatusCanceled: true},
	StatusPaid:      {StatusShipped: true, StatusFailed: true, StatusCanceled: true},
	StatusShipped:   {StatusDelivered: true},
	StatusDelivered: {},
	StatusFailed:    {},
	StatusCanceled:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
