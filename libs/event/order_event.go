package event

// OrderEvent is the payload produced once per order mutation (create or
// delete). Immutable after construction.
type OrderEvent struct {
	Email        string        `json:"email"`
	OrderID      string        `json:"orderId"`
	RequestID    string        `json:"requestId"`
	ProductCodes []string      `json:"productCodes"`
	Billing      OrderBilling  `json:"billing"`
	Shipping     OrderShipping `json:"shipping"`
}

type OrderBilling struct {
	Payment    string  `json:"payment"`
	TotalPrice float64 `json:"totalPrice"`
}

type OrderShipping struct {
	Type    string `json:"type"`
	Carrier string `json:"carrier"`
}
