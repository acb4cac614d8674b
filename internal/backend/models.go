package backend

import "github.com/angelmondragon/farmgate-checkout/pkg/types"

type OrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreateOrderRequest struct {
	UserID          string        `json:"user_id"`
	Items           []OrderItem   `json:"items"`
	ShippingAddress types.Address `json:"shipping_address"`
	IdempotencyKey  string        `json:"-"`
}

type CreatedOrder struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
}

type CreateIntentRequest struct {
	UserID      string `json:"user_id"`
	OrderID     string `json:"order_id"`
	AmountCents int64  `json:"amount"`
	Currency    string `json:"currency"`
}

type PaymentIntent struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
	AmountCents  int64  `json:"amount"`
	Status       string `json:"status,omitempty"`
}

type ConfirmPaymentRequest struct {
	IntentID          string `json:"intent_id"`
	UserID            string `json:"user_id"`
	ProviderPaymentID string `json:"provider_payment_id,omitempty"`
}

type Transaction struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	AmountCents   int64  `json:"amount"`
}

type QuantityCheck struct {
	Available         bool `json:"available"`
	AvailableQuantity int  `json:"available_quantity"`
}

type Session struct {
	UserID string `json:"user_id"`
	Active bool   `json:"active"`
}
