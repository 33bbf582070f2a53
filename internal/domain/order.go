package domain

import "strings"

// Order status as reported by the upstream shipping API. The comparison is
// case-sensitive: the upstream reports processed-but-stale orders under other
// casings and those must not be dispatched.
const StatusNew = "NEW"

// LineItem is a single product line within an order
type LineItem struct {
	SKU      string `json:"sku" bson:"sku"`
	Name     string `json:"name" bson:"name"`
	Quantity int    `json:"quantity" bson:"quantity"`
}

// Shipment is the fulfillment unit within an order that receives a courier
// assignment and label. AWBCode and Courier are empty until assignment.
type Shipment struct {
	ID      int64  `json:"id" bson:"id"`
	AWBCode string `json:"awb_code" bson:"awbCode"`
	Courier string `json:"courier" bson:"courier"`
}

// Order represents one customer purchase pulled from the upstream system.
// JSON tags follow the upstream wire format, so API responses decode into
// this type directly.
type Order struct {
	ID             int64      `json:"id" bson:"id"`
	ChannelOrderID string     `json:"channel_order_id" bson:"channelOrderId"`
	CustomerName   string     `json:"customer_name" bson:"customerName"`
	CustomerPhone  string     `json:"customer_phone" bson:"customerPhone"`
	BillingPhone   string     `json:"billing_phone" bson:"billingPhone"`
	ShippingPhone  string     `json:"shipping_phone" bson:"shippingPhone"`
	CustomerEmail  string     `json:"customer_email" bson:"customerEmail"`
	CustomerCity   string     `json:"customer_city" bson:"customerCity"`
	CustomerState  string     `json:"customer_state" bson:"customerState"`
	CustomerPin    string     `json:"customer_pincode" bson:"customerPincode"`
	Total          float64    `json:"total" bson:"total"`
	PaymentMethod  string     `json:"payment_method" bson:"paymentMethod"`
	CreatedAt      string     `json:"created_at" bson:"createdAt"`
	Status         string     `json:"status" bson:"status"`
	Shipments      []Shipment `json:"shipments" bson:"shipments"`
	Products       []LineItem `json:"products" bson:"products"`
}

// Phone returns the first non-empty phone field, in the order the upstream
// populates them.
func (o *Order) Phone() string {
	for _, p := range []string{o.CustomerPhone, o.BillingPhone, o.ShippingPhone} {
		if p != "" {
			return p
		}
	}
	return ""
}

// NormalizedPhone strips non-digits and keeps the last 10 digits. Returns ""
// when the order has no usable phone.
func (o *Order) NormalizedPhone() string {
	return NormalizePhone(o.Phone())
}

// NormalizePhone strips non-digits from a raw phone and keeps the last 10
// digits, the national significant part for this market.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > 10 {
		return digits[len(digits)-10:]
	}
	return digits
}

// FirstShipmentID returns the id of the order's first shipment, if any
func (o *Order) FirstShipmentID() (int64, bool) {
	if len(o.Shipments) == 0 || o.Shipments[0].ID == 0 {
		return 0, false
	}
	return o.Shipments[0].ID, true
}

// HasAWB reports whether any shipment already carries an AWB code. AWB
// presence is the authoritative already-processed signal, regardless of the
// status the upstream reports.
func (o *Order) HasAWB() bool {
	for _, s := range o.Shipments {
		if s.AWBCode != "" {
			return true
		}
	}
	return false
}

// DispatchEligible reports whether the order may be sent for courier
// assignment: status is literally NEW and no shipment has an AWB yet.
func (o *Order) DispatchEligible() bool {
	return o.Status == StatusNew && !o.HasAWB()
}

// SKUs returns the distinct SKUs across the order's line items, in first-seen
// order.
func (o *Order) SKUs() []string {
	seen := make(map[string]struct{}, len(o.Products))
	var out []string
	for _, item := range o.Products {
		if item.SKU == "" {
			continue
		}
		if _, ok := seen[item.SKU]; ok {
			continue
		}
		seen[item.SKU] = struct{}{}
		out = append(out, item.SKU)
	}
	return out
}
