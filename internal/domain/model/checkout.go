package model

type NextAction string

const (
	NextActionWait            NextAction = "wait"
	NextActionRedirect        NextAction = "redirect"
	NextActionCreateNewIntent NextAction = "create_new_intent"
	NextActionCheckNow        NextAction = "check_now"
	NextActionRetry           NextAction = "retry"
)

// CheckoutView is what the checkout screen renders for one order.
type CheckoutView struct {
	Order      PaymentOrder `json:"order"`
	Polling    bool         `json:"polling"`
	TimedOut   bool         `json:"timed_out"`
	Message    string       `json:"message"`
	NextAction NextAction   `json:"next_action"`
}

// NewCheckoutView fills in the message and next action for the order's state.
func NewCheckoutView(o PaymentOrder, polling, timedOut bool) CheckoutView {
	v := CheckoutView{Order: o, Polling: polling, TimedOut: timedOut}
	switch o.Status {
	case PaymentStatusCompleted:
		v.Message = "Payment received. Your subscription is now active."
		v.NextAction = NextActionRedirect
	case PaymentStatusCancelled:
		v.Message = "This payment was cancelled."
		if o.CancellationReason != nil && *o.CancellationReason != "" {
			v.Message += " Reason: " + *o.CancellationReason
		}
		v.NextAction = NextActionCreateNewIntent
	case PaymentStatusFailed:
		v.Message = "The payment could not be completed."
		v.NextAction = NextActionCreateNewIntent
	default:
		if timedOut || !polling {
			v.Message = "We have not received a confirmation yet. Use \"check now\" to refresh the status."
			v.NextAction = NextActionCheckNow
		} else {
			v.Message = "Waiting for payment. Scan the QR code or open the checkout link."
			v.NextAction = NextActionWait
		}
	}
	return v
}
