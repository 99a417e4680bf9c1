package types

// CheckoutMode selects the Stripe checkout session mode.
type CheckoutMode string

const (
	CheckoutModeSubscription CheckoutMode = "subscription"
	CheckoutModePayment      CheckoutMode = "payment"
)

// Valid reports whether the mode is one of the recognized values.
func (m CheckoutMode) Valid() bool {
	return m == CheckoutModeSubscription || m == CheckoutModePayment
}

// RedirectURLs guides the user after hosted checkout completes or is abandoned.
type RedirectURLs struct {
	Success string
	Cancel  string
}
