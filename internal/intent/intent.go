// Package intent maps free-text queries onto the closed set of assistant actions.
package intent

import (
	"regexp"
	"strconv"
	"strings"
)

// Action is the kind of session mutation a query asks for.
type Action int

const (
	NoAction Action = iota
	AddToCart
	DeleteFromCart
	UpdateCart
	Checkout
	RequestDiscount
)

func (a Action) String() string {
	switch a {
	case AddToCart:
		return "add_to_cart"
	case DeleteFromCart:
		return "delete_from_cart"
	case UpdateCart:
		return "update_cart"
	case Checkout:
		return "checkout"
	case RequestDiscount:
		return "request_discount"
	default:
		return "no_action"
	}
}

// NeedsResults reports whether the action targets a search result and so
// degrades to NoAction when the index returned nothing.
func (a Action) NeedsResults() bool {
	return a == AddToCart || a == DeleteFromCart || a == UpdateCart
}

type trigger struct {
	phrase string
	action Action
}

// triggers are checked in order; the first match wins.
var triggers = []trigger{
	{"add to cart", AddToCart},
	{"delete from cart", DeleteFromCart},
	{"update cart", UpdateCart},
	{"proceed to check out", Checkout},
	{"provide me discount", RequestDiscount},
}

// Classify returns the action requested by query.
func Classify(query string) Action {
	q := strings.ToLower(query)
	for _, t := range triggers {
		if strings.Contains(q, t.phrase) {
			return t.action
		}
	}
	return NoAction
}

var numberRe = regexp.MustCompile(`\d+`)

// ParseQuantity returns the first positive integer in query, or 1.
func ParseQuantity(query string) int {
	for _, m := range numberRe.FindAllString(query, -1) {
		if n, err := strconv.Atoi(m); err == nil && n > 0 {
			return n
		}
	}
	return 1
}

// Result tags the outcome of a dispatched action.
type Result string

const (
	ResultNoAction        Result = "no_action"
	ResultAddedToCart     Result = "added_to_cart"
	ResultDeletedFromCart Result = "deleted_from_cart"
	ResultUpdatedCart     Result = "updated_cart"
	ResultCheckout        Result = "proceed_to_checkout"
	ResultPaymentFailed   Result = "payment_failed"
	ResultDiscountApplied Result = "discount_applied"
)
