package checkout

import (
	"context"

	"github.com/timour/stateset-core/internal/catalog"
	"github.com/timour/stateset-core/internal/inventory"
	"github.com/timour/stateset-core/internal/money"
)

// standardShippingOptionID is the id of the single fulfillment option
// resolveFulfillment offers. Availability is probed across the configured
// location ids only, and the option ships from the first of them.
const standardShippingOptionID = "standard"

// resolveFulfillment implements spec.md §4.7's "fulfillment option
// resolution": it checks that every item in the session is available in
// some location (via the Inventory Engine's availability probe) and offers
// a standard shipping option when so. Items missing from every location
// produce a Message rather than failing the whole resolution — the session
// stays in NotReadyForPayment until the buyer removes or substitutes the
// item.
func resolveFulfillment(ctx context.Context, inv *inventory.Engine, catalogReader catalog.Reader, locationIDs []string, sess *Session) error {
	sess.Messages = nil
	allAvailable := true

	for _, item := range sess.Items {
		available, err := inv.Probe(ctx, item.ProductID, locationIDs)
		if err != nil {
			return err
		}
		if !available {
			allAvailable = false
			sess.Messages = append(sess.Messages, Message{
				Code: "ITEM_UNAVAILABLE",
				Text: "item " + item.SKU + " is not available at any location",
			})
		}
	}

	sess.FulfillmentOptions = nil
	if allAvailable && len(sess.Items) > 0 {
		sess.FulfillmentOptions = []FulfillmentOption{{
			ID:         standardShippingOptionID,
			LocationID: locationIDs[0],
			Label:      "Standard Shipping",
			Shipping:   money.New(sess.Currency, 500),
		}}
	}

	return nil
}

// isReady reports spec.md §4.7's readiness predicate: buyer email present,
// fulfillment address present, every item available somewhere, and a
// fulfillment option chosen.
func isReady(sess Session) bool {
	if sess.Buyer == nil || sess.Buyer.Email == "" {
		return false
	}
	if sess.FulfillmentAddress == nil {
		return false
	}
	if sess.FulfillmentOptionID == "" {
		return false
	}
	if len(sess.FulfillmentOptions) == 0 {
		return false
	}
	for _, msg := range sess.Messages {
		if msg.Code == "ITEM_UNAVAILABLE" {
			return false
		}
	}
	return true
}
