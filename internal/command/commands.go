package command

import "github.com/example/anon-cart/internal/domain/cart"

// Cart Commands
//
// Inputs arrive as loosely-typed candidates decoded from request bodies and
// are checked by the cart validation gate inside the handler.

type CreateCart struct {
	Input cart.Candidate
	// Subject is the authenticated caller, empty for anonymous requests
	Subject string
}

type AddItem struct {
	Input cart.Candidate
}

type UpdateItemQuantity struct {
	ItemID string
	Input  cart.Candidate
}

type RemoveItem struct {
	ItemID string
}
