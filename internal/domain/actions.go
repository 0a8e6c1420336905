package domain

// Built-in action type keys. The dispatcher resolves implementations by these
// keys; the graph validator rejects configurations referencing anything else.
const (
	ActionTypeStockMove     = "stock.move"
	ActionTypeStockReverse  = "stock.reverse"
	ActionTypeCascadeStatus = "cascade.status"
)
