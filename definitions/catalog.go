package definitions

import "github.com/goliatone/go-flows/internal/domain"

// DefaultActionCatalog declares the built-in actions and the origins they are
// compatible with. Stock mutations only make sense for movement line items;
// cascading a status change only makes sense for a movement header driving
// its items.
func DefaultActionCatalog() ActionCatalog {
	return ActionCatalog{
		domain.ActionTypeStockMove:     {string(domain.OriginMovementItem)},
		domain.ActionTypeStockReverse:  {string(domain.OriginMovementItem)},
		domain.ActionTypeCascadeStatus: {string(domain.OriginMovement)},
	}
}
