package models

// All lists every persisted model, in dependency order, for schema bootstrapping in tests and dev.
func All() []any {
	return []any{
		&Product{},
		&ProductVariant{},
		&CartItem{},
		&DiscountCode{},
		&Order{},
		&OrderItem{},
		&Payment{},
		&InventoryTransaction{},
		&PurchaseOrder{},
		&PurchaseOrderItem{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
