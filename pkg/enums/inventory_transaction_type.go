package enums

import "fmt"

// InventoryTransactionType tags an inventory ledger entry.
type InventoryTransactionType string

const (
	InventoryTransactionPurchase   InventoryTransactionType = "purchase"
	InventoryTransactionSale       InventoryTransactionType = "sale"
	InventoryTransactionAdjustment InventoryTransactionType = "adjustment"
	InventoryTransactionReturn     InventoryTransactionType = "return"
	InventoryTransactionDamage     InventoryTransactionType = "damage"
	InventoryTransactionTransfer   InventoryTransactionType = "transfer"
)

var validInventoryTransactionTypes = []InventoryTransactionType{
	InventoryTransactionPurchase,
	InventoryTransactionSale,
	InventoryTransactionAdjustment,
	InventoryTransactionReturn,
	InventoryTransactionDamage,
	InventoryTransactionTransfer,
}

// String implements fmt.Stringer.
func (t InventoryTransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known inventory transaction type.
func (t InventoryTransactionType) IsValid() bool {
	for _, candidate := range validInventoryTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseInventoryTransactionType converts raw input into a InventoryTransactionType.
func ParseInventoryTransactionType(value string) (InventoryTransactionType, error) {
	for _, candidate := range validInventoryTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid inventory transaction type %q", value)
}

// SignedDelta applies the type's sign convention to a raw quantity. Purchases and
// returns add stock, sales and damage remove it, adjustments and transfers keep the
// caller's sign.
func (t InventoryTransactionType) SignedDelta(quantity int) int {
	switch t {
	case InventoryTransactionPurchase, InventoryTransactionReturn:
		return abs(quantity)
	case InventoryTransactionSale, InventoryTransactionDamage:
		return -abs(quantity)
	default:
		return quantity
	}
}

// AllowsNegativeBalance is true only for manual adjustments.
func (t InventoryTransactionType) AllowsNegativeBalance() bool {
	return t == InventoryTransactionAdjustment
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
