package inventory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the only writer of product and variant stock.
type Service interface {
	AppendTransaction(ctx context.Context, input AppendInput) (*models.InventoryTransaction, error)
	AppendTransactionTx(ctx context.Context, tx *gorm.DB, input AppendInput) (*models.InventoryTransaction, error)
	AppendTransactionsTx(ctx context.Context, tx *gorm.DB, inputs []AppendInput) ([]*models.InventoryTransaction, error)
	AdjustInventory(ctx context.Context, input AdjustInput) (*models.InventoryTransaction, error)
	Reserve(ctx context.Context, tx *gorm.DB, lines []StockLine, ref Reference) error
	Restore(ctx context.Context, tx *gorm.DB, lines []StockLine, ref Reference) error
	ListTransactions(ctx context.Context, filter TransactionFilter, params pagination.Params) (pagination.Page[models.InventoryTransaction], error)
	History(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*StockHistory, error)
	GetStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*StockLevel, error)
}

// AppendInput is one ledger entry request. Quantity is interpreted with the type's sign convention.
type AppendInput struct {
	ProductID     uuid.UUID                      `json:"product_id"`
	VariantID     *uuid.UUID                     `json:"variant_id,omitempty"`
	Type          enums.InventoryTransactionType `json:"transaction_type"`
	Quantity      int                            `json:"quantity"`
	UnitCost      *int64                         `json:"unit_cost,omitempty"`
	ReferenceType *enums.ReferenceType           `json:"reference_type,omitempty"`
	ReferenceID   *uuid.UUID                     `json:"reference_id,omitempty"`
	Notes         *string                        `json:"notes,omitempty"`
	CreatedBy     *uuid.UUID                     `json:"created_by,omitempty"`
}

// AdjustInput is an operator correction with a signed delta.
type AdjustInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Delta     int
	Reason    string
	Actor     *uuid.UUID
}

// StockLine is a quantity of one product, or one variant of it.
type StockLine struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

// Reference ties reservation and restore entries to the aggregate that caused them.
type Reference struct {
	Type  enums.ReferenceType
	ID    uuid.UUID
	Actor *uuid.UUID
	Note  string
}

// Shortfall describes one line that could not be reserved.
type Shortfall struct {
	ProductID uuid.UUID  `json:"product_id"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Name      string     `json:"name"`
	Requested int        `json:"requested"`
	Available int        `json:"available"`
	Shortfall int        `json:"shortfall"`
}

// StockLevel is the live, unlocked stock read used for display.
type StockLevel struct {
	ProductID      uuid.UUID           `json:"product_id"`
	VariantID      *uuid.UUID          `json:"variant_id,omitempty"`
	Quantity       int                 `json:"inventory_quantity"`
	TrackInventory bool                `json:"track_inventory"`
	Status         enums.ProductStatus `json:"status"`
}

// HistoryEntry pairs a ledger row with the balance recomputed from the entries before it.
type HistoryEntry struct {
	models.InventoryTransaction
	RunningBalance int  `json:"running_balance"`
	Consistent     bool `json:"consistent"`
}

// StockHistory is the ledger of one stock row, oldest first.
type StockHistory struct {
	ProductID    uuid.UUID      `json:"product_id"`
	VariantID    *uuid.UUID     `json:"variant_id,omitempty"`
	Entries      []HistoryEntry `json:"entries"`
	CurrentStock int            `json:"current_stock"`
	Consistent   bool           `json:"consistent"`
}

type service struct {
	tx   txRunner
	repo Repository
}

// NewService wires the inventory ledger service.
func NewService(tx txRunner, repo Repository) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	return &service{tx: tx, repo: repo}, nil
}

func (s *service) AppendTransaction(ctx context.Context, input AppendInput) (*models.InventoryTransaction, error) {
	if err := validateAppend(input); err != nil {
		return nil, err
	}
	var entry *models.InventoryTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		entry, err = s.AppendTransactionTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) AppendTransactionTx(ctx context.Context, tx *gorm.DB, input AppendInput) (*models.InventoryTransaction, error) {
	entries, err := s.AppendTransactionsTx(ctx, tx, []AppendInput{input})
	if err != nil {
		return nil, err
	}
	return entries[0], nil
}

// AppendTransactionsTx locks every stock row the inputs touch in key order before
// writing any entry. Entries are returned in input order.
func (s *service) AppendTransactionsTx(ctx context.Context, tx *gorm.DB, inputs []AppendInput) ([]*models.InventoryTransaction, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if len(inputs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no ledger entries")
	}
	keys := make([]stockKey, 0, len(inputs))
	seen := make(map[stockKey]bool, len(inputs))
	for _, input := range inputs {
		if err := validateAppend(input); err != nil {
			return nil, err
		}
		key := newStockKey(input.ProductID, input.VariantID)
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	sortKeys(keys)

	repo := s.repo.WithTx(tx)
	locked, err := lockStock(ctx, repo, keys)
	if err != nil {
		return nil, err
	}

	entries := make([]*models.InventoryTransaction, 0, len(inputs))
	for _, input := range inputs {
		entry := &models.InventoryTransaction{
			ProductID:       input.ProductID,
			VariantID:       input.VariantID,
			TransactionType: input.Type,
			UnitCost:        input.UnitCost,
			ReferenceType:   input.ReferenceType,
			ReferenceID:     input.ReferenceID,
			Notes:           input.Notes,
			CreatedBy:       input.CreatedBy,
		}
		if input.UnitCost != nil {
			total := *input.UnitCost * int64(absInt(input.Quantity))
			entry.TotalCost = &total
		}
		key := newStockKey(input.ProductID, input.VariantID)
		if err := applyDelta(ctx, repo, locked[key], entry, input.Type.SignedDelta(input.Quantity)); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *service) AdjustInventory(ctx context.Context, input AdjustInput) (*models.InventoryTransaction, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment reason required")
	}
	ref := enums.ReferenceTypeManual
	return s.AppendTransaction(ctx, AppendInput{
		ProductID:     input.ProductID,
		VariantID:     input.VariantID,
		Type:          enums.InventoryTransactionAdjustment,
		Quantity:      input.Delta,
		ReferenceType: &ref,
		Notes:         &reason,
		CreatedBy:     input.Actor,
	})
}

// Reserve locks every referenced row in key order, checks all lines before touching any
// stock, then decrements and records one sale entry per stock row.
func (s *service) Reserve(ctx context.Context, tx *gorm.DB, lines []StockLine, ref Reference) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	keys, demand, err := mergeLines(lines)
	if err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)
	locked, err := lockStock(ctx, repo, keys)
	if err != nil {
		return err
	}

	var shortfalls []Shortfall
	for _, key := range keys {
		stock := locked[key]
		if !stock.product.TrackInventory {
			continue
		}
		requested, available := demand[key], stock.quantity()
		if available < requested {
			shortfalls = append(shortfalls, Shortfall{
				ProductID: key.productID,
				VariantID: key.variantPtr(),
				Name:      stock.name(),
				Requested: requested,
				Available: available,
				Shortfall: requested - available,
			})
		}
	}
	if len(shortfalls) > 0 {
		return insufficientStock(shortfalls)
	}

	for _, key := range keys {
		stock := locked[key]
		if !stock.product.TrackInventory {
			continue
		}
		entry := ref.entry(key, enums.InventoryTransactionSale)
		if err := applyDelta(ctx, repo, stock, entry, -demand[key]); err != nil {
			return err
		}
	}
	return nil
}

// Restore is the inverse of Reserve. Untracked products are skipped the same way.
func (s *service) Restore(ctx context.Context, tx *gorm.DB, lines []StockLine, ref Reference) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	keys, amounts, err := mergeLines(lines)
	if err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)
	locked, err := lockStock(ctx, repo, keys)
	if err != nil {
		return err
	}
	for _, key := range keys {
		stock := locked[key]
		if !stock.product.TrackInventory {
			continue
		}
		entry := ref.entry(key, enums.InventoryTransactionReturn)
		if err := applyDelta(ctx, repo, stock, entry, amounts[key]); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) ListTransactions(ctx context.Context, filter TransactionFilter, params pagination.Params) (pagination.Page[models.InventoryTransaction], error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[models.InventoryTransaction]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	entries, err := s.repo.ListTransactions(ctx, filter, params)
	if err != nil {
		return pagination.Page[models.InventoryTransaction]{}, err
	}
	return pagination.Build(entries, params, func(entry models.InventoryTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: entry.CreatedAt, ID: entry.ID}
	}), nil
}

func (s *service) History(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*StockHistory, error) {
	level, err := s.GetStock(ctx, productID, variantID)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListStockHistory(ctx, productID, variantID)
	if err != nil {
		return nil, err
	}

	history := &StockHistory{
		ProductID:    productID,
		VariantID:    variantID,
		Entries:      make([]HistoryEntry, 0, len(entries)),
		CurrentStock: level.Quantity,
		Consistent:   true,
	}
	if len(entries) == 0 {
		return history, nil
	}

	running := entries[0].BalanceAfter - entries[0].Quantity
	for _, entry := range entries {
		running += entry.Quantity
		consistent := running == entry.BalanceAfter
		if !consistent {
			history.Consistent = false
		}
		history.Entries = append(history.Entries, HistoryEntry{
			InventoryTransaction: entry,
			RunningBalance:       running,
			Consistent:           consistent,
		})
	}
	if entries[len(entries)-1].BalanceAfter != level.Quantity {
		history.Consistent = false
	}
	return history, nil
}

func (s *service) GetStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*StockLevel, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	product, err := s.repo.FindProduct(ctx, productID)
	if err != nil {
		return nil, notFound(err, "product not found")
	}
	level := &StockLevel{
		ProductID:      product.ID,
		Quantity:       product.InventoryQuantity,
		TrackInventory: product.TrackInventory,
		Status:         product.Status,
	}
	if variantID != nil {
		variant, err := s.repo.FindVariant(ctx, productID, *variantID)
		if err != nil {
			return nil, notFound(err, "product variant not found")
		}
		level.VariantID = &variant.ID
		level.Quantity = variant.InventoryQuantity
	}
	return level, nil
}

func validateAppend(input AppendInput) error {
	if input.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.VariantID != nil && *input.VariantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "variant id must not be empty")
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", input.Type))
	}
	if input.Quantity == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be zero")
	}
	if input.UnitCost != nil && *input.UnitCost < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit cost must not be negative")
	}
	return nil
}

type stockKey struct {
	productID uuid.UUID
	variantID uuid.UUID
}

func newStockKey(productID uuid.UUID, variantID *uuid.UUID) stockKey {
	key := stockKey{productID: productID}
	if variantID != nil {
		key.variantID = *variantID
	}
	return key
}

func (k stockKey) variantPtr() *uuid.UUID {
	if k.variantID == uuid.Nil {
		return nil
	}
	id := k.variantID
	return &id
}

func (k stockKey) less(other stockKey) bool {
	if c := bytes.Compare(k.productID[:], other.productID[:]); c != 0 {
		return c < 0
	}
	return bytes.Compare(k.variantID[:], other.variantID[:]) < 0
}

// mergeLines sums quantities per stock row and returns the keys in lock order.
func mergeLines(lines []StockLine) ([]stockKey, map[stockKey]int, error) {
	if len(lines) == 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "no stock lines")
	}
	totals := make(map[stockKey]int, len(lines))
	keys := make([]stockKey, 0, len(lines))
	for _, line := range lines {
		if line.ProductID == uuid.Nil {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if line.Quantity <= 0 {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		key := newStockKey(line.ProductID, line.VariantID)
		if _, seen := totals[key]; !seen {
			keys = append(keys, key)
		}
		totals[key] += line.Quantity
	}
	sortKeys(keys)
	return keys, totals, nil
}

func sortKeys(keys []stockKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
}

type lockedStock struct {
	product *models.Product
	variant *models.ProductVariant
}

func (l *lockedStock) quantity() int {
	if l.variant != nil {
		return l.variant.InventoryQuantity
	}
	return l.product.InventoryQuantity
}

func (l *lockedStock) name() string {
	if l.variant != nil {
		return l.product.Name + " (" + l.variant.Name + ")"
	}
	return l.product.Name
}

// lockStock takes row locks in the order of keys. keys must already be sorted; a product
// row is locked once, before any of its variants.
func lockStock(ctx context.Context, repo Repository, keys []stockKey) (map[stockKey]*lockedStock, error) {
	products := make(map[uuid.UUID]*models.Product)
	locked := make(map[stockKey]*lockedStock, len(keys))
	for _, key := range keys {
		product, ok := products[key.productID]
		if !ok {
			var err error
			product, err = repo.LockProduct(ctx, key.productID)
			if err != nil {
				return nil, notFound(err, fmt.Sprintf("product %s not found", key.productID))
			}
			products[key.productID] = product
		}
		stock := &lockedStock{product: product}
		if key.variantID != uuid.Nil {
			variant, err := repo.LockVariant(ctx, key.productID, key.variantID)
			if err != nil {
				return nil, notFound(err, fmt.Sprintf("product variant %s not found", key.variantID))
			}
			stock.variant = variant
		}
		locked[key] = stock
	}
	return locked, nil
}

// applyDelta moves one locked stock row by delta and appends the matching ledger entry.
// The in-memory rows are updated too so later lines in the same transaction see the new value.
func applyDelta(ctx context.Context, repo Repository, stock *lockedStock, entry *models.InventoryTransaction, delta int) error {
	current := stock.quantity()
	next := current + delta
	if next < 0 && !entry.TransactionType.AllowsNegativeBalance() {
		return insufficientStock([]Shortfall{{
			ProductID: stock.product.ID,
			VariantID: entry.VariantID,
			Name:      stock.name(),
			Requested: -delta,
			Available: current,
			Shortfall: -next,
		}})
	}

	if stock.variant != nil {
		if err := repo.UpdateVariantStock(ctx, stock.variant.ID, next); err != nil {
			return err
		}
		stock.variant.InventoryQuantity = next
	} else {
		status := nextProductStatus(stock.product, next)
		if err := repo.UpdateProductStock(ctx, stock.product.ID, next, status); err != nil {
			return err
		}
		stock.product.InventoryQuantity = next
		stock.product.Status = status
	}

	entry.Quantity = delta
	entry.BalanceAfter = next
	return repo.CreateTransaction(ctx, entry)
}

// nextProductStatus flips between active and out_of_stock as tracked stock crosses zero.
// Inactive products keep their status.
func nextProductStatus(product *models.Product, quantity int) enums.ProductStatus {
	if !product.TrackInventory {
		return product.Status
	}
	switch {
	case quantity <= 0 && product.Status == enums.ProductStatusActive:
		return enums.ProductStatusOutOfStock
	case quantity > 0 && product.Status == enums.ProductStatusOutOfStock:
		return enums.ProductStatusActive
	default:
		return product.Status
	}
}

func (r Reference) entry(key stockKey, txType enums.InventoryTransactionType) *models.InventoryTransaction {
	entry := &models.InventoryTransaction{
		ProductID:       key.productID,
		VariantID:       key.variantPtr(),
		TransactionType: txType,
		CreatedBy:       r.Actor,
	}
	if r.Type != "" {
		refType := r.Type
		entry.ReferenceType = &refType
	}
	if r.ID != uuid.Nil {
		refID := r.ID
		entry.ReferenceID = &refID
	}
	if note := strings.TrimSpace(r.Note); note != "" {
		entry.Notes = &note
	}
	return entry
}

func insufficientStock(shortfalls []Shortfall) error {
	first := shortfalls[0]
	msg := fmt.Sprintf("insufficient stock for %s: requested %d, available %d", first.Name, first.Requested, first.Available)
	if len(shortfalls) > 1 {
		msg = fmt.Sprintf("%s (and %d more items)", msg, len(shortfalls)-1)
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, msg).WithDetails(shortfalls)
}

func notFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, msg)
	}
	return err
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
