package records

import (
	"fmt"
	"time"
)

// EntityType is the replication tag of a business record type.
type EntityType string

const (
	EntityProducts        EntityType = "products"
	EntityCustomers       EntityType = "customers"
	EntitySales           EntityType = "sales"
	EntityDebts           EntityType = "debts"
	EntityDebtPayments    EntityType = "debt_payments"
	EntityPurchaseOrders  EntityType = "purchase_orders"
	EntityPurchaseHistory EntityType = "purchase_history"
	EntityExpenses        EntityType = "expenses"
	EntityEmployees       EntityType = "employees"
	EntityBankAccounts    EntityType = "vietqr_bank_accounts"
)

const (
	tableProducts        = "products"
	tableCustomers       = "customers"
	tableSales           = "sales"
	tableDebts           = "debts"
	tableDebtPayments    = "debt_payments"
	tablePurchaseOrders  = "purchase_orders"
	tablePurchaseHistory = "purchase_history"
	tableExpenses        = "expenses"
	tableEmployees       = "employees"
	tableBankAccounts    = "vietqr_bank_accounts"

	keyColumnID   = "id"
	keyColumnUUID = "uuid"
)

// Descriptor declares the storage schema of one entity type.
type Descriptor struct {
	Entity    EntityType
	Table     string
	KeyColumn string
	Columns   []Column
	Model     any
}

var descriptors = []Descriptor{
	{
		Entity:    EntityProducts,
		Table:     tableProducts,
		KeyColumn: keyColumnID,
		Model:     &Product{},
		Columns: []Column{
			text("name", "name", ""),
			money("price", "price"),
			money("cost_price", "costPrice"),
			number("current_stock", "currentStock"),
			text("unit", "unit", ""),
			optionalText("barcode", "barcode"),
			flag("is_active", "isActive", 1),
			text("item_type", "itemType", "RAW"),
			flag("is_stocked", "isStocked", 1),
			optionalText("image_path", "imagePath"),
		},
	},
	{
		Entity:    EntityCustomers,
		Table:     tableCustomers,
		KeyColumn: keyColumnID,
		Model:     &Customer{},
		Columns: []Column{
			text("name", "name", ""),
			optionalText("phone", "phone"),
			optionalText("note", "note"),
			flag("is_supplier", "isSupplier", 0),
		},
	},
	{
		Entity:    EntityEmployees,
		Table:     tableEmployees,
		KeyColumn: keyColumnID,
		Model:     &Employee{},
		Columns: []Column{
			text("name", "name", ""),
		},
	},
	{
		Entity:    EntityExpenses,
		Table:     tableExpenses,
		KeyColumn: keyColumnID,
		Model:     &Expense{},
		Columns: []Column{
			timestampOrUpdated("occurred_at", "occurredAt"),
			money("amount", "amount"),
			text("category", "category", ""),
			optionalText("note", "note"),
			flag("expense_doc_uploaded", "expenseDocUploaded", 0),
			optionalText("expense_doc_file_id", "expenseDocFileId"),
			timestamp("expense_doc_updated_at", "expenseDocUpdatedAt"),
		},
	},
	{
		Entity:    EntityPurchaseOrders,
		Table:     tablePurchaseOrders,
		KeyColumn: keyColumnID,
		Model:     &PurchaseOrder{},
		Columns: []Column{
			timestampOrUpdated("created_at", "createdAt"),
			optionalText("supplier_name", "supplierName"),
			optionalText("supplier_phone", "supplierPhone"),
			text("discount_type", "discountType", "AMOUNT"),
			money("discount_value", "discountValue"),
			money("paid_amount", "paidAmount"),
			optionalText("note", "note"),
			flag("purchase_doc_uploaded", "purchaseDocUploaded", 0),
			optionalText("purchase_doc_file_id", "purchaseDocFileId"),
			timestamp("purchase_doc_updated_at", "purchaseDocUpdatedAt"),
		},
	},
	{
		Entity:    EntityPurchaseHistory,
		Table:     tablePurchaseHistory,
		KeyColumn: keyColumnID,
		Model:     &PurchaseHistory{},
		Columns: []Column{
			timestampOrUpdated("created_at", "createdAt"),
			text("product_id", "productId", ""),
			text("product_name", "productName", ""),
			number("quantity", "quantity"),
			money("unit_cost", "unitCost"),
			money("total_cost", "totalCost"),
			money("paid_amount", "paidAmount"),
			optionalText("supplier_name", "supplierName"),
			optionalText("supplier_phone", "supplierPhone"),
			optionalText("note", "note"),
			flag("purchase_doc_uploaded", "purchaseDocUploaded", 0),
			optionalText("purchase_doc_file_id", "purchaseDocFileId"),
			timestamp("purchase_doc_updated_at", "purchaseDocUpdatedAt"),
			optionalText("purchase_order_id", "purchaseOrderId"),
		},
	},
	{
		Entity:    EntityDebts,
		Table:     tableDebts,
		KeyColumn: keyColumnID,
		Model:     &Debt{},
		Columns: []Column{
			timestampOrUpdated("created_at", "createdAt"),
			integer("type", "type"),
			text("party_id", "partyId", ""),
			text("party_name", "partyName", ""),
			money("initial_amount", "initialAmount"),
			money("amount", "amount"),
			optionalText("description", "description"),
			timestamp("due_date", "dueDate"),
			flag("settled", "settled", 0),
			optionalText("source_type", "sourceType"),
			optionalText("source_id", "sourceId"),
		},
	},
	{
		// Debt payments are never edited after creation; clients only insert or soft-delete them.
		Entity:    EntityDebtPayments,
		Table:     tableDebtPayments,
		KeyColumn: keyColumnUUID,
		Model:     &DebtPayment{},
		Columns: []Column{
			optionalText("debt_id", "debtId"),
			money("amount", "amount"),
			optionalText("note", "note"),
			optionalText("payment_type", "paymentType"),
			timestampOrUpdated("created_at", "createdAt"),
		},
	},
	{
		Entity:    EntitySales,
		Table:     tableSales,
		KeyColumn: keyColumnID,
		Model:     &Sale{},
		Columns: []Column{
			timestampOrUpdated("created_at", "createdAt"),
			optionalText("customer_id", "customerId"),
			optionalText("customer_name", "customerName"),
			optionalText("employee_id", "employeeId"),
			optionalText("employee_name", "employeeName"),
			money("discount", "discount"),
			money("paid_amount", "paidAmount"),
			optionalText("payment_type", "paymentType"),
			money("total_cost", "totalCost"),
			optionalText("note", "note"),
		},
	},
	{
		Entity:    EntityBankAccounts,
		Table:     tableBankAccounts,
		KeyColumn: keyColumnID,
		Model:     &BankAccount{},
		Columns: []Column{
			optionalInteger("bank_api_id", "bankApiId"),
			optionalText("name", "name"),
			optionalText("code", "code"),
			optionalText("bin", "bin"),
			optionalText("short_name", "shortName", "short_name"),
			optionalText("logo", "logo"),
			optionalFlag("transfer_supported", "transferSupported"),
			optionalFlag("lookup_supported", "lookupSupported"),
			optionalInteger("support", "support"),
			optionalFlag("is_transfer", "isTransfer"),
			optionalText("swift_code", "swift_code", "swiftCode"),
			text("account_no", "accountNo", ""),
			text("account_name", "accountName", ""),
			flag("is_default", "isDefault", 0),
		},
	},
}

var catalog = func() map[EntityType]Descriptor {
	indexed := make(map[EntityType]Descriptor, len(descriptors))
	for _, descriptor := range descriptors {
		indexed[descriptor.Entity] = descriptor
	}
	return indexed
}()

// Lookup returns the descriptor for a replication entity tag.
func Lookup(entity string) (Descriptor, bool) {
	descriptor, ok := catalog[EntityType(entity)]
	return descriptor, ok
}

// Descriptors lists every known entity type in declaration order.
func Descriptors() []Descriptor {
	return append([]Descriptor(nil), descriptors...)
}

// Models returns the GORM models backing the entity tables.
func Models() []any {
	models := make([]any, 0, len(descriptors))
	for _, descriptor := range descriptors {
		models = append(models, descriptor.Model)
	}
	return models
}

// Materialize maps a client payload onto the descriptor's columns, applying defaults and casts.
func (d Descriptor) Materialize(payload map[string]any, updatedAt time.Time) (map[string]any, error) {
	columns := make(map[string]any, len(d.Columns))
	for _, column := range d.Columns {
		value, err := column.cast(payload, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", d.Table, column.Name, err)
		}
		columns[column.Name] = value
	}
	return columns, nil
}

func (d Descriptor) columnNames() []string {
	names := make([]string, 0, len(d.Columns))
	for _, column := range d.Columns {
		names = append(names, column.Name)
	}
	return names
}
