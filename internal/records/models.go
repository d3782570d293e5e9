package records

import (
	"time"

	"github.com/shopspring/decimal"
)

// State carries the ownership and conflict resolution columns shared by every entity table.
type State struct {
	UserID    string     `gorm:"column:user_id;primaryKey;size:190;not null"`
	UpdatedAt *time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
	DeletedAt *time.Time `gorm:"column:deleted_at"`
}

// Product is a sellable or stocked item.
type Product struct {
	State
	ID           string          `gorm:"column:id;primaryKey;size:190;not null"`
	Name         string          `gorm:"column:name;not null;default:''"`
	Price        decimal.Decimal `gorm:"column:price;type:numeric;not null;default:0"`
	CostPrice    decimal.Decimal `gorm:"column:cost_price;type:numeric;not null;default:0"`
	CurrentStock float64         `gorm:"column:current_stock;not null;default:0"`
	Unit         string          `gorm:"column:unit;not null;default:''"`
	Barcode      *string         `gorm:"column:barcode"`
	IsActive     int             `gorm:"column:is_active;not null;default:1"`
	ItemType     string          `gorm:"column:item_type;not null;default:'RAW'"`
	IsStocked    int             `gorm:"column:is_stocked;not null;default:1"`
	ImagePath    *string         `gorm:"column:image_path"`
}

// TableName provides the explicit table binding for GORM.
func (Product) TableName() string { return tableProducts }

// Customer is a buyer or, when flagged, a supplier.
type Customer struct {
	State
	ID         string  `gorm:"column:id;primaryKey;size:190;not null"`
	Name       string  `gorm:"column:name;not null;default:''"`
	Phone      *string `gorm:"column:phone"`
	Note       *string `gorm:"column:note"`
	IsSupplier int     `gorm:"column:is_supplier;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Customer) TableName() string { return tableCustomers }

// Employee is a staff member recorded on sales.
type Employee struct {
	State
	ID   string `gorm:"column:id;primaryKey;size:190;not null"`
	Name string `gorm:"column:name;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (Employee) TableName() string { return tableEmployees }

// Expense is a recorded operating cost.
type Expense struct {
	State
	ID                  string          `gorm:"column:id;primaryKey;size:190;not null"`
	OccurredAt          time.Time       `gorm:"column:occurred_at;not null"`
	Amount              decimal.Decimal `gorm:"column:amount;type:numeric;not null;default:0"`
	Category            string          `gorm:"column:category;not null;default:''"`
	Note                *string         `gorm:"column:note"`
	ExpenseDocUploaded  int             `gorm:"column:expense_doc_uploaded;not null;default:0"`
	ExpenseDocFileID    *string         `gorm:"column:expense_doc_file_id"`
	ExpenseDocUpdatedAt *time.Time      `gorm:"column:expense_doc_updated_at;autoUpdateTime:false"`
}

// TableName provides the explicit table binding for GORM.
func (Expense) TableName() string { return tableExpenses }

// PurchaseOrder groups stock purchases from one supplier.
type PurchaseOrder struct {
	State
	ID                   string          `gorm:"column:id;primaryKey;size:190;not null"`
	CreatedAt            time.Time       `gorm:"column:created_at;not null;autoCreateTime:false"`
	SupplierName         *string         `gorm:"column:supplier_name"`
	SupplierPhone        *string         `gorm:"column:supplier_phone"`
	DiscountType         string          `gorm:"column:discount_type;not null;default:'AMOUNT'"`
	DiscountValue        decimal.Decimal `gorm:"column:discount_value;type:numeric;not null;default:0"`
	PaidAmount           decimal.Decimal `gorm:"column:paid_amount;type:numeric;not null;default:0"`
	Note                 *string         `gorm:"column:note"`
	PurchaseDocUploaded  int             `gorm:"column:purchase_doc_uploaded;not null;default:0"`
	PurchaseDocFileID    *string         `gorm:"column:purchase_doc_file_id"`
	PurchaseDocUpdatedAt *time.Time      `gorm:"column:purchase_doc_updated_at;autoUpdateTime:false"`
}

// TableName provides the explicit table binding for GORM.
func (PurchaseOrder) TableName() string { return tablePurchaseOrders }

// PurchaseHistory is one purchased product line.
type PurchaseHistory struct {
	State
	ID                   string          `gorm:"column:id;primaryKey;size:190;not null"`
	CreatedAt            time.Time       `gorm:"column:created_at;not null;autoCreateTime:false"`
	ProductID            string          `gorm:"column:product_id;not null;default:''"`
	ProductName          string          `gorm:"column:product_name;not null;default:''"`
	Quantity             float64         `gorm:"column:quantity;not null;default:0"`
	UnitCost             decimal.Decimal `gorm:"column:unit_cost;type:numeric;not null;default:0"`
	TotalCost            decimal.Decimal `gorm:"column:total_cost;type:numeric;not null;default:0"`
	PaidAmount           decimal.Decimal `gorm:"column:paid_amount;type:numeric;not null;default:0"`
	SupplierName         *string         `gorm:"column:supplier_name"`
	SupplierPhone        *string         `gorm:"column:supplier_phone"`
	Note                 *string         `gorm:"column:note"`
	PurchaseDocUploaded  int             `gorm:"column:purchase_doc_uploaded;not null;default:0"`
	PurchaseDocFileID    *string         `gorm:"column:purchase_doc_file_id"`
	PurchaseDocUpdatedAt *time.Time      `gorm:"column:purchase_doc_updated_at;autoUpdateTime:false"`
	PurchaseOrderID      *string         `gorm:"column:purchase_order_id"`
}

// TableName provides the explicit table binding for GORM.
func (PurchaseHistory) TableName() string { return tablePurchaseHistory }

// Debt is money owed to or by a party.
type Debt struct {
	State
	ID            string          `gorm:"column:id;primaryKey;size:190;not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;not null;autoCreateTime:false"`
	Type          int64           `gorm:"column:type;not null;default:0"`
	PartyID       string          `gorm:"column:party_id;not null;default:''"`
	PartyName     string          `gorm:"column:party_name;not null;default:''"`
	InitialAmount decimal.Decimal `gorm:"column:initial_amount;type:numeric;not null;default:0"`
	Amount        decimal.Decimal `gorm:"column:amount;type:numeric;not null;default:0"`
	Description   *string         `gorm:"column:description"`
	DueDate       *time.Time      `gorm:"column:due_date"`
	Settled       int             `gorm:"column:settled;not null;default:0"`
	SourceType    *string         `gorm:"column:source_type"`
	SourceID      *string         `gorm:"column:source_id"`
}

// TableName provides the explicit table binding for GORM.
func (Debt) TableName() string { return tableDebts }

// DebtPayment is an immutable repayment against a debt; it is keyed by uuid.
type DebtPayment struct {
	State
	UUID        string          `gorm:"column:uuid;primaryKey;size:190;not null"`
	DebtID      *string         `gorm:"column:debt_id;index"`
	Amount      decimal.Decimal `gorm:"column:amount;type:numeric;not null;default:0"`
	Note        *string         `gorm:"column:note"`
	PaymentType *string         `gorm:"column:payment_type"`
	CreatedAt   time.Time       `gorm:"column:created_at;not null;autoCreateTime:false"`
}

// TableName provides the explicit table binding for GORM.
func (DebtPayment) TableName() string { return tableDebtPayments }

// Sale is a completed checkout.
type Sale struct {
	State
	ID           string          `gorm:"column:id;primaryKey;size:190;not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;not null;autoCreateTime:false"`
	CustomerID   *string         `gorm:"column:customer_id"`
	CustomerName *string         `gorm:"column:customer_name"`
	EmployeeID   *string         `gorm:"column:employee_id"`
	EmployeeName *string         `gorm:"column:employee_name"`
	Discount     decimal.Decimal `gorm:"column:discount;type:numeric;not null;default:0"`
	PaidAmount   decimal.Decimal `gorm:"column:paid_amount;type:numeric;not null;default:0"`
	PaymentType  *string         `gorm:"column:payment_type"`
	TotalCost    decimal.Decimal `gorm:"column:total_cost;type:numeric;not null;default:0"`
	Note         *string         `gorm:"column:note"`
}

// TableName provides the explicit table binding for GORM.
func (Sale) TableName() string { return tableSales }

// BankAccount is a VietQR receiving account.
type BankAccount struct {
	State
	ID                string  `gorm:"column:id;primaryKey;size:190;not null"`
	BankAPIID         *int64  `gorm:"column:bank_api_id"`
	Name              *string `gorm:"column:name"`
	Code              *string `gorm:"column:code"`
	Bin               *string `gorm:"column:bin"`
	ShortName         *string `gorm:"column:short_name"`
	Logo              *string `gorm:"column:logo"`
	TransferSupported *int    `gorm:"column:transfer_supported"`
	LookupSupported   *int    `gorm:"column:lookup_supported"`
	Support           *int64  `gorm:"column:support"`
	IsTransfer        *int    `gorm:"column:is_transfer"`
	SwiftCode         *string `gorm:"column:swift_code"`
	AccountNo         string  `gorm:"column:account_no;not null;default:''"`
	AccountName       string  `gorm:"column:account_name;not null;default:''"`
	IsDefault         int     `gorm:"column:is_default;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (BankAccount) TableName() string { return tableBankAccounts }
