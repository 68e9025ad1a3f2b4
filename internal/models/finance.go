package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type PaymentType string

const (
	PaymentReceive PaymentType = "RECEIVE"
	PaymentPay     PaymentType = "PAY"
)

type PaymentMethod string

const (
	MethodCash     PaymentMethod = "CASH"
	MethodCard     PaymentMethod = "CARD"
	MethodTransfer PaymentMethod = "TRANSFER"
	MethodCheque   PaymentMethod = "CHEQUE"
	MethodOnline   PaymentMethod = "ONLINE"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentSuccess  PaymentStatus = "SUCCESS"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

type PaymentCategory struct {
	ID uint `gorm:"primaryKey" json:"id"`
	Tenant
	Name        string      `gorm:"not null" json:"name" validate:"required,max=100"`
	Description string      `json:"description"`
	Type        PaymentType `gorm:"type:varchar(16)" json:"type" validate:"omitempty,oneof=RECEIVE PAY"`
	Timestamps
}

type Payment struct {
	ID uint `gorm:"primaryKey" json:"id"`
	Tenant
	WorkspaceUserID uint            `gorm:"not null;index" json:"workspaceUserId" validate:"required"`
	CategoryID      *uint           `gorm:"index" json:"categoryId"`
	ChequeID        *uint           `gorm:"index" json:"chequeId"`
	InvoiceID       *uint           `gorm:"index" json:"invoiceId"`
	Amount          decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount" validate:"gt=0"`
	Method          PaymentMethod   `gorm:"type:varchar(16);not null" json:"method" validate:"required,oneof=CASH CARD TRANSFER CHEQUE ONLINE"`
	Type            PaymentType     `gorm:"type:varchar(16);not null" json:"type" validate:"required,oneof=RECEIVE PAY"`
	Status          PaymentStatus   `gorm:"type:varchar(16);not null;default:'PENDING'" json:"status" validate:"omitempty,oneof=PENDING SUCCESS FAILED REFUNDED"`
	Description     string          `json:"description"`
	PaidAt          *time.Time      `json:"paidAt"`
	Timestamps

	WorkspaceUser *WorkspaceUser   `gorm:"foreignKey:WorkspaceUserID" json:"workspaceUser,omitempty"`
	Category      *PaymentCategory `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}

type ChequeStatus string

const (
	ChequeCreated   ChequeStatus = "CREATED"
	ChequeDeposited ChequeStatus = "DEPOSITED"
	ChequeCleared   ChequeStatus = "CLEARED"
	ChequeBounced   ChequeStatus = "BOUNCED"
	ChequeReturned  ChequeStatus = "RETURNED"
	ChequeCancelled ChequeStatus = "CANCELLED"
)

var chequeTransitions = map[ChequeStatus][]ChequeStatus{
	ChequeCreated:   {ChequeDeposited, ChequeCancelled},
	ChequeDeposited: {ChequeCleared, ChequeBounced},
	ChequeBounced:   {ChequeDeposited, ChequeReturned, ChequeCancelled},
}

// CanTransition reports whether a cheque may move from s to next.
func (s ChequeStatus) CanTransition(next ChequeStatus) bool {
	for _, allowed := range chequeTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type ChequeDirection string

const (
	ChequeReceived ChequeDirection = "RECEIVED"
	ChequeIssued   ChequeDirection = "ISSUED"
)

type Cheque struct {
	ID uint `gorm:"primaryKey" json:"id"`
	Tenant
	WorkspaceUserID uint            `gorm:"not null;index" json:"workspaceUserId" validate:"required"`
	PaymentID       *uint           `gorm:"index" json:"paymentId"`
	Serial          string          `gorm:"not null" json:"serial" validate:"required,max=64"`
	BankName        string          `gorm:"not null" json:"bankName" validate:"required,max=100"`
	BranchName      string          `json:"branchName"`
	AccountHolder   string          `json:"accountHolder"`
	Amount          decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount" validate:"gt=0"`
	IssueDate       time.Time       `json:"issueDate"`
	DueDate         time.Time       `gorm:"index" json:"dueDate" validate:"required"`
	Direction       ChequeDirection `gorm:"type:varchar(16);not null;default:'RECEIVED'" json:"direction" validate:"omitempty,oneof=RECEIVED ISSUED"`
	Status          ChequeStatus    `gorm:"type:varchar(16);not null;default:'CREATED'" json:"status" validate:"omitempty,oneof=CREATED DEPOSITED CLEARED BOUNCED RETURNED CANCELLED"`
	Description     string          `json:"description"`
	Timestamps

	WorkspaceUser *WorkspaceUser        `gorm:"foreignKey:WorkspaceUserID" json:"workspaceUser,omitempty"`
	Payment       *Payment              `gorm:"foreignKey:PaymentID" json:"payment,omitempty"`
	History       []ChequeStatusHistory `gorm:"foreignKey:ChequeID" json:"history,omitempty"`
}

type ChequeStatusHistory struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	ChequeID    uint              `gorm:"not null;index" json:"chequeId"`
	FromStatus  ChequeStatus      `gorm:"type:varchar(16)" json:"fromStatus"`
	ToStatus    ChequeStatus      `gorm:"type:varchar(16)" json:"toStatus"`
	Note        string            `json:"note"`
	ChangedByID *uint             `json:"changedById"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "DRAFT"
	InvoiceIssued    InvoiceStatus = "ISSUED"
	InvoicePaid      InvoiceStatus = "PAID"
	InvoiceCancelled InvoiceStatus = "CANCELLED"
)

type Invoice struct {
	ID uint `gorm:"primaryKey" json:"id"`
	Tenant
	WorkspaceUserID  uint            `gorm:"not null;index" json:"workspaceUserId" validate:"required"`
	ServiceRequestID *uint           `gorm:"index" json:"serviceRequestId"`
	Number           string          `gorm:"index" json:"number"`
	Status           InvoiceStatus   `gorm:"type:varchar(16);not null;default:'DRAFT'" json:"status" validate:"omitempty,oneof=DRAFT ISSUED PAID CANCELLED"`
	IssueDate        *time.Time      `json:"issueDate"`
	DueDate          *time.Time      `json:"dueDate"`
	Total            decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"total"`
	Notes            string          `json:"notes"`
	Timestamps

	WorkspaceUser *WorkspaceUser `gorm:"foreignKey:WorkspaceUserID" json:"workspaceUser,omitempty"`
	Items         []InvoiceItem  `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"items,omitempty" validate:"omitempty,dive"`
}

type InvoiceItem struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	InvoiceID   uint            `gorm:"not null;index" json:"invoiceId"`
	Description string          `gorm:"not null" json:"description" validate:"required"`
	Quantity    int             `gorm:"not null;default:1" json:"quantity" validate:"omitempty,gte=1"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"unitPrice" validate:"gte=0"`
	Total       decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total"`
}
