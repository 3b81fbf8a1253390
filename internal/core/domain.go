package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

type (
	// Category is the closed set of spending/earning categories.
	Category string

	// TransactionType discriminates the direction of a transaction.
	TransactionType string

	User struct {
		ID            int64
		Username      string
		Email         string
		PasswordHash  string
		FullName      string
		MonthlyBudget float64
		Currency      string
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}

	Account struct {
		ID            int64
		UserID        int64
		AccountNumber string
		Name          string
		BankName      string
		Balance       float64
		Currency      string
		ExternalID    string // provider identifier, empty when not linked
		AccessToken   string // encrypted provider token
		CreatedAt     time.Time
	}

	Transaction struct {
		ID          int64
		AccountID   int64
		Description string
		Amount      float64 // always positive, see Type
		Type        TransactionType
		Category    Category
		Date        time.Time
		Merchant    string
		ExternalID  string
		CreatedAt   time.Time
	}

	Budget struct {
		ID           int64
		UserID       int64
		Category     Category
		MonthlyLimit float64
		CreatedAt    time.Time
	}

	// RawRecord is a transaction as delivered by an external feed, before
	// validation. A nil Amount or an empty Date marks the field as missing.
	RawRecord struct {
		ExternalID  string   `json:"external_id,omitempty"`
		Description string   `json:"description,omitempty"`
		Merchant    string   `json:"merchant,omitempty"`
		Amount      *float64 `json:"amount"`
		Date        string   `json:"date"`
		Category    string   `json:"category,omitempty"`
		Type        string   `json:"transaction_type,omitempty"`
	}

	// TransactionFilter selects transactions. From is inclusive, To is
	// exclusive; zero values leave the bound open. A nil AccountIDs matches
	// every account, an empty non-nil one matches none.
	TransactionFilter struct {
		AccountIDs []int64
		From       time.Time
		To         time.Time
		Type       TransactionType
		Category   Category
		Limit      int
	}
)

const (
	Food          Category = "Food"
	Transport     Category = "Transport"
	Utilities     Category = "Utilities"
	Entertainment Category = "Entertainment"
	Shopping      Category = "Shopping"
	Healthcare    Category = "Healthcare"
	Education     Category = "Education"
	Salary        Category = "Salary"
	Investment    Category = "Investment"
	Other         Category = "Other"
)

const (
	Income   TransactionType = "Income"
	Expense  TransactionType = "Expense"
	Transfer TransactionType = "Transfer"
)

const (
	DefaultCurrency      = "EUR"
	DefaultMonthlyBudget = 3000.0
	maxDescriptionLen    = 200
)

// Categories lists every category in canonical order. Ordering ties in
// analytics fall back to this order.
var Categories = []Category{
	Food, Transport, Utilities, Entertainment, Shopping,
	Healthcare, Education, Salary, Investment, Other,
}

var categoryAliases = map[string]Category{
	"alimentation":      Food,
	"logement/services": Utilities,
	"services":          Utilities,
	"loisirs":           Entertainment,
	"santé":             Healthcare,
	"sante":             Healthcare,
	"éducation":         Education,
	"education":         Education,
	"salaire":           Salary,
	"investissement":    Investment,
	"autre":             Other,
}

var (
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrEmptyUsername   = errors.New("empty username")
	ErrEmptyName       = errors.New("empty name")
)

// ParseCategory resolves a category name case-insensitively. Legacy French
// labels are accepted as aliases.
func ParseCategory(s string) (Category, error) {
	name := strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(name, string(c)) {
			return c, nil
		}
	}
	if c, ok := categoryAliases[strings.ToLower(name)]; ok {
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

func (c Category) IsValid() bool {
	return c.Ordinal() >= 0
}

// Ordinal returns the position of c in Categories, or -1.
func (c Category) Ordinal() int {
	for i, v := range Categories {
		if v == c {
			return i
		}
	}
	return -1
}

func ParseTransactionType(s string) (TransactionType, error) {
	name := strings.TrimSpace(s)
	for _, t := range []TransactionType{Income, Expense, Transfer} {
		if strings.EqualFold(name, string(t)) {
			return t, nil
		}
	}
	switch strings.ToLower(name) {
	case "revenu":
		return Income, nil
	case "dépense", "depense":
		return Expense, nil
	case "virement":
		return Transfer, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
}

func (t TransactionType) IsValid() bool {
	switch t {
	case Income, Expense, Transfer:
		return true
	}
	return false
}

func (u User) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return &ValidationError{Field: "username", Reason: ErrEmptyUsername.Error()}
	}
	if u.MonthlyBudget < 0 {
		return &ValidationError{Field: "monthly_budget", Reason: "must not be negative"}
	}
	return nil
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return &ValidationError{Field: "name", Reason: ErrEmptyName.Error()}
	}
	if a.UserID <= 0 {
		return &ValidationError{Field: "user_id", Reason: "must be set"}
	}
	return nil
}

func (t Transaction) Validate() error {
	if t.AccountID <= 0 {
		return &ValidationError{Field: "account_id", Reason: "must be set"}
	}
	if math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) || t.Amount < 0 {
		return &ValidationError{Field: "amount", Reason: ErrInvalidAmount.Error()}
	}
	if !t.Type.IsValid() {
		return &ValidationError{Field: "transaction_type", Reason: ErrInvalidType.Error()}
	}
	if !t.Category.IsValid() {
		return &ValidationError{Field: "category", Reason: ErrInvalidCategory.Error()}
	}
	if t.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "missing"}
	}
	if len(t.Description) > maxDescriptionLen {
		return &ValidationError{Field: "description", Reason: "too long (max 200 characters)"}
	}
	return nil
}

func (b Budget) Validate() error {
	if !b.Category.IsValid() {
		return &ValidationError{Field: "category", Reason: ErrInvalidCategory.Error()}
	}
	if math.IsNaN(b.MonthlyLimit) || b.MonthlyLimit < 0 {
		return &ValidationError{Field: "monthly_limit", Reason: "must not be negative"}
	}
	return nil
}

// Signed returns the amount as it affects a balance.
func (t Transaction) Signed() float64 {
	switch t.Type {
	case Income:
		return t.Amount
	case Expense:
		return -t.Amount
	}
	return 0
}
