package domain

import (
	"fmt"
	"strings"
)

// Category is the business label assigned to an incoming insurance email.
//
// The integer values are persisted with every prediction and every training
// example. They are pinned explicitly and must never be reordered or reused;
// new categories are appended with the next free value.
type Category int

const (
	CategoryPolicyPurchase             Category = 0
	CategoryClaims                     Category = 1
	CategoryAccountsBilling            Category = 2
	CategoryPolicyInformationMarketing Category = 3
)

// categoryInfo describes one entry of the category registry.
type categoryInfo struct {
	ID          Category
	Name        string
	Description string
}

// categoryRegistry is indexed by Category value. It is fixed at compile time.
var categoryRegistry = [...]categoryInfo{
	{ID: CategoryPolicyPurchase, Name: "POLICY_PURCHASE", Description: "New policy inquiries, quote requests, enrollment or application intent"},
	{ID: CategoryClaims, Name: "CLAIMS", Description: "Accidents, hospitalisation, treatment, reimbursement, damage, claim references"},
	{ID: CategoryAccountsBilling, Name: "ACCOUNTS_BILLING", Description: "Premium payments, due dates, refunds, billing disputes, invoices, receipts"},
	{ID: CategoryPolicyInformationMarketing, Name: "POLICY_INFORMATION_MARKETING", Description: "Coverage and benefit questions, non-payment renewals, promotional content"},
}

// CategoryMeta is the exported, read-only view of a registry entry.
type CategoryMeta struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Categories returns every category in identifier order.
func Categories() []Category {
	out := make([]Category, len(categoryRegistry))
	for i, info := range categoryRegistry {
		out[i] = info.ID
	}
	return out
}

// CategoryCatalog returns the registry as metadata records.
func CategoryCatalog() []CategoryMeta {
	out := make([]CategoryMeta, len(categoryRegistry))
	for i, info := range categoryRegistry {
		out[i] = CategoryMeta{ID: int(info.ID), Name: info.Name, Description: info.Description}
	}
	return out
}

// IsValid reports whether c is a registered category.
func (c Category) IsValid() bool {
	return c >= 0 && int(c) < len(categoryRegistry)
}

// ID returns the persisted integer identity.
func (c Category) ID() int {
	return int(c)
}

func (c Category) String() string {
	if !c.IsValid() {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryRegistry[c].Name
}

// Description returns a human readable summary of the category.
func (c Category) Description() string {
	if !c.IsValid() {
		return ""
	}
	return categoryRegistry[c].Description
}

// CategoryFromID resolves a persisted identifier.
func CategoryFromID(id int) (Category, error) {
	c := Category(id)
	if !c.IsValid() {
		return 0, fmt.Errorf("unknown category id %d", id)
	}
	return c, nil
}

// ParseCategory resolves a category name, case-insensitively.
func ParseCategory(name string) (Category, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	for _, info := range categoryRegistry {
		if info.Name == key {
			return info.ID, nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", name)
}
