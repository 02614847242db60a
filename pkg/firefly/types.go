// Package firefly provides a Firefly III API client and types.
package firefly

import (
	"fmt"

	"cloud.google.com/go/civil"
)

// Transaction types accepted by Firefly III.
const (
	TypeWithdrawal = "withdrawal"
	TypeDeposit    = "deposit"
	TypeTransfer   = "transfer"
)

// About describes the Firefly III instance.
type About struct {
	Version    string `json:"version"`
	APIVersion string `json:"api_version"`
	PHPVersion string `json:"php_version"`
	OS         string `json:"os"`
	Driver     string `json:"driver"`
}

// Account is an account as returned by /api/v1/accounts.
type Account struct {
	ID   string
	Name string
	Type string
}

// Category is a category as returned by /api/v1/categories.
type Category struct {
	ID   string
	Name string
}

// Pagination is the meta.pagination block of list responses.
type Pagination struct {
	Total       int `json:"total"`
	Count       int `json:"count"`
	PerPage     int `json:"per_page"`
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

// LastPage reports whether there are no further pages after this one.
func (p Pagination) LastPage() bool {
	return p.CurrentPage >= p.TotalPages
}

// TransactionSplit is one split of a transaction group, used for both
// reading and storing.
type TransactionSplit struct {
	Type            string   `json:"type"`
	Date            string   `json:"date"`
	Amount          string   `json:"amount"`
	CurrencyCode    string   `json:"currency_code,omitempty"`
	Description     string   `json:"description"`
	SourceID        string   `json:"source_id,omitempty"`
	DestinationName string   `json:"destination_name,omitempty"`
	ExternalID      string   `json:"external_id,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	CategoryName    string   `json:"category_name,omitempty"`
	Notes           string   `json:"notes,omitempty"`
}

// HasTag reports whether the split carries tag.
func (s TransactionSplit) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// SplitDate returns the calendar date of the split.
// Firefly returns RFC 3339 timestamps; only the date part is significant.
func (s TransactionSplit) SplitDate() (civil.Date, error) {
	if len(s.Date) < 10 {
		return civil.Date{}, fmt.Errorf("invalid split date %q", s.Date)
	}
	return civil.ParseDate(s.Date[:10])
}

// TransactionGroup is a stored transaction with its splits.
type TransactionGroup struct {
	ID     string
	Title  string
	Splits []TransactionSplit
}

// TransactionPage is one page of /api/v1/transactions.
type TransactionPage struct {
	Groups     []TransactionGroup
	Pagination Pagination
}

// StoreTransactionRequest is the body of POST /api/v1/transactions.
type StoreTransactionRequest struct {
	ErrorIfDuplicateHash bool               `json:"error_if_duplicate_hash"`
	ApplyRules           bool               `json:"apply_rules"`
	GroupTitle           string             `json:"group_title,omitempty"`
	Transactions         []TransactionSplit `json:"transactions"`
}

// Wire formats. Firefly wraps every resource in a JSON:API style envelope.

type resource[T any] struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Attributes T      `json:"attributes"`
}

type singleResponse[T any] struct {
	Data resource[T] `json:"data"`
}

type listResponse[T any] struct {
	Data []resource[T] `json:"data"`
	Meta struct {
		Pagination Pagination `json:"pagination"`
	} `json:"meta"`
}

type aboutResponse struct {
	Data About `json:"data"`
}

type accountAttributes struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type categoryAttributes struct {
	Name string `json:"name"`
}

type transactionAttributes struct {
	GroupTitle   string             `json:"group_title"`
	Transactions []TransactionSplit `json:"transactions"`
}

func toGroup(r resource[transactionAttributes]) TransactionGroup {
	return TransactionGroup{ID: r.ID, Title: r.Attributes.GroupTitle, Splits: r.Attributes.Transactions}
}
