// Package tricount provides a Tricount (bunq) API client and registry parsing.
package tricount

import (
	"sort"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Entry is one parsed registry entry.
type Entry struct {
	UUID        string
	Type        string
	PaidBy      string
	Total       decimal.Decimal // negated registry amount: expenses are positive
	Currency    string
	Description string
	When        string     // raw timestamp as sent by Tricount
	Date        civil.Date // zero when When could not be parsed
	Shares      map[string]decimal.Decimal
	RawCategory string
	Category    string
	Err         error // set when the amounts could not be parsed
}

// Involved returns the sorted names with a non-zero share.
func (e Entry) Involved() []string {
	var names []string
	for name, share := range e.Shares {
		if share.IsPositive() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// RegistryResponse is the body of GET /v1/user/{id}/registry.
type RegistryResponse struct {
	Response []struct {
		Registry *Registry `json:"Registry,omitempty"`
	} `json:"Response"`
}

// Registry is a shared-expense registry (a "tricount").
type Registry struct {
	ID               int64  `json:"id"`
	Title            string `json:"title"`
	Currency         string `json:"currency"`
	AllRegistryEntry []struct {
		RegistryEntry RegistryEntry `json:"RegistryEntry"`
	} `json:"all_registry_entry"`
}

// RegistryEntry is a raw expense, income or transfer.
type RegistryEntry struct {
	ID              int64        `json:"id"`
	UUID            string       `json:"uuid"`
	TypeTransaction string       `json:"type_transaction"`
	MembershipOwned Membership   `json:"membership_owned"`
	Amount          Amount       `json:"amount"`
	Description     string       `json:"description"`
	Date            string       `json:"date"`
	Allocations     []Allocation `json:"allocations"`
	Category        string       `json:"category"`
	CategoryCustom  *string      `json:"category_custom"`
}

// Amount is a signed decimal string with its currency.
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// Allocation is one member's share of an entry.
type Allocation struct {
	Membership Membership `json:"membership"`
	Amount     Amount     `json:"amount"`
}

// Membership identifies a registry member. Members without a bunq account
// are "non-user" memberships.
type Membership struct {
	NonUser *MembershipDetail `json:"RegistryMembershipNonUser,omitempty"`
	User    *MembershipDetail `json:"RegistryMembershipUser,omitempty"`
}

// MembershipDetail holds the member alias.
type MembershipDetail struct {
	Alias struct {
		DisplayName string `json:"display_name"`
	} `json:"alias"`
}

// DisplayName returns the member's display name.
func (m Membership) DisplayName() string {
	switch {
	case m.NonUser != nil:
		return m.NonUser.Alias.DisplayName
	case m.User != nil:
		return m.User.Alias.DisplayName
	}
	return ""
}

type installationRequest struct {
	AppInstallationUUID string `json:"app_installation_uuid"`
	ClientPublicKey     string `json:"client_public_key"`
	DeviceDescription   string `json:"device_description"`
}

type installationResponse struct {
	Response []struct {
		Token *struct {
			Token string `json:"token"`
		} `json:"Token,omitempty"`
		UserPerson *struct {
			ID int64 `json:"id"`
		} `json:"UserPerson,omitempty"`
	} `json:"Response"`
}

type errorResponse struct {
	Error []struct {
		ErrorDescription string `json:"error_description"`
	} `json:"Error"`
}
