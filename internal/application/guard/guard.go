// Package guard holds the authorization predicates for deal transitions.
// Every predicate decides from the deal record alone; session state is never
// consulted.
package guard

import (
	"github.com/execution-hub/dealflow/internal/domain/deal"
	"github.com/execution-hub/dealflow/internal/domain/fault"
)

// Actor is the party performing a transition.
type Actor struct {
	ID    string
	Roles []string
}

// Policy says who holds the approver capability. An empty policy grants it to nobody.
type Policy struct {
	ApproverRoleIDs []string
	ApproverUserIDs []string
}

func (p Policy) IsApprover(a Actor) bool {
	if a.ID == "" {
		return false
	}
	for _, id := range p.ApproverUserIDs {
		if id == a.ID {
			return true
		}
	}
	for _, want := range p.ApproverRoleIDs {
		for _, have := range a.Roles {
			if want == have {
				return true
			}
		}
	}
	return false
}

// CanClaim rejects a requester claiming their own listing.
func CanClaim(d *deal.Deal, a Actor) error {
	if a.ID == "" {
		return fault.Unauthorized("We could not identify you. Please try again.")
	}
	if d.RequesterID != "" && d.RequesterID == a.ID {
		return fault.Unauthorized("You cannot claim your own listing.")
	}
	return nil
}

// IsClaimant requires a to be the deal's recorded claimant.
func IsClaimant(d *deal.Deal, a Actor) error {
	if a.ID == "" || d.ClaimantID == "" || d.ClaimantID != a.ID {
		return fault.Unauthorized("Only the seller who claimed this deal can do that.")
	}
	return nil
}

// IsConfirmedClaimant additionally requires a confirmed identity.
func IsConfirmedClaimant(d *deal.Deal, a Actor) error {
	if err := IsClaimant(d, a); err != nil {
		return err
	}
	if !d.ClaimantConfirmed {
		return fault.InvalidState("Please confirm your seller identity before uploading pictures.")
	}
	return nil
}

func (p Policy) CanApprove(a Actor) error {
	if !p.IsApprover(a) {
		return fault.Unauthorized("Only admins can approve deals.")
	}
	return nil
}

// CanCancel allows the claimant or an approver.
func (p Policy) CanCancel(d *deal.Deal, a Actor) error {
	if p.IsApprover(a) {
		return nil
	}
	if IsClaimant(d, a) == nil {
		return nil
	}
	return fault.Unauthorized("Only the claiming seller or an admin can cancel this deal.")
}

// IsRequester requires a to be the listing's requester.
func IsRequester(d *deal.Deal, a Actor) error {
	if a.ID == "" || d.RequesterID == "" || d.RequesterID != a.ID {
		return fault.Unauthorized("Only the buyer of this deal can do that.")
	}
	return nil
}
