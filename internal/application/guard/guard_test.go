package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/execution-hub/dealflow/internal/domain/deal"
	"github.com/execution-hub/dealflow/internal/domain/fault"
)

func TestPolicy_IsApprover(t *testing.T) {
	p := Policy{ApproverRoleIDs: []string{"role-admin"}, ApproverUserIDs: []string{"u-owner"}}

	assert.True(t, p.IsApprover(Actor{ID: "u-1", Roles: []string{"role-member", "role-admin"}}))
	assert.True(t, p.IsApprover(Actor{ID: "u-owner"}))
	assert.False(t, p.IsApprover(Actor{ID: "u-2", Roles: []string{"role-member"}}))
	assert.False(t, Policy{}.IsApprover(Actor{ID: "u-1", Roles: []string{"role-admin"}}))
}

func TestPredicates(t *testing.T) {
	d := &deal.Deal{
		Status:      deal.StatusClaimProcessing,
		ClaimantID:  "seller",
		RequesterID: "buyer",
	}
	p := Policy{ApproverRoleIDs: []string{"admin"}}
	seller := Actor{ID: "seller"}
	buyer := Actor{ID: "buyer"}
	admin := Actor{ID: "boss", Roles: []string{"admin"}}
	stranger := Actor{ID: "stranger"}

	tests := []struct {
		name string
		err  error
		kind fault.Kind
	}{
		{"requester claims own listing", CanClaim(d, buyer), fault.KindUnauthorized},
		{"anonymous claim", CanClaim(d, Actor{}), fault.KindUnauthorized},
		{"stranger acts as claimant", IsClaimant(d, stranger), fault.KindUnauthorized},
		{"unconfirmed claimant uploads evidence", IsConfirmedClaimant(d, seller), fault.KindInvalidState},
		{"seller approves", p.CanApprove(seller), fault.KindUnauthorized},
		{"stranger cancels", p.CanCancel(d, stranger), fault.KindUnauthorized},
		{"seller uploads buyer artifact", IsRequester(d, seller), fault.KindUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.err)
			assert.Equal(t, tt.kind, fault.KindOf(tt.err))
		})
	}

	assert.NoError(t, CanClaim(d, seller))
	assert.NoError(t, IsClaimant(d, seller))
	assert.NoError(t, p.CanApprove(admin))
	assert.NoError(t, p.CanCancel(d, seller))
	assert.NoError(t, p.CanCancel(d, admin))
	assert.NoError(t, IsRequester(d, buyer))

	d.ClaimantConfirmed = true
	assert.NoError(t, IsConfirmedClaimant(d, seller))
}
