package zeacore

import (
	"context"
	"time"
)

// CustomerLink associates the signed-in user with a customer account. It is
// created lazily the first time portal data is requested: when no link row
// exists the user is matched to a customer by verified email and the link is
// inserted (the first linked user becomes the customer's admin). A nil link
// with a nil error means the user simply has no customer counterpart.
type CustomerLink struct {
	ID         string
	UserID     string
	CustomerID string
	Role       string
	CreatedAt  time.Time
	UpdatedAt  time.Time

	CustomerName    string
	CustomerEmail   string
	CustomerCompany string
	CustomerStatus  string
	CustomerLogoURL string
}

// Link resolves the customer link for the current session identity,
// creating it on first access. Results are memoized per identity; a session
// change (Notify) clears the memo. Returns (nil, nil) when no identity is
// established or the user has no customer counterpart.
func (c *Client) Link(ctx context.Context) (*CustomerLink, error) {
	c.mu.Lock()
	userID, email := c.userID, c.email
	if c.linked {
		link := c.link
		c.mu.Unlock()
		return link, nil
	}
	c.mu.Unlock()

	if userID == "" {
		return nil, nil
	}

	res, err := c.rec.ResolveLink(ctx, customerUserLink, userID, email)
	if err != nil {
		return nil, err
	}

	var link *CustomerLink
	if res.Linked {
		row, target := res.Link, res.Target
		link = &CustomerLink{
			ID:         row.ID,
			UserID:     row.Str("user_id"),
			CustomerID: row.Str("customer_id"),
			Role:       row.Str("role"),
			CreatedAt:  attrTime(row.Attr("created_at")),
			UpdatedAt:  attrTime(row.Attr("updated_at")),

			CustomerName:    target.Str("name"),
			CustomerEmail:   target.Str("email"),
			CustomerCompany: target.Str("company"),
			CustomerStatus:  target.Str("status"),
			CustomerLogoURL: target.Str("logo_url"),
		}
	}

	c.mu.Lock()
	// Memoize only if the identity didn't change underneath us.
	if c.userID == userID {
		c.link, c.linked = link, true
	}
	c.mu.Unlock()
	return link, nil
}

// customerScope returns the filter scoping a listing to the linked customer,
// or base unchanged when the user is not linked (administrators see
// everything). Link resolution failures degrade to the unscoped listing, the
// way the portal fell back when the linkage was unavailable.
func (c *Client) customerScope(ctx context.Context, base Filter) Filter {
	link, err := c.Link(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("customer link resolution failed; serving unscoped listing")
		return base
	}
	if link == nil || link.CustomerID == "" {
		return base
	}
	return base.And("customer_id", "eq", link.CustomerID)
}
