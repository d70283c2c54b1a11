package zeacore

import "time"

// Entity types, matching the backing tables of the portal schema.
const (
	EntityApp              = "apps"
	EntityAppFeature       = "app_features"
	EntityPlan             = "subscription_plans"
	EntityCustomer         = "customers"
	EntitySubscription     = "customer_subscriptions"
	EntityPayment          = "payments"
	EntityTicket           = "tickets"
	EntityTicketComment    = "ticket_comments"
	EntityTicketAttachment = "ticket_attachments"
	EntityUserProfile      = "user_profiles"
	EntityUserRole         = "user_roles"
	EntityAccessLog        = "access_logs"
	EntityCustomerUser     = "customer_users"
)

// defaultUserRoleID is the role assigned to lazily created profiles, the
// standard "User" role seeded with the portal schema.
const defaultUserRoleID = "22222222-2222-2222-2222-222222222222"

// customerUserLink is the association created lazily the first time a
// signed-in user's portal data is requested: the user is matched to a
// customer by verified email and the link row records the pairing. The first
// linked user becomes the customer's admin.
var customerUserLink = LinkSpec{
	LinkType:      EntityCustomerUser,
	OwnerField:    "user_id",
	TargetField:   "customer_id",
	TargetType:    EntityCustomer,
	CrossRefField: "email",
	Extra:         map[string]any{"role": "admin"},
}

// ---------------------------------------------------------------
// Attribute coercion helpers. Backend rows arrive as generic JSON,
// so every typed view funnels through these.
// ---------------------------------------------------------------

func attrString(v any) string {
	s, _ := v.(string)
	return s
}

func attrFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

func attrInt(v any) int {
	// JSON numbers decode as float64.
	f, _ := v.(float64)
	return int(f)
}

func attrBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func attrTime(v any) time.Time {
	s, _ := v.(string)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func attrStrings(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// fullName joins profile name parts the way the portal renders assignees and
// comment authors.
func fullName(first, last string) string {
	switch {
	case first == "" && last == "":
		return ""
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}
