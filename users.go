package zeacore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AnishRamachandran/zeacore-go/internal/entity"
	"github.com/AnishRamachandran/zeacore-go/internal/writequeue"
)

// UserProfileView is a platform user profile with its role joined on.
type UserProfileView struct {
	ID         string
	UserID     string
	Email      string
	FirstName  string
	LastName   string
	AvatarURL  string
	Phone      string
	Department string
	JobTitle   string
	RoleID     string
	Status     string // active | pending | rejected | inactive
	LastLogin  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time

	RoleName        string
	RoleLevel       int
	RoleDescription string
}

// UserRoleView is a platform role. Lower levels carry more privilege
// (1 Super Admin, 4 User).
type UserRoleView struct {
	ID          string
	Name        string
	Description string
	Level       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AccessLogView is one audit trail entry.
type AccessLogView struct {
	ID         string
	UserID     string
	Action     string
	Resource   string
	ResourceID string
	IPAddress  string
	UserAgent  string
	Timestamp  time.Time
}

// accessLogLimit caps the audit trail listing, matching what the portal's
// access log page rendered.
const accessLogLimit = 100

// profileRelations joins the role onto a profile. Outer: a profile whose role
// row is missing still renders, just without role fields.
var profileRelations = []Relation{
	{Name: "role", Field: "role_id", Target: EntityUserRole, Project: []Projection{
		{From: "name", As: "role_name"},
		{From: "level", As: "role_level"},
		{From: "description", As: "role_description"},
	}},
}

// UserProfiles lists platform user profiles with their roles, newest first.
func (c *Client) UserProfiles(ctx context.Context) ([]UserProfileView, Status, error) {
	vms, status, err := c.rec.ObtainList(ctx, EntityUserProfile, Filter{}.Newest(), profileRelations, 0)
	if err != nil {
		return nil, status, err
	}
	out := make([]UserProfileView, 0, len(vms))
	for _, vm := range vms {
		out = append(out, profileFromVM(vm))
	}
	return out, status, nil
}

// UserRoles lists the platform roles, most privileged first.
func (c *Client) UserRoles(ctx context.Context) ([]UserRoleView, Status, error) {
	vms, status, err := c.rec.ObtainList(ctx, EntityUserRole, Filter{}.OrderedBy("level", false), nil, 0)
	if err != nil {
		return nil, status, err
	}
	out := make([]UserRoleView, 0, len(vms))
	for _, vm := range vms {
		out = append(out, roleFromVM(vm))
	}
	return out, status, nil
}

// AccessLogs lists the most recent audit trail entries, capped at the page
// size the portal rendered.
func (c *Client) AccessLogs(ctx context.Context) ([]AccessLogView, Status, error) {
	filter := Filter{}.OrderedBy("timestamp", true).Limited(accessLogLimit)
	vms, status, err := c.rec.ObtainList(ctx, EntityAccessLog, filter, nil, 0)
	if err != nil {
		return nil, status, err
	}
	out := make([]AccessLogView, 0, len(vms))
	for _, vm := range vms {
		out = append(out, accessLogFromVM(vm))
	}
	return out, status, nil
}

// PendingUsers lists profiles awaiting approval, newest first.
func (c *Client) PendingUsers(ctx context.Context) ([]UserProfileView, Status, error) {
	vms, status, err := c.rec.ObtainList(ctx, EntityUserProfile,
		Eq("status", "pending").Newest(), profileRelations, 0)
	if err != nil {
		return nil, status, err
	}
	out := make([]UserProfileView, 0, len(vms))
	for _, vm := range vms {
		out = append(out, profileFromVM(vm))
	}
	return out, status, nil
}

// ApproveUser activates a pending profile.
func (c *Client) ApproveUser(ctx context.Context, profileID string) (*UserProfileView, error) {
	return c.setProfileStatus(ctx, profileID, "active")
}

// RejectUser rejects a pending profile.
func (c *Client) RejectUser(ctx context.Context, profileID string) (*UserProfileView, error) {
	return c.setProfileStatus(ctx, profileID, "rejected")
}

func (c *Client) setProfileStatus(ctx context.Context, profileID, status string) (*UserProfileView, error) {
	if profileID == "" {
		return nil, fmt.Errorf("profileID cannot be empty")
	}
	patch := map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}
	rec, err := c.Update(ctx, EntityUserProfile, profileID, patch)
	if err != nil {
		return nil, err
	}
	view := profileFromVM(ViewModel{Root: rec})
	return &view, nil
}

// CurrentProfile returns the profile of the session identity, creating it on
// first access: a signed-in user without a profile row gets one with the
// default role and the first name guessed from the email. Concurrent sessions
// racing on creation converge on whichever row won. Returns an error when no
// identity is established.
func (c *Client) CurrentProfile(ctx context.Context) (*UserProfileView, Status, error) {
	c.mu.Lock()
	userID, email := c.userID, c.email
	c.mu.Unlock()
	if userID == "" {
		return nil, StatusFailed, errors.New("no session identity established")
	}

	rec, err := c.rec.EnsureOne(ctx, EntityUserProfile, Eq("user_id", userID), map[string]any{
		"id":         uuid.NewString(),
		"user_id":    userID,
		"email":      email,
		"first_name": firstNameFromEmail(email),
		"last_name":  "",
		"role_id":    defaultUserRoleID,
		"status":     "active",
	})
	if err != nil {
		return nil, StatusFailed, err
	}

	vm, status, err := c.rec.Obtain(ctx, EntityUserProfile, rec.ID, profileRelations, 0)
	if err != nil {
		return nil, status, err
	}
	view := profileFromVM(vm)
	return &view, status, nil
}

// AccessEntry carries the writable fields of one audit trail entry.
type AccessEntry struct {
	UserID     string
	Action     string
	Resource   string
	ResourceID string
	IPAddress  string
	UserAgent  string
}

// LogAccess appends an audit trail entry through the asynchronous write
// queue: entries for the same user keep their order, recoverable backend
// failures are retried in the background. AwaitSync(ctx, entry.UserID)
// flushes them.
func (c *Client) LogAccess(ctx context.Context, entry AccessEntry) (*EnqueueAck, error) {
	if c.queue == nil {
		return nil, errors.New("write queue disabled")
	}
	if entry.UserID == "" || entry.Action == "" {
		return nil, fmt.Errorf("UserID and Action cannot be empty")
	}

	logID := uuid.NewString()
	attrs := map[string]any{
		"id":          logID,
		"user_id":     entry.UserID,
		"action":      entry.Action,
		"resource":    nullable(entry.Resource),
		"resource_id": nullable(entry.ResourceID),
		"ip_address":  nullable(entry.IPAddress),
		"user_agent":  nullable(entry.UserAgent),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}
	job := writequeue.JobFunc(func(jctx context.Context) error {
		if _, err := c.rec.Insert(jctx, EntityAccessLog, attrs); err != nil {
			return &asyncWriteError{entity: EntityAccessLog, err: err}
		}
		c.bridge.NotifyMutation(EntityAccessLog, logID)
		return nil
	})
	if err := c.queue.Submit(ctx, entry.UserID, job); err != nil {
		return nil, err
	}
	writesEnqueuedTotal.WithLabelValues(EntityAccessLog).Inc()
	return &EnqueueAck{ID: logID, Status: "queued"}, nil
}

// firstNameFromEmail guesses a display first name from an email address.
func firstNameFromEmail(email string) string {
	local, _, found := strings.Cut(email, "@")
	if !found || local == "" {
		return "User"
	}
	return local
}

// ---------------------------------------------------------------
// view-model mapping
// ---------------------------------------------------------------

func profileFromVM(vm entity.ViewModel) UserProfileView {
	root := vm.Root
	return UserProfileView{
		ID:         root.ID,
		UserID:     root.Str("user_id"),
		Email:      root.Str("email"),
		FirstName:  root.Str("first_name"),
		LastName:   root.Str("last_name"),
		AvatarURL:  root.Str("avatar_url"),
		Phone:      root.Str("phone"),
		Department: root.Str("department"),
		JobTitle:   root.Str("job_title"),
		RoleID:     root.Str("role_id"),
		Status:     root.Str("status"),
		LastLogin:  attrTime(root.Attr("last_login")),
		CreatedAt:  attrTime(root.Attr("created_at")),
		UpdatedAt:  attrTime(root.Attr("updated_at")),

		RoleName:        vm.Str("role_name"),
		RoleLevel:       attrInt(vm.Field("role_level")),
		RoleDescription: vm.Str("role_description"),
	}
}

func roleFromVM(vm entity.ViewModel) UserRoleView {
	root := vm.Root
	return UserRoleView{
		ID:          root.ID,
		Name:        root.Str("name"),
		Description: root.Str("description"),
		Level:       attrInt(root.Attr("level")),
		CreatedAt:   attrTime(root.Attr("created_at")),
		UpdatedAt:   attrTime(root.Attr("updated_at")),
	}
}

func accessLogFromVM(vm entity.ViewModel) AccessLogView {
	root := vm.Root
	return AccessLogView{
		ID:         root.ID,
		UserID:     root.Str("user_id"),
		Action:     root.Str("action"),
		Resource:   root.Str("resource"),
		ResourceID: root.Str("resource_id"),
		IPAddress:  root.Str("ip_address"),
		UserAgent:  root.Str("user_agent"),
		Timestamp:  attrTime(root.Attr("timestamp")),
	}
}
