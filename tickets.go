package zeacore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AnishRamachandran/zeacore-go/internal/entity"
	"github.com/AnishRamachandran/zeacore-go/internal/writequeue"
)

// TicketView is a support ticket with its joined display fields.
type TicketView struct {
	ID          string
	Title       string
	Description string
	Status      string // open | in_progress | resolved | closed
	Priority    string // low | medium | high | urgent
	CustomerID  string
	AssignedTo  string
	AppID       string
	ExternalID  string
	DueDate     time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	CustomerName    string
	CustomerCompany string
	AssigneeName    string
	AppName         string
}

// TicketComment is a comment on a ticket with its author's display fields.
type TicketComment struct {
	ID        string
	TicketID  string
	UserID    string
	Content   string
	Internal  bool
	CreatedAt time.Time

	UserName      string
	UserAvatarURL string
}

// TicketAttachment is a file attached to a ticket.
type TicketAttachment struct {
	ID        string
	TicketID  string
	UserID    string
	FileName  string
	FileURL   string
	FileType  string
	FileSize  int64
	CreatedAt time.Time

	UserName string
}

// TicketDetail bundles a ticket with its comments and attachments.
type TicketDetail struct {
	Ticket      TicketView
	Comments    []TicketComment
	Attachments []TicketAttachment
}

// Relations joined onto tickets. Listing joins are outer: a ticket without a
// customer, assignee or app still renders, just with blank fields.
var ticketRelations = []Relation{
	{Name: "customer", Field: "customer_id", Target: EntityCustomer, Project: []Projection{
		{From: "name", As: "customer_name"},
		{From: "company", As: "customer_company"},
	}},
	{Name: "assignee", Field: "assigned_to", Target: EntityUserProfile, Project: []Projection{
		{From: "first_name", As: "assignee_first_name"},
		{From: "last_name", As: "assignee_last_name"},
	}},
	{Name: "app", Field: "app_id", Target: EntityApp, Project: []Projection{
		{From: "name", As: "app_name"},
	}},
}

var commentRelations = []Relation{
	{Name: "author", Field: "user_id", Target: EntityUserProfile, Project: []Projection{
		{From: "first_name", As: "user_first_name"},
		{From: "last_name", As: "user_last_name"},
		{From: "avatar_url", As: "user_avatar_url"},
	}},
}

var attachmentRelations = []Relation{
	{Name: "uploader", Field: "user_id", Target: EntityUserProfile, Project: []Projection{
		{From: "first_name", As: "user_first_name"},
		{From: "last_name", As: "user_last_name"},
	}},
}

// Tickets lists support tickets, newest first, scoped to the linked customer
// when the session identity has one.
func (c *Client) Tickets(ctx context.Context) ([]TicketView, Status, error) {
	filter := c.customerScope(ctx, Filter{}.Newest())
	vms, status, err := c.rec.ObtainList(ctx, EntityTicket, filter, ticketRelations, 0)
	if err != nil {
		return nil, status, err
	}
	out := make([]TicketView, 0, len(vms))
	for _, vm := range vms {
		out = append(out, ticketFromVM(vm))
	}
	return out, status, nil
}

// TicketDetails returns one ticket with its comments and attachments.
func (c *Client) TicketDetails(ctx context.Context, ticketID string) (*TicketDetail, Status, error) {
	if ticketID == "" {
		return nil, StatusFailed, fmt.Errorf("ticketID cannot be empty")
	}

	vm, status, err := c.rec.Obtain(ctx, EntityTicket, ticketID, ticketRelations, 0)
	if err != nil {
		return nil, status, err
	}
	detail := &TicketDetail{Ticket: ticketFromVM(vm)}

	comments, cStatus, err := c.rec.ObtainList(ctx, EntityTicketComment,
		Eq("ticket_id", ticketID).OrderedBy("created_at", false), commentRelations, 0)
	if err != nil {
		return nil, cStatus, err
	}
	for _, cvm := range comments {
		detail.Comments = append(detail.Comments, commentFromVM(cvm))
	}

	attachments, aStatus, err := c.rec.ObtainList(ctx, EntityTicketAttachment,
		Eq("ticket_id", ticketID).Newest(), attachmentRelations, 0)
	if err != nil {
		return nil, aStatus, err
	}
	for _, avm := range attachments {
		detail.Attachments = append(detail.Attachments, attachmentFromVM(avm))
	}

	return detail, worstStatus(status, cStatus, aStatus), nil
}

// CreateTicketRequest carries the writable ticket fields. Zero values fall
// back to the portal defaults (status open, priority medium).
type CreateTicketRequest struct {
	Title       string
	Description string
	Status      string
	Priority    string
	CustomerID  string
	AssignedTo  string
	AppID       string
	ExternalID  string
	DueDate     string
}

// CreateTicket creates a support ticket and returns its view.
func (c *Client) CreateTicket(ctx context.Context, req CreateTicketRequest) (*TicketView, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("title cannot be empty")
	}
	if req.Status == "" {
		req.Status = "open"
	}
	if req.Priority == "" {
		req.Priority = "medium"
	}

	attrs := map[string]any{
		"id":          uuid.NewString(),
		"title":       req.Title,
		"description": nullable(req.Description),
		"status":      req.Status,
		"priority":    req.Priority,
		"customer_id": nullable(req.CustomerID),
		"assigned_to": nullable(req.AssignedTo),
		"app_id":      nullable(req.AppID),
		"external_id": nullable(req.ExternalID),
		"due_date":    nullable(req.DueDate),
	}
	rec, err := c.Insert(ctx, EntityTicket, attrs)
	if err != nil {
		return nil, err
	}
	view := ticketFromVM(ViewModel{Root: rec})
	return &view, nil
}

// UpdateTicket patches ticket fields (status changes, reassignment, ...) and
// refreshes the cached record.
func (c *Client) UpdateTicket(ctx context.Context, ticketID string, patch map[string]any) (*TicketView, error) {
	if ticketID == "" {
		return nil, fmt.Errorf("ticketID cannot be empty")
	}
	rec, err := c.Update(ctx, EntityTicket, ticketID, patch)
	if err != nil {
		return nil, err
	}
	view := ticketFromVM(ViewModel{Root: rec})
	return &view, nil
}

// AddComment submits a ticket comment through the asynchronous write queue:
// comments on the same ticket keep their order, recoverable backend failures
// are retried in the background. AwaitSync(ctx, ticketID) flushes them.
func (c *Client) AddComment(ctx context.Context, ticketID, userID, content string, internal bool) (*EnqueueAck, error) {
	if c.queue == nil {
		return nil, errors.New("write queue disabled")
	}
	if ticketID == "" || userID == "" {
		return nil, fmt.Errorf("ticketID and userID cannot be empty")
	}

	commentID := uuid.NewString()
	attrs := map[string]any{
		"id":          commentID,
		"ticket_id":   ticketID,
		"user_id":     userID,
		"content":     content,
		"is_internal": internal,
	}
	job := writequeue.JobFunc(func(jctx context.Context) error {
		if _, err := c.rec.Insert(jctx, EntityTicketComment, attrs); err != nil {
			return &asyncWriteError{entity: EntityTicketComment, err: err}
		}
		c.bridge.NotifyMutation(EntityTicketComment, commentID)
		c.bridge.NotifyMutation(EntityTicket, ticketID)
		return nil
	})
	if err := c.queue.Submit(ctx, ticketID, job); err != nil {
		return nil, err
	}
	writesEnqueuedTotal.WithLabelValues(EntityTicketComment).Inc()
	return &EnqueueAck{ID: commentID, Status: "queued"}, nil
}

// TicketStats are the dashboard counters computed over all visible tickets.
type TicketStats struct {
	Total      int
	Open       int
	InProgress int
	Resolved   int
	Closed     int

	Urgent int
	High   int
	Medium int
	Low    int

	Overdue     int
	DueToday    int
	DueTomorrow int
	Unassigned  int
}

// TicketStatsFor computes dashboard counters from a ticket listing. Due-date
// buckets are relative to now in the local day grid; closed and resolved
// tickets never count as due or unassigned.
func TicketStatsFor(tickets []TicketView, now time.Time) TicketStats {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	tomorrow := today.AddDate(0, 0, 1)
	dayAfter := today.AddDate(0, 0, 2)

	var s TicketStats
	for _, t := range tickets {
		s.Total++
		switch t.Status {
		case "open":
			s.Open++
		case "in_progress":
			s.InProgress++
		case "resolved":
			s.Resolved++
		case "closed":
			s.Closed++
		}
		switch t.Priority {
		case "urgent":
			s.Urgent++
		case "high":
			s.High++
		case "medium":
			s.Medium++
		case "low":
			s.Low++
		}

		if t.Status == "closed" || t.Status == "resolved" {
			continue
		}
		if t.AssignedTo == "" {
			s.Unassigned++
		}
		if t.DueDate.IsZero() {
			continue
		}
		switch {
		case t.DueDate.Before(today):
			s.Overdue++
		case t.DueDate.Before(tomorrow):
			s.DueToday++
		case t.DueDate.Before(dayAfter):
			s.DueTomorrow++
		}
	}
	return s
}

// TicketStats fetches the visible tickets and computes the dashboard
// counters.
func (c *Client) TicketStats(ctx context.Context) (TicketStats, Status, error) {
	tickets, status, err := c.Tickets(ctx)
	if err != nil {
		return TicketStats{}, status, err
	}
	return TicketStatsFor(tickets, time.Now()), status, nil
}

// ---------------------------------------------------------------
// view-model mapping
// ---------------------------------------------------------------

func ticketFromVM(vm entity.ViewModel) TicketView {
	root := vm.Root
	return TicketView{
		ID:          root.ID,
		Title:       root.Str("title"),
		Description: root.Str("description"),
		Status:      root.Str("status"),
		Priority:    root.Str("priority"),
		CustomerID:  root.Str("customer_id"),
		AssignedTo:  root.Str("assigned_to"),
		AppID:       root.Str("app_id"),
		ExternalID:  root.Str("external_id"),
		DueDate:     attrTime(root.Attr("due_date")),
		CreatedAt:   attrTime(root.Attr("created_at")),
		UpdatedAt:   attrTime(root.Attr("updated_at")),

		CustomerName:    vm.Str("customer_name"),
		CustomerCompany: vm.Str("customer_company"),
		AssigneeName:    fullName(vm.Str("assignee_first_name"), vm.Str("assignee_last_name")),
		AppName:         vm.Str("app_name"),
	}
}

func commentFromVM(vm entity.ViewModel) TicketComment {
	root := vm.Root
	name := fullName(vm.Str("user_first_name"), vm.Str("user_last_name"))
	if name == "" {
		name = "Unknown User"
	}
	return TicketComment{
		ID:        root.ID,
		TicketID:  root.Str("ticket_id"),
		UserID:    root.Str("user_id"),
		Content:   root.Str("content"),
		Internal:  attrBool(root.Attr("is_internal")),
		CreatedAt: attrTime(root.Attr("created_at")),

		UserName:      name,
		UserAvatarURL: vm.Str("user_avatar_url"),
	}
}

func attachmentFromVM(vm entity.ViewModel) TicketAttachment {
	root := vm.Root
	name := fullName(vm.Str("user_first_name"), vm.Str("user_last_name"))
	if name == "" {
		name = "Unknown User"
	}
	return TicketAttachment{
		ID:        root.ID,
		TicketID:  root.Str("ticket_id"),
		UserID:    root.Str("user_id"),
		FileName:  root.Str("file_name"),
		FileURL:   root.Str("file_url"),
		FileType:  root.Str("file_type"),
		FileSize:  int64(attrFloat(root.Attr("file_size"))),
		CreatedAt: attrTime(root.Attr("created_at")),

		UserName: name,
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func worstStatus(statuses ...Status) Status {
	worst := StatusReady
	for _, s := range statuses {
		if s > worst {
			worst = s
		}
	}
	return worst
}
