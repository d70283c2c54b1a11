package zeacore

import (
	"context"
	"time"

	"github.com/AnishRamachandran/zeacore-go/internal/entity"
)

// AppView is a platform application as listed in the catalog.
type AppView struct {
	ID          string
	Name        string
	Description string
	Category    string
	Status      string
	Features    []string
	APIEndpoint string
	AppURL      string
	Screenshots []string
	Version     string
	Subscribers int
	Revenue     float64
	LogoURL     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CustomerView is a customer account.
type CustomerView struct {
	ID         string
	Name       string
	Email      string
	Company    string
	Status     string
	TotalSpent float64
	LogoURL    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PlanView is a subscription plan with its app's display name joined on.
type PlanView struct {
	ID                 string
	Name               string
	AppID              string
	Price              float64
	Billing            string
	Features           []string
	MaxUsers           int
	Description        string
	IsPopular          bool
	Currency           string
	IconURL            string
	DiscountPercentage float64
	CreatedAt          time.Time

	AppName string
}

// FeatureView is an app feature with its app's display name joined on.
type FeatureView struct {
	ID          string
	Name        string
	Description string
	AppID       string
	FeatureType string
	BasePrice   float64
	Status      string
	IsDefault   bool
	CreatedAt   time.Time

	AppName string
}

// SubscriptionView is a customer subscription with app, plan and customer
// display fields joined on.
type SubscriptionView struct {
	ID              string
	CustomerID      string
	AppID           string
	PlanID          string
	Status          string
	StartDate       time.Time
	EndDate         time.Time
	Price           float64
	Billing         string
	EnabledFeatures []string
	CreatedAt       time.Time

	AppName         string
	AppLogoURL      string
	PlanName        string
	IsPopular       bool
	PlanIconURL     string
	CustomerName    string
	CustomerCompany string
	CustomerLogoURL string
}

// PaymentView is a payment with customer and subscription context joined on.
type PaymentView struct {
	ID             string
	CustomerID     string
	SubscriptionID string
	Amount         float64
	Status         string
	PaymentDate    time.Time
	PaymentMethod  string
	CreatedAt      time.Time

	CustomerName    string
	CustomerCompany string
	AppName         string
	PlanName        string
}

// Joins mirroring the portal queries: catalog-style joins are inner
// (Required), a row with a dangling key is dropped rather than rendered
// half-resolved.
var planRelations = []Relation{
	{Name: "app", Field: "app_id", Target: EntityApp, Required: true, Project: []Projection{
		{From: "name", As: "app_name"},
	}},
}

var featureRelations = []Relation{
	{Name: "app", Field: "app_id", Target: EntityApp, Required: true, Project: []Projection{
		{From: "name", As: "app_name"},
	}},
}

var subscriptionRelations = []Relation{
	{Name: "app", Field: "app_id", Target: EntityApp, Required: true, Project: []Projection{
		{From: "name", As: "app_name"},
		{From: "logo_url", As: "app_logo_url"},
	}},
	{Name: "plan", Field: "plan_id", Target: EntityPlan, Required: true, Project: []Projection{
		{From: "name", As: "plan_name"},
		{From: "is_popular", As: "is_popular"},
		{From: "icon_url", As: "plan_icon_url"},
	}},
	{Name: "customer", Field: "customer_id", Target: EntityCustomer, Required: true, Project: []Projection{
		{From: "name", As: "customer_name"},
		{From: "company", As: "customer_company"},
		{From: "logo_url", As: "customer_logo_url"},
	}},
}

var paymentRelations = []Relation{
	{Name: "customer", Field: "customer_id", Target: EntityCustomer, Required: true, Project: []Projection{
		{From: "name", As: "customer_name"},
		{From: "company", As: "customer_company"},
	}},
}

// paymentSubRelations is the second hop of the payment join: the
// subscription row carries the app and plan keys.
var paymentSubRelations = []Relation{
	{Name: "app", Field: "app_id", Target: EntityApp, Required: true, Project: []Projection{
		{From: "name", As: "app_name"},
	}},
	{Name: "plan", Field: "plan_id", Target: EntityPlan, Required: true, Project: []Projection{
		{From: "name", As: "plan_name"},
	}},
}

// Apps lists the application catalog, newest first.
func (c *Client) Apps(ctx context.Context) ([]AppView, Status, error) {
	vms, status, err := c.rec.ObtainList(ctx, EntityApp, Filter{}.Newest(), nil, 0)
	if err != nil {
		return nil, status, err
	}
	out := make([]AppView, 0, len(vms))
	for _, vm := range vms {
		out = append(out, appFromVM(vm))
	}
	return out, status, nil
}

// Customers lists customer accounts, newest first.
func (c *Client) Customers(ctx context.Context) ([]CustomerView, Status, error) {
	vms, status, err := c.rec.ObtainList(ctx, EntityCustomer, Filter{}.Newest(), nil, 0)
	if err != nil {
		return nil, status, err
	}
	out := make([]CustomerView, 0, len(vms))
	for _, vm := range vms {
		out = append(out, customerFromVM(vm))
	}
	return out, status, nil
}

// Plans lists subscription plans with their app names, newest first.
func (c *Client) Plans(ctx context.Context) ([]PlanView, Status, error) {
	vms, status, err := c.rec.ObtainList(ctx, EntityPlan, Filter{}.Newest(), planRelations, 0)
	if err != nil {
		return nil, status, err
	}
	out := make([]PlanView, 0, len(vms))
	for _, vm := range vms {
		out = append(out, planFromVM(vm))
	}
	return out, status, nil
}

// Features lists app features with their app names, newest first.
func (c *Client) Features(ctx context.Context) ([]FeatureView, Status, error) {
	vms, status, err := c.rec.ObtainList(ctx, EntityAppFeature, Filter{}.Newest(), featureRelations, 0)
	if err != nil {
		return nil, status, err
	}
	out := make([]FeatureView, 0, len(vms))
	for _, vm := range vms {
		out = append(out, featureFromVM(vm))
	}
	return out, status, nil
}

// Subscriptions lists customer subscriptions, scoped to the linked customer
// when the session identity has one.
func (c *Client) Subscriptions(ctx context.Context) ([]SubscriptionView, Status, error) {
	filter := c.customerScope(ctx, Filter{}.Newest())
	vms, status, err := c.rec.ObtainList(ctx, EntitySubscription, filter, subscriptionRelations, 0)
	if err != nil {
		return nil, status, err
	}
	out := make([]SubscriptionView, 0, len(vms))
	for _, vm := range vms {
		out = append(out, subscriptionFromVM(vm))
	}
	return out, status, nil
}

// Payments lists payments with customer and subscription context, most
// recent payment first. The app and plan names hang off the subscription,
// so the join runs in two hops.
func (c *Client) Payments(ctx context.Context) ([]PaymentView, Status, error) {
	filter := c.customerScope(ctx, Filter{}.OrderedBy("payment_date", true))
	vms, status, err := c.rec.ObtainList(ctx, EntityPayment, filter, paymentRelations, 0)
	if err != nil {
		return nil, status, err
	}
	out := make([]PaymentView, 0, len(vms))
	for _, vm := range vms {
		pv := paymentFromVM(vm)
		subID := vm.Root.Str("subscription_id")
		if subID != "" {
			subVM, subStatus, err := c.rec.Obtain(ctx, EntitySubscription, subID, paymentSubRelations, 0)
			if err != nil {
				// Inner-join semantics: a payment without resolvable
				// subscription context is dropped from the listing.
				c.log.Warn().Err(err).Str("payment", pv.ID).Msg("dropping payment with unresolved subscription")
				continue
			}
			// A degraded second hop degrades the listing as a whole.
			status = worstStatus(status, subStatus)
			pv.AppName = subVM.Str("app_name")
			pv.PlanName = subVM.Str("plan_name")
		}
		out = append(out, pv)
	}
	return out, status, nil
}

// ---------------------------------------------------------------
// view-model mapping
// ---------------------------------------------------------------

func appFromVM(vm entity.ViewModel) AppView {
	root := vm.Root
	return AppView{
		ID:          root.ID,
		Name:        root.Str("name"),
		Description: root.Str("description"),
		Category:    root.Str("category"),
		Status:      root.Str("status"),
		Features:    attrStrings(root.Attr("features")),
		APIEndpoint: root.Str("api_endpoint"),
		AppURL:      root.Str("app_url"),
		Screenshots: attrStrings(root.Attr("screenshots_urls")),
		Version:     root.Str("version"),
		Subscribers: attrInt(root.Attr("subscribers")),
		Revenue:     attrFloat(root.Attr("revenue")),
		LogoURL:     root.Str("logo_url"),
		CreatedAt:   attrTime(root.Attr("created_at")),
		UpdatedAt:   attrTime(root.Attr("updated_at")),
	}
}

func customerFromVM(vm entity.ViewModel) CustomerView {
	root := vm.Root
	return CustomerView{
		ID:         root.ID,
		Name:       root.Str("name"),
		Email:      root.Str("email"),
		Company:    root.Str("company"),
		Status:     root.Str("status"),
		TotalSpent: attrFloat(root.Attr("total_spent")),
		LogoURL:    root.Str("logo_url"),
		CreatedAt:  attrTime(root.Attr("created_at")),
		UpdatedAt:  attrTime(root.Attr("updated_at")),
	}
}

func planFromVM(vm entity.ViewModel) PlanView {
	root := vm.Root
	return PlanView{
		ID:                 root.ID,
		Name:               root.Str("name"),
		AppID:              root.Str("app_id"),
		Price:              attrFloat(root.Attr("price")),
		Billing:            root.Str("billing"),
		Features:           attrStrings(root.Attr("features")),
		MaxUsers:           attrInt(root.Attr("max_users")),
		Description:        root.Str("description"),
		IsPopular:          attrBool(root.Attr("is_popular")),
		Currency:           root.Str("currency"),
		IconURL:            root.Str("icon_url"),
		DiscountPercentage: attrFloat(root.Attr("discount_percentage")),
		CreatedAt:          attrTime(root.Attr("created_at")),

		AppName: vm.Str("app_name"),
	}
}

func featureFromVM(vm entity.ViewModel) FeatureView {
	root := vm.Root
	return FeatureView{
		ID:          root.ID,
		Name:        root.Str("name"),
		Description: root.Str("description"),
		AppID:       root.Str("app_id"),
		FeatureType: root.Str("feature_type"),
		BasePrice:   attrFloat(root.Attr("base_price")),
		Status:      root.Str("status"),
		IsDefault:   attrBool(root.Attr("is_default")),
		CreatedAt:   attrTime(root.Attr("created_at")),

		AppName: vm.Str("app_name"),
	}
}

func subscriptionFromVM(vm entity.ViewModel) SubscriptionView {
	root := vm.Root
	popular, _ := vm.Field("is_popular").(bool)
	return SubscriptionView{
		ID:              root.ID,
		CustomerID:      root.Str("customer_id"),
		AppID:           root.Str("app_id"),
		PlanID:          root.Str("plan_id"),
		Status:          root.Str("status"),
		StartDate:       attrTime(root.Attr("start_date")),
		EndDate:         attrTime(root.Attr("end_date")),
		Price:           attrFloat(root.Attr("price")),
		Billing:         root.Str("billing"),
		EnabledFeatures: attrStrings(root.Attr("enabled_features")),
		CreatedAt:       attrTime(root.Attr("created_at")),

		AppName:         vm.Str("app_name"),
		AppLogoURL:      vm.Str("app_logo_url"),
		PlanName:        vm.Str("plan_name"),
		IsPopular:       popular,
		PlanIconURL:     vm.Str("plan_icon_url"),
		CustomerName:    vm.Str("customer_name"),
		CustomerCompany: vm.Str("customer_company"),
		CustomerLogoURL: vm.Str("customer_logo_url"),
	}
}

func paymentFromVM(vm entity.ViewModel) PaymentView {
	root := vm.Root
	return PaymentView{
		ID:             root.ID,
		CustomerID:     root.Str("customer_id"),
		SubscriptionID: root.Str("subscription_id"),
		Amount:         attrFloat(root.Attr("amount")),
		Status:         root.Str("status"),
		PaymentDate:    attrTime(root.Attr("payment_date")),
		PaymentMethod:  root.Str("payment_method"),
		CreatedAt:      attrTime(root.Attr("created_at")),

		CustomerName:    vm.Str("customer_name"),
		CustomerCompany: vm.Str("customer_company"),
	}
}
