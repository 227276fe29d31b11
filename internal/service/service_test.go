package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"delivery-service/config"
	"delivery-service/internal/auth"
	"delivery-service/internal/authz"
	"delivery-service/internal/lifecycle"
	"delivery-service/internal/models"
	"delivery-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory stand-in for *store.Store covering every store
// contract the services consume.
type fakeStore struct {
	users      map[int64]*models.User
	products   map[int64]*models.Product
	deliveries map[int64]*models.Delivery
	nextID     int64

	deliveryStatsCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:      map[int64]*models.User{},
		products:   map[int64]*models.Product{},
		deliveries: map[int64]*models.Delivery{},
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) addUser(name string, role models.Role) *models.User {
	u := &models.User{
		ID:    f.id(),
		Name:  name,
		Email: fmt.Sprintf("%s%d@example.com", role, f.nextID),
		Role:  role,
	}
	f.users[u.ID] = u
	return u
}

func (f *fakeStore) CreateUser(_ context.Context, u *models.User) error {
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return fmt.Errorf("duplicate email: %w", models.ErrConflict)
		}
	}
	u.ID = f.id()
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListUsers(_ context.Context, role *models.Role) ([]models.User, error) {
	var out []models.User
	for _, u := range f.users {
		if role == nil || u.Role == *role {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateUser(_ context.Context, u *models.User) error {
	if _, ok := f.users[u.ID]; !ok {
		return fmt.Errorf("user %d: %w", u.ID, models.ErrNotFound)
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeStore) DeleteAdmin(_ context.Context, id int64) error {
	delete(f.users, id)
	return nil
}

func (f *fakeStore) DeleteClientCascade(_ context.Context, id int64) (int64, error) {
	for did, d := range f.deliveries {
		if d.ClientID == id {
			delete(f.deliveries, did)
		}
	}
	var affected int64
	for pid, p := range f.products {
		if p.ClientID == id {
			delete(f.products, pid)
			affected++
		}
	}
	delete(f.users, id)
	return affected, nil
}

func (f *fakeStore) DeleteDeliveryPersonCascade(_ context.Context, id int64) (int64, error) {
	var affected int64
	for _, p := range f.products {
		if p.AssignedTo != nil && *p.AssignedTo == id {
			if err := lifecycle.UnassignProduct(p); err != nil {
				return 0, err
			}
			affected++
		}
	}
	for _, d := range f.deliveries {
		if d.DeliveryPerson != nil && *d.DeliveryPerson == id {
			d.DeliveryPerson = nil
		}
	}
	delete(f.users, id)
	return affected, nil
}

func (f *fakeStore) CountUsersByRole(_ context.Context, role models.Role) (int64, error) {
	var n int64
	for _, u := range f.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CreateProduct(_ context.Context, p *models.Product) error {
	p.ID = f.id()
	cp := *p
	f.products[p.ID] = &cp
	return nil
}

func (f *fakeStore) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) ListProducts(_ context.Context, filter store.ProductFilter) ([]models.Product, error) {
	var out []models.Product
	for _, p := range f.products {
		if filter.ClientID != nil && p.ClientID != *filter.ClientID {
			continue
		}
		if filter.AssignedTo != nil && (p.AssignedTo == nil || *p.AssignedTo != *filter.AssignedTo) {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeStore) UpdateProductState(_ context.Context, p *models.Product) error {
	if _, ok := f.products[p.ID]; !ok {
		return fmt.Errorf("product %d: %w", p.ID, models.ErrNotFound)
	}
	cp := *p
	f.products[p.ID] = &cp
	return nil
}

func (f *fakeStore) CountProducts(_ context.Context, status *string) (int64, error) {
	var n int64
	for _, p := range f.products {
		if status == nil || p.Status == *status {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CountProductsNotInStock(_ context.Context) (int64, error) {
	var n int64
	for _, p := range f.products {
		if p.Status != models.ProductStatusInStock {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CreateDelivery(_ context.Context, d *models.Delivery) error {
	for _, existing := range f.deliveries {
		if existing.TrackingNumber == d.TrackingNumber {
			return fmt.Errorf("duplicate tracking number: %w", models.ErrConflict)
		}
	}
	d.ID = f.id()
	cp := *d
	f.deliveries[d.ID] = &cp
	return nil
}

func (f *fakeStore) GetDeliveryByID(_ context.Context, id int64) (*models.Delivery, error) {
	d, ok := f.deliveries[id]
	if !ok {
		return nil, fmt.Errorf("delivery %d: %w", id, models.ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (f *fakeStore) GetDeliveryByTracking(_ context.Context, tn string) (*models.Delivery, error) {
	for _, d := range f.deliveries {
		if d.TrackingNumber == tn {
			cp := *d
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("tracking number %s: %w", tn, models.ErrNotFound)
}

func (f *fakeStore) ListDeliveries(_ context.Context, filter store.DeliveryFilter) ([]models.Delivery, int64, error) {
	var out []models.Delivery
	for _, d := range f.deliveries {
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		if filter.ClientID != nil && d.ClientID != *filter.ClientID {
			continue
		}
		if filter.DeliveryPerson != nil && (d.DeliveryPerson == nil || *d.DeliveryPerson != *filter.DeliveryPerson) {
			continue
		}
		out = append(out, *d)
	}
	return out, int64(len(out)), nil
}

func (f *fakeStore) UpdateDeliveryState(_ context.Context, d *models.Delivery) error {
	if _, ok := f.deliveries[d.ID]; !ok {
		return fmt.Errorf("delivery %d: %w", d.ID, models.ErrNotFound)
	}
	cp := *d
	f.deliveries[d.ID] = &cp
	return nil
}

func (f *fakeStore) DeleteDelivery(_ context.Context, id int64) error {
	if _, ok := f.deliveries[id]; !ok {
		return fmt.Errorf("delivery %d: %w", id, models.ErrNotFound)
	}
	delete(f.deliveries, id)
	return nil
}

func (f *fakeStore) GetDeliveryStats(_ context.Context) (*models.DeliveryStats, error) {
	f.deliveryStatsCalls++
	stats := &models.DeliveryStats{}
	for _, d := range f.deliveries {
		stats.TotalDeliveries++
		switch d.Status {
		case models.DeliveryStatusPending:
			stats.PendingDeliveries++
		case models.DeliveryStatusAssigned:
			stats.AssignedDeliveries++
		case models.DeliveryStatusInTransit:
			stats.InTransitDeliveries++
		case models.DeliveryStatusDelivered:
			stats.DeliveredDeliveries++
		}
		stats.TotalRevenue += d.DeliveryFee
	}
	return stats, nil
}

func (f *fakeStore) CountActiveDeliveryPersons(_ context.Context) (int64, error) {
	seen := map[int64]bool{}
	for _, d := range f.deliveries {
		if d.DeliveryPerson != nil &&
			(d.Status == models.DeliveryStatusAssigned || d.Status == models.DeliveryStatusInTransit) {
			seen[*d.DeliveryPerson] = true
		}
	}
	return int64(len(seen)), nil
}

// fakeCache covers both the tracking cache and the cascade lock.
type fakeCache struct {
	byTracking map[string]*models.Delivery
	stats      *models.DeliveryStats
	held       map[string]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{byTracking: map[string]*models.Delivery{}, held: map[string]bool{}}
}

func (c *fakeCache) SetDelivery(_ context.Context, d *models.Delivery) error {
	cp := *d
	c.byTracking[d.TrackingNumber] = &cp
	return nil
}

func (c *fakeCache) GetDelivery(_ context.Context, tn string) (*models.Delivery, error) {
	return c.byTracking[tn], nil
}

func (c *fakeCache) InvalidateDelivery(_ context.Context, tn string) error {
	delete(c.byTracking, tn)
	return nil
}

func (c *fakeCache) SetDeliveryStats(_ context.Context, s *models.DeliveryStats) error {
	cp := *s
	c.stats = &cp
	return nil
}

func (c *fakeCache) GetDeliveryStats(_ context.Context) (*models.DeliveryStats, error) {
	return c.stats, nil
}

func (c *fakeCache) AcquireLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	if c.held[key] {
		return false, nil
	}
	c.held[key] = true
	return true, nil
}

func (c *fakeCache) ReleaseLock(_ context.Context, key string) error {
	delete(c.held, key)
	return nil
}

// fakeEvents records published event types in order.
type fakeEvents struct {
	published []string
}

func (e *fakeEvents) record(t string) error {
	e.published = append(e.published, t)
	return nil
}

func (e *fakeEvents) PublishDeliveryCreated(_ context.Context, ev *models.DeliveryCreatedEvent) error {
	return e.record(ev.EventType)
}

func (e *fakeEvents) PublishDeliveryStatusChanged(_ context.Context, ev *models.DeliveryStatusChangedEvent) error {
	return e.record(ev.EventType)
}

func (e *fakeEvents) PublishDeliveryDeleted(_ context.Context, ev *models.DeliveryDeletedEvent) error {
	return e.record(ev.EventType)
}

func (e *fakeEvents) PublishProductAssigned(_ context.Context, ev *models.ProductAssignedEvent) error {
	return e.record(ev.EventType)
}

func (e *fakeEvents) PublishProductStatusChanged(_ context.Context, ev *models.ProductStatusChangedEvent) error {
	return e.record(ev.EventType)
}

func (e *fakeEvents) PublishUserDeleted(_ context.Context, ev *models.UserDeletedEvent) error {
	return e.record(ev.EventType)
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	fs := newFakeStore()
	svc := NewUserService(fs, newFakeCache(), &fakeEvents{})

	req := &CreateUserRequest{Name: "A", Email: "a@example.com", Password: "secret1", Role: "client"}
	_, err := svc.CreateUser(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.CreateUser(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestCreateUserHashesPassword(t *testing.T) {
	fs := newFakeStore()
	svc := NewUserService(fs, newFakeCache(), &fakeEvents{})

	user, err := svc.CreateUser(context.Background(), &CreateUserRequest{
		Name: "A", Email: "a@example.com", Password: "secret1", Role: "delivery",
	})
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", user.PasswordHash)
	assert.True(t, auth.CheckPassword(user.PasswordHash, "secret1"))
}

func TestDeleteClientRemovesOwnedRecords(t *testing.T) {
	fs := newFakeStore()
	events := &fakeEvents{}
	svc := NewUserService(fs, newFakeCache(), events)

	client := fs.addUser("client", models.RoleClient)
	other := fs.addUser("other", models.RoleClient)
	for i := 0; i < 3; i++ {
		fs.products[fs.id()] = &models.Product{ID: fs.nextID, ClientID: client.ID, Status: models.ProductStatusInStock}
	}
	fs.products[fs.id()] = &models.Product{ID: fs.nextID, ClientID: other.ID, Status: models.ProductStatusInStock}
	fs.deliveries[fs.id()] = &models.Delivery{ID: fs.nextID, ClientID: client.ID, Status: models.DeliveryStatusPending, TrackingNumber: "KD1"}

	result, err := svc.DeleteUser(context.Background(), client.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleClient, result.Role)
	assert.Equal(t, int64(3), result.AffectedProducts)

	assert.NotContains(t, fs.users, client.ID)
	assert.Len(t, fs.products, 1)
	assert.Empty(t, fs.deliveries)
	assert.Contains(t, events.published, models.EventTypeUserDeleted)
}

func TestDeleteDeliveryPersonResetsProducts(t *testing.T) {
	fs := newFakeStore()
	svc := NewUserService(fs, newFakeCache(), &fakeEvents{})

	courier := fs.addUser("courier", models.RoleDelivery)
	p := &models.Product{ID: fs.id(), Name: "box", ClientID: 99}
	require.NoError(t, lifecycle.AssignProduct(p, courier.ID))
	fs.products[p.ID] = p
	fs.deliveries[fs.id()] = &models.Delivery{
		ID: fs.nextID, ClientID: 99, DeliveryPerson: &courier.ID,
		Status: models.DeliveryStatusAssigned, TrackingNumber: "KD2",
	}

	result, err := svc.DeleteUser(context.Background(), courier.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.AffectedProducts)

	reset := fs.products[p.ID]
	assert.Nil(t, reset.AssignedTo)
	assert.Equal(t, models.ProductStatusInStock, reset.Status)
	assert.Contains(t, reset.QRData, models.ProductStatusInStock)

	for _, d := range fs.deliveries {
		assert.Nil(t, d.DeliveryPerson)
	}
}

func TestDeleteUserBlockedByRunningCascade(t *testing.T) {
	fs := newFakeStore()
	cache := newFakeCache()
	svc := NewUserService(fs, cache, &fakeEvents{})

	client := fs.addUser("client", models.RoleClient)
	cache.held[fmt.Sprintf("user-delete:%d", client.ID)] = true

	_, err := svc.DeleteUser(context.Background(), client.ID)
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Contains(t, fs.users, client.ID)
}

func TestCreateProductQRCarriesPersistedID(t *testing.T) {
	fs := newFakeStore()
	svc := NewProductService(fs, fs, &fakeEvents{})
	client := fs.addUser("client", models.RoleClient)

	product, err := svc.CreateProduct(context.Background(),
		authz.Caller{ID: client.ID, Role: models.RoleClient},
		&CreateProductRequest{Name: "box", Price: 10, BuyerAddress: "street 1", BuyerPhone: "555"})
	require.NoError(t, err)
	require.NotZero(t, product.ID)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(product.QRData), &payload))
	assert.Equal(t, float64(product.ID), payload["id"])
	assert.Equal(t, models.ProductStatusInStock, payload["status"])

	stored := fs.products[product.ID]
	assert.Equal(t, product.QRData, stored.QRData)
}

func TestAssignDeliveryPersonValidatesRole(t *testing.T) {
	fs := newFakeStore()
	events := &fakeEvents{}
	svc := NewProductService(fs, fs, events)

	client := fs.addUser("client", models.RoleClient)
	courier := fs.addUser("courier", models.RoleDelivery)
	p := &models.Product{ID: fs.id(), Name: "box", ClientID: client.ID, Status: models.ProductStatusInStock}
	fs.products[p.ID] = p

	_, err := svc.AssignDeliveryPerson(context.Background(), p.ID, client.ID)
	assert.ErrorIs(t, err, models.ErrValidation)

	updated, err := svc.AssignDeliveryPerson(context.Background(), p.ID, courier.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProductStatusOutForDelivery, updated.Status)
	require.NotNil(t, updated.AssignedTo)
	assert.Equal(t, courier.ID, *updated.AssignedTo)
	assert.Contains(t, events.published, models.EventTypeProductAssigned)
}

func TestUpdateStatusRejectionLeavesStoreUntouched(t *testing.T) {
	fs := newFakeStore()
	svc := NewProductService(fs, fs, &fakeEvents{})

	courier := fs.addUser("courier", models.RoleDelivery)
	stranger := fs.addUser("stranger", models.RoleDelivery)
	p := &models.Product{ID: fs.id(), Name: "box", ClientID: 1, Status: models.ProductStatusOutForDelivery, AssignedTo: &courier.ID}
	fs.products[p.ID] = p

	_, err := svc.UpdateStatus(context.Background(),
		authz.Caller{ID: stranger.ID, Role: models.RoleDelivery}, p.ID, models.ProductStatusDelivered)
	assert.ErrorIs(t, err, models.ErrForbidden)
	assert.Equal(t, models.ProductStatusOutForDelivery, fs.products[p.ID].Status)

	updated, err := svc.UpdateStatus(context.Background(),
		authz.Caller{ID: courier.ID, Role: models.RoleDelivery}, p.ID, models.ProductStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, models.ProductStatusDelivered, updated.Status)
}

func TestListProductsScopedByRole(t *testing.T) {
	fs := newFakeStore()
	svc := NewProductService(fs, fs, &fakeEvents{})

	clientA := fs.addUser("a", models.RoleClient)
	clientB := fs.addUser("b", models.RoleClient)
	courier := fs.addUser("c", models.RoleDelivery)
	fs.products[fs.id()] = &models.Product{ID: fs.nextID, ClientID: clientA.ID, Status: models.ProductStatusInStock}
	fs.products[fs.id()] = &models.Product{ID: fs.nextID, ClientID: clientB.ID, Status: models.ProductStatusOutForDelivery, AssignedTo: &courier.ID}

	own, err := svc.ListProducts(context.Background(), authz.Caller{ID: clientA.ID, Role: models.RoleClient}, nil)
	require.NoError(t, err)
	assert.Len(t, own, 1)

	assigned, err := svc.ListProducts(context.Background(), authz.Caller{ID: courier.ID, Role: models.RoleDelivery}, nil)
	require.NoError(t, err)
	assert.Len(t, assigned, 1)

	all, err := svc.ListProducts(context.Background(), authz.Caller{ID: 0, Role: models.RoleAdmin}, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCreateDeliveryClientOwnership(t *testing.T) {
	fs := newFakeStore()
	cache := newFakeCache()
	events := &fakeEvents{}
	svc := NewDeliveryService(fs, fs, fs, cache, events)

	client := fs.addUser("client", models.RoleClient)
	other := fs.addUser("other", models.RoleClient)
	p := &models.Product{ID: fs.id(), Name: "box", ClientID: other.ID, Status: models.ProductStatusInStock}
	fs.products[p.ID] = p

	addr := models.Address{Street: "s", City: "c", PostalCode: "1", Country: "NL"}
	_, err := svc.CreateDelivery(context.Background(),
		authz.Caller{ID: client.ID, Role: models.RoleClient},
		&CreateDeliveryRequest{ProductID: p.ID, Address: addr})
	assert.ErrorIs(t, err, models.ErrForbidden)

	delivery, err := svc.CreateDelivery(context.Background(),
		authz.Caller{ID: other.ID, Role: models.RoleClient},
		&CreateDeliveryRequest{ProductID: p.ID, Address: addr})
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusPending, delivery.Status)
	assert.Equal(t, models.PriorityMedium, delivery.Priority)
	assert.Equal(t, other.ID, delivery.ClientID)
	assert.Regexp(t, `^KD\d{13}[0-9A-Z]{4}$`, delivery.TrackingNumber)
	assert.Contains(t, cache.byTracking, delivery.TrackingNumber)
	assert.Contains(t, events.published, models.EventTypeDeliveryCreated)
}

func TestCreateDeliveryAdminClientReference(t *testing.T) {
	fs := newFakeStore()
	svc := NewDeliveryService(fs, fs, fs, newFakeCache(), &fakeEvents{})

	client := fs.addUser("client", models.RoleClient)
	courier := fs.addUser("courier", models.RoleDelivery)
	p := &models.Product{ID: fs.id(), Name: "box", ClientID: client.ID, Status: models.ProductStatusInStock}
	fs.products[p.ID] = p

	admin := authz.Caller{ID: 0, Role: models.RoleAdmin}
	addr := models.Address{Street: "s", City: "c", PostalCode: "1", Country: "NL"}

	_, err := svc.CreateDelivery(context.Background(), admin,
		&CreateDeliveryRequest{ProductID: p.ID, ClientID: 9999, Address: addr})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = svc.CreateDelivery(context.Background(), admin,
		&CreateDeliveryRequest{ProductID: p.ID, ClientID: courier.ID, Address: addr})
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Empty(t, fs.deliveries)

	delivery, err := svc.CreateDelivery(context.Background(), admin,
		&CreateDeliveryRequest{ProductID: p.ID, ClientID: client.ID, Address: addr})
	require.NoError(t, err)
	assert.Equal(t, client.ID, delivery.ClientID)

	omitted, err := svc.CreateDelivery(context.Background(), admin,
		&CreateDeliveryRequest{ProductID: p.ID, Address: addr})
	require.NoError(t, err)
	assert.Equal(t, client.ID, omitted.ClientID)
}

func TestTrackDeliveryWarmsCache(t *testing.T) {
	fs := newFakeStore()
	cache := newFakeCache()
	svc := NewDeliveryService(fs, fs, fs, cache, &fakeEvents{})

	fs.deliveries[fs.id()] = &models.Delivery{
		ID: fs.nextID, ClientID: 1, Status: models.DeliveryStatusPending, TrackingNumber: "KD1700000000000ABCD",
	}

	got, err := svc.TrackDelivery(context.Background(), "KD1700000000000ABCD")
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusPending, got.Status)
	assert.Contains(t, cache.byTracking, "KD1700000000000ABCD")

	_, err = svc.TrackDelivery(context.Background(), "KD000missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpdateDeliveryCourierMayOnlyMoveStatus(t *testing.T) {
	fs := newFakeStore()
	cache := newFakeCache()
	events := &fakeEvents{}
	svc := NewDeliveryService(fs, fs, fs, cache, events)

	courier := fs.addUser("courier", models.RoleDelivery)
	d := &models.Delivery{
		ID: fs.id(), ClientID: 1, DeliveryPerson: &courier.ID,
		Status: models.DeliveryStatusInTransit, TrackingNumber: "KD3",
	}
	fs.deliveries[d.ID] = d
	cache.byTracking["KD3"] = d

	notes := "n"
	_, err := svc.UpdateDelivery(context.Background(),
		authz.Caller{ID: courier.ID, Role: models.RoleDelivery}, d.ID,
		&UpdateDeliveryRequest{Notes: &notes})
	assert.ErrorIs(t, err, models.ErrForbidden)

	status := models.DeliveryStatusDelivered
	updated, err := svc.UpdateDelivery(context.Background(),
		authz.Caller{ID: courier.ID, Role: models.RoleDelivery}, d.ID,
		&UpdateDeliveryRequest{Status: &status})
	require.NoError(t, err)
	require.NotNil(t, updated.DeliveredAt)
	require.NotNil(t, updated.ActualTime)
	assert.Equal(t, *updated.DeliveredAt, *updated.ActualTime)
	assert.NotContains(t, cache.byTracking, "KD3")
	assert.Contains(t, events.published, models.EventTypeDeliveryStatusChanged)

	stranger := fs.addUser("stranger", models.RoleDelivery)
	_, err = svc.UpdateDelivery(context.Background(),
		authz.Caller{ID: stranger.ID, Role: models.RoleDelivery}, d.ID,
		&UpdateDeliveryRequest{Status: &status})
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestUpdateDeliveryReassignment(t *testing.T) {
	fs := newFakeStore()
	svc := NewDeliveryService(fs, fs, fs, newFakeCache(), &fakeEvents{})

	client := fs.addUser("client", models.RoleClient)
	courier := fs.addUser("courier", models.RoleDelivery)
	d := &models.Delivery{ID: fs.id(), ClientID: 1, Status: models.DeliveryStatusPending, TrackingNumber: "KD4"}
	fs.deliveries[d.ID] = d

	admin := authz.Caller{ID: 0, Role: models.RoleAdmin}

	_, err := svc.UpdateDelivery(context.Background(), admin, d.ID,
		&UpdateDeliveryRequest{DeliveryPerson: &client.ID})
	assert.ErrorIs(t, err, models.ErrNotFound)

	updated, err := svc.UpdateDelivery(context.Background(), admin, d.ID,
		&UpdateDeliveryRequest{DeliveryPerson: &courier.ID})
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusAssigned, updated.Status)
	require.NotNil(t, updated.AssignedAt)
	require.NotNil(t, updated.DeliveryPerson)
	assert.Equal(t, courier.ID, *updated.DeliveryPerson)
}

func TestDeleteDeliveryOnlyWhenInert(t *testing.T) {
	fs := newFakeStore()
	events := &fakeEvents{}
	svc := NewDeliveryService(fs, fs, fs, newFakeCache(), events)
	admin := authz.Caller{ID: 0, Role: models.RoleAdmin}

	moving := &models.Delivery{ID: fs.id(), ClientID: 1, Status: models.DeliveryStatusInTransit, TrackingNumber: "KD5"}
	inert := &models.Delivery{ID: fs.id(), ClientID: 1, Status: models.DeliveryStatusPending, TrackingNumber: "KD6"}
	fs.deliveries[moving.ID] = moving
	fs.deliveries[inert.ID] = inert

	err := svc.DeleteDelivery(context.Background(), admin, moving.ID)
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Contains(t, fs.deliveries, moving.ID)

	require.NoError(t, svc.DeleteDelivery(context.Background(), admin, inert.ID))
	assert.NotContains(t, fs.deliveries, inert.ID)
	assert.Contains(t, events.published, models.EventTypeDeliveryDeleted)
}

func TestGetStatsServedFromCache(t *testing.T) {
	fs := newFakeStore()
	cache := newFakeCache()
	svc := NewDeliveryService(fs, fs, fs, cache, &fakeEvents{})
	admin := authz.Caller{ID: 0, Role: models.RoleAdmin}

	courier := fs.addUser("courier", models.RoleDelivery)
	fs.deliveries[fs.id()] = &models.Delivery{
		ID: fs.nextID, ClientID: 1, DeliveryPerson: &courier.ID,
		Status: models.DeliveryStatusInTransit, TrackingNumber: "KD7", DeliveryFee: 12.5,
	}

	stats, err := svc.GetStats(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalDeliveries)
	assert.Equal(t, int64(1), stats.InTransitDeliveries)
	assert.Equal(t, int64(1), stats.DeliveryPersonCount)
	assert.Equal(t, int64(1), stats.ActiveDeliveryPersons)
	assert.Equal(t, 12.5, stats.TotalRevenue)

	_, err = svc.GetStats(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, 1, fs.deliveryStatsCalls)

	_, err = svc.GetStats(context.Background(), authz.Caller{ID: 1, Role: models.RoleClient})
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestLoginOutcomes(t *testing.T) {
	fs := newFakeStore()
	tokens := auth.NewManager(config.AuthConfig{
		JWTSecret: "test-secret", TokenTTL: time.Minute, RefreshTTL: time.Hour,
	})
	svc := NewAuthService(fs, tokens)

	hash, err := auth.HashPassword("secret1")
	require.NoError(t, err)
	fs.users[1] = &models.User{ID: 1, Email: "a@example.com", PasswordHash: hash, Role: models.RoleClient}

	_, err = svc.Login(context.Background(), "a@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	result, err := svc.Login(context.Background(), "a@example.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.NotEmpty(t, result.RefreshToken)

	claims, err := tokens.ValidateToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), claims.UserID)
	assert.Equal(t, models.RoleClient, claims.Role)

	refreshed, err := svc.Refresh(context.Background(), result.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.Token)
}

func TestDashboardBreakdown(t *testing.T) {
	fs := newFakeStore()
	svc := NewStatsService(fs)

	fs.addUser("client", models.RoleClient)
	fs.addUser("courier", models.RoleDelivery)
	fs.products[fs.id()] = &models.Product{ID: fs.nextID, ClientID: 1, Status: models.ProductStatusInStock}
	fs.products[fs.id()] = &models.Product{ID: fs.nextID, ClientID: 1, Status: models.ProductStatusOutForDelivery}
	fs.products[fs.id()] = &models.Product{ID: fs.nextID, ClientID: 1, Status: models.ProductStatusDelivered}

	stats, err := svc.GetDashboard(context.Background(), authz.Caller{ID: 0, Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalProducts)
	assert.Equal(t, int64(2), stats.TotalDeliveries)
	assert.Equal(t, int64(1), stats.TotalClients)
	assert.Equal(t, int64(1), stats.DeliveryPersons)
	assert.Equal(t, int64(1), stats.Breakdown.OutForDelivery)
	assert.Equal(t, int64(1), stats.Breakdown.Delivered)

	_, err = svc.GetDashboard(context.Background(), authz.Caller{ID: 1, Role: models.RoleClient})
	assert.ErrorIs(t, err, models.ErrForbidden)
}
