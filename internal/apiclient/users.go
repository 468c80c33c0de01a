package apiclient

import (
	"context"
	"net/http"

	"github.com/MarcoPoloResearchLab/roster/internal/cache"
	"github.com/MarcoPoloResearchLab/roster/internal/records"
)

const (
	resourceUser    = "user"
	resourceProduct = "product"
)

// ListUsers returns every user, newest first.
func (c *Client) ListUsers(ctx context.Context) ([]records.Record, error) {
	var out struct {
		Users []records.Record `json:"users"`
	}
	if err := c.call(ctx, "apiclient.list_users", http.MethodGet, "/users", resourceUser, nil, &out); err != nil {
		return nil, err
	}
	if out.Users == nil {
		out.Users = []records.Record{}
	}
	return out.Users, nil
}

// GetUser returns one user.
func (c *Client) GetUser(ctx context.Context, id int) (records.Record, error) {
	var out records.Record
	if err := c.call(ctx, "apiclient.get_user", http.MethodGet, userPath(id), resourceUser, nil, &out); err != nil {
		return records.Record{}, err
	}
	return out, nil
}

// CreateUser stores a new user and returns the server's copy.
func (c *Client) CreateUser(ctx context.Context, record records.Record) (records.Record, error) {
	var out records.Record
	if err := c.call(ctx, "apiclient.create_user", http.MethodPost, "/users/add", resourceUser, record, &out); err != nil {
		return records.Record{}, err
	}
	return out, nil
}

// UpdateUser replaces the user with record.ID.
func (c *Client) UpdateUser(ctx context.Context, record records.Record) (records.Record, error) {
	var out records.Record
	if err := c.call(ctx, "apiclient.update_user", http.MethodPut, userPath(record.ID), resourceUser, record, &out); err != nil {
		return records.Record{}, err
	}
	return out, nil
}

// DeleteUser removes the user with id.
func (c *Client) DeleteUser(ctx context.Context, id int) error {
	return c.call(ctx, "apiclient.delete_user", http.MethodDelete, userPath(id), resourceUser, nil, nil)
}

// ListProducts returns the catalogue with blank text fields filled in.
func (c *Client) ListProducts(ctx context.Context) ([]records.Product, error) {
	var out struct {
		Products []records.Product `json:"products"`
	}
	if err := c.call(ctx, "apiclient.list_products", http.MethodGet, "/products", resourceProduct, nil, &out); err != nil {
		return nil, err
	}
	products := make([]records.Product, 0, len(out.Products))
	for _, product := range out.Products {
		products = append(products, product.Normalize())
	}
	return products, nil
}

// UsersSource adapts the client to a cache source for users.
func (c *Client) UsersSource() cache.Source[records.Record] {
	return usersSource{client: c}
}

// ProductsSource adapts the client to a read-only cache source for products.
func (c *Client) ProductsSource() cache.Source[records.Product] {
	return productsSource{client: c}
}

type usersSource struct {
	client *Client
}

func (s usersSource) FetchAll(ctx context.Context) ([]records.Record, error) {
	return s.client.ListUsers(ctx)
}

func (s usersSource) Create(ctx context.Context, record records.Record) (records.Record, error) {
	return s.client.CreateUser(ctx, record)
}

func (s usersSource) Update(ctx context.Context, record records.Record) (records.Record, error) {
	return s.client.UpdateUser(ctx, record)
}

func (s usersSource) Delete(ctx context.Context, id int) error {
	return s.client.DeleteUser(ctx, id)
}

type productsSource struct {
	client *Client
}

func (s productsSource) FetchAll(ctx context.Context) ([]records.Product, error) {
	return s.client.ListProducts(ctx)
}

func (productsSource) Create(context.Context, records.Product) (records.Product, error) {
	return records.Product{}, ErrReadOnly
}

func (productsSource) Update(context.Context, records.Product) (records.Product, error) {
	return records.Product{}, ErrReadOnly
}

func (productsSource) Delete(context.Context, int) error {
	return ErrReadOnly
}
