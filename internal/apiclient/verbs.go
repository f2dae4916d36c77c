package apiclient

import (
	"context"
	"net/http"
)

// Get fetches path and decodes the response as T.
func Get[T any](ctx context.Context, c *Client, path string, auth AuthMode) (T, error) {
	return do[T](ctx, c, Request{Method: http.MethodGet, Path: path, Auth: auth})
}

// Post sends body to path and decodes the response as T.
func Post[T any](ctx context.Context, c *Client, path string, body any, auth AuthMode) (T, error) {
	return do[T](ctx, c, Request{Method: http.MethodPost, Path: path, Body: body, Auth: auth})
}

// Patch sends body to path and decodes the response as T.
func Patch[T any](ctx context.Context, c *Client, path string, body any, auth AuthMode) (T, error) {
	return do[T](ctx, c, Request{Method: http.MethodPatch, Path: path, Body: body, Auth: auth})
}

// Delete deletes path, optionally with a body, and decodes the response as T.
func Delete[T any](ctx context.Context, c *Client, path string, body any, auth AuthMode) (T, error) {
	return do[T](ctx, c, Request{Method: http.MethodDelete, Path: path, Body: body, Auth: auth})
}

func do[T any](ctx context.Context, c *Client, req Request) (T, error) {
	var out T
	if err := c.Do(ctx, req, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
