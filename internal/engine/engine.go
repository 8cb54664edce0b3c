// Package engine runs deployed functions inside containers and builds
// the images they run from.
package engine

import (
	"context"

	"github.com/splinter-dev/splinter/internal/function"
)

// Event is the request payload handed to a function container. Field
// names match what the runtime wrapper inside the container expects.
type Event struct {
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Headers     map[string]string `json:"headers,omitempty"`
	QueryParams map[string]string `json:"queryParams,omitempty"`
	Body        any               `json:"body,omitempty"`
	UserID      string            `json:"userId,omitempty"`
	Language    string            `json:"language,omitempty"`
	Framework   string            `json:"framework,omitempty"`
}

// Engine builds function images and executes invocations against them.
type Engine interface {
	// BuildImage builds the container image for a synthesized build
	// unit and returns the image tag.
	BuildImage(ctx context.Context, bc *function.BuildContext) (string, error)

	// ImageExists reports whether an image with the given tag is
	// present locally.
	ImageExists(ctx context.Context, tag string) (bool, error)

	// Execute runs a single invocation of the function in a fresh
	// container and returns the parsed result.
	Execute(ctx context.Context, fn *function.Function, event *Event) (*function.ExecutionResult, error)

	// RemoveImage deletes the image for an undeployed function.
	RemoveImage(ctx context.Context, tag string) error

	// Ping checks that the container runtime is reachable.
	Ping(ctx context.Context) error
}
