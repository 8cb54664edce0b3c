package engine

import (
	"context"
	"sync"

	"github.com/splinter-dev/splinter/internal/function"
)

// Fake is an in-memory Engine for tests. It records built images and
// answers invocations from a canned result table.
type Fake struct {
	mu          sync.Mutex
	images      map[string]bool
	Built       []string
	Removed     []string
	Results     map[string]*function.ExecutionResult
	BuildErr    error
	BuildErrFor map[string]error
	ExecErr     error
	PingErr     error
}

// NewFake returns an empty fake engine.
func NewFake() *Fake {
	return &Fake{
		images:      make(map[string]bool),
		Results:     make(map[string]*function.ExecutionResult),
		BuildErrFor: make(map[string]error),
	}
}

func (f *Fake) BuildImage(_ context.Context, bc *function.BuildContext) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BuildErr != nil {
		return "", f.BuildErr
	}
	if err := f.BuildErrFor[bc.Function.Name]; err != nil {
		return "", err
	}
	fn := bc.Function
	tag := ImageTag("splinter", fn.UserID, fn.AppName, fn.Name, fn.PrimaryMethod())
	f.images[tag] = true
	f.Built = append(f.Built, tag)
	return tag, nil
}

func (f *Fake) ImageExists(_ context.Context, tag string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images[tag], nil
}

func (f *Fake) Execute(_ context.Context, fn *function.Function, _ *Event) (*function.ExecutionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ExecErr != nil {
		return nil, f.ExecErr
	}
	if res, ok := f.Results[fn.Name]; ok {
		return res, nil
	}
	return &function.ExecutionResult{StatusCode: 200, Body: "ok", Success: true}, nil
}

func (f *Fake) Ping(_ context.Context) error {
	return f.PingErr
}

func (f *Fake) RemoveImage(_ context.Context, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.images, tag)
	f.Removed = append(f.Removed, tag)
	return nil
}
