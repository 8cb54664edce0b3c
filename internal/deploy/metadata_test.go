package deploy

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/splinter-dev/splinter/internal/apperr"
)

func TestMetadataLifecycle(t *testing.T) {
	repo := NewMetadataRepo(t.TempDir())

	require.False(t, repo.Exists("u1", "shop"))
	require.NoError(t, repo.Create(&AppMetadata{AppName: "shop", UserID: "u1", Language: "python", Framework: "flask"}))
	require.True(t, repo.Exists("u1", "shop"))

	require.NoError(t, repo.AddFunction("u1", "shop", DeployedFunction{
		Name: "get_orders", ImageTag: "splinter-u1-shop-get_orders_get", Methods: []string{"GET"},
	}))
	require.NoError(t, repo.AddFunction("u1", "shop", DeployedFunction{
		Name: "create_order", ImageTag: "splinter-u1-shop-create_order_post", Methods: []string{"POST"},
	}))

	meta, err := repo.Read("u1", "shop")
	require.NoError(t, err)
	require.Len(t, meta.Functions, 2)
	require.False(t, meta.Functions[0].DeployedAt.IsZero())

	// Redeploy upserts rather than appends.
	require.NoError(t, repo.AddFunction("u1", "shop", DeployedFunction{
		Name: "get_orders", ImageTag: "splinter-u1-shop-get_orders_get", Methods: []string{"GET", "HEAD"},
	}))
	meta, err = repo.Read("u1", "shop")
	require.NoError(t, err)
	require.Len(t, meta.Functions, 2)

	require.NoError(t, repo.RemoveFunction("u1", "shop", "get_orders"))
	meta, err = repo.Read("u1", "shop")
	require.NoError(t, err)
	require.Len(t, meta.Functions, 1)
	require.Equal(t, "create_order", meta.Functions[0].Name)
}

func TestMetadataConcurrentAddFunction(t *testing.T) {
	repo := NewMetadataRepo(t.TempDir())
	require.NoError(t, repo.Create(&AppMetadata{AppName: "shop", UserID: "u1", Language: "python", Framework: "flask"}))

	// Sibling functions of one bundle deploy in parallel; no entry may
	// be lost to a racing read-modify-write.
	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs[n] = repo.AddFunction("u1", "shop", DeployedFunction{
				Name:    fmt.Sprintf("fn_%d", n),
				Methods: []string{"GET"},
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	meta, err := repo.Read("u1", "shop")
	require.NoError(t, err)
	require.Len(t, meta.Functions, workers)
}

func TestMetadataReadMissing(t *testing.T) {
	repo := NewMetadataRepo(t.TempDir())

	_, err := repo.Read("u1", "nope")
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))

	// Removing from a never-deployed app is not an error.
	require.NoError(t, repo.RemoveFunction("u1", "nope", "fn"))
}
