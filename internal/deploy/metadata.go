package deploy

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/splinter-dev/splinter/internal/apperr"
)

const metadataFile = "metadata.json"

// AppMetadata is the per-app deployment manifest kept beside the build
// units. It records which functions are currently deployed from the
// app so later bundle deploys know what to replace.
type AppMetadata struct {
	AppName   string             `json:"appName"`
	UserID    string             `json:"userId"`
	Language  string             `json:"language"`
	Framework string             `json:"framework"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
	Functions []DeployedFunction `json:"functions"`
}

// DeployedFunction is one metadata entry.
type DeployedFunction struct {
	Name       string    `json:"name"`
	ImageTag   string    `json:"imageTag"`
	Methods    []string  `json:"methods"`
	DeployedAt time.Time `json:"deployedAt"`
}

// MetadataRepo reads and writes app metadata files under the build
// root. Mutations serialize per app: sibling functions of one bundle
// deploy in parallel, and each must see the previous entry it races
// with.
type MetadataRepo struct {
	buildRoot string
	locks     *keyedMutex
}

func NewMetadataRepo(buildRoot string) *MetadataRepo {
	return &MetadataRepo{buildRoot: buildRoot, locks: newKeyedMutex()}
}

func (r *MetadataRepo) lock(userID, appName string) func() {
	return r.locks.Acquire(userID + "/" + appName)
}

func (r *MetadataRepo) path(userID, appName string) string {
	return filepath.Join(r.buildRoot, userID, appName, metadataFile)
}

// Exists reports whether the app already has a metadata file, i.e. has
// been deployed before.
func (r *MetadataRepo) Exists(userID, appName string) bool {
	_, err := os.Stat(r.path(userID, appName))
	return err == nil
}

// Create writes a fresh metadata file for a newly deployed app.
func (r *MetadataRepo) Create(meta *AppMetadata) error {
	release := r.lock(meta.UserID, meta.AppName)
	defer release()

	now := time.Now().UTC()
	meta.CreatedAt = now
	meta.UpdatedAt = now
	if meta.Functions == nil {
		meta.Functions = []DeployedFunction{}
	}
	return r.write(meta)
}

// Read loads the metadata file for an app.
func (r *MetadataRepo) Read(userID, appName string) (*AppMetadata, error) {
	raw, err := os.ReadFile(r.path(userID, appName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.NotFound("metadata_not_found", "no metadata for app %s", appName)
	}
	if err != nil {
		return nil, apperr.FileOperation("metadata_read", err, "failed to read metadata for app %s", appName)
	}
	var meta AppMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, apperr.FileOperation("metadata_parse", err, "corrupt metadata for app %s", appName)
	}
	return &meta, nil
}

// AddFunction upserts a deployed-function entry by name.
func (r *MetadataRepo) AddFunction(userID, appName string, fn DeployedFunction) error {
	release := r.lock(userID, appName)
	defer release()

	meta, err := r.Read(userID, appName)
	if err != nil {
		return err
	}
	fn.DeployedAt = time.Now().UTC()
	replaced := false
	for i, existing := range meta.Functions {
		if existing.Name == fn.Name {
			meta.Functions[i] = fn
			replaced = true
			break
		}
	}
	if !replaced {
		meta.Functions = append(meta.Functions, fn)
	}
	meta.UpdatedAt = time.Now().UTC()
	return r.write(meta)
}

// RemoveFunction drops a function entry, if present.
func (r *MetadataRepo) RemoveFunction(userID, appName, name string) error {
	release := r.lock(userID, appName)
	defer release()

	meta, err := r.Read(userID, appName)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil
		}
		return err
	}
	kept := meta.Functions[:0]
	for _, fn := range meta.Functions {
		if fn.Name != name {
			kept = append(kept, fn)
		}
	}
	meta.Functions = kept
	meta.UpdatedAt = time.Now().UTC()
	return r.write(meta)
}

func (r *MetadataRepo) write(meta *AppMetadata) error {
	path := r.path(meta.UserID, meta.AppName)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperr.FileOperation("metadata_write", err, "failed to create app dir for %s", meta.AppName)
	}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return apperr.FileOperation("metadata_write", err, "failed to encode metadata for %s", meta.AppName)
	}
	// Write-then-rename so a concurrent Read never sees a partial file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return apperr.FileOperation("metadata_write", err, "failed to write metadata for %s", meta.AppName)
	}
	if err := os.Rename(tmp, path); err != nil {
		return apperr.FileOperation("metadata_write", err, "failed to write metadata for %s", meta.AppName)
	}
	return nil
}
