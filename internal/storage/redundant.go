package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
)

// UploadOutcome reports which backends actually received the artifact.
// Partial success is a valid, recorded outcome; the caller sets the two
// redundancy flags independently from Primary/Secondary.
type UploadOutcome struct {
	Primary    bool
	Secondary  bool
	UploadedTo []string
	Errors     []string
}

// Succeeded reports whether at least one backend holds the artifact.
func (o UploadOutcome) Succeeded() bool {
	return o.Primary || o.Secondary
}

// DeleteOutcome aggregates per-backend deletion results. Deletion counts as
// successful only when every attempted backend succeeded.
type DeleteOutcome struct {
	Deleted []string
	Errors  []string
}

func (o DeleteOutcome) Succeeded() bool {
	return len(o.Errors) == 0
}

// Redundant composes a primary and a secondary backend. Uploads fan out to
// both independently; downloads go to the authoritative primary, with
// failover to the secondary only when explicitly enabled.
type Redundant struct {
	primary   Backend
	secondary Backend
	failover  bool
}

func NewRedundant(primary, secondary Backend, downloadFailover bool) *Redundant {
	return &Redundant{primary: primary, secondary: secondary, failover: downloadFailover}
}

// UploadFile sends the file at path to both backends under the same key.
// Each attempt is independent; one backend failing never blocks the other.
func (r *Redundant) UploadFile(ctx context.Context, key, path string) UploadOutcome {
	var out UploadOutcome

	upload := func(b Backend) error {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open artifact: %w", err)
		}
		defer f.Close()
		stat, err := f.Stat()
		if err != nil {
			return fmt.Errorf("stat artifact: %w", err)
		}
		return b.Upload(ctx, key, f, stat.Size())
	}

	if err := upload(r.primary); err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", r.primary.Name(), err))
		log.Warn().Str("backend", r.primary.Name()).Str("key", key).Err(err).Msg("upload failed")
	} else {
		out.Primary = true
		out.UploadedTo = append(out.UploadedTo, r.primary.Name())
	}

	if err := upload(r.secondary); err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", r.secondary.Name(), err))
		log.Warn().Str("backend", r.secondary.Name()).Str("key", key).Err(err).Msg("upload failed")
	} else {
		out.Secondary = true
		out.UploadedTo = append(out.UploadedTo, r.secondary.Name())
	}

	return out
}

// Download fetches the artifact from the authoritative primary backend.
// Without failover enabled, a primary outage surfaces as a download error
// instead of being quietly masked by the secondary copy.
func (r *Redundant) Download(ctx context.Context, key string) (io.ReadCloser, string, error) {
	rc, err := r.primary.Download(ctx, key)
	if err == nil {
		return rc, r.primary.Name(), nil
	}
	if !r.failover {
		return nil, "", err
	}

	log.Warn().Str("key", key).Err(err).Msg("primary download failed, trying secondary")
	rc, ferr := r.secondary.Download(ctx, key)
	if ferr != nil {
		return nil, "", fmt.Errorf("primary: %v; secondary: %w", err, ferr)
	}
	return rc, r.secondary.Name(), nil
}

// Delete removes the key from every backend that is expected to hold it.
func (r *Redundant) Delete(ctx context.Context, key string, fromPrimary, fromSecondary bool) DeleteOutcome {
	var out DeleteOutcome

	attempt := func(b Backend) {
		if err := b.Delete(ctx, key); err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", b.Name(), err))
			return
		}
		out.Deleted = append(out.Deleted, b.Name())
	}

	if fromPrimary {
		attempt(r.primary)
	}
	if fromSecondary {
		attempt(r.secondary)
	}
	return out
}
