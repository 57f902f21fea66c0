package directory

import (
	"errors"
	"strings"
	"sync"

	"github.com/biogate/biogate/internal/clock"
	"github.com/biogate/biogate/internal/model"
	"github.com/google/uuid"
)

// Directory errors
var (
	ErrNotFound        = errors.New("identity not found")
	ErrDuplicateName   = errors.New("identity name already exists")
	ErrNotEnrolled     = errors.New("identity has no enrolled template")
	ErrAlreadyEnrolled = errors.New("identity already has a template")
)

// Directory is the in-memory identity store. Identities are never deleted;
// the only mutations are enrollment (attaching a template) and attaching an
// external credential reference to an existing template.
type Directory struct {
	mu        sync.RWMutex
	clk       clock.Clock
	byID      map[string]*model.Identity
	idByName  map[string]string
	templates map[string]*model.BiometricTemplate
}

// New creates an empty Directory.
func New(clk clock.Clock) *Directory {
	return &Directory{
		clk:       clk,
		byID:      make(map[string]*model.Identity),
		idByName:  make(map[string]string),
		templates: make(map[string]*model.BiometricTemplate),
	}
}

// Register creates a new identity. Display names are unique.
func (d *Directory) Register(displayName string, role model.Role) (*model.Identity, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return nil, errors.New("display name must not be empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.idByName[name]; exists {
		return nil, ErrDuplicateName
	}

	identity := &model.Identity{
		ID:          "idn_" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		DisplayName: name,
		Role:        role,
		CreatedAt:   d.clk.Now(),
	}
	d.byID[identity.ID] = identity
	d.idByName[name] = identity.ID

	out := *identity
	return &out, nil
}

// FindByID looks up an identity by its ID.
func (d *Directory) FindByID(id string) (*model.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	identity, ok := d.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *identity
	return &out, nil
}

// FindByName looks up an identity by display name.
func (d *Directory) FindByName(name string) (*model.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.idByName[strings.TrimSpace(name)]
	if !ok {
		return nil, ErrNotFound
	}
	out := *d.byID[id]
	return &out, nil
}

// AttachTemplate binds a template to an identity and marks it enrolled.
// A template is owned by exactly one identity and attached at most once.
func (d *Directory) AttachTemplate(id string, t *model.BiometricTemplate) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	identity, ok := d.byID[id]
	if !ok {
		return ErrNotFound
	}
	if _, exists := d.templates[id]; exists {
		return ErrAlreadyEnrolled
	}

	t.OwnerID = id
	d.templates[id] = t
	identity.Enrolled = true
	return nil
}

// Template returns the enrolled template for an identity.
func (d *Directory) Template(id string) (*model.BiometricTemplate, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.byID[id]; !ok {
		return nil, ErrNotFound
	}
	t, ok := d.templates[id]
	if !ok {
		return nil, ErrNotEnrolled
	}
	out := *t
	out.Embedding = append([]float64(nil), t.Embedding...)
	return &out, nil
}

// AttachExternalCredential records an external platform credential reference
// on an already-enrolled template. This is the template's only post-creation
// mutation.
func (d *Directory) AttachExternalCredential(id, ref string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byID[id]; !ok {
		return ErrNotFound
	}
	t, ok := d.templates[id]
	if !ok {
		return ErrNotEnrolled
	}
	t.ExternalCredentialRef = ref
	return nil
}

// Enrolled returns copies of all enrolled identities, for 1:N sweeps.
func (d *Directory) Enrolled() []*model.Identity {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*model.Identity, 0, len(d.templates))
	for id := range d.templates {
		cp := *d.byID[id]
		out = append(out, &cp)
	}
	return out
}

// TamperDigest overwrites the stored integrity digest for an identity's
// template. It exists for integrity-violation drills and tests; production
// callers have no business invoking it.
func (d *Directory) TamperDigest(id, digest string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.templates[id]
	if !ok {
		return ErrNotEnrolled
	}
	t.IntegrityDigest = digest
	return nil
}
