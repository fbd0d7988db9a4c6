package packagemanager

import (
	"weak"

	"github.com/pkg/errors"

	"PackageDB/errdefs"
)

func newReference(p *Package) *Reference {
	return &Reference{pkg: weak.Make(p), alive: true}
}

// Package returns the referenced package, or ErrState once it has been closed or collected.
func (r *Reference) Package() (*Package, error) {
	if r == nil {
		return nil, errors.Wrap(errdefs.ErrState, "entry is not attached to a package")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.alive {
		return nil, errors.Wrap(errdefs.ErrState, "package has been closed")
	}
	p := r.pkg.Value()
	if p == nil {
		return nil, errors.Wrap(errdefs.ErrState, "package is gone")
	}
	return p, nil
}

func (r *Reference) IsAlive() bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.alive && r.pkg.Value() != nil
}

func (r *Reference) invalidate() {
	r.mu.Lock()
	r.alive = false
	r.mu.Unlock()
}

// Resolve looks the entry up in the referenced package.
func (er EntryReference) Resolve() (*Entry, error) {
	p, err := er.Ref.Package()
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", er.Key)
	}
	return p.ResolveEntryByKey(er.Key)
}

func (er EntryReference) String() string { return er.Key.String() }
