package signals

import (
	"math"
	"slices"
	"sort"
	"sync"
	"unicode/utf8"

	dErrors "docrisk/pkg/domain-errors"
)

// maxEvidenceStringLen bounds string evidence so free text cannot ride along.
const maxEvidenceStringLen = 64

// Registry is the versioned catalogue of every signal name the pipeline may emit.
// It is populated once at startup and frozen; after Freeze it is read-only and
// safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	version string
	specs   map[string]Spec
	frozen  bool
}

// NewRegistry creates an empty, unfrozen registry.
func NewRegistry(version string) *Registry {
	return &Registry{
		version: version,
		specs:   make(map[string]Spec),
	}
}

// Register adds a signal spec. It fails once the registry is frozen, on a
// duplicate name, or when the name does not follow "domain.feature".
func (r *Registry) Register(spec Spec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "registry %s is frozen; cannot register %q", r.version, spec.Name)
	}
	domain := Domain(spec.Name)
	if domain == "" {
		return dErrors.Newf(dErrors.CodeInvalidInput, "signal name %q must be domain.feature", spec.Name)
	}
	if spec.Domain == "" {
		spec.Domain = domain
	}
	if spec.Domain != domain {
		return dErrors.Newf(dErrors.CodeInvalidInput, "signal %q declares domain %q", spec.Name, spec.Domain)
	}
	if _, exists := r.specs[spec.Name]; exists {
		return dErrors.Newf(dErrors.CodeInvalidInput, "signal %q registered twice", spec.Name)
	}
	spec.GatedBy = slices.Clone(spec.GatedBy)
	r.specs[spec.Name] = spec
	return nil
}

// Freeze makes the registry immutable.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Version returns the catalogue version.
func (r *Registry) Version() string {
	return r.version
}

// IsAllowed reports whether name is registered.
func (r *Registry) IsAllowed(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Lookup returns a copy of the spec for name.
func (r *Registry) Lookup(name string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	if !ok {
		return Spec{}, false
	}
	spec.GatedBy = slices.Clone(spec.GatedBy)
	return spec, true
}

// ByDomain returns the specs of one domain ordered by name.
func (r *Registry) ByDomain(domain string) []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Spec
	for _, spec := range r.specs {
		if spec.Domain == domain {
			spec.GatedBy = slices.Clone(spec.GatedBy)
			out = append(out, spec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateEmission fails with a schema violation when name is not registered.
// Unregistered names are never warned about and accepted: they would corrupt
// aggregation and telemetry joins downstream.
func (r *Registry) ValidateEmission(name string) error {
	if !r.IsAllowed(name) {
		return dErrors.Newf(dErrors.CodeSchemaViolation, "signal %q is not registered in catalogue %s", name, r.version)
	}
	return nil
}

// ValidateBag checks every signal in bag against the catalogue and the signal contract.
// Signals are visited in name order so the reported violation is deterministic.
func (r *Registry) ValidateBag(bag Bag) error {
	keys := make([]string, 0, len(bag))
	for k := range bag {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := r.validateSignal(key, bag[key]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) validateSignal(key string, sig Signal) error {
	if key != sig.Name {
		return dErrors.Newf(dErrors.CodeSchemaViolation, "bag key %q does not match signal name %q", key, sig.Name)
	}
	if err := r.ValidateEmission(sig.Name); err != nil {
		return err
	}
	if !sig.Status.Valid() {
		return dErrors.Newf(dErrors.CodeSchemaViolation, "signal %q has unknown status %q", sig.Name, sig.Status)
	}
	if math.IsNaN(sig.Confidence) || sig.Confidence < 0 || sig.Confidence > 1 {
		return dErrors.Newf(dErrors.CodeSchemaViolation, "signal %q confidence %v outside [0,1]", sig.Name, sig.Confidence)
	}
	if sig.Status == StatusGated {
		spec, _ := r.Lookup(sig.Name)
		if !spec.AllowsGatingReason(sig.GatingReason) {
			return dErrors.Newf(dErrors.CodeSchemaViolation, "signal %q gated with undeclared reason %q", sig.Name, sig.GatingReason)
		}
	}
	for k, v := range sig.Evidence {
		if !isPrimitive(v) {
			return dErrors.Newf(dErrors.CodeSchemaViolation, "signal %q evidence %q is not a primitive value", sig.Name, k)
		}
	}
	return nil
}

func isPrimitive(v any) bool {
	switch val := v.(type) {
	case bool, int, int32, int64:
		return true
	case float32:
		f := float64(val)
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	case float64:
		return !math.IsNaN(val) && !math.IsInf(val, 0)
	case string:
		return utf8.RuneCountInString(val) <= maxEvidenceStringLen
	}
	return false
}

// View is the registry-validated read accessor rules use to reach signals.
type View struct {
	bag Bag
	reg *Registry
}

// View binds a bag to the registry.
func (r *Registry) View(bag Bag) View {
	return View{bag: bag, reg: r}
}

// Get returns the named signal. An absent or unregistered name reads as
// UNKNOWN so rules abstain instead of treating it as false or zero.
func (v View) Get(name string) Signal {
	if !v.reg.IsAllowed(name) {
		return Signal{Name: name, Status: StatusUnknown}
	}
	sig, ok := v.bag[name]
	if !ok {
		return Signal{Name: name, Status: StatusUnknown}
	}
	return sig
}
