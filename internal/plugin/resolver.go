package plugin

import (
	"fmt"
	"log/slog"
	"strings"

	"git.home.luguber.info/inful/sitewright/internal/logfields"
)

// requestedBySite labels dependency edges that originate from site.yaml
// rather than another plugin's manifest.
const requestedBySite = "site configuration"

// Resolver computes plugin load order from declared dependencies.
// It keeps no state between calls; every Resolve and Validate walks with
// fresh marks, which is what makes Validate side-effect free.
type Resolver struct {
	registry *Registry
	logger   *slog.Logger
}

// NewResolver creates a resolver over the given registry.
func NewResolver(registry *Registry, logger *slog.Logger) *Resolver {
	return &Resolver{registry: registry, logger: logger}
}

type visitColor uint8

const (
	colorUnvisited visitColor = iota
	colorInProgress
	colorDone
)

type resolveWalk struct {
	colors map[string]visitColor
	chain  []string
	order  []string
}

// Resolve returns the requested plugins plus their transitive dependencies
// in dependency-first order: every required dependency (or its chosen
// capability provider) precedes its dependent. Names already satisfied by
// an earlier entry are not repeated.
func (r *Resolver) Resolve(requested []string) ([]string, error) {
	walk := &resolveWalk{colors: make(map[string]visitColor)}
	for _, name := range requested {
		if err := r.visit(name, requestedBySite, walk); err != nil {
			return nil, err
		}
	}
	return walk.order, nil
}

func (r *Resolver) visit(name, requiredBy string, walk *resolveWalk) error {
	target := name
	if !r.registry.Has(name) {
		resolved, err := r.resolveCapability(name, requiredBy)
		if err != nil {
			return err
		}
		target = resolved
	}

	switch walk.colors[target] {
	case colorDone:
		return nil
	case colorInProgress:
		// Re-entering an in-progress node closes a cycle. The chain runs
		// from the original request down to the repeated node.
		chain := append(append([]string{}, walk.chain...), target)
		return &CycleError{Chain: chain}
	}

	walk.colors[target] = colorInProgress
	walk.chain = append(walk.chain, target)

	desc, _ := r.registry.Get(target)
	for _, dep := range desc.Manifest.Dependencies.Required {
		if err := r.visit(dep, target, walk); err != nil {
			return err
		}
	}
	// Optional dependencies join the order only when installed, matched by
	// exact name; no capability search for them.
	for _, dep := range desc.Manifest.Dependencies.Optional {
		if !r.registry.Has(dep) {
			continue
		}
		if err := r.visit(dep, target, walk); err != nil {
			return err
		}
	}

	walk.chain = walk.chain[:len(walk.chain)-1]
	walk.colors[target] = colorDone
	walk.order = append(walk.order, target)
	return nil
}

// resolveCapability maps a name with no registry entry to a provider
// declaring it in provides.
func (r *Resolver) resolveCapability(name, requiredBy string) (string, error) {
	if looksLikeConcreteName(name) {
		return "", &NotFoundError{Name: name}
	}

	providers := r.registry.ProvidersOf(name)
	switch len(providers) {
	case 0:
		return "", &CapabilityError{Capability: name, RequiredBy: requiredBy}
	case 1:
		return providers[0].Key(), nil
	default:
		chosen := providers[0].Key()
		names := make([]string, len(providers))
		for i, p := range providers {
			names[i] = p.Key()
		}
		r.logger.Warn("multiple providers for capability, using first by discovery order",
			logfields.Capability(name),
			logfields.Plugin(chosen),
			slog.String("candidates", strings.Join(names, ",")))
		return chosen, nil
	}
}

// looksLikeConcreteName reports whether a dependency name reads as a
// concrete plugin identifier (scoped package, path, or versioned name)
// rather than an abstract capability word.
func looksLikeConcreteName(name string) bool {
	return strings.ContainsAny(name, `/\@.`)
}

// Report is the outcome of Validate.
type Report struct {
	Valid    bool
	Errors   []error
	Warnings []string
}

type validateWalk struct {
	colors   map[string]visitColor
	chain    []string
	errors   []error
	warnings []string
	seen     map[string]struct{}
}

func (v *validateWalk) addError(err error) {
	key := "e:" + err.Error()
	if _, dup := v.seen[key]; dup {
		return
	}
	v.seen[key] = struct{}{}
	v.errors = append(v.errors, err)
}

func (v *validateWalk) addWarning(msg string) {
	key := "w:" + msg
	if _, dup := v.seen[key]; dup {
		return
	}
	v.seen[key] = struct{}{}
	v.warnings = append(v.warnings, msg)
}

// Validate runs the same dependency and capability checks as Resolve
// without producing an order, collecting every distinct problem instead of
// stopping at the first. Missing required dependencies and cycles are
// errors; missing optional dependencies and ambiguous capabilities are
// warnings. Validate succeeds exactly when Resolve would.
func (r *Resolver) Validate(requested []string) Report {
	walk := &validateWalk{
		colors: make(map[string]visitColor),
		seen:   make(map[string]struct{}),
	}
	for _, name := range requested {
		r.checkNode(name, requestedBySite, walk)
	}
	return Report{
		Valid:    len(walk.errors) == 0,
		Errors:   walk.errors,
		Warnings: walk.warnings,
	}
}

func (r *Resolver) checkNode(name, requiredBy string, walk *validateWalk) {
	target := name
	if !r.registry.Has(name) {
		if looksLikeConcreteName(name) {
			walk.addError(&NotFoundError{Name: name})
			return
		}
		providers := r.registry.ProvidersOf(name)
		switch len(providers) {
		case 0:
			walk.addError(&CapabilityError{Capability: name, RequiredBy: requiredBy})
			return
		case 1:
			target = providers[0].Key()
		default:
			target = providers[0].Key()
			walk.addWarning(fmt.Sprintf("capability %q has %d providers; using %q",
				name, len(providers), target))
		}
	}

	switch walk.colors[target] {
	case colorDone:
		return
	case colorInProgress:
		chain := append(append([]string{}, walk.chain...), target)
		walk.addError(&CycleError{Chain: chain})
		return
	}

	walk.colors[target] = colorInProgress
	walk.chain = append(walk.chain, target)

	desc, _ := r.registry.Get(target)
	for _, dep := range desc.Manifest.Dependencies.Required {
		r.checkNode(dep, target, walk)
	}
	for _, dep := range desc.Manifest.Dependencies.Optional {
		if !r.registry.Has(dep) {
			walk.addWarning(fmt.Sprintf("plugin %q optional dependency %q is not installed",
				target, dep))
			continue
		}
		r.checkNode(dep, target, walk)
	}

	walk.chain = walk.chain[:len(walk.chain)-1]
	walk.colors[target] = colorDone
}
