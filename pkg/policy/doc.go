// Package policy classifies types with Open Policy Agent (OPA) Rego policies.
//
// An Engine compiles policies and implements classify.Resolver, so policy
// answers feed straight into a classification registry:
//
//	eng, err := policy.NewEngine(logger, metrics)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := eng.LoadPolicies(ctx, []string{"./policies"}); err != nil {
//	    log.Fatal(err)
//	}
//	registry := classify.DefaultRegistry().AddResolver(eng)
//
// # Writing policies
//
// Each policy is a Rego module defining a complete rule named category in
// its own package. The input document is a classify.TypeInfo:
//
//	package deepclone.classify.vendor
//
//	import rego.v1
//
//	category := "ignored" if {
//	    startswith(input.pkg_path, "example.com/vendor/driver")
//	}
//
// Only "ignored" and "safe" answers change a classification. When several
// policies answer for the same type, "ignored" wins.
//
// # Built-in policies
//
//   - host-handles (enabled): network connections and listeners,
//     database/sql handles and os/exec.Cmd are ignored.
//   - immutable-names (disabled): named types starting with Immutable or
//     Frozen are shared.
//
// # Caching
//
// Resolve answers are memoized per qualified type name and dropped whenever
// the policy set changes. A clone.Cloner caches compiled strategies on top of
// that, so call its Reset after a policy change.
//
// A Loader caches parsed policy files until they change on disk. The
// configuration watcher builds a new Engine on every reload and hands all of
// them the same Loader through WithLoader.
package policy
