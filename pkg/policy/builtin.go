package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		hostHandlesPolicy(),
		immutableNamesPolicy(),
	}
}

// hostHandlesPolicy ignores types that wrap process-bound handles.
func hostHandlesPolicy() Policy {
	return Policy{
		Name:        "host-handles",
		Description: "Ignores network connections, database handles and child processes, which cannot be duplicated",
		Enabled:     true,
		Tags:        []string{"handles", "ignore"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package deepclone.classify.host_handles

import rego.v1

handles := {
	"net.TCPConn",
	"net.UDPConn",
	"net.UnixConn",
	"net.IPConn",
	"net.TCPListener",
	"net.UnixListener",
	"database/sql.DB",
	"database/sql.Conn",
	"database/sql.Tx",
	"database/sql.Stmt",
	"database/sql.Rows",
	"os/exec.Cmd",
}

category := "ignored" if {
	input.qualified in handles
}

# Raw syscall state is never meaningful in a copy.
category := "ignored" if {
	input.pkg_path == "syscall"
	input.kind == "struct"
	endswith(input.name, "Attr")
}
`,
	}
}

// immutableNamesPolicy shares types whose name declares them immutable.
// It is disabled by default.
func immutableNamesPolicy() Policy {
	return Policy{
		Name:        "immutable-names",
		Description: "Shares named types starting with Immutable or Frozen instead of copying them",
		Enabled:     false,
		Tags:        []string{"naming", "share"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package deepclone.classify.immutable_names

import rego.v1

prefixes := {"Immutable", "Frozen"}

category := "safe" if {
	some prefix in prefixes
	startswith(input.name, prefix)
}
`,
	}
}
