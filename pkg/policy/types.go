package policy

import (
	"time"

	"github.com/openfroyo/deepclone/pkg/classify"
)

// Policy represents a classification rule with its Rego code.
//
// A policy module defines a complete rule named "category" in its package.
// The rule receives a classify.TypeInfo as input and yields "ignored" or
// "safe" for the types it wants to reclassify. Any other answer, or no
// answer, leaves the decision to the registry's own tables.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Decision is the answer of a single policy for a single type.
type Decision struct {
	// Policy is the name of the policy that answered.
	Policy string `json:"policy"`

	// Category is the raw answer, e.g. "ignored" or "safe".
	Category string `json:"category"`
}

// Result represents the combined answer of all enabled policies for a type.
type Result struct {
	// Type is the evaluated type.
	Type classify.TypeInfo `json:"type"`

	// Category is the winning answer, empty when no policy answered.
	// "ignored" wins over "safe".
	Category string `json:"category,omitempty"`

	// Decisions lists every answer, in policy name order.
	Decisions []Decision `json:"decisions,omitempty"`

	// Errors lists policies whose evaluation failed.
	Errors []string `json:"errors,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the policies were evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}
