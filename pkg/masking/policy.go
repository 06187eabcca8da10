// Package masking applies role-based star masking to result tables before
// display. Columns are never dropped: sensitive values are replaced with
// stars so the output schema stays intact.
package masking

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AdminRole bypasses masking entirely.
const AdminRole = "admin"

// TagDefinition documents a sensitivity tag.
type TagDefinition struct {
	Description string `yaml:"description"`
	Sensitivity int    `yaml:"sensitivity"`
}

// RolePolicy lists the tags a role may not see in the clear. Both blocked
// and anonymized tags render as stars; the distinction is kept for policy
// authors migrating from stricter schemes.
type RolePolicy struct {
	Description   string   `yaml:"description"`
	BlockedTags   []string `yaml:"blocked_tags"`
	AnonymizeTags []string `yaml:"anonymize_tags"`
}

// Policy is the full masking configuration.
type Policy struct {
	TagDefinitions map[string]TagDefinition `yaml:"tag_definitions"`
	Roles          map[string]RolePolicy    `yaml:"roles"`
}

// LoadPolicy reads a masking policy from a YAML file. A missing file yields
// a permissive default policy with an admin role only.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return nil, fmt.Errorf("read masking policy: %w", err)
	}

	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("parse masking policy: %w", err)
	}
	if policy.Roles == nil {
		policy.Roles = map[string]RolePolicy{}
	}
	if policy.TagDefinitions == nil {
		policy.TagDefinitions = map[string]TagDefinition{}
	}
	return &policy, nil
}

// DefaultPolicy returns a policy with only the admin role defined.
func DefaultPolicy() *Policy {
	return &Policy{
		TagDefinitions: map[string]TagDefinition{},
		Roles: map[string]RolePolicy{
			AdminRole: {Description: "unrestricted access"},
		},
	}
}

// ShouldMask reports whether a field carrying the given tags must be star
// masked for the role. Untagged fields are always clear. Unknown roles see
// every tagged field masked.
func (p *Policy) ShouldMask(role string, tags []string) bool {
	if len(tags) == 0 {
		return false
	}

	rolePolicy, ok := p.Roles[role]
	if !ok {
		return true
	}

	sensitive := make(map[string]struct{}, len(rolePolicy.BlockedTags)+len(rolePolicy.AnonymizeTags))
	for _, tag := range rolePolicy.BlockedTags {
		sensitive[tag] = struct{}{}
	}
	for _, tag := range rolePolicy.AnonymizeTags {
		sensitive[tag] = struct{}{}
	}

	for _, tag := range tags {
		if _, hit := sensitive[tag]; hit {
			return true
		}
	}
	return false
}

// HasRole reports whether the policy defines the given role.
func (p *Policy) HasRole(role string) bool {
	_, ok := p.Roles[role]
	return ok
}
