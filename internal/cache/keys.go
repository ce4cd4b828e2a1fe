package cache

import (
	"fmt"
)

func JobStatusKey(subjectID string) string {
	return fmt.Sprintf("job:%s", subjectID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

// PromptKey addresses a composed prompt. An empty tenant means global scope.
func PromptKey(kind, tenantID string) string {
	if tenantID == "" {
		return fmt.Sprintf("prompt:%s", kind)
	}
	return fmt.Sprintf("prompt:%s:%s", kind, tenantID)
}

// PromptTenantsPattern matches every tenant-scoped entry for kind.
func PromptTenantsPattern(kind string) string {
	return fmt.Sprintf("prompt:%s:*", kind)
}
