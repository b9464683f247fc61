// Package validate implements the IOC validation task: it checks that an
// observable's value is well formed for its declared type.
package validate

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"regexp"
	"strings"
)

var (
	domainPattern = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)
	md5Pattern    = regexp.MustCompile(`^[a-fA-F0-9]{32}$`)
	sha1Pattern   = regexp.MustCompile(`^[a-fA-F0-9]{40}$`)
	sha256Pattern = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)
)

// Executor validates one indicator per invocation.
type Executor struct {
	strict bool
}

// NewExecutor creates a validation executor. When strict is set, unknown
// indicator types fail instead of passing through unvalidated.
func NewExecutor(config map[string]any) (*Executor, error) {
	strict, _ := config["strict"].(bool)

	return &Executor{strict: strict}, nil
}

// Execute checks input fields "type" and "value" and returns is_valid, a
// normalized value and a reason when invalid.
func (e *Executor) Execute(_ context.Context, input map[string]any, logger *slog.Logger) (map[string]any, error) {
	iocType, _ := input["type"].(string)
	value, _ := input["value"].(string)

	if value == "" {
		return nil, fmt.Errorf("validation input has no value field")
	}

	normalized := strings.TrimSpace(value)
	valid, reason := e.check(iocType, normalized)

	if iocType == "domain" || iocType == "hash" || iocType == "md5" || iocType == "sha1" || iocType == "sha256" {
		normalized = strings.ToLower(normalized)
	}

	logger.Debug("Indicator validated", "type", iocType, "valid", valid)

	output := map[string]any{
		"is_valid":         valid,
		"normalized_value": normalized,
		"type":             iocType,
	}

	if reason != "" {
		output["reason"] = reason
	}

	return output, nil
}

func (e *Executor) check(iocType, value string) (bool, string) {
	switch iocType {
	case "ip":
		if net.ParseIP(value) == nil {
			return false, "not a valid IP address"
		}
	case "domain":
		if !domainPattern.MatchString(value) {
			return false, "not a valid domain name"
		}
	case "url":
		parsed, err := url.Parse(value)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return false, "not a valid absolute URL"
		}
	case "md5":
		if !md5Pattern.MatchString(value) {
			return false, "not a valid MD5 digest"
		}
	case "sha1":
		if !sha1Pattern.MatchString(value) {
			return false, "not a valid SHA-1 digest"
		}
	case "hash", "sha256":
		if !sha256Pattern.MatchString(value) {
			return false, "not a valid SHA-256 digest"
		}
	case "email":
		at := strings.Index(value, "@")
		if at <= 0 || !domainPattern.MatchString(value[at+1:]) {
			return false, "not a valid email address"
		}
	default:
		if e.strict {
			return false, fmt.Sprintf("unknown indicator type %q", iocType)
		}
	}

	return true, ""
}
