package config

import (
	"os"
	"strings"
)

// SyncOrgDefaultTemplate makes an explicit org-scoped template choice committed onto an
// invoice also become the organization's default template (last write wins).
// Off unless enabled.
//
// Set via env:
// - SYNC_ORG_DEFAULT_TEMPLATE=true
func SyncOrgDefaultTemplate() bool {
	return envBool("SYNC_ORG_DEFAULT_TEMPLATE")
}

// DefaultPhoneRegion is the region used to parse customer phone numbers without a country prefix.
//
// Set via env:
// - DEFAULT_PHONE_REGION=US
func DefaultPhoneRegion() string {
	v := strings.ToUpper(strings.TrimSpace(os.Getenv("DEFAULT_PHONE_REGION")))
	if v == "" {
		return "US"
	}
	return v
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
