package rediskey

import "fmt"

// Key prefixes shared by every process of the engagement service.
const (
	SchedulerLockPrefix = "engagement:scheduler:lock"
	ReferralCodePrefix  = "engagement:referral:code"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildSchedulerLockKey returns "engagement:scheduler:lock:{job}"
func BuildSchedulerLockKey(job string) string {
	return NamespaceKey(SchedulerLockPrefix, job)
}

// BuildReferralCodeKey returns "engagement:referral:code:{code}"
func BuildReferralCodeKey(code string) string {
	return NamespaceKey(ReferralCodePrefix, code)
}
