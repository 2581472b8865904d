package taskname

const (
	// Account tasks
	AccountProvision = "account:provision"

	// Notification tasks
	NotificationPush = "notification:push"

	// Badge tasks
	BadgeCheck       = "badge:check"
	BadgeCatalogScan = "badge:catalog:scan"

	// Referral tasks
	ReferralTierCheck   = "referral:tier:check"
	ReferralExpirySweep = "referral:expiry:sweep"
)

// Scheduled lists the task types fired by the scheduler.
func Scheduled() []string {
	return []string{BadgeCatalogScan, ReferralTierCheck, ReferralExpirySweep}
}
