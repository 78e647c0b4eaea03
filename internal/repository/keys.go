package repository

// Logical key layout. A deployment namespace is applied by store.WithNamespace.
const (
	campaignPrefix = "auto:campaign:"
	KeyActive      = "auto:campaign:active"
	KeyLast        = "auto:campaign:last"
	KeyHealth      = "accounts:runtime"
	KeyTickLock    = "auto:tick:lock"
)

func CampaignKey(id string) string { return campaignPrefix + id }
func StatsKey(id string) string    { return campaignPrefix + id + ":stats" }
func LiveKey(id string) string     { return campaignPrefix + id + ":live" }
func EventsKey(id string) string   { return campaignPrefix + id + ":events" }
func RetryKey(id string) string    { return campaignPrefix + id + ":retry" }
