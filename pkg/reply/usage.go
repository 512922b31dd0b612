package reply

// UsageType names a metered operation.
type UsageType string

// Usage types.
const (
	UsageReplyGeneration UsageType = "reply_generation"
)

// Plan names, as sold by the billing collaborator.
const (
	PlanFree      = "free"
	PlanPro       = "pro"
	PlanUnlimited = "unlimited"
)

// UserProfile is the subset of user state the engine reads.
type UserProfile struct {
	ID       string `json:"id"`
	Plan     string `json:"plan"`
	Timezone string `json:"timezone"`
}

// UsageKey identifies one daily counter row. Day is formatted YYYY-MM-DD
// in the user's local timezone.
type UsageKey struct {
	UserID    string    `json:"user_id"`
	UsageType UsageType `json:"usage_type"`
	Day       string    `json:"day"`
}
