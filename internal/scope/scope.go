// Package scope decides which Slack channels the bot services.
package scope

// Filter holds the channel scoping configuration.
//
// Precedence: a configured allow-list requires membership; otherwise a
// configured test channel requires an exact match; otherwise every channel is
// in scope.
type Filter struct {
	Allowed     []string
	TestChannel string
}

// New builds a Filter from configuration.
func New(allowed []string, testChannel string) Filter {
	return Filter{Allowed: allowed, TestChannel: testChannel}
}

// InScope reports whether the bot should act in the given channel.
func (f Filter) InScope(channelID string) bool {
	if len(f.Allowed) > 0 {
		for _, id := range f.Allowed {
			if id == channelID {
				return true
			}
		}
		return false
	}
	if f.TestChannel != "" {
		return channelID == f.TestChannel
	}
	return true
}
