package kafka

import "fmt"

// TopicPrefix is the prefix shared by every topic the storefront writes to.
const TopicPrefix = "storefront"

// Topic builds "<prefix>.<domain>.<action>", e.g. storefront.order.placed.
func Topic(domain, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, domain, action)
}
