package approval

import "strings"

const customIDPrefix = "modbot"

const (
	opApprove = "approve"
	opDecline = "decline"
)

func approveID(key string) string { return customIDPrefix + ":" + opApprove + ":" + key }
func declineID(key string) string { return customIDPrefix + ":" + opDecline + ":" + key }

// parseCustomID splits a component id into its operation and request key
func parseCustomID(id string) (op, key string, ok bool) {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) != 3 || parts[0] != customIDPrefix || parts[2] == "" {
		return "", "", false
	}
	switch parts[1] {
	case opApprove, opDecline:
		return parts[1], parts[2], true
	}
	return "", "", false
}
