package tier2

import "strings"

type directive int

const (
	dirUnknown directive = iota
	dirCheckSite
	dirCheckLoad
	dirSendEmail
	dirEscalate
	dirAddNote
	dirNoAction
)

// parseReply scans the reply line-wise for the first recognized directive.
// Surrounding prose is tolerated; the directive must start its line.
func parseReply(output string) (directive, string) {
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "CHECK_SITE:"):
			return dirCheckSite, strings.TrimSpace(strings.TrimPrefix(line, "CHECK_SITE:"))
		case strings.HasPrefix(line, "CHECK_LOAD:"):
			return dirCheckLoad, strings.TrimSpace(strings.TrimPrefix(line, "CHECK_LOAD:"))
		case line == "SEND_EMAIL" || strings.HasPrefix(line, "SEND_EMAIL:"):
			return dirSendEmail, strings.TrimSpace(strings.TrimPrefix(line, "SEND_EMAIL:"))
		case strings.HasPrefix(line, "ESCALATE:"):
			return dirEscalate, strings.TrimSpace(strings.TrimPrefix(line, "ESCALATE:"))
		case strings.HasPrefix(line, "ADD_NOTE:"):
			return dirAddNote, strings.TrimSpace(strings.TrimPrefix(line, "ADD_NOTE:"))
		case strings.HasPrefix(line, "NO_ACTION:"):
			return dirNoAction, strings.TrimSpace(strings.TrimPrefix(line, "NO_ACTION:"))
		case line == "NO_ACTION":
			return dirNoAction, "no reason given"
		}
	}
	return dirUnknown, ""
}
