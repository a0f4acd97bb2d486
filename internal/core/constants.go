package core

import "fmt"

const (
	MaintainerLink    = "https://github.com/dorcha-inc/hops/blob/main/MAINTAINERS.md"
	BugReportTemplate = "\n\n[NOTE]This is most likely a bug in hops, please reach out to the maintainers at %s"
)

func BugReportMessage() string {
	return fmt.Sprintf(BugReportTemplate, MaintainerLink)
}

const (
	GOOSWindows = "windows"
)
