package build

import "strings"

var (
	Version = "dev"
	AppName = "Flitpipe"
	Slug    = ""
)

func init() {
	if Slug == "" {
		Slug = strings.ToLower(AppName)
	}
}
