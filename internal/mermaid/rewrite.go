// Package mermaid post-processes generated Mermaid.js diagram text.
package mermaid

import (
	"fmt"
	"regexp"
	"strings"
)

// clickPattern matches click directives: click ComponentName "path/to/something"
// with either single or double quotes around the path.
var clickPattern = regexp.MustCompile(`click ([^\s"']+)\s+["']([^"']+)["']`)

// RewriteClickEvents rewrites relative paths in click directives into absolute
// GitHub URLs, using blob URLs for files and tree URLs for directories. A path
// is treated as a file when its final segment contains a dot. Text without
// click directives is returned unchanged.
func RewriteClickEvents(diagram, owner, repo, branch string) string {
	return clickPattern.ReplaceAllStringFunc(diagram, func(match string) string {
		sub := clickPattern.FindStringSubmatch(match)
		name, p := sub[1], sub[2]

		segments := strings.Split(p, "/")
		pathType := "tree"
		if strings.Contains(segments[len(segments)-1], ".") {
			pathType = "blob"
		}
		return fmt.Sprintf("click %s \"https://github.com/%s/%s/%s/%s/%s\"", name, owner, repo, pathType, branch, p)
	})
}
