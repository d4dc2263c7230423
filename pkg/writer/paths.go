package writer

import (
	"regexp"
	"strings"

	"github.com/carbonfwd/carbonfwd"
)

var regWhitespace = regexp.MustCompile(`\s+`)

// buildPath renders the dotted hierarchical name for one data source:
//
//	prefix.host.hostBucket.plugin[-instance].type[-instance].dsName
//
// The host either has its dots replaced with underscores, or is reversed
// (c.b.a for a.b.c) so that hosts group by domain. Whitespace anywhere in
// the result collapses to a single underscore; upstream plugin and type
// names are not trusted to be clean.
func (w *Writer) buildPath(vl *carbonfwd.ValueList, dsName string) string {
	host := vl.Host
	if w.reverseHost {
		parts := strings.Split(host, ".")
		for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
			parts[i], parts[j] = parts[j], parts[i]
		}
		host = strings.Join(parts, ".")
	} else {
		host = strings.ReplaceAll(host, ".", "_")
	}
	path := strings.Join([]string{w.prefix, host, w.hostBucket, vl.PluginID(), vl.TypeID(), dsName}, ".")
	return regWhitespace.ReplaceAllLiteralString(path, "_")
}
