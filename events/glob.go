package events

import "path"

// matchGlob reports whether eventType matches a dotted-segment glob
// pattern such as "agent.*" or "workflow.step.*". Implemented with the
// standard library's path.Match: its '*' does not cross '/' boundaries,
// and since event types are dot-separated rather than slash-separated
// a single '*' spans multiple dotted segments.
func matchGlob(pattern, eventType string) bool {
	ok, err := path.Match(pattern, eventType)
	return err == nil && ok
}
