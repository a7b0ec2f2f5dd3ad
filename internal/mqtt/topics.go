package mqtt

import (
	"fmt"
	"strings"
)

// Topics builds topic names under a common prefix.
type Topics struct {
	Prefix string
}

// Status is the retained online/offline topic of the collector.
func (t Topics) Status() string {
	return t.join("status")
}

// Meter is the reading topic of one meter. Names may not contain topic
// separators or wildcards.
func (t Topics) Meter(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/+#") {
		return "", fmt.Errorf("%w: meter name %q", ErrInvalidTopic, name)
	}
	return t.join(name), nil
}

func (t Topics) join(leaf string) string {
	prefix := strings.TrimSuffix(t.Prefix, "/")
	if prefix == "" {
		return leaf
	}
	return prefix + "/" + leaf
}
