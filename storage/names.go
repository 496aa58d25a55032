package storage

import (
	"strconv"
	"strings"

	"github.com/scopebridge/firmware/errs"
)

// MaxNameLen bounds a file name across every backend: it is the NOR
// directory's 24-byte name field, the tightest of the three (spec.md §4.7:
// "the name length limit is the minimum across the currently selected
// backend's own limit").
const MaxNameLen = 24

// validateName enforces spec.md §4.7's name rules: non-empty, no longer
// than MaxNameLen, no path separators, and no control bytes. A name of
// exactly MaxNameLen bytes is accepted, matching flash.setName's handling
// of the NOR directory's fixed-width name field, which has no reserved
// terminator byte and round-trips a full-width name correctly.
func validateName(name string) error {
	if name == "" {
		return errs.New(errs.InvalidName, "empty name")
	}
	if len(name) > MaxNameLen {
		return errs.New(errs.InvalidName, "name exceeds limit")
	}
	if strings.ContainsAny(name, "/\\:*?\"<>|") {
		return errs.New(errs.InvalidName, "name contains a reserved character")
	}
	for i := 0; i < len(name); i++ {
		if name[i] < 0x20 || name[i] == 0x7F {
			return errs.New(errs.InvalidName, "name contains a control byte")
		}
	}
	return nil
}

// autoName formats a generated capture file name as "{prefix}_{counter:04}{ext}"
// per spec.md §4.7's auto-naming rule.
func autoName(prefix string, counter uint16, ext string) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte('_')
	s := strconv.Itoa(int(counter))
	for len(s) < 4 {
		s = "0" + s
	}
	b.WriteString(s)
	b.WriteString(ext)
	return b.String()
}
