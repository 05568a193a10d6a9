package sqlite

import "strings"

// isUniqueViolation reports whether err came back from a UNIQUE index
// conflict. The ncruces driver, like mattn's, surfaces this as a plain
// string rather than a typed sentinel, so matching the message is the
// portable way to do it.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyViolation reports whether err came back from a FOREIGN KEY
// constraint conflict.
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// isCheckViolation reports whether err came back from a CHECK constraint.
func isCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "CHECK constraint failed")
}
