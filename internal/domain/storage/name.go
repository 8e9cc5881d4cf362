package storage

import (
	"fmt"
	"regexp"
	"strings"
)

const maxNameLength = 255

var (
	reservedChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)
	windowsNames  = regexp.MustCompile(`(?i)^(con|prn|aux|nul|com[0-9]|lpt[0-9])$`)
)

// ValidateName reports whether name can be used as a file name on every
// desktop platform: non-blank, at most 255 bytes, free of reserved and
// control characters, not "." or "..", and not a reserved Windows device name.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	case len(name) > maxNameLength:
		return fmt.Errorf("%w: %q is longer than %d bytes", ErrInvalidName, name, maxNameLength)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case reservedChars.MatchString(name):
		return fmt.Errorf("%w: %q contains a reserved character", ErrInvalidName, name)
	case windowsNames.MatchString(name):
		return fmt.Errorf("%w: %q is a reserved device name", ErrInvalidName, name)
	}
	return nil
}

func validateExtension(ext string) error {
	if err := ValidateName(ext); err != nil {
		return fmt.Errorf("extension: %w", err)
	}
	if strings.HasPrefix(ext, ".") {
		return fmt.Errorf("%w: extension %q must not start with a dot", ErrInvalidName, ext)
	}
	return nil
}
