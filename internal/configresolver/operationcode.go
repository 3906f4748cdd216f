// Package configresolver is the Config Resolver: hierarchical operation pricing lookup
// (entity → tenant → global → built-in default) plus module expansion.
package configresolver

import (
	"fmt"
	"strings"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/reliability"
)

// ValidateOperationCode enforces the dotted "{appCode}.{moduleCode}.{permission}" grammar
// exactly three segments, each lowercase alphanumeric with underscores,
// non-empty.
func ValidateOperationCode(code string) error {
	segments := strings.Split(code, ".")
	if len(segments) != 3 {
		return fmt.Errorf("%w: %q must have exactly 3 dot-separated segments", reliability.ErrInvalidOperationCode, code)
	}

	for _, seg := range segments {
		if seg == "" {
			return fmt.Errorf("%w: %q has an empty segment", reliability.ErrInvalidOperationCode, code)
		}

		for _, r := range seg {
			lower := r >= 'a' && r <= 'z'
			digit := r >= '0' && r <= '9'

			if !lower && !digit && r != '_' {
				return fmt.Errorf("%w: %q segment %q contains %q", reliability.ErrInvalidOperationCode, code, seg, r)
			}
		}
	}

	return nil
}

// AppCode returns the first segment of a valid operation code.
func AppCode(operationCode string) string {
	return strings.SplitN(operationCode, ".", 2)[0]
}
