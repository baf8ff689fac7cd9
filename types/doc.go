// Package types provides core types shared across the paperflow engine.
// This package has ZERO dependencies on other paperflow packages to avoid
// circular imports. All other packages should import types from here.
package types
