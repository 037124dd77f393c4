//go:build !darwin

package clipboard

const pasteWithSuper = false
